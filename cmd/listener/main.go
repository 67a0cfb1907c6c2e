package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0x-minds/0xpads-listener/internal/aggregator"
	"github.com/0x-minds/0xpads-listener/internal/alerts"
	"github.com/0x-minds/0xpads-listener/internal/cache"
	"github.com/0x-minds/0xpads-listener/internal/chainclient"
	"github.com/0x-minds/0xpads-listener/internal/config"
	"github.com/0x-minds/0xpads-listener/internal/decoder"
	"github.com/0x-minds/0xpads-listener/internal/fanout"
	"github.com/0x-minds/0xpads-listener/internal/logging"
	"github.com/0x-minds/0xpads-listener/internal/marketstats"
	"github.com/0x-minds/0xpads-listener/internal/metrics"
	"github.com/0x-minds/0xpads-listener/internal/registry"
	"github.com/0x-minds/0xpads-listener/internal/socketclient"
	"github.com/0x-minds/0xpads-listener/internal/supervisor"
	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup loggers
	loggers := logging.Init(cfg.Logging, cfg.Environment)
	logger := loggers.Root
	logger.Info("Starting blockchain listener...")

	// Create application context, cancelled on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		logger.Infof("Received %s, shutting down...", sig)
		cancel()
	}()

	// Metrics
	registerer := prometheus.NewRegistry()
	m := metrics.New(registerer)

	// Connect to Redis
	logger.Info("Connecting to Redis...")
	redisCache, err := cache.NewRedisCache(&cache.CacheConfig{
		Host:               cfg.Cache.Host,
		Port:               cfg.Cache.Port,
		Password:           cfg.Cache.Password,
		DB:                 cfg.Cache.DB,
		PoolSize:           cfg.Cache.MaxConnections,
		MinIdleConnections: cfg.Cache.MaxConnections / 4,
		MaxRetries:         3,
		DialTimeout:        time.Duration(cfg.Cache.SocketTimeoutS) * time.Second,
		ReadTimeout:        time.Duration(cfg.Cache.SocketTimeoutS) * time.Second,
		WriteTimeout:       time.Duration(cfg.Cache.SocketTimeoutS) * time.Second,
		PoolTimeout:        time.Duration(cfg.Cache.SocketTimeoutS) * time.Second,
		IdleTimeout:        5 * time.Minute,
	})
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()
	logger.Info("Successfully connected to Redis")

	// Backend socket
	live := socketclient.New(cfg.WebSocket, cfg.Performance.ChannelBuffer, loggers.WebSocket)
	defer live.Close()
	if cfg.WebSocket.BackendSocketURL != "" {
		if err := live.Connect(ctx); err != nil {
			logger.Warnf("Backend socket connection failed, continuing without live push: %v", err)
		}
	} else {
		logger.Warn("Backend socket URL not configured, live push disabled")
	}

	// Registry, decoder, chain client
	reg := registry.New()

	var factoryAddr valuemodel.Address
	if cfg.Blockchain.FactoryAddress != "" {
		factoryAddr, err = valuemodel.ParseAddress(cfg.Blockchain.FactoryAddress)
		if err != nil {
			logger.Fatalf("Invalid factory address: %v", err)
		}
	}
	dec, err := decoder.New(factoryAddr, reg)
	if err != nil {
		logger.Fatalf("Failed to build decoder: %v", err)
	}

	logger.Info("Connecting to chain node...")
	chain, err := chainclient.New(cfg.Blockchain, reg, loggers.Blockchain, m)
	if err != nil {
		logger.Fatalf("Failed to build chain client: %v", err)
	}
	if err := chain.Connect(ctx); err != nil {
		logger.Fatalf("Failed to connect to chain node: %v", err)
	}
	defer chain.Close()

	// Processing pipeline
	agg := aggregator.New()
	stats := marketstats.New(redisCache, cfg.Cache.TradesKeyPrefix)
	sink := fanout.New(redisCache, live, cfg.Cache, m, loggers.Processing)
	bank := alerts.NewBank(live, loggers.Processing,
		alerts.NewLargeTrade(cfg.Processing.LargeTradeThresholdEth),
		alerts.NewPriceAlert(redisCache),
	)

	sup, err := supervisor.New(chain, dec, reg, agg, stats, sink, bank,
		redisCache, live, m, loggers.Processing, cfg.Processing, cfg.Cache.TradesKeyPrefix)
	if err != nil {
		logger.Fatalf("Failed to build supervisor: %v", err)
	}

	// Monitoring endpoint, started once every sampled component exists
	if cfg.Performance.EnableMetrics {
		if cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		health := &healthView{chain: chain, cache: redisCache, live: live}
		go serveMonitoring(registerer, cfg.Performance.MetricsPort, health, loggers)
	}

	logger.Info("Pipeline started")
	if err := sup.Run(ctx); err != nil {
		logger.Fatalf("Pipeline terminated: %v", err)
	}

	logger.Info("Listener exited")
}

// healthView samples sub-component health for the /health endpoint.
type healthView struct {
	chain *chainclient.Client
	cache *cache.RedisCache
	live  *socketclient.Client
}

func (h *healthView) sample(ctx context.Context) (bool, gin.H) {
	components := gin.H{}
	healthy := true

	if h.chain != nil {
		if err := h.chain.Health(ctx); err != nil {
			components["blockchain"] = "unhealthy"
			healthy = false
		} else {
			components["blockchain"] = "healthy"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			components["cache"] = "unhealthy"
			healthy = false
		} else {
			components["cache"] = "healthy"
		}
	}
	if h.live != nil {
		if h.live.Healthy() {
			components["backend_socket"] = "connected"
		} else {
			components["backend_socket"] = "disconnected"
		}
	}

	return healthy, components
}

func serveMonitoring(reg *prometheus.Registry, port int, health *healthView, loggers *logging.Loggers) {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		healthy, components := health.sample(ctx)
		status := http.StatusOK
		state := "healthy"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":     state,
			"service":    "blockchain-listener",
			"timestamp":  time.Now().Unix(),
			"components": components,
		})
	})

	addr := fmt.Sprintf(":%d", port)
	loggers.Root.Infof("Monitoring endpoint listening on %s", addr)
	if err := router.Run(addr); err != nil {
		loggers.Root.Warnf("Monitoring server stopped: %v", err)
	}
}
