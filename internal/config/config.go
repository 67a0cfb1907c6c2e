package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full application configuration tree, assembled by Load
// from environment variables (optionally seeded from a .env file).
type Config struct {
	Blockchain  BlockchainConfig
	Cache       CacheConfig
	Processing  ProcessingConfig
	WebSocket   WebSocketConfig
	Logging     LoggingConfig
	Performance PerformanceConfig
	Environment string
}

// BlockchainConfig configures the Chain Client's node connection.
type BlockchainConfig struct {
	WSUrl                   string
	HTTPUrl                 string
	ChainID                 int64
	FactoryAddress          string
	MaxReconnectionAttempts int
	HeartbeatIntervalS      int
}

// CacheConfig configures the Redis-backed cache client.
type CacheConfig struct {
	URL                 string
	Host                string
	Port                int
	DB                  int
	Password            string
	MaxConnections      int
	SocketTimeoutS      int
	TradesKeyPrefix     string
	CandlesKeyPrefix    string
	MarketDataKeyPrefix string
	EventsKeyPrefix     string
}

// ProcessingConfig configures candle aggregation and alerting thresholds.
type ProcessingConfig struct {
	BatchSize              int
	OHLCVIntervals         []string
	LargeTradeThresholdEth float64
	MaxCandlesMemory       int
}

// WebSocketConfig configures the live-push socket to the backend.
type WebSocketConfig struct {
	Host             string
	Port             int
	BackendSocketURL string
	BackendNamespace string
	PingIntervalS    int
	PingTimeoutS     int
}

// LoggingConfig configures per-subsystem log levels.
type LoggingConfig struct {
	Level           string
	BlockchainLevel string
	ProcessingLevel string
	WebSocketLevel  string
}

// PerformanceConfig tunes worker concurrency and metrics exposure.
type PerformanceConfig struct {
	WorkerPoolSize int
	UpdateInterval time.Duration
	MaxConcurrency int
	ChannelBuffer  int
	EnableMetrics  bool
	MetricsPort    int
}

// ConfigError wraps a configuration validation failure with the offending
// field name.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads a .env file if present (ignored if absent) and builds a
// Config from environment variables with defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Blockchain: BlockchainConfig{
			WSUrl:                   getEnv("BLOCKCHAIN_WS_URL", ""),
			HTTPUrl:                 getEnv("BLOCKCHAIN_HTTP_URL", ""),
			ChainID:                 getEnvAsInt64("BLOCKCHAIN_CHAIN_ID", 1),
			FactoryAddress:          getEnv("BLOCKCHAIN_FACTORY_ADDRESS", ""),
			MaxReconnectionAttempts: getEnvAsInt("BLOCKCHAIN_MAX_RECONNECTION_ATTEMPTS", 10),
			HeartbeatIntervalS:      getEnvAsInt("BLOCKCHAIN_HEARTBEAT_INTERVAL_S", 30),
		},
		Cache: CacheConfig{
			URL:                 getEnv("REDIS_URL", "redis://localhost:6379"),
			Host:                getEnv("REDIS_HOST", "localhost"),
			Port:                getEnvAsInt("REDIS_PORT", 6379),
			DB:                  getEnvAsInt("REDIS_DB", 0),
			Password:            getEnv("REDIS_PASSWORD", ""),
			MaxConnections:      getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			SocketTimeoutS:      getEnvAsInt("REDIS_SOCKET_TIMEOUT_S", 5),
			TradesKeyPrefix:     getEnv("REDIS_TRADES_KEY_PREFIX", "trades:"),
			CandlesKeyPrefix:    getEnv("REDIS_CANDLES_KEY_PREFIX", "candles:"),
			MarketDataKeyPrefix: getEnv("REDIS_MARKET_DATA_KEY_PREFIX", "market:"),
			EventsKeyPrefix:     getEnv("REDIS_EVENTS_KEY_PREFIX", "events:"),
		},
		Processing: ProcessingConfig{
			BatchSize:              getEnvAsInt("PROCESSING_BATCH_SIZE", 100),
			OHLCVIntervals:         getEnvAsSlice("PROCESSING_OHLCV_INTERVALS", []string{"1m", "5m", "15m", "1h", "4h", "1d"}),
			LargeTradeThresholdEth: getEnvAsFloat("PROCESSING_LARGE_TRADE_THRESHOLD_ETH", 1.0),
			MaxCandlesMemory:       getEnvAsInt("PROCESSING_MAX_CANDLES_MEMORY", 1000),
		},
		WebSocket: WebSocketConfig{
			Host:             getEnv("WEBSOCKET_HOST", "0.0.0.0"),
			Port:             getEnvAsInt("WEBSOCKET_PORT", 3001),
			BackendSocketURL: getEnv("WEBSOCKET_BACKEND_SOCKET_URL", ""),
			BackendNamespace: getEnv("WEBSOCKET_BACKEND_NAMESPACE", "/charts"),
			PingIntervalS:    getEnvAsInt("WEBSOCKET_PING_INTERVAL_S", 20),
			PingTimeoutS:     getEnvAsInt("WEBSOCKET_PING_TIMEOUT_S", 10),
		},
		Logging: LoggingConfig{
			Level:           getEnv("LOGGING_LEVEL", "info"),
			BlockchainLevel: getEnv("LOGGING_BLOCKCHAIN_LEVEL", ""),
			ProcessingLevel: getEnv("LOGGING_PROCESSING_LEVEL", ""),
			WebSocketLevel:  getEnv("LOGGING_WEBSOCKET_LEVEL", ""),
		},
		Performance: PerformanceConfig{
			WorkerPoolSize: getEnvAsInt("WORKER_POOL_SIZE", 20),
			UpdateInterval: getEnvAsDuration("UPDATE_INTERVAL", "5s"),
			MaxConcurrency: getEnvAsInt("MAX_CONCURRENCY", 50),
			ChannelBuffer:  getEnvAsInt("CHANNEL_BUFFER", 1000),
			EnableMetrics:  getEnvAsBool("PERFORMANCE_ENABLE_METRICS", true),
			MetricsPort:    getEnvAsInt("PERFORMANCE_METRICS_PORT", 9100),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on configuration that would make the pipeline unable
// to start.
func (c *Config) Validate() error {
	if c.Blockchain.WSUrl == "" {
		return &ConfigError{Field: "blockchain.ws_url", Err: fmt.Errorf("must not be empty")}
	}
	if c.Blockchain.ChainID <= 0 {
		return &ConfigError{Field: "blockchain.chain_id", Err: fmt.Errorf("must be positive")}
	}
	if len(c.Processing.OHLCVIntervals) == 0 {
		return &ConfigError{Field: "processing.ohlcv_intervals", Err: fmt.Errorf("must list at least one interval")}
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if int64Value, err := strconv.ParseInt(value, 10, 64); err == nil {
			return int64Value
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	if duration, err := time.ParseDuration(defaultValue); err == nil {
		return duration
	}
	return time.Second * 30 // Fallback
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsTest returns true if running in test environment
func (c *Config) IsTest() bool {
	return c.Environment == "test"
}
