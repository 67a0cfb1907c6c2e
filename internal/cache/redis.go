package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements the Cache interface using Redis
type RedisCache struct {
	client  redis.UniversalClient
	config  *CacheConfig
	metrics *CacheMetrics
	mu      sync.RWMutex
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(config *CacheConfig) (*RedisCache, error) {
	if config == nil {
		config = getDefaultRedisConfig()
	}

	var client redis.UniversalClient

	if config.EnableCluster {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           config.ClusterNodes,
			Password:        config.Password,
			MaxRetries:      config.MaxRetries,
			PoolSize:        config.PoolSize,
			MinIdleConns:    config.MinIdleConnections,
			DialTimeout:     config.DialTimeout,
			ReadTimeout:     config.ReadTimeout,
			WriteTimeout:    config.WriteTimeout,
			PoolTimeout:     config.PoolTimeout,
			ConnMaxIdleTime: config.IdleTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:            fmt.Sprintf("%s:%d", config.Host, config.Port),
			Password:        config.Password,
			DB:              config.DB,
			MaxRetries:      config.MaxRetries,
			PoolSize:        config.PoolSize,
			MinIdleConns:    config.MinIdleConnections,
			DialTimeout:     config.DialTimeout,
			ReadTimeout:     config.ReadTimeout,
			WriteTimeout:    config.WriteTimeout,
			PoolTimeout:     config.PoolTimeout,
			ConnMaxIdleTime: config.IdleTimeout,
		})
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, NewCacheError("connect", "", ErrCodeConnectionFailed, err)
	}

	cache := &RedisCache{
		client:  client,
		config:  config,
		metrics: &CacheMetrics{},
	}

	// Start metrics collection if enabled
	if config.EnableMetrics {
		go cache.collectMetrics()
	}

	return cache, nil
}

// Key/value operations

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer r.recordOperation("get", start)

	result, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			r.recordMiss()
			return nil, NewCacheError("get", key, ErrCodeKeyNotFound, err)
		}
		r.recordError()
		return nil, NewCacheError("get", key, ErrCodeConnectionFailed, err)
	}

	r.recordHit()
	return result, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	defer r.recordOperation("set", start)

	err := r.client.Set(ctx, key, value, ttl).Err()
	if err != nil {
		r.recordError()
		return NewCacheError("set", key, ErrCodeConnectionFailed, err)
	}

	return nil
}

func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	start := time.Now()
	defer r.recordOperation("del", start)

	err := r.client.Del(ctx, keys...).Err()
	if err != nil {
		r.recordError()
		return NewCacheError("del", "", ErrCodeConnectionFailed, err)
	}

	return nil
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	defer r.recordOperation("exists", start)

	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		r.recordError()
		return false, NewCacheError("exists", key, ErrCodeConnectionFailed, err)
	}

	return count > 0, nil
}

func (r *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	start := time.Now()
	defer r.recordOperation("ttl", start)

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		r.recordError()
		return 0, NewCacheError("ttl", key, ErrCodeConnectionFailed, err)
	}

	return ttl, nil
}

func (r *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	start := time.Now()
	defer r.recordOperation("expire", start)

	err := r.client.Expire(ctx, key, ttl).Err()
	if err != nil {
		r.recordError()
		return NewCacheError("expire", key, ErrCodeConnectionFailed, err)
	}

	return nil
}

// Sorted set operations

func (r *RedisCache) ZAdd(ctx context.Context, key string, score float64, member []byte) error {
	start := time.Now()
	defer r.recordOperation("zadd", start)

	err := r.client.ZAdd(ctx, key, redis.Z{
		Score:  score,
		Member: member,
	}).Err()
	if err != nil {
		r.recordError()
		return NewCacheError("zadd", key, ErrCodeConnectionFailed, err)
	}

	return nil
}

func (r *RedisCache) ZCard(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	defer r.recordOperation("zcard", start)

	count, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		r.recordError()
		return 0, NewCacheError("zcard", key, ErrCodeConnectionFailed, err)
	}

	return count, nil
}

func (r *RedisCache) ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([][]byte, error) {
	start := time.Now()
	defer r.recordOperation("zrangebyscore", start)

	opt := &redis.ZRangeBy{
		Min: strconv.FormatFloat(min, 'f', -1, 64),
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}

	if limit > 0 {
		opt.Count = limit
	}

	members, err := r.client.ZRangeByScore(ctx, key, opt).Result()
	if err != nil {
		r.recordError()
		return nil, NewCacheError("zrangebyscore", key, ErrCodeConnectionFailed, err)
	}

	result := make([][]byte, len(members))
	for i, member := range members {
		result[i] = []byte(member)
	}

	return result, nil
}

func (r *RedisCache) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error) {
	startTime := time.Now()
	defer r.recordOperation("zremrangebyrank", startTime)

	removed, err := r.client.ZRemRangeByRank(ctx, key, start, stop).Result()
	if err != nil {
		r.recordError()
		return 0, NewCacheError("zremrangebyrank", key, ErrCodeConnectionFailed, err)
	}

	return removed, nil
}

func (r *RedisCache) ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	start := time.Now()
	defer r.recordOperation("zremrangebyscore", start)

	minArg := strconv.FormatFloat(min, 'f', -1, 64)
	maxArg := strconv.FormatFloat(max, 'f', -1, 64)

	removed, err := r.client.ZRemRangeByScore(ctx, key, minArg, maxArg).Result()
	if err != nil {
		r.recordError()
		return 0, NewCacheError("zremrangebyscore", key, ErrCodeConnectionFailed, err)
	}

	return removed, nil
}

// Stream operations, backing the durable trade/candle append log

func (r *RedisCache) XAdd(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) (string, error) {
	start := time.Now()
	defer r.recordOperation("xadd", start)

	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}

	id, err := r.client.XAdd(ctx, args).Result()
	if err != nil {
		r.recordError()
		return "", NewCacheError("xadd", stream, ErrCodeConnectionFailed, err)
	}

	return id, nil
}

func (r *RedisCache) XTrimApprox(ctx context.Context, stream string, maxLen int64) error {
	start := time.Now()
	defer r.recordOperation("xtrim", start)

	err := r.client.XTrimMaxLenApprox(ctx, stream, maxLen, 0).Err()
	if err != nil {
		r.recordError()
		return NewCacheError("xtrim", stream, ErrCodeConnectionFailed, err)
	}

	return nil
}

// Pub/sub operations, backing burn-event broadcast to the fan-out sinks

func (r *RedisCache) Publish(ctx context.Context, channel string, payload []byte) error {
	start := time.Now()
	defer r.recordOperation("publish", start)

	err := r.client.Publish(ctx, channel, payload).Err()
	if err != nil {
		r.recordError()
		return NewCacheError("publish", channel, ErrCodeConnectionFailed, err)
	}

	return nil
}

func (r *RedisCache) Subscribe(ctx context.Context, channels ...string) Subscription {
	pubsub := r.client.Subscribe(ctx, channels...)
	sub := &redisSubscription{pubsub: pubsub, out: make(chan Message, 64)}
	go sub.pump()
	return sub
}

// redisSubscription adapts a *redis.PubSub onto the Subscription interface.
type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan Message
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	ch := s.pubsub.Channel()
	for msg := range ch {
		s.out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}
	}
}

func (s *redisSubscription) Channel() <-chan Message {
	return s.out
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}

// Key iteration

func (r *RedisCache) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	start := time.Now()
	defer r.recordOperation("scan", start)

	keys, newCursor, err := r.client.Scan(ctx, cursor, match, count).Result()
	if err != nil {
		r.recordError()
		return nil, 0, NewCacheError("scan", "", ErrCodeConnectionFailed, err)
	}

	return keys, newCursor, nil
}

// Pipeline operations

func (r *RedisCache) Pipeline() Pipeline {
	return &RedisPipeline{
		pipe: r.client.Pipeline(),
	}
}

// Health and monitoring

func (r *RedisCache) Ping(ctx context.Context) error {
	start := time.Now()
	defer r.recordOperation("ping", start)

	err := r.client.Ping(ctx).Err()
	if err != nil {
		r.recordError()
		return NewCacheError("ping", "", ErrCodeConnectionFailed, err)
	}

	return nil
}

// Info returns the parsed INFO response, used by the background metrics
// collector.
func (r *RedisCache) Info(ctx context.Context) (map[string]string, error) {
	start := time.Now()
	defer r.recordOperation("info", start)

	info, err := r.client.Info(ctx).Result()
	if err != nil {
		r.recordError()
		return nil, NewCacheError("info", "", ErrCodeConnectionFailed, err)
	}

	// Parse info string into map
	result := make(map[string]string)
	lines := strings.Split(info, "\r\n")
	for _, line := range lines {
		if strings.Contains(line, ":") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				result[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
			}
		}
	}

	return result, nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Metrics methods

func (r *RedisCache) recordOperation(op string, start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	latency := time.Since(start)

	// Update operation counts
	switch op {
	case "get", "zrangebyscore":
		r.metrics.GetCount++
	case "set", "zadd", "xadd", "publish":
		r.metrics.SetCount++
	case "del", "zremrangebyrank", "zremrangebyscore", "xtrim":
		r.metrics.DelCount++
	}

	// Update latency metrics
	if r.metrics.MinLatency == 0 || latency < r.metrics.MinLatency {
		r.metrics.MinLatency = latency
	}
	if latency > r.metrics.MaxLatency {
		r.metrics.MaxLatency = latency
	}

	// Update average latency
	if r.metrics.AvgLatency == 0 {
		r.metrics.AvgLatency = latency
	} else {
		r.metrics.AvgLatency = (r.metrics.AvgLatency + latency) / 2
	}

	r.metrics.LastUpdated = time.Now()
}

func (r *RedisCache) recordHit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.HitCount++
	r.updateHitRatio()
}

func (r *RedisCache) recordMiss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.MissCount++
	r.updateHitRatio()
}

func (r *RedisCache) recordError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.ErrorCount++
}

func (r *RedisCache) updateHitRatio() {
	total := r.metrics.HitCount + r.metrics.MissCount
	if total > 0 {
		r.metrics.HitRatio = float64(r.metrics.HitCount) / float64(total)
	}
}

func (r *RedisCache) collectMetrics() {
	ticker := time.NewTicker(r.config.MetricsInterval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		// Get Redis info
		if info, err := r.Info(ctx); err == nil {
			r.mu.Lock()
			if usedMemory, exists := info["used_memory"]; exists {
				if val, err := strconv.ParseInt(usedMemory, 10, 64); err == nil {
					r.metrics.UsedMemory = val
				}
			}
			if maxMemory, exists := info["maxmemory"]; exists {
				if val, err := strconv.ParseInt(maxMemory, 10, 64); err == nil {
					r.metrics.MaxMemory = val
				}
			}
			if r.metrics.MaxMemory > 0 {
				r.metrics.MemoryUsage = float64(r.metrics.UsedMemory) / float64(r.metrics.MaxMemory) * 100
			}
			r.mu.Unlock()
		}

		cancel()
	}
}

// GetMetrics returns current cache metrics
func (r *RedisCache) GetMetrics() *CacheMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Create a copy to avoid race conditions
	metrics := *r.metrics
	return &metrics
}

// Helper functions

func getDefaultRedisConfig() *CacheConfig {
	return &CacheConfig{
		Host:               "localhost",
		Port:               6379,
		DB:                 0,
		PoolSize:           10,
		MinIdleConnections: 5,
		MaxRetries:         3,
		RetryDelay:         100 * time.Millisecond,
		DialTimeout:        5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		PoolTimeout:        4 * time.Second,
		IdleTimeout:        5 * time.Minute,
		EnableMetrics:      true,
		MetricsInterval:    30 * time.Second,
	}
}

var _ Cache = (*RedisCache)(nil)
