package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is the capability surface the pipeline needs from Redis: plain
// keys for the latest-trade/market/curve records, sorted sets for the
// per-token trade history and burn events, a stream for the durable
// event log, and pub/sub for burn-event broadcast. Kept deliberately
// narrow; components that need less accept their own smaller view.
type Cache interface {
	// Key/value records with TTL
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Sorted sets: per-token trade history and burn-event indexes
	ZAdd(ctx context.Context, key string, score float64, member []byte) error
	ZCard(ctx context.Context, key string) (int64, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([][]byte, error)
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error)
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error)

	// Durable event stream
	XAdd(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) (string, error)
	XTrimApprox(ctx context.Context, stream string, maxLen int64) error

	// Pub/sub, backing burn-event broadcast
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) Subscription

	// Key iteration for the periodic cleanup task
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)

	// Write batching for multi-key trade-record updates
	Pipeline() Pipeline

	Ping(ctx context.Context) error
	Close() error
}

// Subscription abstracts a live pub/sub channel subscription.
type Subscription interface {
	Channel() <-chan Message
	Close() error
}

// Message is a single pub/sub delivery.
type Message struct {
	Channel string
	Payload []byte
}

// Pipeline batches write commands into one round trip. Commands queue
// until Exec; Exec returns the first command error, if any.
type Pipeline interface {
	Set(key string, value []byte, ttl time.Duration)
	ZAdd(key string, score float64, member []byte)
	ZRemRangeByRank(key string, start, stop int64)
	Expire(key string, ttl time.Duration)
	Exec(ctx context.Context) error
	Discard()
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	// Connection
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`

	// Connection pool
	PoolSize           int           `json:"pool_size"`
	MinIdleConnections int           `json:"min_idle_connections"`
	MaxRetries         int           `json:"max_retries"`
	RetryDelay         time.Duration `json:"retry_delay"`
	DialTimeout        time.Duration `json:"dial_timeout"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	PoolTimeout        time.Duration `json:"pool_timeout"`
	IdleTimeout        time.Duration `json:"idle_timeout"`

	// Clustering (for Redis Cluster)
	EnableCluster bool     `json:"enable_cluster"`
	ClusterNodes  []string `json:"cluster_nodes"`

	// Monitoring
	EnableMetrics   bool          `json:"enable_metrics"`
	MetricsInterval time.Duration `json:"metrics_interval"`
}

// CacheMetrics represents cache performance metrics
type CacheMetrics struct {
	// Operation counts
	GetCount   int64 `json:"get_count"`
	SetCount   int64 `json:"set_count"`
	DelCount   int64 `json:"del_count"`
	HitCount   int64 `json:"hit_count"`
	MissCount  int64 `json:"miss_count"`
	ErrorCount int64 `json:"error_count"`

	// Performance metrics
	AvgLatency time.Duration `json:"avg_latency"`
	MaxLatency time.Duration `json:"max_latency"`
	MinLatency time.Duration `json:"min_latency"`

	// Memory usage
	UsedMemory  int64   `json:"used_memory"`
	MaxMemory   int64   `json:"max_memory"`
	MemoryUsage float64 `json:"memory_usage_percent"`

	// Cache effectiveness
	HitRatio    float64   `json:"hit_ratio"`
	LastUpdated time.Time `json:"last_updated"`
}

// CacheError represents cache-specific errors
type CacheError struct {
	Operation string
	Key       string
	Err       error
	Code      string
}

func (e *CacheError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("cache %s operation failed for key '%s': %v", e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("cache %s operation failed: %v", e.Operation, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// Common error codes
const (
	ErrCodeKeyNotFound      = "KEY_NOT_FOUND"
	ErrCodeConnectionFailed = "CONNECTION_FAILED"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeSerialization    = "SERIALIZATION_ERROR"
	ErrCodeInvalidKey       = "INVALID_KEY"
)

// NewCacheError creates a new cache error
func NewCacheError(operation, key, code string, err error) *CacheError {
	return &CacheError{
		Operation: operation,
		Key:       key,
		Err:       err,
		Code:      code,
	}
}

// IsNotFound checks if error is a "not found" error
func IsNotFound(err error) bool {
	if cacheErr, ok := err.(*CacheError); ok {
		return cacheErr.Code == ErrCodeKeyNotFound
	}
	return false
}

// IsTimeout checks if error is a timeout error
func IsTimeout(err error) bool {
	if cacheErr, ok := err.(*CacheError); ok {
		return cacheErr.Code == ErrCodeTimeout
	}
	return false
}

// IsConnectionFailed checks if error is a connection error
func IsConnectionFailed(err error) bool {
	if cacheErr, ok := err.(*CacheError); ok {
		return cacheErr.Code == ErrCodeConnectionFailed
	}
	return false
}
