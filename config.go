package orgsession

import (
	"errors"
	"time"
)

// Config defines engine-wide tuning. Zero values are replaced by
// defaultConfig() in the Builder; Build rejects invalid combinations.
type Config struct {
	Cache        CacheConfig
	Breaker      BreakerConfig
	Health       HealthConfig
	ContextToken ContextTokenConfig
	Metrics      MetricsConfig
	Audit        AuditConfig
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig controls the Redis fast path.
type CacheConfig struct {
	// KeyPrefix namespaces all cache keys.
	KeyPrefix string
	// TTL is the maximum lifetime of a cached session context. Entries are
	// always capped at the remaining session lifetime; contexts within
	// minCacheTTL of expiry are not cached at all.
	TTL time.Duration
	// OpTimeout bounds every individual cache call. Beyond it the coordinator
	// proceeds as on a miss and the timeout is treated as a cache error.
	OpTimeout time.Duration
}

/*
====================================
CIRCUIT BREAKER CONFIG
====================================
*/

// BreakerConfig controls degraded-mode entry and recovery.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive cache-backend errors
	// that opens the breaker.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before allowing a single
	// half-open probe.
	Cooldown time.Duration
}

/*
====================================
HEALTH CONFIG
====================================
*/

// HealthConfig controls status classification.
type HealthConfig struct {
	// PingThreshold is the cache ping latency above which a connected
	// backend is reported degraded.
	PingThreshold time.Duration
	// ErrorWindow is how far back recent errors count toward degraded status.
	ErrorWindow time.Duration
	// MaxRecentErrors bounds the error list returned in StatusSnapshot.
	MaxRecentErrors int
}

/*
====================================
CONTEXT TOKEN CONFIG
====================================
*/

// ContextTokenConfig controls optional signed context tokens minted from a
// resolved session context for downstream propagation.
type ContextTokenConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

/*
====================================
METRICS / AUDIT CONFIG
====================================
*/

// MetricsConfig enables counter collection and the Validate latency histogram.
type MetricsConfig struct {
	Enabled                bool
	EnableLatencyHistogram bool
}

// AuditConfig enables the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

const minCacheTTL = time.Second

func defaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			KeyPrefix: "osx",
			TTL:       5 * time.Minute,
			OpTimeout: 50 * time.Millisecond,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		},
		Health: HealthConfig{
			PingThreshold:   25 * time.Millisecond,
			ErrorWindow:     time.Minute,
			MaxRecentErrors: 16,
		},
		ContextToken: ContextTokenConfig{
			Enabled:       false,
			TTL:           2 * time.Minute,
			SigningMethod: "hs256",
		},
		Metrics: MetricsConfig{
			Enabled:                true,
			EnableLatencyHistogram: false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.Cache.TTL <= 0 {
		return errors.New("cache TTL must be positive")
	}
	if cfg.Cache.OpTimeout <= 0 {
		return errors.New("cache op timeout must be positive")
	}
	if cfg.Cache.OpTimeout > time.Second {
		return errors.New("cache op timeout above one second defeats the fast path")
	}
	if cfg.Cache.KeyPrefix == "" {
		return errors.New("cache key prefix must not be empty")
	}
	if cfg.Breaker.FailureThreshold < 1 {
		return errors.New("breaker failure threshold must be at least 1")
	}
	if cfg.Breaker.Cooldown <= 0 {
		return errors.New("breaker cooldown must be positive")
	}
	if cfg.Health.MaxRecentErrors < 1 {
		return errors.New("health max recent errors must be at least 1")
	}
	if cfg.Health.ErrorWindow <= 0 {
		return errors.New("health error window must be positive")
	}
	if cfg.ContextToken.Enabled && cfg.ContextToken.TTL <= 0 {
		return errors.New("context token TTL must be positive")
	}
	if cfg.Audit.Enabled && cfg.Audit.BufferSize < 1 {
		return errors.New("audit buffer size must be at least 1")
	}
	return nil
}
