package orgsession

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/oakmist/orgsession/internal/usersync"
	"github.com/oakmist/orgsession/sessioncache"
	"github.com/oakmist/orgsession/store"
	"github.com/oakmist/orgsession/token"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until the first Engine method call.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	db        *bun.DB
	store     *store.Store
	logger    *zap.Logger
	auditSink AuditSink
	built     bool
}

// New creates a Builder with default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the fast-cache client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDB sets the authoritative store database handle.
func (b *Builder) WithDB(db *bun.DB) *Builder {
	b.db = db
	return b
}

// WithStore sets a pre-built store, overriding WithDB.
func (b *Builder) WithStore(s *store.Store) *Builder {
	b.store = s
	return b
}

// WithLogger sets the structured logger. Defaults to zap.NewNop.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit event destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil && b.db == nil {
		return nil, errors.New("store database required")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	st := b.store
	if st == nil {
		st = store.New(b.db)
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var tokens *token.Manager
	if b.config.ContextToken.Enabled {
		manager, err := token.NewManager(token.Config{
			TTL:           b.config.ContextToken.TTL,
			SigningMethod: token.SigningMethod(b.config.ContextToken.SigningMethod),
			PrivateKey:    b.config.ContextToken.PrivateKey,
			PublicKey:     b.config.ContextToken.PublicKey,
			Issuer:        b.config.ContextToken.Issuer,
		})
		if err != nil {
			return nil, err
		}
		tokens = manager
	}

	e := &Engine{
		config:  b.config,
		store:   st,
		cache:   sessioncache.New(b.redis, b.config.Cache.KeyPrefix, b.config.Cache.OpTimeout),
		breaker: newBreaker(b.config.Breaker),
		metrics: NewMetrics(b.config.Metrics),
		errlog:  newErrorLog(b.config.Health),
		audit:   newAuditDispatcher(b.config.Audit, b.auditSink),
		tokens:  tokens,
		logger:  logger,
		now:     time.Now,
	}

	e.resolver = &resolver{
		store:        e.store,
		cache:        e.cache,
		locks:        usersync.New(256),
		metrics:      e.metrics,
		audit:        e.audit,
		logger:       logger,
		now:          func() time.Time { return e.now() },
		onCacheError: e.recordCacheError,
	}

	b.built = true
	return e, nil
}
