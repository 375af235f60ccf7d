package orgsession

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/oakmist/orgsession/sessioncache"
	"github.com/oakmist/orgsession/store"
	"github.com/oakmist/orgsession/token"
)

// Engine is the cache coordinator and organization context resolver. Build
// one through [Builder]; all methods are safe for concurrent use afterwards.
type Engine struct {
	config   Config
	store    *store.Store
	cache    *sessioncache.Cache
	resolver *resolver
	breaker  *breaker
	metrics  *Metrics
	errlog   *errorLog
	audit    *auditDispatcher
	tokens   *token.Manager
	logger   *zap.Logger

	now func() time.Time
}

// Close flushes the audit dispatcher. The Redis client and database handle
// are owned by the caller and stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// MetricsSnapshot copies the engine counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AuditDropped returns how many audit events were discarded under pressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// recordCacheError is the single funnel for cache-backend failures: counter,
// health error log, and breaker accounting, with transition logging.
func (e *Engine) recordCacheError(now time.Time, err error) {
	e.metrics.Inc(MetricCacheError)
	e.errlog.Record(now, err)

	if e.breaker.Failure(now) {
		e.metrics.Inc(MetricBreakerOpen)
		e.logger.Warn("cache circuit breaker opened; bypassing cache",
			zap.Duration("cooldown", e.config.Breaker.Cooldown),
			zap.Error(err),
		)
		e.audit.Emit(context.Background(), AuditEvent{
			Timestamp: now,
			EventType: AuditBreakerOpened,
			Success:   false,
			Error:     err.Error(),
		})
	}
}

// recordCacheSuccess closes the breaker, logging recoveries out of half-open.
func (e *Engine) recordCacheSuccess(now time.Time) {
	if e.breaker.Success() {
		e.metrics.Inc(MetricBreakerClose)
		e.logger.Info("cache circuit breaker closed after successful probe")
		e.audit.Emit(context.Background(), AuditEvent{
			Timestamp: now,
			EventType: AuditBreakerClosed,
			Success:   true,
		})
	}
}
