package orgsession

import (
	"context"
	"sync"
	"time"
)

// Status is the aggregate health classification.
type Status string

const (
	// StatusHealthy: cache connected, ping under threshold, no recent errors.
	StatusHealthy Status = "healthy"
	// StatusDegraded: cache connected but slow, erroring, or breaker open.
	// Requests still succeed via the store fallback.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy: cache backend unreachable. Requests still succeed via
	// the store fallback; this is operational visibility, not request state.
	StatusUnhealthy Status = "unhealthy"
)

// CacheHealth reports cache-backend connectivity.
type CacheHealth struct {
	Connected bool  `json:"connected"`
	PingMs    int64 `json:"ping_ms"`
}

// PoolHealth reports cache connection-pool occupancy, derived from the
// client's pool counters. go-redis exposes no waiting-caller gauge, so
// Pending counts connections checked out by in-flight commands; Size is
// always Available plus Pending.
type PoolHealth struct {
	// Size is the total number of pooled connections.
	Size uint32 `json:"size"`
	// Available is the number of idle connections ready for checkout.
	Available uint32 `json:"available"`
	// Pending is the number of connections held by in-flight commands.
	Pending uint32 `json:"pending"`
}

// MetricsHealth reports coordinator counters.
type MetricsHealth struct {
	Hits    uint64        `json:"hits"`
	Misses  uint64        `json:"misses"`
	Errors  uint64        `json:"errors"`
	Total   uint64        `json:"total"`
	HitRate float64       `json:"hit_rate"`
	TTL     time.Duration `json:"ttl"`
}

// StatusSnapshot is the aggregate health view returned by Engine.Health.
type StatusSnapshot struct {
	Status  Status        `json:"status"`
	Cache   CacheHealth   `json:"cache"`
	Metrics MetricsHealth `json:"metrics"`
	Pool    PoolHealth    `json:"pool"`
	Errors  []string      `json:"errors"`
}

type errorEntry struct {
	at  time.Time
	msg string
}

// errorLog is the bounded recent-error list behind the health surface.
type errorLog struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries []errorEntry
}

func newErrorLog(cfg HealthConfig) *errorLog {
	return &errorLog{
		max:    cfg.MaxRecentErrors,
		window: cfg.ErrorWindow,
	}
}

func (l *errorLog) Record(now time.Time, err error) {
	if l == nil || err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, errorEntry{at: now, msg: err.Error()})
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// Recent returns error messages within the window, oldest first.
func (l *errorLog) Recent(now time.Time) []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	var out []string
	for _, e := range l.entries {
		if e.at.After(cutoff) {
			out = append(out, e.msg)
		}
	}
	return out
}

// Health aggregates cache connectivity, pool occupancy, and coordinator
// counters into one snapshot. It never blocks past the cache op timeout and
// never fails: an unreachable backend yields StatusUnhealthy, not an error.
func (e *Engine) Health(ctx context.Context) StatusSnapshot {
	if e == nil || e.cache == nil {
		return StatusSnapshot{Status: StatusUnhealthy}
	}
	now := e.now()

	snap := StatusSnapshot{
		Errors: e.errlog.Recent(now),
	}

	hits, misses, errs := e.metrics.lookupTotals()
	total := hits + misses + errs
	snap.Metrics = MetricsHealth{
		Hits:   hits,
		Misses: misses,
		Errors: errs,
		Total:  total,
		TTL:    e.config.Cache.TTL,
	}
	if total > 0 {
		snap.Metrics.HitRate = float64(hits) / float64(total)
	}

	stats := e.cache.PoolStats()
	if stats != nil {
		snap.Pool = PoolHealth{
			Size:      stats.TotalConns,
			Available: stats.IdleConns,
			Pending:   stats.TotalConns - stats.IdleConns,
		}
	}

	ping, err := e.cache.Ping(ctx)
	if err != nil {
		snap.Status = StatusUnhealthy
		return snap
	}
	snap.Cache = CacheHealth{
		Connected: true,
		PingMs:    ping.Milliseconds(),
	}

	switch {
	case e.breaker.State() != breakerClosed:
		snap.Status = StatusDegraded
	case ping > e.config.Health.PingThreshold:
		snap.Status = StatusDegraded
	case len(snap.Errors) > 0:
		snap.Status = StatusDegraded
	default:
		snap.Status = StatusHealthy
	}
	return snap
}
