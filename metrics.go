package orgsession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a single engine counter or histogram.
type MetricID uint16

const (
	// MetricCacheHit counts Validate calls served entirely from the fast cache.
	MetricCacheHit MetricID = iota
	// MetricCacheMiss counts Validate calls that fell through to the store
	// because no cache entry existed.
	MetricCacheMiss
	// MetricCacheError counts cache-backend failures (timeouts, pool
	// exhaustion, connection errors) absorbed by the store fallback.
	MetricCacheError
	// MetricCacheBypass counts Validate calls that skipped the cache because
	// the circuit breaker was open.
	MetricCacheBypass
	// MetricStoreLoad counts full context rebuilds from the authoritative store.
	MetricStoreLoad
	// MetricValidateDenied counts Validate calls rejected with an auth error.
	MetricValidateDenied
	// MetricRevoke counts session revocations.
	MetricRevoke
	// MetricOrgSwitch counts successful active-organization switches.
	MetricOrgSwitch
	// MetricOrgSwitchDenied counts switches rejected with NotMember or NotFound.
	MetricOrgSwitchDenied
	// MetricSelfHeal counts active-org pointers repaired during reads.
	MetricSelfHeal
	// MetricCacheInvalidation counts user-scoped cache purges.
	MetricCacheInvalidation
	// MetricBreakerOpen counts closed-to-open breaker transitions.
	MetricBreakerOpen
	// MetricBreakerClose counts successful half-open probes.
	MetricBreakerClose
	// MetricValidateLatency is the Validate latency histogram.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free engine counters. Counters are cache-line padded;
// every method is safe under concurrent use.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a Metrics collector. Disabled collectors accept
// increments and observations as no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistogram,
	}
}

// Enabled reports whether counters are being collected.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments the given counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a Validate latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current value of a counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and histograms.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

// lookupTotals returns the hit/miss/error counters used by Health.
func (m *Metrics) lookupTotals() (hits, misses, errs uint64) {
	return m.Value(MetricCacheHit), m.Value(MetricCacheMiss), m.Value(MetricCacheError)
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
