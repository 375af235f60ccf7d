// Package orgsession resolves a user's identity, organization memberships,
// and currently-selected organization on every authenticated request, keeping
// read latency low while a relational store remains the source of truth.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// orgsession is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (StatusSnapshot, MetricsSnapshot, ActiveOrg). The Redis
// cache adapter lives in sessioncache, the authoritative relational store in
// store, and signed context tokens in token. Request transport, credential
// verification, and organization CRUD are caller concerns.
//
// # Consistency contract
//
// The authoritative store always wins. Cache failures are absorbed: Validate
// falls back to the store, records the failure in metrics, and may trip the
// circuit breaker, but never surfaces a cache error to the caller. After
// Revoke, a concurrently cached context may be served until its TTL elapses;
// that staleness window is bounded by Config.Cache.TTL and is an accepted
// trade-off, not a bug.
package orgsession
