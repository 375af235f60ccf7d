// Package sessioncache is the Redis fast-path adapter for resolved session
// contexts.
//
// # Design
//
// Each entry is a versioned, binary-encoded [Context] keyed by token hash
// with a TTL. Alongside every entry the cache maintains a per-user SET of
// live entry keys, written atomically by the same script, so that an
// active-organization change can invalidate every session of a user without
// scanning the key space. Every call is bounded by the configured timeout;
// timeouts, pool exhaustion, and connection failures are all reported as
// [ErrUnavailable] so the coordinator can fall back to the store and feed
// its circuit breaker.
//
// # What this package must NOT do
//
//   - Treat its contents as authoritative. On any divergence the relational
//     store wins; entries are disposable.
//   - Store raw session tokens. Keys are derived from token hashes computed
//     by the caller.
//   - Block past the configured per-call timeout.
package sessioncache
