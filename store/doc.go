// Package store is the authoritative persistence layer for sessions,
// memberships, and active-organization pointers, built on the bun ORM.
//
// It supports PostgreSQL (pgdriver) and SQLite (modernc.org/sqlite), selected
// by DSN. The store is always consistent and always wins over the cache; it
// is slower than the cache and its outage is fatal to the request path.
//
// Session rows are keyed by token hash; raw tokens are never persisted.
// Membership rows are written by external invite/removal flows; this layer
// only reads them. Active-organization pointers are versioned and advance
// monotonically so concurrent switches resolve last-write-wins.
package store
