// Package token mints and parses short-lived signed context tokens carrying
// a resolved identity (user, active organization, role) for propagation to
// downstream services. Tokens are derived from an already-validated session
// context; this package performs no authentication of its own.
package token
