package orgsession

import "errors"

var (
	// ErrUnauthenticated is returned by Validate when no session matches the token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionExpired is returned by Validate when the session is past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionRevoked is returned by Validate when the session was explicitly revoked.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrNotMember is returned by SetActiveOrganization when the caller has no
	// membership in the target organization. The existing pointer is left untouched.
	ErrNotMember = errors.New("not a member of organization")
	// ErrOrgNotFound is returned by SetActiveOrganization when the target
	// organization does not exist.
	ErrOrgNotFound = errors.New("organization not found")
	// ErrStoreUnavailable is returned when the authoritative store is unreachable.
	// There is no further fallback; callers must surface it as a service error.
	ErrStoreUnavailable = errors.New("authoritative store unavailable")
	// ErrContextTokenDisabled is returned by ContextToken when minting is not configured.
	ErrContextTokenDisabled = errors.New("context tokens disabled")
	// ErrEngineNotReady is returned when an Engine method is called before Build.
	ErrEngineNotReady = errors.New("engine not ready")
)
