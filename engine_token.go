package orgsession

import (
	"context"

	"github.com/oakmist/orgsession/sessioncache"
)

// ContextToken mints a short-lived signed token from an already-validated
// session context, embedding the user, active organization, and role for
// downstream services. The token reflects the context at mint time; an
// organization switch invalidates it only through its own TTL.
//
// Returns [ErrContextTokenDisabled] unless Config.ContextToken.Enabled.
func (e *Engine) ContextToken(_ context.Context, cctx *sessioncache.Context) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if e.tokens == nil {
		return "", ErrContextTokenDisabled
	}
	return e.tokens.Mint(cctx.UserID, cctx.ActiveOrgID, cctx.Role(), e.now())
}

// ParseContextToken verifies a context token minted by this engine.
func (e *Engine) ParseContextToken(tokenStr string) (userID, activeOrg, role string, err error) {
	if e == nil {
		return "", "", "", ErrEngineNotReady
	}
	if e.tokens == nil {
		return "", "", "", ErrContextTokenDisabled
	}
	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		return "", "", "", err
	}
	return claims.UserID, claims.ActiveOrg, claims.Role, nil
}
