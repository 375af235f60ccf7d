package orgsession

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/oakmist/orgsession/sessioncache"
	"github.com/oakmist/orgsession/store"
)

// Validate resolves a session token into its SessionContext: user, ordered
// memberships, and the active organization. The fast cache is consulted
// first under a bounded timeout; on miss, timeout, backend error, or an open
// breaker, the context is rebuilt from the authoritative store and, when the
// remaining session lifetime allows, written back with
// ttl = min(Config.Cache.TTL, expiresAt-now).
//
// Cache failures never surface here. Store failures do, as
// [ErrStoreUnavailable]; there is no further fallback.
func (e *Engine) Validate(ctx context.Context, tokenStr string) (*sessioncache.Context, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	start := e.now()
	tokenHash := store.HashToken(tokenStr)

	cacheable := e.breaker.Allow(start)
	if cacheable {
		cctx, err := e.cache.Get(ctx, tokenHash)
		switch {
		case err == nil:
			e.recordCacheSuccess(start)
			e.metrics.Inc(MetricCacheHit)
			e.metrics.Observe(MetricValidateLatency, e.now().Sub(start))
			return cctx, nil
		case errors.Is(err, sessioncache.ErrMiss):
			e.recordCacheSuccess(start)
			e.metrics.Inc(MetricCacheMiss)
		default:
			e.recordCacheError(start, err)
			cacheable = false
		}
	} else {
		e.metrics.Inc(MetricCacheBypass)
	}

	cctx, err := e.loadContext(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	if cacheable {
		e.populateCache(ctx, tokenHash, cctx)
	}

	e.metrics.Observe(MetricValidateLatency, e.now().Sub(start))
	return cctx, nil
}

// loadContext rebuilds a SessionContext from the authoritative store,
// delegating to the resolver so the returned active organization always
// references a live membership.
func (e *Engine) loadContext(ctx context.Context, tokenHash string) (*sessioncache.Context, error) {
	sess, err := e.store.SessionByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metrics.Inc(MetricValidateDenied)
			return nil, ErrUnauthenticated
		}
		return nil, storeFailure(err)
	}

	now := e.now()
	if sess.Revoked {
		e.metrics.Inc(MetricValidateDenied)
		return nil, ErrSessionRevoked
	}
	if !sess.ExpiresAt.After(now) {
		e.metrics.Inc(MetricValidateDenied)
		return nil, ErrSessionExpired
	}

	memberships, err := e.store.MembershipsByUser(ctx, sess.UserID)
	if err != nil {
		return nil, storeFailure(err)
	}

	activeOrg, err := e.resolver.resolve(ctx, sess.UserID, memberships)
	if err != nil {
		return nil, err
	}

	orgs := make([]sessioncache.Membership, 0, len(memberships))
	for _, m := range memberships {
		orgs = append(orgs, sessioncache.Membership{
			OrganizationID: m.OrganizationID,
			Role:           m.Role,
			JoinedAt:       m.JoinedAt,
		})
	}

	e.metrics.Inc(MetricStoreLoad)
	return &sessioncache.Context{
		UserID:        sess.UserID,
		Organizations: orgs,
		ActiveOrgID:   activeOrg,
		ExpiresAt:     sess.ExpiresAt,
	}, nil
}

// populateCache writes a rebuilt context back to the fast cache. Entries
// never outlive their session: TTL is capped at the remaining lifetime, and
// contexts about to expire are not cached at all.
func (e *Engine) populateCache(ctx context.Context, tokenHash string, cctx *sessioncache.Context) {
	now := e.now()

	ttl := e.config.Cache.TTL
	if remaining := cctx.ExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl < minCacheTTL {
		return
	}

	if err := e.cache.Save(ctx, tokenHash, cctx, ttl); err != nil {
		e.recordCacheError(now, err)
	}
}

// Revoke marks the session revoked in the authoritative store, then
// best-effort deletes its cache entry. A concurrent Validate
// holding a cached value may still succeed until that entry's TTL elapses;
// the window is bounded by Config.Cache.TTL. Revoking an unknown token is a
// no-op, keeping sign-out idempotent.
func (e *Engine) Revoke(ctx context.Context, tokenStr string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	tokenHash := store.HashToken(tokenStr)

	if err := e.store.RevokeByTokenHash(ctx, tokenHash); err != nil {
		return storeFailure(err)
	}

	if err := e.cache.Delete(ctx, tokenHash); err != nil {
		e.recordCacheError(e.now(), err)
		e.logger.Warn("revoked session cache entry not deleted; expires via TTL",
			zap.Error(err),
		)
	}

	e.metrics.Inc(MetricRevoke)
	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.now(),
		EventType: AuditSessionRevoked,
		Success:   true,
	})
	return nil
}
