package orgsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oakmist/orgsession/internal/usersync"
	"github.com/oakmist/orgsession/sessioncache"
	"github.com/oakmist/orgsession/store"
)

// resolver enforces the active-organization invariant: a non-null pointer
// must reference a current membership. Reads self-heal stale pointers; the
// switch path serializes per user and invalidates every cached context the
// user owns, since active-org is embedded in all of their live sessions.
type resolver struct {
	store   *store.Store
	cache   *sessioncache.Cache
	locks   *usersync.Striped
	metrics *Metrics
	audit   *auditDispatcher
	logger  *zap.Logger
	now     func() time.Time

	// onCacheError feeds coordinator-owned state (error log, breaker).
	onCacheError func(time.Time, error)
}

func storeFailure(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// setActive validates the target membership and persists the new pointer
// with an incremented version. Racing switches are serialized per user; the
// conditional write in the store makes the higher version the deterministic
// winner even across processes.
func (r *resolver) setActive(ctx context.Context, userID, orgID string) (*ActiveOrg, error) {
	exists, err := r.store.OrganizationExists(ctx, orgID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if !exists {
		r.denySwitch(ctx, userID, orgID, ErrOrgNotFound)
		return nil, ErrOrgNotFound
	}

	member, err := r.store.IsMember(ctx, userID, orgID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if !member {
		r.denySwitch(ctx, userID, orgID, ErrNotMember)
		return nil, ErrNotMember
	}

	unlock := r.locks.Lock(userID)
	defer unlock()

	var version int64 = 1
	current, err := r.store.ActiveOrg(ctx, userID)
	switch {
	case err == nil:
		version = current.Version + 1
	case errors.Is(err, store.ErrNotFound):
		// first switch creates the row
	default:
		return nil, storeFailure(err)
	}

	winner, err := r.store.SaveActiveOrg(ctx, &store.ActiveOrg{
		UserID:         userID,
		OrganizationID: &orgID,
		Version:        version,
		UpdatedAt:      r.now(),
	})
	if err != nil {
		return nil, storeFailure(err)
	}

	r.invalidateUser(ctx, userID)

	r.metrics.Inc(MetricOrgSwitch)
	r.audit.Emit(ctx, AuditEvent{
		Timestamp: r.now(),
		EventType: AuditOrgSwitched,
		UserID:    userID,
		OrgID:     winner.Org(),
		Success:   true,
	})

	return &ActiveOrg{
		UserID:         winner.UserID,
		OrganizationID: winner.Org(),
		Version:        winner.Version,
		UpdatedAt:      winner.UpdatedAt,
	}, nil
}

// activeOrg reads the pointer, healing it first when it is null with
// memberships present or references a membership the user no longer holds.
func (r *resolver) activeOrg(ctx context.Context, userID string) (string, error) {
	memberships, err := r.store.MembershipsByUser(ctx, userID)
	if err != nil {
		return "", storeFailure(err)
	}
	return r.resolve(ctx, userID, memberships)
}

// resolve returns the valid active organization for the user given their
// current memberships, repairing the stored pointer when needed. Healing is
// idempotent: a stable pointer short-circuits before any write.
func (r *resolver) resolve(ctx context.Context, userID string, memberships []store.Membership) (string, error) {
	current, err := r.store.ActiveOrg(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", storeFailure(err)
	}

	if stable, org := pointerStable(current, memberships); stable {
		return org, nil
	}

	unlock := r.locks.Lock(userID)
	defer unlock()

	// Re-check under the lock: a concurrent switch or heal may have already
	// repaired the pointer.
	current, err = r.store.ActiveOrg(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", storeFailure(err)
	}
	if stable, org := pointerStable(current, memberships); stable {
		return org, nil
	}

	healed := healTarget(memberships)

	var version int64 = 1
	var stale string
	if current != nil {
		version = current.Version + 1
		stale = current.Org()
	}

	next := &store.ActiveOrg{
		UserID:    userID,
		Version:   version,
		UpdatedAt: r.now(),
	}
	if healed != "" {
		next.OrganizationID = &healed
	}

	winner, err := r.store.SaveActiveOrg(ctx, next)
	if err != nil {
		return "", storeFailure(err)
	}

	r.invalidateUser(ctx, userID)

	r.metrics.Inc(MetricSelfHeal)
	r.logger.Info("healed active organization pointer",
		zap.String("user_id", userID),
		zap.String("stale_org_id", stale),
		zap.String("healed_org_id", winner.Org()),
	)
	r.audit.Emit(ctx, AuditEvent{
		Timestamp: r.now(),
		EventType: AuditOrgSelfHealed,
		UserID:    userID,
		OrgID:     winner.Org(),
		Success:   true,
		Metadata:  map[string]string{"stale_org_id": stale},
	})

	return winner.Org(), nil
}

// pointerStable reports whether the stored pointer already satisfies the
// invariant, and the organization it resolves to.
func pointerStable(current *store.ActiveOrg, memberships []store.Membership) (bool, string) {
	if current == nil {
		// Lazily created on first resolution; only stable when there is
		// nothing to point at.
		return len(memberships) == 0, ""
	}
	org := current.Org()
	if org == "" {
		return len(memberships) == 0, ""
	}
	for _, m := range memberships {
		if m.OrganizationID == org {
			return true, org
		}
	}
	return false, ""
}

// healTarget picks the membership with the earliest join time, relying on
// MembershipsByUser ordering. "" when the user has no memberships.
func healTarget(memberships []store.Membership) string {
	if len(memberships) == 0 {
		return ""
	}
	return memberships[0].OrganizationID
}

// invalidateUser purges every cached context the user owns. Best-effort:
// cache failure is absorbed, recorded, and bounded by TTL staleness.
func (r *resolver) invalidateUser(ctx context.Context, userID string) {
	if err := r.cache.PurgeUser(ctx, userID); err != nil {
		if r.onCacheError != nil {
			r.onCacheError(r.now(), err)
		}
		r.logger.Warn("user cache invalidation failed; entries expire via TTL",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}
	r.metrics.Inc(MetricCacheInvalidation)
}

func (r *resolver) denySwitch(ctx context.Context, userID, orgID string, cause error) {
	r.metrics.Inc(MetricOrgSwitchDenied)
	r.audit.Emit(ctx, AuditEvent{
		Timestamp: r.now(),
		EventType: AuditOrgSwitchDeny,
		UserID:    userID,
		OrgID:     orgID,
		Success:   false,
		Error:     cause.Error(),
	})
}
