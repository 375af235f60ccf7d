package orgsession

import "context"

// SetActiveOrganization switches the user's active organization. The target
// must exist and the user must hold a membership in it; failures leave the
// existing pointer untouched, giving callers a safe basis for optimistic UI.
// On success every cached context belonging to the user is invalidated, so
// all of their live sessions observe the switch on next resolution.
//
// Returns [ErrNotMember], [ErrOrgNotFound], or [ErrStoreUnavailable].
func (e *Engine) SetActiveOrganization(ctx context.Context, userID, orgID string) (*ActiveOrg, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	return e.resolver.setActive(ctx, userID, orgID)
}

// GetActiveOrganization returns the user's active organization ID, or ""
// when they have none. A pointer that is null with memberships present, or
// that references a membership the user no longer holds, is healed first:
// the earliest-joined membership becomes the new target (or null when no
// memberships remain), the corrected pointer is persisted, and the healed
// value is returned. Healing is idempotent and is not an error.
func (e *Engine) GetActiveOrganization(ctx context.Context, userID string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}
	return e.resolver.activeOrg(ctx, userID)
}
