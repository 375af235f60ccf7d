package orgsession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSetActiveOrganizationNotMember(t *testing.T) {
	e, _, st := newTestEngine(t, defaultTestConfig(), nil)
	u := seedUser(t, st, 2, time.Hour)
	ctx := context.Background()

	if _, err := e.SetActiveOrganization(ctx, u.userID, u.orgs[1]); err != nil {
		t.Fatalf("switch failed: %v", err)
	}

	outsider, err := st.CreateOrganization(ctx, "outsider")
	if err != nil {
		t.Fatalf("create organization failed: %v", err)
	}

	_, err = e.SetActiveOrganization(ctx, u.userID, outsider.ID)
	if !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}

	// The rejected switch must leave the prior pointer untouched.
	got, err := e.GetActiveOrganization(ctx, u.userID)
	if err != nil {
		t.Fatalf("get active org failed: %v", err)
	}
	if got != u.orgs[1] {
		t.Fatalf("expected pointer to remain %s, got %s", u.orgs[1], got)
	}
}

func TestSetActiveOrganizationUnknownOrg(t *testing.T) {
	e, _, st := newTestEngine(t, defaultTestConfig(), nil)
	u := seedUser(t, st, 1, time.Hour)

	_, err := e.SetActiveOrganization(context.Background(), u.userID, uuid.NewString())
	if !errors.Is(err, ErrOrgNotFound) {
		t.Fatalf("expected ErrOrgNotFound, got %v", err)
	}
}

func TestSetThenGetActiveOrganization(t *testing.T) {
	e, _, st := newTestEngine(t, defaultTestConfig(), nil)
	u := seedUser(t, st, 3, time.Hour)
	ctx := context.Background()

	ao, err := e.SetActiveOrganization(ctx, u.userID, u.orgs[2])
	if err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	if ao.OrganizationID != u.orgs[2] {
		t.Fatalf("expected %s, got %s", u.orgs[2], ao.OrganizationID)
	}
	if ao.Version < 1 {
		t.Fatalf("expected version to advance, got %d", ao.Version)
	}

	got, err := e.GetActiveOrganization(ctx, u.userID)
	if err != nil {
		t.Fatalf("get active org failed: %v", err)
	}
	if got != u.orgs[2] {
		t.Fatalf("expected %s, got %s", u.orgs[2], got)
	}
}

func TestSwitchInvalidatesAllUserSessions(t *testing.T) {
	e, _, st := newTestEngine(t, defaultTestConfig(), nil)
	u := seedUser(t, st, 2, time.Hour)
	ctx := context.Background()

	// Second device: another live session for the same user.
	secondToken := uuid.NewString()
	if _, err := st.CreateSession(ctx, u.userID, secondToken, time.Hour); err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	for _, tok := range []string{u.token, secondToken} {
		if _, err := e.Validate(ctx, tok); err != nil {
			t.Fatalf("validate failed: %v", err)
		}
	}

	if _, err := e.SetActiveOrganization(ctx, u.userID, u.orgs[1]); err != nil {
		t.Fatalf("switch failed: %v", err)
	}

	// Both sessions must observe the new active org immediately: their
	// cached contexts were purged, so the next read rebuilds from the store.
	for _, tok := range []string{u.token, secondToken} {
		got, err := e.Validate(ctx, tok)
		if err != nil {
			t.Fatalf("validate failed: %v", err)
		}
		if got.ActiveOrgID != u.orgs[1] {
			t.Fatalf("expected active org %s after switch, got %s", u.orgs[1], got.ActiveOrgID)
		}
	}
}

func TestSequentialSwitchesLastWriteWins(t *testing.T) {
	e, _, st := newTestEngine(t, defaultTestConfig(), nil)
	u := seedUser(t, st, 2, time.Hour)
	ctx := context.Background()

	if _, err := e.SetActiveOrganization(ctx, u.userID, u.orgs[0]); err != nil {
		t.Fatalf("switch to A failed: %v", err)
	}
	if _, err := e.SetActiveOrganization(ctx, u.userID, u.orgs[1]); err != nil {
		t.Fatalf("switch to B failed: %v", err)
	}

	got, err := e.GetActiveOrganization(ctx, u.userID)
	if err != nil {
		t.Fatalf("get active org failed: %v", err)
	}
	if got != u.orgs[1] {
		t.Fatalf("expected the later switch to win, got %s", got)
	}
}

func TestConcurrentSwitchesDeterministic(t *testing.T) {
	e, _, st := newTestEngine(t, defaultTestConfig(), nil)
	u := seedUser(t, st, 2, time.Hour)
	ctx := context.Background()

	const rounds = 16
	var wg sync.WaitGroup
	wg.Add(2)
	for g := 0; g < 2; g++ {
		go func(org string) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if _, err := e.SetActiveOrganization(ctx, u.userID, org); err != nil {
					t.Errorf("switch failed: %v", err)
					return
				}
			}
		}(u.orgs[g])
	}
	wg.Wait()

	// Interleavings differ, but the persisted state must be one of the two
	// targets with a version reflecting every write.
	ao, err := st.ActiveOrg(ctx, u.userID)
	if err != nil {
		t.Fatalf("read pointer failed: %v", err)
	}
	if org := ao.Org(); org != u.orgs[0] && org != u.orgs[1] {
		t.Fatalf("pointer holds an interleaved value: %s", org)
	}
	if ao.Version != 2*rounds {
		t.Fatalf("expected version %d, got %d", 2*rounds, ao.Version)
	}
}

func TestGetActiveOrganizationLazyCreation(t *testing.T) {
	e, _, st := newTestEngine(t, defaultTestConfig(), nil)
	u := seedUser(t, st, 2, time.Hour)
	ctx := context.Background()

	// No pointer row yet: first resolution heals to the earliest membership
	// and persists it.
	got, err := e.GetActiveOrganization(ctx, u.userID)
	if err != nil {
		t.Fatalf("get active org failed: %v", err)
	}
	if got != u.orgs[0] {
		t.Fatalf("expected earliest-joined org %s, got %s", u.orgs[0], got)
	}

	ao, err := st.ActiveOrg(ctx, u.userID)
	if err != nil {
		t.Fatalf("expected persisted pointer, got %v", err)
	}
	if ao.Org() != u.orgs[0] {
		t.Fatalf("persisted pointer mismatch: %s", ao.Org())
	}
}

func TestGetActiveOrganizationNoMemberships(t *testing.T) {
	e, _, _ := newTestEngine(t, defaultTestConfig(), nil)

	got, err := e.GetActiveOrganization(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("get active org failed: %v", err)
	}
	if got != "" {
		t.Fatalf("expected no active org, got %s", got)
	}
}

func TestSelfHealAfterMembershipRemoval(t *testing.T) {
	e, _, st := newTestEngine(t, defaultTestConfig(), nil)
	u := seedUser(t, st, 2, time.Hour)
	ctx := context.Background()

	if _, err := e.SetActiveOrganization(ctx, u.userID, u.orgs[0]); err != nil {
		t.Fatalf("switch failed: %v", err)
	}

	// Membership removal happens externally; the dangling pointer is
	// repaired on the next read.
	if err := st.DeleteMembership(ctx, u.userID, u.orgs[0]); err != nil {
		t.Fatalf("delete membership failed: %v", err)
	}

	healed, err := e.GetActiveOrganization(ctx, u.userID)
	if err != nil {
		t.Fatalf("get active org failed: %v", err)
	}
	if healed != u.orgs[1] {
		t.Fatalf("expected heal to %s, got %s", u.orgs[1], healed)
	}
	if got := e.metrics.Value(MetricSelfHeal); got != 1 {
		t.Fatalf("expected 1 self-heal, got %d", got)
	}

	// Idempotence: the repaired pointer is stable, no second repair.
	again, err := e.GetActiveOrganization(ctx, u.userID)
	if err != nil {
		t.Fatalf("get active org failed: %v", err)
	}
	if again != u.orgs[1] {
		t.Fatalf("expected stable %s, got %s", u.orgs[1], again)
	}
	if got := e.metrics.Value(MetricSelfHeal); got != 1 {
		t.Fatalf("heal must not re-trigger, counter now %d", got)
	}
}

func TestSelfHealToNullWhenNoMembershipsRemain(t *testing.T) {
	e, _, st := newTestEngine(t, defaultTestConfig(), nil)
	u := seedUser(t, st, 1, time.Hour)
	ctx := context.Background()

	if _, err := e.SetActiveOrganization(ctx, u.userID, u.orgs[0]); err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	if err := st.DeleteMembership(ctx, u.userID, u.orgs[0]); err != nil {
		t.Fatalf("delete membership failed: %v", err)
	}

	got, err := e.GetActiveOrganization(ctx, u.userID)
	if err != nil {
		t.Fatalf("get active org failed: %v", err)
	}
	if got != "" {
		t.Fatalf("expected null active org, got %s", got)
	}
}
