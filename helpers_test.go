package orgsession

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oakmist/orgsession/store"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := store.NewDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := store.CreateTables(context.Background(), db); err != nil {
		t.Fatalf("create tables failed: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return store.New(db)
}

func newTestEngine(t *testing.T, cfg Config, sink AuditSink) (*Engine, *miniredis.Miniredis, *store.Store) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	st := newTestStore(t)

	builder := New().WithConfig(cfg).WithRedis(rdb).WithStore(st)
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}
	e, err := builder.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	t.Cleanup(e.Close)
	return e, mr, st
}

func defaultTestConfig() Config {
	cfg := defaultConfig()
	cfg.Metrics.Enabled = true
	return cfg
}

type fixtureUser struct {
	userID string
	token  string
	orgs   []string
}

// seedUser creates a user with n organizations (joined one minute apart, in
// order), memberships in each, and one live session.
func seedUser(t *testing.T, st *store.Store, orgCount int, lifetime time.Duration) fixtureUser {
	t.Helper()
	ctx := context.Background()

	u := fixtureUser{
		userID: uuid.NewString(),
		token:  uuid.NewString(),
	}

	base := time.Now().Add(-time.Hour).UTC()
	for i := 0; i < orgCount; i++ {
		org, err := st.CreateOrganization(ctx, "org-"+uuid.NewString()[:8])
		if err != nil {
			t.Fatalf("create organization failed: %v", err)
		}
		if _, err := st.CreateMembership(ctx, u.userID, org.ID, "member", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("create membership failed: %v", err)
		}
		u.orgs = append(u.orgs, org.ID)
	}

	if _, err := st.CreateSession(ctx, u.userID, u.token, lifetime); err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	return u
}
