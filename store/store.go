package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("record not found")

// HashToken derives the deterministic lookup key for an opaque session
// token. Used for both the sessions table and cache keys so raw tokens
// never leave the request path.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Store is the bun-backed repository for sessions, memberships, and
// active-organization pointers.
type Store struct {
	db *bun.DB
}

// New creates a Store on an open bun database.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for schema management.
func (s *Store) DB() *bun.DB {
	return s.db
}

// SessionByTokenHash is the primary authentication lookup.
func (s *Store) SessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	sess := new(Session)
	err := s.db.NewSelect().
		Model(sess).
		Where("token_hash = ?", tokenHash).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session by token hash: %w", err)
	}
	return sess, nil
}

// CreateSession issues a session row for an already-authenticated user.
// Credential verification happens before this call, outside this module.
func (s *Store) CreateSession(ctx context.Context, userID, token string, lifetime time.Duration) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: HashToken(token),
		IssuedAt:  now,
		ExpiresAt: now.Add(lifetime),
	}
	if _, err := s.db.NewInsert().Model(sess).Exec(ctx); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// RevokeByTokenHash marks a session revoked. Revoking an unknown or
// already-revoked session is not an error; sign-out must be idempotent.
func (s *Store) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := s.db.NewUpdate().
		Model((*Session)(nil)).
		Set("revoked = ?", true).
		Where("token_hash = ?", tokenHash).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// PurgeExpired deletes sessions past their expiry. Intended for a periodic
// operator sweep; returns the number of rows removed.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*Session)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	return n, nil
}

// MembershipsByUser returns the user's memberships ordered by join time
// ascending. The first element is the self-heal fallback target.
func (s *Store) MembershipsByUser(ctx context.Context, userID string) ([]Membership, error) {
	var memberships []Membership
	err := s.db.NewSelect().
		Model(&memberships).
		Where("user_id = ?", userID).
		Order("joined_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get memberships: %w", err)
	}
	return memberships, nil
}

// IsMember reports whether a (user, organization) membership row exists.
func (s *Store) IsMember(ctx context.Context, userID, orgID string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*Membership)(nil)).
		Where("user_id = ?", userID).
		Where("organization_id = ?", orgID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// OrganizationExists reports whether the organization row exists.
func (s *Store) OrganizationExists(ctx context.Context, orgID string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*Organization)(nil)).
		Where("id = ?", orgID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check organization: %w", err)
	}
	return exists, nil
}

// ActiveOrg reads the user's pointer. ErrNotFound when the row was never
// created; callers treat that the same as a null pointer.
func (s *Store) ActiveOrg(ctx context.Context, userID string) (*ActiveOrg, error) {
	ao := new(ActiveOrg)
	err := s.db.NewSelect().
		Model(ao).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get active org: %w", err)
	}
	return ao, nil
}

// SaveActiveOrg writes the pointer with last-write-wins semantics: the row
// only changes when the incoming version is higher than the stored one, so a
// stale in-flight write can never overwrite a newer switch. The persisted
// winner is returned regardless of whether this write took effect.
func (s *Store) SaveActiveOrg(ctx context.Context, ao *ActiveOrg) (*ActiveOrg, error) {
	_, err := s.db.NewInsert().
		Model(ao).
		On("CONFLICT (user_id) DO UPDATE").
		Set("organization_id = EXCLUDED.organization_id").
		Set("version = EXCLUDED.version").
		Set("updated_at = EXCLUDED.updated_at").
		Where("ao.version < EXCLUDED.version").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("save active org: %w", err)
	}
	return s.ActiveOrg(ctx, ao.UserID)
}

// CreateOrganization inserts an organization row. Fixture/admin surface;
// organization CRUD proper lives outside this module.
func (s *Store) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	org := &Organization{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(org).Exec(ctx); err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	return org, nil
}

// CreateMembership inserts a membership row. Invite acceptance is external;
// this is its storage interface and the test fixture path.
func (s *Store) CreateMembership(ctx context.Context, userID, orgID, role string, joinedAt time.Time) (*Membership, error) {
	m := &Membership{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           role,
		JoinedAt:       joinedAt.UTC(),
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return nil, fmt.Errorf("create membership: %w", err)
	}
	return m, nil
}

// DeleteMembership removes a membership row. Member removal is external;
// this is its storage interface and the self-heal test path.
func (s *Store) DeleteMembership(ctx context.Context, userID, orgID string) error {
	_, err := s.db.NewDelete().
		Model((*Membership)(nil)).
		Where("user_id = ?", userID).
		Where("organization_id = ?", orgID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}
