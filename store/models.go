package store

import (
	"time"

	"github.com/uptrace/bun"
)

// Session is an issued sign-in session. Immutable except for Revoked.
// TokenHash is the SHA-256 hex of the opaque bearer token; the raw token
// never reaches the database.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID        string    `bun:"id,pk,type:uuid"`
	UserID    string    `bun:"user_id,notnull,type:uuid"`
	TokenHash string    `bun:"token_hash,notnull,unique"`
	IssuedAt  time.Time `bun:"issued_at,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	Revoked   bool      `bun:"revoked,notnull,default:false"`
}

// Membership links a user to an organization with a role. Unique per
// (user, organization); created and deleted by external invite/removal
// flows, read-only here.
type Membership struct {
	bun.BaseModel `bun:"table:memberships,alias:m"`

	UserID         string    `bun:"user_id,pk,type:uuid"`
	OrganizationID string    `bun:"organization_id,pk,type:uuid"`
	Role           string    `bun:"role,notnull"`
	JoinedAt       time.Time `bun:"joined_at,notnull"`
}

// Organization is the minimal organization row this layer needs for
// switch-target existence checks and test fixtures.
type Organization struct {
	bun.BaseModel `bun:"table:organizations,alias:o"`

	ID        string    `bun:"id,pk,type:uuid"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// ActiveOrg is the per-user active-organization pointer. One row per user,
// created lazily; OrganizationID nil means no active organization. Version
// advances on every write and is the tie-break for racing switches.
type ActiveOrg struct {
	bun.BaseModel `bun:"table:active_orgs,alias:ao"`

	UserID         string    `bun:"user_id,pk,type:uuid"`
	OrganizationID *string   `bun:"organization_id,type:uuid"`
	Version        int64     `bun:"version,notnull,default:0"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
}

// Org returns the pointer target, or "" when null.
func (a *ActiveOrg) Org() string {
	if a == nil || a.OrganizationID == nil {
		return ""
	}
	return *a.OrganizationID
}
