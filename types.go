package orgsession

import "time"

// ActiveOrg is the persisted active-organization pointer for a user.
// Version increases monotonically; concurrent switches resolve
// last-write-wins by version, never by interleaving.
type ActiveOrg struct {
	UserID         string
	OrganizationID string // empty when the user has no memberships
	Version        int64
	UpdatedAt      time.Time
}
