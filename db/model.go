package db

import (
	"time"

	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/lib/pq"
)

// ===========================
// IDENTITY MODELS
// ===========================

// User is either a verified identity (id assigned by the identity provider)
// or a placeholder standing in for an invitee who has not signed up yet.
type User struct {
	ID    string     `db:"id" json:"id"`
	Email string     `db:"email" json:"email"`
	Name  string     `db:"name" json:"name"`
	Role  authz.Role `db:"role" json:"role"`

	// Nil for self-registered users
	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsPlaceholder reports whether the stored email carries the placeholder marker
func (u *User) IsPlaceholder() bool {
	return IsPlaceholderEmail(u.Email)
}

// ContactEmail returns the address the user is reachable at, without any placeholder marker
func (u *User) ContactEmail() string {
	email, _ := UnmarkPlaceholder(u.Email)
	return email
}

// NewUser carries the columns written when provisioning a user
type NewUser struct {
	ID        string
	Email     string
	Name      string
	Role      authz.Role
	CreatedBy string
}

// ===========================
// TENANT MODELS
// ===========================

// Organisation is the tenant root. PrimaryOwnerID is always a member of Owners.
type Organisation struct {
	ID             string         `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	PrimaryOwnerID string         `db:"primary_owner_id" json:"primary_owner_id"`
	Owners         pq.StringArray `db:"owners" json:"owners"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`

	// Populated by listings
	Teams []Team `db:"-" json:"teams,omitempty"`
}

// Team belongs to exactly one organisation. PrimaryManagerID is always a member of Managers.
type Team struct {
	ID               string         `db:"id" json:"id"`
	OrganisationID   string         `db:"organisation_id" json:"organisation_id"`
	Name             string         `db:"name" json:"name"`
	PrimaryManagerID string         `db:"primary_manager_id" json:"primary_manager_id"`
	Managers         pq.StringArray `db:"managers" json:"managers"`
	Members          pq.StringArray `db:"members" json:"members"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}
