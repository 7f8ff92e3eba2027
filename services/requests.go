package services

import (
	"strings"

	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/distinctlyminty44/role-based-rls/db"
)

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID string
	Role   authz.Role
}

// scope picks the row-level security context for the actor's transaction.
// Platform actors see every tenant.
func (a Actor) scope() db.Scope {
	if a.Role == authz.RolePlatform {
		return db.BypassScope()
	}
	return db.UserScope(a.UserID)
}

// predicateID is the user the explicit ownership predicates are checked against.
// Empty for platform actors, who are not limited to their own tenants.
func (a Actor) predicateID() string {
	if a.Role == authz.RolePlatform {
		return ""
	}
	return a.UserID
}

// Invitee identifies the person an invitation targets: ByEmail or ByUserID.
type Invitee interface {
	isInvitee()
}

// ByEmail invites whoever owns, or will own, the address
type ByEmail struct {
	Email string
}

// ByUserID invites an existing user
type ByUserID struct {
	UserID string
}

func (ByEmail) isInvitee()  {}
func (ByUserID) isInvitee() {}

// NewInvitee builds an Invitee from optional transport fields.
// userID takes precedence; email is only consulted when userID is empty.
func NewInvitee(email, userID string) (Invitee, error) {
	userID = strings.TrimSpace(userID)
	email = strings.TrimSpace(email)

	switch {
	case userID != "":
		return ByUserID{UserID: userID}, nil
	case email != "":
		if !looksLikeEmail(email) {
			return nil, newValidationError("email", "must be an email address")
		}
		return ByEmail{Email: email}, nil
	default:
		return nil, newValidationError("email", "email or userId is required")
	}
}

func looksLikeEmail(s string) bool {
	local, domain, ok := strings.Cut(s, "@")
	return ok && local != "" && domain != "" && !strings.ContainsAny(s, " \t\r\n") &&
		!strings.HasPrefix(s, db.PlaceholderMarker)
}

// CreateOrganisationRequest creates an organisation whose sole owner is Owner
type CreateOrganisationRequest struct {
	Name  string
	Owner Invitee
}

func (r CreateOrganisationRequest) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(r.Name) == "" {
		verr.add("name", "is required")
	}
	if r.Owner == nil {
		verr.add("email", "email or userId is required")
	}
	return verr.orNil()
}

// CreateTeamRequest creates a team in OrganisationID whose sole manager is Manager
type CreateTeamRequest struct {
	OrganisationID string
	Name           string
	Manager        Invitee
}

func (r CreateTeamRequest) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(r.OrganisationID) == "" {
		verr.add("organisationId", "is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		verr.add("name", "is required")
	}
	if r.Manager == nil {
		verr.add("email", "email or userId is required")
	}
	return verr.orNil()
}

// CreateOwnTeamRequest creates a team managed by the acting user
type CreateOwnTeamRequest struct {
	OrganisationID string
	Name           string
}

func (r CreateOwnTeamRequest) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(r.OrganisationID) == "" {
		verr.add("organisationId", "is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		verr.add("name", "is required")
	}
	return verr.orNil()
}

// AddOrganisationOwnerRequest adds Owner to an organisation's owners
type AddOrganisationOwnerRequest struct {
	OrganisationID string
	Owner          Invitee
}

func (r AddOrganisationOwnerRequest) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(r.OrganisationID) == "" {
		verr.add("organisationId", "is required")
	}
	if r.Owner == nil {
		verr.add("email", "email or userId is required")
	}
	return verr.orNil()
}

// AddTeamUserRequest adds User to a team's managers or members
type AddTeamUserRequest struct {
	TeamID   string
	Relation authz.Relation
	User     Invitee
}

func (r AddTeamUserRequest) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(r.TeamID) == "" {
		verr.add("teamId", "is required")
	}
	if _, err := authz.ParseTeamRelation(string(r.Relation)); err != nil {
		verr.add("userType", "must be managers or members")
	}
	if r.User == nil {
		verr.add("email", "email or userId is required")
	}
	return verr.orNil()
}
