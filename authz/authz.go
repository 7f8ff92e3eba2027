// Package authz provides the role hierarchy used for every authorization decision.
// This package follows a single-authority model:
// - Role: closed four-tier enumeration (platform > owner > manager > member)
// - Allows: the only tier comparison endpoints are permitted to make
// - Relation: the owner/manager/member sets a user can hold on organisations and teams
package authz

import (
	"fmt"
	"strings"
)

// Role represents a user's platform-wide role
type Role string

const (
	RolePlatform Role = "platform" // Operates the whole platform
	RoleOwner    Role = "owner"    // Owns one or more organisations
	RoleManager  Role = "manager"  // Manages one or more teams
	RoleMember   Role = "member"   // Belongs to teams
)

// Tier is a role's rank. Lower numbers carry more privilege.
type Tier int

const (
	TierPlatform Tier = iota
	TierOwner
	TierManager
	TierMember
)

// tierUnknown ranks below every real role so unknown roles are never allowed anything.
const tierUnknown Tier = 1 << 10

var tiers = map[Role]Tier{
	RolePlatform: TierPlatform,
	RoleOwner:    TierOwner,
	RoleManager:  TierManager,
	RoleMember:   TierMember,
}

// Roles lists every role from most to least privileged
func Roles() []Role {
	return []Role{RolePlatform, RoleOwner, RoleManager, RoleMember}
}

// TierOf returns the rank of a role
func TierOf(role Role) Tier {
	if t, ok := tiers[role]; ok {
		return t
	}
	return tierUnknown
}

// Allows reports whether actor sits at or above the required tier.
// An unknown actor role is never allowed; an unknown required role is never satisfiable.
func Allows(actor, required Role) bool {
	if !actor.Valid() || !required.Valid() {
		return false
	}
	return TierOf(actor) <= TierOf(required)
}

// Valid reports whether r is one of the four known roles
func (r Role) Valid() bool {
	_, ok := tiers[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a stored or transported role name into a Role
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Higher returns the more privileged of two roles
func Higher(a, b Role) Role {
	if TierOf(b) < TierOf(a) {
		return b
	}
	return a
}

// Relation names a set of users attached to an organisation or team
type Relation string

const (
	RelationOwners   Relation = "owners"   // organisation owners
	RelationManagers Relation = "managers" // team managers
	RelationMembers  Relation = "members"  // team members
)

// ParseTeamRelation accepts the two relations a team user can be added to
func ParseTeamRelation(s string) (Relation, error) {
	switch Relation(s) {
	case RelationManagers, RelationMembers:
		return Relation(s), nil
	default:
		return "", fmt.Errorf("unknown team relation %q", s)
	}
}

// HasPrimary reports whether the relation carries a designated primary identity
func (r Relation) HasPrimary() bool {
	return r == RelationOwners || r == RelationManagers
}

// MinimumRole returns the least privileged role able to hold the relation
func (r Relation) MinimumRole() Role {
	switch r {
	case RelationOwners:
		return RoleOwner
	case RelationManagers:
		return RoleManager
	default:
		return RoleMember
	}
}

// TransferableRelations returns the relation sets moved from a placeholder identity
// to its verified identity, in the order they must be migrated.
// Member-tier placeholders hold nothing worth transferring.
func TransferableRelations(role Role) []Relation {
	switch role {
	case RolePlatform, RoleOwner:
		return []Relation{RelationOwners, RelationManagers, RelationMembers}
	case RoleManager:
		return []Relation{RelationManagers, RelationMembers}
	default:
		return nil
	}
}
