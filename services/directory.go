package services

import (
	"context"

	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/distinctlyminty44/role-based-rls/db"
)

// Directory serves the read side: what the actor can see under their own scope.
type Directory struct {
	gateway *db.Gateway
}

func NewDirectory(gateway *db.Gateway) *Directory {
	return &Directory{gateway: gateway}
}

// ListOrganisations returns the organisations the actor owns, with owners and teams.
// Platform actors see every organisation.
func (d *Directory) ListOrganisations(ctx context.Context, actor Actor) ([]db.Organisation, error) {
	if actor.UserID == "" || !authz.Allows(actor.Role, authz.RoleOwner) {
		return nil, ErrUnauthorized
	}

	orgs, err := db.InScope(ctx, d.gateway, actor.scope(), func(sess *db.Session) ([]db.Organisation, error) {
		q := sess.Queries()
		orgs, err := q.ListOrganisations(ctx, actor.predicateID())
		if err != nil {
			return nil, err
		}

		ids := make([]string, 0, len(orgs))
		index := make(map[string]int, len(orgs))
		for i, o := range orgs {
			ids = append(ids, o.ID)
			index[o.ID] = i
		}

		teams, err := q.ListTeamsInOrganisations(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, t := range teams {
			if i, ok := index[t.OrganisationID]; ok {
				orgs[i].Teams = append(orgs[i].Teams, t)
			}
		}
		return orgs, nil
	})
	return orgs, translateStoreError(err)
}

// ListTeams returns the teams the actor manages, with managers and members.
// Platform actors see every team.
func (d *Directory) ListTeams(ctx context.Context, actor Actor) ([]db.Team, error) {
	if actor.UserID == "" || !authz.Allows(actor.Role, authz.RoleManager) {
		return nil, ErrUnauthorized
	}

	teams, err := db.InScope(ctx, d.gateway, actor.scope(), func(sess *db.Session) ([]db.Team, error) {
		return sess.Queries().ListTeams(ctx, actor.predicateID())
	})
	return teams, translateStoreError(err)
}

// Me returns the actor's own user record
func (d *Directory) Me(ctx context.Context, actor Actor) (*db.User, error) {
	if actor.UserID == "" || !actor.Role.Valid() {
		return nil, ErrUnauthorized
	}

	user, err := db.InScope(ctx, d.gateway, db.UserScope(actor.UserID), func(sess *db.Session) (*db.User, error) {
		return sess.Queries().GetUser(ctx, actor.UserID)
	})
	return user, translateStoreError(err)
}
