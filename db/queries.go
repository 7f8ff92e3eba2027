package db

import (
	"context"
	"fmt"

	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Queries holds every statement the service runs. It is only reachable through a Session,
// so each call executes on the scoped transaction.
type Queries struct {
	db sqlx.ExtContext
}

// ===========================
// USERS
// ===========================

const userColumns = `id, email, name, role, created_by, created_at`

// FindUserByEmail returns the user stored under email or under its placeholder form.
// A verified user wins over a placeholder for the same address.
func (q *Queries) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)

	var u User
	err := sqlx.GetContext(ctx, q.db, &u, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1 OR email = $2
		ORDER BY (email = $1) DESC
		LIMIT 1
	`, email, MarkPlaceholder(email))
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &u, nil
}

func (q *Queries) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := sqlx.GetContext(ctx, q.db, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &u, nil
}

// GetUserByStoredEmail matches the stored email exactly, marker included
func (q *Queries) GetUserByStoredEmail(ctx context.Context, storedEmail string) (*User, error) {
	var u User
	err := sqlx.GetContext(ctx, q.db, &u, `SELECT `+userColumns+` FROM users WHERE email = $1`, storedEmail)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &u, nil
}

// FindPlaceholderForUpdate locks the placeholder user standing in for email
func (q *Queries) FindPlaceholderForUpdate(ctx context.Context, email string) (*User, error) {
	var u User
	err := sqlx.GetContext(ctx, q.db, &u, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
		FOR UPDATE
	`, MarkPlaceholder(email))
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &u, nil
}

func (q *Queries) CreateUser(ctx context.Context, nu NewUser) (*User, error) {
	var createdBy *string
	if nu.CreatedBy != "" {
		createdBy = &nu.CreatedBy
	}

	var u User
	err := sqlx.GetContext(ctx, q.db, &u, `
		INSERT INTO users (id, email, name, role, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		nu.ID, nu.Email, nu.Name, nu.Role, createdBy)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &u, nil
}

// UpsertVerifiedUser records a user confirmed by the identity provider
func (q *Queries) UpsertVerifiedUser(ctx context.Context, id, email, name string, role authz.Role) (*User, error) {
	var u User
	err := sqlx.GetContext(ctx, q.db, &u, `
		INSERT INTO users (id, email, name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name, role = EXCLUDED.role
		RETURNING `+userColumns,
		id, NormalizeEmail(email), name, role)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &u, nil
}

func (q *Queries) SetUserRole(ctx context.Context, id string, role authz.Role) error {
	res, err := q.db.ExecContext(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, role)
	if err != nil {
		return mapPostgresError(err)
	}
	return requireRow(res)
}

func (q *Queries) DeleteUser(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapPostgresError(err)
	}
	return requireRow(res)
}

// ===========================
// RELATIONS
// ===========================

// relationStatements holds the fixed SQL for one relation set.
// Members carry no primary identity, so setPrimary is empty for them.
type relationStatements struct {
	heldBy     string
	add        string
	remove     string
	setPrimary string
}

var relations = map[authz.Relation]relationStatements{
	authz.RelationOwners: {
		heldBy:     `SELECT organisation_id FROM organisation_owners WHERE user_id = $1 ORDER BY organisation_id`,
		add:        `INSERT INTO organisation_owners (organisation_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		remove:     `DELETE FROM organisation_owners WHERE organisation_id = $1 AND user_id = $2`,
		setPrimary: `UPDATE organisations SET primary_owner_id = $3 WHERE id = $1 AND primary_owner_id = $2`,
	},
	authz.RelationManagers: {
		heldBy:     `SELECT team_id FROM team_managers WHERE user_id = $1 ORDER BY team_id`,
		add:        `INSERT INTO team_managers (team_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		remove:     `DELETE FROM team_managers WHERE team_id = $1 AND user_id = $2`,
		setPrimary: `UPDATE teams SET primary_manager_id = $3 WHERE id = $1 AND primary_manager_id = $2`,
	},
	authz.RelationMembers: {
		heldBy: `SELECT team_id FROM team_members WHERE user_id = $1 ORDER BY team_id`,
		add:    `INSERT INTO team_members (team_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		remove: `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`,
	},
}

func statementsFor(rel authz.Relation) (relationStatements, error) {
	st, ok := relations[rel]
	if !ok {
		return relationStatements{}, fmt.Errorf("unknown relation %q", rel)
	}
	return st, nil
}

// ResourcesHeldBy returns the ids of organisations or teams where userID is in rel, in lock order
func (q *Queries) ResourcesHeldBy(ctx context.Context, rel authz.Relation, userID string) ([]string, error) {
	st, err := statementsFor(rel)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := sqlx.SelectContext(ctx, q.db, &ids, st.heldBy, userID); err != nil {
		return nil, mapPostgresError(err)
	}
	return ids, nil
}

// AddRelation puts userID into rel of resourceID. added is false when it was already there.
func (q *Queries) AddRelation(ctx context.Context, rel authz.Relation, resourceID, userID string) (added bool, err error) {
	st, err := statementsFor(rel)
	if err != nil {
		return false, err
	}
	res, err := q.db.ExecContext(ctx, st.add, resourceID, userID)
	if err != nil {
		return false, mapPostgresError(err)
	}
	return affected(res)
}

// RemoveRelation takes userID out of rel of resourceID
func (q *Queries) RemoveRelation(ctx context.Context, rel authz.Relation, resourceID, userID string) (removed bool, err error) {
	st, err := statementsFor(rel)
	if err != nil {
		return false, err
	}
	res, err := q.db.ExecContext(ctx, st.remove, resourceID, userID)
	if err != nil {
		return false, mapPostgresError(err)
	}
	return affected(res)
}

// SetPrimary moves the primary identity of resourceID from one user to another.
// It only changes rows whose current primary is from; to must already be in rel.
func (q *Queries) SetPrimary(ctx context.Context, rel authz.Relation, resourceID, from, to string) (changed bool, err error) {
	st, err := statementsFor(rel)
	if err != nil {
		return false, err
	}
	if st.setPrimary == "" {
		return false, fmt.Errorf("%w: %s", ErrNoPrimary, rel)
	}
	res, err := q.db.ExecContext(ctx, st.setPrimary, resourceID, from, to)
	if err != nil {
		return false, mapPostgresError(err)
	}
	return affected(res)
}

// ===========================
// ORGANISATIONS & TEAMS
// ===========================

// CreateOrganisation inserts the organisation together with its sole owner in one statement,
// so the primary owner is an owner from the first observable moment.
func (q *Queries) CreateOrganisation(ctx context.Context, id, name, ownerID string) (*Organisation, error) {
	var o Organisation
	err := sqlx.GetContext(ctx, q.db, &o, `
		WITH org AS (
			INSERT INTO organisations (id, name, primary_owner_id)
			VALUES ($1, $2, $3)
			RETURNING id, name, primary_owner_id, created_at
		), owner AS (
			INSERT INTO organisation_owners (organisation_id, user_id)
			SELECT id, primary_owner_id FROM org
		)
		SELECT id, name, primary_owner_id, created_at, ARRAY[primary_owner_id] AS owners
		FROM org
	`, id, name, ownerID)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &o, nil
}

// CreateTeam inserts the team together with its sole manager in one statement
func (q *Queries) CreateTeam(ctx context.Context, id, organisationID, name, managerID string) (*Team, error) {
	var t Team
	err := sqlx.GetContext(ctx, q.db, &t, `
		WITH team AS (
			INSERT INTO teams (id, organisation_id, name, primary_manager_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id, organisation_id, name, primary_manager_id, created_at
		), manager AS (
			INSERT INTO team_managers (team_id, user_id)
			SELECT id, primary_manager_id FROM team
		)
		SELECT id, organisation_id, name, primary_manager_id, created_at,
			ARRAY[primary_manager_id] AS managers, '{}'::text[] AS members
		FROM team
	`, id, organisationID, name, managerID)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &t, nil
}

// LockOrganisation row-locks the organisation for the rest of the transaction.
// A non-empty ownerID additionally requires that user to be one of its owners.
// Organisations outside the session's scope report ErrNotFound.
func (q *Queries) LockOrganisation(ctx context.Context, id, ownerID string) (*Organisation, error) {
	var o Organisation
	err := sqlx.GetContext(ctx, q.db, &o, `
		SELECT o.id, o.name, o.primary_owner_id, o.created_at, '{}'::text[] AS owners
		FROM organisations o
		WHERE o.id = $1
		  AND ($2 = '' OR EXISTS (
			SELECT 1 FROM organisation_owners oo
			WHERE oo.organisation_id = o.id AND oo.user_id = $2
		  ))
		FOR UPDATE OF o
	`, id, ownerID)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &o, nil
}

// LockTeam row-locks the team. A non-empty managerID requires that user to manage it.
func (q *Queries) LockTeam(ctx context.Context, id, managerID string) (*Team, error) {
	var t Team
	err := sqlx.GetContext(ctx, q.db, &t, `
		SELECT t.id, t.organisation_id, t.name, t.primary_manager_id, t.created_at,
			'{}'::text[] AS managers, '{}'::text[] AS members
		FROM teams t
		WHERE t.id = $1
		  AND ($2 = '' OR EXISTS (
			SELECT 1 FROM team_managers tm
			WHERE tm.team_id = t.id AND tm.user_id = $2
		  ))
		FOR UPDATE OF t
	`, id, managerID)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &t, nil
}

// ListOrganisations returns visible organisations with their owner sets.
// A non-empty ownerID narrows the list to organisations that user owns.
func (q *Queries) ListOrganisations(ctx context.Context, ownerID string) ([]Organisation, error) {
	orgs := []Organisation{}
	err := sqlx.SelectContext(ctx, q.db, &orgs, `
		SELECT o.id, o.name, o.primary_owner_id, o.created_at,
			COALESCE(
				(SELECT array_agg(oo.user_id ORDER BY oo.user_id) FROM organisation_owners oo WHERE oo.organisation_id = o.id),
				'{}'
			) AS owners
		FROM organisations o
		WHERE $1 = '' OR EXISTS (
			SELECT 1 FROM organisation_owners mine
			WHERE mine.organisation_id = o.id AND mine.user_id = $1
		)
		ORDER BY o.created_at, o.id
	`, ownerID)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return orgs, nil
}

const teamListColumns = `
	t.id, t.organisation_id, t.name, t.primary_manager_id, t.created_at,
	COALESCE(
		(SELECT array_agg(tm.user_id ORDER BY tm.user_id) FROM team_managers tm WHERE tm.team_id = t.id),
		'{}'
	) AS managers,
	COALESCE(
		(SELECT array_agg(tu.user_id ORDER BY tu.user_id) FROM team_members tu WHERE tu.team_id = t.id),
		'{}'
	) AS members`

// ListTeams returns visible teams with their manager and member sets.
// A non-empty managerID narrows the list to teams that user manages.
func (q *Queries) ListTeams(ctx context.Context, managerID string) ([]Team, error) {
	teams := []Team{}
	err := sqlx.SelectContext(ctx, q.db, &teams, `
		SELECT `+teamListColumns+`
		FROM teams t
		WHERE $1 = '' OR EXISTS (
			SELECT 1 FROM team_managers mine
			WHERE mine.team_id = t.id AND mine.user_id = $1
		)
		ORDER BY t.created_at, t.id
	`, managerID)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return teams, nil
}

// ListTeamsInOrganisations returns the visible teams of the given organisations
func (q *Queries) ListTeamsInOrganisations(ctx context.Context, organisationIDs []string) ([]Team, error) {
	teams := []Team{}
	if len(organisationIDs) == 0 {
		return teams, nil
	}
	err := sqlx.SelectContext(ctx, q.db, &teams, `
		SELECT `+teamListColumns+`
		FROM teams t
		WHERE t.organisation_id = ANY($1)
		ORDER BY t.created_at, t.id
	`, pq.Array(organisationIDs))
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return teams, nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func affected(res rowsAffecter) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func requireRow(res rowsAffecter) error {
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
