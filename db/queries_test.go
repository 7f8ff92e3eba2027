package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockQueries(t *testing.T) (*Queries, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &Queries{db: sqlx.NewDb(mockDB, "postgres")}, mock
}

var userCols = []string{"id", "email", "name", "role", "created_by", "created_at"}

func TestQueries_FindUserByEmail(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		email    string
		mockFunc func(mock sqlmock.Sqlmock)
		wantID   string
		wantErr  error
	}{
		{
			name:  "matches raw and placeholder forms, case-folded",
			email: "A@X.com",
			mockFunc: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("WHERE email = $1 OR email = $2")).
					WithArgs("a@x.com", "placeholder:a@x.com").
					WillReturnRows(sqlmock.NewRows(userCols).
						AddRow("ph-1", "placeholder:a@x.com", "a@x.com", "owner", "platform-1", now))
			},
			wantID: "ph-1",
		},
		{
			name:  "no match",
			email: "nobody@x.com",
			mockFunc: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("WHERE email = $1 OR email = $2")).
					WithArgs("nobody@x.com", "placeholder:nobody@x.com").
					WillReturnRows(sqlmock.NewRows(userCols))
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, mock := newMockQueries(t)
			tt.mockFunc(mock)

			u, err := q.FindUserByEmail(context.Background(), tt.email)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, u.ID)
				assert.True(t, u.IsPlaceholder())
				assert.Equal(t, authz.RoleOwner, u.Role)
				require.NotNil(t, u.CreatedBy)
				assert.Equal(t, "platform-1", *u.CreatedBy)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestQueries_CreateUser(t *testing.T) {
	q, mock := newMockQueries(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users (id, email, name, role, created_by)")).
		WithArgs("ph-2", "placeholder:b@x.com", "b@x.com", authz.RoleManager, "owner-1").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("ph-2", "placeholder:b@x.com", "b@x.com", "manager", "owner-1", time.Now()))

	u, err := q.CreateUser(context.Background(), NewUser{
		ID: "ph-2", Email: "placeholder:b@x.com", Name: "b@x.com", Role: authz.RoleManager, CreatedBy: "owner-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ph-2", u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueries_AddRelation(t *testing.T) {
	tests := []struct {
		name      string
		rel       authz.Relation
		statement string
		rows      int64
		wantAdded bool
	}{
		{"new owner", authz.RelationOwners, "INSERT INTO organisation_owners (organisation_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", 1, true},
		{"existing manager", authz.RelationManagers, "INSERT INTO team_managers (team_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", 0, false},
		{"new member", authz.RelationMembers, "INSERT INTO team_members (team_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, mock := newMockQueries(t)
			mock.ExpectExec(exact(tt.statement)).
				WithArgs("res-1", "user-1").
				WillReturnResult(sqlmock.NewResult(0, tt.rows))

			added, err := q.AddRelation(context.Background(), tt.rel, "res-1", "user-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantAdded, added)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("unknown relation", func(t *testing.T) {
		q, mock := newMockQueries(t)
		_, err := q.AddRelation(context.Background(), authz.Relation("admins"), "res-1", "user-1")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestQueries_SetPrimary(t *testing.T) {
	t.Run("moves the primary owner only from the expected user", func(t *testing.T) {
		q, mock := newMockQueries(t)
		mock.ExpectExec(exact("UPDATE organisations SET primary_owner_id = $3 WHERE id = $1 AND primary_owner_id = $2")).
			WithArgs("org-1", "ph-1", "user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		changed, err := q.SetPrimary(context.Background(), authz.RelationOwners, "org-1", "ph-1", "user-1")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("members have no primary", func(t *testing.T) {
		q, _ := newMockQueries(t)
		_, err := q.SetPrimary(context.Background(), authz.RelationMembers, "team-1", "a", "b")
		assert.ErrorIs(t, err, ErrNoPrimary)
	})
}

func TestQueries_DeleteUser(t *testing.T) {
	q, mock := newMockQueries(t)
	mock.ExpectExec(exact("DELETE FROM users WHERE id = $1")).
		WithArgs("ph-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := q.DeleteUser(context.Background(), "ph-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueries_CreateOrganisation(t *testing.T) {
	q, mock := newMockQueries(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO organisation_owners (organisation_id, user_id)")).
		WithArgs("org-1", "Acme", "ph-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "primary_owner_id", "created_at", "owners"}).
			AddRow("org-1", "Acme", "ph-1", time.Now(), "{ph-1}"))

	org, err := q.CreateOrganisation(context.Background(), "org-1", "Acme", "ph-1")
	require.NoError(t, err)
	assert.Equal(t, "ph-1", org.PrimaryOwnerID)
	assert.Equal(t, []string{"ph-1"}, []string(org.Owners))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueries_LockOrganisation(t *testing.T) {
	cols := []string{"id", "name", "primary_owner_id", "created_at", "owners"}

	t.Run("locks an owned organisation", func(t *testing.T) {
		q, mock := newMockQueries(t)
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF o")).
			WithArgs("org-1", "owner-1").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("org-1", "Acme", "owner-1", time.Now(), "{}"))

		org, err := q.LockOrganisation(context.Background(), "org-1", "owner-1")
		require.NoError(t, err)
		assert.Equal(t, "org-1", org.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("out of scope is not found", func(t *testing.T) {
		q, mock := newMockQueries(t)
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF o")).
			WithArgs("org-2", "owner-1").
			WillReturnRows(sqlmock.NewRows(cols))

		_, err := q.LockOrganisation(context.Background(), "org-2", "owner-1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestQueries_ListTeams(t *testing.T) {
	q, mock := newMockQueries(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM teams t")).
		WithArgs("mgr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organisation_id", "name", "primary_manager_id", "created_at", "managers", "members"}).
			AddRow("team-1", "org-1", "Core", "mgr-1", time.Now(), "{mgr-1}", "{m-1,m-2}"))

	teams, err := q.ListTeams(context.Background(), "mgr-1")
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, []string{"mgr-1"}, []string(teams[0].Managers))
	assert.Equal(t, []string{"m-1", "m-2"}, []string(teams[0].Members))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueries_ListTeamsInOrganisations_Empty(t *testing.T) {
	q, mock := newMockQueries(t)
	teams, err := q.ListTeamsInOrganisations(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, teams)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueries_ErrorMapping(t *testing.T) {
	q, mock := newMockQueries(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM organisation_owners")).
		WillReturnError(errors.New("connection reset"))

	_, err := q.RemoveRelation(context.Background(), authz.RelationOwners, "org-1", "user-1")
	assert.EqualError(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
