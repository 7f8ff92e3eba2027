package services

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/distinctlyminty44/role-based-rls/db"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

const scopeSQL = `SELECT set_config('app.bypass_rls', $1, true), set_config('app.current_user_id', $2, true)`

var (
	userCols = []string{"id", "email", "name", "role", "created_by", "created_at"}
	orgCols  = []string{"id", "name", "primary_owner_id", "created_at", "owners"}
	teamCols = []string{"id", "organisation_id", "name", "primary_manager_id", "created_at", "managers", "members"}
)

func newTestGateway(t *testing.T) (*db.Gateway, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return db.NewGateway(sqlx.NewDb(mockDB, "postgres")), mock
}

func sqlFragment(s string) string {
	return regexp.QuoteMeta(s)
}

func expectUserScope(mock sqlmock.Sqlmock, userID string) {
	mock.ExpectExec(sqlFragment(scopeSQL)).WithArgs("off", userID).WillReturnResult(sqlmock.NewResult(0, 1))
}

func expectBypass(mock sqlmock.Sqlmock) {
	mock.ExpectExec(sqlFragment(scopeSQL)).WithArgs("on", "").WillReturnResult(sqlmock.NewResult(0, 1))
}

func userRow(id, email, role string) *sqlmock.Rows {
	return sqlmock.NewRows(userCols).AddRow(id, email, email, role, nil, time.Now())
}

func expectFindByEmail(mock sqlmock.Sqlmock, email string, rows *sqlmock.Rows) {
	mock.ExpectQuery(sqlFragment("WHERE email = $1 OR email = $2")).
		WithArgs(email, db.MarkPlaceholder(email)).
		WillReturnRows(rows)
}
