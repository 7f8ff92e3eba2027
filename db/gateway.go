package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ScopeKind selects how row-level security treats a transaction
type ScopeKind int

const (
	ScopeUser ScopeKind = iota
	ScopeBypass
)

func (k ScopeKind) String() string {
	if k == ScopeBypass {
		return "bypass"
	}
	return "user"
}

// Scope is the security context a transaction runs under: one user's tenants, or everything.
type Scope struct {
	kind   ScopeKind
	userID string
}

// UserScope restricts visible rows to the tenants of userID
func UserScope(userID string) Scope {
	return Scope{kind: ScopeUser, userID: userID}
}

// BypassScope disables row isolation. Reserved for trusted internal flows.
func BypassScope() Scope {
	return Scope{kind: ScopeBypass}
}

func (s Scope) Kind() ScopeKind { return s.kind }
func (s Scope) UserID() string  { return s.userID }

func (s Scope) String() string {
	if s.kind == ScopeBypass {
		return "bypass"
	}
	return "user:" + s.userID
}

// Both variables are transaction-local (is_local = true) and vanish at commit or rollback.
const setScopeSQL = `SELECT set_config('app.bypass_rls', $1, true), set_config('app.current_user_id', $2, true)`

func applyScope(ctx context.Context, tx sqlx.ExecerContext, scope Scope) error {
	bypass := "off"
	if scope.kind == ScopeBypass {
		bypass = "on"
	}
	if _, err := tx.ExecContext(ctx, setScopeSQL, bypass, scope.userID); err != nil {
		return fmt.Errorf("apply %s scope: %w", scope.kind, mapPostgresError(err))
	}
	return nil
}

// Gateway runs store work inside scoped transactions.
// It is the only way the rest of the service reaches the database.
type Gateway struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

func NewGateway(db *sqlx.DB) *Gateway {
	return &Gateway{
		db:     db,
		tracer: otel.Tracer("github.com/distinctlyminty44/role-based-rls/db"),
	}
}

// Run begins a READ COMMITTED transaction, applies scope on it, and runs fn.
// The transaction commits when fn returns nil and rolls back on error, panic or context cancellation.
func (g *Gateway) Run(ctx context.Context, scope Scope, fn func(*Session) error) error {
	if scope.kind == ScopeUser && scope.userID == "" {
		return ErrEmptyScope
	}

	ctx, span := g.tracer.Start(ctx, "db.scoped_tx",
		trace.WithAttributes(attribute.String("scope.kind", scope.kind.String())))
	defer span.End()

	tx, err := g.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("begin transaction: %w", mapPostgresError(err))
	}
	// Rollback after a successful commit is a no-op
	defer func() { _ = tx.Rollback() }()

	if err := applyScope(ctx, tx, scope); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply scope")
		return err
	}

	sess := &Session{tx: tx, scope: scope, queries: &Queries{db: tx}}
	if err := fn(sess); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
		return err
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("commit transaction: %w", mapPostgresError(err))
	}
	return nil
}

// WithUserScope runs fn with visibility restricted to userID's tenants
func (g *Gateway) WithUserScope(ctx context.Context, userID string, fn func(*Session) error) error {
	return g.Run(ctx, UserScope(userID), fn)
}

// WithBypass runs fn with row isolation disabled
func (g *Gateway) WithBypass(ctx context.Context, fn func(*Session) error) error {
	return g.Run(ctx, BypassScope(), fn)
}

// InScope runs fn through the gateway and returns its value
func InScope[T any](ctx context.Context, g *Gateway, scope Scope, fn func(*Session) (T, error)) (T, error) {
	var result T
	err := g.Run(ctx, scope, func(s *Session) error {
		var err error
		result, err = fn(s)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Session is one scoped transaction. It must not be used after the Run callback returns.
type Session struct {
	tx      *sqlx.Tx
	scope   Scope
	queries *Queries
}

func (s *Session) Scope() Scope { return s.scope }

// Queries returns the typed store operations bound to this transaction
func (s *Session) Queries() *Queries { return s.queries }

// Elevate switches the transaction to bypass scope for the duration of fn and then restores the
// original scope. A failing fn leaves the session elevated; its transaction must be abandoned.
func (s *Session) Elevate(ctx context.Context, fn func() error) error {
	if s.scope.kind == ScopeBypass {
		return fn()
	}

	if err := applyScope(ctx, s.tx, BypassScope()); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return applyScope(ctx, s.tx, s.scope)
}

// Savepoint runs fn so that its failure undoes only fn's own writes.
// The enclosing transaction remains usable after fn fails.
func (s *Session) Savepoint(ctx context.Context, name string, fn func() error) error {
	ident := pq.QuoteIdentifier(name)

	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+ident); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, mapPostgresError(err))
	}

	if err := fn(); err != nil {
		if _, rbErr := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+ident); rbErr != nil {
			log.Error().Err(rbErr).Str("savepoint", name).Msg("rollback to savepoint failed")
			return fmt.Errorf("rollback to savepoint %s: %w", name, mapPostgresError(rbErr))
		}
		return err
	}

	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+ident); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, mapPostgresError(err))
	}
	return nil
}
