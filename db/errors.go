package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUniqueViolation     = errors.New("unique violation")
	ErrIntegrityViolation  = errors.New("integrity violation")
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrEmptyScope is returned when a user scope is requested without a user id
	ErrEmptyScope = errors.New("user scope requires a user id")
	// ErrNoPrimary is returned for primary operations on a relation without a primary identity
	ErrNoPrimary = errors.New("relation has no primary identity")
)

// mapPostgresError maps PostgreSQL-specific errors to sentinel errors.
// Returns the original error if it's not a PostgreSQL error or doesn't match known patterns.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch string(pqErr.Code) {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %s: %w", ErrUniqueViolation, pqErr.Constraint, err)

	case pgerrcode.ForeignKeyViolation,
		pgerrcode.CheckViolation,
		pgerrcode.NotNullViolation,
		pgerrcode.RestrictViolation:
		return fmt.Errorf("%w: %s: %w", ErrIntegrityViolation, pqErr.Constraint, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
		return fmt.Errorf("%w (retryable): %w", ErrTransactionConflict, err)

	case pgerrcode.InsufficientPrivilege:
		// Row-level security rejected a write; callers treat this like an invisible row.
		return fmt.Errorf("%w: %w", ErrNotFound, err)

	default:
		return err
	}
}
