package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/distinctlyminty44/role-based-rls/db"
)

var (
	// ErrUnauthorized is a tier failure. It never says why.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound covers targets that do not exist and targets outside the actor's scope alike
	ErrNotFound = errors.New("not found")
	// ErrReferentialIntegrity means the store rejected a write that would break an ownership invariant
	ErrReferentialIntegrity = errors.New("referential integrity violation")
)

// ValidationError lists the offending input fields and why each was rejected
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, reason string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = reason
}

// orNil returns nil when no field was rejected
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func newValidationError(field, reason string) *ValidationError {
	e := &ValidationError{}
	e.add(field, reason)
	return e
}

// translateStoreError maps store sentinels onto the service taxonomy
func translateStoreError(err error) error {
	var verr *ValidationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &verr),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrReferentialIntegrity):
		return err
	case errors.Is(err, db.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, db.ErrIntegrityViolation):
		return fmt.Errorf("%w: %w", ErrReferentialIntegrity, err)
	default:
		return err
	}
}
