package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/distinctlyminty44/role-based-rls/db"
	"github.com/distinctlyminty44/role-based-rls/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Resolution is the outcome of resolving an invitee to a user id
type Resolution int

const (
	// ResolutionFailed means no id was produced; the enclosing mutation must become a no-op
	ResolutionFailed Resolution = iota
	ResolutionFoundExisting
	ResolutionCreated
)

func (r Resolution) String() string {
	switch r {
	case ResolutionFoundExisting:
		return "found_existing"
	case ResolutionCreated:
		return "created"
	default:
		return "failed"
	}
}

func (r Resolution) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ResolvedIdentity is the user an invitation applies to
type ResolvedIdentity struct {
	UserID      string
	Outcome     Resolution
	Placeholder bool
}

// OK reports whether a user id was produced
func (r ResolvedIdentity) OK() bool {
	return r.Outcome != ResolutionFailed && r.UserID != ""
}

const resolveSavepoint = "resolve_identity"

// IdentityResolver turns an invitee into a user id, provisioning a placeholder user
// for addresses nobody has signed up with yet.
type IdentityResolver struct {
	metrics *telemetry.Metrics
}

func NewIdentityResolver() *IdentityResolver {
	return &IdentityResolver{metrics: telemetry.GetMetrics()}
}

// Resolve runs inside the caller's transaction. Lookups span tenants, so they run elevated.
// role is the role a newly provisioned placeholder gets; an existing placeholder is raised to it.
//
// A failed placeholder insert is undone on its own savepoint and reported as ResolutionFailed
// with a nil error. Errors are reserved for failures that must abort the whole transaction.
func (r *IdentityResolver) Resolve(ctx context.Context, sess *db.Session, actor Actor, invitee Invitee, role authz.Role) (ResolvedIdentity, error) {
	var out ResolvedIdentity
	q := sess.Queries()

	err := sess.Elevate(ctx, func() error {
		switch v := invitee.(type) {
		case ByUserID:
			u, err := q.GetUser(ctx, v.UserID)
			if errors.Is(err, db.ErrNotFound) {
				return newValidationError("userId", "unknown user")
			}
			if err != nil {
				return fmt.Errorf("lookup user %s: %w", v.UserID, err)
			}
			out = ResolvedIdentity{UserID: u.ID, Outcome: ResolutionFoundExisting, Placeholder: u.IsPlaceholder()}
			return r.raisePlaceholder(ctx, q, u, role)

		case ByEmail:
			u, err := q.FindUserByEmail(ctx, v.Email)
			if err == nil {
				out = ResolvedIdentity{UserID: u.ID, Outcome: ResolutionFoundExisting, Placeholder: u.IsPlaceholder()}
				return r.raisePlaceholder(ctx, q, u, role)
			}
			if !errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("lookup invitee email: %w", err)
			}

			var created *db.User
			var createErr error
			err = sess.Savepoint(ctx, resolveSavepoint, func() error {
				created, createErr = q.CreateUser(ctx, db.NewUser{
					ID:        uuid.NewString(),
					Email:     db.MarkPlaceholder(v.Email),
					Name:      db.NormalizeEmail(v.Email),
					Role:      role,
					CreatedBy: actor.UserID,
				})
				return createErr
			})
			if err != nil {
				if createErr != nil && errors.Is(err, createErr) {
					log.Warn().Err(createErr).
						Str("actor_id", actor.UserID).
						Msg("placeholder provisioning failed, invitation becomes a no-op")
					out = ResolvedIdentity{Outcome: ResolutionFailed}
					return nil
				}
				return err
			}
			out = ResolvedIdentity{UserID: created.ID, Outcome: ResolutionCreated, Placeholder: true}
			return nil

		default:
			return newValidationError("email", "email or userId is required")
		}
	})
	if err != nil {
		return ResolvedIdentity{}, err
	}

	r.metrics.ResolutionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", out.Outcome.String())))
	return out, nil
}

// raisePlaceholder keeps a placeholder's role at or above every relation it is invited to,
// so the transfer engine can pick relation sets from the role alone.
// Verified users are never touched.
func (r *IdentityResolver) raisePlaceholder(ctx context.Context, q *db.Queries, u *db.User, role authz.Role) error {
	if !u.IsPlaceholder() || authz.Higher(u.Role, role) == u.Role {
		return nil
	}
	if err := q.SetUserRole(ctx, u.ID, role); err != nil {
		return fmt.Errorf("raise placeholder role: %w", err)
	}
	log.Debug().Str("user_id", u.ID).Str("from", string(u.Role)).Str("to", string(role)).Msg("raised placeholder role")
	return nil
}
