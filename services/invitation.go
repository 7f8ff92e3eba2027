package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/distinctlyminty44/role-based-rls/db"
	"github.com/distinctlyminty44/role-based-rls/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MutationResult reports what an invitation did.
// Applied is false when identity resolution produced no user; the call still succeeded.
type MutationResult struct {
	Applied    bool       `json:"applied"`
	ResourceID string     `json:"resourceId,omitempty"`
	UserID     string     `json:"userId,omitempty"`
	Resolution Resolution `json:"resolution"`
}

func noEffect(resourceID string) MutationResult {
	return MutationResult{ResourceID: resourceID, Resolution: ResolutionFailed}
}

// InvitationService is the role-scoped mutation surface: organisations, teams and their relation sets.
// Every operation checks the actor's tier first and runs in exactly one scoped transaction.
type InvitationService struct {
	gateway  *db.Gateway
	resolver *IdentityResolver
	metrics  *telemetry.Metrics
}

func NewInvitationService(gateway *db.Gateway, resolver *IdentityResolver) *InvitationService {
	return &InvitationService{
		gateway:  gateway,
		resolver: resolver,
		metrics:  telemetry.GetMetrics(),
	}
}

type validator interface {
	Validate() error
}

// mutate authorizes, validates, then runs fn in the actor's scope
func (s *InvitationService) mutate(ctx context.Context, op string, actor Actor, required authz.Role, req validator,
	fn func(sess *db.Session) (MutationResult, error),
) (MutationResult, error) {
	if actor.UserID == "" || !authz.Allows(actor.Role, required) {
		s.record(ctx, op, "unauthorized")
		log.Info().
			Str("op", op).
			Str("user_id", actor.UserID).
			Str("role", string(actor.Role)).
			Msg("invitation denied")
		return MutationResult{}, ErrUnauthorized
	}

	if err := req.Validate(); err != nil {
		s.record(ctx, op, "invalid")
		return MutationResult{}, err
	}

	result, err := db.InScope(ctx, s.gateway, actor.scope(), fn)
	if err != nil {
		err = translateStoreError(err)
		s.record(ctx, op, outcomeOf(err))
		return MutationResult{}, err
	}

	if result.Applied {
		s.record(ctx, op, "applied")
	} else {
		s.record(ctx, op, "noop")
	}
	return result, nil
}

func outcomeOf(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrReferentialIntegrity):
		return "integrity"
	default:
		return "error"
	}
}

func (s *InvitationService) record(ctx context.Context, op, outcome string) {
	s.metrics.InvitationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

// CreateOrganisation creates an organisation whose sole owner and primary owner is the resolved invitee.
func (s *InvitationService) CreateOrganisation(ctx context.Context, actor Actor, req CreateOrganisationRequest) (MutationResult, error) {
	return s.mutate(ctx, "create_organisation", actor, authz.RolePlatform, req, func(sess *db.Session) (MutationResult, error) {
		owner, err := s.resolver.Resolve(ctx, sess, actor, req.Owner, authz.RoleOwner)
		if err != nil {
			return MutationResult{}, err
		}
		if !owner.OK() {
			return noEffect(""), nil
		}

		org, err := sess.Queries().CreateOrganisation(ctx, uuid.NewString(), strings.TrimSpace(req.Name), owner.UserID)
		if err != nil {
			return MutationResult{}, fmt.Errorf("create organisation: %w", err)
		}

		log.Info().
			Str("organisation_id", org.ID).
			Str("owner_id", owner.UserID).
			Str("resolution", owner.Outcome.String()).
			Msg("organisation created")

		return MutationResult{Applied: true, ResourceID: org.ID, UserID: owner.UserID, Resolution: owner.Outcome}, nil
	})
}

// CreateTeam creates a team in an organisation the actor owns, managed solely by the resolved invitee.
func (s *InvitationService) CreateTeam(ctx context.Context, actor Actor, req CreateTeamRequest) (MutationResult, error) {
	return s.mutate(ctx, "create_team", actor, authz.RoleOwner, req, func(sess *db.Session) (MutationResult, error) {
		if _, err := sess.Queries().LockOrganisation(ctx, req.OrganisationID, actor.predicateID()); err != nil {
			return MutationResult{}, fmt.Errorf("organisation %s: %w", req.OrganisationID, err)
		}

		manager, err := s.resolver.Resolve(ctx, sess, actor, req.Manager, authz.RoleManager)
		if err != nil {
			return MutationResult{}, err
		}
		if !manager.OK() {
			return noEffect(""), nil
		}

		return s.insertTeam(ctx, sess, req.OrganisationID, req.Name, manager)
	})
}

// CreateOwnTeam creates a team in an organisation the actor owns, managed by the actor.
func (s *InvitationService) CreateOwnTeam(ctx context.Context, actor Actor, req CreateOwnTeamRequest) (MutationResult, error) {
	return s.mutate(ctx, "create_own_team", actor, authz.RoleOwner, req, func(sess *db.Session) (MutationResult, error) {
		if _, err := sess.Queries().LockOrganisation(ctx, req.OrganisationID, actor.predicateID()); err != nil {
			return MutationResult{}, fmt.Errorf("organisation %s: %w", req.OrganisationID, err)
		}

		self := ResolvedIdentity{UserID: actor.UserID, Outcome: ResolutionFoundExisting}
		return s.insertTeam(ctx, sess, req.OrganisationID, req.Name, self)
	})
}

// insertTeam writes the team and its manager row in one statement. The actor's authority was
// established by the scoped organisation lock; the write itself runs elevated because the new
// team row is not yet visible to the manager-row policy within the same statement.
func (s *InvitationService) insertTeam(ctx context.Context, sess *db.Session, organisationID, name string, manager ResolvedIdentity) (MutationResult, error) {
	var team *db.Team
	err := sess.Elevate(ctx, func() error {
		var err error
		team, err = sess.Queries().CreateTeam(ctx, uuid.NewString(), organisationID, strings.TrimSpace(name), manager.UserID)
		return err
	})
	if err != nil {
		return MutationResult{}, fmt.Errorf("create team: %w", err)
	}

	log.Info().
		Str("team_id", team.ID).
		Str("organisation_id", organisationID).
		Str("manager_id", manager.UserID).
		Str("resolution", manager.Outcome.String()).
		Msg("team created")

	return MutationResult{Applied: true, ResourceID: team.ID, UserID: manager.UserID, Resolution: manager.Outcome}, nil
}

// AddOrganisationOwner adds the resolved invitee to an organisation's owners.
// The primary owner is left alone. Adding an existing owner is a no-op.
func (s *InvitationService) AddOrganisationOwner(ctx context.Context, actor Actor, req AddOrganisationOwnerRequest) (MutationResult, error) {
	return s.mutate(ctx, "add_organisation_owner", actor, authz.RoleOwner, req, func(sess *db.Session) (MutationResult, error) {
		q := sess.Queries()
		if _, err := q.LockOrganisation(ctx, req.OrganisationID, actor.predicateID()); err != nil {
			return MutationResult{}, fmt.Errorf("organisation %s: %w", req.OrganisationID, err)
		}

		owner, err := s.resolver.Resolve(ctx, sess, actor, req.Owner, authz.RoleOwner)
		if err != nil {
			return MutationResult{}, err
		}
		if !owner.OK() {
			return noEffect(req.OrganisationID), nil
		}

		added, err := q.AddRelation(ctx, authz.RelationOwners, req.OrganisationID, owner.UserID)
		if err != nil {
			return MutationResult{}, fmt.Errorf("add owner: %w", err)
		}

		log.Info().
			Str("organisation_id", req.OrganisationID).
			Str("owner_id", owner.UserID).
			Bool("added", added).
			Msg("organisation owner invited")

		return MutationResult{Applied: true, ResourceID: req.OrganisationID, UserID: owner.UserID, Resolution: owner.Outcome}, nil
	})
}

// AddTeamUser adds the resolved invitee to a team's managers or members.
// The actor must manage the team unless they are platform. Adding an existing user is a no-op.
func (s *InvitationService) AddTeamUser(ctx context.Context, actor Actor, req AddTeamUserRequest) (MutationResult, error) {
	return s.mutate(ctx, "add_team_user", actor, authz.RoleManager, req, func(sess *db.Session) (MutationResult, error) {
		q := sess.Queries()
		if _, err := q.LockTeam(ctx, req.TeamID, actor.predicateID()); err != nil {
			return MutationResult{}, fmt.Errorf("team %s: %w", req.TeamID, err)
		}

		user, err := s.resolver.Resolve(ctx, sess, actor, req.User, req.Relation.MinimumRole())
		if err != nil {
			return MutationResult{}, err
		}
		if !user.OK() {
			return noEffect(req.TeamID), nil
		}

		added, err := q.AddRelation(ctx, req.Relation, req.TeamID, user.UserID)
		if err != nil {
			return MutationResult{}, fmt.Errorf("add team %s: %w", req.Relation, err)
		}

		log.Info().
			Str("team_id", req.TeamID).
			Str("relation", string(req.Relation)).
			Str("user_id", user.UserID).
			Bool("added", added).
			Msg("team user invited")

		return MutationResult{Applied: true, ResourceID: req.TeamID, UserID: user.UserID, Resolution: user.Outcome}, nil
	})
}
