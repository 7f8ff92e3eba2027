package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/distinctlyminty44/role-based-rls/db"
	"github.com/rs/zerolog/log"
)

// AuthTrigger is the kind of authentication event the identity provider reports
type AuthTrigger string

const (
	TriggerSignIn AuthTrigger = "signIn"
	TriggerSignUp AuthTrigger = "signUp"
	TriggerUpdate AuthTrigger = "update"
)

// Profile is the identity provider's view of the authenticating person
type Profile struct {
	SubjectID string `json:"subjectId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Picture   string `json:"picture"`
}

type AuthEvent struct {
	Trigger AuthTrigger `json:"trigger"`
	Profile Profile     `json:"profile"`
}

// SessionClaims is what the identity provider should put in the caller's session
type SessionClaims struct {
	UserID string     `json:"userId"`
	Email  string     `json:"email"`
	Role   authz.Role `json:"role"`
}

// Transferer runs the ownership transfer for a newly verified user
type Transferer interface {
	Transfer(ctx context.Context, verifiedUserID, verifiedEmail string) (TransferReport, error)
}

// AuthEvents reacts to identity-provider authentication events
type AuthEvents struct {
	gateway   *db.Gateway
	transfers Transferer
	// Optional; nil disables session-role refresh
	cache RoleCache
}

func NewAuthEvents(gateway *db.Gateway, transfers Transferer, cache RoleCache) *AuthEvents {
	return &AuthEvents{gateway: gateway, transfers: transfers, cache: cache}
}

func (e AuthEvent) Validate() error {
	verr := &ValidationError{}
	switch e.Trigger {
	case TriggerSignIn, TriggerSignUp, TriggerUpdate:
	default:
		verr.add("trigger", "must be signIn, signUp or update")
	}
	if strings.TrimSpace(e.Profile.SubjectID) == "" {
		verr.add("profile.subjectId", "is required")
	}
	if strings.TrimSpace(e.Profile.Email) == "" {
		verr.add("profile.email", "is required")
	}
	return verr.orNil()
}

// ResolveRole reads the subject's role from storage. A verified record wins; otherwise a
// placeholder provisioned for the email decides; anyone else is a member.
func (s *AuthEvents) ResolveRole(ctx context.Context, subjectID, email string) (authz.Role, error) {
	role, err := db.InScope(ctx, s.gateway, db.BypassScope(), func(sess *db.Session) (authz.Role, error) {
		q := sess.Queries()

		u, err := q.GetUser(ctx, subjectID)
		if err == nil {
			return u.Role, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return "", err
		}

		p, err := q.GetUserByStoredEmail(ctx, db.MarkPlaceholder(email))
		if err == nil {
			return p.Role, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return "", err
		}
		return authz.RoleMember, nil
	})
	if err != nil {
		return "", fmt.Errorf("resolve role: %w", err)
	}
	return role, nil
}

// Handle processes one authentication event and returns the claims for the caller's session.
func (s *AuthEvents) Handle(ctx context.Context, event AuthEvent) (SessionClaims, error) {
	if err := event.Validate(); err != nil {
		return SessionClaims{}, err
	}
	p := event.Profile

	role, err := s.ResolveRole(ctx, p.SubjectID, p.Email)
	if err != nil {
		return SessionClaims{}, err
	}

	switch event.Trigger {
	case TriggerSignUp:
		if err := s.signUp(ctx, p, role); err != nil {
			return SessionClaims{}, err
		}
		s.refresh(ctx, p.SubjectID, role)

	case TriggerUpdate:
		s.refresh(ctx, p.SubjectID, role)
	}

	log.Info().
		Str("trigger", string(event.Trigger)).
		Str("user_id", p.SubjectID).
		Str("role", string(role)).
		Msg("auth event handled")

	return SessionClaims{UserID: p.SubjectID, Email: db.NormalizeEmail(p.Email), Role: role}, nil
}

func (s *AuthEvents) signUp(ctx context.Context, p Profile, role authz.Role) error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = db.NormalizeEmail(p.Email)
	}

	err := s.gateway.WithBypass(ctx, func(sess *db.Session) error {
		_, err := sess.Queries().UpsertVerifiedUser(ctx, p.SubjectID, p.Email, name, role)
		return err
	})
	if err != nil {
		return fmt.Errorf("record verified user: %w", translateStoreError(err))
	}

	// Member-tier placeholders hold nothing worth transferring
	if role != authz.RoleOwner && role != authz.RoleManager {
		return nil
	}

	report, err := s.transfers.Transfer(ctx, p.SubjectID, p.Email)
	if err != nil {
		return fmt.Errorf("transfer ownership: %w", err)
	}
	if !report.Transferred() {
		log.Info().Str("user_id", p.SubjectID).Msg("sign-up had no pending placeholder")
	}
	return nil
}

// refresh is best-effort; a cache outage must not fail authentication
func (s *AuthEvents) refresh(ctx context.Context, userID string, role authz.Role) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, userID, role); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("session role refresh failed")
	}
}
