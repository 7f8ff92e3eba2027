package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/distinctlyminty44/role-based-rls/db"
	"github.com/distinctlyminty44/role-based-rls/internal/telemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// transferStore is the slice of the store a transfer touches
type transferStore interface {
	FindPlaceholderForUpdate(ctx context.Context, email string) (*db.User, error)
	ResourcesHeldBy(ctx context.Context, rel authz.Relation, userID string) ([]string, error)
	AddRelation(ctx context.Context, rel authz.Relation, resourceID, userID string) (bool, error)
	SetPrimary(ctx context.Context, rel authz.Relation, resourceID, from, to string) (bool, error)
	RemoveRelation(ctx context.Context, rel authz.Relation, resourceID, userID string) (bool, error)
	DeleteUser(ctx context.Context, id string) error
}

// A relation row moves in three steps. Each step's result type is the only value the next
// step accepts, so a primary can never be reassigned to a user not yet in the set,
// and a set is never emptied before the replacement is connected.
//
//	relationMigration.connect -> connected.promote -> promoted.disconnect

// relationMigration is a pending move of one relation row from a placeholder to a verified user.
type relationMigration struct {
	rel        authz.Relation
	resourceID string
	from       string
	to         string
}

// connected: both users are in the set.
type connected struct {
	relationMigration
}

// promoted: the primary, if the relation has one, no longer points at the placeholder.
type promoted struct {
	relationMigration
	primaryMoved bool
}

func (m relationMigration) connect(ctx context.Context, q transferStore) (connected, error) {
	if _, err := q.AddRelation(ctx, m.rel, m.resourceID, m.to); err != nil {
		return connected{}, fmt.Errorf("connect %s %s: %w", m.rel, m.resourceID, err)
	}
	return connected{m}, nil
}

func (c connected) promote(ctx context.Context, q transferStore) (promoted, error) {
	if !c.rel.HasPrimary() {
		return promoted{relationMigration: c.relationMigration}, nil
	}
	moved, err := q.SetPrimary(ctx, c.rel, c.resourceID, c.from, c.to)
	if err != nil {
		return promoted{}, fmt.Errorf("promote %s %s: %w", c.rel, c.resourceID, err)
	}
	return promoted{relationMigration: c.relationMigration, primaryMoved: moved}, nil
}

func (p promoted) disconnect(ctx context.Context, q transferStore) error {
	if _, err := q.RemoveRelation(ctx, p.rel, p.resourceID, p.from); err != nil {
		return fmt.Errorf("disconnect %s %s: %w", p.rel, p.resourceID, err)
	}
	return nil
}

// TransferReport summarises one transfer run
type TransferReport struct {
	// Empty when no placeholder matched and the run was a no-op
	PlaceholderID string
	Moved         map[authz.Relation]int
	// Organisations and teams whose primary moved to the verified user
	PrimariesMoved int
}

// Transferred reports whether a placeholder was consumed
func (r TransferReport) Transferred() bool {
	return r.PlaceholderID != ""
}

// TransferEngine hands a placeholder's organisations and teams to the verified user
// who signed up with its address, then deletes the placeholder.
type TransferEngine struct {
	gateway *db.Gateway
	metrics *telemetry.Metrics
}

func NewTransferEngine(gateway *db.Gateway) *TransferEngine {
	return &TransferEngine{gateway: gateway, metrics: telemetry.GetMetrics()}
}

// Transfer runs as one bypass transaction. Any failure rolls back every step, leaving the
// placeholder and its relations as they were. Running it again after success is a no-op.
func (e *TransferEngine) Transfer(ctx context.Context, verifiedUserID, verifiedEmail string) (TransferReport, error) {
	started := time.Now()

	report, err := db.InScope(ctx, e.gateway, db.BypassScope(), func(sess *db.Session) (TransferReport, error) {
		return runTransfer(ctx, sess.Queries(), verifiedUserID, verifiedEmail)
	})

	outcome := "transferred"
	switch {
	case err != nil:
		outcome = "failed"
	case !report.Transferred():
		outcome = "noop"
	}
	e.metrics.TransfersTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	e.metrics.TransferDuration.Record(ctx, float64(time.Since(started).Milliseconds()),
		metric.WithAttributes(attribute.String("outcome", outcome)))

	if err != nil {
		log.Error().Err(err).
			Str("user_id", verifiedUserID).
			Msg("ownership transfer rolled back")
		return TransferReport{}, translateStoreError(err)
	}

	for rel, n := range report.Moved {
		e.metrics.RelationsTransferredTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("relation", string(rel))))
	}
	return report, nil
}

func runTransfer(ctx context.Context, q transferStore, verifiedUserID, verifiedEmail string) (TransferReport, error) {
	placeholder, err := q.FindPlaceholderForUpdate(ctx, verifiedEmail)
	if errors.Is(err, db.ErrNotFound) {
		log.Info().Str("user_id", verifiedUserID).Msg("no pending placeholder, transfer is a no-op")
		return TransferReport{}, nil
	}
	if err != nil {
		return TransferReport{}, fmt.Errorf("find placeholder: %w", err)
	}

	relations := authz.TransferableRelations(placeholder.Role)
	if len(relations) == 0 {
		log.Info().
			Str("user_id", verifiedUserID).
			Str("placeholder_id", placeholder.ID).
			Str("role", string(placeholder.Role)).
			Msg("placeholder role holds nothing to transfer")
		return TransferReport{}, nil
	}

	report := TransferReport{PlaceholderID: placeholder.ID, Moved: map[authz.Relation]int{}}

	for _, rel := range relations {
		resourceIDs, err := q.ResourcesHeldBy(ctx, rel, placeholder.ID)
		if err != nil {
			return TransferReport{}, fmt.Errorf("list %s held by placeholder: %w", rel, err)
		}

		for _, resourceID := range resourceIDs {
			m := relationMigration{rel: rel, resourceID: resourceID, from: placeholder.ID, to: verifiedUserID}

			c, err := m.connect(ctx, q)
			if err != nil {
				return TransferReport{}, err
			}
			p, err := c.promote(ctx, q)
			if err != nil {
				return TransferReport{}, err
			}
			if err := p.disconnect(ctx, q); err != nil {
				return TransferReport{}, err
			}

			report.Moved[rel]++
			if p.primaryMoved {
				report.PrimariesMoved++
			}
		}
	}

	if err := q.DeleteUser(ctx, placeholder.ID); err != nil {
		return TransferReport{}, fmt.Errorf("delete placeholder: %w", err)
	}

	log.Info().
		Str("user_id", verifiedUserID).
		Str("placeholder_id", placeholder.ID).
		Int("owners", report.Moved[authz.RelationOwners]).
		Int("managers", report.Moved[authz.RelationManagers]).
		Int("members", report.Moved[authz.RelationMembers]).
		Int("primaries", report.PrimariesMoved).
		Msg("ownership transferred")

	return report, nil
}
