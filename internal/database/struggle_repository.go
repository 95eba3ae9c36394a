package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/studyengine/internal/struggle"
	"github.com/example/studyengine/pkg/models"
)

// StruggleRepository persists struggle weights plus their append-only event
// log. It implements struggle.Repository.
type StruggleRepository struct {
	db *DB
}

// NewStruggleRepository creates a new repository instance.
func NewStruggleRepository(db *DB) *StruggleRepository {
	return &StruggleRepository{db: db}
}

// Get returns the weight for the pair, or nil if the section has never been
// touched by this learner.
func (r *StruggleRepository) Get(ctx context.Context, sectionID, learnerID string) (*models.StruggleWeight, error) {
	var w models.StruggleWeight
	err := r.db.GetContext(ctx, &w,
		"SELECT * FROM struggle_weights WHERE section_id = $1 AND learner_id = $2", sectionID, learnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get struggle weight: %w", err)
	}
	return &w, nil
}

// Save upserts the weight and appends the event in one transaction. A
// previously seen event id aborts the whole write and returns
// struggle.ErrDuplicateEvent, so retried deliveries never double-count.
func (r *StruggleRepository) Save(ctx context.Context, w *models.StruggleWeight, ev *models.StruggleWeightEvent) error {
	now := time.Now()
	w.UpdatedAt = now
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}

	return withRetry(ctx, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		// The event insert goes first: its primary key is the idempotency
		// check, and a duplicate must leave the weight untouched.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO struggle_events (id, section_id, learner_id, trigger_type, mode, accuracy, before_weight, after_weight, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, ev.ID, ev.SectionID, ev.LearnerID, ev.TriggerType, ev.Mode,
			ev.Accuracy, ev.Before, ev.After, ev.CreatedAt)
		if isUniqueViolation(err) {
			return struggle.ErrDuplicateEvent
		}
		if err != nil {
			return fmt.Errorf("failed to append struggle event: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO struggle_weights (section_id, learner_id, static_weight, dynamic_weight, combined_priority, last_touched, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (section_id, learner_id) DO UPDATE SET
				static_weight = EXCLUDED.static_weight,
				dynamic_weight = EXCLUDED.dynamic_weight,
				combined_priority = EXCLUDED.combined_priority,
				last_touched = EXCLUDED.last_touched,
				updated_at = EXCLUDED.updated_at
		`, w.SectionID, w.LearnerID, w.StaticWeight, w.DynamicWeight,
			w.CombinedPriority, w.LastTouched, w.CreatedAt, w.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert struggle weight: %w", err)
		}
		return tx.Commit()
	})
}

// ListStale returns the weights whose last touch is at or before the cutoff.
func (r *StruggleRepository) ListStale(ctx context.Context, learnerID string, before time.Time) ([]models.StruggleWeight, error) {
	var weights []models.StruggleWeight
	err := r.db.SelectContext(ctx, &weights,
		"SELECT * FROM struggle_weights WHERE learner_id = $1 AND last_touched <= $2", learnerID, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale struggle weights: %w", err)
	}
	return weights, nil
}

// ListTop returns the highest combined-priority sections for a learner.
func (r *StruggleRepository) ListTop(ctx context.Context, learnerID string, limit int) ([]models.StruggleWeight, error) {
	var weights []models.StruggleWeight
	err := r.db.SelectContext(ctx, &weights, `
		SELECT * FROM struggle_weights
		WHERE learner_id = $1
		ORDER BY combined_priority DESC, section_id
		LIMIT $2
	`, learnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top struggle weights: %w", err)
	}
	return weights, nil
}

// ListEvents returns the event log for a section, oldest first. The log is
// append-only; this is the audit view.
func (r *StruggleRepository) ListEvents(ctx context.Context, sectionID, learnerID string) ([]models.StruggleWeightEvent, error) {
	var events []models.StruggleWeightEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM struggle_events
		WHERE section_id = $1 AND learner_id = $2
		ORDER BY created_at, id
	`, sectionID, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list struggle events: %w", err)
	}
	return events, nil
}
