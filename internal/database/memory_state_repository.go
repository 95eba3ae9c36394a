package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/studyengine/pkg/models"
)

// MemoryStateRepository persists per-(learner, atom) forgetting-curve state.
type MemoryStateRepository struct {
	db *DB
}

// NewMemoryStateRepository creates a new repository instance.
func NewMemoryStateRepository(db *DB) *MemoryStateRepository {
	return &MemoryStateRepository{db: db}
}

// Get returns the memory state for the pair, or nil if the atom has never
// been reviewed by this learner.
func (r *MemoryStateRepository) Get(ctx context.Context, learnerID, atomID string) (*models.MemoryState, error) {
	var state models.MemoryState
	err := r.db.GetContext(ctx, &state,
		"SELECT * FROM memory_states WHERE learner_id = $1 AND atom_id = $2", learnerID, atomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory state: %w", err)
	}
	return &state, nil
}

// ListForLearner returns every memory state of a learner, keyed by atom id.
func (r *MemoryStateRepository) ListForLearner(ctx context.Context, learnerID string) (map[string]*models.MemoryState, error) {
	var states []models.MemoryState
	err := r.db.SelectContext(ctx, &states,
		"SELECT * FROM memory_states WHERE learner_id = $1", learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory states: %w", err)
	}
	byAtom := make(map[string]*models.MemoryState, len(states))
	for i := range states {
		byAtom[states[i].AtomID] = &states[i]
	}
	return byAtom, nil
}

// ListDue returns the states whose review is due at or before the cutoff.
func (r *MemoryStateRepository) ListDue(ctx context.Context, learnerID string, cutoff time.Time) ([]models.MemoryState, error) {
	var states []models.MemoryState
	err := r.db.SelectContext(ctx, &states,
		"SELECT * FROM memory_states WHERE learner_id = $1 AND due_at <= $2 ORDER BY due_at", learnerID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list due memory states: %w", err)
	}
	return states, nil
}

// Upsert writes the state, inserting on first review.
func (r *MemoryStateRepository) Upsert(ctx context.Context, state *models.MemoryState) error {
	now := time.Now()
	state.UpdatedAt = now
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}

	return withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO memory_states (learner_id, atom_id, stability, difficulty, due_at, last_review, review_count, lapse_count, last_event_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (learner_id, atom_id) DO UPDATE SET
				stability = EXCLUDED.stability,
				difficulty = EXCLUDED.difficulty,
				due_at = EXCLUDED.due_at,
				last_review = EXCLUDED.last_review,
				review_count = EXCLUDED.review_count,
				lapse_count = EXCLUDED.lapse_count,
				last_event_id = EXCLUDED.last_event_id,
				updated_at = EXCLUDED.updated_at
		`, state.LearnerID, state.AtomID, state.Stability, state.Difficulty,
			state.DueAt, state.LastReview, state.ReviewCount, state.LapseCount,
			state.LastEventID, state.CreatedAt, state.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert memory state: %w", err)
		}
		return nil
	})
}
