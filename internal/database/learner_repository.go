package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/studyengine/pkg/models"
)

// LearnerRepository persists learner profiles.
type LearnerRepository struct {
	db *DB
}

// NewLearnerRepository creates a new repository instance.
func NewLearnerRepository(db *DB) *LearnerRepository {
	return &LearnerRepository{db: db}
}

// Get returns one learner, or nil if unknown.
func (r *LearnerRepository) Get(ctx context.Context, id string) (*models.Learner, error) {
	var learner models.Learner
	err := r.db.GetContext(ctx, &learner, "SELECT * FROM learners WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learner: %w", err)
	}
	return &learner, nil
}

// List returns all learners ordered by id.
func (r *LearnerRepository) List(ctx context.Context) ([]models.Learner, error) {
	var learners []models.Learner
	err := r.db.SelectContext(ctx, &learners, "SELECT * FROM learners ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list learners: %w", err)
	}
	return learners, nil
}

// Upsert writes the profile, creating it on first sight.
func (r *LearnerRepository) Upsert(ctx context.Context, learner *models.Learner) error {
	now := time.Now()
	learner.UpdatedAt = now
	if learner.CreatedAt.IsZero() {
		learner.CreatedAt = now
	}
	if learner.AtomsPerSession <= 0 {
		learner.AtomsPerSession = 20
	}

	return withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO learners (id, name, focus_skills, atoms_per_session, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				focus_skills = EXCLUDED.focus_skills,
				atoms_per_session = EXCLUDED.atoms_per_session,
				updated_at = EXCLUDED.updated_at
		`, learner.ID, learner.Name, learner.FocusSkills, learner.AtomsPerSession,
			learner.CreatedAt, learner.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert learner: %w", err)
		}
		return nil
	})
}
