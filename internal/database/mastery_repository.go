package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/studyengine/pkg/models"
)

// MasteryRepository persists per-(learner, skill) mastery estimates.
type MasteryRepository struct {
	db *DB
}

// NewMasteryRepository creates a new repository instance.
func NewMasteryRepository(db *DB) *MasteryRepository {
	return &MasteryRepository{db: db}
}

// Get returns the mastery record, or nil if the skill was never touched.
func (r *MasteryRepository) Get(ctx context.Context, learnerID, skillID string) (*models.SkillMastery, error) {
	var m models.SkillMastery
	err := r.db.GetContext(ctx, &m,
		"SELECT * FROM skill_mastery WHERE learner_id = $1 AND skill_id = $2", learnerID, skillID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get skill mastery: %w", err)
	}
	return &m, nil
}

// ListForLearner returns every non-archived mastery record of a learner,
// keyed by skill id.
func (r *MasteryRepository) ListForLearner(ctx context.Context, learnerID string) (map[string]*models.SkillMastery, error) {
	var records []models.SkillMastery
	err := r.db.SelectContext(ctx, &records,
		"SELECT * FROM skill_mastery WHERE learner_id = $1 AND archived = FALSE", learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list skill mastery: %w", err)
	}
	bySkill := make(map[string]*models.SkillMastery, len(records))
	for i := range records {
		bySkill[records[i].SkillID] = &records[i]
	}
	return bySkill, nil
}

// Upsert writes the mastery record, inserting on first touch.
func (r *MasteryRepository) Upsert(ctx context.Context, m *models.SkillMastery) error {
	now := time.Now()
	m.LastUpdated = now
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}

	return withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO skill_mastery (learner_id, skill_id, mastery, confidence_calibration, sample_count, archived, last_updated, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (learner_id, skill_id) DO UPDATE SET
				mastery = EXCLUDED.mastery,
				confidence_calibration = EXCLUDED.confidence_calibration,
				sample_count = EXCLUDED.sample_count,
				archived = EXCLUDED.archived,
				last_updated = EXCLUDED.last_updated
		`, m.LearnerID, m.SkillID, m.Mastery, m.ConfidenceCalibration,
			m.SampleCount, m.Archived, m.LastUpdated, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert skill mastery: %w", err)
		}
		return nil
	})
}

// Archive marks a retired skill's records across all learners. History is
// kept; the records just stop counting toward aggregates.
func (r *MasteryRepository) Archive(ctx context.Context, skillID string) error {
	return withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx,
			"UPDATE skill_mastery SET archived = TRUE, last_updated = CURRENT_TIMESTAMP WHERE skill_id = $1", skillID)
		if err != nil {
			return fmt.Errorf("failed to archive skill mastery: %w", err)
		}
		return nil
	})
}
