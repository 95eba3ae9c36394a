package database

import (
	"context"
	"fmt"
	"time"
)

// LearnerStats is the per-learner progress summary.
type LearnerStats struct {
	DueAtoms       int     `db:"due_atoms"`
	TrackedAtoms   int     `db:"tracked_atoms"`
	TotalResponses int     `db:"total_responses"`
	Accuracy       float64 `db:"accuracy"`
	MasteredSkills int     `db:"mastered_skills"`
	TrackedSkills  int     `db:"tracked_skills"`
	AverageMastery float64 `db:"average_mastery"`
}

// MasteredThreshold is the mastery estimate above which a skill counts as
// mastered in progress summaries.
const MasteredThreshold = 0.8

// StatsRepository answers progress and workload questions across the other
// tables. Read-only.
type StatsRepository struct {
	db *DB
}

// NewStatsRepository creates a new repository instance.
func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// ForLearner assembles the progress summary for one learner.
func (r *StatsRepository) ForLearner(ctx context.Context, learnerID string, now time.Time) (*LearnerStats, error) {
	stats := &LearnerStats{}

	err := r.db.GetContext(ctx, &stats.TrackedAtoms,
		"SELECT COUNT(*) FROM memory_states WHERE learner_id = $1", learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tracked atoms: %w", err)
	}

	err = r.db.GetContext(ctx, &stats.DueAtoms,
		"SELECT COUNT(*) FROM memory_states WHERE learner_id = $1 AND due_at <= $2", learnerID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count due atoms: %w", err)
	}

	err = r.db.GetContext(ctx, &stats.TotalResponses,
		"SELECT COUNT(*) FROM responses WHERE learner_id = $1", learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count responses: %w", err)
	}
	if stats.TotalResponses > 0 {
		var correct int
		err = r.db.GetContext(ctx, &correct,
			"SELECT COUNT(*) FROM responses WHERE learner_id = $1 AND correct = TRUE", learnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to count correct responses: %w", err)
		}
		stats.Accuracy = float64(correct) / float64(stats.TotalResponses)
	}

	err = r.db.GetContext(ctx, &stats.TrackedSkills,
		"SELECT COUNT(*) FROM skill_mastery WHERE learner_id = $1 AND archived = FALSE", learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tracked skills: %w", err)
	}

	err = r.db.GetContext(ctx, &stats.MasteredSkills,
		"SELECT COUNT(*) FROM skill_mastery WHERE learner_id = $1 AND archived = FALSE AND mastery >= $2",
		learnerID, MasteredThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to count mastered skills: %w", err)
	}

	if stats.TrackedSkills > 0 {
		err = r.db.GetContext(ctx, &stats.AverageMastery,
			"SELECT AVG(mastery) FROM skill_mastery WHERE learner_id = $1 AND archived = FALSE", learnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to average mastery: %w", err)
		}
	}

	return stats, nil
}

// GapSkills returns the learner's skills whose mastery sits below the
// threshold; the ranker boosts atoms linked to them.
func (r *StatsRepository) GapSkills(ctx context.Context, learnerID string, threshold float64) (map[string]bool, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		"SELECT skill_id FROM skill_mastery WHERE learner_id = $1 AND archived = FALSE AND mastery < $2",
		learnerID, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to list gap skills: %w", err)
	}
	gaps := make(map[string]bool, len(ids))
	for _, id := range ids {
		gaps[id] = true
	}
	return gaps, nil
}
