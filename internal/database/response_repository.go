package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/studyengine/pkg/models"
)

// ErrDuplicateEvent signals an insert whose event id was already recorded.
// The response log is the idempotency authority for the whole response
// pipeline, so callers must see the duplicate rather than have it silently
// absorbed.
var ErrDuplicateEvent = errors.New("duplicate response event")

// ResponseRepository persists the response event log and answers the
// aggregate history questions the failure-mode diagnoser asks.
type ResponseRepository struct {
	db *DB
}

// NewResponseRepository creates a new repository instance.
func NewResponseRepository(db *DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// Insert appends one response event. A retried event id returns
// ErrDuplicateEvent so the caller can skip every downstream update the
// first delivery already ran.
func (r *ResponseRepository) Insert(ctx context.Context, ev *models.ResponseEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	return withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO responses (event_id, learner_id, atom_id, skill_id, section_id, correct, partial_score, confidence, latency_ms, format, misconception_tag, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, ev.EventID, ev.LearnerID, ev.AtomID, ev.SkillID, ev.SectionID,
			ev.Correct, ev.PartialScore, ev.Confidence, ev.LatencyMS,
			ev.Format, ev.MisconceptionTag, ev.CreatedAt)
		if isUniqueViolation(err) {
			return ErrDuplicateEvent
		}
		if err != nil {
			return fmt.Errorf("failed to insert response: %w", err)
		}
		return nil
	})
}

// Exists reports whether an event id was already recorded.
func (r *ResponseRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM responses WHERE event_id = $1", eventID)
	if err != nil {
		return false, fmt.Errorf("failed to check response existence: %w", err)
	}
	return count > 0, nil
}

// formatStats is the per-format accuracy rollup for one skill.
type formatStats struct {
	Format  string  `db:"format"`
	Seen    int     `db:"seen"`
	Correct float64 `db:"correct_count"`
}

// SkillAccuracy summarizes a learner's history on one skill for diagnosis.
type SkillAccuracy struct {
	OverallAccuracy     float64
	RecognitionAccuracy float64
	ProceduralAccuracy  float64
	RecognitionSeen     int
	ProceduralSeen      int
	TotalSeen           int
}

// AccuracyBySkill computes the per-format accuracy history for a skill.
// Recognition covers the pure recognition format; procedural covers the
// application formats (procedural and sequencing).
func (r *ResponseRepository) AccuracyBySkill(ctx context.Context, learnerID, skillID string) (*SkillAccuracy, error) {
	var rows []formatStats
	err := r.db.SelectContext(ctx, &rows, `
		SELECT format, COUNT(*) AS seen, SUM(CASE WHEN correct THEN 1 ELSE 0 END) AS correct_count
		FROM responses
		WHERE learner_id = $1 AND skill_id = $2
		GROUP BY format
	`, learnerID, skillID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate skill accuracy: %w", err)
	}

	acc := &SkillAccuracy{}
	var totalCorrect float64
	var recogCorrect, procCorrect float64
	for _, row := range rows {
		acc.TotalSeen += row.Seen
		totalCorrect += row.Correct
		switch models.PresentationFormat(row.Format) {
		case models.FormatRecognition:
			acc.RecognitionSeen += row.Seen
			recogCorrect += row.Correct
		case models.FormatProcedural, models.FormatSequencing:
			acc.ProceduralSeen += row.Seen
			procCorrect += row.Correct
		}
	}
	if acc.TotalSeen > 0 {
		acc.OverallAccuracy = totalCorrect / float64(acc.TotalSeen)
	}
	if acc.RecognitionSeen > 0 {
		acc.RecognitionAccuracy = recogCorrect / float64(acc.RecognitionSeen)
	}
	if acc.ProceduralSeen > 0 {
		acc.ProceduralAccuracy = procCorrect / float64(acc.ProceduralSeen)
	}
	return acc, nil
}

// EverCorrect reports whether the learner has ever answered the atom
// correctly.
func (r *ResponseRepository) EverCorrect(ctx context.Context, learnerID, atomID string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM responses WHERE learner_id = $1 AND atom_id = $2 AND correct = TRUE", learnerID, atomID)
	if err != nil {
		return false, fmt.Errorf("failed to check correct history: %w", err)
	}
	return count > 0, nil
}

// HasMisconception reports whether the learner has hit this misconception
// tag before the given time. The first hit reads as a retrieval failure;
// repeats read as discrimination.
func (r *ResponseRepository) HasMisconception(ctx context.Context, learnerID, tag string, before time.Time) (bool, error) {
	if tag == "" {
		return false, nil
	}
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM responses WHERE learner_id = $1 AND misconception_tag = $2 AND created_at < $3",
		learnerID, tag, before)
	if err != nil {
		return false, fmt.Errorf("failed to check misconception history: %w", err)
	}
	return count > 0, nil
}

// Recent returns the learner's newest responses, newest first. The session
// loop uses the window for fatigue signals (streak length, latency trend).
func (r *ResponseRepository) Recent(ctx context.Context, learnerID string, limit int) ([]models.ResponseEvent, error) {
	var events []models.ResponseEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM responses
		WHERE learner_id = $1
		ORDER BY created_at DESC, event_id DESC
		LIMIT $2
	`, learnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent responses: %w", err)
	}
	return events, nil
}

// CountByAtom returns per-atom exposure counts for the novelty signal.
func (r *ResponseRepository) CountByAtom(ctx context.Context, learnerID string) (map[string]int, error) {
	type row struct {
		AtomID string `db:"atom_id"`
		Seen   int    `db:"seen"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows, `
		SELECT atom_id, COUNT(*) AS seen FROM responses
		WHERE learner_id = $1
		GROUP BY atom_id
	`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count exposures: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.AtomID] = row.Seen
	}
	return counts, nil
}
