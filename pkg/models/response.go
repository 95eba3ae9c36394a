package models

import "time"

// Outcome is the graded result of one presentation, as returned by the
// grading strategy for the atom type. The engine is agnostic to how the
// raw answer was graded.
type Outcome struct {
	EventID      string    `json:"event_id"`
	Correct      bool      `json:"correct"`
	PartialScore float64   `json:"partial_score"` // [0,1]
	LatencyMS    int       `json:"latency_ms"`
	At           time.Time `json:"at"`
}

// ResponseEvent is the full record of one learner interaction with an atom,
// persisted for diagnosis history and analytics.
type ResponseEvent struct {
	EventID          string             `json:"event_id" db:"event_id"`
	LearnerID        string             `json:"learner_id" db:"learner_id"`
	AtomID           string             `json:"atom_id" db:"atom_id"`
	SkillID          string             `json:"skill_id" db:"skill_id"`
	SectionID        string             `json:"section_id" db:"section_id"`
	Correct          bool               `json:"correct" db:"correct"`
	PartialScore     float64            `json:"partial_score" db:"partial_score"`
	Confidence       int                `json:"confidence" db:"confidence"` // 1-5 self-report
	LatencyMS        int                `json:"latency_ms" db:"latency_ms"`
	Format           PresentationFormat `json:"format" db:"format"`
	MisconceptionTag string             `json:"misconception_tag" db:"misconception_tag"` // chosen distractor's category, if any
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
}
