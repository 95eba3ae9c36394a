package models

import "time"

// MemoryState tracks the forgetting-curve parameters for one atom and one
// learner. Retrievability is always derived from Stability and LastReview,
// never persisted, so it cannot drift from the authoritative fields.
type MemoryState struct {
	LearnerID   string    `json:"learner_id" db:"learner_id"`
	AtomID      string    `json:"atom_id" db:"atom_id"`
	Stability   float64   `json:"stability" db:"stability"`   // days, > 0
	Difficulty  float64   `json:"difficulty" db:"difficulty"` // 0-1
	DueAt       time.Time `json:"due_at" db:"due_at"`
	LastReview  time.Time `json:"last_review" db:"last_review"`
	ReviewCount int       `json:"review_count" db:"review_count"`
	LapseCount  int       `json:"lapse_count" db:"lapse_count"`
	LastEventID string    `json:"last_event_id" db:"last_event_id"` // replay guard
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
