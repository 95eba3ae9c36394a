package models

import "time"

// Struggle event trigger types recorded in the append-only log.
const (
	StruggleTriggerDiagnosis = "diagnosis"
	StruggleTriggerCorrect   = "correct"
	StruggleTriggerDecay     = "decay"
)

// StruggleWeight combines the author-declared static weight of a curriculum
// section with a diagnosis-driven dynamic weight that decays over time.
type StruggleWeight struct {
	SectionID        string    `json:"section_id" db:"section_id"`
	LearnerID        string    `json:"learner_id" db:"learner_id"`
	StaticWeight     float64   `json:"static_weight" db:"static_weight"`
	DynamicWeight    float64   `json:"dynamic_weight" db:"dynamic_weight"` // [0,1]
	CombinedPriority float64   `json:"combined_priority" db:"combined_priority"`
	LastTouched      time.Time `json:"last_touched" db:"last_touched"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// StruggleWeightEvent records one mutation of a struggle weight. Events are
// immutable once written; the event id doubles as the idempotency key.
type StruggleWeightEvent struct {
	ID          string      `json:"id" db:"id"`
	SectionID   string      `json:"section_id" db:"section_id"`
	LearnerID   string      `json:"learner_id" db:"learner_id"`
	TriggerType string      `json:"trigger_type" db:"trigger_type"`
	Mode        FailureMode `json:"mode" db:"mode"`
	Accuracy    float64     `json:"accuracy" db:"accuracy"`
	Before      float64     `json:"before" db:"before_weight"`
	After       float64     `json:"after" db:"after_weight"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}
