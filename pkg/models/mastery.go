package models

import "time"

// SkillMastery holds the per-learner mastery estimate for one skill.
// Created lazily on the first response touching the skill; archived, not
// deleted, when a skill is retired.
type SkillMastery struct {
	LearnerID             string    `json:"learner_id" db:"learner_id"`
	SkillID               string    `json:"skill_id" db:"skill_id"`
	Mastery               float64   `json:"mastery" db:"mastery"` // clamped to [0,1]
	ConfidenceCalibration float64   `json:"confidence_calibration" db:"confidence_calibration"`
	SampleCount           int       `json:"sample_count" db:"sample_count"`
	Archived              bool      `json:"archived" db:"archived"`
	LastUpdated           time.Time `json:"last_updated" db:"last_updated"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
}
