package models

import "time"

// Learner holds profile data the engine reads: declared focus skills feed
// the ranker's relevance signal.
type Learner struct {
	ID              string     `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	FocusSkills     StringList `json:"focus_skills" db:"focus_skills"`
	AtomsPerSession int        `json:"atoms_per_session" db:"atoms_per_session"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}
