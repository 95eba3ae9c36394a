package models

import "time"

// Section is a curriculum section. Centrality reflects how connected the
// section's skills are in the curriculum graph; StaticWeight is the
// author-declared struggle priority.
type Section struct {
	ID           string    `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Centrality   float64   `json:"centrality" db:"centrality"` // [0,1]
	StaticWeight float64   `json:"static_weight" db:"static_weight"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
