package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/studyengine/pkg/models"
)

// SectionRepository persists curriculum sections. Its StaticWeight method
// satisfies struggle.SectionSource.
type SectionRepository struct {
	db *DB
}

// NewSectionRepository creates a new repository instance.
func NewSectionRepository(db *DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// Get returns one section, or nil if unknown.
func (r *SectionRepository) Get(ctx context.Context, id string) (*models.Section, error) {
	var section models.Section
	err := r.db.GetContext(ctx, &section, "SELECT * FROM sections WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get section: %w", err)
	}
	return &section, nil
}

// List returns all sections ordered by id.
func (r *SectionRepository) List(ctx context.Context) ([]models.Section, error) {
	var sections []models.Section
	err := r.db.SelectContext(ctx, &sections, "SELECT * FROM sections ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	return sections, nil
}

// StaticWeight returns the author-declared struggle weight of a section.
// Unknown sections read as zero so a dangling section id never blocks a
// diagnosis write.
func (r *SectionRepository) StaticWeight(ctx context.Context, sectionID string) (float64, error) {
	var weight float64
	err := r.db.GetContext(ctx, &weight,
		"SELECT static_weight FROM sections WHERE id = $1", sectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get section static weight: %w", err)
	}
	return weight, nil
}

// Upsert writes the section, creating it on first sight.
func (r *SectionRepository) Upsert(ctx context.Context, section *models.Section) error {
	now := time.Now()
	section.UpdatedAt = now
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}

	return withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO sections (id, title, centrality, static_weight, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				centrality = EXCLUDED.centrality,
				static_weight = EXCLUDED.static_weight,
				updated_at = EXCLUDED.updated_at
		`, section.ID, section.Title, section.Centrality, section.StaticWeight,
			section.CreatedAt, section.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert section: %w", err)
		}
		return nil
	})
}
