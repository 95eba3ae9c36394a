package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studyengine/pkg/models"
)

// AtomRepository handles storage of atoms and their skill links.
type AtomRepository struct {
	db *DB
}

// NewAtomRepository creates a new repository instance.
func NewAtomRepository(db *DB) *AtomRepository {
	return &AtomRepository{db: db}
}

// Get returns one atom with its skill links, or nil if unknown.
func (r *AtomRepository) Get(ctx context.Context, id string) (*models.Atom, error) {
	var atom models.Atom
	err := r.db.GetContext(ctx, &atom, "SELECT * FROM atoms WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get atom: %w", err)
	}
	if err := r.attachSkillLinks(ctx, []*models.Atom{&atom}); err != nil {
		return nil, err
	}
	return &atom, nil
}

// ListActiveBySection returns the active atoms of a section.
func (r *AtomRepository) ListActiveBySection(ctx context.Context, sectionID string) ([]models.Atom, error) {
	var atoms []models.Atom
	err := r.db.SelectContext(ctx, &atoms,
		"SELECT * FROM atoms WHERE section_id = $1 AND active = TRUE ORDER BY id", sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list atoms by section: %w", err)
	}
	return atoms, r.attachLinksToSlice(ctx, atoms)
}

// ListActive returns every active atom, ordered by id for deterministic
// candidate pools.
func (r *AtomRepository) ListActive(ctx context.Context) ([]models.Atom, error) {
	var atoms []models.Atom
	err := r.db.SelectContext(ctx, &atoms, "SELECT * FROM atoms WHERE active = TRUE ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list active atoms: %w", err)
	}
	return atoms, r.attachLinksToSlice(ctx, atoms)
}

// ListRemediation returns active atoms linked to the skill whose content
// type is one of the requested remediation types.
func (r *AtomRepository) ListRemediation(ctx context.Context, skillID string, contentTypes []string) ([]models.Atom, error) {
	if len(contentTypes) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT a.* FROM atoms a
		JOIN atom_skills s ON s.atom_id = a.id
		WHERE s.skill_id = ? AND a.content_type IN (?) AND a.active = TRUE
		ORDER BY a.id
	`, skillID, contentTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to build remediation query: %w", err)
	}
	var atoms []models.Atom
	if err := r.db.SelectContext(ctx, &atoms, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list remediation atoms: %w", err)
	}
	return atoms, r.attachLinksToSlice(ctx, atoms)
}

// PersistAtom inserts a new atom with its skill links. Atoms are never
// deleted afterwards, only deactivated.
func (r *AtomRepository) PersistAtom(ctx context.Context, atom *models.Atom) error {
	now := time.Now()
	atom.CreatedAt = now
	atom.UpdatedAt = now

	return withRetry(ctx, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO atoms (id, section_id, concept, content_type, format, difficulty, body, tags, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, atom.ID, atom.SectionID, atom.Concept, atom.ContentType, atom.Format,
			atom.Difficulty, atom.Body, atom.Tags, atom.Active, atom.CreatedAt, atom.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert atom: %w", err)
		}

		for _, link := range atom.SkillLinks {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO atom_skills (atom_id, skill_id, weight, is_primary)
				VALUES ($1, $2, $3, $4)
			`, atom.ID, link.SkillID, link.Weight, link.IsPrimary)
			if err != nil {
				return fmt.Errorf("failed to insert skill link: %w", err)
			}
		}
		return tx.Commit()
	})
}

// Deactivate retires an atom without deleting it.
func (r *AtomRepository) Deactivate(ctx context.Context, id string) error {
	return withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx,
			"UPDATE atoms SET active = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to deactivate atom: %w", err)
		}
		return nil
	})
}

func (r *AtomRepository) attachLinksToSlice(ctx context.Context, atoms []models.Atom) error {
	ptrs := make([]*models.Atom, len(atoms))
	for i := range atoms {
		ptrs[i] = &atoms[i]
	}
	return r.attachSkillLinks(ctx, ptrs)
}

func (r *AtomRepository) attachSkillLinks(ctx context.Context, atoms []*models.Atom) error {
	if len(atoms) == 0 {
		return nil
	}
	ids := make([]string, len(atoms))
	byID := make(map[string]*models.Atom, len(atoms))
	for i, a := range atoms {
		ids[i] = a.ID
		byID[a.ID] = a
	}

	query, args, err := sqlx.In("SELECT * FROM atom_skills WHERE atom_id IN (?)", ids)
	if err != nil {
		return fmt.Errorf("failed to build skill link query: %w", err)
	}
	var links []models.SkillLink
	if err := r.db.SelectContext(ctx, &links, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load skill links: %w", err)
	}
	for _, link := range links {
		if atom, ok := byID[link.AtomID]; ok {
			atom.SkillLinks = append(atom.SkillLinks, link)
		}
	}
	return nil
}
