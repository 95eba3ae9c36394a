package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sqlx handle with the driver name so repositories can adapt
// to the active dialect where needed.
type DB struct {
	*sqlx.DB
	Driver string
}

// Connect opens a database connection for the given driver ("sqlite3" or
// "postgres") and bootstraps the schema.
func Connect(driver, dsn string) (*DB, error) {
	if driver == "sqlite3" {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite3" {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		// SQLite doesn't support multiple writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	wrapped := &DB{DB: db, Driver: driver}
	if err := wrapped.initSchema(); err != nil {
		return nil, err
	}
	return wrapped, nil
}

// initSchema creates the tables if they don't exist. The DDL sticks to the
// subset both SQLite and Postgres accept.
func (d *DB) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS learners (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			focus_skills TEXT NOT NULL DEFAULT '',
			atoms_per_session INTEGER NOT NULL DEFAULT 20,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sections (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			centrality REAL NOT NULL DEFAULT 0.5,
			static_weight REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS atoms (
			id TEXT PRIMARY KEY,
			section_id TEXT NOT NULL DEFAULT '',
			concept TEXT NOT NULL DEFAULT '',
			content_type TEXT NOT NULL DEFAULT 'flashcard',
			format TEXT NOT NULL DEFAULT 'recall',
			difficulty REAL NOT NULL DEFAULT 0.3,
			body TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS atom_skills (
			atom_id TEXT NOT NULL,
			skill_id TEXT NOT NULL,
			weight REAL NOT NULL DEFAULT 1,
			is_primary BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (atom_id, skill_id),
			FOREIGN KEY (atom_id) REFERENCES atoms(id)
		)`,
		`CREATE TABLE IF NOT EXISTS memory_states (
			learner_id TEXT NOT NULL,
			atom_id TEXT NOT NULL,
			stability REAL NOT NULL DEFAULT 1.0,
			difficulty REAL NOT NULL DEFAULT 0.3,
			due_at TIMESTAMP NOT NULL,
			last_review TIMESTAMP NOT NULL,
			review_count INTEGER NOT NULL DEFAULT 0,
			lapse_count INTEGER NOT NULL DEFAULT 0,
			last_event_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (learner_id, atom_id)
		)`,
		`CREATE TABLE IF NOT EXISTS skill_mastery (
			learner_id TEXT NOT NULL,
			skill_id TEXT NOT NULL,
			mastery REAL NOT NULL DEFAULT 0,
			confidence_calibration REAL NOT NULL DEFAULT 0,
			sample_count INTEGER NOT NULL DEFAULT 0,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (learner_id, skill_id)
		)`,
		`CREATE TABLE IF NOT EXISTS struggle_weights (
			section_id TEXT NOT NULL,
			learner_id TEXT NOT NULL DEFAULT '',
			static_weight REAL NOT NULL DEFAULT 0,
			dynamic_weight REAL NOT NULL DEFAULT 0,
			combined_priority REAL NOT NULL DEFAULT 0,
			last_touched TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (section_id, learner_id)
		)`,
		`CREATE TABLE IF NOT EXISTS struggle_events (
			id TEXT PRIMARY KEY,
			section_id TEXT NOT NULL,
			learner_id TEXT NOT NULL DEFAULT '',
			trigger_type TEXT NOT NULL,
			mode TEXT NOT NULL,
			accuracy REAL NOT NULL DEFAULT 0,
			before_weight REAL NOT NULL DEFAULT 0,
			after_weight REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS responses (
			event_id TEXT PRIMARY KEY,
			learner_id TEXT NOT NULL,
			atom_id TEXT NOT NULL,
			skill_id TEXT NOT NULL DEFAULT '',
			section_id TEXT NOT NULL DEFAULT '',
			correct BOOLEAN NOT NULL,
			partial_score REAL NOT NULL DEFAULT 0,
			confidence INTEGER NOT NULL DEFAULT 3,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			format TEXT NOT NULL DEFAULT 'recall',
			misconception_tag TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_atoms_section ON atoms(section_id)`,
		`CREATE INDEX IF NOT EXISTS idx_atom_skills_skill ON atom_skills(skill_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_due ON memory_states(learner_id, due_at)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_learner_skill ON responses(learner_id, skill_id)`,
		`CREATE INDEX IF NOT EXISTS idx_struggle_events_section ON struggle_events(section_id, learner_id)`,
	}

	for _, stmt := range statements {
		if _, err := d.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
