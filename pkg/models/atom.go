package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// PresentationFormat tags how an atom is presented to the learner.
// Accuracy is tracked per format so transfer failures can be detected.
type PresentationFormat string

const (
	FormatRecognition PresentationFormat = "recognition"
	FormatRecall      PresentationFormat = "recall"
	FormatCloze       PresentationFormat = "cloze"
	FormatProcedural  PresentationFormat = "procedural"
	FormatSequencing  PresentationFormat = "sequencing"
)

// IsProcedural reports whether the format requires applying a skill
// rather than recognizing it.
func (f PresentationFormat) IsProcedural() bool {
	return f == FormatProcedural || f == FormatSequencing
}

// Atom represents a single study item. Atoms are created by ingestion or
// generation and are never deleted, only deactivated.
type Atom struct {
	ID          string             `json:"id" db:"id"`
	SectionID   string             `json:"section_id" db:"section_id"`
	Concept     string             `json:"concept" db:"concept"`
	ContentType string             `json:"content_type" db:"content_type"` // e.g. "flashcard", "cloze", "worked_example"
	Format      PresentationFormat `json:"format" db:"format"`
	Difficulty  float64            `json:"difficulty" db:"difficulty"` // 0-1 scale
	Body        string             `json:"body" db:"body"`
	Tags        StringList         `json:"tags" db:"tags"`
	Active      bool               `json:"active" db:"active"`
	SkillLinks  []SkillLink        `json:"skill_links" db:"-"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
}

// SkillLink connects an atom to a skill with a weight in [0,1].
type SkillLink struct {
	AtomID    string  `json:"atom_id" db:"atom_id"`
	SkillID   string  `json:"skill_id" db:"skill_id"`
	Weight    float64 `json:"weight" db:"weight"`
	IsPrimary bool    `json:"is_primary" db:"is_primary"`
}

// PrimarySkill returns the skill id of the primary link, or the first
// link when none is marked primary.
func (a *Atom) PrimarySkill() string {
	for _, l := range a.SkillLinks {
		if l.IsPrimary {
			return l.SkillID
		}
	}
	if len(a.SkillLinks) > 0 {
		return a.SkillLinks[0].SkillID
	}
	return ""
}

// SkillWeight returns the link weight for the given skill, 0 if unlinked.
func (a *Atom) SkillWeight(skillID string) float64 {
	for _, l := range a.SkillLinks {
		if l.SkillID == skillID {
			return l.Weight
		}
	}
	return 0
}

// HasTag reports whether the atom carries the given tag.
func (a *Atom) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends a tag if not already present.
func (a *Atom) AddTag(tag string) {
	if !a.HasTag(tag) {
		a.Tags = append(a.Tags, tag)
	}
}

// StringList stores a list of strings as a comma-separated TEXT column.
type StringList []string

// Value implements driver.Valuer.
func (s StringList) Value() (driver.Value, error) {
	return strings.Join(s, ","), nil
}

// Scan implements sql.Scanner.
func (s *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case string:
		if v == "" {
			*s = nil
			return nil
		}
		*s = strings.Split(v, ",")
		return nil
	case []byte:
		return s.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}
