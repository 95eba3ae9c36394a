package models

import "time"

// GenerationTrigger records why on-demand synthesis was requested.
type GenerationTrigger string

const (
	TriggerFailedQuestion  GenerationTrigger = "failed-question"
	TriggerMissingCoverage GenerationTrigger = "missing-coverage"
	TriggerUserRequest     GenerationTrigger = "user-request"
	TriggerProactive       GenerationTrigger = "proactive"
)

// GenerationRequest asks the orchestrator to ensure remediation content
// exists for a concept.
type GenerationRequest struct {
	Concept      string            `json:"concept"`
	SkillID      string            `json:"skill_id"`
	SectionID    string            `json:"section_id"`
	Trigger      GenerationTrigger `json:"trigger"`
	ContentTypes []string          `json:"content_types"`
	Count        int               `json:"count"`
}

// GenerationResult is the outcome of an ensure-remediation call. Generation
// failures are non-fatal and collected in Errors so callers can proceed
// with a partial, possibly empty, atom list.
type GenerationResult struct {
	Atoms     []Atom        `json:"atoms"`
	FromCache bool          `json:"from_cache"`
	Elapsed   time.Duration `json:"elapsed"`
	Errors    []string      `json:"errors,omitempty"`
}
