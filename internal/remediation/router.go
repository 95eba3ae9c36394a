package remediation

import (
	"context"
	"fmt"

	"github.com/example/studyengine/pkg/models"
)

// DefaultMinAtoms is the minimum remediation pool size before on-demand
// generation kicks in.
const DefaultMinAtoms = 3

// AtomSource lists existing remediation atoms for a skill filtered by
// content type.
type AtomSource interface {
	ListRemediation(ctx context.Context, skillID string, contentTypes []string) ([]models.Atom, error)
}

// Generator fills remediation gaps; satisfied by the generation
// orchestrator.
type Generator interface {
	EnsureRemediation(ctx context.Context, req models.GenerationRequest, existing []models.Atom, minRequired int) (*models.GenerationResult, error)
}

// Router picks remediation content for a diagnosed failure, falling back
// to on-demand generation when the existing pool is too thin.
type Router struct {
	atoms    AtomSource
	gen      Generator
	MinAtoms int
}

// NewRouter creates a router over the given collaborators.
func NewRouter(atoms AtomSource, gen Generator) *Router {
	return &Router{atoms: atoms, gen: gen, MinAtoms: DefaultMinAtoms}
}

// ContentTypesFor maps a failure mode to the remediation content types that
// address it. The switch is exhaustive over the closed enum: adding a mode
// without extending this mapping is a compile-visible gap, not a silent
// string miss. Fatigue and executive slips need no new content.
func ContentTypesFor(mode models.FailureMode) []string {
	switch mode {
	case models.FailureEncoding:
		return []string{"explanation", "flashcard"}
	case models.FailureRetrieval:
		return []string{"flashcard", "cloze"}
	case models.FailureDiscrimination:
		return []string{"contrast", "flashcard"}
	case models.FailureIntegration:
		return []string{"worked_example", "procedural"}
	case models.FailureExecutive:
		return nil
	case models.FailureFatigue:
		return nil
	default:
		return []string{"flashcard"}
	}
}

// Route selects remediation atoms for the diagnosed (skill, mode) pair.
// A pool below MinAtoms delegates to the generator; generation errors are
// non-fatal and the caller receives whatever atoms exist.
func (r *Router) Route(ctx context.Context, skillID, sectionID, concept string, mode models.FailureMode) (*models.GenerationResult, error) {
	types := ContentTypesFor(mode)
	if types == nil {
		// Slips and fatigue are not content gaps; re-presentation of
		// existing material suffices.
		return &models.GenerationResult{}, nil
	}

	existing, err := r.atoms.ListRemediation(ctx, skillID, types)
	if err != nil {
		return nil, fmt.Errorf("failed to list remediation atoms: %w", err)
	}
	if len(existing) >= r.MinAtoms {
		return &models.GenerationResult{Atoms: existing}, nil
	}

	req := models.GenerationRequest{
		Concept:      concept,
		SkillID:      skillID,
		SectionID:    sectionID,
		Trigger:      models.TriggerFailedQuestion,
		ContentTypes: types,
		Count:        r.MinAtoms,
	}
	return r.gen.EnsureRemediation(ctx, req, existing, r.MinAtoms)
}
