package remediation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studyengine/pkg/models"
)

type fakeSource struct {
	atoms []models.Atom
}

func (f *fakeSource) ListRemediation(_ context.Context, skillID string, contentTypes []string) ([]models.Atom, error) {
	return f.atoms, nil
}

type fakeGenerator struct {
	called bool
	req    models.GenerationRequest
}

func (f *fakeGenerator) EnsureRemediation(_ context.Context, req models.GenerationRequest, existing []models.Atom, minRequired int) (*models.GenerationResult, error) {
	f.called = true
	f.req = req
	atoms := existing
	for len(atoms) < minRequired {
		atoms = append(atoms, models.Atom{Concept: req.Concept})
	}
	return &models.GenerationResult{Atoms: atoms}, nil
}

func TestRouteSufficientPoolSkipsGeneration(t *testing.T) {
	src := &fakeSource{atoms: []models.Atom{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	gen := &fakeGenerator{}
	r := NewRouter(src, gen)

	result, err := r.Route(context.Background(), "s1", "sec1", "fractions", models.FailureRetrieval)
	require.NoError(t, err)
	assert.Len(t, result.Atoms, 3)
	assert.False(t, gen.called)
}

func TestRouteThinPoolDelegates(t *testing.T) {
	src := &fakeSource{atoms: []models.Atom{{ID: "a"}}}
	gen := &fakeGenerator{}
	r := NewRouter(src, gen)

	result, err := r.Route(context.Background(), "s1", "sec1", "fractions", models.FailureEncoding)
	require.NoError(t, err)
	assert.True(t, gen.called)
	assert.Len(t, result.Atoms, 3)
	assert.Equal(t, models.TriggerFailedQuestion, gen.req.Trigger)
	assert.Equal(t, []string{"explanation", "flashcard"}, gen.req.ContentTypes)
}

func TestRouteSlipNeedsNoContent(t *testing.T) {
	gen := &fakeGenerator{}
	r := NewRouter(&fakeSource{}, gen)

	result, err := r.Route(context.Background(), "s1", "sec1", "fractions", models.FailureExecutive)
	require.NoError(t, err)
	assert.Empty(t, result.Atoms)
	assert.False(t, gen.called)
}

func TestRouteFatigueNeedsNoContent(t *testing.T) {
	gen := &fakeGenerator{}
	r := NewRouter(&fakeSource{}, gen)

	result, err := r.Route(context.Background(), "s1", "sec1", "fractions", models.FailureFatigue)
	require.NoError(t, err)
	assert.Empty(t, result.Atoms)
	assert.False(t, gen.called)
}

func TestContentTypeMappingCoversEveryMode(t *testing.T) {
	modes := []models.FailureMode{
		models.FailureEncoding,
		models.FailureRetrieval,
		models.FailureDiscrimination,
		models.FailureIntegration,
		models.FailureExecutive,
		models.FailureFatigue,
	}
	contentModes := 0
	for _, m := range modes {
		if ContentTypesFor(m) != nil {
			contentModes++
		}
	}
	assert.Equal(t, 4, contentModes, "four modes route to content, two to re-presentation")
}
