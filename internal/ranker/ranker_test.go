package ranker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studyengine/internal/memory"
	"github.com/example/studyengine/pkg/models"
)

func newTestRanker() *Ranker {
	return New(memory.NewModel())
}

func cand(id string, format models.PresentationFormat) Candidate {
	return Candidate{
		Atom: models.Atom{ID: id, Format: format, Active: true},
	}
}

func TestSelectNextEmptyPool(t *testing.T) {
	r := newTestRanker()
	_, err := r.SelectNext(nil, Context{Now: time.Now()})
	assert.ErrorIs(t, err, ErrNoEligibleAtoms)
}

func TestSelectNextDeterministicTieBreak(t *testing.T) {
	r := newTestRanker()
	pool := []Candidate{
		cand("c", models.FormatRecall),
		cand("a", models.FormatRecall),
		cand("b", models.FormatRecall),
	}
	ctx := Context{Now: time.Now()}

	first, err := r.SelectNext(pool, ctx)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := r.SelectNext(pool, ctx)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID, "identical scores must select stably")
	}
	assert.Equal(t, "a", first.ID)
}

func TestSelectNextAntiRepetition(t *testing.T) {
	r := newTestRanker()
	pool := []Candidate{
		cand("a", models.FormatRecall),
		cand("b", models.FormatRecognition),
		cand("c", models.FormatRecall),
	}
	got, err := r.SelectNext(pool, Context{Now: time.Now(), PreviousFormat: models.FormatRecall})
	require.NoError(t, err)
	assert.Equal(t, models.FormatRecognition, got.Format)
}

func TestSelectNextSingleFormatAllowsRepetition(t *testing.T) {
	r := newTestRanker()
	pool := []Candidate{
		cand("a", models.FormatRecall),
		cand("b", models.FormatRecall),
	}
	got, err := r.SelectNext(pool, Context{Now: time.Now(), PreviousFormat: models.FormatRecall})
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestGapFilterPrefersGapAtoms(t *testing.T) {
	r := newTestRanker()
	gapAtom := cand("zzz", models.FormatRecall)
	gapAtom.Atom.SkillLinks = []models.SkillLink{{SkillID: "s-gap", Weight: 0.8}}
	other := cand("aaa", models.FormatRecall)
	other.Atom.SkillLinks = []models.SkillLink{{SkillID: "s-other", Weight: 0.9}}
	// Without the gap filter "aaa" would win the tie-break.
	got, err := r.SelectNext([]Candidate{other, gapAtom}, Context{
		Now:       time.Now(),
		GapSkills: map[string]bool{"s-gap": true},
	})
	require.NoError(t, err)
	assert.Equal(t, "zzz", got.ID)
}

func TestGapFilterRelaxesWhenEmpty(t *testing.T) {
	r := newTestRanker()
	weak := cand("a", models.FormatRecall)
	weak.Atom.SkillLinks = []models.SkillLink{{SkillID: "s-gap", Weight: 0.1}} // below threshold
	got, err := r.SelectNext([]Candidate{weak}, Context{
		Now:       time.Now(),
		GapSkills: map[string]bool{"s-gap": true},
	})
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID, "filter must relax to the full pool, never return none")
}

func TestScoreBounded(t *testing.T) {
	r := newTestRanker()
	now := time.Now()
	state := models.MemoryState{Stability: 0.5, LastReview: now.AddDate(0, 0, -30)}
	c := Candidate{
		Atom:       models.Atom{ID: "a"},
		Memory:     &state,
		Centrality: 1.0,
		Relevance:  1.0,
		Exposures:  0,
	}
	s := r.Score(c, now)
	assert.GreaterOrEqual(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)
}

func TestDecaySignalOrdersByRetrievability(t *testing.T) {
	r := newTestRanker()
	now := time.Now()

	fresh := cand("fresh", models.FormatRecall)
	freshState := models.MemoryState{Stability: 10, LastReview: now.Add(-time.Hour)}
	fresh.Memory = &freshState

	stale := cand("stale", models.FormatRecall)
	staleState := models.MemoryState{Stability: 10, LastReview: now.AddDate(0, 0, -20)}
	stale.Memory = &staleState

	got, err := r.SelectNext([]Candidate{fresh, stale}, Context{Now: now})
	require.NoError(t, err)
	assert.Equal(t, "stale", got.ID)
}

func TestNeverSeenAtomIsMostUrgent(t *testing.T) {
	r := newTestRanker()
	now := time.Now()

	seen := cand("aaa", models.FormatRecall)
	seenState := models.MemoryState{Stability: 10, LastReview: now.Add(-time.Minute)}
	seen.Memory = &seenState
	unseen := cand("zzz", models.FormatRecall)

	got, err := r.SelectNext([]Candidate{seen, unseen}, Context{Now: now})
	require.NoError(t, err)
	assert.Equal(t, "zzz", got.ID)
}

func TestRankOrderStable(t *testing.T) {
	r := newTestRanker()
	pool := []Candidate{
		cand("b", models.FormatRecall),
		cand("a", models.FormatRecall),
	}
	ranked := r.Rank(pool, Context{Now: time.Now()})
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].Atom.ID)
	assert.Equal(t, "b", ranked[1].Atom.ID)
}
