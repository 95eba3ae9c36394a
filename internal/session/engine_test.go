package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studyengine/internal/database"
	"github.com/example/studyengine/internal/generation"
	"github.com/example/studyengine/internal/memory"
	"github.com/example/studyengine/internal/remediation"
	"github.com/example/studyengine/internal/struggle"
	"github.com/example/studyengine/pkg/models"
)

type fakeSynth struct {
	calls int
}

func (f *fakeSynth) Synthesize(_ context.Context, concept, contentType string, count int) ([]models.Atom, error) {
	f.calls++
	atoms := make([]models.Atom, count)
	for i := range atoms {
		atoms[i] = models.Atom{
			Concept:     concept,
			ContentType: contentType,
			Format:      models.FormatRecall,
			Difficulty:  0.3,
			Body:        fmt.Sprintf("generated %s item %d --- answer", contentType, i),
		}
	}
	return atoms, nil
}

func newTestEngine(t *testing.T) (*Engine, *database.DB, *fakeSynth) {
	t.Helper()
	db, err := database.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	atoms := database.NewAtomRepository(db)
	synth := &fakeSynth{}
	orchestrator := generation.NewOrchestrator(synth, atoms)
	router := remediation.NewRouter(atoms, orchestrator)
	struggles := struggle.NewTracker(database.NewStruggleRepository(db), database.NewSectionRepository(db))

	return New(db, memory.NewModel(), struggles, router), db, synth
}

func seed(t *testing.T, db *database.DB) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, database.NewLearnerRepository(db).Upsert(ctx, &models.Learner{
		ID: "l1", Name: "Dana", FocusSkills: models.StringList{"s1"},
	}))
	require.NoError(t, database.NewSectionRepository(db).Upsert(ctx, &models.Section{
		ID: "sec1", Title: "Fractions", Centrality: 0.7, StaticWeight: 0.4,
	}))

	atoms := database.NewAtomRepository(db)
	for _, a := range []struct {
		id     string
		format models.PresentationFormat
	}{
		{"atom-flash", models.FormatRecall},
		{"atom-recog", models.FormatRecognition},
	} {
		require.NoError(t, atoms.PersistAtom(ctx, &models.Atom{
			ID: a.id, SectionID: "sec1", Concept: "fractions",
			ContentType: "flashcard", Format: a.format,
			Difficulty: 0.3, Body: "body", Active: true,
			SkillLinks: []models.SkillLink{{AtomID: a.id, SkillID: "s1", Weight: 1, IsPrimary: true}},
		}))
	}
}

func TestNextAtomUnknownLearner(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.NextAtom(context.Background(), "ghost", "")
	assert.ErrorIs(t, err, ErrUnknownLearner)
}

func TestNextAtomAvoidsRepeatingFormat(t *testing.T) {
	engine, db, _ := newTestEngine(t)
	seed(t, db)

	atom, err := engine.NextAtom(context.Background(), "l1", models.FormatRecall)
	require.NoError(t, err)
	assert.Equal(t, "atom-recog", atom.ID, "the other format wins when one was just shown")
}

func TestRecordResponseUnknownAtom(t *testing.T) {
	engine, db, _ := newTestEngine(t)
	seed(t, db)

	_, err := engine.RecordResponse(context.Background(), &models.ResponseEvent{
		EventID: "ev1", LearnerID: "l1", AtomID: "ghost", Correct: true, Confidence: 3,
	})
	assert.ErrorIs(t, err, ErrUnknownAtom)
}

func TestRecordResponseCorrectUpdatesEverything(t *testing.T) {
	engine, db, _ := newTestEngine(t)
	seed(t, db)
	ctx := context.Background()

	feedback, err := engine.RecordResponse(ctx, &models.ResponseEvent{
		EventID: "ev1", LearnerID: "l1", AtomID: "atom-flash",
		Correct: true, PartialScore: 1, Confidence: 4, LatencyMS: 2500,
	})
	require.NoError(t, err)
	assert.True(t, feedback.Correct)
	assert.Nil(t, feedback.Remediation)

	require.NotNil(t, feedback.Memory)
	assert.Equal(t, 1, feedback.Memory.ReviewCount)
	assert.Greater(t, feedback.Memory.Stability, 1.0, "a perfect review grows stability")

	m, err := database.NewMasteryRepository(db).Get(ctx, "l1", "s1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.InDelta(t, 0.08, m.Mastery, 1e-9, "gain = weight * conf/5 * 0.10")
}

func TestRecordResponseWrongRoutesRemediation(t *testing.T) {
	engine, db, synth := newTestEngine(t)
	seed(t, db)
	ctx := context.Background()

	feedback, err := engine.RecordResponse(ctx, &models.ResponseEvent{
		EventID: "ev1", LearnerID: "l1", AtomID: "atom-flash",
		Correct: false, Confidence: 2, LatencyMS: 9000,
	})
	require.NoError(t, err)
	assert.False(t, feedback.Correct)
	assert.Equal(t, models.FailureEncoding, feedback.Mode, "a first-ever miss reads as never encoded")

	require.NotNil(t, feedback.Remediation)
	assert.GreaterOrEqual(t, len(feedback.Remediation.Atoms), 3)
	assert.Positive(t, synth.calls)

	w, err := database.NewStruggleRepository(db).Get(ctx, "sec1", "l1")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.InDelta(t, 0.25, w.DynamicWeight, 1e-9, "encoding bump at zero accuracy")
	assert.InDelta(t, 0.4, w.StaticWeight, 1e-9, "seeded from the section's declared weight")
}

func TestRecordResponseReplayIsNoOp(t *testing.T) {
	engine, db, _ := newTestEngine(t)
	seed(t, db)
	ctx := context.Background()

	ev := &models.ResponseEvent{
		EventID: "ev1", LearnerID: "l1", AtomID: "atom-flash",
		Correct: true, PartialScore: 1, Confidence: 4, LatencyMS: 2500,
	}
	first, err := engine.RecordResponse(ctx, ev)
	require.NoError(t, err)
	replay, err := engine.RecordResponse(ctx, ev)
	require.NoError(t, err)

	assert.Equal(t, first.Memory.ReviewCount, replay.Memory.ReviewCount)

	m, err := database.NewMasteryRepository(db).Get(ctx, "l1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.SampleCount, "mastery saw the event exactly once")
}

func TestHypercorrectionThresholdIsTunable(t *testing.T) {
	engine, db, _ := newTestEngine(t)
	seed(t, db)
	ctx := context.Background()
	engine.Tracker.HypercorrectionConf = 5

	require.NoError(t, database.NewMasteryRepository(db).Upsert(ctx, &models.SkillMastery{
		LearnerID: "l1", SkillID: "s1", Mastery: 0.5,
	}))

	_, err := engine.RecordResponse(ctx, &models.ResponseEvent{
		EventID: "ev1", LearnerID: "l1", AtomID: "atom-flash",
		Correct: false, Confidence: 4, LatencyMS: 8000,
	})
	require.NoError(t, err)

	m, err := database.NewMasteryRepository(db).Get(ctx, "l1", "s1")
	require.NoError(t, err)
	assert.InDelta(t, 0.35, m.Mastery, 1e-9,
		"confidence 4 stays below the raised threshold, so no extra penalty")
}

func TestRecordResponseConcurrentDuplicateDelivery(t *testing.T) {
	engine, db, _ := newTestEngine(t)
	seed(t, db)
	ctx := context.Background()

	// Each event arrives twice at once; only one delivery may reach the
	// downstream updates.
	const events = 40
	for i := 0; i < events; i++ {
		ev := models.ResponseEvent{
			EventID: fmt.Sprintf("ev%d", i), LearnerID: "l1", AtomID: "atom-flash",
			Correct: true, PartialScore: 1, Confidence: 3, LatencyMS: 2000,
		}
		start := make(chan struct{})
		var wg sync.WaitGroup
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				delivery := ev
				_, err := engine.RecordResponse(ctx, &delivery)
				assert.NoError(t, err)
			}()
		}
		close(start)
		wg.Wait()
	}

	m, err := database.NewMasteryRepository(db).Get(ctx, "l1", "s1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, events, m.SampleCount, "mastery saw each event exactly once")

	state, err := database.NewMemoryStateRepository(db).Get(ctx, "l1", "atom-flash")
	require.NoError(t, err)
	assert.Equal(t, events, state.ReviewCount)
}

func TestProgressSummary(t *testing.T) {
	engine, db, _ := newTestEngine(t)
	seed(t, db)
	ctx := context.Background()

	_, err := engine.RecordResponse(ctx, &models.ResponseEvent{
		EventID: "ev1", LearnerID: "l1", AtomID: "atom-flash",
		Correct: true, PartialScore: 1, Confidence: 3, LatencyMS: 2000,
	})
	require.NoError(t, err)

	stats, err := engine.Progress(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TrackedAtoms)
	assert.Equal(t, 1, stats.TotalResponses)
	assert.InDelta(t, 1.0, stats.Accuracy, 1e-9)
}
