package generation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studyengine/pkg/models"
)

type fakeSynth struct {
	mu     sync.Mutex
	calls  int32
	delay  time.Duration
	err    error
	blocks bool
}

func (f *fakeSynth) Synthesize(ctx context.Context, concept, contentType string, count int) ([]models.Atom, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.blocks {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	atoms := make([]models.Atom, count)
	for i := range atoms {
		atoms[i] = models.Atom{Concept: concept, ContentType: contentType, Body: "generated"}
	}
	return atoms, nil
}

type fakeStore struct {
	mu        sync.Mutex
	persisted []models.Atom
	failFirst bool
	failed    bool
}

func (f *fakeStore) PersistAtom(_ context.Context, atom *models.Atom) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFirst && !f.failed {
		f.failed = true
		return errors.New("disk full")
	}
	f.persisted = append(f.persisted, *atom)
	return nil
}

func request() models.GenerationRequest {
	return models.GenerationRequest{
		Concept:      "pointer-arithmetic",
		SkillID:      "s1",
		Trigger:      models.TriggerFailedQuestion,
		ContentTypes: []string{"flashcard"},
		Count:        3,
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	a := models.GenerationRequest{Concept: "c", Trigger: models.TriggerProactive, ContentTypes: []string{"b", "a"}}
	b := models.GenerationRequest{Concept: "c", Trigger: models.TriggerProactive, ContentTypes: []string{"a", "b"}}
	assert.Equal(t, CacheKey(a), CacheKey(b), "content type order must not change the key")
}

func TestExistingContentSkipsGeneration(t *testing.T) {
	synth := &fakeSynth{}
	o := NewOrchestrator(synth, &fakeStore{})

	existing := []models.Atom{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	result, err := o.EnsureRemediation(context.Background(), request(), existing, 3)
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Len(t, result.Atoms, 3)
	assert.Zero(t, atomic.LoadInt32(&synth.calls))
}

func TestGenerationFillsGapAndPersists(t *testing.T) {
	synth := &fakeSynth{}
	store := &fakeStore{}
	o := NewOrchestrator(synth, store)

	result, err := o.EnsureRemediation(context.Background(), request(), []models.Atom{{ID: "a"}}, 3)
	require.NoError(t, err)
	assert.Len(t, result.Atoms, 3)
	assert.Empty(t, result.Errors)
	assert.Len(t, store.persisted, 2)

	for _, atom := range store.persisted {
		assert.True(t, atom.HasTag(TagJITGenerated))
		assert.True(t, atom.HasTag("trigger:failed-question"))
		assert.NotEmpty(t, atom.ID)
	}
}

func TestCacheHit(t *testing.T) {
	synth := &fakeSynth{}
	o := NewOrchestrator(synth, &fakeStore{})
	ctx := context.Background()

	_, err := o.EnsureRemediation(ctx, request(), nil, 3)
	require.NoError(t, err)
	calls := atomic.LoadInt32(&synth.calls)

	result, err := o.EnsureRemediation(ctx, request(), nil, 3)
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	assert.Equal(t, calls, atomic.LoadInt32(&synth.calls), "cache hit must not re-synthesize")
}

func TestCacheHitMergesCallerPool(t *testing.T) {
	synth := &fakeSynth{}
	o := NewOrchestrator(synth, &fakeStore{})
	ctx := context.Background()

	first, err := o.EnsureRemediation(ctx, request(), []models.Atom{{ID: "first"}}, 3)
	require.NoError(t, err)
	require.Len(t, first.Atoms, 3)

	result, err := o.EnsureRemediation(ctx, request(), []models.Atom{{ID: "x"}, {ID: "y"}}, 3)
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	require.Len(t, result.Atoms, 4, "caller's two atoms plus the two cached generated ones")

	ids := make(map[string]bool)
	for _, atom := range result.Atoms {
		ids[atom.ID] = true
	}
	assert.True(t, ids["x"])
	assert.True(t, ids["y"])
	assert.False(t, ids["first"], "the first caller's pool must not leak into later hits")
}

func TestCacheExpiry(t *testing.T) {
	synth := &fakeSynth{}
	o := NewOrchestrator(synth, &fakeStore{})
	o.CacheTTL = time.Millisecond
	ctx := context.Background()

	_, err := o.EnsureRemediation(ctx, request(), nil, 3)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	result, err := o.EnsureRemediation(ctx, request(), nil, 3)
	require.NoError(t, err)
	assert.False(t, result.FromCache)
}

func TestConcurrentRequestsCoalesce(t *testing.T) {
	synth := &fakeSynth{delay: 50 * time.Millisecond}
	o := NewOrchestrator(synth, &fakeStore{})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*models.GenerationResult, 10)
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := o.EnsureRemediation(ctx, request(), nil, 3)
			require.NoError(t, err)
			results[i] = r
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&synth.calls),
		"identical concurrent requests must coalesce onto one synthesis call")
	for _, r := range results {
		assert.Len(t, r.Atoms, 3)
	}
}

func TestSynthesisTimeoutIsNonFatal(t *testing.T) {
	synth := &fakeSynth{blocks: true}
	o := NewOrchestrator(synth, &fakeStore{})
	o.SynthesisTimeout = 10 * time.Millisecond

	existing := []models.Atom{{ID: "a"}}
	result, err := o.EnsureRemediation(context.Background(), request(), existing, 3)
	require.NoError(t, err, "timeout degrades to existing atoms, never an error")
	assert.Len(t, result.Atoms, 1)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "timed out")
}

func TestPersistFailureDoesNotAbortBatch(t *testing.T) {
	synth := &fakeSynth{}
	store := &fakeStore{failFirst: true}
	o := NewOrchestrator(synth, store)

	result, err := o.EnsureRemediation(context.Background(), request(), nil, 3)
	require.NoError(t, err)
	assert.Len(t, result.Errors, 1)
	assert.Len(t, result.Atoms, 2, "remaining atoms still attempted after one persist failure")
}

func TestProactiveGenerateCapped(t *testing.T) {
	synth := &fakeSynth{}
	o := NewOrchestrator(synth, &fakeStore{})

	var requests []models.GenerationRequest
	for _, c := range []string{"c1", "c2", "c3", "c4", "c5"} {
		requests = append(requests, models.GenerationRequest{
			Concept: c, ContentTypes: []string{"flashcard"}, Count: 1,
		})
	}
	o.ProactiveGenerate(context.Background(), requests)
	assert.LessOrEqual(t, atomic.LoadInt32(&synth.calls), int32(DefaultMaxProactive))
}
