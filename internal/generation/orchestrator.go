package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/example/studyengine/pkg/models"
)

// ErrGenerationTimeout marks a synthesis call that exceeded its deadline.
// It is collected in the result's Errors list, never raised to the caller.
var ErrGenerationTimeout = errors.New("generation timed out")

// Defaults for the orchestrator policy.
const (
	DefaultMinRequired      = 3
	DefaultCacheTTL         = 15 * time.Minute
	DefaultSynthesisTimeout = 60 * time.Second
	DefaultMaxProactive     = 3
)

// Tags stamped onto every generated atom.
const (
	TagJITGenerated = "jit_generated"
	tagTriggerPfx   = "trigger:"
)

// Synthesizer is the external content-synthesis collaborator. It may fail
// or time out; the orchestrator treats it as unreliable.
type Synthesizer interface {
	Synthesize(ctx context.Context, concept, contentType string, count int) ([]models.Atom, error)
}

// AtomStore persists generated atoms. Once persisted, the store is
// authoritative; the cache is not.
type AtomStore interface {
	PersistAtom(ctx context.Context, atom *models.Atom) error
}

// Orchestrator deduplicates, rate-limits and caches on-demand content
// synthesis. Concurrent requests for the same cache key coalesce onto a
// single in-flight synthesis call.
type Orchestrator struct {
	synth Synthesizer
	store AtomStore

	CacheTTL         time.Duration
	SynthesisTimeout time.Duration
	MaxProactive     int

	mu       sync.Mutex
	cache    map[string]cacheEntry
	inflight map[string]*inflightCall
}

// cacheEntry holds generated atoms only; each caller's existing pool is
// merged in at lookup time.
type cacheEntry struct {
	result  models.GenerationResult
	expires time.Time
}

type inflightCall struct {
	done   chan struct{}
	result models.GenerationResult
}

// NewOrchestrator creates an orchestrator with the default policy.
func NewOrchestrator(synth Synthesizer, store AtomStore) *Orchestrator {
	return &Orchestrator{
		synth:            synth,
		store:            store,
		CacheTTL:         DefaultCacheTTL,
		SynthesisTimeout: DefaultSynthesisTimeout,
		MaxProactive:     DefaultMaxProactive,
		cache:            map[string]cacheEntry{},
		inflight:         map[string]*inflightCall{},
	}
}

// CacheKey builds the deterministic key (concept, trigger, sorted content
// types) a request is cached and deduplicated under.
func CacheKey(req models.GenerationRequest) string {
	types := append([]string(nil), req.ContentTypes...)
	sort.Strings(types)
	return req.Concept + "|" + string(req.Trigger) + "|" + strings.Join(types, ",")
}

// EnsureRemediation guarantees the caller has remediation content for the
// request's concept. When existing atoms already satisfy minRequired no
// generation happens. Generation failures are non-fatal and collected in
// the result's Errors; callers can proceed with a partial or empty list.
func (o *Orchestrator) EnsureRemediation(ctx context.Context, req models.GenerationRequest, existing []models.Atom, minRequired int) (*models.GenerationResult, error) {
	if minRequired <= 0 {
		minRequired = DefaultMinRequired
	}
	if len(existing) >= minRequired {
		return &models.GenerationResult{Atoms: existing, FromCache: false}, nil
	}

	key := CacheKey(req)

	o.mu.Lock()
	if entry, ok := o.cache[key]; ok {
		if time.Now().Before(entry.expires) {
			o.mu.Unlock()
			result := entry.result
			result.Atoms = mergePool(existing, entry.result.Atoms)
			result.FromCache = true
			return &result, nil
		}
		delete(o.cache, key) // expired entries are evicted lazily
	}
	if call, ok := o.inflight[key]; ok {
		o.mu.Unlock()
		select {
		case <-call.done:
			result := call.result
			result.Atoms = mergePool(existing, call.result.Atoms)
			result.FromCache = true
			return &result, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	o.inflight[key] = call
	o.mu.Unlock()

	gen := o.generate(ctx, req, minRequired-len(existing))

	o.mu.Lock()
	call.result = gen
	close(call.done)
	delete(o.inflight, key)
	if len(gen.Atoms) > 0 {
		o.cache[key] = cacheEntry{result: gen, expires: time.Now().Add(o.CacheTTL)}
	}
	o.mu.Unlock()

	result := gen
	result.Atoms = mergePool(existing, gen.Atoms)
	return &result, nil
}

// mergePool prepends the caller's existing atoms to the generated ones
// without aliasing either slice.
func mergePool(existing, generated []models.Atom) []models.Atom {
	merged := make([]models.Atom, 0, len(existing)+len(generated))
	merged = append(merged, existing...)
	return append(merged, generated...)
}

// ProactiveGenerate synthesizes ahead of need for the given concepts,
// capped at MaxProactive to bound cost. Concepts run in parallel; each
// result's non-fatal errors are logged and dropped.
func (o *Orchestrator) ProactiveGenerate(ctx context.Context, requests []models.GenerationRequest) int {
	if len(requests) > o.MaxProactive {
		requests = requests[:o.MaxProactive]
	}

	generated := 0
	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(o.MaxProactive)
	for _, req := range requests {
		req := req
		req.Trigger = models.TriggerProactive
		p.Go(func() {
			result, err := o.EnsureRemediation(ctx, req, nil, req.Count)
			if err != nil {
				log.Printf("proactive generation for %q failed: %v", req.Concept, err)
				return
			}
			for _, msg := range result.Errors {
				log.Printf("proactive generation for %q: %s", req.Concept, msg)
			}
			mu.Lock()
			generated += len(result.Atoms)
			mu.Unlock()
		})
	}
	p.Wait()
	return generated
}

// generate runs the synthesis calls and persists whatever came back. One
// atom's persistence failure does not abort the batch.
func (o *Orchestrator) generate(ctx context.Context, req models.GenerationRequest, missing int) models.GenerationResult {
	start := time.Now()
	var result models.GenerationResult

	types := req.ContentTypes
	if len(types) == 0 {
		types = []string{"flashcard"}
	}
	perType := missing / len(types)
	if missing%len(types) != 0 {
		perType++
	}

	for _, contentType := range types {
		atoms, err := o.synthesizeOne(ctx, req, contentType, perType)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("synthesize %s/%s: %v", req.Concept, contentType, err))
			continue
		}
		for i := range atoms {
			atom := atoms[i]
			o.stampProvenance(&atom, req)
			if err := o.store.PersistAtom(ctx, &atom); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("persist atom %s: %v", atom.ID, err))
				continue
			}
			result.Atoms = append(result.Atoms, atom)
		}
	}

	result.Elapsed = time.Since(start)
	return result
}

// synthesizeOne wraps the collaborator call with the synthesis timeout so a
// stalled synthesis cannot block a learner's study loop.
func (o *Orchestrator) synthesizeOne(ctx context.Context, req models.GenerationRequest, contentType string, count int) ([]models.Atom, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.SynthesisTimeout)
	defer cancel()

	atoms, err := o.synth.Synthesize(callCtx, req.Concept, contentType, count)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrGenerationTimeout
	}
	return atoms, err
}

func (o *Orchestrator) stampProvenance(atom *models.Atom, req models.GenerationRequest) {
	if atom.ID == "" {
		atom.ID = uuid.NewString()
	}
	if atom.SectionID == "" {
		atom.SectionID = req.SectionID
	}
	if atom.Concept == "" {
		atom.Concept = req.Concept
	}
	if req.SkillID != "" && len(atom.SkillLinks) == 0 {
		atom.SkillLinks = []models.SkillLink{{AtomID: atom.ID, SkillID: req.SkillID, Weight: 1.0, IsPrimary: true}}
	}
	atom.Active = true
	atom.AddTag(TagJITGenerated)
	atom.AddTag(tagTriggerPfx + string(req.Trigger))
}
