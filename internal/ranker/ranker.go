package ranker

import (
	"errors"
	"sort"
	"time"

	"github.com/example/studyengine/internal/memory"
	"github.com/example/studyengine/pkg/models"
)

// ErrNoEligibleAtoms is returned when the candidate pool is empty. An empty
// pool is surfaced to the caller, never silently skipped.
var ErrNoEligibleAtoms = errors.New("no eligible atoms")

// Default composite score weights and the skill-gap link threshold.
const (
	DefaultDecayWeight      = 0.30
	DefaultCentralityWeight = 0.25
	DefaultRelevanceWeight  = 0.25
	DefaultNoveltyWeight    = 0.20
	DefaultGapLinkThreshold = 0.3
)

// Candidate bundles an atom with the per-learner signals the score needs.
// Memory is nil when the atom has never been presented to the learner.
type Candidate struct {
	Atom       models.Atom
	Memory     *models.MemoryState
	Centrality float64 // [0,1] topical centrality in the curriculum graph
	Relevance  float64 // [0,1] match against the learner's declared focus
	Exposures  int     // recent presentation count
}

// Context carries the selection constraints for one pick.
type Context struct {
	Now            time.Time
	PreviousFormat models.PresentationFormat // anti-repetition; empty on first pick
	GapSkills      map[string]bool           // skill-gap set; nil disables the prefilter
}

// Weights are the coefficients of the composite score. They should sum
// to 1 so the score stays in [0,1].
type Weights struct {
	Decay      float64
	Centrality float64
	Relevance  float64
	Novelty    float64
}

// Ranker selects the next atom to present using a composite priority score.
type Ranker struct {
	Weights          Weights
	GapLinkThreshold float64

	model *memory.Model
}

// New returns a ranker with the default weights backed by the given
// memory model for the decay signal.
func New(model *memory.Model) *Ranker {
	return &Ranker{
		Weights: Weights{
			Decay:      DefaultDecayWeight,
			Centrality: DefaultCentralityWeight,
			Relevance:  DefaultRelevanceWeight,
			Novelty:    DefaultNoveltyWeight,
		},
		GapLinkThreshold: DefaultGapLinkThreshold,
		model:            model,
	}
}

// SelectNext picks the highest-priority candidate subject to the
// anti-repetition and skill-gap policies. Ties break by atom id so
// selection is reproducible on a fixed state snapshot.
func (r *Ranker) SelectNext(candidates []Candidate, ctx Context) (*models.Atom, error) {
	if len(candidates) == 0 {
		return nil, ErrNoEligibleAtoms
	}

	pool := r.filterGapSkills(candidates, ctx.GapSkills)
	pool = r.filterRepeatedFormat(pool, ctx.PreviousFormat)

	best := pool[0]
	bestScore := r.Score(best, ctx.Now)
	for _, c := range pool[1:] {
		s := r.Score(c, ctx.Now)
		if s > bestScore || (s == bestScore && c.Atom.ID < best.Atom.ID) {
			best, bestScore = c, s
		}
	}
	atom := best.Atom
	return &atom, nil
}

// Rank returns the full pool ordered by descending score, ties broken by
// atom id ascending.
func (r *Ranker) Rank(candidates []Candidate, ctx Context) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := r.Score(ranked[i], ctx.Now), r.Score(ranked[j], ctx.Now)
		if si != sj {
			return si > sj
		}
		return ranked[i].Atom.ID < ranked[j].Atom.ID
	})
	return ranked
}

// Score computes the bounded composite priority
// Z = wD*decay + wC*centrality + wP*relevance + wN*novelty.
func (r *Ranker) Score(c Candidate, now time.Time) float64 {
	return r.Weights.Decay*r.decayUrgency(c, now) +
		r.Weights.Centrality*clamp01(c.Centrality) +
		r.Weights.Relevance*clamp01(c.Relevance) +
		r.Weights.Novelty*novelty(c.Exposures)
}

// decayUrgency maps projected retrievability to urgency: never-seen atoms
// and badly decayed atoms are the most urgent.
func (r *Ranker) decayUrgency(c Candidate, now time.Time) float64 {
	if c.Memory == nil {
		return 1.0
	}
	return 1.0 - r.model.Retrievability(*c.Memory, now)
}

// novelty is the inverse of recent exposure count.
func novelty(exposures int) float64 {
	if exposures < 0 {
		exposures = 0
	}
	return 1.0 / float64(1+exposures)
}

// filterGapSkills keeps candidates whose link weight on a gap skill exceeds
// the threshold. An empty result relaxes back to the full pool so selection
// degrades gracefully instead of returning nothing.
func (r *Ranker) filterGapSkills(pool []Candidate, gaps map[string]bool) []Candidate {
	if len(gaps) == 0 {
		return pool
	}
	var filtered []Candidate
	for _, c := range pool {
		for _, link := range c.Atom.SkillLinks {
			if gaps[link.SkillID] && link.Weight > r.GapLinkThreshold {
				filtered = append(filtered, c)
				break
			}
		}
	}
	if len(filtered) == 0 {
		return pool
	}
	return filtered
}

// filterRepeatedFormat drops candidates sharing the previous presentation
// format, unless the pool has only one distinct format left.
func (r *Ranker) filterRepeatedFormat(pool []Candidate, prev models.PresentationFormat) []Candidate {
	if prev == "" {
		return pool
	}
	distinct := map[models.PresentationFormat]bool{}
	for _, c := range pool {
		distinct[c.Atom.Format] = true
	}
	if len(distinct) < 2 {
		return pool
	}
	var filtered []Candidate
	for _, c := range pool {
		if c.Atom.Format != prev {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
