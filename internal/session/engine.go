package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/studyengine/internal/database"
	"github.com/example/studyengine/internal/diagnosis"
	"github.com/example/studyengine/internal/mastery"
	"github.com/example/studyengine/internal/memory"
	"github.com/example/studyengine/internal/ranker"
	"github.com/example/studyengine/internal/remediation"
	"github.com/example/studyengine/internal/struggle"
	"github.com/example/studyengine/pkg/models"
)

// ErrUnknownLearner is returned when a session references a learner id that
// was never registered.
var ErrUnknownLearner = errors.New("unknown learner")

// ErrUnknownAtom is returned when a response references an atom id that does
// not exist.
var ErrUnknownAtom = errors.New("unknown atom")

const (
	// GapMasteryThreshold marks a skill as a gap for the ranker's prefilter.
	GapMasteryThreshold = 0.5
	// recentWindow is how many responses feed the in-session fatigue signals.
	recentWindow = 10
	// latencyTrendSpan is how many responses on each side of the window the
	// latency-trend comparison uses.
	latencyTrendSpan = 3
)

// Feedback is what the caller gets back after recording one response.
type Feedback struct {
	Correct     bool
	Mode        models.FailureMode // meaningful only when Correct is false
	Memory      *models.MemoryState
	Remediation *models.GenerationResult // nil when no remediation was routed
}

// Engine drives one learner's study loop: pick the next atom, grade the
// response, update every downstream model, and route remediation on errors.
type Engine struct {
	learners  *database.LearnerRepository
	sections  *database.SectionRepository
	atoms     *database.AtomRepository
	memories  *database.MemoryStateRepository
	masteries *database.MasteryRepository
	responses *database.ResponseRepository
	stats     *database.StatsRepository

	model     *memory.Model
	diagnoser *diagnosis.Diagnoser
	struggles *struggle.Tracker
	router    *remediation.Router

	// Ranker and Tracker are exported so the wiring layer can apply the
	// configured score weights and hypercorrection threshold.
	Ranker  *ranker.Ranker
	Tracker *mastery.Tracker

	// GapThreshold marks skills below this mastery as gaps for the
	// ranker's prefilter.
	GapThreshold float64
}

// New wires an engine over the shared database handle and collaborators.
func New(db *database.DB, model *memory.Model, struggles *struggle.Tracker, router *remediation.Router) *Engine {
	return &Engine{
		learners:  database.NewLearnerRepository(db),
		sections:  database.NewSectionRepository(db),
		atoms:     database.NewAtomRepository(db),
		memories:  database.NewMemoryStateRepository(db),
		masteries: database.NewMasteryRepository(db),
		responses: database.NewResponseRepository(db),
		stats:     database.NewStatsRepository(db),
		model:     model,
		Ranker:    ranker.New(model),
		Tracker:   mastery.NewTracker(),
		diagnoser: diagnosis.New(),
		struggles: struggles,
		router:    router,

		GapThreshold: GapMasteryThreshold,
	}
}

// NextAtom selects the highest-priority atom for the learner. prevFormat is
// the format of the previous presentation in this session; empty on the
// first pick.
func (e *Engine) NextAtom(ctx context.Context, learnerID string, prevFormat models.PresentationFormat) (*models.Atom, error) {
	learner, err := e.learners.Get(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	if learner == nil {
		return nil, ErrUnknownLearner
	}

	candidates, err := e.assembleCandidates(ctx, learner)
	if err != nil {
		return nil, err
	}

	gaps, err := e.stats.GapSkills(ctx, learnerID, e.GapThreshold)
	if err != nil {
		return nil, err
	}

	return e.Ranker.SelectNext(candidates, ranker.Context{
		Now:            time.Now(),
		PreviousFormat: prevFormat,
		GapSkills:      gaps,
	})
}

// RecordResponse persists the response and propagates it through the memory
// model, mastery tracker, struggle tracker and, on errors, the diagnoser and
// remediation router. Remediation failures are non-fatal; the learner's
// state updates always land first.
func (e *Engine) RecordResponse(ctx context.Context, ev *models.ResponseEvent) (*Feedback, error) {
	atom, err := e.atoms.Get(ctx, ev.AtomID)
	if err != nil {
		return nil, err
	}
	if atom == nil {
		return nil, ErrUnknownAtom
	}
	if ev.SectionID == "" {
		ev.SectionID = atom.SectionID
	}
	if ev.SkillID == "" {
		ev.SkillID = atom.PrimarySkill()
	}
	if ev.Format == "" {
		ev.Format = atom.Format
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	// Retried deliveries are a no-op: the first delivery already ran every
	// downstream update.
	seen, err := e.responses.Exists(ctx, ev.EventID)
	if err != nil {
		return nil, err
	}
	if seen {
		return e.replayFeedback(ctx, ev)
	}

	// The in-session window must predate this response, so read it before
	// the insert.
	recent, err := e.responses.Recent(ctx, ev.LearnerID, recentWindow)
	if err != nil {
		return nil, err
	}

	// The insert is the real idempotency gate: two concurrent deliveries
	// can both pass the Exists pre-check, but only one wins the event-id
	// primary key. The loser must not reach the downstream updates, since
	// mastery has no per-event replay guard of its own.
	if err := e.responses.Insert(ctx, ev); err != nil {
		if errors.Is(err, database.ErrDuplicateEvent) {
			return e.replayFeedback(ctx, ev)
		}
		return nil, err
	}

	state, err := e.updateMemory(ctx, ev)
	if err != nil {
		return nil, err
	}
	if err := e.updateMastery(ctx, ev, atom); err != nil {
		return nil, err
	}

	feedback := &Feedback{Correct: ev.Correct, Memory: state}
	if ev.Correct {
		if _, err := e.struggles.RecordCorrect(ctx, ev.SectionID, ev.LearnerID, ev.EventID); err != nil {
			return nil, err
		}
		return feedback, nil
	}

	history, err := e.buildHistory(ctx, ev, recent)
	if err != nil {
		return nil, err
	}
	mode := e.diagnoser.Diagnose(*ev, *history)
	feedback.Mode = mode

	if _, err := e.struggles.ApplyDiagnosis(ctx, ev.SectionID, ev.LearnerID, ev.EventID, mode, history.OverallAccuracy); err != nil {
		return nil, err
	}

	result, err := e.router.Route(ctx, ev.SkillID, ev.SectionID, atom.Concept, mode)
	if err != nil {
		// Remediation is best effort; the diagnosis and state updates stand.
		log.Printf("remediation for skill %s failed: %v", ev.SkillID, err)
		return feedback, nil
	}
	feedback.Remediation = result
	return feedback, nil
}

// replayFeedback answers a retried delivery from current state without
// re-running any update.
func (e *Engine) replayFeedback(ctx context.Context, ev *models.ResponseEvent) (*Feedback, error) {
	state, err := e.memories.Get(ctx, ev.LearnerID, ev.AtomID)
	if err != nil {
		return nil, err
	}
	return &Feedback{Correct: ev.Correct, Memory: state}, nil
}

// Progress returns the learner's progress summary.
func (e *Engine) Progress(ctx context.Context, learnerID string) (*database.LearnerStats, error) {
	return e.stats.ForLearner(ctx, learnerID, time.Now())
}

// assembleCandidates joins the active atom pool with the learner's memory
// states, exposure counts, section centrality and focus-skill relevance.
func (e *Engine) assembleCandidates(ctx context.Context, learner *models.Learner) ([]ranker.Candidate, error) {
	atoms, err := e.atoms.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	states, err := e.memories.ListForLearner(ctx, learner.ID)
	if err != nil {
		return nil, err
	}
	exposures, err := e.responses.CountByAtom(ctx, learner.ID)
	if err != nil {
		return nil, err
	}
	sections, err := e.sections.List(ctx)
	if err != nil {
		return nil, err
	}
	centrality := make(map[string]float64, len(sections))
	for _, s := range sections {
		centrality[s.ID] = s.Centrality
	}

	candidates := make([]ranker.Candidate, 0, len(atoms))
	for _, atom := range atoms {
		candidates = append(candidates, ranker.Candidate{
			Atom:       atom,
			Memory:     states[atom.ID],
			Centrality: centrality[atom.SectionID],
			Relevance:  focusRelevance(atom, learner.FocusSkills),
			Exposures:  exposures[atom.ID],
		})
	}
	return candidates, nil
}

// focusRelevance is the strongest link weight between the atom and any of
// the learner's declared focus skills.
func focusRelevance(atom models.Atom, focus models.StringList) float64 {
	best := 0.0
	for _, skillID := range focus {
		if w := atom.SkillWeight(skillID); w > best {
			best = w
		}
	}
	return best
}

func (e *Engine) updateMemory(ctx context.Context, ev *models.ResponseEvent) (*models.MemoryState, error) {
	state, err := e.memories.Get(ctx, ev.LearnerID, ev.AtomID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		s := e.model.NewState(ev.LearnerID, ev.AtomID, ev.CreatedAt)
		state = &s
	}

	next, err := e.model.Schedule(*state, models.Outcome{
		EventID:      ev.EventID,
		Correct:      ev.Correct,
		PartialScore: ev.PartialScore,
		LatencyMS:    ev.LatencyMS,
		At:           ev.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule review: %w", err)
	}
	if err := e.memories.Upsert(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// updateMastery propagates the response to every linked skill, scaled by
// the link weight.
func (e *Engine) updateMastery(ctx context.Context, ev *models.ResponseEvent, atom *models.Atom) error {
	for _, link := range atom.SkillLinks {
		m, err := e.masteries.Get(ctx, ev.LearnerID, link.SkillID)
		if err != nil {
			return err
		}
		if m == nil {
			fresh := mastery.NewMastery(ev.LearnerID, link.SkillID)
			m = &fresh
		}
		next := e.Tracker.Update(*m, ev.Correct, ev.Confidence, link.Weight)
		if err := e.masteries.Upsert(ctx, &next); err != nil {
			return err
		}
	}
	return nil
}

// buildHistory assembles the diagnoser's evidence from the response log and
// the in-session window (recent must exclude the response being diagnosed).
func (e *Engine) buildHistory(ctx context.Context, ev *models.ResponseEvent, recent []models.ResponseEvent) (*diagnosis.History, error) {
	acc, err := e.responses.AccuracyBySkill(ctx, ev.LearnerID, ev.SkillID)
	if err != nil {
		return nil, err
	}
	everAtom, err := e.responses.EverCorrect(ctx, ev.LearnerID, ev.AtomID)
	if err != nil {
		return nil, err
	}

	priors := map[string]bool{}
	if ev.MisconceptionTag != "" {
		seen, err := e.responses.HasMisconception(ctx, ev.LearnerID, ev.MisconceptionTag, ev.CreatedAt)
		if err != nil {
			return nil, err
		}
		priors[ev.MisconceptionTag] = seen
	}

	return &diagnosis.History{
		EverCorrect:         everAtom || acc.OverallAccuracy > 0,
		OverallAccuracy:     acc.OverallAccuracy,
		RecognitionAccuracy: acc.RecognitionAccuracy,
		ProceduralAccuracy:  acc.ProceduralAccuracy,
		RecognitionSeen:     acc.RecognitionSeen > 0,
		ProceduralSeen:      acc.ProceduralSeen > 0,
		PriorMisconceptions: priors,
		ConsecutiveCorrect:  leadingStreak(recent),
		LatencyRising:       latencyRising(recent),
	}, nil
}

// leadingStreak counts consecutive correct responses at the head of the
// newest-first window.
func leadingStreak(recent []models.ResponseEvent) int {
	streak := 0
	for _, r := range recent {
		if !r.Correct {
			break
		}
		streak++
	}
	return streak
}

// latencyRising compares the mean latency of the newest responses against
// the ones before them. The window is newest first.
func latencyRising(recent []models.ResponseEvent) bool {
	if len(recent) < 2*latencyTrendSpan {
		return false
	}
	var newer, older float64
	for i := 0; i < latencyTrendSpan; i++ {
		newer += float64(recent[i].LatencyMS)
		older += float64(recent[i+latencyTrendSpan].LatencyMS)
	}
	return newer > older
}
