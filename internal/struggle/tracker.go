package struggle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/example/studyengine/internal/diagnosis"
	"github.com/example/studyengine/pkg/models"
)

// ErrDuplicateEvent signals that a mutation with the same event id was
// already applied. Repository implementations return it so the tracker can
// ignore retried deliveries instead of double-counting them.
var ErrDuplicateEvent = errors.New("duplicate struggle event")

// Fixed combination coefficients: curriculum authority dominates while live
// struggle still surfaces.
const (
	StaticCoefficient  = 3.0
	DynamicCoefficient = 2.0
	CorrectDecayFactor = 0.95
)

// Repository is the persistence boundary for struggle weights. Save must
// atomically upsert the weight and append the event, and must return
// ErrDuplicateEvent (leaving state untouched) when the event id was seen
// before.
type Repository interface {
	Get(ctx context.Context, sectionID, learnerID string) (*models.StruggleWeight, error)
	Save(ctx context.Context, w *models.StruggleWeight, ev *models.StruggleWeightEvent) error
	ListStale(ctx context.Context, learnerID string, before time.Time) ([]models.StruggleWeight, error)
	ListTop(ctx context.Context, learnerID string, limit int) ([]models.StruggleWeight, error)
}

// SectionSource supplies the author-declared static weight for a section.
type SectionSource interface {
	StaticWeight(ctx context.Context, sectionID string) (float64, error)
}

// Tracker maintains the per-section struggle weights. Every mutation is
// recorded in the append-only event log.
type Tracker struct {
	repo     Repository
	sections SectionSource
}

// NewTracker creates a tracker over the given repositories.
func NewTracker(repo Repository, sections SectionSource) *Tracker {
	return &Tracker{repo: repo, sections: sections}
}

// ApplyDiagnosis bumps the section's dynamic weight after a diagnosed
// error: dynamic += multiplier(mode) * (1 - accuracy), clamped to [0,1].
// The bump is bounded by the multiplier table, so no single event can move
// the weight by more than one step. Retried events (same id) are ignored.
func (t *Tracker) ApplyDiagnosis(ctx context.Context, sectionID, learnerID, eventID string, mode models.FailureMode, accuracy float64) (*models.StruggleWeight, error) {
	w, err := t.load(ctx, sectionID, learnerID)
	if err != nil {
		return nil, err
	}

	before := w.DynamicWeight
	bump := diagnosis.SeverityMultiplier(mode) * (1 - clamp01(accuracy))
	w.DynamicWeight = clamp01(w.DynamicWeight + bump)
	t.recombine(w)

	err = t.repo.Save(ctx, w, t.event(w, eventID, models.StruggleTriggerDiagnosis, mode, accuracy, before))
	if errors.Is(err, ErrDuplicateEvent) {
		return t.repo.Get(ctx, sectionID, learnerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save struggle weight: %w", err)
	}
	return w, nil
}

// RecordCorrect lightly decays the section's dynamic weight after a correct
// response to the same section.
func (t *Tracker) RecordCorrect(ctx context.Context, sectionID, learnerID, eventID string) (*models.StruggleWeight, error) {
	w, err := t.load(ctx, sectionID, learnerID)
	if err != nil {
		return nil, err
	}

	before := w.DynamicWeight
	w.DynamicWeight = clamp01(w.DynamicWeight * CorrectDecayFactor)
	t.recombine(w)

	err = t.repo.Save(ctx, w, t.event(w, eventID, models.StruggleTriggerCorrect, models.FailureRetrieval, 1.0, before))
	if errors.Is(err, ErrDuplicateEvent) {
		return t.repo.Get(ctx, sectionID, learnerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save struggle weight: %w", err)
	}
	return w, nil
}

// Decay runs the batch maintenance sweep: every weight untouched for at
// least minAge has its dynamic weight multiplied by (1 - rate), so stale
// spikes cannot dominate scheduling forever. Returns the number of
// sections decayed.
func (t *Tracker) Decay(ctx context.Context, learnerID string, rate float64, minAge time.Duration) (int, error) {
	if rate <= 0 || rate >= 1 {
		return 0, fmt.Errorf("decay rate %.3f out of (0,1)", rate)
	}
	stale, err := t.repo.ListStale(ctx, learnerID, time.Now().Add(-minAge))
	if err != nil {
		return 0, fmt.Errorf("failed to list stale struggle weights: %w", err)
	}

	decayed := 0
	for i := range stale {
		w := stale[i]
		if w.DynamicWeight == 0 {
			continue
		}
		before := w.DynamicWeight
		w.DynamicWeight = clamp01(w.DynamicWeight * (1 - rate))
		t.recombine(&w)

		err := t.repo.Save(ctx, &w, t.event(&w, uuid.NewString(), models.StruggleTriggerDecay, models.FailureRetrieval, 0, before))
		if err != nil && !errors.Is(err, ErrDuplicateEvent) {
			return decayed, fmt.Errorf("failed to decay section %s: %w", w.SectionID, err)
		}
		decayed++
	}
	return decayed, nil
}

// Top returns the highest combined-priority sections for a learner.
func (t *Tracker) Top(ctx context.Context, learnerID string, limit int) ([]models.StruggleWeight, error) {
	return t.repo.ListTop(ctx, learnerID, limit)
}

// load fetches the weight, creating it on first touch with the section's
// author-declared static weight.
func (t *Tracker) load(ctx context.Context, sectionID, learnerID string) (*models.StruggleWeight, error) {
	w, err := t.repo.Get(ctx, sectionID, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load struggle weight: %w", err)
	}
	if w != nil {
		return w, nil
	}

	static := 0.0
	if t.sections != nil {
		static, err = t.sections.StaticWeight(ctx, sectionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load section static weight: %w", err)
		}
	}
	w = &models.StruggleWeight{
		SectionID:    sectionID,
		LearnerID:    learnerID,
		StaticWeight: static,
	}
	t.recombine(w)
	return w, nil
}

func (t *Tracker) recombine(w *models.StruggleWeight) {
	w.CombinedPriority = w.StaticWeight*StaticCoefficient + w.DynamicWeight*DynamicCoefficient
	w.LastTouched = time.Now()
}

func (t *Tracker) event(w *models.StruggleWeight, eventID, trigger string, mode models.FailureMode, accuracy, before float64) *models.StruggleWeightEvent {
	return &models.StruggleWeightEvent{
		ID:          eventID,
		SectionID:   w.SectionID,
		LearnerID:   w.LearnerID,
		TriggerType: trigger,
		Mode:        mode,
		Accuracy:    accuracy,
		Before:      before,
		After:       w.DynamicWeight,
		CreatedAt:   time.Now(),
	}
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
