package memory

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/example/studyengine/pkg/models"
)

// ErrInvalidOutcome rejects malformed outcome data. The caller gets the
// prior state back unchanged; scheduling never corrupts state on bad input.
var ErrInvalidOutcome = errors.New("invalid outcome")

// Defaults for a first-ever review.
const (
	DefaultStability  = 1.0
	DefaultDifficulty = 0.3
	MinStability      = 0.1 // days; floor avoids division blow-ups
)

// Model maps a review outcome to a new memory state and next due date.
// Retrievability follows R(t) = exp(-t/S); the due date is chosen so that
// projected retrievability at that instant equals TargetRetention.
type Model struct {
	// TargetRetention is the retrievability the schedule aims for at the
	// moment an atom comes due.
	TargetRetention float64
	// GrowthCeiling bounds how much one perfect review can multiply
	// stability. Growth is monotonically increasing in partial score and
	// decreasing in difficulty.
	GrowthCeiling float64
	// ForgetFactor shrinks stability toward the floor on a lapse.
	ForgetFactor float64
	// MaxIntervalDays caps the scheduling horizon.
	MaxIntervalDays int
}

// NewModel returns a model with the default tuning.
func NewModel() *Model {
	return &Model{
		TargetRetention: 0.90,
		GrowthCeiling:   2.0,
		ForgetFactor:    0.3,
		MaxIntervalDays: 365,
	}
}

// NewState returns the state used for an atom's first-ever presentation
// to a learner.
func (m *Model) NewState(learnerID, atomID string, now time.Time) models.MemoryState {
	return models.MemoryState{
		LearnerID:  learnerID,
		AtomID:     atomID,
		Stability:  DefaultStability,
		Difficulty: DefaultDifficulty,
		LastReview: now,
		DueAt:      now,
	}
}

// Retrievability returns the projected recall probability at the given
// instant. At or before the last review it is exactly 1.0, and it strictly
// decreases as elapsed time grows.
func (m *Model) Retrievability(state models.MemoryState, now time.Time) float64 {
	elapsed := now.Sub(state.LastReview).Hours() / 24
	if elapsed <= 0 {
		return 1.0
	}
	stability := math.Max(state.Stability, MinStability)
	return math.Exp(-elapsed / stability)
}

// Interval returns the duration after which retrievability decays to the
// target retention, capped at MaxIntervalDays.
func (m *Model) Interval(stability float64) time.Duration {
	days := -math.Max(stability, MinStability) * math.Log(m.TargetRetention)
	if max := float64(m.MaxIntervalDays); days > max {
		days = max
	}
	return time.Duration(days * 24 * float64(time.Hour))
}

// Schedule applies a review outcome and returns the updated state.
// Replaying an outcome with the event id already recorded on the state is
// a no-op, so retried deliveries never double-update stability or lapses.
func (m *Model) Schedule(state models.MemoryState, out models.Outcome) (models.MemoryState, error) {
	if err := validateOutcome(out); err != nil {
		return state, err
	}
	if out.EventID != "" && out.EventID == state.LastEventID {
		return state, nil
	}

	now := out.At
	if now.IsZero() {
		now = time.Now()
	}

	if out.Correct {
		state.Stability *= m.growth(state.Difficulty, out.PartialScore)
		state.Difficulty = m.nextDifficulty(state.Difficulty, out)
	} else {
		state.Stability = math.Max(MinStability, state.Stability*m.ForgetFactor)
		state.Difficulty = m.nextDifficulty(state.Difficulty, out)
		state.LapseCount++
	}
	state.Stability = math.Max(MinStability, state.Stability)

	state.ReviewCount++
	state.LastReview = now
	state.DueAt = now.Add(m.Interval(state.Stability))
	state.LastEventID = out.EventID
	return state, nil
}

// growth is the stability multiplier for a successful review: at least 1,
// monotonically increasing in partial score and decreasing in difficulty.
func (m *Model) growth(difficulty, partialScore float64) float64 {
	return 1.0 + m.GrowthCeiling*partialScore*(1.05-difficulty)
}

// nextDifficulty drifts difficulty up on failure and slightly down on
// success, with mild mean reversion toward the default, clamped to [0,1].
func (m *Model) nextDifficulty(difficulty float64, out models.Outcome) float64 {
	var d float64
	if out.Correct {
		d = difficulty - 0.02*out.PartialScore
	} else {
		d = difficulty + 0.05*(1-out.PartialScore)
	}
	d = 0.1*DefaultDifficulty + 0.9*d
	return clamp01(d)
}

func validateOutcome(out models.Outcome) error {
	if out.LatencyMS < 0 {
		return fmt.Errorf("%w: negative latency %d", ErrInvalidOutcome, out.LatencyMS)
	}
	if out.PartialScore < 0 || out.PartialScore > 1 {
		return fmt.Errorf("%w: partial score %.3f out of [0,1]", ErrInvalidOutcome, out.PartialScore)
	}
	return nil
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
