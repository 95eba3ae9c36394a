package mastery

import (
	"math"
	"time"

	"github.com/example/studyengine/pkg/models"
)

// Tuning defaults for the mastery update rule.
const (
	DefaultGainRate            = 0.10
	DefaultPenaltyRate         = 0.15
	DefaultHypercorrectionMult = 1.5
	DefaultHypercorrectionConf = 4
)

// Tracker applies response events to per-skill mastery estimates.
//
// Correct responses move mastery up proportionally to the learner's stated
// confidence; incorrect responses move it down, and a confident-but-wrong
// answer is penalized harder (the hypercorrection rule: such errors are the
// most valuable correction opportunities).
type Tracker struct {
	GainRate            float64
	PenaltyRate         float64
	HypercorrectionMult float64
	// HypercorrectionConf is the confidence level at or above which the
	// extra penalty applies.
	HypercorrectionConf int
}

// NewTracker returns a tracker with the default tuning.
func NewTracker() *Tracker {
	return &Tracker{
		GainRate:            DefaultGainRate,
		PenaltyRate:         DefaultPenaltyRate,
		HypercorrectionMult: DefaultHypercorrectionMult,
		HypercorrectionConf: DefaultHypercorrectionConf,
	}
}

// NewMastery returns the lazily-created state for a skill's first response.
func NewMastery(learnerID, skillID string) models.SkillMastery {
	return models.SkillMastery{LearnerID: learnerID, SkillID: skillID}
}

// Update applies one response to the prior mastery and returns the new
// state. Confidence is a coarse self-report on a 1-5 scale and is clamped
// rather than rejected; weight is the atom's skill-link weight in [0,1].
// The result is always clamped to [0,1].
func (t *Tracker) Update(prior models.SkillMastery, correct bool, confidence int, weight float64) models.SkillMastery {
	confidence = clampConfidence(confidence)
	weight = clamp01(weight)

	next := prior
	conf := float64(confidence) / 5.0
	if correct {
		next.Mastery = prior.Mastery + weight*conf*t.GainRate
	} else {
		penalty := weight * t.PenaltyRate
		if confidence >= t.HypercorrectionConf {
			penalty *= t.HypercorrectionMult
		}
		next.Mastery = prior.Mastery - penalty
	}
	next.Mastery = clamp01(next.Mastery)

	// Running mean of |confidence - correctness|: 0 is perfectly
	// calibrated, 1 is maximally miscalibrated.
	correctness := 0.0
	if correct {
		correctness = 1.0
	}
	gap := math.Abs(conf - correctness)
	next.ConfidenceCalibration = (prior.ConfidenceCalibration*float64(prior.SampleCount) + gap) / float64(prior.SampleCount+1)
	next.SampleCount = prior.SampleCount + 1
	next.LastUpdated = time.Now()
	return next
}

func clampConfidence(c int) int {
	if c < 1 {
		return 1
	}
	if c > 5 {
		return 5
	}
	return c
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
