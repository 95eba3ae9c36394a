package diagnosis

import (
	"github.com/example/studyengine/pkg/models"
)

// Default heuristic thresholds.
const (
	DefaultFatigueStreak       = 5    // consecutive correct responses before a fatigue error
	DefaultTransferThreshold   = 0.5  // procedural accuracy below this, with recognition intact, signals an integration failure
	DefaultRecognitionMastered = 0.8  // recognition accuracy treated as "knows it when seen"
	DefaultSlipAccuracy        = 0.9  // overall accuracy above which a lone fast error is a slip
	DefaultSlipLatencyMS       = 4000 // errors faster than this look like slips, not struggles
)

// History summarizes the learner's track record relevant to one wrong (or
// suspicious) response. It is assembled by the caller from the response log
// and the in-session window.
type History struct {
	// EverCorrect reports whether the learner has ever answered this
	// skill correctly.
	EverCorrect bool
	// OverallAccuracy is the learner's all-time accuracy on the skill.
	OverallAccuracy float64
	// RecognitionAccuracy and ProceduralAccuracy split accuracy by
	// presentation format for transfer testing.
	RecognitionAccuracy float64
	ProceduralAccuracy  float64
	// RecognitionSeen / ProceduralSeen guard against diagnosing transfer
	// failure from zero observations.
	RecognitionSeen bool
	ProceduralSeen  bool
	// PriorMisconceptions holds misconception categories from earlier
	// errors on related atoms.
	PriorMisconceptions map[string]bool
	// ConsecutiveCorrect is the in-session streak before this response.
	ConsecutiveCorrect int
	// LatencyRising reports a rising latency trend within the session.
	LatencyRising bool
}

// Diagnoser classifies a failed response into exactly one failure mode.
// It is a one-shot classifier, not a persistent state machine.
type Diagnoser struct {
	FatigueStreak       int
	TransferThreshold   float64
	RecognitionMastered float64
	SlipAccuracy        float64
	SlipLatencyMS       int
}

// New returns a diagnoser with the default thresholds.
func New() *Diagnoser {
	return &Diagnoser{
		FatigueStreak:       DefaultFatigueStreak,
		TransferThreshold:   DefaultTransferThreshold,
		RecognitionMastered: DefaultRecognitionMastered,
		SlipAccuracy:        DefaultSlipAccuracy,
		SlipLatencyMS:       DefaultSlipLatencyMS,
	}
}

// Diagnose classifies the response. Heuristics are checked from most to
// least specific; ambiguous evidence falls through to the encoding/retrieval
// default, with retrieval as the least destructive assumption.
func (d *Diagnoser) Diagnose(resp models.ResponseEvent, h History) models.FailureMode {
	// The learner chose a distractor carrying a misconception category
	// already seen on a related error: a discrimination failure.
	if resp.MisconceptionTag != "" && h.PriorMisconceptions[resp.MisconceptionTag] {
		return models.FailureDiscrimination
	}

	// Knows it on recognition formats but fails to apply it: the skill
	// did not transfer.
	if resp.Format.IsProcedural() &&
		h.RecognitionSeen && h.ProceduralSeen &&
		h.RecognitionAccuracy >= d.RecognitionMastered &&
		h.ProceduralAccuracy < d.TransferThreshold {
		return models.FailureIntegration
	}

	// A long correct streak with climbing latency: the session has worn
	// the learner down.
	if h.ConsecutiveCorrect >= d.FatigueStreak && h.LatencyRising {
		return models.FailureFatigue
	}

	// Single fast error against an otherwise strong record: a slip.
	if h.OverallAccuracy >= d.SlipAccuracy && resp.LatencyMS > 0 && resp.LatencyMS < d.SlipLatencyMS {
		return models.FailureExecutive
	}

	// Default bucket: never answered this skill correctly means the
	// material was never encoded; otherwise it is a retrieval failure.
	if !h.EverCorrect {
		return models.FailureEncoding
	}
	return models.FailureRetrieval
}

// severityMultipliers scales how strongly each failure mode bumps the
// struggle weight of the section it occurred in.
var severityMultipliers = map[models.FailureMode]float64{
	models.FailureEncoding:       0.25,
	models.FailureIntegration:    0.20,
	models.FailureRetrieval:      0.15,
	models.FailureDiscrimination: 0.15,
	models.FailureExecutive:      0.05,
	models.FailureFatigue:        0.02,
}

// SeverityMultiplier returns the struggle-weight multiplier for a mode.
// Unknown modes get the retrieval multiplier.
func SeverityMultiplier(mode models.FailureMode) float64 {
	if m, ok := severityMultipliers[mode]; ok {
		return m
	}
	return severityMultipliers[models.FailureRetrieval]
}
