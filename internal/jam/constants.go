package jam

import (
	"time"

	"github.com/Conceptual-Machines/jamctl/internal/musicctx"
)

// Governance constants, verbatim from the orchestrator's policy table.
const (
	BPMMin = musicctx.BPMMin
	BPMMax = musicctx.BPMMax

	EnergyMin = musicctx.EnergyMin
	EnergyMax = musicctx.EnergyMax

	TempoDeltaPctMin = -50.0
	TempoDeltaPctMax = 50.0

	EnergyDeltaMin = -3
	EnergyDeltaMax = 3

	AutoTickDampening = 0.5

	AutoTickInterval = 30 * time.Second

	KeyConsensusMinAgents = 2

	AgentTimeout = 15 * time.Second

	CommentaryMaxChars = 180

	CommentaryAutoTickMinRounds = 2

	CommentaryRecentSignatureWindow = 3

	// ThreadCompactionNoChangeStreak is how many consecutive no_change
	// auto-ticks an agent holds before its LLM thread is compacted.
	ThreadCompactionNoChangeStreak = 3

	// AudioFeedbackTTL bounds how long an ingested audio-feedback summary
	// stays fresh enough to appear in prompts.
	AudioFeedbackTTL = 45 * time.Second

	// CameraDirectiveMinConfidence gates camera-intent directives before
	// they reach the same path as a boss directive.
	CameraDirectiveMinConfidence = 0.6
)

// ConfidenceMultiplier weights a decision's contribution to confidence
// weighted aggregation.
var ConfidenceMultiplier = map[Confidence]float64{
	ConfidenceLow:    0,
	ConfidenceMedium: 0.5,
	ConfidenceHigh:   1,
}
