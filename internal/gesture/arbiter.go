package gesture

import (
	"github.com/ayusman/cvfighter/internal/calibration"
	"github.com/ayusman/cvfighter/internal/detector"
)

// Fixed confidences assigned by arbitration.
const (
	confidenceBlock  = 0.90
	confidenceJump   = 0.90
	confidencePunch  = 0.85
	confidenceCrouch = 0.80
	confidenceLean   = 0.75
)

// Arbiter runs the detectors in priority order and returns the first match.
// It owns the stateful punch detector, so an Arbiter must not be shared
// between recognizers.
type Arbiter struct {
	crossed CrossedArmsDetector
	hands   HandsRaisedDetector
	punch   *PunchDetector
	squat   SquatDetector
	lean    LeanDetector
}

// NewArbiter builds the detector set from cfg.
func NewArbiter(cfg Config) *Arbiter {
	return &Arbiter{
		crossed: CrossedArmsDetector{Offset: cfg.CrossedArmsOffset, MinVisibility: cfg.MinVisibility},
		hands:   HandsRaisedDetector{Ratio: cfg.HandsRaisedRatio, MinVisibility: cfg.MinVisibility},
		punch:   NewPunchDetector(cfg),
		squat:   SquatDetector{Ratio: cfg.SquatDropRatio},
		lean:    LeanDetector{Threshold: cfg.LeanAngle},
	}
}

// Arbitrate resolves one frame into at most one candidate. Detectors after
// the first positive one are not run, so the punch detector only sees frames
// that did not match block or jump.
func (a *Arbiter) Arbitrate(f detector.Frame, b calibration.Baseline) Candidate {
	if a.crossed.Detect(f) {
		return Candidate{Gesture: Block, Confidence: confidenceBlock}
	}
	if a.hands.Detect(f) {
		return Candidate{Gesture: Jump, Confidence: confidenceJump}
	}

	switch a.punch.Detect(f, b) {
	case PunchRight:
		return Candidate{Gesture: AttackBasic, Confidence: confidencePunch}
	case PunchLeft:
		return Candidate{Gesture: AttackSpecial, Confidence: confidencePunch}
	}

	if a.squat.Detect(f, b) {
		return Candidate{Gesture: Crouch, Confidence: confidenceCrouch}
	}

	switch a.lean.Detect(f, b) {
	case LeanLeft:
		return Candidate{Gesture: MoveLeft, Confidence: confidenceLean}
	case LeanRight:
		return Candidate{Gesture: MoveRight, Confidence: confidenceLean}
	}

	return Candidate{Gesture: None}
}

// Reset clears the punch detector's history.
func (a *Arbiter) Reset() {
	a.punch.Reset()
}
