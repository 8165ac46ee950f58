package gesture

import (
	"math"

	"github.com/ayusman/cvfighter/internal/calibration"
	"github.com/ayusman/cvfighter/internal/detector"
)

// boundaryEpsilon absorbs float rounding at threshold comparisons:
// a 0.1 hip drop over a 0.4 torso is exactly the 0.25 squat ratio.
const boundaryEpsilon = 1e-9

// Lean is the result of the lean detector.
type Lean int

// Lean directions.
const (
	LeanNone Lean = iota
	LeanLeft
	LeanRight
)

// LeanDetector classifies torso tilt relative to the calibrated neutral angle.
type LeanDetector struct {
	Threshold float64 // degrees
}

// Detect returns LeanLeft or LeanRight when the relative tilt exceeds the threshold.
func (d LeanDetector) Detect(f detector.Frame, b calibration.Baseline) Lean {
	angle := wrapDegrees(f.TorsoTilt() - b.NeutralTorsoAngle)

	switch {
	case angle < -d.Threshold:
		return LeanLeft
	case angle > d.Threshold:
		return LeanRight
	default:
		return LeanNone
	}
}

// wrapDegrees maps an angle into (-180, 180].
func wrapDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a > 180 {
		a -= 360
	} else if a <= -180 {
		a += 360
	}
	return a
}

// HandsRaisedDetector fires when both wrists are well above the shoulder line.
type HandsRaisedDetector struct {
	Ratio         float64
	MinVisibility float64
}

// Detect requires both wrists visible and at least Ratio x torso length
// above the shoulder line. Torso length is measured per frame.
func (d HandsRaisedDetector) Detect(f detector.Frame) bool {
	shoulderY := f.ShoulderCenter().Y
	torso := math.Abs(f.HipCenter().Y - shoulderY)
	margin := d.Ratio * torso

	left, right := f.Get(detector.LeftWrist), f.Get(detector.RightWrist)

	return shoulderY-left.Y >= margin-boundaryEpsilon &&
		shoulderY-right.Y >= margin-boundaryEpsilon &&
		left.Visibility > d.MinVisibility &&
		right.Visibility > d.MinVisibility
}

// SquatDetector fires when the hips drop below their calibrated height.
type SquatDetector struct {
	Ratio float64
}

// Detect normalizes the hip drop by the baseline torso length. It reports no
// detection when the baseline has no torso length.
func (d SquatDetector) Detect(f detector.Frame, b calibration.Baseline) bool {
	if b.TorsoLength <= 0 {
		return false
	}

	drop := f.HipCenter().Y - b.NeutralHipHeight
	return drop > d.Ratio*b.TorsoLength+boundaryEpsilon
}

// CrossedArmsDetector fires when the wrists cross the body center line in
// front of the torso.
type CrossedArmsDetector struct {
	Offset        float64
	MinVisibility float64
}

// Detect checks wrist sides, vertical band between shoulders and hips, and
// visibility. All conditions must hold.
func (d CrossedArmsDetector) Detect(f detector.Frame) bool {
	center := f.ShoulderCenter().X
	shoulderY := f.ShoulderCenter().Y
	hipY := f.HipCenter().Y

	left, right := f.Get(detector.LeftWrist), f.Get(detector.RightWrist)

	inFront := func(l detector.Landmark) bool {
		return shoulderY < l.Y && l.Y < hipY
	}

	return left.X > center+d.Offset &&
		right.X < center-d.Offset &&
		inFront(left) &&
		inFront(right) &&
		left.Visibility > d.MinVisibility &&
		right.Visibility > d.MinVisibility
}
