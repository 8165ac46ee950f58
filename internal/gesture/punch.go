package gesture

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/cvfighter/internal/calibration"
	"github.com/ayusman/cvfighter/internal/detector"
)

const (
	// minFrameInterval guards the velocity division against duplicate timestamps.
	minFrameInterval = time.Millisecond
	// velocityWindow is the number of samples averaged per hand.
	velocityWindow = 3
)

// Punch is the result of the punch detector.
type Punch int

// Punching hand.
const (
	PunchNone Punch = iota
	PunchLeft
	PunchRight
)

// velocityHistory is a fixed-size rolling window of planar wrist speeds.
type velocityHistory struct {
	samples []float64
}

func (h *velocityHistory) push(v float64) {
	if len(h.samples) == velocityWindow {
		copy(h.samples, h.samples[1:])
		h.samples = h.samples[:velocityWindow-1]
	}
	h.samples = append(h.samples, v)
}

func (h *velocityHistory) mean() float64 {
	if len(h.samples) == 0 {
		return 0
	}
	return stat.Mean(h.samples, nil)
}

// PunchDetector detects a fast forward wrist thrust. Unlike the other
// detectors it is stateful: it keeps the previous frame and a smoothed
// velocity per hand, so each recognizer needs its own instance.
type PunchDetector struct {
	VelocityThreshold float64
	DepthThreshold    float64 // negative; z change must be below this
	MinVisibility     float64

	prev  *detector.Frame
	left  velocityHistory
	right velocityHistory
}

// NewPunchDetector creates a PunchDetector from the recognizer config.
func NewPunchDetector(cfg Config) *PunchDetector {
	return &PunchDetector{
		VelocityThreshold: cfg.PunchVelocity,
		DepthThreshold:    cfg.PunchDepth,
		MinVisibility:     cfg.MinVisibility,
	}
}

// Detect returns which hand is punching. The right hand wins when both qualify.
// The first frame, and any frame less than a millisecond after the stored one,
// yield PunchNone; the latter also leaves the history untouched.
func (d *PunchDetector) Detect(f detector.Frame, b calibration.Baseline) Punch {
	if d.prev == nil {
		d.prev = &f
		return PunchNone
	}

	dt := f.Timestamp - d.prev.Timestamp
	if dt < minFrameInterval {
		return PunchNone
	}

	seconds := dt.Seconds()
	d.left.push(planarSpeed(f.Get(detector.LeftWrist), d.prev.Get(detector.LeftWrist), seconds))
	d.right.push(planarSpeed(f.Get(detector.RightWrist), d.prev.Get(detector.RightWrist), seconds))
	d.prev = &f

	if d.punching(f.Get(detector.RightWrist), d.right.mean(), b) {
		return PunchRight
	}
	if d.punching(f.Get(detector.LeftWrist), d.left.mean(), b) {
		return PunchLeft
	}
	return PunchNone
}

// Reset forgets the previous frame and velocity history.
func (d *PunchDetector) Reset() {
	d.prev = nil
	d.left = velocityHistory{}
	d.right = velocityHistory{}
}

func (d *PunchDetector) punching(wrist detector.Landmark, speed float64, b calibration.Baseline) bool {
	depthChange := wrist.Z - b.WristNeutralZ
	return speed > d.VelocityThreshold &&
		depthChange < d.DepthThreshold &&
		wrist.Visibility > d.MinVisibility
}

func planarSpeed(cur, prev detector.Landmark, seconds float64) float64 {
	dx := cur.X - prev.X
	dy := cur.Y - prev.Y
	return math.Sqrt(dx*dx+dy*dy) / seconds
}
