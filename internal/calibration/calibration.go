// Package calibration derives a user's neutral-pose baseline from a short
// observation window. All relative gesture thresholds are expressed against it.
package calibration

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/cvfighter/internal/detector"
)

// DefaultDuration is the length of the observation window.
const DefaultDuration = 3 * time.Second

// ErrNoFrames is reported when a session finished without collecting any frame.
var ErrNoFrames = errors.New("calibration: no frames collected")

// Baseline holds the neutral-pose reference values. The zero value is an
// uncalibrated baseline; ratio detectors treat its zero TorsoLength as
// "no detection".
type Baseline struct {
	NeutralTorsoAngle float64 `json:"neutral_torso_angle"` // degrees
	ShoulderWidth     float64 `json:"shoulder_width"`
	TorsoLength       float64 `json:"torso_length"`
	NeutralHipHeight  float64 `json:"neutral_hip_height"`
	WristNeutralZ     float64 `json:"wrist_neutral_z"`
	Calibrated        bool    `json:"calibrated"`
}

// Calibrator collects frames for a fixed duration and averages them into a Baseline.
// It is not safe for concurrent use.
type Calibrator struct {
	duration time.Duration
	now      func() time.Time
	start    time.Time
	started  bool
	done     bool
	frames   []detector.Frame
	baseline Baseline
	err      error
}

// Option configures a Calibrator.
type Option func(*Calibrator)

// WithClock replaces the wall clock used to measure elapsed time.
func WithClock(now func() time.Time) Option {
	return func(c *Calibrator) {
		c.now = now
	}
}

// New creates a Calibrator with the given observation window.
// Non-positive durations fall back to DefaultDuration.
func New(duration time.Duration, opts ...Option) *Calibrator {
	if duration <= 0 {
		duration = DefaultDuration
	}

	c := &Calibrator{
		duration: duration,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start resets the session and begins a new observation window.
func (c *Calibrator) Start() {
	c.start = c.now()
	c.started = true
	c.done = false
	c.frames = c.frames[:0]
	c.baseline = Baseline{}
	c.err = nil
}

// Started reports whether Start has been called.
func (c *Calibrator) Started() bool {
	return c.started
}

// Observe adds a frame to the session and reports progress in [0,1].
// complete is true exactly once, on the call that closes the window.
// Calls before Start, or after completion, collect nothing.
func (c *Calibrator) Observe(frame detector.Frame) (complete bool, progress float64) {
	if !c.started {
		return false, 0
	}
	if c.done {
		return false, 1
	}

	elapsed := c.now().Sub(c.start)
	progress = min(float64(elapsed)/float64(c.duration), 1)

	c.frames = append(c.frames, frame)

	if elapsed >= c.duration {
		c.finalize()
		return true, 1
	}
	return false, progress
}

// Baseline returns the computed baseline. It is the zero value until the
// session completes with at least one frame.
func (c *Calibrator) Baseline() Baseline {
	return c.baseline
}

// Err returns ErrNoFrames if the last session produced no baseline.
func (c *Calibrator) Err() error {
	return c.err
}

// Samples returns the number of frames collected in the current session.
func (c *Calibrator) Samples() int {
	return len(c.frames)
}

func (c *Calibrator) finalize() {
	c.done = true
	c.baseline, c.err = Compute(c.frames)
}

// Compute averages frames into a Baseline after trimming the first and last
// 10% by arrival order. It returns ErrNoFrames for an empty input.
func Compute(frames []detector.Frame) (Baseline, error) {
	if len(frames) == 0 {
		return Baseline{}, ErrNoFrames
	}

	trim := len(frames) / 10
	kept := frames[trim : len(frames)-trim]
	if len(kept) == 0 {
		kept = frames
	}

	n := len(kept)
	angles := make([]float64, n)
	widths := make([]float64, n)
	torsos := make([]float64, n)
	hips := make([]float64, n)
	wrists := make([]float64, n)

	for i, f := range kept {
		angles[i] = f.TorsoTilt()
		widths[i] = f.ShoulderWidth()
		torsos[i] = f.TorsoLength()
		hips[i] = f.HipCenter().Y
		wrists[i] = f.WristDepth()
	}

	return Baseline{
		NeutralTorsoAngle: stat.Mean(angles, nil),
		ShoulderWidth:     stat.Mean(widths, nil),
		TorsoLength:       stat.Mean(torsos, nil),
		NeutralHipHeight:  stat.Mean(hips, nil),
		WristNeutralZ:     stat.Mean(wrists, nil),
		Calibrated:        true,
	}, nil
}
