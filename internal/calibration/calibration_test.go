package calibration

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ayusman/cvfighter/internal/detector"
)

const epsilon = 1e-9

// fakeClock advances only when told to.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func newTestCalibrator(c *fakeClock) *Calibrator {
	return New(time.Second, WithClock(c.Now))
}

func TestCalibrator_ObserveBeforeStart(t *testing.T) {
	cal := newTestCalibrator(newFakeClock())

	complete, progress := cal.Observe(detector.NeutralPose())
	if complete || progress != 0 {
		t.Errorf("Observe() before Start = (%v, %f), want (false, 0)", complete, progress)
	}
	if cal.Samples() != 0 {
		t.Errorf("Samples() = %d, want 0", cal.Samples())
	}
}

func TestCalibrator_Progress(t *testing.T) {
	clock := newFakeClock()
	cal := newTestCalibrator(clock)
	cal.Start()

	steps := []struct {
		advance      time.Duration
		wantComplete bool
		wantProgress float64
	}{
		{0, false, 0},
		{250 * time.Millisecond, false, 0.25},
		{250 * time.Millisecond, false, 0.5},
		{499 * time.Millisecond, false, 0.999},
		{1 * time.Millisecond, true, 1},
	}

	for i, step := range steps {
		clock.Advance(step.advance)
		complete, progress := cal.Observe(detector.NeutralPose())
		if complete != step.wantComplete {
			t.Errorf("step %d: complete = %v, want %v", i, complete, step.wantComplete)
		}
		if math.Abs(progress-step.wantProgress) > 1e-6 {
			t.Errorf("step %d: progress = %f, want %f", i, progress, step.wantProgress)
		}
	}

	if cal.Samples() != len(steps) {
		t.Errorf("Samples() = %d, want %d", cal.Samples(), len(steps))
	}
}

func TestCalibrator_CompletesExactlyOnce(t *testing.T) {
	clock := newFakeClock()
	cal := newTestCalibrator(clock)
	cal.Start()

	cal.Observe(detector.NeutralPose())
	clock.Advance(2 * time.Second)

	complete, _ := cal.Observe(detector.NeutralPose())
	if !complete {
		t.Fatal("expected completion once the window elapsed")
	}

	clock.Advance(time.Second)
	complete, progress := cal.Observe(detector.NeutralPose())
	if complete {
		t.Error("complete reported twice")
	}
	if progress != 1 {
		t.Errorf("progress after completion = %f, want 1", progress)
	}
	if cal.Samples() != 2 {
		t.Errorf("frames collected after completion: Samples() = %d, want 2", cal.Samples())
	}
}

func TestCalibrator_NeutralBaseline(t *testing.T) {
	clock := newFakeClock()
	cal := newTestCalibrator(clock)
	cal.Start()

	for i := 0; i < 30; i++ {
		clock.Advance(40 * time.Millisecond)
		if complete, _ := cal.Observe(detector.NeutralPose()); complete {
			break
		}
	}

	if err := cal.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	b := cal.Baseline()
	if !b.Calibrated {
		t.Fatal("baseline should be calibrated")
	}

	checks := []struct {
		name      string
		got, want float64
	}{
		{"NeutralTorsoAngle", b.NeutralTorsoAngle, 0},
		{"ShoulderWidth", b.ShoulderWidth, 0.4},
		{"TorsoLength", b.TorsoLength, 0.4},
		{"NeutralHipHeight", b.NeutralHipHeight, 0.7},
		{"WristNeutralZ", b.WristNeutralZ, 0},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > epsilon {
			t.Errorf("%s = %f, want %f", c.name, c.got, c.want)
		}
	}
}

func TestCalibrator_StartResets(t *testing.T) {
	clock := newFakeClock()
	cal := newTestCalibrator(clock)
	cal.Start()
	cal.Observe(detector.NeutralPose())
	clock.Advance(2 * time.Second)
	cal.Observe(detector.NeutralPose())

	cal.Start()

	if cal.Samples() != 0 {
		t.Errorf("Samples() after Start = %d, want 0", cal.Samples())
	}
	if cal.Baseline().Calibrated {
		t.Error("baseline should be cleared by Start")
	}
	if complete, _ := cal.Observe(detector.NeutralPose()); complete {
		t.Error("fresh session should not complete immediately")
	}
}

func TestNew_DefaultDuration(t *testing.T) {
	clock := newFakeClock()
	cal := New(0, WithClock(clock.Now))
	cal.Start()

	clock.Advance(1500 * time.Millisecond)
	_, progress := cal.Observe(detector.NeutralPose())
	if math.Abs(progress-0.5) > 1e-9 {
		t.Errorf("progress = %f, want 0.5 with the 3s default window", progress)
	}
}

func TestCompute(t *testing.T) {
	t.Run("empty input is not calibrated", func(t *testing.T) {
		b, err := Compute(nil)
		if !errors.Is(err, ErrNoFrames) {
			t.Errorf("err = %v, want ErrNoFrames", err)
		}
		if b != (Baseline{}) {
			t.Errorf("baseline = %+v, want zero value", b)
		}
	})

	t.Run("trims first and last ten percent", func(t *testing.T) {
		frames := make([]detector.Frame, 20)
		for i := range frames {
			frames[i] = detector.NeutralPose()
		}
		// Outliers at both ends fall inside the trimmed 2+2 frames.
		outlier := detector.NeutralPose().
			With(detector.LeftHip, detector.Landmark{X: 0.35, Y: 0.99, Visibility: 1}).
			With(detector.RightHip, detector.Landmark{X: 0.65, Y: 0.99, Visibility: 1})
		frames[0], frames[1] = outlier, outlier
		frames[18], frames[19] = outlier, outlier

		b, err := Compute(frames)
		if err != nil {
			t.Fatalf("Compute() error = %v", err)
		}
		if math.Abs(b.NeutralHipHeight-0.7) > epsilon {
			t.Errorf("NeutralHipHeight = %f, want 0.7 (outliers trimmed)", b.NeutralHipHeight)
		}
	})

	t.Run("few frames are used in full", func(t *testing.T) {
		frames := []detector.Frame{
			detector.NeutralPose(),
			detector.SquatPose(),
		}

		b, err := Compute(frames)
		if err != nil {
			t.Fatalf("Compute() error = %v", err)
		}
		if math.Abs(b.NeutralHipHeight-0.775) > epsilon {
			t.Errorf("NeutralHipHeight = %f, want 0.775", b.NeutralHipHeight)
		}
	})

	t.Run("averages wrist depth", func(t *testing.T) {
		a := detector.NeutralPose().
			With(detector.LeftWrist, detector.Landmark{Z: -0.1}).
			With(detector.RightWrist, detector.Landmark{Z: -0.3})
		b, _ := Compute([]detector.Frame{a, detector.NeutralPose()})
		if math.Abs(b.WristNeutralZ+0.1) > epsilon {
			t.Errorf("WristNeutralZ = %f, want -0.1", b.WristNeutralZ)
		}
	})
}
