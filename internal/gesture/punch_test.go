package gesture

import (
	"testing"
	"time"

	"github.com/ayusman/cvfighter/internal/detector"
)

func TestPunchDetector_FirstFrame(t *testing.T) {
	frames := []detector.Frame{
		detector.NeutralPose(),
		detector.PunchRightSequence()[2],
		detector.PunchLeftSequence()[2],
	}

	for _, f := range frames {
		d := NewPunchDetector(DefaultConfig())
		if got := d.Detect(f, testBaseline()); got != PunchNone {
			t.Errorf("first Detect() = %v, want PunchNone", got)
		}
	}
}

func TestPunchDetector_RightSequence(t *testing.T) {
	d := NewPunchDetector(DefaultConfig())
	b := testBaseline()

	var results []Punch
	for _, f := range detector.PunchRightSequence() {
		results = append(results, d.Detect(f, b))
	}

	if results[0] != PunchNone {
		t.Errorf("call 1 = %v, want PunchNone", results[0])
	}
	if results[1] != PunchRight && results[2] != PunchRight {
		t.Errorf("results = %v, want PunchRight on call 2 or 3", results)
	}
}

func TestPunchDetector_LeftSequence(t *testing.T) {
	d := NewPunchDetector(DefaultConfig())
	b := testBaseline()

	var last Punch
	for _, f := range detector.PunchLeftSequence() {
		last = d.Detect(f, b)
	}
	if last != PunchLeft {
		t.Errorf("Detect() = %v, want PunchLeft", last)
	}
}

func TestPunchDetector_RightWinsTie(t *testing.T) {
	d := NewPunchDetector(DefaultConfig())
	b := testBaseline()

	left := detector.PunchLeftSequence()
	right := detector.PunchRightSequence()

	var last Punch
	for i := range right {
		both := right[i].With(detector.LeftWrist, left[i].Get(detector.LeftWrist))
		last = d.Detect(both, b)
	}
	if last != PunchRight {
		t.Errorf("Detect() = %v, want PunchRight", last)
	}
}

func TestPunchDetector_SlowThrustIgnored(t *testing.T) {
	d := NewPunchDetector(DefaultConfig())
	b := testBaseline()

	// Same path as the punch sequence but one second per step.
	var last Punch
	for i, f := range detector.PunchRightSequence() {
		last = d.Detect(f.At(time.Duration(i)*time.Second), b)
	}
	if last != PunchNone {
		t.Errorf("Detect() = %v, want PunchNone", last)
	}
}

func TestPunchDetector_DepthRelativeToBaseline(t *testing.T) {
	d := NewPunchDetector(DefaultConfig())

	// Wrists already near the camera at rest: a -0.2 wrist is only -0.05 from neutral.
	b := testBaseline()
	b.WristNeutralZ = -0.15

	var last Punch
	for _, f := range detector.PunchRightSequence() {
		last = d.Detect(f, b)
	}
	if last != PunchNone {
		t.Errorf("Detect() = %v, want PunchNone", last)
	}
}

func TestPunchDetector_OccludedWrist(t *testing.T) {
	d := NewPunchDetector(DefaultConfig())
	b := testBaseline()

	var last Punch
	for _, f := range detector.PunchRightSequence() {
		last = d.Detect(withVisibility(f, detector.RightWrist, 0.3), b)
	}
	if last != PunchNone {
		t.Errorf("Detect() = %v, want PunchNone", last)
	}
}

func TestPunchDetector_DuplicateTimestamp(t *testing.T) {
	d := NewPunchDetector(DefaultConfig())
	b := testBaseline()
	seq := detector.PunchRightSequence()

	d.Detect(seq[0], b)
	d.Detect(seq[1], b)

	// A repeat of the previous timestamp is skipped without touching history.
	dup := seq[2].At(seq[1].Timestamp + 500*time.Microsecond)
	if got := d.Detect(dup, b); got != PunchNone {
		t.Errorf("Detect(duplicate) = %v, want PunchNone", got)
	}
	if len(d.right.samples) != 1 {
		t.Errorf("history length = %d, want 1", len(d.right.samples))
	}
	if d.prev.Timestamp != seq[1].Timestamp {
		t.Errorf("previous frame replaced by skipped frame")
	}

	if got := d.Detect(seq[2], b); got != PunchRight {
		t.Errorf("Detect() after skip = %v, want PunchRight", got)
	}
}

func TestPunchDetector_Reset(t *testing.T) {
	d := NewPunchDetector(DefaultConfig())
	b := testBaseline()
	seq := detector.PunchRightSequence()

	d.Detect(seq[0], b)
	d.Detect(seq[1], b)
	d.Reset()

	if got := d.Detect(seq[2], b); got != PunchNone {
		t.Errorf("Detect() after Reset = %v, want PunchNone", got)
	}
}

func TestVelocityHistory(t *testing.T) {
	var h velocityHistory
	if h.mean() != 0 {
		t.Errorf("empty mean = %v, want 0", h.mean())
	}

	for _, v := range []float64{1, 2, 3, 4, 5} {
		h.push(v)
	}
	if len(h.samples) != velocityWindow {
		t.Fatalf("len = %d, want %d", len(h.samples), velocityWindow)
	}
	if got := h.mean(); got != 4 {
		t.Errorf("mean = %v, want 4", got)
	}
}

func TestPunchDetector_ThreeFrameThrust(t *testing.T) {
	// Right wrist x 0.9 -> 0.95 -> 1.0 and z 0 -> -0.1 -> -0.2 at 33ms steps:
	// about 1.52/s both steps, depth past -0.15 only on the third frame.
	step := 33 * time.Millisecond
	wrist := []struct{ x, z float64 }{{0.9, 0}, {0.95, -0.1}, {1.0, -0.2}}

	d := NewPunchDetector(DefaultConfig())
	b := testBaseline()

	var got []Punch
	for i, w := range wrist {
		f := detector.NeutralPose().
			With(detector.RightWrist, detector.Landmark{X: w.x, Y: 0.5, Z: w.z, Visibility: 1}).
			At(time.Duration(i) * step)
		got = append(got, d.Detect(f, b))
	}

	want := []Punch{PunchNone, PunchNone, PunchRight}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %v, want %v (all calls %v)", i+1, got[i], want[i], got)
		}
	}
}
