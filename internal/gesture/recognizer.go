package gesture

import (
	"github.com/ayusman/cvfighter/internal/calibration"
	"github.com/ayusman/cvfighter/internal/detector"
)

// Recognizer ties arbitration and the state machine to one calibrated
// baseline. Recalibration means building a new Recognizer. It is not safe for
// concurrent use; callers serialize Recognize calls.
type Recognizer struct {
	baseline calibration.Baseline
	cfg      Config
	arbiter  *Arbiter
	machine  *StateMachine
	last     Candidate
}

// NewRecognizer creates a Recognizer. An uncalibrated baseline is accepted;
// its zero fields make the relative detectors report nothing.
func NewRecognizer(baseline calibration.Baseline, cfg Config) *Recognizer {
	return &Recognizer{
		baseline: baseline,
		cfg:      cfg,
		arbiter:  NewArbiter(cfg),
		machine:  NewStateMachine(cfg.ConfirmationDuration, cfg.CooldownDuration),
	}
}

// Recognize processes one frame and returns an Event when a gesture is confirmed.
func (r *Recognizer) Recognize(f detector.Frame) (Event, bool) {
	r.last = r.arbiter.Arbitrate(f, r.baseline)
	return r.machine.Update(r.last, f.Timestamp)
}

// LastCandidate returns the candidate produced by the most recent frame.
func (r *Recognizer) LastCandidate() Candidate {
	return r.last
}

// State returns the state machine phase.
func (r *Recognizer) State() State {
	return r.machine.State()
}

// Baseline returns the baseline the recognizer was built with.
func (r *Recognizer) Baseline() calibration.Baseline {
	return r.baseline
}

// Config returns the recognizer's thresholds.
func (r *Recognizer) Config() Config {
	return r.cfg
}

// Reset drops punch history and returns the state machine to Idle, keeping
// the baseline. Used when frames stop flowing for a while.
func (r *Recognizer) Reset() {
	r.arbiter.Reset()
	r.machine.Reset()
	r.last = Candidate{}
}
