package gesture

import (
	"fmt"
	"time"
)

// minCandidateConfidence is the confidence a candidate must exceed to start
// a confirmation.
const minCandidateConfidence = 0.7

// State is a phase of the confirmation/cooldown state machine.
type State int

// State machine phases.
const (
	Idle State = iota
	Starting
	Confirmed
	Cooldown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Confirmed:
		return "confirmed"
	case Cooldown:
		return "cooldown"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateMachine debounces per-frame candidates into confirmed events.
//
//	Idle      -> Starting   candidate != None and confidence > 0.7
//	Starting  -> Confirmed  same candidate held longer than the confirmation window
//	Starting  -> Idle       candidate changed
//	Confirmed -> Cooldown   next update, whatever the candidate
//	Cooldown  -> Idle       cooldown window elapsed
//
// Each update advances at most one transition. It is not safe for concurrent use.
type StateMachine struct {
	confirm  time.Duration
	cooldown time.Duration

	state       State
	current     Gesture
	startTime   time.Duration
	lastTrigger map[Gesture]time.Duration
}

// NewStateMachine creates a StateMachine in the Idle state.
func NewStateMachine(confirm, cooldown time.Duration) *StateMachine {
	return &StateMachine{
		confirm:     confirm,
		cooldown:    cooldown,
		lastTrigger: make(map[Gesture]time.Duration),
	}
}

// Update advances the machine by one step. It returns an Event and true only
// on the Starting -> Confirmed transition.
func (m *StateMachine) Update(c Candidate, now time.Duration) (Event, bool) {
	switch m.state {
	case Idle:
		if c.Gesture != None && c.Confidence > minCandidateConfidence {
			m.state = Starting
			m.current = c.Gesture
			m.startTime = now
		}

	case Starting:
		if c.Gesture != m.current {
			m.state = Idle
			m.current = None
			return Event{}, false
		}
		if now-m.startTime > m.confirm {
			m.state = Confirmed
			return Event{
				Gesture:    c.Gesture,
				Confidence: c.Confidence,
				Timestamp:  now,
				State:      Confirmed,
			}, true
		}

	case Confirmed:
		m.state = Cooldown
		m.lastTrigger[m.current] = now

	case Cooldown:
		if now-m.lastTrigger[m.current] > m.cooldown {
			m.state = Idle
			m.current = None
		}
	}

	return Event{}, false
}

// State returns the current phase.
func (m *StateMachine) State() State {
	return m.state
}

// Current returns the gesture being confirmed or cooled down, or None when idle.
func (m *StateMachine) Current() Gesture {
	return m.current
}

// LastTrigger returns when g last entered cooldown.
func (m *StateMachine) LastTrigger(g Gesture) (time.Duration, bool) {
	t, ok := m.lastTrigger[g]
	return t, ok
}

// Reset returns the machine to Idle and forgets trigger history.
func (m *StateMachine) Reset() {
	m.state = Idle
	m.current = None
	m.startTime = 0
	clear(m.lastTrigger)
}
