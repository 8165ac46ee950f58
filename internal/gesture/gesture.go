// Package gesture turns calibrated body landmarks into debounced,
// rate-limited gesture events.
//
// Each frame runs through five detectors in a fixed priority order
// (arbitration), producing at most one Candidate. A confirmation/cooldown
// state machine then requires the candidate to persist before emitting an
// Event and enforces a quiet period afterward.
package gesture

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownGesture is returned when parsing a name that is not a Gesture.
var ErrUnknownGesture = errors.New("unknown gesture")

// Gesture is the closed set of control gestures.
type Gesture int

// Recognized gestures. None means no gesture was detected.
const (
	None Gesture = iota
	Block
	Jump
	AttackBasic
	AttackSpecial
	Crouch
	MoveLeft
	MoveRight
)

// All lists every gesture except None, in arbitration priority order.
var All = []Gesture{Block, Jump, AttackBasic, AttackSpecial, Crouch, MoveLeft, MoveRight}

// String returns the canonical gesture name.
func (g Gesture) String() string {
	switch g {
	case None:
		return "none"
	case Block:
		return "block"
	case Jump:
		return "jump"
	case AttackBasic:
		return "attack-basic"
	case AttackSpecial:
		return "attack-special"
	case Crouch:
		return "crouch"
	case MoveLeft:
		return "move-left"
	case MoveRight:
		return "move-right"
	default:
		return fmt.Sprintf("Gesture(%d)", int(g))
	}
}

// ParseGesture converts a canonical name back into a Gesture.
// Underscores are accepted in place of hyphens.
func ParseGesture(name string) (Gesture, error) {
	for _, g := range append([]Gesture{None}, All...) {
		if g.String() == name || underscored(g) == name {
			return g, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownGesture, name)
}

func underscored(g Gesture) string {
	b := []byte(g.String())
	for i, c := range b {
		if c == '-' {
			b[i] = '_'
		}
	}
	return string(b)
}

// MarshalText implements encoding.TextMarshaler.
func (g Gesture) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Gesture) UnmarshalText(text []byte) error {
	parsed, err := ParseGesture(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// Candidate is the memoryless per-frame result of arbitration.
type Candidate struct {
	Gesture    Gesture `json:"gesture"`
	Confidence float64 `json:"confidence"`
}

// Event is emitted once per confirmed gesture. It is handed to the caller by
// value; the state machine keeps no reference to it.
//
// In JSON the timestamp is whole milliseconds as timestamp_ms, matching the
// event log, WebSocket and MQTT payloads.
type Event struct {
	Gesture    Gesture       `json:"gesture"`
	Confidence float64       `json:"confidence"`
	Timestamp  time.Duration `json:"-"`
	State      State         `json:"state"`
}

// TimestampMS returns the frame timestamp in whole milliseconds.
func (e Event) TimestampMS() int64 {
	return e.Timestamp.Milliseconds()
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	return json.Marshal(struct {
		plain
		TimestampMS int64 `json:"timestamp_ms"`
	}{plain(e), e.TimestampMS()})
}

// Config holds every tunable threshold and timing of the recognizer.
type Config struct {
	LeanAngle         float64 // degrees from the neutral torso angle
	HandsRaisedRatio  float64 // fraction of torso length above the shoulder line
	SquatDropRatio    float64 // hip drop as a fraction of baseline torso length
	PunchVelocity     float64 // normalized image units per second
	PunchDepth        float64 // wrist z change from neutral; negative is toward the camera
	CrossedArmsOffset float64 // wrist distance past the body center line
	MinVisibility     float64

	ConfirmationDuration time.Duration
	CooldownDuration     time.Duration
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		LeanAngle:            15.0,
		HandsRaisedRatio:     0.2,
		SquatDropRatio:       0.25,
		PunchVelocity:        1.5,
		PunchDepth:           -0.15,
		CrossedArmsOffset:    0.1,
		MinVisibility:        0.5,
		ConfirmationDuration: 100 * time.Millisecond,
		CooldownDuration:     200 * time.Millisecond,
	}
}
