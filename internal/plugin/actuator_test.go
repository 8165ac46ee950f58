package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ayusman/cvfighter/internal/gesture"
	"github.com/ayusman/cvfighter/internal/store"
)

// recordingRunner captures requests instead of running executables.
type recordingRunner struct {
	mu       sync.Mutex
	requests []*Request
	fail     map[string]string // action -> error message
	err      error
}

func (r *recordingRunner) Execute(ctx context.Context, p *Plugin, req *Request) (*Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	if msg, ok := r.fail[req.Action]; ok {
		return &Response{Success: false, Error: msg}, nil
	}
	return &Response{Success: true}, nil
}

func (r *recordingRunner) keys(t *testing.T) []string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	var keys []string
	for _, req := range r.requests {
		var p KeyParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			t.Fatalf("bad params %s: %v", req.Params, err)
		}
		keys = append(keys, req.Action+":"+p.Key)
	}
	return keys
}

type fakeBindings map[gesture.Gesture]*store.Binding

func (f fakeBindings) GetByGesture(g gesture.Gesture) (*store.Binding, error) {
	return f[g], nil
}

type failingBindings struct{}

func (failingBindings) GetByGesture(gesture.Gesture) (*store.Binding, error) {
	return nil, errors.New("database is locked")
}

func newTestActuator(runner Runner, bindings BindingSource) *Actuator {
	mgr := NewManager("", nil)
	mgr.Register(&Plugin{Manifest: Manifest{Name: KeyboardPlugin}})
	mgr.Register(&Plugin{Manifest: Manifest{Name: "obs"}})

	keys := map[gesture.Gesture]string{
		gesture.Jump:   "w",
		gesture.Crouch: "s",
	}
	return NewActuator(mgr, runner, bindings, keys, nil)
}

func TestActuator_KeyMapFallback(t *testing.T) {
	runner := &recordingRunner{}
	a := newTestActuator(runner, nil)

	ev := gesture.Event{Gesture: gesture.Jump, Confidence: 0.9, State: gesture.Confirmed}
	if err := a.Trigger(context.Background(), ev); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}

	got := runner.keys(t)
	if len(got) != 1 || got[0] != "keystroke:w" {
		t.Errorf("requests = %v, want [keystroke:w]", got)
	}
	if runner.requests[0].Gesture != "jump" || runner.requests[0].Confidence != 0.9 {
		t.Errorf("request = %+v", runner.requests[0])
	}
	if len(a.Pressed()) != 0 {
		t.Errorf("keystroke should not leave keys held: %v", a.Pressed())
	}
}

func TestActuator_UnboundGesture(t *testing.T) {
	runner := &recordingRunner{}
	a := newTestActuator(runner, fakeBindings{})

	if err := a.Trigger(context.Background(), gesture.Event{Gesture: gesture.Block}); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if len(runner.requests) != 0 {
		t.Errorf("unbound gesture ran %d requests", len(runner.requests))
	}
}

func TestActuator_StoredBindingWins(t *testing.T) {
	runner := &recordingRunner{}
	bindings := fakeBindings{
		gesture.Jump: {Gesture: gesture.Jump, PluginName: KeyboardPlugin, ActionName: ActionKeystroke, Key: "space", Enabled: true},
		gesture.Crouch: {
			Gesture: gesture.Crouch, PluginName: "obs", ActionName: "scene",
			Config: json.RawMessage(`{"scene":"duck"}`), Enabled: true,
		},
		gesture.Block: {Gesture: gesture.Block, PluginName: KeyboardPlugin, ActionName: ActionKeystroke, Key: "l", Enabled: false},
	}
	a := newTestActuator(runner, bindings)

	for _, g := range []gesture.Gesture{gesture.Jump, gesture.Crouch, gesture.Block} {
		if err := a.Trigger(context.Background(), gesture.Event{Gesture: g}); err != nil {
			t.Fatalf("Trigger(%v) error = %v", g, err)
		}
	}

	if len(runner.requests) != 2 {
		t.Fatalf("requests = %d, want 2 (disabled binding skipped)", len(runner.requests))
	}

	var p KeyParams
	json.Unmarshal(runner.requests[0].Params, &p)
	if p.Key != "space" {
		t.Errorf("jump key = %q, want space from stored binding", p.Key)
	}

	obs := runner.requests[1]
	if obs.Action != "scene" || string(obs.Config) != `{"scene":"duck"}` || obs.Params != nil {
		t.Errorf("obs request = %+v", obs)
	}
}

func TestActuator_PressTrackingAndReleaseAll(t *testing.T) {
	runner := &recordingRunner{}
	bindings := fakeBindings{
		gesture.MoveLeft:  {Gesture: gesture.MoveLeft, PluginName: KeyboardPlugin, ActionName: ActionPress, Key: "a", Enabled: true},
		gesture.MoveRight: {Gesture: gesture.MoveRight, PluginName: KeyboardPlugin, ActionName: ActionPress, Key: "d", Enabled: true},
	}
	a := newTestActuator(runner, bindings)
	ctx := context.Background()

	a.Trigger(ctx, gesture.Event{Gesture: gesture.MoveRight})
	a.Trigger(ctx, gesture.Event{Gesture: gesture.MoveLeft})

	if got := a.Pressed(); len(got) != 2 || got[0] != "a" || got[1] != "d" {
		t.Fatalf("Pressed() = %v, want [a d]", got)
	}

	if err := a.ReleaseAll(ctx); err != nil {
		t.Fatalf("ReleaseAll() error = %v", err)
	}
	if len(a.Pressed()) != 0 {
		t.Errorf("Pressed() after ReleaseAll = %v", a.Pressed())
	}

	got := runner.keys(t)
	want := []string{"press:d", "press:a", "release:a", "release:d"}
	if len(got) != len(want) {
		t.Fatalf("requests = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestActuator_ReleaseFailureKeepsKey(t *testing.T) {
	runner := &recordingRunner{fail: map[string]string{ActionRelease: "no display"}}
	bindings := fakeBindings{
		gesture.Crouch: {Gesture: gesture.Crouch, PluginName: KeyboardPlugin, ActionName: ActionPress, Key: "s", Enabled: true},
	}
	a := newTestActuator(runner, bindings)

	a.Trigger(context.Background(), gesture.Event{Gesture: gesture.Crouch})
	if err := a.ReleaseAll(context.Background()); err == nil {
		t.Fatal("ReleaseAll() should report the failed release")
	}
	if got := a.Pressed(); len(got) != 1 || got[0] != "s" {
		t.Errorf("Pressed() = %v, want [s]", got)
	}
}

func TestActuator_Errors(t *testing.T) {
	t.Run("plugin reports failure", func(t *testing.T) {
		a := newTestActuator(&recordingRunner{fail: map[string]string{ActionKeystroke: "no display"}}, nil)
		if err := a.Trigger(context.Background(), gesture.Event{Gesture: gesture.Jump}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("runner error", func(t *testing.T) {
		a := newTestActuator(&recordingRunner{err: ErrTimeout}, nil)
		err := a.Trigger(context.Background(), gesture.Event{Gesture: gesture.Jump})
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("err = %v, want ErrTimeout", err)
		}
	})

	t.Run("missing plugin", func(t *testing.T) {
		bindings := fakeBindings{
			gesture.Jump: {Gesture: gesture.Jump, PluginName: "midi", ActionName: "note", Enabled: true},
		}
		a := newTestActuator(&recordingRunner{}, bindings)
		err := a.Trigger(context.Background(), gesture.Event{Gesture: gesture.Jump})
		if !errors.Is(err, ErrPluginNotFound) {
			t.Errorf("err = %v, want ErrPluginNotFound", err)
		}
	})

	t.Run("binding lookup fails", func(t *testing.T) {
		a := newTestActuator(&recordingRunner{}, failingBindings{})
		if err := a.Trigger(context.Background(), gesture.Event{Gesture: gesture.Jump}); err == nil {
			t.Error("expected error")
		}
	})
}
