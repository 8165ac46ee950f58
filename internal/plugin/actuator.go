package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ayusman/cvfighter/internal/gesture"
	"github.com/ayusman/cvfighter/internal/store"
)

// BindingSource looks up a stored binding for a gesture.
// A nil binding with a nil error means nothing is bound.
type BindingSource interface {
	GetByGesture(g gesture.Gesture) (*store.Binding, error)
}

// Target is a resolved plugin invocation for a gesture.
type Target struct {
	Plugin string
	Action string
	Key    string
	Config json.RawMessage
}

// Actuator turns confirmed gesture events into plugin calls. Stored bindings
// win over the configured key map. Keys left down by a press action are
// tracked so they can be released on shutdown.
type Actuator struct {
	plugins  *Manager
	runner   Runner
	bindings BindingSource
	keys     map[gesture.Gesture]string
	logger   *slog.Logger

	mu      sync.Mutex
	pressed map[string]struct{}
}

// NewActuator creates an Actuator. bindings may be nil.
func NewActuator(plugins *Manager, runner Runner, bindings BindingSource, keys map[gesture.Gesture]string, logger *slog.Logger) *Actuator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actuator{
		plugins:  plugins,
		runner:   runner,
		bindings: bindings,
		keys:     keys,
		logger:   logger.With("component", "actuator"),
		pressed:  make(map[string]struct{}),
	}
}

// Resolve finds what to run for g. ok is false when nothing is bound or the
// stored binding is disabled.
func (a *Actuator) Resolve(g gesture.Gesture) (t Target, ok bool, err error) {
	if a.bindings != nil {
		b, err := a.bindings.GetByGesture(g)
		if err != nil {
			return Target{}, false, fmt.Errorf("binding lookup for %s: %w", g, err)
		}
		if b != nil {
			if !b.Enabled {
				return Target{}, false, nil
			}
			return Target{Plugin: b.PluginName, Action: b.ActionName, Key: b.Key, Config: b.Config}, true, nil
		}
	}

	if key, found := a.keys[g]; found {
		return Target{Plugin: KeyboardPlugin, Action: ActionKeystroke, Key: key}, true, nil
	}
	return Target{}, false, nil
}

// Trigger runs the target bound to ev.Gesture, if any.
func (a *Actuator) Trigger(ctx context.Context, ev gesture.Event) error {
	target, ok, err := a.Resolve(ev.Gesture)
	if err != nil {
		return err
	}
	if !ok {
		a.logger.Debug("no binding", "gesture", ev.Gesture)
		return nil
	}

	req := &Request{
		Action:     target.Action,
		Gesture:    ev.Gesture.String(),
		Confidence: ev.Confidence,
		Config:     target.Config,
	}
	if target.Key != "" {
		params, err := json.Marshal(KeyParams{Key: target.Key})
		if err != nil {
			return fmt.Errorf("failed to encode key params: %w", err)
		}
		req.Params = params
	}

	if err := a.run(ctx, target.Plugin, req); err != nil {
		return fmt.Errorf("gesture %s: %w", ev.Gesture, err)
	}

	if target.Plugin == KeyboardPlugin && target.Key != "" {
		a.track(target.Action, target.Key)
	}
	a.logger.Debug("actuated", "gesture", ev.Gesture, "plugin", target.Plugin, "action", target.Action, "key", target.Key)
	return nil
}

// ReleaseAll sends a release for every key still held down.
func (a *Actuator) ReleaseAll(ctx context.Context) error {
	var errs []error
	for _, key := range a.Pressed() {
		params, _ := json.Marshal(KeyParams{Key: key})
		req := &Request{Action: ActionRelease, Params: params}
		if err := a.run(ctx, KeyboardPlugin, req); err != nil {
			errs = append(errs, fmt.Errorf("release %q: %w", key, err))
			continue
		}
		a.track(ActionRelease, key)
	}
	return errors.Join(errs...)
}

// Pressed returns the keys currently held down, sorted.
func (a *Actuator) Pressed() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := make([]string, 0, len(a.pressed))
	for k := range a.pressed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a *Actuator) run(ctx context.Context, name string, req *Request) error {
	p, err := a.plugins.Get(name)
	if err != nil {
		return fmt.Errorf("%w: %s", err, name)
	}

	resp, err := a.runner.Execute(ctx, p, req)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("plugin %s: %s", name, resp.Error)
	}
	return nil
}

func (a *Actuator) track(action, key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch action {
	case ActionPress:
		a.pressed[key] = struct{}{}
	case ActionRelease, ActionKeystroke:
		delete(a.pressed, key)
	}
}
