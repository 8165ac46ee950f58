package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/cvfighter/internal/app"
	"github.com/ayusman/cvfighter/internal/capture"
	"github.com/ayusman/cvfighter/internal/config"
	"github.com/ayusman/cvfighter/internal/detector"
	"github.com/ayusman/cvfighter/internal/plugin"
	"github.com/ayusman/cvfighter/internal/server"
	"github.com/ayusman/cvfighter/internal/store"
)

// keyRecorder stands in for the keyboard plugin process.
type keyRecorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *keyRecorder) Execute(ctx context.Context, p *plugin.Plugin, req *plugin.Request) (*plugin.Response, error) {
	var params plugin.KeyParams
	json.Unmarshal(req.Params, &params)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, req.Action+":"+params.Key)
	return &plugin.Response{Success: true}, nil
}

func (r *keyRecorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

type env struct {
	ts      *httptest.Server
	session *app.App
	det     *detector.MockDetector
	keys    *keyRecorder
	store   *store.Store

	t0  time.Time
	now time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := config.Default()
	cfg.Timing.Calibration = 100 * time.Millisecond

	plugins := plugin.NewManager("", nil)
	plugins.Register(&plugin.Plugin{Manifest: plugin.Manifest{
		Name:    plugin.KeyboardPlugin,
		Actions: []string{plugin.ActionKeystroke, plugin.ActionPress, plugin.ActionRelease},
	}})

	e := &env{
		det:   detector.NewMockDetector(),
		keys:  &keyRecorder{},
		store: s,
		t0:    time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	e.now = e.t0

	e.session = app.New(app.Options{
		Config:   cfg,
		Camera:   capture.NewMockCamera(nil, false),
		Detector: e.det,
		Store:    s,
		Actuator: plugin.NewActuator(plugins, e.keys, s.Bindings(), cfg.KeyMap(), nil),
		Clock:    func() time.Time { return e.now },
	})

	e.ts = httptest.NewServer(server.New(server.Config{
		Store:   s,
		Session: e.session,
		Plugins: plugins,
	}))
	t.Cleanup(e.ts.Close)
	return e
}

// feed runs n frames of pose through the session at 30 FPS.
func (e *env) feed(t *testing.T, pose detector.Frame, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		e.det.SetFrames(pose.At(e.now.Sub(e.t0)))
		if _, _, err := e.session.ProcessFrame(nil, e.now); err != nil {
			t.Fatalf("ProcessFrame() error = %v", err)
		}
		e.now = e.now.Add(33 * time.Millisecond)
	}
}

func (e *env) status(t *testing.T) app.Status {
	t.Helper()
	resp, err := e.ts.Client().Get(e.ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status error = %v", err)
	}
	defer resp.Body.Close()

	var st app.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

func (e *env) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := e.ts.Client().Post(e.ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", path, err)
	}
	resp.Body.Close()
	return resp
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	e := newEnv(t)

	t.Run("BindJumpToSpace", func(t *testing.T) {
		resp := e.post(t, "/api/bindings", `{"gesture": "jump", "key": "space"}`)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
		}
	})

	t.Run("Calibrate", func(t *testing.T) {
		if st := e.status(t); st.Phase != app.PhaseCalibrating {
			t.Fatalf("phase = %s, want calibrating", st.Phase)
		}
		e.feed(t, detector.NeutralPose(), 5)
		if st := e.status(t); st.Phase != app.PhaseRecognizing || st.Baseline == nil {
			t.Fatalf("status = %+v", st)
		}
	})

	t.Run("JumpUsesStoredBinding", func(t *testing.T) {
		e.feed(t, detector.HandsRaisedPose(), 5)

		keys := e.keys.got()
		if len(keys) != 1 || keys[0] != "keystroke:space" {
			t.Fatalf("keys = %v, want [keystroke:space]", keys)
		}
		if st := e.status(t); st.LastGesture != "jump" {
			t.Errorf("last gesture = %q", st.LastGesture)
		}
	})

	t.Run("CrouchFallsBackToKeyMap", func(t *testing.T) {
		// Wait out the jump cooldown, then hold the squat.
		e.feed(t, detector.NeutralPose(), 10)
		e.feed(t, detector.SquatPose(), 5)

		keys := e.keys.got()
		if len(keys) != 2 || keys[1] != "keystroke:s" {
			t.Fatalf("keys = %v, want crouch on s", keys)
		}
	})

	t.Run("EventHistory", func(t *testing.T) {
		resp, err := e.ts.Client().Get(e.ts.URL + "/api/events/stats")
		if err != nil {
			t.Fatalf("GET stats error = %v", err)
		}
		defer resp.Body.Close()

		var stats struct {
			Total  int            `json:"total"`
			Counts map[string]int `json:"counts"`
		}
		json.NewDecoder(resp.Body).Decode(&stats)
		if stats.Total != 2 || stats.Counts["jump"] != 1 || stats.Counts["crouch"] != 1 {
			t.Errorf("stats = %+v", stats)
		}
	})

	t.Run("PauseStopsActuation", func(t *testing.T) {
		resp := e.post(t, "/api/enabled", `{"enabled": false}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}

		e.feed(t, detector.HandsRaisedPose(), 10)
		if keys := e.keys.got(); len(keys) != 2 {
			t.Errorf("paused session actuated: %v", keys)
		}

		v, err := e.store.Settings().Get(store.SettingEnabled)
		if err != nil || v != "false" {
			t.Errorf("enabled setting = %q, %v", v, err)
		}
	})

	t.Run("Recalibrate", func(t *testing.T) {
		e.post(t, "/api/enabled", `{"enabled": true}`)
		resp := e.post(t, "/api/calibrate", "")
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
		}
		if st := e.status(t); st.Phase != app.PhaseCalibrating {
			t.Errorf("phase = %s, want calibrating", st.Phase)
		}
	})
}

func TestE2E_BindingConflict(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	e := newEnv(t)

	if resp := e.post(t, "/api/bindings", `{"gesture": "block", "key": "l"}`); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first binding status = %d", resp.StatusCode)
	}
	if resp := e.post(t, "/api/bindings", `{"gesture": "block", "key": "k"}`); resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate binding status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
	if resp := e.post(t, "/api/bindings", `{"gesture": "block", "plugin_name": "midi", "action_name": "note"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown plugin status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
