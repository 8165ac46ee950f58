// Package app wires capture, pose detection, calibration and gesture
// recognition into a running session and fans confirmed events out to the
// actuator, the event log, the MQTT emitter and live listeners.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/cvfighter/internal/calibration"
	"github.com/ayusman/cvfighter/internal/capture"
	"github.com/ayusman/cvfighter/internal/config"
	"github.com/ayusman/cvfighter/internal/detector"
	"github.com/ayusman/cvfighter/internal/gesture"
	"github.com/ayusman/cvfighter/internal/store"
)

// Phase is the session stage.
type Phase string

const (
	PhaseCalibrating Phase = "calibrating"
	PhaseRecognizing Phase = "recognizing"
)

// actionQueueSize bounds events waiting for the actuator.
const actionQueueSize = 8

// Actuator performs the output side of a confirmed event.
type Actuator interface {
	Trigger(ctx context.Context, ev gesture.Event) error
	ReleaseAll(ctx context.Context) error
}

// Publisher forwards events to an external bus.
type Publisher interface {
	Publish(ev gesture.Event, latency time.Duration) error
}

// Notice is delivered to listeners for every confirmed event.
type Notice struct {
	Event   gesture.Event
	Latency time.Duration
	At      time.Time
}

// Options configures an App. Camera and Detector are required.
type Options struct {
	Config   *config.Config
	Camera   capture.Camera
	Detector detector.Detector
	Store    *store.Store // optional
	Actuator Actuator     // optional
	Emitter  Publisher    // optional
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Status is a point-in-time view of the session.
type Status struct {
	Running             bool                  `json:"running"`
	Enabled             bool                  `json:"enabled"`
	Phase               Phase                 `json:"phase"`
	CalibrationProgress float64               `json:"calibration_progress"`
	State               string                `json:"state"`
	LastGesture         string                `json:"last_gesture,omitempty"`
	LastConfidence      float64               `json:"last_confidence,omitempty"`
	LastEventAt         *time.Time            `json:"last_event_at,omitempty"`
	FPS                 float64               `json:"fps"`
	LatencyMS           float64               `json:"latency_ms"`
	Drops               uint64                `json:"drops"`
	Baseline            *calibration.Baseline `json:"baseline,omitempty"`
}

type capturedFrame struct {
	mat *gocv.Mat
	at  time.Time
}

// App is the gesture session. ProcessFrame calls are serialized.
type App struct {
	cfg      *config.Config
	camera   capture.Camera
	detector detector.Detector
	store    *store.Store
	actuator Actuator
	emitter  Publisher
	logger   *slog.Logger
	now      func() time.Time

	fps     capture.FPSCounter
	viewers atomic.Int32

	// processMu serializes ProcessFrame.
	processMu sync.Mutex

	mu         sync.RWMutex
	enabled    bool
	phase      Phase
	calibrator *calibration.Calibrator
	recognizer *gesture.Recognizer
	progress   float64
	last       *Notice
	latency    time.Duration
	lastWarn   time.Time
	lastPose   *detector.Frame
	snapshot   []byte
	listeners  map[int]func(Notice)
	nextID     int

	frames  *capture.Inbox[capturedFrame]
	actions *capture.Inbox[gesture.Event]
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an App. When reuse is configured and a stored baseline exists,
// the session starts in the recognizing phase.
func New(opts Options) *App {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	a := &App{
		cfg:       cfg,
		camera:    opts.Camera,
		detector:  opts.Detector,
		store:     opts.Store,
		actuator:  opts.Actuator,
		emitter:   opts.Emitter,
		logger:    logger.With("component", "app"),
		now:       now,
		enabled:   true,
		listeners: make(map[int]func(Notice)),
	}
	a.resetCalibration()

	if a.store != nil {
		if v, err := a.store.Settings().Get(store.SettingEnabled); err == nil {
			a.enabled = v != "false"
		}
		if cfg.Timing.ReuseBaseline {
			a.restoreBaseline()
		}
	}
	return a
}

func (a *App) restoreBaseline() {
	rec, err := a.store.Baselines().Latest()
	if errors.Is(err, store.ErrNotFound) {
		a.logger.Info("no stored baseline, calibrating")
		return
	}
	if err != nil {
		a.logger.Warn("failed to load baseline", "error", err)
		return
	}

	a.useBaseline(rec.Baseline)
	a.logger.Info("reusing stored baseline", "id", rec.ID, "created_at", rec.CreatedAt)
}

// resetCalibration discards the recognizer and arms a fresh calibrator.
// Caller holds mu or owns a.
func (a *App) resetCalibration() {
	a.phase = PhaseCalibrating
	a.calibrator = calibration.New(a.cfg.Timing.Calibration, calibration.WithClock(a.now))
	a.recognizer = nil
	a.progress = 0
}

func (a *App) useBaseline(b calibration.Baseline) {
	a.recognizer = gesture.NewRecognizer(b, a.cfg.Recognition())
	a.phase = PhaseRecognizing
	a.progress = 1
}

// Start opens the camera and launches the capture, processing and actuation
// goroutines. Calling Start on a running App is a no-op.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.frames = capture.NewInbox(a.cfg.Capture.QueueSize, func(f capturedFrame) {
		f.mat.Close()
	})
	a.actions = capture.NewInbox[gesture.Event](actionQueueSize, func(ev gesture.Event) {
		a.logger.Warn("actuation backlog, dropping event", "gesture", ev.Gesture)
	})

	a.wg.Add(3)
	go a.captureLoop(ctx, a.frames)
	go a.processLoop(a.frames)
	go a.actuateLoop(ctx, a.actions)

	a.logger.Info("session started", "phase", a.phase, "enabled", a.enabled)
	return nil
}

// Stop halts the goroutines, releases held keys and closes the camera and
// detector.
func (a *App) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	frames, actions := a.frames, a.actions
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	frames.Close()
	actions.Close()
	a.wg.Wait()

	a.mu.Lock()
	a.frames, a.actions = nil, nil
	a.mu.Unlock()

	if a.actuator != nil {
		ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.actuator.ReleaseAll(ctx); err != nil {
			a.logger.Warn("failed to release keys", "error", err)
		}
		done()
	}

	if err := a.camera.Close(); err != nil {
		a.logger.Warn("failed to close camera", "error", err)
	}
	if err := a.detector.Close(); err != nil {
		a.logger.Warn("failed to close detector", "error", err)
	}

	a.logger.Info("session stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cancel != nil
}

// SetEnabled pauses or resumes recognition. Resuming clears the debounce
// state so a pose held while paused must be confirmed again.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	changed := a.enabled != enabled
	a.enabled = enabled
	if changed && enabled && a.recognizer != nil {
		a.recognizer.Reset()
	}
	a.mu.Unlock()

	if !changed {
		return
	}

	if !enabled && a.actuator != nil {
		if err := a.actuator.ReleaseAll(context.Background()); err != nil {
			a.logger.Warn("failed to release keys", "error", err)
		}
	}

	if a.store != nil {
		v := "true"
		if !enabled {
			v = "false"
		}
		if err := a.store.Settings().Set(store.SettingEnabled, v); err != nil {
			a.logger.Warn("failed to persist enabled setting", "error", err)
		}
	}
	a.logger.Info("recognition toggled", "enabled", enabled)
}

// IsEnabled reports whether recognition is active.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Recalibrate discards the current baseline and starts a new calibration
// window on the next detected pose.
func (a *App) Recalibrate() {
	a.mu.Lock()
	a.resetCalibration()
	a.mu.Unlock()
	a.logger.Info("recalibration requested")
}

// Subscribe registers fn for every confirmed event. fn runs on the
// processing goroutine and must not block. The returned func unsubscribes.
func (a *App) Subscribe(fn func(Notice)) (unsubscribe func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// Status returns a snapshot of the session.
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st := Status{
		Running:             a.cancel != nil,
		Enabled:             a.enabled,
		Phase:               a.phase,
		CalibrationProgress: a.progress,
		State:               gesture.Idle.String(),
		FPS:                 a.fps.FPS(),
		LatencyMS:           float64(a.latency.Microseconds()) / 1000,
	}
	if a.frames != nil {
		st.Drops = a.frames.Drops()
	}
	if a.recognizer != nil {
		st.State = a.recognizer.State().String()
		b := a.recognizer.Baseline()
		st.Baseline = &b
	}
	if a.last != nil {
		st.LastGesture = a.last.Event.Gesture.String()
		st.LastConfidence = a.last.Event.Confidence
		at := a.last.At
		st.LastEventAt = &at
	}
	return st
}

// ProcessFrame runs one captured image through detection and the current
// phase. ok is true when a gesture event was confirmed.
func (a *App) ProcessFrame(mat *gocv.Mat, capturedAt time.Time) (ev gesture.Event, ok bool, err error) {
	a.processMu.Lock()
	defer a.processMu.Unlock()

	start := a.now()
	a.fps.Tick(start)

	if !a.IsEnabled() {
		return gesture.Event{}, false, nil
	}

	pose, err := a.detector.Detect(mat)
	if err != nil {
		return gesture.Event{}, false, err
	}
	if pose == nil {
		return gesture.Event{}, false, nil
	}

	ev, ok = a.processPose(*pose)

	done := a.now()
	a.recordLatency(done.Sub(start))

	if ok {
		a.dispatch(ev, done.Sub(capturedAt), done)
	}
	return ev, ok, nil
}

func (a *App) processPose(pose detector.Frame) (gesture.Event, bool) {
	a.mu.Lock()
	a.lastPose = &pose

	if a.phase == PhaseRecognizing {
		ev, ok := a.recognizer.Recognize(pose)
		a.mu.Unlock()
		return ev, ok
	}

	cal := a.calibrator
	if !cal.Started() {
		cal.Start()
		a.logger.Info("calibration started, hold a neutral pose", "duration", a.cfg.Timing.Calibration)
	}
	complete, progress := cal.Observe(pose)
	a.progress = progress
	if !complete {
		a.mu.Unlock()
		return gesture.Event{}, false
	}

	if err := cal.Err(); err != nil {
		a.logger.Warn("calibration failed, retrying", "error", err)
		a.resetCalibration()
		a.mu.Unlock()
		return gesture.Event{}, false
	}

	baseline := cal.Baseline()
	samples := cal.Samples()
	a.useBaseline(baseline)
	a.mu.Unlock()

	a.logger.Info("calibration complete",
		"samples", samples,
		"torso_length", baseline.TorsoLength,
		"shoulder_width", baseline.ShoulderWidth,
		"neutral_angle", baseline.NeutralTorsoAngle)

	if a.store != nil {
		if _, err := a.store.Baselines().Save(baseline, samples); err != nil {
			a.logger.Warn("failed to persist baseline", "error", err)
		}
	}
	return gesture.Event{}, false
}

func (a *App) recordLatency(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.latency = d
	if budget := a.cfg.Performance.MaxProcessing; budget > 0 && d > budget {
		if now := a.now(); now.Sub(a.lastWarn) >= time.Second {
			a.lastWarn = now
			a.logger.Warn("frame processing over budget", "took", d, "budget", budget)
		}
	}
}

// dispatch hands a confirmed event to every sink.
func (a *App) dispatch(ev gesture.Event, latency time.Duration, at time.Time) {
	n := Notice{Event: ev, Latency: latency, At: at}

	a.mu.Lock()
	a.last = &n
	actions := a.actions
	listeners := make([]func(Notice), 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()

	a.logger.Info("gesture",
		"gesture", ev.Gesture,
		"confidence", ev.Confidence,
		"latency", latency)
	if target := a.cfg.Performance.TargetLatency; target > 0 && latency > target {
		a.logger.Warn("event latency over target", "latency", latency, "target", target)
	}

	if a.actuator != nil {
		if actions != nil {
			actions.Put(ev)
		} else if err := a.actuator.Trigger(context.Background(), ev); err != nil {
			a.logger.Warn("actuation failed", "gesture", ev.Gesture, "error", err)
		}
	}

	if a.store != nil {
		if _, err := a.store.Events().Record(ev, latency); err != nil {
			a.logger.Warn("failed to record event", "error", err)
		}
	}

	if a.emitter != nil {
		if err := a.emitter.Publish(ev, latency); err != nil {
			a.logger.Debug("publish failed", "gesture", ev.Gesture, "error", err)
		}
	}

	for _, fn := range listeners {
		fn(n)
	}
}
