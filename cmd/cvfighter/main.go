package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"

	"github.com/ayusman/cvfighter/internal/app"
	"github.com/ayusman/cvfighter/internal/capture"
	"github.com/ayusman/cvfighter/internal/config"
	"github.com/ayusman/cvfighter/internal/detector"
	"github.com/ayusman/cvfighter/internal/emitter"
	"github.com/ayusman/cvfighter/internal/plugin"
	"github.com/ayusman/cvfighter/internal/server"
	"github.com/ayusman/cvfighter/internal/store"
	"github.com/ayusman/cvfighter/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	headless := flag.Bool("headless", false, "run without the system tray")
	flag.Parse()

	if err := run(*configPath, *addr, *headless); err != nil {
		slog.Error("cvfighter failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, addr string, headless bool) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	logger.Info("CV Fighter - body gesture controller")

	dbPath, err := cfg.StorePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	plugins := plugin.NewManager(cfg.Plugins.Dir, logger)
	if err := plugins.Discover(); err != nil {
		logger.Warn("plugin discovery failed", "dir", cfg.Plugins.Dir, "error", err)
	}
	actuator := plugin.NewActuator(plugins, plugin.NewExecutor(cfg.Plugins.Timeout), st.Bindings(), cfg.KeyMap(), logger)

	opts := app.Options{
		Config:   cfg,
		Camera:   capture.NewCamera(captureOptions(cfg.Capture)),
		Detector: newDetector(cfg, logger),
		Store:    st,
		Actuator: actuator,
		Logger:   logger,
	}

	var mq *emitter.MQTTEmitter
	if cfg.MQTT.Enabled {
		mq = emitter.NewMQTTEmitter(cfg.MQTT, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := mq.Connect(ctx); err != nil {
			logger.Warn("mqtt unavailable, events will not be published", "broker", cfg.MQTT.Broker, "error", err)
		}
		cancel()
		opts.Emitter = mq
	}

	session := app.New(opts)
	if err := session.Start(); err != nil {
		return err
	}

	webDir := cfg.Server.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		logger.Info("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Session:   session,
		Plugins:   plugins,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(cfg.Server.Addr)
	}()

	go showCalibration(ctx, session)

	if headless {
		select {
		case <-ctx.Done():
		case err = <-serveErr:
		}
	} else {
		go func() {
			select {
			case <-ctx.Done():
			case err := <-serveErr:
				if err != nil {
					logger.Error("http server failed", "error", err)
				}
			}
			tray.Quit()
		}()
		runTray(session, cfg.Server.Addr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown failed", "error", serr)
	}
	session.Stop()
	if mq != nil {
		mq.Disconnect()
	}

	logger.Info("stopped")
	return err
}

// runTray blocks in the system tray until Quit is clicked or tray.Quit is called.
func runTray(session *app.App, addr string) {
	t := tray.New(session.IsEnabled())
	t.OnToggle(session.SetEnabled)
	t.OnRecalibrate(session.Recalibrate)
	t.OnDashboard(func() {
		if err := openBrowser(dashboardURL(addr)); err != nil {
			slog.Warn("failed to open dashboard", "error", err)
		}
	})
	unsubscribe := session.Subscribe(func(n app.Notice) {
		t.SetLastGesture(n.Event.Gesture.String(), n.Event.Confidence)
	})
	defer unsubscribe()

	t.Run()
}

// showCalibration draws a terminal progress bar whenever the session is
// calibrating.
func showCalibration(ctx context.Context, session *app.App) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var bar *pb.ProgressBar
	for {
		select {
		case <-ctx.Done():
			if bar != nil {
				bar.Finish()
			}
			return
		case <-ticker.C:
		}

		st := session.Status()
		calibrating := st.Enabled && st.Phase == app.PhaseCalibrating
		switch {
		case calibrating && bar == nil:
			bar = pb.ProgressBarTemplate(`{{ string . "prefix" }} {{bar . }} {{percent . }}`).Start(100)
			bar.Set("prefix", "Hold a neutral pose")
			bar.SetCurrent(int64(st.CalibrationProgress * 100))
		case calibrating:
			bar.SetCurrent(int64(st.CalibrationProgress * 100))
		case bar != nil:
			bar.SetCurrent(100)
			bar.Finish()
			bar = nil
		}
	}
}

func captureOptions(c config.CaptureConfig) capture.Options {
	return capture.Options{
		DeviceID: c.CameraID,
		Width:    c.Width,
		Height:   c.Height,
		FPS:      c.FPS,
		Mirror:   c.Mirror,
	}
}

// newDetector returns the MediaPipe detector, or an idle mock when the pose
// service is not installed so the dashboard and preview still work.
func newDetector(cfg *config.Config, logger *slog.Logger) detector.Detector {
	d, err := detector.NewMediaPipeDetector(cfg.Detector())
	if err == nil {
		return d
	}
	if errors.Is(err, detector.ErrServiceNotFound) {
		logger.Error("pose service not found, no gestures will be recognized", "error", err)
	} else {
		logger.Error("failed to create pose detector", "error", err)
	}
	return detector.NewMockDetector()
}

func dashboardURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.cvfighter/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	// Check relative paths from current working directory
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
