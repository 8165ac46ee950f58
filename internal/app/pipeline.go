package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/cvfighter/internal/capture"
	"github.com/ayusman/cvfighter/internal/detector"
	"github.com/ayusman/cvfighter/internal/gesture"
)

// captureLoop reads frames at the camera rate and hands them to the inbox.
// A full inbox drops its oldest frame, so processing never falls behind.
func (a *App) captureLoop(ctx context.Context, frames *capture.Inbox[capturedFrame]) {
	defer a.wg.Done()

	fps := a.camera.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		mat, err := a.camera.ReadFrame()
		if errors.Is(err, capture.ErrNoMoreFrames) {
			a.logger.Info("camera playback finished")
			return
		}
		if err != nil {
			a.logger.Warn("failed to read frame", "error", err)
			continue
		}

		frames.Put(capturedFrame{mat: mat, at: a.now()})
	}
}

// processLoop runs until the inbox is closed.
func (a *App) processLoop(frames *capture.Inbox[capturedFrame]) {
	defer a.wg.Done()

	for {
		f, ok := frames.Take()
		if !ok {
			return
		}

		if _, _, err := a.ProcessFrame(f.mat, f.at); err != nil {
			a.logger.Warn("pose detection failed", "error", err)
		}
		if a.viewers.Load() > 0 {
			a.updateSnapshot(f.mat)
		}
		f.mat.Close()
	}
}

// actuateLoop keeps plugin execution off the processing goroutine.
func (a *App) actuateLoop(ctx context.Context, actions *capture.Inbox[gesture.Event]) {
	defer a.wg.Done()

	for {
		ev, ok := actions.Take()
		if !ok {
			return
		}
		if err := a.actuator.Trigger(ctx, ev); err != nil {
			a.logger.Warn("actuation failed", "gesture", ev.Gesture, "error", err)
		}
	}
}

// WatchStream marks a preview viewer as connected so frames get annotated
// and encoded. The returned func must be called when the viewer leaves.
func (a *App) WatchStream() (leave func()) {
	a.viewers.Add(1)
	return func() {
		a.viewers.Add(-1)
	}
}

// Snapshot returns the latest annotated JPEG, if any.
func (a *App) Snapshot() ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot, a.snapshot != nil
}

var (
	colorJoint   = color.RGBA{0, 255, 0, 0}
	colorText    = color.RGBA{255, 255, 255, 0}
	colorWarn    = color.RGBA{255, 255, 0, 0}
	colorGesture = color.RGBA{0, 255, 0, 0}
)

func (a *App) updateSnapshot(mat *gocv.Mat) {
	if mat == nil || mat.Empty() {
		return
	}

	img := mat.Clone()
	defer img.Close()

	a.mu.RLock()
	pose := a.lastPose
	a.mu.RUnlock()

	drawOverlay(&img, pose, a.Status())

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		a.logger.Debug("failed to encode preview", "error", err)
		return
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	a.mu.Lock()
	a.snapshot = data
	a.mu.Unlock()
}

// drawOverlay annotates img with the detected joints and the session status.
func drawOverlay(img *gocv.Mat, pose *detector.Frame, st Status) {
	w, h := img.Cols(), img.Rows()

	if pose != nil {
		for _, j := range pose.Joints {
			if j.Visibility < 0.5 {
				continue
			}
			p := image.Pt(int(j.X*float64(w)), int(j.Y*float64(h)))
			gocv.Circle(img, p, 4, colorJoint, -1)
		}
	}

	switch {
	case !st.Enabled:
		gocv.PutText(img, "PAUSED", image.Pt(w/2-80, h/2), gocv.FontHersheySimplex, 2.0, colorWarn, 3)
	case st.Phase == PhaseCalibrating:
		gocv.PutText(img, "Hold a neutral pose", image.Pt(10, 40), gocv.FontHersheySimplex, 1.0, colorWarn, 2)
		bar := image.Rect(w/2-200, 80, w/2+200, 110)
		gocv.Rectangle(img, bar, colorText, 2)
		fill := bar
		fill.Max.X = bar.Min.X + int(float64(bar.Dx())*st.CalibrationProgress)
		gocv.Rectangle(img, fill, colorGesture, -1)
	case st.LastGesture != "":
		gocv.PutText(img, st.LastGesture, image.Pt(10, 40), gocv.FontHersheySimplex, 1.0, colorGesture, 2)
	}

	stats := fmt.Sprintf("FPS %.1f  %.1fms  %s", st.FPS, st.LatencyMS, st.State)
	gocv.PutText(img, stats, image.Pt(10, h-15), gocv.FontHersheySimplex, 0.6, colorText, 1)
}
