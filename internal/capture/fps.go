package capture

import (
	"sync"
	"time"
)

// FPSCounter measures a frame rate over one-second windows.
type FPSCounter struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	fps         float64
}

// Tick records a frame at now and returns the rate of the last full window.
func (c *FPSCounter) Tick(now time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.windowStart.IsZero() {
		c.windowStart = now
	}
	c.count++

	if elapsed := now.Sub(c.windowStart); elapsed >= time.Second {
		c.fps = float64(c.count) / elapsed.Seconds()
		c.count = 0
		c.windowStart = now
	}
	return c.fps
}

// FPS returns the rate of the last full window, or 0 before one completes.
func (c *FPSCounter) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}
