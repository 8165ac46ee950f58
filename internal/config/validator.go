package config

import (
	"fmt"
	"strings"

	"github.com/ayusman/cvfighter/internal/gesture"
)

// Validate checks the configuration and fills in derived defaults.
// Every error wraps ErrInvalid.
func Validate(cfg *Config) error {
	t := cfg.Thresholds
	if t.LeanAngle <= 0 || t.LeanAngle >= 90 {
		return invalid("thresholds.lean_angle must be in (0, 90), got %v", t.LeanAngle)
	}
	if t.HandsRaisedRatio < 0 {
		return invalid("thresholds.hands_raised_ratio must be >= 0")
	}
	if t.SquatDropRatio <= 0 {
		return invalid("thresholds.squat_drop_ratio must be > 0")
	}
	if t.PunchVelocity <= 0 {
		return invalid("thresholds.punch_velocity must be > 0")
	}
	if t.PunchDepth >= 0 {
		return invalid("thresholds.punch_depth must be negative (toward the camera), got %v", t.PunchDepth)
	}
	if t.CrossedArmsOffset < 0 {
		return invalid("thresholds.crossed_arms_offset must be >= 0")
	}
	if t.MinVisibility < 0 || t.MinVisibility > 1 {
		return invalid("thresholds.min_visibility must be in [0, 1]")
	}

	if cfg.Timing.Confirmation < 0 || cfg.Timing.Cooldown < 0 {
		return invalid("timing durations must not be negative")
	}
	if cfg.Timing.Calibration <= 0 {
		return invalid("timing.calibration must be > 0")
	}

	if cfg.Capture.FPS <= 0 {
		return invalid("capture.fps must be > 0")
	}
	if cfg.Capture.Width <= 0 || cfg.Capture.Height <= 0 {
		return invalid("capture resolution must be positive, got %dx%d", cfg.Capture.Width, cfg.Capture.Height)
	}
	if cfg.Capture.QueueSize <= 0 {
		cfg.Capture.QueueSize = 2
	}

	if c := cfg.Pose.ModelComplexity; c < 0 || c > 2 {
		return invalid("pose.model_complexity must be 0, 1 or 2, got %d", c)
	}

	for name, key := range cfg.Keys {
		g, err := gesture.ParseGesture(name)
		if err != nil {
			return fmt.Errorf("%w: keys: %w", ErrInvalid, err)
		}
		if g == gesture.None {
			return invalid("keys: %q cannot be bound", name)
		}
		if strings.TrimSpace(key) == "" {
			return invalid("keys.%s must not be empty", name)
		}
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return invalid("mqtt.broker is required when mqtt is enabled")
		}
		if cfg.MQTT.QoS > 2 {
			return invalid("mqtt.qos must be 0, 1 or 2")
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = "cvfighter/gestures"
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "cvfighter"
		}
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("log_level must be debug, info, warn or error, got %q", cfg.LogLevel)
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
