// Package config loads cvfighter settings from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/cvfighter/internal/detector"
	"github.com/ayusman/cvfighter/internal/gesture"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the complete cvfighter configuration.
type Config struct {
	Thresholds  ThresholdsConfig  `yaml:"thresholds"`
	Timing      TimingConfig      `yaml:"timing"`
	Capture     CaptureConfig     `yaml:"capture"`
	Pose        PoseConfig        `yaml:"pose"`
	Keys        map[string]string `yaml:"keys"` // gesture name -> key
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Plugins     PluginsConfig     `yaml:"plugins"`
	Performance PerformanceConfig `yaml:"performance"`
	LogLevel    string            `yaml:"log_level"` // debug, info, warn, error
}

// ThresholdsConfig contains the gesture detector thresholds.
type ThresholdsConfig struct {
	LeanAngle         float64 `yaml:"lean_angle"` // degrees
	HandsRaisedRatio  float64 `yaml:"hands_raised_ratio"`
	SquatDropRatio    float64 `yaml:"squat_drop_ratio"`
	PunchVelocity     float64 `yaml:"punch_velocity"`
	PunchDepth        float64 `yaml:"punch_depth"` // negative, toward the camera
	CrossedArmsOffset float64 `yaml:"crossed_arms_offset"`
	MinVisibility     float64 `yaml:"min_visibility"`
}

// TimingConfig contains debounce and calibration windows.
type TimingConfig struct {
	Confirmation time.Duration `yaml:"confirmation"`
	Cooldown     time.Duration `yaml:"cooldown"`
	Calibration  time.Duration `yaml:"calibration"`

	// ReuseBaseline skips calibration at startup when a stored baseline exists.
	ReuseBaseline bool `yaml:"reuse_baseline"`
}

// CaptureConfig contains camera settings.
type CaptureConfig struct {
	CameraID  int  `yaml:"camera_id"`
	Width     int  `yaml:"width"`
	Height    int  `yaml:"height"`
	FPS       int  `yaml:"fps"`
	Mirror    bool `yaml:"mirror"`
	QueueSize int  `yaml:"queue_size"`
}

// PoseConfig contains pose estimator settings.
type PoseConfig struct {
	ModelComplexity        int     `yaml:"model_complexity"` // 0, 1 or 2
	MinDetectionConfidence float64 `yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `yaml:"min_tracking_confidence"`
}

// ServerConfig contains HTTP settings.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// StoreConfig contains database settings.
type StoreConfig struct {
	Path string `yaml:"path"` // empty means ~/.cvfighter/cvfighter.db
}

// MQTTConfig contains gesture event publishing settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// PluginsConfig contains actuation plugin settings.
type PluginsConfig struct {
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout"`
}

// PerformanceConfig contains latency targets used for warnings.
type PerformanceConfig struct {
	TargetLatency time.Duration `yaml:"target_latency"`
	MaxProcessing time.Duration `yaml:"max_processing"`
}

// Default returns the built-in configuration.
func Default() *Config {
	g := gesture.DefaultConfig()
	return &Config{
		Thresholds: ThresholdsConfig{
			LeanAngle:         g.LeanAngle,
			HandsRaisedRatio:  g.HandsRaisedRatio,
			SquatDropRatio:    g.SquatDropRatio,
			PunchVelocity:     g.PunchVelocity,
			PunchDepth:        g.PunchDepth,
			CrossedArmsOffset: g.CrossedArmsOffset,
			MinVisibility:     g.MinVisibility,
		},
		Timing: TimingConfig{
			Confirmation: g.ConfirmationDuration,
			Cooldown:     g.CooldownDuration,
			Calibration:  3 * time.Second,
		},
		Capture: CaptureConfig{
			CameraID:  0,
			Width:     640,
			Height:    480,
			FPS:       30,
			Mirror:    true,
			QueueSize: 2,
		},
		Pose: PoseConfig{
			ModelComplexity:        1,
			MinDetectionConfidence: 0.5,
			MinTrackingConfidence:  0.5,
		},
		Keys: map[string]string{
			gesture.MoveLeft.String():      "a",
			gesture.MoveRight.String():     "d",
			gesture.Jump.String():          "w",
			gesture.Crouch.String():        "s",
			gesture.AttackBasic.String():   "j",
			gesture.AttackSpecial.String(): "k",
			gesture.Block.String():         "l",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "cvfighter",
			Topic:    "cvfighter/gestures",
		},
		Plugins: PluginsConfig{
			Dir:     "plugins",
			Timeout: 2 * time.Second,
		},
		Performance: PerformanceConfig{
			TargetLatency: 150 * time.Millisecond,
			MaxProcessing: 33 * time.Millisecond,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file over the defaults and validates the result.
// Keys missing from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Recognition projects thresholds and timing into the recognizer config.
func (c *Config) Recognition() gesture.Config {
	return gesture.Config{
		LeanAngle:            c.Thresholds.LeanAngle,
		HandsRaisedRatio:     c.Thresholds.HandsRaisedRatio,
		SquatDropRatio:       c.Thresholds.SquatDropRatio,
		PunchVelocity:        c.Thresholds.PunchVelocity,
		PunchDepth:           c.Thresholds.PunchDepth,
		CrossedArmsOffset:    c.Thresholds.CrossedArmsOffset,
		MinVisibility:        c.Thresholds.MinVisibility,
		ConfirmationDuration: c.Timing.Confirmation,
		CooldownDuration:     c.Timing.Cooldown,
	}
}

// Detector returns the pose estimator settings.
func (c *Config) Detector() detector.Config {
	return detector.Config{
		ModelComplexity: c.Pose.ModelComplexity,
		MinConfidence:   c.Pose.MinDetectionConfidence,
		MinTrackingConf: c.Pose.MinTrackingConfidence,
	}
}

// KeyMap returns the validated gesture to key mapping.
// Entries with unknown gesture names are skipped.
func (c *Config) KeyMap() map[gesture.Gesture]string {
	keys := make(map[gesture.Gesture]string, len(c.Keys))
	for name, key := range c.Keys {
		g, err := gesture.ParseGesture(name)
		if err != nil || g == gesture.None {
			continue
		}
		keys[g] = key
	}
	return keys
}

// StorePath returns the database path, defaulting to ~/.cvfighter/cvfighter.db.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cvfighter.db"), nil
}

// DataDir returns ~/.cvfighter.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".cvfighter"), nil
}

// SlogLevel maps LogLevel to a slog.Level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
