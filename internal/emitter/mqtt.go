// Package emitter publishes confirmed gesture events to an MQTT broker so
// other processes (overlays, game bridges, loggers) can react to them.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/cvfighter/internal/config"
	"github.com/ayusman/cvfighter/internal/gesture"
)

// ErrNotConnected is returned by Publish before Connect succeeds or after
// the connection is lost.
var ErrNotConnected = errors.New("mqtt not connected")

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Message is the JSON payload published for each event.
type Message struct {
	Gesture     string  `json:"gesture"`
	Confidence  float64 `json:"confidence"`
	TimestampMS int64   `json:"timestamp_ms"`
	State       string  `json:"state"`
	LatencyMS   float64 `json:"latency_ms"`
	SentAt      string  `json:"sent_at"`
}

// publisher is the part of mqtt.Client the emitter needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter publishes gesture events to <topic>/<gesture>.
type MQTTEmitter struct {
	cfg    config.MQTTConfig
	logger *slog.Logger
	client mqtt.Client
	pub    publisher

	mu        sync.RWMutex
	connected bool
	published map[string]uint64 // count per topic
	errors    uint64
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// NewMQTTEmitter creates an emitter. Call Connect before Publish.
func NewMQTTEmitter(cfg config.MQTTConfig, logger *slog.Logger) *MQTTEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTEmitter{
		cfg:       cfg,
		logger:    logger.With("component", "mqtt"),
		published: make(map[string]uint64),
	}
}

// Connect establishes the broker connection. The client reconnects on its
// own after a drop.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		e.logger.Info("mqtt connection established", "broker", e.cfg.Broker, "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		e.logger.Warn("mqtt connection lost, will auto-reconnect", "broker", e.cfg.Broker, "error", err)
	}

	e.client = mqtt.NewClient(opts)
	e.pub = e.client

	e.logger.Info("connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Topic returns the topic an event for g is published on.
func (e *MQTTEmitter) Topic(g gesture.Gesture) string {
	return e.cfg.Topic + "/" + g.String()
}

// NewMessage builds the payload for ev.
func NewMessage(ev gesture.Event, latency time.Duration, now time.Time) Message {
	return Message{
		Gesture:     ev.Gesture.String(),
		Confidence:  ev.Confidence,
		TimestampMS: ev.TimestampMS(),
		State:       ev.State.String(),
		LatencyMS:   float64(latency.Microseconds()) / 1000,
		SentAt:      now.UTC().Format(time.RFC3339Nano),
	}
}

// Publish sends ev with the configured QoS.
func (e *MQTTEmitter) Publish(ev gesture.Event, latency time.Duration) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	topic := e.Topic(ev.Gesture)
	payload, err := json.Marshal(NewMessage(ev, latency, time.Now()))
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := e.pub.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	e.logger.Debug("event published", "topic", topic, "qos", e.cfg.QoS, "size", len(payload))
	return nil
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.logger.Info("mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats returns emitter statistics.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Connected: e.connected, Published: published, Errors: e.errors}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
