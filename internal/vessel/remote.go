package vessel

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/macro-autopilot/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of the MQTT client a Remote needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger defines the logging interface used by Remote.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// controlMessage is the payload published on the control topic.
type controlMessage struct {
	VesselID string    `json:"vessel_id"`
	Controls Controls  `json:"controls"`
	SentAt   time.Time `json:"sent_at"`
}

// Remote is a vessel reached over MQTT. It caches the most recent telemetry
// report and publishes controls as JSON.
type Remote struct {
	id     string
	client MQTTClient
	qos    byte
	logger Logger

	mu       sync.RWMutex
	last     *Telemetry
	lastSeen time.Time
}

// NewRemote creates a remote vessel. Call Start to begin receiving telemetry.
func NewRemote(id string, client MQTTClient, qos byte) *Remote {
	return &Remote{id: id, client: client, qos: qos, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (r *Remote) SetLogger(logger Logger) {
	r.logger = logger
}

// Start subscribes to the vessel's telemetry topic.
func (r *Remote) Start() error {
	topic := mqtt.Topics{}.VesselTelemetry(r.id)
	if err := r.client.Subscribe(topic, r.qos, r.handleTelemetry); err != nil {
		return fmt.Errorf("subscribing to %q: %w", topic, err)
	}
	return nil
}

func (r *Remote) handleTelemetry(topic string, payload []byte) error {
	var t Telemetry
	if err := json.Unmarshal(payload, &t); err != nil {
		r.logger.Warn("discarding malformed telemetry", "topic", topic, "error", err)
		return fmt.Errorf("decoding telemetry: %w", err)
	}
	if t.VesselID == "" {
		t.VesselID = r.id
	}

	r.mu.Lock()
	r.last = &t
	r.lastSeen = time.Now().UTC()
	r.mu.Unlock()
	return nil
}

// ID implements Vessel.
func (r *Remote) ID() string { return r.id }

// Telemetry implements Vessel. Before the first report it returns an empty
// snapshot carrying only the vessel ID.
func (r *Remote) Telemetry() Telemetry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Telemetry{VesselID: r.id}
	}
	return r.last.Clone()
}

// LastSeen returns when telemetry was last received, or the zero time.
func (r *Remote) LastSeen() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSeen
}

// Has implements Vessel.
func (r *Remote) Has(c Capability) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last != nil && slices.Contains(r.last.Capabilities, c)
}

// Apply implements Vessel by publishing the controls.
func (r *Remote) Apply(c Controls) error {
	r.mu.RLock()
	last := r.last
	r.mu.RUnlock()
	if last == nil {
		return ErrNoTelemetry
	}
	if err := checkControls(*last, c); err != nil {
		return err
	}

	payload, err := json.Marshal(controlMessage{VesselID: r.id, Controls: c, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshalling controls: %w", err)
	}
	topic := mqtt.Topics{}.VesselControl(r.id)
	if err := r.client.Publish(topic, payload, r.qos, false); err != nil {
		return fmt.Errorf("publishing to %q: %w", topic, err)
	}
	r.logger.Debug("controls published", "vessel_id", r.id, "topic", topic)
	return nil
}
