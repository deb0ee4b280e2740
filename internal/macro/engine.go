package macro

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/macro-autopilot/internal/geo"
	"github.com/nerrad567/macro-autopilot/internal/infrastructure/mqtt"
	"github.com/nerrad567/macro-autopilot/internal/vessel"
)

// MQTTClient is the interface for publishing engine events.
type MQTTClient interface {
	// Publish sends a message to the specified MQTT topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// MetricsWriter is the interface for recording per-tick telemetry.
type MetricsWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{})
}

// stepper is implemented by simulated vessels that advance with the engine.
type stepper interface {
	Step(dt float64)
}

// WebSocket channels and the tick measurement name.
const (
	ChannelActivated = "macro.child_activated"
	ChannelStatus    = "macro.status"

	tickMeasurement = "macro_tick"
)

// Engine defaults.
const (
	DefaultTickInterval = 100 * time.Millisecond
	DefaultMaxTicks     = 0 // unlimited
)

// Intervention policies, applied while the pilot's input departs from trim.
const (
	// InterventionPause suspends execution until the pilot lets go.
	InterventionPause = "pause"
	// InterventionAbort ends the run as interrupted.
	InterventionAbort = "abort"
)

// EngineConfig holds the engine settings.
type EngineConfig struct {
	VesselID     string
	TickInterval time.Duration
	// MaxTicks aborts a run that has not finished after this many ticks.
	// Zero means no limit.
	MaxTicks int
	// Intervention is InterventionPause or InterventionAbort. Empty means pause.
	Intervention string
	Env          Env
}

// Deps holds the engine's collaborators. Vessel, Library and Repo are
// required; the rest may be nil.
type Deps struct {
	Vessel   vessel.Vessel
	Resolver geo.EntityResolver
	Library  *Library
	Repo     Repository
	MQTT     MQTTClient
	Hub      WSHub
	Metrics  MetricsWriter
	Logger   Logger
}

// Snapshot is a point-in-time view of an engine.
type Snapshot struct {
	VesselID   string            `json:"vessel_id"`
	Macro      string            `json:"macro,omitempty"`
	EntryID    *string           `json:"entry_id,omitempty"`
	Title      string            `json:"title,omitempty"`
	State      State             `json:"state"`
	Status     string            `json:"status"`
	ActivePath []string          `json:"active_path,omitempty"`
	ActiveKind string            `json:"active_kind,omitempty"`
	Tick       int               `json:"tick"`
	RunID      string            `json:"run_id,omitempty"`
	Telemetry  *vessel.Telemetry `json:"telemetry,omitempty"`
}

// Engine drives one macro against one vessel.
//
// Each Tick takes a telemetry snapshot, executes the macro root once and
// then advances a simulated vessel. Activations are published over MQTT and
// WebSocket as they happen; a Run record is written when the macro starts
// and updated when it finishes.
//
// Thread Safety: all methods are safe for concurrent use. Ticks, loads and
// aborts are serialised.
type Engine struct {
	cfg      EngineConfig
	dt       float64
	vessel   vessel.Vessel
	resolver geo.EntityResolver
	library  *Library
	repo     Repository
	mqtt     MQTTClient
	hub      WSHub
	metrics  MetricsWriter
	logger   Logger

	mu       sync.Mutex
	macro    *Macro
	entryID  *string
	warnings []string
	run      *Run
	tick     int
	last     Status
	lastTel  *vessel.Telemetry
	sas      sasGuard
	yielding bool
}

// NewEngine creates an engine for one vessel.
func NewEngine(cfg EngineConfig, deps Deps) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Env == (Env{}) {
		cfg.Env = DefaultEnv()
	}
	if cfg.Intervention == "" {
		cfg.Intervention = InterventionPause
	}
	if cfg.VesselID == "" && deps.Vessel != nil {
		cfg.VesselID = deps.Vessel.ID()
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		cfg:      cfg,
		dt:       cfg.TickInterval.Seconds(),
		vessel:   deps.Vessel,
		resolver: deps.Resolver,
		library:  deps.Library,
		repo:     deps.Repo,
		mqtt:     deps.MQTT,
		hub:      deps.Hub,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// VesselID returns the vessel this engine drives.
func (e *Engine) VesselID() string { return e.cfg.VesselID }

// Load installs a copy of the named library macro, replacing any loaded
// macro. The new macro starts from Idle.
func (e *Engine) Load(ctx context.Context, name string) error {
	m, err := e.library.Get(ctx, name)
	if err != nil {
		return err
	}
	var entryID *string
	if entry, ok := e.library.Lookup(name); ok {
		entryID = &entry.ID
	}
	e.install(ctx, m, entryID, nil)
	return nil
}

// LoadByID installs a copy of the library macro with the given entry ID.
func (e *Engine) LoadByID(ctx context.Context, id string) error {
	m, err := e.library.Select(ctx, id)
	if err != nil {
		return err
	}
	e.install(ctx, m, &id, nil)
	return nil
}

// LoadMacro installs a copy of m, which need not be in the library.
func (e *Engine) LoadMacro(ctx context.Context, m *Macro) error {
	if err := ValidateMacro(m); err != nil {
		return err
	}
	cpy, err := CopyMacro(m)
	if err != nil {
		return err
	}
	e.install(ctx, cpy, nil, nil)
	return nil
}

// LoadRecord installs a macro decoded from rec. Malformed nodes are dropped
// and recorded as run warnings.
func (e *Engine) LoadRecord(ctx context.Context, rec Record) error {
	m, err := DecodeMacro(rec)
	if m == nil {
		return err
	}
	if err := ValidateMacro(m); err != nil {
		return err
	}
	e.install(ctx, m, nil, Warnings(err))
	return nil
}

func (e *Engine) install(ctx context.Context, m *Macro, entryID *string, warnings []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.run != nil && !e.run.Status.Terminal() {
		e.finishRun(ctx, RunAborted)
	}

	m.Reset()
	m.ClearObservers()
	m.OnActivate(e.onActivate)

	e.macro = m
	e.entryID = entryID
	e.warnings = warnings
	e.run = nil
	e.tick = 0
	e.last = Continue

	e.logger.Info("macro loaded",
		"vessel_id", e.cfg.VesselID,
		"macro", m.Name(),
		"nodes", CountNodes(m),
		"warnings", len(warnings),
	)
	e.broadcastStatus("loaded")
}

// Unload removes the loaded macro, aborting its run if one is in progress.
func (e *Engine) Unload(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.run != nil && !e.run.Status.Terminal() {
		e.finishRun(ctx, RunAborted)
	}
	e.macro = nil
	e.entryID = nil
	e.run = nil
	e.tick = 0
	e.last = Continue
}

// Tick runs one engine step.
//
// A simulated vessel advances on every call, even with no macro loaded or
// after the macro has finished; in those cases ErrNoMacro or the final
// status is returned.
func (e *Engine) Tick(ctx context.Context) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.stepVessel()

	if e.macro == nil {
		return Failed, ErrNoMacro
	}
	if e.macro.State().Terminal() {
		return e.last, nil
	}
	if e.run == nil {
		e.startRun(ctx)
	}

	tel := e.vessel.Telemetry()
	e.lastTel = &tel
	if st, yielded := e.yield(ctx, tel); yielded {
		return st, nil
	}
	c := &Context{
		Vessel:    e.vessel,
		Telemetry: tel,
		Resolver:  e.resolver,
		DT:        e.dt,
		Tick:      e.tick,
		Env:       e.cfg.Env,
		Logger:    e.logger,
		sas:       &e.sas,
	}

	st := e.macro.Execute(c)
	e.tick++
	e.run.Ticks = e.tick
	e.writeMetrics(c, st)

	switch st {
	case Complete:
		e.finishRun(ctx, RunCompleted)
	case Failed:
		e.finishRun(ctx, RunFailed)
	default:
		if e.cfg.MaxTicks > 0 && e.tick >= e.cfg.MaxTicks {
			e.logger.Warn("macro exceeded tick limit", "macro", e.macro.Name(), "max_ticks", e.cfg.MaxTicks)
			e.macro.Abort()
			st = Failed
			e.finishRun(ctx, RunTimedOut)
		}
	}
	e.last = st
	return st, nil
}

// yield hands the vessel back to a pilot whose input departs from trim.
// It reports whether this tick was given up. Must be called with mu held.
func (e *Engine) yield(ctx context.Context, tel vessel.Telemetry) (Status, bool) {
	if !tel.Pilot.Intervening() {
		if e.yielding {
			e.yielding = false
			e.logger.Info("pilot released controls, resuming", "vessel_id", e.cfg.VesselID, "macro", e.macro.Name())
			e.broadcastStatus(string(RunRunning))
		}
		return Continue, false
	}

	if e.cfg.Intervention == InterventionAbort {
		e.logger.Warn("pilot intervened, aborting macro", "vessel_id", e.cfg.VesselID, "macro", e.macro.Name())
		e.macro.Abort()
		e.last = Failed
		e.finishRun(ctx, RunInterrupted)
		return Failed, true
	}

	if !e.yielding {
		e.yielding = true
		e.sas.release(e.vessel, e.logger)
		e.logger.Info("pilot intervening, pausing macro", "vessel_id", e.cfg.VesselID, "macro", e.macro.Name())
		e.broadcastStatus("paused")
	}
	return Continue, true
}

func (e *Engine) stepVessel() {
	if s, ok := e.vessel.(stepper); ok {
		s.Step(e.dt)
	}
}

// Abort stops the loaded macro. It stays loaded; Reset makes it runnable.
func (e *Engine) Abort(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.macro == nil {
		return ErrNoMacro
	}
	e.macro.Abort()
	e.last = Failed
	if e.run != nil && !e.run.Status.Terminal() {
		e.finishRun(ctx, RunAborted)
	} else {
		e.broadcastStatus(string(StateAborted))
	}
	e.logger.Info("macro aborted", "vessel_id", e.cfg.VesselID, "macro", e.macro.Name())
	return nil
}

// Reset returns the loaded macro to Idle so the next Tick starts a new run.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.macro == nil {
		return ErrNoMacro
	}
	if e.run != nil && !e.run.Status.Terminal() {
		e.finishRun(ctx, RunAborted)
	}
	e.macro.Reset()
	e.run = nil
	e.tick = 0
	e.last = Continue
	e.broadcastStatus(string(StateIdle))
	return nil
}

// Snapshot returns the engine's current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{VesselID: e.cfg.VesselID, State: StateIdle, Status: e.last.String(), Tick: e.tick}
	if e.lastTel != nil {
		t := e.lastTel.Clone()
		s.Telemetry = &t
	}
	if e.macro == nil {
		return s
	}
	s.Macro = e.macro.Name()
	s.EntryID = e.entryID
	s.Title = e.macro.Title()
	s.State = e.macro.State()
	s.ActivePath = e.macro.ActivePath()
	if n := e.macro.ActiveNode(); n != nil {
		s.ActiveKind = n.Kind()
	}
	if e.run != nil {
		s.RunID = e.run.ID
	}
	return s
}

// Runs returns recent runs on this engine's vessel.
func (e *Engine) Runs(ctx context.Context, limit int) ([]Run, error) {
	return e.repo.ListRuns(ctx, e.cfg.VesselID, limit)
}

// Run ticks the engine at the configured interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := e.Tick(ctx); err != nil && !errors.Is(err, ErrNoMacro) {
				e.logger.Error("tick failed", "vessel_id", e.cfg.VesselID, "error", err)
			}
		}
	}
}

// ─── Run records ────────────────────────────────────────────────────────────

// startRun must be called with mu held.
func (e *Engine) startRun(ctx context.Context) {
	e.run = &Run{
		ID:        GenerateID(),
		VesselID:  e.cfg.VesselID,
		EntryID:   e.entryID,
		MacroName: e.macro.Name(),
		StartedAt: time.Now().UTC(),
		Status:    RunRunning,
		Warnings:  e.warnings,
	}
	if err := e.repo.CreateRun(ctx, e.run); err != nil {
		// Keep flying even if the run log is unavailable.
		e.logger.Error("failed to create run record", "error", err)
	}
	e.logger.Info("macro run started",
		"vessel_id", e.cfg.VesselID,
		"macro", e.run.MacroName,
		"run_id", e.run.ID,
	)
	e.broadcastStatus(string(RunRunning))
}

// finishRun must be called with mu held.
func (e *Engine) finishRun(ctx context.Context, status RunStatus) {
	if e.run == nil {
		return
	}
	now := time.Now().UTC()
	duration := int(now.Sub(e.run.StartedAt).Milliseconds())
	e.sas.release(e.vessel, e.logger)
	e.yielding = false
	e.run.CompletedAt = &now
	e.run.Status = status
	e.run.DurationMS = &duration

	if err := e.repo.UpdateRun(ctx, e.run); err != nil {
		e.logger.Error("failed to update run record", "error", err)
	}
	e.logger.Info("macro run finished",
		"vessel_id", e.cfg.VesselID,
		"macro", e.run.MacroName,
		"run_id", e.run.ID,
		"status", status,
		"ticks", e.run.Ticks,
		"duration_ms", duration,
	)
	e.broadcastStatus(string(status))
}

// ─── Events ─────────────────────────────────────────────────────────────────

// onActivate is called from inside Execute, so mu is already held.
func (e *Engine) onActivate(a Activation) {
	name := a.Node.Name()
	if e.run != nil {
		e.run.LastNode = &name
	}

	payload := map[string]any{
		"vessel_id": e.cfg.VesselID,
		"macro":     e.macro.Name(),
		"title":     e.macro.Title(),
		"path":      a.Path,
		"node":      name,
		"kind":      a.Node.Kind(),
		"tick":      e.tick,
	}
	e.publish(mqtt.Topics{}.MacroActivated(e.cfg.VesselID), payload, false)
	if e.hub != nil {
		e.hub.Broadcast(ChannelActivated, payload)
	}
	e.logger.Debug("node activated", "vessel_id", e.cfg.VesselID, "path", a.Path, "kind", a.Node.Kind())
}

// broadcastStatus must be called with mu held.
func (e *Engine) broadcastStatus(status string) {
	payload := map[string]any{
		"vessel_id": e.cfg.VesselID,
		"status":    status,
		"tick":      e.tick,
	}
	if e.macro != nil {
		payload["macro"] = e.macro.Name()
	}
	if e.run != nil {
		payload["run_id"] = e.run.ID
	}
	e.publish(mqtt.Topics{}.MacroStatus(e.cfg.VesselID), payload, true)
	if e.hub != nil {
		e.hub.Broadcast(ChannelStatus, payload)
	}
}

func (e *Engine) publish(topic string, payload map[string]any, retained bool) {
	if e.mqtt == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("marshalling event", "topic", topic, "error", err)
		return
	}
	if err := e.mqtt.Publish(topic, data, 1, retained); err != nil {
		e.logger.Warn("publishing event", "topic", topic, "error", err)
	}
}

func (e *Engine) writeMetrics(c *Context, st Status) {
	if e.metrics == nil {
		return
	}
	tags := map[string]string{
		"vessel_id": e.cfg.VesselID,
		"macro":     e.macro.Name(),
	}
	if e.run != nil && e.run.LastNode != nil {
		tags["node"] = *e.run.LastNode
	}
	fields := map[string]interface{}{
		"tick":     e.tick,
		"status":   st.String(),
		"lat":      c.Telemetry.Position.Lat,
		"lon":      c.Telemetry.Position.Lon,
		"altitude": c.Telemetry.Altitude,
		"heading":  c.Telemetry.Attitude.Heading,
	}
	for k, v := range c.Metrics() {
		fields[k] = v
	}
	e.metrics.WritePoint(tickMeasurement, tags, fields)
}
