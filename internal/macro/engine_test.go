package macro

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/macro-autopilot/internal/geo"
	"github.com/nerrad567/macro-autopilot/internal/vessel"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// mockMQTT captures all published messages.
type mockMQTT struct {
	messages []mqttMessage
	mu       sync.Mutex
	failOn   string // Topic to fail on (for error testing)
}

type mqttMessage struct {
	Topic    string
	Payload  map[string]any
	QoS      byte
	Retained bool
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failOn != "" && topic == m.failOn {
		return errors.New("MQTT publish failed")
	}

	var parsed map[string]any
	_ = json.Unmarshal(payload, &parsed)

	m.messages = append(m.messages, mqttMessage{Topic: topic, Payload: parsed, QoS: qos, Retained: retained})
	return nil
}

func (m *mockMQTT) onTopic(topic string) []mqttMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mqttMessage
	for _, msg := range m.messages {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// mockWSHub captures all broadcasts.
type mockWSHub struct {
	broadcasts []wsBroadcast
	mu         sync.Mutex
}

type wsBroadcast struct {
	Channel string
	Payload any
}

func (m *mockWSHub) Broadcast(channel string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, wsBroadcast{Channel: channel, Payload: payload})
}

func (m *mockWSHub) onChannel(channel string) []wsBroadcast {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []wsBroadcast
	for _, b := range m.broadcasts {
		if b.Channel == channel {
			out = append(out, b)
		}
	}
	return out
}

// mockMetrics records written points.
type mockMetrics struct {
	points []map[string]interface{}
	tags   []map[string]string
}

func (m *mockMetrics) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if measurement != tickMeasurement {
		return
	}
	m.points = append(m.points, fields)
	m.tags = append(m.tags, tags)
}

// ─── Helper ─────────────────────────────────────────────────────────────────

type engineFixture struct {
	engine  *Engine
	sim     *vessel.Sim
	lib     *Library
	repo    *mockRepository
	mqtt    *mockMQTT
	hub     *mockWSHub
	metrics *mockMetrics
}

func setupEngine(t *testing.T, simCfg vessel.SimConfig, cfg EngineConfig) *engineFixture {
	t.Helper()

	if simCfg.ID == "" {
		simCfg.ID = "lander-1"
	}
	f := &engineFixture{
		sim:     vessel.NewSim(simCfg),
		repo:    newMockRepository(),
		mqtt:    &mockMQTT{},
		hub:     &mockWSHub{},
		metrics: &mockMetrics{},
	}
	f.lib = NewLibrary(f.repo)
	reg := vessel.NewRegistry()
	reg.Add(f.sim)

	f.engine = NewEngine(cfg, Deps{
		Vessel:   f.sim,
		Resolver: reg,
		Library:  f.lib,
		Repo:     f.repo,
		MQTT:     f.mqtt,
		Hub:      f.hub,
		Metrics:  f.metrics,
	})
	return f
}

// runUntilDone ticks until the macro leaves Continue or limit is reached.
func runUntilDone(t *testing.T, e *Engine, limit int) (Status, int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= limit; i++ {
		st, err := e.Tick(ctx)
		if err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
		if st != Continue {
			return st, i
		}
	}
	return Continue, limit
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestEngine_RotateThenHold(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{Start: geo.Coordinates{Lat: 0, Lon: 90}}, EngineConfig{})
	ctx := context.Background()

	target := *geo.NewWaypoint(geo.Coordinates{Lat: 0, Lon: 0})
	mustSave(t, f.lib, New("Face west", NewRotateToBearing(target), NewHoldAttitude(1)))
	if err := f.engine.Load(ctx, "Face west"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	st, ticks := runUntilDone(t, f.engine, 500)
	if st != Complete {
		t.Fatalf("macro did not complete within 500 ticks (status %v)", st)
	}
	if heading := f.sim.Telemetry().Attitude.Heading; math.Abs(heading+90) > 1 {
		t.Errorf("final heading = %v, want within 1 of -90", heading)
	}
	// 90 degrees at 30 deg/s with 0.1 s ticks is 30 ticks of turning.
	if ticks < 30 || ticks > 60 {
		t.Errorf("completed after %d ticks, want between 30 and 60", ticks)
	}

	snap := f.engine.Snapshot()
	if snap.State != StateDone || snap.Status != "complete" {
		t.Errorf("snapshot state=%v status=%s", snap.State, snap.Status)
	}

	runs := f.repo.allRuns()
	if len(runs) != 1 {
		t.Fatalf("run records = %d, want 1", len(runs))
	}
	run := runs[0]
	if run.Status != RunCompleted || run.Ticks != ticks || run.VesselID != "lander-1" {
		t.Errorf("run = %+v", run)
	}
	if run.LastNode == nil || *run.LastNode != "Hold attitude" {
		t.Errorf("LastNode = %v, want Hold attitude", run.LastNode)
	}
	if run.EntryID == nil || run.DurationMS == nil || run.CompletedAt == nil {
		t.Error("run record incomplete")
	}
}

func TestEngine_PublishesActivations(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{}, EngineConfig{})
	ctx := context.Background()

	m := New("Hop", NewSetThrottle(1), NewWait(0.2))
	if err := f.engine.LoadMacro(ctx, m); err != nil {
		t.Fatalf("LoadMacro: %v", err)
	}
	runUntilDone(t, f.engine, 10)

	activated := f.mqtt.onTopic("macropilot/macro/lander-1/activated")
	if len(activated) != 2 {
		t.Fatalf("activation messages = %d, want 2", len(activated))
	}
	if activated[0].Payload["node"] != "Set throttle" || activated[1].Payload["node"] != "Wait" {
		t.Errorf("activated nodes = %v, %v", activated[0].Payload["node"], activated[1].Payload["node"])
	}
	if activated[1].Payload["title"] != "Hop [Wait]" {
		t.Errorf("title = %v", activated[1].Payload["title"])
	}
	if activated[0].Retained {
		t.Error("activation messages should not be retained")
	}

	if n := len(f.hub.onChannel(ChannelActivated)); n != 2 {
		t.Errorf("activation broadcasts = %d, want 2", n)
	}

	status := f.mqtt.onTopic("macropilot/macro/lander-1/status")
	if len(status) == 0 {
		t.Fatal("no status messages")
	}
	last := status[len(status)-1]
	if last.Payload["status"] != string(RunCompleted) || !last.Retained {
		t.Errorf("final status message = %+v", last)
	}
}

func TestEngine_WritesTickMetrics(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{Start: geo.Coordinates{Lat: 0, Lon: 90}}, EngineConfig{})
	ctx := context.Background()

	m := New("Turn", NewRotateToBearing(*geo.NewWaypoint(geo.Coordinates{})))
	if err := f.engine.LoadMacro(ctx, m); err != nil {
		t.Fatalf("LoadMacro: %v", err)
	}
	f.engine.Tick(ctx)

	if len(f.metrics.points) != 1 {
		t.Fatalf("points = %d, want 1", len(f.metrics.points))
	}
	p := f.metrics.points[0]
	if he, ok := p["heading_error"].(float64); !ok || math.Abs(he+90) > 1e-9 {
		t.Errorf("heading_error = %v, want -90", p["heading_error"])
	}
	if p["status"] != "continue" {
		t.Errorf("status = %v", p["status"])
	}
	if f.metrics.tags[0]["macro"] != "Turn" || f.metrics.tags[0]["vessel_id"] != "lander-1" {
		t.Errorf("tags = %v", f.metrics.tags[0])
	}
}

func TestEngine_LoadCopiesMacro(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{}, EngineConfig{})
	ctx := context.Background()

	m := New("Hop", NewWait(1))
	if err := f.engine.LoadMacro(ctx, m); err != nil {
		t.Fatalf("LoadMacro: %v", err)
	}
	f.engine.Tick(ctx)
	if m.State() != StateIdle {
		t.Error("engine ran the caller's macro instead of a copy")
	}
}

func TestEngine_ReloadAbortsRunAndRestarts(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{}, EngineConfig{})
	ctx := context.Background()
	mustSave(t, f.lib, New("Long", NewWait(100)))

	if err := f.engine.Load(ctx, "Long"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	f.engine.Tick(ctx)
	f.engine.Tick(ctx)

	e, _ := f.lib.Lookup("Long")
	if err := f.engine.LoadByID(ctx, e.ID); err != nil {
		t.Fatalf("LoadByID: %v", err)
	}
	snap := f.engine.Snapshot()
	if snap.State != StateIdle || snap.Tick != 0 || snap.RunID != "" {
		t.Errorf("reloaded snapshot = %+v", snap)
	}

	runs := f.repo.allRuns()
	if len(runs) != 1 || runs[0].Status != RunAborted || runs[0].Ticks != 2 {
		t.Errorf("runs after reload = %+v", runs)
	}

	f.engine.Tick(ctx)
	if len(f.repo.allRuns()) != 2 {
		t.Error("reloaded macro did not start a new run")
	}
}

func TestEngine_AbortAndReset(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{}, EngineConfig{})
	ctx := context.Background()

	if err := f.engine.Abort(ctx); !errors.Is(err, ErrNoMacro) {
		t.Errorf("Abort without macro: err = %v, want ErrNoMacro", err)
	}

	if err := f.engine.LoadMacro(ctx, New("Long", NewWait(100))); err != nil {
		t.Fatalf("LoadMacro: %v", err)
	}
	f.engine.Tick(ctx)
	if err := f.engine.Abort(ctx); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if snap := f.engine.Snapshot(); snap.State != StateAborted {
		t.Errorf("State = %v, want aborted", snap.State)
	}
	st, err := f.engine.Tick(ctx)
	if err != nil || st != Failed {
		t.Errorf("Tick after abort = %v, %v; want failed", st, err)
	}
	if runs := f.repo.allRuns(); len(runs) != 1 || runs[0].Status != RunAborted {
		t.Errorf("runs = %+v", runs)
	}

	if err := f.engine.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if st, _ := f.engine.Tick(ctx); st != Continue {
		t.Errorf("Tick after reset = %v, want continue", st)
	}
	if len(f.repo.allRuns()) != 2 {
		t.Error("reset macro did not start a new run")
	}
}

func TestEngine_MaxTicks(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{}, EngineConfig{MaxTicks: 5})
	ctx := context.Background()

	if err := f.engine.LoadMacro(ctx, New("Long", NewWait(100))); err != nil {
		t.Fatalf("LoadMacro: %v", err)
	}
	st, ticks := runUntilDone(t, f.engine, 20)
	if st != Failed || ticks != 5 {
		t.Errorf("status %v after %d ticks, want failed after 5", st, ticks)
	}
	if runs := f.repo.allRuns(); len(runs) != 1 || runs[0].Status != RunTimedOut {
		t.Errorf("runs = %+v", runs)
	}
}

func TestEngine_FailedMacro(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{}, EngineConfig{})
	ctx := context.Background()

	if err := f.engine.LoadMacro(ctx, New("Bad", NewToggleActionGroup("chutes"))); err != nil {
		t.Fatalf("LoadMacro: %v", err)
	}
	if st, _ := f.engine.Tick(ctx); st != Failed {
		t.Errorf("Tick = %v, want failed", st)
	}
	if runs := f.repo.allRuns(); len(runs) != 1 || runs[0].Status != RunFailed {
		t.Errorf("runs = %+v", runs)
	}
}

func TestEngine_LoadRecordKeepsWarnings(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{}, EngineConfig{})
	ctx := context.Background()

	rec := Record{
		Type: KindMacro,
		Name: "Adhoc",
		Children: []Record{
			{Type: KindWait, Params: map[string]any{"seconds": 0}},
			{Type: "hyperjump"},
		},
	}
	if err := f.engine.LoadRecord(ctx, rec); err != nil {
		t.Fatalf("LoadRecord: %v", err)
	}
	f.engine.Tick(ctx)

	runs := f.repo.allRuns()
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if len(runs[0].Warnings) != 1 || runs[0].EntryID != nil {
		t.Errorf("run = %+v", runs[0])
	}

	if err := f.engine.LoadRecord(ctx, Record{Type: KindWait}); !errors.Is(err, ErrNotMacro) {
		t.Errorf("LoadRecord(wait) err = %v, want ErrNotMacro", err)
	}
}

func TestEngine_NoMacroStillStepsVessel(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{}, EngineConfig{})
	if _, err := f.engine.Tick(context.Background()); !errors.Is(err, ErrNoMacro) {
		t.Errorf("Tick err = %v, want ErrNoMacro", err)
	}
	if mt := f.sim.Telemetry().MissionTime; mt <= 0 {
		t.Errorf("MissionTime = %v, want the sim to advance", mt)
	}
}

func TestEngine_LoadUnknown(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{}, EngineConfig{})
	if err := f.engine.Load(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load err = %v, want ErrNotFound", err)
	}
}

func TestEngine_Runs(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{}, EngineConfig{})
	ctx := context.Background()
	for iter := 0; iter < 3; iter++ {
		if err := f.engine.LoadMacro(ctx, New("Quick", NewSetThrottle(0))); err != nil {
			t.Fatalf("LoadMacro: %v", err)
		}
		runUntilDone(t, f.engine, 5)
	}
	runs, err := f.engine.Runs(ctx, 2)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("Runs returned %d, want 2", len(runs))
	}
}

func TestEngine_RunLoop(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{}, EngineConfig{TickInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	if err := f.engine.LoadMacro(ctx, New("Quick", NewSetThrottle(0.3), NewWait(0.002))); err != nil {
		t.Fatalf("LoadMacro: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for f.engine.Snapshot().State != StateDone {
		select {
		case <-deadline:
			cancel()
			t.Fatal("macro did not finish under Run")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
	if got := f.sim.Telemetry().Throttle; got != 0.3 {
		t.Errorf("throttle = %v, want 0.3", got)
	}
}

// statuses returns the status values broadcast on the WebSocket hub.
func statuses(h *mockWSHub) []string {
	var out []string
	for _, b := range h.onChannel(ChannelStatus) {
		if p, ok := b.Payload.(map[string]any); ok {
			out = append(out, p["status"].(string))
		}
	}
	return out
}

func sasOn(t *testing.T, s *vessel.Sim) bool {
	t.Helper()
	on, ok := s.Telemetry().ActionGroups[vessel.GroupSAS]
	if !ok {
		t.Fatal("sim has no SAS group")
	}
	return on
}

func TestEngine_PilotInterventionPauses(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{}, EngineConfig{})
	ctx := context.Background()

	if err := f.engine.LoadMacro(ctx, New("Long", NewWait(100))); err != nil {
		t.Fatalf("LoadMacro: %v", err)
	}
	for iter := 0; iter < 3; iter++ {
		f.engine.Tick(ctx)
	}

	// Input held at its trim is not an intervention.
	f.sim.SetPilotInput(vessel.PilotInput{Pitch: 0.3, PitchTrim: 0.3})
	f.engine.Tick(ctx)
	if got := f.engine.Snapshot().Tick; got != 4 {
		t.Fatalf("Tick = %d after trimmed input, want 4", got)
	}

	f.sim.SetPilotInput(vessel.PilotInput{Roll: 0.5})
	for i := 0; i < 5; i++ {
		st, err := f.engine.Tick(ctx)
		if err != nil || st != Continue {
			t.Fatalf("paused tick %d = %v, %v; want continue", i, st, err)
		}
	}
	if got := f.engine.Snapshot().Tick; got != 4 {
		t.Errorf("Tick = %d while pilot intervenes, want 4", got)
	}

	f.sim.SetPilotInput(vessel.PilotInput{})
	f.engine.Tick(ctx)
	if got := f.engine.Snapshot().Tick; got != 5 {
		t.Errorf("Tick = %d after pilot let go, want 5", got)
	}

	got := statuses(f.hub)
	want := []string{"loaded", string(RunRunning), "paused", string(RunRunning)}
	if !slices.Equal(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if runs := f.repo.allRuns(); len(runs) != 1 || runs[0].Status != RunRunning {
		t.Errorf("runs = %+v", runs)
	}
}

func TestEngine_PilotInterventionAborts(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{}, EngineConfig{Intervention: InterventionAbort})
	ctx := context.Background()

	if err := f.engine.LoadMacro(ctx, New("Long", NewWait(100))); err != nil {
		t.Fatalf("LoadMacro: %v", err)
	}
	f.engine.Tick(ctx)

	f.sim.SetPilotInput(vessel.PilotInput{Yaw: -0.3})
	if st, err := f.engine.Tick(ctx); err != nil || st != Failed {
		t.Fatalf("Tick = %v, %v; want failed", st, err)
	}
	if snap := f.engine.Snapshot(); snap.State != StateAborted {
		t.Errorf("State = %v, want aborted", snap.State)
	}
	if runs := f.repo.allRuns(); len(runs) != 1 || runs[0].Status != RunInterrupted {
		t.Errorf("runs = %+v", runs)
	}

	// The macro stays finished after the pilot lets go.
	f.sim.SetPilotInput(vessel.PilotInput{})
	if st, _ := f.engine.Tick(ctx); st != Failed {
		t.Errorf("Tick after release = %v, want failed", st)
	}
}

func TestEngine_SASBlockedWhileSteering(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{
		Start:        geo.Coordinates{Lat: 0, Lon: 90},
		ActionGroups: []string{vessel.GroupSAS},
	}, EngineConfig{})
	ctx := context.Background()

	if err := f.sim.Apply(vessel.Controls{ActionGroups: map[string]bool{vessel.GroupSAS: true}}); err != nil {
		t.Fatalf("enabling SAS: %v", err)
	}
	target := *geo.NewWaypoint(geo.Coordinates{Lat: 0, Lon: 0})
	if err := f.engine.LoadMacro(ctx, New("Face west", NewRotateToBearing(target), NewHoldAttitude(1))); err != nil {
		t.Fatalf("LoadMacro: %v", err)
	}

	f.engine.Tick(ctx)
	if sasOn(t, f.sim) {
		t.Fatal("SAS still on while rotating")
	}

	// Pausing for the pilot hands SAS back until the macro steers again.
	f.sim.SetPilotInput(vessel.PilotInput{Pitch: 1})
	f.engine.Tick(ctx)
	if !sasOn(t, f.sim) {
		t.Error("SAS not restored while the pilot flies")
	}
	f.sim.SetPilotInput(vessel.PilotInput{})
	f.engine.Tick(ctx)
	if sasOn(t, f.sim) {
		t.Error("SAS not blocked again after resuming")
	}

	if st, _ := runUntilDone(t, f.engine, 500); st != Complete {
		t.Fatalf("macro did not complete (status %v)", st)
	}
	if !sasOn(t, f.sim) {
		t.Error("SAS not restored after the run")
	}
}

func TestEngine_SASRestoredOnAbort(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{
		Start:        geo.Coordinates{Lat: 0, Lon: 90},
		ActionGroups: []string{vessel.GroupSAS},
	}, EngineConfig{})
	ctx := context.Background()

	if err := f.sim.Apply(vessel.Controls{ActionGroups: map[string]bool{vessel.GroupSAS: true}}); err != nil {
		t.Fatalf("enabling SAS: %v", err)
	}
	if err := f.engine.LoadMacro(ctx, New("Hold", NewHoldAttitudeAt(vessel.Attitude{Heading: 180}, 0.001))); err != nil {
		t.Fatalf("LoadMacro: %v", err)
	}
	f.engine.Tick(ctx)
	if sasOn(t, f.sim) {
		t.Fatal("SAS still on while holding attitude")
	}
	if err := f.engine.Abort(ctx); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if !sasOn(t, f.sim) {
		t.Error("SAS not restored after abort")
	}
}

func TestEngine_SASLeftOffWhenFoundOff(t *testing.T) {
	f := setupEngine(t, vessel.SimConfig{
		Start:        geo.Coordinates{Lat: 0, Lon: 90},
		ActionGroups: []string{vessel.GroupSAS},
	}, EngineConfig{})
	ctx := context.Background()

	target := *geo.NewWaypoint(geo.Coordinates{Lat: 0, Lon: 0})
	if err := f.engine.LoadMacro(ctx, New("Face west", NewRotateToBearing(target))); err != nil {
		t.Fatalf("LoadMacro: %v", err)
	}
	if st, _ := runUntilDone(t, f.engine, 500); st != Complete {
		t.Fatalf("macro did not complete (status %v)", st)
	}
	if sasOn(t, f.sim) {
		t.Error("SAS switched on by the run")
	}
}
