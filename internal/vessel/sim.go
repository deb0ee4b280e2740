package vessel

import (
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/nerrad567/macro-autopilot/internal/geo"
)

// Sim defaults.
const (
	DefaultBodyRadius = 600000.0 // metres
	DefaultTurnRate   = 30.0     // degrees per second
	DefaultMaxSpeed   = 50.0     // m/s at full throttle

	resourceCharge = "ElectricCharge"
)

// SimConfig describes the initial state of a simulated vessel.
type SimConfig struct {
	ID       string
	Name     string
	Start    geo.Coordinates
	Altitude float64
	Heading  float64

	MaxSpeed   float64 // m/s at full throttle
	TurnRate   float64 // degrees per second on each axis
	BodyRadius float64

	// Charge is the initial ElectricCharge; ChargeDrain is consumed per
	// second while an attitude target is held. Attitude control stops when
	// charge runs out and ChargeDrain is non-zero.
	Charge      float64
	ChargeDrain float64

	ActionGroups []string
	Parts        map[string]string

	// Capabilities defaults to all capabilities when nil.
	Capabilities []Capability
}

// Sim is a kinematic vessel model. Attitude slews toward the commanded
// target at a bounded rate and the vessel moves along its heading at a
// speed proportional to throttle.
type Sim struct {
	mu    sync.Mutex
	cfg   SimConfig
	state Telemetry
}

// NewSim creates a simulated vessel, applying defaults for zero values.
func NewSim(cfg SimConfig) *Sim {
	if cfg.BodyRadius <= 0 {
		cfg.BodyRadius = DefaultBodyRadius
	}
	if cfg.TurnRate <= 0 {
		cfg.TurnRate = DefaultTurnRate
	}
	if cfg.MaxSpeed <= 0 {
		cfg.MaxSpeed = DefaultMaxSpeed
	}
	if cfg.Capabilities == nil {
		cfg.Capabilities = AllCapabilities()
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}

	groups := make(map[string]bool, len(cfg.ActionGroups))
	for _, g := range cfg.ActionGroups {
		groups[g] = false
	}

	return &Sim{
		cfg: cfg,
		state: Telemetry{
			VesselID:     cfg.ID,
			Name:         cfg.Name,
			Position:     cfg.Start,
			Altitude:     cfg.Altitude,
			Attitude:     Attitude{Heading: geo.NormalizeDeg(cfg.Heading)},
			Resources:    map[string]float64{resourceCharge: cfg.Charge},
			ActionGroups: groups,
			Capabilities: slices.Clone(cfg.Capabilities),
			Parts:        maps.Clone(cfg.Parts),
			BodyRadius:   cfg.BodyRadius,
		},
	}
}

// ID implements Vessel.
func (s *Sim) ID() string { return s.cfg.ID }

// Has implements Vessel.
func (s *Sim) Has(c Capability) bool {
	return slices.Contains(s.cfg.Capabilities, c)
}

// Telemetry implements Vessel.
func (s *Sim) Telemetry() Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Apply implements Vessel.
func (s *Sim) Apply(c Controls) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkControls(s.state, c); err != nil {
		return err
	}
	if c.Attitude != nil {
		a := *c.Attitude
		a.Heading = geo.NormalizeDeg(a.Heading)
		s.state.AttitudeTarget = &a
	}
	if c.Throttle != nil {
		s.state.Throttle = *c.Throttle
	}
	for g, on := range c.ActionGroups {
		s.state.ActionGroups[g] = on
	}
	return nil
}

// SetPilotInput records manual stick input, as a pilot at the controls
// would produce it.
func (s *Sim) SetPilotInput(p PilotInput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Pilot = p
}

// Step advances the model by dt seconds.
func (s *Sim) Step(dt float64) {
	if dt <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.state
	if st.AttitudeTarget != nil && s.powered() {
		maxStep := s.cfg.TurnRate * dt
		e := st.Attitude.ErrorTo(*st.AttitudeTarget)
		st.Attitude.Heading = geo.NormalizeDeg(st.Attitude.Heading + limit(e.X, maxStep))
		st.Attitude.Pitch += limit(e.Y, maxStep)
		st.Attitude.Roll = geo.NormalizeDeg(st.Attitude.Roll + limit(e.Z, maxStep))

		if s.cfg.ChargeDrain > 0 {
			st.Resources[resourceCharge] = math.Max(0, st.Resources[resourceCharge]-s.cfg.ChargeDrain*dt)
		}
	}

	speed := st.Throttle * s.cfg.MaxSpeed
	pitch := st.Attitude.Pitch * math.Pi / 180
	st.SurfaceSpeed = speed * math.Cos(pitch)
	st.VerticalSpeed = speed * math.Sin(pitch)

	if st.SurfaceSpeed > 0 {
		st.Position = geo.Destination(st.Position, st.Attitude.Heading, st.SurfaceSpeed*dt/s.cfg.BodyRadius).Normalized()
	}
	st.Altitude = math.Max(0, st.Altitude+st.VerticalSpeed*dt)
	st.MissionTime += dt
}

// powered reports whether attitude control has charge to run on.
func (s *Sim) powered() bool {
	return s.cfg.ChargeDrain == 0 || s.state.Resources[resourceCharge] > 0
}

func limit(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}
