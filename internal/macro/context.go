package macro

import (
	"github.com/nerrad567/macro-autopilot/internal/control"
	"github.com/nerrad567/macro-autopilot/internal/geo"
	"github.com/nerrad567/macro-autopilot/internal/vessel"
)

// Status is the result of executing a node for one tick.
type Status int

const (
	// Continue means the node needs more ticks.
	Continue Status = iota
	// Complete means the node finished successfully.
	Complete
	// Failed means the node could not do its job.
	Failed
)

func (s Status) String() string {
	switch s {
	case Continue:
		return "continue"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// State is the lifecycle state of a node.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateDone    State = "done"
	StateAborted State = "aborted"
)

// Terminal reports whether the state only changes on Reset.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// Logger defines the logging interface used by the Library, Engine and nodes.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Env carries engine-wide settings into node execution.
type Env struct {
	// Gains are used by smoothing actions that do not set their own.
	Gains control.Gains
	// BodyRadius in metres is used when telemetry does not report one.
	BodyRadius float64
}

// DefaultEnv returns the default smoothing gains and body radius.
func DefaultEnv() Env {
	return Env{Gains: control.DefaultGains(), BodyRadius: vessel.DefaultBodyRadius}
}

// Context is passed to every node executed during a tick.
type Context struct {
	Vessel    vessel.Vessel
	Telemetry vessel.Telemetry // snapshot taken at the start of the tick
	Resolver  geo.EntityResolver
	DT        float64 // seconds since the previous tick
	Tick      int
	Env       Env
	Logger    Logger

	metrics map[string]float64
	sas     *sasGuard
}

// Metric records a named value for this tick's telemetry point.
func (c *Context) Metric(name string, v float64) {
	if c.metrics == nil {
		c.metrics = make(map[string]float64)
	}
	c.metrics[name] = v
}

// Metrics returns the values recorded with Metric.
func (c *Context) Metrics() map[string]float64 {
	return c.metrics
}

func (c *Context) log() Logger {
	if c.Logger == nil {
		return noopLogger{}
	}
	return c.Logger
}

func (c *Context) bodyRadius() float64 {
	if c.Telemetry.BodyRadius > 0 {
		return c.Telemetry.BodyRadius
	}
	if c.Env.BodyRadius > 0 {
		return c.Env.BodyRadius
	}
	return vessel.DefaultBodyRadius
}

func (c *Context) gains(override *control.Gains) control.Gains {
	if override != nil {
		return *override
	}
	if c.Env.Gains == (control.Gains{}) {
		return control.DefaultGains()
	}
	return c.Env.Gains
}

// apply sends controls to the vessel, logging any rejection.
func (c *Context) apply(n Node, ctrl vessel.Controls) bool {
	if c.Vessel == nil {
		c.log().Warn("no vessel to control", "node", n.Name())
		return false
	}
	if err := c.Vessel.Apply(ctrl); err != nil {
		c.log().Warn("controls rejected", "node", n.Name(), "kind", n.Kind(), "error", err)
		return false
	}
	return true
}

// blockSAS turns SAS off before an attitude node takes over. Contexts
// built outside an engine have no guard and leave SAS alone.
func (c *Context) blockSAS() {
	if c.sas != nil {
		c.sas.block(c)
	}
}

// requires reports whether the vessel has every capability, logging the
// first one missing.
func (c *Context) requires(n Node, caps ...vessel.Capability) bool {
	if c.Vessel == nil {
		return false
	}
	for _, cp := range caps {
		if !c.Vessel.Has(cp) {
			c.log().Warn("vessel lacks capability", "node", n.Name(), "kind", n.Kind(), "capability", cp)
			return false
		}
	}
	return true
}
