package macro

import (
	"fmt"
	"math"

	"github.com/nerrad567/macro-autopilot/internal/geo"
)

// Condition is a predicate over the current tick's telemetry. Choice guards,
// conditionals and check actions use conditions.
type Condition interface {
	Kind() string
	Holds(ctx *Context) bool

	params() any
}

// compound is implemented by conditions built from other conditions.
type compound interface {
	operands() []Condition
	addOperand(c Condition)
}

// Condition kinds.
const (
	CondAltitudeAbove = "altitude_above"
	CondAltitudeBelow = "altitude_below"
	CondSpeedBelow    = "speed_below"
	CondResourceAbove = "resource_above"
	CondActionGroup   = "action_group"
	CondDistanceBelow = "distance_below"
	CondNot           = "not"
	CondAll           = "all"
	CondAny           = "any"
)

// ─── Telemetry thresholds ───────────────────────────────────────────────────

type altitudeParams struct {
	Meters float64 `yaml:"meters"`
}

type altitudeCond struct {
	kind string
	cfg  altitudeParams
}

// AltitudeAbove holds while altitude is strictly above meters.
func AltitudeAbove(meters float64) Condition {
	return &altitudeCond{kind: CondAltitudeAbove, cfg: altitudeParams{Meters: meters}}
}

// AltitudeBelow holds while altitude is strictly below meters.
func AltitudeBelow(meters float64) Condition {
	return &altitudeCond{kind: CondAltitudeBelow, cfg: altitudeParams{Meters: meters}}
}

func (c *altitudeCond) Kind() string { return c.kind }
func (c *altitudeCond) params() any  { return &c.cfg }

func (c *altitudeCond) Holds(ctx *Context) bool {
	if c.kind == CondAltitudeAbove {
		return ctx.Telemetry.Altitude > c.cfg.Meters
	}
	return ctx.Telemetry.Altitude < c.cfg.Meters
}

type speedParams struct {
	MetersPerSecond float64 `yaml:"mps"`
}

type speedBelow struct{ cfg speedParams }

// SpeedBelow holds while surface speed is strictly below mps.
func SpeedBelow(mps float64) Condition {
	return &speedBelow{cfg: speedParams{MetersPerSecond: mps}}
}

func (c *speedBelow) Kind() string { return CondSpeedBelow }
func (c *speedBelow) params() any  { return &c.cfg }

func (c *speedBelow) Holds(ctx *Context) bool {
	return ctx.Telemetry.SurfaceSpeed < c.cfg.MetersPerSecond
}

type resourceParams struct {
	Resource string  `yaml:"resource"`
	Amount   float64 `yaml:"amount"`
}

type resourceAbove struct{ cfg resourceParams }

// ResourceAbove holds while the named resource is strictly above amount.
// A resource the vessel does not report counts as zero.
func ResourceAbove(resource string, amount float64) Condition {
	return &resourceAbove{cfg: resourceParams{Resource: resource, Amount: amount}}
}

func (c *resourceAbove) Kind() string { return CondResourceAbove }
func (c *resourceAbove) params() any  { return &c.cfg }

func (c *resourceAbove) Holds(ctx *Context) bool {
	return ctx.Telemetry.Resources[c.cfg.Resource] > c.cfg.Amount
}

func (c *resourceAbove) validate() error {
	if c.cfg.Resource == "" {
		return fmt.Errorf("%w: resource name required", ErrInvalidParams)
	}
	return nil
}

type groupParams struct {
	Group string `yaml:"group"`
	On    bool   `yaml:"on"`
}

type actionGroupIs struct{ cfg groupParams }

// ActionGroupIs holds while the action group is in the given state.
// A group the vessel does not have never matches.
func ActionGroupIs(group string, on bool) Condition {
	return &actionGroupIs{cfg: groupParams{Group: group, On: on}}
}

func (c *actionGroupIs) Kind() string { return CondActionGroup }
func (c *actionGroupIs) params() any  { return &c.cfg }

func (c *actionGroupIs) Holds(ctx *Context) bool {
	v, ok := ctx.Telemetry.ActionGroups[c.cfg.Group]
	return ok && v == c.cfg.On
}

func (c *actionGroupIs) validate() error {
	if c.cfg.Group == "" {
		return fmt.Errorf("%w: group name required", ErrInvalidParams)
	}
	return nil
}

// ─── Navigation ─────────────────────────────────────────────────────────────

type distanceParams struct {
	Waypoint geo.Waypoint `yaml:"waypoint"`
	Meters   float64      `yaml:"meters"`
}

type distanceBelow struct{ cfg distanceParams }

// DistanceBelow holds while the vessel is within meters of the waypoint.
func DistanceBelow(wp geo.Waypoint, meters float64) Condition {
	return &distanceBelow{cfg: distanceParams{Waypoint: wp, Meters: meters}}
}

func (c *distanceBelow) Kind() string { return CondDistanceBelow }
func (c *distanceBelow) params() any  { return &c.cfg }

func (c *distanceBelow) Holds(ctx *Context) bool {
	c.cfg.Waypoint.Update(ctx.Resolver)
	d := c.cfg.Waypoint.DistanceTo(ctx.Telemetry.Position, ctx.bodyRadius())
	return d < c.cfg.Meters
}

func (c *distanceBelow) validate() error {
	if err := c.cfg.Waypoint.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if math.IsNaN(c.cfg.Meters) || c.cfg.Meters <= 0 {
		return fmt.Errorf("%w: meters must be positive", ErrInvalidParams)
	}
	return nil
}

// ─── Logic ──────────────────────────────────────────────────────────────────

type logicCond struct {
	kind string
	ops  []Condition
}

// Not negates c.
func Not(c Condition) Condition {
	return &logicCond{kind: CondNot, ops: []Condition{c}}
}

// All holds when every operand holds. All() with no operands holds.
func All(cs ...Condition) Condition {
	return &logicCond{kind: CondAll, ops: cs}
}

// Any holds when at least one operand holds. Any() with no operands does not.
func Any(cs ...Condition) Condition {
	return &logicCond{kind: CondAny, ops: cs}
}

func (c *logicCond) Kind() string            { return c.kind }
func (c *logicCond) params() any             { return nil }
func (c *logicCond) operands() []Condition   { return c.ops }
func (c *logicCond) addOperand(op Condition) { c.ops = append(c.ops, op) }

func (c *logicCond) Holds(ctx *Context) bool {
	for _, op := range c.ops {
		if op == nil {
			ctx.log().Warn("condition has a missing operand", "condition", c.kind)
			return false
		}
	}
	switch c.kind {
	case CondNot:
		return !c.ops[0].Holds(ctx)
	case CondAll:
		for _, op := range c.ops {
			if !op.Holds(ctx) {
				return false
			}
		}
		return true
	default:
		for _, op := range c.ops {
			if op.Holds(ctx) {
				return true
			}
		}
		return false
	}
}

func (c *logicCond) validate() error {
	if c.kind == CondNot && len(c.ops) != 1 {
		return fmt.Errorf("%w: not takes exactly one operand", ErrInvalidParams)
	}
	for _, op := range c.ops {
		if op == nil {
			return fmt.Errorf("%w: %s has a missing operand", ErrInvalidParams, c.kind)
		}
	}
	return nil
}
