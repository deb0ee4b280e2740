package vessel

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/nerrad567/macro-autopilot/internal/control"
	"github.com/nerrad567/macro-autopilot/internal/geo"
)

// Capability names a control surface a vessel may or may not have.
type Capability string

const (
	CapAttitude     Capability = "attitude_control"
	CapThrottle     Capability = "throttle"
	CapActionGroups Capability = "action_groups"
)

// AllCapabilities returns every known capability.
func AllCapabilities() []Capability {
	return []Capability{CapAttitude, CapThrottle, CapActionGroups}
}

// GroupSAS is the action group of the vessel's own stability assist.
// Attitude-holding autopilots switch it off while they steer.
const GroupSAS = "SAS"

// InterventionTolerance is how far a pilot axis may sit from its trim
// before the pilot counts as flying the vessel.
const InterventionTolerance = 0.1

// PilotInput is the pilot's stick deflection and trim on each axis, in [-1, 1].
type PilotInput struct {
	Pitch     float64 `json:"pitch"`
	Roll      float64 `json:"roll"`
	Yaw       float64 `json:"yaw"`
	PitchTrim float64 `json:"pitch_trim"`
	RollTrim  float64 `json:"roll_trim"`
	YawTrim   float64 `json:"yaw_trim"`
}

// Intervening reports whether any axis departs from its trim by at least
// InterventionTolerance.
func (p PilotInput) Intervening() bool {
	return math.Abs(p.Pitch-p.PitchTrim) >= InterventionTolerance ||
		math.Abs(p.Roll-p.RollTrim) >= InterventionTolerance ||
		math.Abs(p.Yaw-p.YawTrim) >= InterventionTolerance
}

// Attitude is an orientation in degrees. Heading is a compass bearing in
// [-180, 180).
type Attitude struct {
	Heading float64 `json:"heading" yaml:"heading"`
	Pitch   float64 `json:"pitch" yaml:"pitch"`
	Roll    float64 `json:"roll" yaml:"roll"`
}

// ErrorTo returns the shortest attitude difference from a to target as a
// vector of (heading, pitch, roll) degrees.
func (a Attitude) ErrorTo(target Attitude) control.Vec3 {
	return control.Vec3{
		X: geo.NormalizeDeg(target.Heading - a.Heading),
		Y: target.Pitch - a.Pitch,
		Z: geo.NormalizeDeg(target.Roll - a.Roll),
	}
}

// Telemetry is a point-in-time snapshot of a vessel.
type Telemetry struct {
	VesselID string          `json:"vessel_id"`
	Name     string          `json:"name"`
	Position geo.Coordinates `json:"position"`
	Altitude float64         `json:"altitude"` // metres above the surface

	Attitude       Attitude  `json:"attitude"`
	AttitudeTarget *Attitude `json:"attitude_target,omitempty"`

	SurfaceSpeed  float64 `json:"surface_speed"`  // m/s
	VerticalSpeed float64 `json:"vertical_speed"` // m/s
	Throttle      float64 `json:"throttle"`       // 0..1

	Pilot PilotInput `json:"pilot"`

	Resources    map[string]float64 `json:"resources,omitempty"`
	ActionGroups map[string]bool    `json:"action_groups,omitempty"`
	Capabilities []Capability       `json:"capabilities"`

	// Parts maps part IDs to display names. Parts share the vessel position.
	Parts map[string]string `json:"parts,omitempty"`

	BodyRadius  float64 `json:"body_radius"`  // metres
	MissionTime float64 `json:"mission_time"` // seconds since start
}

// Has reports whether the telemetry lists capability c.
func (t Telemetry) Has(c Capability) bool {
	return slices.Contains(t.Capabilities, c)
}

// Clone returns a copy that shares no maps or slices with t.
func (t Telemetry) Clone() Telemetry {
	cpy := t
	if t.AttitudeTarget != nil {
		a := *t.AttitudeTarget
		cpy.AttitudeTarget = &a
	}
	cpy.Resources = maps.Clone(t.Resources)
	cpy.ActionGroups = maps.Clone(t.ActionGroups)
	cpy.Parts = maps.Clone(t.Parts)
	cpy.Capabilities = slices.Clone(t.Capabilities)
	return cpy
}

// Controls is a set of commands for one tick. Nil fields are left unchanged.
type Controls struct {
	Attitude     *Attitude       `json:"attitude,omitempty"`
	Correction   *control.Vec3   `json:"correction,omitempty"`
	Throttle     *float64        `json:"throttle,omitempty"`
	ActionGroups map[string]bool `json:"action_groups,omitempty"`
}

// Validate rejects values no vessel could accept.
func (c Controls) Validate() error {
	if c.Throttle != nil {
		v := *c.Throttle
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: throttle %v outside [0, 1]", ErrInvalidControls, v)
		}
	}
	if c.Attitude != nil {
		a := *c.Attitude
		if math.IsNaN(a.Heading) || math.IsNaN(a.Pitch) || math.IsNaN(a.Roll) {
			return fmt.Errorf("%w: attitude contains NaN", ErrInvalidControls)
		}
	}
	return nil
}

// Required returns the capabilities needed to apply c.
func (c Controls) Required() []Capability {
	var caps []Capability
	if c.Attitude != nil || c.Correction != nil {
		caps = append(caps, CapAttitude)
	}
	if c.Throttle != nil {
		caps = append(caps, CapThrottle)
	}
	if len(c.ActionGroups) > 0 {
		caps = append(caps, CapActionGroups)
	}
	return caps
}

// Vessel is the vehicle a macro drives.
type Vessel interface {
	// ID returns the stable vessel identifier.
	ID() string
	// Telemetry returns the current snapshot. Callers own the returned maps.
	Telemetry() Telemetry
	// Apply sends controls to the vessel.
	Apply(c Controls) error
	// Has reports whether the vessel supports a capability.
	Has(c Capability) bool
}

// checkControls validates c against a telemetry snapshot.
func checkControls(t Telemetry, c Controls) error {
	if err := c.Validate(); err != nil {
		return err
	}
	for _, cp := range c.Required() {
		if !t.Has(cp) {
			return fmt.Errorf("%w: %s", ErrUnsupported, cp)
		}
	}
	for g := range c.ActionGroups {
		if _, ok := t.ActionGroups[g]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownActionGroup, g)
		}
	}
	return nil
}
