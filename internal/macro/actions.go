package macro

import (
	"fmt"
	"math"

	"github.com/nerrad567/macro-autopilot/internal/control"
	"github.com/nerrad567/macro-autopilot/internal/geo"
	"github.com/nerrad567/macro-autopilot/internal/vessel"
)

// Action kinds.
const (
	KindSetThrottle     = "set_throttle"
	KindToggleGroup     = "toggle_action_group"
	KindWait            = "wait"
	KindWaitUntil       = "wait_until"
	KindRotateToBearing = "rotate_to_bearing"
	KindHoldAttitude    = "hold_attitude"
	KindFlyToWaypoint   = "fly_to_waypoint"
	KindCheck           = "check"
)

// Action defaults.
const (
	defaultToleranceDeg    = 1.0
	defaultEpsilonDeg      = 1.0
	defaultArrivalDistance = 100.0 // metres
	defaultCruiseThrottle  = 1.0
)

// ─── SetThrottle ────────────────────────────────────────────────────────────

type throttleParams struct {
	Throttle float64 `yaml:"throttle"`
}

// SetThrottle sets the main throttle and completes in one tick.
type SetThrottle struct {
	nodeBase
	cfg throttleParams
}

// NewSetThrottle creates a throttle action; v is in [0, 1].
func NewSetThrottle(v float64) *SetThrottle {
	return &SetThrottle{nodeBase: newBase("Set throttle"), cfg: throttleParams{Throttle: v}}
}

func (n *SetThrottle) Kind() string { return KindSetThrottle }
func (n *SetThrottle) params() any  { return &n.cfg }
func (n *SetThrottle) Reset()       { n.state = StateIdle }

func (n *SetThrottle) Execute(ctx *Context) Status {
	if !ctx.requires(n, vessel.CapThrottle) {
		return Failed
	}
	v := n.cfg.Throttle
	if !ctx.apply(n, vessel.Controls{Throttle: &v}) {
		return Failed
	}
	return Complete
}

func (n *SetThrottle) validate() error {
	if math.IsNaN(n.cfg.Throttle) || n.cfg.Throttle < 0 || n.cfg.Throttle > 1 {
		return fmt.Errorf("%w: throttle must be within [0, 1]", ErrInvalidParams)
	}
	return nil
}

// ─── ToggleActionGroup ──────────────────────────────────────────────────────

type toggleParams struct {
	Group string `yaml:"group"`
	// On sets the group explicitly; nil flips its current state.
	On *bool `yaml:"on,omitempty"`
}

// ToggleActionGroup switches a vessel action group. It fails if the vessel
// does not have the group.
type ToggleActionGroup struct {
	nodeBase
	cfg toggleParams
}

// NewToggleActionGroup creates an action that flips group.
func NewToggleActionGroup(group string) *ToggleActionGroup {
	return &ToggleActionGroup{nodeBase: newBase("Toggle " + group), cfg: toggleParams{Group: group}}
}

// NewSetActionGroup creates an action that sets group to on.
func NewSetActionGroup(group string, on bool) *ToggleActionGroup {
	n := NewToggleActionGroup(group)
	n.cfg.On = &on
	return n
}

func (n *ToggleActionGroup) Kind() string { return KindToggleGroup }
func (n *ToggleActionGroup) params() any  { return &n.cfg }
func (n *ToggleActionGroup) Reset()       { n.state = StateIdle }

func (n *ToggleActionGroup) Execute(ctx *Context) Status {
	if !ctx.requires(n, vessel.CapActionGroups) {
		return Failed
	}
	current, ok := ctx.Telemetry.ActionGroups[n.cfg.Group]
	if !ok {
		ctx.log().Warn("unknown action group", "node", n.name, "group", n.cfg.Group)
		return Failed
	}
	want := !current
	if n.cfg.On != nil {
		want = *n.cfg.On
	}
	if !ctx.apply(n, vessel.Controls{ActionGroups: map[string]bool{n.cfg.Group: want}}) {
		return Failed
	}
	return Complete
}

func (n *ToggleActionGroup) validate() error {
	if n.cfg.Group == "" {
		return fmt.Errorf("%w: group name required", ErrInvalidParams)
	}
	return nil
}

// ─── Wait ───────────────────────────────────────────────────────────────────

type waitParams struct {
	Seconds float64 `yaml:"seconds"`
}

// Wait completes once the given number of seconds of tick time has passed.
type Wait struct {
	nodeBase
	cfg     waitParams
	elapsed float64
}

// NewWait creates a wait action.
func NewWait(seconds float64) *Wait {
	return &Wait{nodeBase: newBase("Wait"), cfg: waitParams{Seconds: seconds}}
}

func (n *Wait) Kind() string { return KindWait }
func (n *Wait) params() any  { return &n.cfg }

func (n *Wait) Reset() {
	n.state = StateIdle
	n.elapsed = 0
}

func (n *Wait) Execute(ctx *Context) Status {
	n.elapsed += ctx.DT
	ctx.Metric("wait_remaining", math.Max(0, n.cfg.Seconds-n.elapsed))
	if n.elapsed >= n.cfg.Seconds {
		return Complete
	}
	return Continue
}

func (n *Wait) validate() error {
	if math.IsNaN(n.cfg.Seconds) || n.cfg.Seconds < 0 {
		return fmt.Errorf("%w: seconds must not be negative", ErrInvalidParams)
	}
	return nil
}

// ─── WaitUntil ──────────────────────────────────────────────────────────────

type waitUntilParams struct {
	// Timeout in seconds; 0 waits forever.
	Timeout float64 `yaml:"timeout,omitempty"`
}

// WaitUntil continues until its condition holds. It fails if a timeout is
// set and expires first.
type WaitUntil struct {
	nodeBase
	cfg     waitUntilParams
	cond    Condition
	elapsed float64
}

// NewWaitUntil creates a wait-until action.
func NewWaitUntil(cond Condition, timeout float64) *WaitUntil {
	return &WaitUntil{nodeBase: newBase("Wait until"), cfg: waitUntilParams{Timeout: timeout}, cond: cond}
}

func (n *WaitUntil) Kind() string                { return KindWaitUntil }
func (n *WaitUntil) params() any                 { return &n.cfg }
func (n *WaitUntil) condition() Condition        { return n.cond }
func (n *WaitUntil) setCondition(cond Condition) { n.cond = cond }

func (n *WaitUntil) Reset() {
	n.state = StateIdle
	n.elapsed = 0
}

func (n *WaitUntil) Execute(ctx *Context) Status {
	if n.cond == nil {
		ctx.log().Warn("wait_until has no condition", "node", n.name)
		return Failed
	}
	if n.cond.Holds(ctx) {
		return Complete
	}
	n.elapsed += ctx.DT
	if n.cfg.Timeout > 0 && n.elapsed >= n.cfg.Timeout {
		ctx.log().Warn("wait timed out", "node", n.name, "timeout", n.cfg.Timeout)
		return Failed
	}
	return Continue
}

func (n *WaitUntil) validate() error {
	if n.cond == nil {
		return fmt.Errorf("%w: wait_until needs a condition", ErrInvalidParams)
	}
	if math.IsNaN(n.cfg.Timeout) || n.cfg.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidParams)
	}
	return nil
}

// ─── Check ──────────────────────────────────────────────────────────────────

// Check completes if its condition holds and fails otherwise.
type Check struct {
	nodeBase
	cond Condition
}

// NewCheck creates a check action.
func NewCheck(cond Condition) *Check {
	return &Check{nodeBase: newBase("Check"), cond: cond}
}

func (n *Check) Kind() string                { return KindCheck }
func (n *Check) params() any                 { return nil }
func (n *Check) condition() Condition        { return n.cond }
func (n *Check) setCondition(cond Condition) { n.cond = cond }
func (n *Check) Reset()                      { n.state = StateIdle }

func (n *Check) Execute(ctx *Context) Status {
	if n.cond == nil {
		ctx.log().Warn("check has no condition", "node", n.name)
		return Failed
	}
	if n.cond.Holds(ctx) {
		return Complete
	}
	return Failed
}

func (n *Check) validate() error {
	if n.cond == nil {
		return fmt.Errorf("%w: check needs a condition", ErrInvalidParams)
	}
	return nil
}

// ─── RotateToBearing ────────────────────────────────────────────────────────

type rotateParams struct {
	Waypoint  geo.Waypoint   `yaml:"waypoint"`
	Tolerance float64        `yaml:"tolerance_deg,omitempty"`
	Gains     *control.Gains `yaml:"gains,omitempty"`
}

// RotateToBearing turns the vessel to face a waypoint. It completes once
// the heading error is within tolerance.
type RotateToBearing struct {
	nodeBase
	cfg rotateParams
	pi  *control.PI[control.Scalar]
}

// NewRotateToBearing creates a rotate action toward wp.
func NewRotateToBearing(wp geo.Waypoint) *RotateToBearing {
	return &RotateToBearing{
		nodeBase: newBase("Rotate to " + wp.Name),
		cfg:      rotateParams{Waypoint: wp, Tolerance: defaultToleranceDeg},
	}
}

func (n *RotateToBearing) Kind() string { return KindRotateToBearing }
func (n *RotateToBearing) params() any  { return &n.cfg }

func (n *RotateToBearing) Reset() {
	n.state = StateIdle
	n.pi = nil
}

// Waypoint returns the target waypoint.
func (n *RotateToBearing) Waypoint() geo.Waypoint { return n.cfg.Waypoint }

func (n *RotateToBearing) Execute(ctx *Context) Status {
	if !ctx.requires(n, vessel.CapAttitude) {
		return Failed
	}
	if n.pi == nil {
		n.pi = control.NewPIWithGains[control.Scalar](ctx.gains(n.cfg.Gains))
	}
	n.cfg.Waypoint.Update(ctx.Resolver)

	tel := ctx.Telemetry
	bearing := n.cfg.Waypoint.BearingFrom(tel.Position)
	headingErr := geo.NormalizeDeg(bearing - tel.Attitude.Heading)
	smoothed := n.pi.Update(control.Scalar(headingErr), ctx.DT)

	target := tel.Attitude
	target.Heading = bearing
	correction := control.Vec3{X: float64(smoothed)}
	ctx.blockSAS()
	if !ctx.apply(n, vessel.Controls{Attitude: &target, Correction: &correction}) {
		return Failed
	}

	ctx.Metric("bearing", bearing)
	ctx.Metric("heading_error", headingErr)
	ctx.Metric("smoothed_error", float64(smoothed))

	if math.Abs(headingErr) <= n.cfg.Tolerance {
		return Complete
	}
	return Continue
}

func (n *RotateToBearing) validate() error {
	if err := n.cfg.Waypoint.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if n.cfg.Tolerance == 0 {
		n.cfg.Tolerance = defaultToleranceDeg
	}
	if math.IsNaN(n.cfg.Tolerance) || n.cfg.Tolerance < 0 {
		return fmt.Errorf("%w: tolerance must be positive", ErrInvalidParams)
	}
	return validateGains(n.cfg.Gains)
}

// ─── HoldAttitude ───────────────────────────────────────────────────────────

type holdParams struct {
	Epsilon float64 `yaml:"epsilon_deg,omitempty"`
	// Attitude to hold. When nil the vessel's current attitude target is
	// held, or failing that the attitude at activation.
	Attitude *vessel.Attitude `yaml:"attitude,omitempty"`
	Gains    *control.Gains   `yaml:"gains,omitempty"`
}

// HoldAttitude holds an attitude until the smoothed attitude error falls
// below epsilon degrees.
type HoldAttitude struct {
	nodeBase
	cfg    holdParams
	pi     *control.PI[control.Vec3]
	locked *vessel.Attitude
}

// NewHoldAttitude creates a hold action with the given settle threshold.
func NewHoldAttitude(epsilonDeg float64) *HoldAttitude {
	return &HoldAttitude{nodeBase: newBase("Hold attitude"), cfg: holdParams{Epsilon: epsilonDeg}}
}

// NewHoldAttitudeAt creates a hold action for a fixed attitude.
func NewHoldAttitudeAt(a vessel.Attitude, epsilonDeg float64) *HoldAttitude {
	n := NewHoldAttitude(epsilonDeg)
	n.cfg.Attitude = &a
	return n
}

func (n *HoldAttitude) Kind() string { return KindHoldAttitude }
func (n *HoldAttitude) params() any  { return &n.cfg }

func (n *HoldAttitude) Reset() {
	n.state = StateIdle
	n.pi = nil
	n.locked = nil
}

func (n *HoldAttitude) Execute(ctx *Context) Status {
	if !ctx.requires(n, vessel.CapAttitude) {
		return Failed
	}
	if n.pi == nil {
		n.pi = control.NewPIWithGains[control.Vec3](ctx.gains(n.cfg.Gains))
	}

	tel := ctx.Telemetry
	target := n.target(tel)
	errVec := tel.Attitude.ErrorTo(target)
	smoothed := n.pi.Update(errVec, ctx.DT)

	ctx.blockSAS()
	if !ctx.apply(n, vessel.Controls{Attitude: &target, Correction: &smoothed}) {
		return Failed
	}

	ctx.Metric("attitude_error", errVec.Len())
	ctx.Metric("smoothed_error", smoothed.Len())

	if smoothed.Len() < n.cfg.Epsilon {
		return Complete
	}
	return Continue
}

func (n *HoldAttitude) target(tel vessel.Telemetry) vessel.Attitude {
	switch {
	case n.cfg.Attitude != nil:
		return *n.cfg.Attitude
	case n.locked != nil:
		return *n.locked
	case tel.AttitudeTarget != nil:
		a := *tel.AttitudeTarget
		n.locked = &a
	default:
		a := tel.Attitude
		n.locked = &a
	}
	return *n.locked
}

func (n *HoldAttitude) validate() error {
	if n.cfg.Epsilon == 0 {
		n.cfg.Epsilon = defaultEpsilonDeg
	}
	if math.IsNaN(n.cfg.Epsilon) || n.cfg.Epsilon < 0 {
		return fmt.Errorf("%w: epsilon must be positive", ErrInvalidParams)
	}
	return validateGains(n.cfg.Gains)
}

// ─── FlyToWaypoint ──────────────────────────────────────────────────────────

type flyParams struct {
	Waypoint geo.Waypoint `yaml:"waypoint"`
	// ArrivalDistance in metres from the aim point counts as arrived.
	ArrivalDistance float64 `yaml:"arrival_distance,omitempty"`
	// ApproachAngle in radians stops short of the waypoint along the great
	// circle, e.g. to line up for a landing.
	ApproachAngle float64 `yaml:"approach_angle,omitempty"`
	Throttle      float64 `yaml:"throttle,omitempty"`
}

// FlyToWaypoint steers along the great circle toward a waypoint and cuts
// the throttle on arrival.
type FlyToWaypoint struct {
	nodeBase
	cfg flyParams
}

// NewFlyToWaypoint creates a fly-to action with default arrival distance
// and full throttle.
func NewFlyToWaypoint(wp geo.Waypoint) *FlyToWaypoint {
	return &FlyToWaypoint{
		nodeBase: newBase("Fly to " + wp.Name),
		cfg: flyParams{
			Waypoint:        wp,
			ArrivalDistance: defaultArrivalDistance,
			Throttle:        defaultCruiseThrottle,
		},
	}
}

// WithApproach sets the approach angle in radians and returns n.
func (n *FlyToWaypoint) WithApproach(angle float64) *FlyToWaypoint {
	n.cfg.ApproachAngle = angle
	return n
}

func (n *FlyToWaypoint) Kind() string { return KindFlyToWaypoint }
func (n *FlyToWaypoint) params() any  { return &n.cfg }
func (n *FlyToWaypoint) Reset()       { n.state = StateIdle }

func (n *FlyToWaypoint) Execute(ctx *Context) Status {
	if !ctx.requires(n, vessel.CapAttitude, vessel.CapThrottle) {
		return Failed
	}
	n.cfg.Waypoint.Update(ctx.Resolver)

	tel := ctx.Telemetry
	pos := tel.Position
	total := n.cfg.Waypoint.AngleTo(pos)

	aim := n.cfg.Waypoint.Coordinates()
	remaining := total
	if n.cfg.ApproachAngle > 0 {
		remaining = math.Max(0, total-n.cfg.ApproachAngle)
		if remaining > 0 {
			aim = n.cfg.Waypoint.PointFrom(pos, remaining)
		}
	}

	dist := remaining * ctx.bodyRadius()
	ctx.Metric("distance", dist)

	if dist <= n.cfg.ArrivalDistance {
		idle := 0.0
		if !ctx.apply(n, vessel.Controls{Throttle: &idle}) {
			return Failed
		}
		return Complete
	}

	target := tel.Attitude
	target.Heading = geo.BearingDeg(pos, aim)
	throttle := n.cfg.Throttle
	ctx.blockSAS()
	if !ctx.apply(n, vessel.Controls{Attitude: &target, Throttle: &throttle}) {
		return Failed
	}
	ctx.Metric("bearing", target.Heading)
	return Continue
}

func (n *FlyToWaypoint) validate() error {
	if err := n.cfg.Waypoint.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if n.cfg.ArrivalDistance == 0 {
		n.cfg.ArrivalDistance = defaultArrivalDistance
	}
	if n.cfg.Throttle == 0 {
		n.cfg.Throttle = defaultCruiseThrottle
	}
	switch {
	case math.IsNaN(n.cfg.ArrivalDistance) || n.cfg.ArrivalDistance < 0:
		return fmt.Errorf("%w: arrival_distance must be positive", ErrInvalidParams)
	case math.IsNaN(n.cfg.ApproachAngle) || n.cfg.ApproachAngle < 0 || n.cfg.ApproachAngle > math.Pi:
		return fmt.Errorf("%w: approach_angle must be within [0, pi]", ErrInvalidParams)
	case math.IsNaN(n.cfg.Throttle) || n.cfg.Throttle < 0 || n.cfg.Throttle > 1:
		return fmt.Errorf("%w: throttle must be within [0, 1]", ErrInvalidParams)
	}
	return nil
}

func validateGains(g *control.Gains) error {
	if g == nil {
		return nil
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}
