package geo

import (
	"fmt"
	"math"
)

// TargetKind tags what a Waypoint is bound to.
type TargetKind string

const (
	// TargetStatic means the waypoint uses its own fixed coordinates.
	TargetStatic TargetKind = "static"
	// TargetVessel binds the waypoint to another vessel.
	TargetVessel TargetKind = "vessel"
	// TargetPart binds the waypoint to a part; its owning vessel supplies the position.
	TargetPart TargetKind = "part"
	// TargetGeneric binds the waypoint to any other positioned object.
	TargetGeneric TargetKind = "generic"
)

// TargetRef identifies a dynamic entity a waypoint follows.
// The zero value is a static (unbound) reference.
type TargetRef struct {
	Kind TargetKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	ID   string     `json:"id,omitempty" yaml:"id,omitempty"`
}

// Bound reports whether the reference points at a dynamic entity.
func (r TargetRef) Bound() bool {
	return r.Kind != "" && r.Kind != TargetStatic
}

// Entity is a resolved dynamic target.
type Entity struct {
	Ref      TargetRef
	Name     string
	Position Coordinates
	// OwnerPosition is the position of the vessel a part belongs to.
	OwnerPosition *Coordinates
}

// EntityResolver looks up the current state of a dynamic entity.
type EntityResolver interface {
	Resolve(ref TargetRef) (Entity, bool)
}

// Waypoint is a named navigation target.
//
// A waypoint created from an entity re-derives its coordinates from that
// entity on every Update. When the entity can no longer be resolved the
// binding is dropped and the last known coordinates are kept.
type Waypoint struct {
	Name   string    `json:"name" yaml:"name"`
	Lat    float64   `json:"lat" yaml:"lat"`
	Lon    float64   `json:"lon" yaml:"lon"`
	Target TargetRef `json:"target,omitempty" yaml:"target,omitempty"`
}

// NewWaypoint creates a static waypoint at c, named after its coordinates.
func NewWaypoint(c Coordinates) *Waypoint {
	return &Waypoint{Name: c.String(), Lat: c.Lat, Lon: c.Lon, Target: TargetRef{Kind: TargetStatic}}
}

// NewWaypointFromEntity snapshots the entity's current position and binds
// the waypoint to it.
func NewWaypointFromEntity(e Entity) *Waypoint {
	wp := &Waypoint{Name: e.Name, Target: e.Ref}
	wp.apply(e)
	return wp
}

// String implements fmt.Stringer.
func (w *Waypoint) String() string {
	return fmt.Sprintf("[%s] %s", w.Name, w.Coordinates())
}

// Coordinates returns the waypoint position.
func (w *Waypoint) Coordinates() Coordinates {
	return Coordinates{Lat: w.Lat, Lon: w.Lon}
}

// Update refreshes a bound waypoint from its entity. Call it once per tick.
// It reports whether the waypoint is still bound afterwards.
func (w *Waypoint) Update(resolver EntityResolver) bool {
	if !w.Target.Bound() {
		return false
	}
	if resolver == nil {
		return true
	}
	e, ok := resolver.Resolve(w.Target)
	if !ok {
		w.Target = TargetRef{Kind: TargetStatic}
		return false
	}
	w.apply(e)
	return true
}

func (w *Waypoint) apply(e Entity) {
	if e.Name != "" {
		w.Name = e.Name
	}
	switch w.Target.Kind {
	case TargetVessel, TargetGeneric:
		w.Lat, w.Lon = e.Position.Lat, e.Position.Lon
	case TargetPart:
		pos := e.Position
		if e.OwnerPosition != nil {
			pos = *e.OwnerPosition
		}
		w.Lat, w.Lon = pos.Lat, pos.Lon
	}
}

// AngleTo returns the central angle in radians between the waypoint and c.
func (w *Waypoint) AngleTo(c Coordinates) float64 {
	return AngularDistance(w.Lat, w.Lon, c.Lat, c.Lon)
}

// DistanceTo returns the surface distance between the waypoint and c on a
// body of the given radius.
func (w *Waypoint) DistanceTo(c Coordinates, radius float64) float64 {
	return w.AngleTo(c) * radius
}

// BearingFrom returns the initial bearing in degrees from c toward the waypoint.
func (w *Waypoint) BearingFrom(c Coordinates) float64 {
	return BearingDeg(c, w.Coordinates())
}

// PointFrom returns the point dist radians from c along the great circle
// toward the waypoint.
func (w *Waypoint) PointFrom(c Coordinates, dist float64) Coordinates {
	return InterpolatedPoint(c.Lat, c.Lon, w.Lat, w.Lon, dist)
}

// Validate checks the waypoint for values the navigation math cannot use.
func (w *Waypoint) Validate() error {
	if math.IsNaN(w.Lat) || math.IsNaN(w.Lon) {
		return fmt.Errorf("waypoint %q: coordinates are NaN", w.Name)
	}
	if w.Lat < -90 || w.Lat > 90 {
		return fmt.Errorf("waypoint %q: latitude %.3f out of range", w.Name, w.Lat)
	}
	switch w.Target.Kind {
	case "", TargetStatic, TargetVessel, TargetPart, TargetGeneric:
	default:
		return fmt.Errorf("waypoint %q: unknown target kind %q", w.Name, w.Target.Kind)
	}
	if w.Target.Bound() && w.Target.ID == "" {
		return fmt.Errorf("waypoint %q: bound target has no id", w.Name)
	}
	return nil
}
