// Package geo provides great-circle navigation math and waypoints for the
// macro autopilot.
//
// All public functions that take or return coordinates work in degrees.
// Trigonometry is done in radians internally; the conversion happens at the
// package boundary so callers never mix units. The body is treated as a
// perfect sphere.
//
// # Key Types
//
//   - Coordinates: a latitude/longitude pair in degrees
//   - Waypoint: a named navigation target, static or bound to a moving entity
//   - TargetRef: the tagged reference a Waypoint uses to find its entity
//   - EntityResolver: looks up the current position of a bound entity
//
// # Usage
//
//	wp := geo.NewWaypoint(geo.Coordinates{Lat: 0, Lon: 0})
//	here := geo.Coordinates{Lat: 0, Lon: 90}
//	bearing := wp.BearingFrom(here)          // degrees, -90
//	dist := wp.DistanceTo(here, 600000)      // metres on a 600 km body
package geo
