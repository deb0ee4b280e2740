// Package vessel defines the view of the controlled vehicle that macro
// actions read from and write to.
//
// A Vessel exposes a Telemetry snapshot and accepts Controls. Two
// implementations are provided:
//
//   - Sim: a deterministic kinematic model stepped by the tick loop
//   - Remote: a vehicle on the other end of MQTT, receiving controls on
//     macropilot/control/{vessel} and reporting on macropilot/telemetry/{vessel}
//
// Registry resolves vessels and their parts as dynamic waypoint targets.
//
// # Thread Safety
//
// Remote and Registry are safe for concurrent use. Sim is driven from the
// engine's tick goroutine; its exported methods take a lock so the API can
// read telemetry while it runs.
package vessel
