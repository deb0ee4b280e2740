// Package api implements the HTTP REST API and WebSocket server for macropilot.
//
// This package provides:
//   - REST endpoints for the macro library (save, get, rename, remove, clear)
//   - YAML library export and import
//   - Engine control: select a library entry, load an ad hoc tree, abort, reset
//   - Run history for the local vessel
//   - WebSocket hub for real-time engine events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API server sits between operator consoles and the macro engine. The
// engine broadcasts node activations and run status changes through the
// hub. When MQTT is connected, events published by other macropilot
// instances are relayed to WebSocket clients on ChannelRemoteEvent.
//
// # Graceful Degradation
//
// The server operates without MQTT; only the remote relay is lost.
package api
