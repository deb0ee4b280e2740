package vessel

import "errors"

// Domain errors for the vessel package.
var (
	// ErrNotFound is returned when a vessel ID is not registered.
	ErrNotFound = errors.New("vessel: not found")

	// ErrUnsupported is returned when a control needs a capability the vessel lacks.
	ErrUnsupported = errors.New("vessel: capability not supported")

	// ErrUnknownActionGroup is returned when toggling a group the vessel does not have.
	ErrUnknownActionGroup = errors.New("vessel: unknown action group")

	// ErrNoTelemetry is returned when a remote vessel has not reported yet.
	ErrNoTelemetry = errors.New("vessel: no telemetry received")

	// ErrInvalidControls is returned when a control value is out of range.
	ErrInvalidControls = errors.New("vessel: invalid controls")
)
