package macro

import (
	"errors"
	"fmt"
)

// Domain errors for the macro package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, macro.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a macro name or entry ID does not exist.
	ErrNotFound = errors.New("macro: not found")

	// ErrExists is returned when a name is already used by another entry.
	ErrExists = errors.New("macro: already exists")

	// ErrInvalidName is returned when a macro name is empty or too long.
	ErrInvalidName = errors.New("macro: invalid name")

	// ErrInvalidMacro is returned when a macro is nil or structurally invalid.
	ErrInvalidMacro = errors.New("macro: invalid")

	// ErrUnknownKind is returned when a record names an unregistered node kind.
	ErrUnknownKind = errors.New("macro: unknown node kind")

	// ErrInvalidParams is returned when a node's parameters cannot be decoded
	// or fail validation.
	ErrInvalidParams = errors.New("macro: invalid parameters")

	// ErrNotMacro is returned when a record's root is not a macro.
	ErrNotMacro = errors.New("macro: root is not a macro")

	// ErrAttached is returned when adding a node that already has a parent.
	ErrAttached = errors.New("macro: node already attached")

	// ErrCycle is returned when adding a node would make it its own ancestor.
	ErrCycle = errors.New("macro: node would contain itself")

	// ErrNoMacro is returned by engine operations that need a loaded macro.
	ErrNoMacro = errors.New("macro: no macro loaded")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("macro: run not found")

	// ErrUnsupportedVersion is returned when importing a library file with an
	// unknown format version.
	ErrUnsupportedVersion = errors.New("macro: unsupported library version")
)

// LoadError reports a record that could not be turned into a node.
// Path locates the record in its tree, e.g. "Landing/2/0".
type LoadError struct {
	Path string
	Kind string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("macro: loading %s (%s): %v", e.Path, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Warnings flattens a decode error into one message per skipped record,
// descending into joined errors at any depth.
func Warnings(err error) []string {
	var out []string
	var walk func(error)
	walk = func(e error) {
		if j, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range j.Unwrap() {
				walk(inner)
			}
			return
		}
		out = append(out, e.Error())
	}
	if err != nil {
		walk(err)
	}
	return out
}
