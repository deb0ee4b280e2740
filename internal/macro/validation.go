package macro

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxTreeNodes  = 1000
	maxTreeDepth  = 32
)

// GenerateID returns a new random identifier.
func GenerateID() string {
	return uuid.NewString()
}

// ValidateName checks a macro name.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if trimmed != name {
		return fmt.Errorf("%w: name has leading or trailing whitespace", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateMacro checks a macro before it is stored.
func ValidateMacro(m *Macro) error {
	if m == nil {
		return ErrInvalidMacro
	}
	if err := ValidateName(m.Name()); err != nil {
		return err
	}

	count := 0
	var err error
	Walk(m, func(n Node, depth int) bool {
		count++
		switch {
		case err != nil:
		case depth > maxTreeDepth:
			err = fmt.Errorf("%w: nesting exceeds %d levels", ErrInvalidMacro, maxTreeDepth)
		case count > maxTreeNodes:
			err = fmt.Errorf("%w: exceeds %d nodes", ErrInvalidMacro, maxTreeNodes)
		}
		return err == nil
	})
	return err
}
