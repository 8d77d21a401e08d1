package enums

import "fmt"

// TerminalMode selects the hobex backend a terminal talks to.
type TerminalMode string

const (
	TerminalModeTesting    TerminalMode = "testing"
	TerminalModeProduction TerminalMode = "production"
)

// String implements fmt.Stringer.
func (m TerminalMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known TerminalMode.
func (m TerminalMode) IsValid() bool {
	return m == TerminalModeTesting || m == TerminalModeProduction
}

// ParseTerminalMode converts raw input into a TerminalMode.
func ParseTerminalMode(value string) (TerminalMode, error) {
	switch TerminalMode(value) {
	case TerminalModeTesting:
		return TerminalModeTesting, nil
	case TerminalModeProduction:
		return TerminalModeProduction, nil
	}
	return "", fmt.Errorf("invalid terminal mode %q", value)
}
