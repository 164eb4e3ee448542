package cli

import (
	"fmt"
	"io"

	"golang.org/x/term"
)

// TerminalDetector defines the interface for terminal detection
// This allows for mocking in tests and dependency injection
type TerminalDetector interface {
	IsTerminal(fd int) bool
}

// DefaultTerminalDetector is the default implementation using golang.org/x/term
type DefaultTerminalDetector struct{}

// IsTerminal implements TerminalDetector interface
func (d *DefaultTerminalDetector) IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

// isInteractiveTerminal checks if the given file descriptor is an interactive terminal
func (c *CLI) isInteractiveTerminal(fd int) bool {
	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}
	return c.terminalDetector.IsTerminal(fd)
}

type fileDescriptor interface {
	Fd() uintptr
}

// isTerminalWriter reports whether w is backed by a terminal. Writers without
// a file descriptor, such as buffers, never are.
func (c *CLI) isTerminalWriter(w io.Writer) bool {
	f, ok := w.(fileDescriptor)
	if !ok {
		return false
	}
	return c.isInteractiveTerminal(int(f.Fd()))
}

// Output formats accepted by --format.
const (
	formatAuto = "auto"
	formatText = "text"
	formatJSON = "json"
)

// resolveFormat turns a --format value into text or json. Auto picks text on
// a terminal and json otherwise; styled is true only for text on a terminal.
func (c *CLI) resolveFormat(format string, w io.Writer) (resolved string, styled bool, err error) {
	switch format {
	case formatText, formatJSON:
		return format, false, nil
	case formatAuto, "":
		if c.isTerminalWriter(w) {
			return formatText, true, nil
		}
		return formatJSON, false, nil
	default:
		return "", false, &UsageError{Err: fmt.Errorf("invalid format %q, must be one of: auto, text, json", format)}
	}
}
