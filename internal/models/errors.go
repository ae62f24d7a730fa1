package models

import (
	"errors"
	"fmt"
	"strings"
)

// Operation failure categories. All of them are terminal for the current
// operation.
var (
	ErrMalformedConnectionURL = errors.New("malformed connection URL")
	ErrNoStrategyAvailable    = errors.New("no execution strategy available")
	ErrToolStart              = errors.New("tool could not be started")
	ErrToolExecution          = errors.New("tool reported an error")
	ErrArtifactMissing        = errors.New("backup file missing or unreadable")
)

// ToolError describes a failed external tool run.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error // ErrToolStart or ErrToolExecution
	Cause    error // underlying start error, if any
}

func (e *ToolError) Error() string {
	if errors.Is(e.Err, ErrToolStart) {
		return fmt.Sprintf("%s: %v: %v", e.Tool, e.Err, e.Cause)
	}
	msg := fmt.Sprintf("%s: %v (exit code %d)", e.Tool, e.Err, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *ToolError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// GuidanceError wraps a failure that comes with operator instructions,
// e.g. which tool to install on this platform.
type GuidanceError struct {
	Err      error
	Guidance string
}

func (e *GuidanceError) Error() string {
	return e.Err.Error()
}

func (e *GuidanceError) Unwrap() error {
	return e.Err
}
