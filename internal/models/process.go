package models

import "time"

// ProcessOutcome holds the result of one external process launch.
type ProcessOutcome struct {
	ExitCode    int
	Succeeded   bool
	StdoutLines []string // stream mode only
	SplitLines  int      // over-long stdout lines delivered in pieces
	StdoutBytes int64    // bytes written to StdoutFile in capture mode
	Stderr      string
	StartErr    error // non-nil when the process never started
	Duration    time.Duration
}

// StartFailed reports whether the executable could not be launched at all.
func (o *ProcessOutcome) StartFailed() bool {
	return o.StartErr != nil
}
