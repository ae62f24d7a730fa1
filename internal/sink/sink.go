// Package sink delivers operator-facing progress lines. Orchestrators write
// every progress, success and failure line to a Sink so that a line-oriented
// log is a complete audit trail of the operation.
package sink

import (
	"fmt"
	"strings"
	"sync"
)

// Line markers.
const (
	ProgressMarker = "→ "
	SuccessMarker  = "✓ "
	FailureMarker  = "✗ "
)

// Sink accepts one line of operator output.
type Sink interface {
	Accept(line string)
}

// Func adapts a plain function to a Sink.
type Func func(line string)

// Accept calls f(line).
func (f Func) Accept(line string) {
	f(line)
}

// Discard drops every line.
var Discard Sink = Func(func(string) {})

type multi []Sink

// Multi returns a Sink that forwards every line to all sinks, in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Accept(line string) {
	for _, s := range m {
		s.Accept(line)
	}
}

// FailuresOnly forwards only failure lines to s.
func FailuresOnly(s Sink) Sink {
	return Func(func(line string) {
		if strings.HasPrefix(line, FailureMarker) {
			s.Accept(line)
		}
	})
}

// Memory records lines. It is safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	lines []string
}

// Accept records line.
func (m *Memory) Accept(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
}

// Lines returns a copy of everything recorded so far.
func (m *Memory) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

// String joins the recorded lines with newlines.
func (m *Memory) String() string {
	return strings.Join(m.Lines(), "\n")
}

// Progressf writes a progress line.
func Progressf(s Sink, format string, args ...any) {
	s.Accept(ProgressMarker + fmt.Sprintf(format, args...))
}

// Successf writes a success line.
func Successf(s Sink, format string, args ...any) {
	s.Accept(SuccessMarker + fmt.Sprintf(format, args...))
}

// Failuref writes a failure line.
func Failuref(s Sink, format string, args ...any) {
	s.Accept(FailureMarker + fmt.Sprintf(format, args...))
}

// Lines writes every line of a multi-line text block unchanged.
func Lines(s Sink, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		s.Accept(line)
	}
}
