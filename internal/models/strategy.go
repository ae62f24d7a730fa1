package models

import (
	"fmt"
	"sort"
	"strings"
)

// StrategyKind is the tag of an ExecutionStrategy.
type StrategyKind string

// Strategy kinds.
const (
	StrategyLocalTool         StrategyKind = "local"
	StrategyContainerizedTool StrategyKind = "container"
	StrategyPlatformScript    StrategyKind = "script"
)

// ScriptKind identifies the interpreter family of a platform script.
type ScriptKind string

// Script kinds.
const (
	ScriptNone       ScriptKind = ""
	ScriptPowerShell ScriptKind = "powershell"
	ScriptBash       ScriptKind = "bash"
)

// Strategy is one concrete way of running a backup or restore.
type Strategy struct {
	Kind   StrategyKind
	Script ScriptKind // set only for StrategyPlatformScript
}

func (s Strategy) String() string {
	if s.Kind == StrategyPlatformScript {
		return fmt.Sprintf("%s(%s)", s.Kind, s.Script)
	}
	return string(s.Kind)
}

// OutputMode selects how the process runner treats standard output.
type OutputMode int

// Output modes.
const (
	// OutputStream delivers stdout line by line as it arrives.
	OutputStream OutputMode = iota
	// OutputCapture buffers stdout and writes it verbatim to Command.StdoutFile.
	OutputCapture
)

// RedactedValue replaces secrets in anything shown to the operator.
const RedactedValue = "****"

// Command is a fully built process invocation.
type Command struct {
	Name       string
	Args       []string
	Env        map[string]string // overlay on top of the parent environment
	Secrets    []string          // values that must never be echoed
	StdinFile  string            // optional file fed to stdin
	StdoutFile string            // target for OutputCapture
	Mode       OutputMode
}

// Display returns the command line with every secret masked, followed by
// the names (never values) of the environment overlay.
func (c Command) Display() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.redact(c.Name))
	for _, arg := range c.Args {
		parts = append(parts, c.redact(arg))
	}
	line := strings.Join(parts, " ")

	if c.StdinFile != "" {
		line += " < " + c.StdinFile
	}

	if len(c.Env) > 0 {
		keys := make([]string, 0, len(c.Env))
		for k := range c.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		line += fmt.Sprintf(" (env: %s)", strings.Join(keys, ", "))
	}

	return line
}

func (c Command) redact(s string) string {
	for _, secret := range c.Secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, RedactedValue)
	}
	return s
}
