// Package probe detects the platform and which external tools are usable.
package probe

import (
	"context"
	"os/exec"
	"runtime"
	"time"

	"github.com/fgeck/gopgbackup/internal/models"
	"github.com/rs/zerolog"
)

const defaultProbeTimeout = 10 * time.Second

// Service defines the interface for capability probing.
type Service interface {
	Probe(ctx context.Context) models.CapabilitySet
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) error
}

// DefaultExecutor runs the command and discards its output.
type DefaultExecutor struct{}

// Execute runs a command and reports whether it started and exited with 0.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Impl implements the probe Service interface.
type Impl struct {
	executor CommandExecutor
	tools    models.ToolsConfig
	goos     string
	logger   zerolog.Logger
}

// New creates a new probe for the host this binary runs on.
func New(logger zerolog.Logger, tools models.ToolsConfig) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		tools:    tools,
		goos:     runtime.GOOS,
		logger:   logger,
	}
}

// NewWithExecutor creates a probe with a custom executor and OS identifier (for testing).
func NewWithExecutor(logger zerolog.Logger, tools models.ToolsConfig, executor CommandExecutor, goos string) *Impl {
	return &Impl{
		executor: executor,
		tools:    tools,
		goos:     goos,
		logger:   logger,
	}
}

// Probe inspects the host. It spawns short-lived `<tool> --version`
// processes and keeps no state between calls.
func (s *Impl) Probe(ctx context.Context) models.CapabilitySet {
	caps := models.CapabilitySet{
		Platform:              DetectPlatform(s.goos),
		HasContainerRuntime:   s.available(ctx, s.tools.ContainerRuntime),
		HasLocalDumpClient:    s.available(ctx, s.tools.DumpClient),
		HasLocalRestoreClient: s.available(ctx, s.tools.RestoreClient),
	}

	s.logger.Debug().
		Str("platform", string(caps.Platform)).
		Bool("container_runtime", caps.HasContainerRuntime).
		Bool("dump_client", caps.HasLocalDumpClient).
		Bool("restore_client", caps.HasLocalRestoreClient).
		Msg("capabilities probed")

	return caps
}

// available treats "not found" and "exited non-zero" the same way.
func (s *Impl) available(ctx context.Context, tool string) bool {
	if tool == "" {
		return false
	}

	timeout := s.tools.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.executor.Execute(ctx, tool, "--version"); err != nil {
		s.logger.Debug().Err(err).Str("tool", tool).Msg("tool unavailable")
		return false
	}
	return true
}

// DetectPlatform maps a GOOS value to a platform family. Unknown systems
// map to PlatformOther instead of failing.
func DetectPlatform(goos string) models.Platform {
	switch goos {
	case "windows":
		return models.PlatformWindows
	case "darwin":
		return models.PlatformMacOS
	case "linux":
		return models.PlatformLinux
	default:
		return models.PlatformOther
	}
}
