// Package restore loads a SQL backup into a local container or a remote
// PostgreSQL server.
package restore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fgeck/gopgbackup/internal/connection"
	"github.com/fgeck/gopgbackup/internal/guidance"
	"github.com/fgeck/gopgbackup/internal/models"
	"github.com/fgeck/gopgbackup/internal/services/probe"
	"github.com/fgeck/gopgbackup/internal/services/process"
	"github.com/fgeck/gopgbackup/internal/sink"
	"github.com/fgeck/gopgbackup/internal/strategy"
	"github.com/rs/zerolog"
)

// Restore script file names, looked up in the scripts directory.
const (
	ContainerScriptPowerShell = "restore_database.ps1"
	ContainerScriptBash       = "restore_database.sh"
	RemoteScriptPowerShell    = "restore_remote.ps1"
	RemoteScriptBash          = "restore_remote.sh"
)

// Service defines the interface for restore operations.
type Service interface {
	RestoreToContainer(ctx context.Context, req models.ContainerRestoreRequest, out sink.Sink) (*models.RestoreResult, error)
	RestoreToRemote(ctx context.Context, req models.RemoteRestoreRequest, out sink.Sink) (*models.RestoreResult, error)
}

// Impl implements the restore Service interface.
type Impl struct {
	probe      probe.Service
	runner     process.Service
	tools      models.ToolsConfig
	scriptsDir string
	logger     zerolog.Logger
}

// New creates a new restore service.
func New(logger zerolog.Logger, cfg models.AppConfig) *Impl {
	return NewWithServices(logger, cfg, probe.New(logger, cfg.Tools), process.New(logger))
}

// NewWithServices creates a new restore service with custom collaborators (for testing).
func NewWithServices(logger zerolog.Logger, cfg models.AppConfig, probeSvc probe.Service, runner process.Service) *Impl {
	dir := cfg.Scripts.Dir
	if dir == "" {
		dir = DefaultScriptsDir()
	}
	return &Impl{
		probe:      probeSvc,
		runner:     runner,
		tools:      cfg.Tools,
		scriptsDir: dir,
		logger:     logger,
	}
}

// DefaultScriptsDir returns the directory holding the running executable.
func DefaultScriptsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ScriptName returns the script file for op and kind, or "" if none exists.
func ScriptName(op models.OperationKind, kind models.ScriptKind) string {
	switch {
	case op == models.OperationRestoreContainer && kind == models.ScriptPowerShell:
		return ContainerScriptPowerShell
	case op == models.OperationRestoreContainer && kind == models.ScriptBash:
		return ContainerScriptBash
	case op == models.OperationRestoreRemote && kind == models.ScriptPowerShell:
		return RemoteScriptPowerShell
	case op == models.OperationRestoreRemote && kind == models.ScriptBash:
		return RemoteScriptBash
	default:
		return ""
	}
}

// RestoreToContainer restores req.BackupFile into a running local container.
func (s *Impl) RestoreToContainer(ctx context.Context, req models.ContainerRestoreRequest, out sink.Sink) (*models.RestoreResult, error) {
	start := time.Now()
	result := &models.RestoreResult{Operation: models.OperationRestoreContainer, State: models.StateIdle}

	s.transition(result, models.StatePreflight)
	if err := checkArtifact(req.BackupFile); err != nil {
		sink.Failuref(out, "%v", err)
		return s.finish(result, start, err)
	}
	sink.Progressf(out, "Restoring %s into container %s (database %s, user %s)",
		req.BackupFile, req.ContainerName, req.DatabaseName, req.Username)

	return s.execute(ctx, result, start, out, func(strat models.Strategy, scriptPath string) (models.Command, error) {
		return strategy.ContainerRestoreCommand(strat, s.tools, req, scriptPath)
	})
}

// RestoreToRemote restores req.BackupFile directly against the server in
// req.ConnectionURL.
func (s *Impl) RestoreToRemote(ctx context.Context, req models.RemoteRestoreRequest, out sink.Sink) (*models.RestoreResult, error) {
	start := time.Now()
	result := &models.RestoreResult{Operation: models.OperationRestoreRemote, State: models.StateIdle}

	s.transition(result, models.StateParsingURL)
	target, err := connection.ParsePostgres(req.ConnectionURL)
	if err != nil {
		sink.Failuref(out, "%v", err)
		return s.finish(result, start, err)
	}
	result.Target = target

	s.transition(result, models.StatePreflight)
	if err := checkArtifact(req.BackupFile); err != nil {
		sink.Failuref(out, "%v", err)
		return s.finish(result, start, err)
	}
	sink.Progressf(out, "Restoring %s to %s", req.BackupFile, target)

	return s.execute(ctx, result, start, out, func(strat models.Strategy, scriptPath string) (models.Command, error) {
		return strategy.RemoteRestoreCommand(strat, s.tools, target, req.ConnectionURL, req.BackupFile, scriptPath)
	})
}

// execute runs the shared probe, select and launch steps.
func (s *Impl) execute(
	ctx context.Context,
	result *models.RestoreResult,
	start time.Time,
	out sink.Sink,
	build func(strat models.Strategy, scriptPath string) (models.Command, error),
) (*models.RestoreResult, error) {
	s.transition(result, models.StateProbingTools)
	caps := s.probe.Probe(ctx)

	scriptPath := s.scriptPath(result.Operation, caps.Platform)
	caps.RestoreScriptAvailable = isRegularFile(scriptPath)
	result.Capabilities = caps
	sink.Progressf(out, "Platform: %s (docker: %s, psql: %s, script: %s)",
		caps.Platform.DisplayName(),
		yesNo(caps.HasContainerRuntime), yesNo(caps.HasLocalRestoreClient), yesNo(caps.RestoreScriptAvailable))

	s.transition(result, models.StateSelectingStrategy)
	strat, err := strategy.Select(caps, result.Operation)
	if err != nil {
		text := guidance.InstallInstructions(caps.Platform)
		if result.Operation == models.OperationRestoreContainer {
			text = guidance.ContainerRestoreInstructions(scriptPath)
		}
		sink.Failuref(out, "%v", err)
		sink.Lines(out, text)
		return s.finish(result, start, &models.GuidanceError{Err: err, Guidance: text})
	}
	result.Strategy = strat

	if strat.Kind == models.StrategyPlatformScript {
		result.ScriptPath = scriptPath
		if strat.Script == models.ScriptBash {
			s.ensureExecutable(scriptPath)
		}
	}

	cmd, err := build(strat, result.ScriptPath)
	if err != nil {
		sink.Failuref(out, "%v", err)
		return s.finish(result, start, err)
	}

	s.logger.Info().
		Str("operation", string(result.Operation)).
		Str("strategy", strat.String()).
		Str("script", result.ScriptPath).
		Msg("starting restore")
	sink.Progressf(out, "Strategy: %s", strat)
	sink.Progressf(out, "Running: %s", cmd.Display())

	s.transition(result, models.StateRunning)
	outcome, err := s.runner.Run(ctx, cmd, out.Accept)
	if err != nil {
		err = fmt.Errorf("failed to run %s: %w", cmd.Name, err)
		sink.Failuref(out, "%v", err)
		return s.finish(result, start, err)
	}
	result.Outcome = outcome

	if outcome.StartFailed() {
		hint := guidance.ToolStartHint(caps.Platform, strat, result.Operation)
		toolErr := &models.ToolError{Tool: cmd.Name, ExitCode: outcome.ExitCode, Err: models.ErrToolStart, Cause: outcome.StartErr}
		sink.Failuref(out, "%v", toolErr)
		sink.Lines(out, hint)
		return s.finish(result, start, &models.GuidanceError{Err: toolErr, Guidance: hint})
	}

	if !outcome.Succeeded {
		toolErr := &models.ToolError{
			Tool:     cmd.Name,
			ExitCode: outcome.ExitCode,
			Stderr:   outcome.Stderr,
			Err:      models.ErrToolExecution,
			Cause:    ctx.Err(),
		}
		sink.Failuref(out, "restore failed with exit code %d", outcome.ExitCode)
		for _, line := range stderrLines(outcome.Stderr) {
			sink.Failuref(out, "%s", line)
		}
		return s.finish(result, start, toolErr)
	}

	sink.Successf(out, "Restore completed in %s", outcome.Duration.Round(time.Millisecond))
	return s.finish(result, start, nil)
}

func (s *Impl) finish(result *models.RestoreResult, start time.Time, err error) (*models.RestoreResult, error) {
	result.Duration = time.Since(start)
	if err != nil {
		s.transition(result, models.StateFailed)
		return result, err
	}
	s.transition(result, models.StateSucceeded)
	return result, nil
}

func (s *Impl) transition(result *models.RestoreResult, next models.OperationState) {
	s.logger.Debug().
		Str("operation", string(result.Operation)).
		Str("from", string(result.State)).
		Str("to", string(next)).
		Msg("restore state changed")
	result.State = next
}

func (s *Impl) scriptPath(op models.OperationKind, p models.Platform) string {
	name := ScriptName(op, strategy.ScriptKindFor(p))
	if name == "" {
		return ""
	}
	return filepath.Join(s.scriptsDir, name)
}

// ensureExecutable sets the execute bits on a bash script. A failure is
// only logged; launching will report the real problem.
func (s *Impl) ensureExecutable(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o111 == 0o111 {
		return
	}
	if err := os.Chmod(path, info.Mode().Perm()|0o755); err != nil { //nolint:gosec // scripts must be executable
		s.logger.Warn().Err(err).Str("script", path).Msg("failed to make restore script executable")
	}
}

// checkArtifact verifies the backup file exists, is a regular file and can
// be opened for reading.
func checkArtifact(path string) error {
	if path == "" {
		return fmt.Errorf("%w: no backup file given", models.ErrArtifactMissing)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s does not exist", models.ErrArtifactMissing, path)
		}
		return fmt.Errorf("%w: %w", models.ErrArtifactMissing, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", models.ErrArtifactMissing, path)
	}

	f, err := os.Open(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return fmt.Errorf("%w: %s is not readable: %w", models.ErrArtifactMissing, path, err)
	}
	_ = f.Close()

	return nil
}

func isRegularFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func stderrLines(stderr string) []string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return nil
	}
	lines := strings.Split(stderr, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
