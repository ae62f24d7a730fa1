// Package backup dumps a PostgreSQL database to a single SQL file using
// whichever dump strategy the host supports.
package backup

import (
	"context"
	"fmt"
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

// DefaultOutput is the final artifact name used when none is configured.
const DefaultOutput = "backup.sql"

// timestampLayout renders YYYYMMDD_HHMMSS.
const timestampLayout = "20060102_150405"

// Service defines the interface for backup operations.
type Service interface {
	Backup(ctx context.Context, req models.BackupRequest, out sink.Sink) (*models.BackupResult, error)
}

// Impl implements the backup Service interface.
type Impl struct {
	probe   probe.Service
	runner  process.Service
	tools   models.ToolsConfig
	restore models.RestoreDefaults
	now     func() time.Time
	logger  zerolog.Logger
}

// New creates a new backup service.
func New(logger zerolog.Logger, cfg models.AppConfig) *Impl {
	return &Impl{
		probe:   probe.New(logger, cfg.Tools),
		runner:  process.New(logger),
		tools:   cfg.Tools,
		restore: cfg.Restore,
		now:     time.Now,
		logger:  logger,
	}
}

// NewWithServices creates a new backup service with custom collaborators (for testing).
func NewWithServices(
	logger zerolog.Logger,
	cfg models.AppConfig,
	probeSvc probe.Service,
	runner process.Service,
	now func() time.Time,
) *Impl {
	return &Impl{
		probe:   probeSvc,
		runner:  runner,
		tools:   cfg.Tools,
		restore: cfg.Restore,
		now:     now,
		logger:  logger,
	}
}

// Backup runs one backup. The returned result is never nil and reflects how
// far the operation got; the error carries one of the models sentinels.
//
// On failure the temporary artifact is left in place for diagnosis.
//
//nolint:gocyclo // linear state machine
func (s *Impl) Backup(ctx context.Context, req models.BackupRequest, out sink.Sink) (*models.BackupResult, error) {
	start := time.Now()
	result := &models.BackupResult{State: models.StateIdle}

	finish := func(err error) (*models.BackupResult, error) {
		result.Duration = time.Since(start)
		if err != nil {
			s.transition(result, models.StateFailed)
			return result, err
		}
		s.transition(result, models.StateSucceeded)
		return result, nil
	}

	s.transition(result, models.StateParsingURL)
	src, err := connection.ParsePostgres(req.ConnectionURL)
	if err != nil {
		sink.Failuref(out, "%v", err)
		return finish(err)
	}
	result.Source = src
	sink.Progressf(out, "Backing up %s", src)

	s.transition(result, models.StateProbingTools)
	caps := s.probe.Probe(ctx)
	result.Capabilities = caps
	sink.Progressf(out, "Platform: %s (docker: %s, pg_dump: %s)",
		caps.Platform.DisplayName(), yesNo(caps.HasContainerRuntime), yesNo(caps.HasLocalDumpClient))

	s.transition(result, models.StateSelectingStrategy)
	strat, err := strategy.Select(caps, models.OperationBackup)
	if err != nil {
		text := guidance.InstallInstructions(caps.Platform)
		sink.Failuref(out, "%v", err)
		sink.Lines(out, text)
		return finish(&models.GuidanceError{Err: err, Guidance: text})
	}
	result.Strategy = strat

	final := req.Output
	if final == "" {
		final = DefaultOutput
	}
	timestamp := s.now()
	artifact := &models.BackupArtifact{
		TemporaryPath: filepath.Join(filepath.Dir(final), TemporaryName(src.Database, timestamp)),
		FinalPath:     final,
		DatabaseName:  src.Database,
		Timestamp:     timestamp,
	}
	result.Artifact = artifact

	if err := os.MkdirAll(filepath.Dir(final), 0o750); err != nil {
		err = fmt.Errorf("failed to create output directory: %w", err)
		sink.Failuref(out, "%v", err)
		return finish(err)
	}

	cmd, err := strategy.BackupCommand(strat, s.tools, src, artifact.TemporaryPath)
	if err != nil {
		sink.Failuref(out, "%v", err)
		return finish(err)
	}

	s.logger.Info().
		Str("database", src.Database).
		Str("host", src.Host).
		Str("strategy", strat.String()).
		Str("temporary_path", artifact.TemporaryPath).
		Msg("starting backup")
	sink.Progressf(out, "Strategy: %s", strat)
	sink.Progressf(out, "Running: %s", cmd.Display())

	s.transition(result, models.StateRunning)
	outcome, err := s.runner.Run(ctx, cmd, out.Accept)
	if err != nil {
		err = fmt.Errorf("failed to run %s: %w", cmd.Name, err)
		sink.Failuref(out, "%v", err)
		return finish(err)
	}
	result.Outcome = outcome

	if outcome.StartFailed() {
		hint := guidance.ToolStartHint(caps.Platform, strat, models.OperationBackup)
		toolErr := &models.ToolError{Tool: cmd.Name, ExitCode: outcome.ExitCode, Err: models.ErrToolStart, Cause: outcome.StartErr}
		sink.Failuref(out, "%v", toolErr)
		sink.Lines(out, hint)
		return finish(&models.GuidanceError{Err: toolErr, Guidance: hint})
	}

	if !outcome.Succeeded {
		toolErr := &models.ToolError{
			Tool:     cmd.Name,
			ExitCode: outcome.ExitCode,
			Stderr:   outcome.Stderr,
			Err:      models.ErrToolExecution,
			Cause:    ctx.Err(),
		}
		sink.Failuref(out, "%s failed with exit code %d", cmd.Name, outcome.ExitCode)
		reportStderr(out, outcome.Stderr)
		sink.Failuref(out, "Partial output kept at %s", artifact.TemporaryPath)
		return finish(toolErr)
	}

	if _, err := os.Stat(artifact.TemporaryPath); err != nil {
		err = fmt.Errorf("%w: %s was not written: %w", models.ErrArtifactMissing, artifact.TemporaryPath, err)
		sink.Failuref(out, "%v", err)
		return finish(err)
	}

	if err := os.Rename(artifact.TemporaryPath, artifact.FinalPath); err != nil {
		err = fmt.Errorf("failed to move backup into place: %w", err)
		sink.Failuref(out, "%v", err)
		return finish(err)
	}

	if info, err := os.Stat(artifact.FinalPath); err == nil {
		artifact.SizeBytes = info.Size()
	}

	s.logger.Info().
		Str("output", artifact.FinalPath).
		Int64("size_bytes", artifact.SizeBytes).
		Dur("duration", outcome.Duration).
		Msg("backup completed")
	sink.Successf(out, "Backup written to %s (%d bytes)", artifact.FinalPath, artifact.SizeBytes)

	result.Instructions = guidance.RestoreInstructions(caps.Platform, strat, src, artifact.FinalPath, s.restore)
	for _, line := range result.Instructions {
		out.Accept(line)
	}

	return finish(nil)
}

func (s *Impl) transition(result *models.BackupResult, next models.OperationState) {
	s.logger.Debug().
		Str("from", string(result.State)).
		Str("to", string(next)).
		Msg("backup state changed")
	result.State = next
}

// TemporaryName returns <database>_backup_<YYYYMMDD_HHMMSS>.sql with path
// separators and other characters that are invalid in file names replaced.
func TemporaryName(database string, ts time.Time) string {
	return fmt.Sprintf("%s_backup_%s.sql", sanitize(database), ts.Format(timestampLayout))
}

var unsafeChars = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

func sanitize(name string) string {
	name = unsafeChars.Replace(name)
	if name == "" || name == "." || name == ".." {
		return "database"
	}
	return name
}

func reportStderr(out sink.Sink, stderr string) {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return
	}
	for _, line := range strings.Split(stderr, "\n") {
		sink.Failuref(out, "%s", strings.TrimRight(line, "\r"))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
