// Package runner runs one backup or restore at a time, wrapped in the
// optional wake, upload, shutdown, metrics and notification steps.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fgeck/gopgbackup/internal/connection"
	"github.com/fgeck/gopgbackup/internal/metrics"
	"github.com/fgeck/gopgbackup/internal/models"
	"github.com/fgeck/gopgbackup/internal/services/backup"
	"github.com/fgeck/gopgbackup/internal/services/restore"
	"github.com/fgeck/gopgbackup/internal/services/ssh"
	"github.com/fgeck/gopgbackup/internal/services/telegram"
	"github.com/fgeck/gopgbackup/internal/services/upload"
	"github.com/fgeck/gopgbackup/internal/services/wake"
	"github.com/fgeck/gopgbackup/internal/sink"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrOperationInProgress is returned by Start while another operation runs.
var ErrOperationInProgress = errors.New("another operation is already in progress")

// Step names reported as the failed step.
const (
	StepWake     = "wake"
	StepBackup   = "backup"
	StepRestore  = "restore"
	StepUpload   = "upload"
	StepShutdown = "ssh_shutdown"
)

const notifyTimeout = 30 * time.Second

// Request selects the operation to run. Exactly the field matching
// Operation must be set.
type Request struct {
	Operation models.OperationKind
	Backup    *models.BackupRequest
	Container *models.ContainerRestoreRequest
	Remote    *models.RemoteRestoreRequest
}

// Completion is delivered once per started operation.
type Completion struct {
	OperationID string
	Operation   models.OperationKind
	Backup      *models.BackupResult
	Restore     *models.RestoreResult
	Upload      *models.UploadResult
	FailedStep  string
	Err         error
	StartTime   time.Time
	Duration    time.Duration
}

// Service defines the interface for the operation runner.
type Service interface {
	Start(ctx context.Context, req Request, out sink.Sink) (<-chan Completion, error)
	Run(ctx context.Context, req Request, out sink.Sink) (*Completion, error)
	Busy() bool
}

// Impl implements the runner Service interface.
type Impl struct {
	cfg         models.AppConfig
	backupSvc   backup.Service
	restoreSvc  restore.Service
	wakeSvc     wake.Service
	sshSvc      ssh.Service
	telegramSvc telegram.Service
	uploadSvc   upload.Service
	recorder    *metrics.Recorder
	busy        atomic.Bool
	logger      zerolog.Logger
}

// New creates a new runner with the default services.
func New(logger zerolog.Logger, cfg models.AppConfig) *Impl {
	return NewWithServices(
		logger,
		cfg,
		backup.New(logger, cfg),
		restore.New(logger, cfg),
		wake.New(logger),
		ssh.New(logger),
		telegram.New(logger),
		upload.New(logger),
		metrics.New(),
	)
}

// NewWithServices creates a new runner with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	cfg models.AppConfig,
	backupSvc backup.Service,
	restoreSvc restore.Service,
	wakeSvc wake.Service,
	sshSvc ssh.Service,
	telegramSvc telegram.Service,
	uploadSvc upload.Service,
	recorder *metrics.Recorder,
) *Impl {
	return &Impl{
		cfg:         cfg,
		backupSvc:   backupSvc,
		restoreSvc:  restoreSvc,
		wakeSvc:     wakeSvc,
		sshSvc:      sshSvc,
		telegramSvc: telegramSvc,
		uploadSvc:   uploadSvc,
		recorder:    recorder,
		logger:      logger,
	}
}

// Busy reports whether an operation is running.
func (s *Impl) Busy() bool {
	return s.busy.Load()
}

// Start launches req on its own goroutine. The busy flag is taken before
// Start returns, so a concurrent second call fails with
// ErrOperationInProgress. The channel receives exactly one Completion and
// is then closed; the flag is released before the Completion is sent.
func (s *Impl) Start(ctx context.Context, req Request, out sink.Sink) (<-chan Completion, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrOperationInProgress
	}

	id := uuid.NewString()
	logger := s.logger.With().
		Str("operation_id", id).
		Str("operation", string(req.Operation)).
		Logger()

	done := make(chan Completion, 1)
	go func() {
		c := s.execute(ctx, logger, id, req, out)
		s.busy.Store(false)
		done <- c
		close(done)
	}()

	return done, nil
}

// Run starts req and waits for it to finish. The returned error is the
// operation's error.
func (s *Impl) Run(ctx context.Context, req Request, out sink.Sink) (*Completion, error) {
	done, err := s.Start(ctx, req, out)
	if err != nil {
		return nil, err
	}
	c := <-done
	return &c, c.Err
}

//nolint:gocognit,gocyclo // workflow has multiple optional steps by design
func (s *Impl) execute(ctx context.Context, logger zerolog.Logger, id string, req Request, out sink.Sink) Completion {
	c := Completion{OperationID: id, Operation: req.Operation, StartTime: time.Now()}

	logger.Info().Msg("starting operation")

	defer func() {
		c.Duration = time.Since(c.StartTime)
		s.recordMetrics(logger, &c)
		if s.cfg.Telegram != nil {
			s.sendNotification(ctx, logger, req, &c)
		}
		if c.Err != nil {
			logger.Error().Err(c.Err).Str("failed_step", c.FailedStep).Dur("duration", c.Duration).Msg("operation failed")
			return
		}
		logger.Info().Dur("duration", c.Duration).Msg("operation completed successfully")
	}()

	// The database host is only known for operations that talk to a server.
	host, hostKnown := s.databaseHost(req)

	if s.cfg.Wake != nil && hostKnown {
		c.FailedStep = StepWake
		if err := s.runWake(ctx, logger, host, out); err != nil {
			c.Err = err
			return c
		}
	}

	switch req.Operation {
	case models.OperationBackup:
		c.FailedStep = StepBackup
		c.Backup, c.Err = s.backupSvc.Backup(ctx, *req.Backup, out)
	case models.OperationRestoreContainer:
		c.FailedStep = StepRestore
		c.Restore, c.Err = s.restoreSvc.RestoreToContainer(ctx, *req.Container, out)
	case models.OperationRestoreRemote:
		c.FailedStep = StepRestore
		c.Restore, c.Err = s.restoreSvc.RestoreToRemote(ctx, *req.Remote, out)
	}

	if c.Err == nil && req.Operation == models.OperationBackup && s.cfg.Upload != nil && c.Backup.Artifact != nil {
		c.FailedStep = StepUpload
		c.Upload, c.Err = s.runUpload(ctx, logger, c.Backup.Artifact.FinalPath, out)
	}

	// The host is shut down even after a failed operation: it was reachable
	// and nobody else needs it awake.
	if s.cfg.SSHShutdown != nil && hostKnown {
		if err := s.runSSHShutdown(ctx, logger, host, out); err != nil && c.Err == nil {
			c.FailedStep = StepShutdown
			c.Err = err
		}
	}

	if c.Err == nil {
		c.FailedStep = ""
	}
	return c
}

// databaseHost returns the descriptor of the server the operation talks to.
func (s *Impl) databaseHost(req Request) (models.ConnectionDescriptor, bool) {
	var raw string
	switch req.Operation {
	case models.OperationBackup:
		raw = req.Backup.ConnectionURL
	case models.OperationRestoreRemote:
		raw = req.Remote.ConnectionURL
	default:
		return models.ConnectionDescriptor{}, false
	}
	desc, err := connection.ParsePostgres(raw)
	if err != nil {
		return models.ConnectionDescriptor{}, false
	}
	return desc, true
}

func (s *Impl) runWake(ctx context.Context, logger zerolog.Logger, host models.ConnectionDescriptor, out sink.Sink) error {
	sink.Progressf(out, "Waking database host %s", host.Address())

	result, err := s.wakeSvc.Wake(ctx, *s.cfg.Wake, host.Address())
	if err != nil {
		err = fmt.Errorf("wake failed: %w", err)
		sink.Failuref(out, "%v", err)
		return err
	}
	if result.Error != nil {
		err = fmt.Errorf("wake failed: %w", result.Error)
		sink.Failuref(out, "%v", err)
		return err
	}

	logger.Info().
		Bool("packet_sent", result.PacketSent).
		Bool("target_ready", result.TargetReady).
		Dur("wait_duration", result.WaitDuration).
		Msg("wake completed")
	sink.Successf(out, "Database host is reachable after %s", result.WaitDuration.Round(time.Second))

	return nil
}

func (s *Impl) runUpload(ctx context.Context, logger zerolog.Logger, artifact string, out sink.Sink) (*models.UploadResult, error) {
	cfg := *s.cfg.Upload
	sink.Progressf(out, "Uploading %s to %s bucket %s", artifact, cfg.Provider, cfg.Bucket)

	result, err := s.uploadSvc.Upload(ctx, cfg, artifact)
	if err == nil && result.Error != nil {
		err = result.Error
	}
	if s.recorder != nil {
		s.recorder.RecordUpload(cfg.Provider, err == nil)
	}
	if err != nil {
		err = fmt.Errorf("upload failed: %w", err)
		sink.Failuref(out, "%v (local backup kept at %s)", err, artifact)
		return result, err
	}

	logger.Info().Str("location", result.Location).Msg("artifact uploaded")
	sink.Successf(out, "Uploaded to %s", result.Location)

	return result, nil
}

func (s *Impl) runSSHShutdown(ctx context.Context, logger zerolog.Logger, host models.ConnectionDescriptor, out sink.Sink) error {
	cfg := *s.cfg.SSHShutdown
	if cfg.Host == "" {
		cfg.Host = host.Host
	}
	sink.Progressf(out, "Shutting down %s", cfg.Host)

	result, err := s.sshSvc.Shutdown(ctx, cfg)
	if err != nil {
		err = fmt.Errorf("SSH shutdown failed: %w", err)
		sink.Failuref(out, "%v", err)
		return err
	}
	if result.Error != nil {
		// The connection may drop while the host goes down.
		if !result.CommandRun {
			err = fmt.Errorf("SSH shutdown failed: %w", result.Error)
			sink.Failuref(out, "%v", err)
			return err
		}
		logger.Warn().
			Err(result.Error).
			Str("output", result.Output).
			Msg("shutdown command returned error (may be expected)")
	}

	logger.Info().
		Bool("command_run", result.CommandRun).
		Str("command", result.Command).
		Msg("SSH shutdown command sent")
	sink.Successf(out, "Shutdown scheduled on %s", cfg.Host)

	return nil
}

func (s *Impl) recordMetrics(logger zerolog.Logger, c *Completion) {
	if s.recorder == nil || s.cfg.Metrics.Textfile == "" {
		return
	}

	var strategy string
	switch {
	case c.Backup != nil:
		strategy = c.Backup.Strategy.String()
	case c.Restore != nil:
		strategy = c.Restore.Strategy.String()
	}
	s.recorder.RecordOperation(c.Operation, strategy, c.Err == nil, c.Duration, time.Now())
	if c.Err == nil && c.Backup != nil && c.Backup.Artifact != nil {
		s.recorder.RecordArtifact(c.Backup.Artifact.SizeBytes)
	}

	if err := s.recorder.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
		logger.Warn().Err(err).Str("path", s.cfg.Metrics.Textfile).Msg("failed to write metrics")
	}
}

func (s *Impl) sendNotification(ctx context.Context, logger zerolog.Logger, req Request, c *Completion) {
	// Report interrupted runs too.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	msg := models.TelegramMessage{
		Success:   c.Err == nil,
		Operation: c.Operation,
		StartTime: c.StartTime,
		Duration:  c.Duration,
	}

	switch {
	case c.Backup != nil:
		msg.Database = c.Backup.Source.Database
		if c.Backup.Strategy.Kind != "" {
			msg.Strategy = c.Backup.Strategy.String()
		}
		if c.Backup.Artifact != nil {
			msg.Target = c.Backup.Artifact.FinalPath
			msg.ArtifactSize = c.Backup.Artifact.SizeBytes
		}
	case c.Restore != nil:
		msg.Database = c.Restore.Target.Database
		if c.Restore.Strategy.Kind != "" {
			msg.Strategy = c.Restore.Strategy.String()
		}
		if c.Restore.Target.Host != "" {
			msg.Target = c.Restore.Target.String()
		}
	}
	if req.Container != nil {
		msg.Database = req.Container.DatabaseName
		msg.Target = "container " + req.Container.ContainerName
	}
	if c.Upload != nil && c.Upload.Error == nil {
		msg.UploadedTo = c.Upload.Location
	}
	if c.Err != nil {
		msg.FailedStep = c.FailedStep
		msg.ErrorMessage = c.Err.Error()
	}

	result, err := s.telegramSvc.SendNotification(ctx, *s.cfg.Telegram, msg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	logger.Info().Msg("Telegram notification sent")
}

func validateRequest(req Request) error {
	switch req.Operation {
	case models.OperationBackup:
		if req.Backup == nil {
			return fmt.Errorf("backup request missing")
		}
	case models.OperationRestoreContainer:
		if req.Container == nil {
			return fmt.Errorf("container restore request missing")
		}
	case models.OperationRestoreRemote:
		if req.Remote == nil {
			return fmt.Errorf("remote restore request missing")
		}
	default:
		return fmt.Errorf("unknown operation %q", req.Operation)
	}
	return nil
}
