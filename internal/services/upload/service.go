// Package upload copies finished backups to object storage, optionally
// compressed with zstd.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/fgeck/gopgbackup/internal/models"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
)

// Service defines the interface for artifact uploads.
type Service interface {
	Upload(ctx context.Context, cfg models.UploadConfig, artifactPath string) (*models.UploadResult, error)
}

// Impl implements the upload Service interface.
type Impl struct {
	newStorage StorageFactory
	logger     zerolog.Logger
}

// New creates a new upload service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		newStorage: NewStorage,
		logger:     logger,
	}
}

// NewWithFactory creates a new upload service with a custom storage factory (for testing).
func NewWithFactory(logger zerolog.Logger, factory StorageFactory) *Impl {
	return &Impl{
		newStorage: factory,
		logger:     logger,
	}
}

// Upload streams the artifact to the configured bucket. The local file is
// never modified. Failures are reported in the result.
func (s *Impl) Upload(ctx context.Context, cfg models.UploadConfig, artifactPath string) (*models.UploadResult, error) {
	start := time.Now()
	result := &models.UploadResult{Key: ObjectKey(cfg, artifactPath)}

	file, err := os.Open(artifactPath) //nolint:gosec // artifact path comes from the backup run
	if err != nil {
		result.Error = fmt.Errorf("failed to open artifact: %w", err)
		return result, nil
	}
	defer func() { _ = file.Close() }()

	store, err := s.newStorage(ctx, cfg)
	if err != nil {
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}
	defer func() { _ = store.Close() }()

	result.Location = store.Location(result.Key)

	s.logger.Info().
		Str("provider", cfg.Provider).
		Str("location", result.Location).
		Str("compression", compression(cfg)).
		Msg("uploading backup")

	counter := &countingReader{r: file}
	var body io.Reader = counter

	if compression(cfg) == models.CompressionZstd {
		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(compress(pw, counter))
		}()
		// Unblock the compressor if the upload gives up early.
		defer func() { _ = pr.Close() }()
		body = pr
	}

	metadata := map[string]string{
		"source-file": filepath.Base(artifactPath),
		"compression": compression(cfg),
	}

	if err := store.Upload(ctx, result.Key, body, metadata); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	result.SizeBytes = counter.n
	result.Duration = time.Since(start)

	s.logger.Info().
		Str("location", result.Location).
		Int64("size_bytes", result.SizeBytes).
		Dur("duration", result.Duration).
		Msg("upload completed")

	return result, nil
}

// ObjectKey returns prefix/<artifact name>[.zst].
func ObjectKey(cfg models.UploadConfig, artifactPath string) string {
	name := filepath.Base(artifactPath)
	if compression(cfg) == models.CompressionZstd {
		name += ".zst"
	}
	if cfg.Prefix == "" {
		return name
	}
	return path.Join(cfg.Prefix, name)
}

func compression(cfg models.UploadConfig) string {
	if cfg.Compression == "" {
		return models.CompressionNone
	}
	return cfg.Compression
}

func compress(w io.Writer, r io.Reader) error {
	encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if _, err := io.Copy(encoder, r); err != nil {
		_ = encoder.Close()
		return fmt.Errorf("failed to compress artifact: %w", err)
	}
	return encoder.Close()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
