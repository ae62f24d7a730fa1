package upload

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fgeck/gopgbackup/internal/models"
	"google.golang.org/api/option"
)

// Storage is an object store that receives finished backups.
type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader, metadata map[string]string) error
	Location(key string) string
	Close() error
}

// StorageFactory builds the Storage for an upload configuration.
type StorageFactory func(ctx context.Context, cfg models.UploadConfig) (Storage, error)

// NewStorage creates the provider named by cfg.Provider.
func NewStorage(ctx context.Context, cfg models.UploadConfig) (Storage, error) {
	switch cfg.Provider {
	case models.UploadProviderS3:
		return NewS3Storage(ctx, cfg)
	case models.UploadProviderGCS:
		return NewGCSStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported upload provider: %q", cfg.Provider)
	}
}

// S3Storage uploads to AWS S3 or an S3-compatible service.
type S3Storage struct {
	uploader *manager.Uploader
	bucket   string
}

// NewS3Storage creates an S3 storage provider with static credentials.
func NewS3Storage(ctx context.Context, cfg models.UploadConfig) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Storage{
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

// Upload streams reader to key. The multipart uploader does not need the
// size up front.
func (s *S3Storage) Upload(ctx context.Context, key string, reader io.Reader, metadata map[string]string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     reader,
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// Location returns the s3:// URL of key.
func (s *S3Storage) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// Close is a no-op; the S3 client holds no resources.
func (s *S3Storage) Close() error {
	return nil
}

// GCSStorage uploads to Google Cloud Storage.
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// NewGCSStorage creates a GCS storage provider. Without credentials JSON the
// application default credentials are used.
func NewGCSStorage(ctx context.Context, cfg models.UploadConfig) (*GCSStorage, error) {
	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{client: client, bucket: cfg.Bucket}, nil
}

// Upload streams reader to key.
func (g *GCSStorage) Upload(ctx context.Context, key string, reader io.Reader, metadata map[string]string) error {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.Metadata = metadata

	if _, err := io.Copy(w, reader); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS upload: %w", err)
	}
	return nil
}

// Location returns the gs:// URL of key.
func (g *GCSStorage) Location(key string) string {
	return fmt.Sprintf("gs://%s/%s", g.bucket, key)
}

// Close releases the GCS client.
func (g *GCSStorage) Close() error {
	return g.client.Close()
}
