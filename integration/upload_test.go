//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fgeck/gopgbackup/internal/models"
	"github.com/fgeck/gopgbackup/internal/services/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getS3Config targets an S3-compatible server such as MinIO.
func getS3Config(t *testing.T) models.UploadConfig {
	t.Helper()

	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_S3_ENDPOINT not set")
	}

	bucket := os.Getenv("TEST_S3_BUCKET")
	if bucket == "" {
		t.Skip("TEST_S3_BUCKET not set")
	}

	region := os.Getenv("TEST_S3_REGION")
	if region == "" {
		region = "us-east-1"
	}

	return models.UploadConfig{
		Provider:        models.UploadProviderS3,
		Bucket:          bucket,
		Prefix:          "gopgbackup-integration",
		Compression:     models.CompressionZstd,
		Region:          region,
		Endpoint:        endpoint,
		AccessKeyID:     os.Getenv("TEST_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("TEST_S3_SECRET_ACCESS_KEY"),
		UsePathStyle:    true,
	}
}

func TestUploadS3_Integration(t *testing.T) {
	cfg := getS3Config(t)

	artifact := filepath.Join(t.TempDir(), "backup.sql")
	require.NoError(t, os.WriteFile(artifact, []byte("SELECT 1;\n"), 0o600))

	svc := upload.New(testLogger())

	result, err := svc.Upload(context.Background(), cfg, artifact)

	require.NoError(t, err)
	require.Nil(t, result.Error)
	assert.Equal(t, "gopgbackup-integration/backup.sql.zst", result.Key)
	assert.Equal(t, "s3://"+cfg.Bucket+"/gopgbackup-integration/backup.sql.zst", result.Location)
	assert.Equal(t, int64(10), result.SizeBytes)
}
