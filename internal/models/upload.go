package models

import "time"

// Upload providers.
const (
	UploadProviderS3  = "s3"
	UploadProviderGCS = "gcs"
)

// Upload compression codecs.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// UploadConfig holds offsite-copy settings for finished backups.
type UploadConfig struct {
	Provider    string
	Bucket      string
	Prefix      string
	Compression string

	// S3
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool

	// GCS
	CredentialsJSON string
}

// UploadResult holds the result of an artifact upload.
type UploadResult struct {
	Key       string
	Location  string
	SizeBytes int64 // bytes read from the artifact
	Duration  time.Duration
	Error     error
}
