// Package models contains the data structures used throughout gopgbackup.
package models

import "time"

// AppConfig holds the complete configuration handed to the orchestrators.
type AppConfig struct {
	Tools       ToolsConfig
	Backup      BackupDefaults
	Restore     RestoreDefaults
	Scripts     ScriptsConfig
	Metrics     MetricsConfig
	Wake        *WakeConfig        // nil if not configured
	SSHShutdown *SSHShutdownConfig // nil if not configured
	Telegram    *TelegramConfig    // nil if not configured
	Upload      *UploadConfig      // nil if not configured
}

// ToolsConfig names the external executables and how they are probed.
type ToolsConfig struct {
	DumpClient       string // pg_dump
	RestoreClient    string // psql
	ContainerRuntime string // docker
	Image            string // image used by the containerized dump
	ProbeTimeout     time.Duration
}

// BackupDefaults holds the fallback values for a backup run.
type BackupDefaults struct {
	ConnectionURL string
	Output        string // final artifact path
}

// RestoreDefaults holds the fallback values for both restore targets.
type RestoreDefaults struct {
	ContainerName       string
	DatabaseName        string
	Username            string
	RemoteConnectionURL string
}

// ScriptsConfig locates the platform restore scripts.
type ScriptsConfig struct {
	Dir string // defaults to the executable's directory
}

// MetricsConfig controls the Prometheus textfile output.
type MetricsConfig struct {
	Textfile string // empty disables metrics output
}
