package models

import "time"

// ContainerRestoreRequest restores a backup into a running local container.
type ContainerRestoreRequest struct {
	BackupFile    string
	ContainerName string
	DatabaseName  string
	Username      string
}

// RemoteRestoreRequest restores a backup directly against a server.
type RemoteRestoreRequest struct {
	BackupFile    string
	ConnectionURL string
}

// RestoreResult holds everything a restore operation produced.
type RestoreResult struct {
	Operation    OperationKind
	State        OperationState
	Target       ConnectionDescriptor // remote restores only
	Capabilities CapabilitySet
	Strategy     Strategy
	ScriptPath   string
	Outcome      *ProcessOutcome
	Duration     time.Duration
}
