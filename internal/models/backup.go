package models

import "time"

// OperationState is a step of the backup/restore state machine.
type OperationState string

// Operation states, in the order they are reached.
const (
	StateIdle              OperationState = "idle"
	StateParsingURL        OperationState = "parsing_url"
	StatePreflight         OperationState = "preflight"
	StateProbingTools      OperationState = "probing_tools"
	StateSelectingStrategy OperationState = "selecting_strategy"
	StateRunning           OperationState = "running"
	StateSucceeded         OperationState = "succeeded"
	StateFailed            OperationState = "failed"
)

// BackupArtifact tracks the file produced by a backup.
type BackupArtifact struct {
	TemporaryPath string
	FinalPath     string
	DatabaseName  string
	Timestamp     time.Time
	SizeBytes     int64
}

// BackupRequest holds the inputs of one backup operation.
type BackupRequest struct {
	ConnectionURL string
	Output        string // final artifact path
}

// BackupResult holds everything a backup operation produced.
type BackupResult struct {
	State        OperationState
	Source       ConnectionDescriptor
	Capabilities CapabilitySet
	Strategy     Strategy
	Outcome      *ProcessOutcome
	Artifact     *BackupArtifact
	Instructions []string
	Duration     time.Duration
}
