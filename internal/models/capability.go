package models

// Platform is the operating-system family the tool runs on.
type Platform string

// Supported platforms.
const (
	PlatformWindows Platform = "windows"
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformOther   Platform = "other"
)

// DisplayName returns a human-readable platform name.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformWindows:
		return "Windows"
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	default:
		return "Other"
	}
}

// CapabilitySet is the result of probing the host for tools.
// It is computed once per operation and never cached across operations.
type CapabilitySet struct {
	Platform              Platform
	HasContainerRuntime   bool
	HasLocalDumpClient    bool
	HasLocalRestoreClient bool

	// RestoreScriptAvailable is filled by the restore orchestrator after it
	// checked the script location; the probe leaves it false.
	RestoreScriptAvailable bool
}

// OperationKind identifies what the selector is choosing a strategy for.
type OperationKind string

// Operation kinds.
const (
	OperationBackup           OperationKind = "backup"
	OperationRestoreContainer OperationKind = "restore_container"
	OperationRestoreRemote    OperationKind = "restore_remote"
)
