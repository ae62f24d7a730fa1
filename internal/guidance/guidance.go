// Package guidance holds the operator-facing texts: what to install when no
// strategy is usable and how to restore a finished backup.
package guidance

import (
	"fmt"
	"strings"

	"github.com/fgeck/gopgbackup/internal/models"
)

// DockerDesktopURL is where the container runtime is recommended from.
const DockerDesktopURL = "https://www.docker.com/products/docker-desktop/"

// PostgresWindowsURL is the client download page for Windows.
const PostgresWindowsURL = "https://www.postgresql.org/download/windows/"

// PasswordPlaceholder stands in for the password in restore instructions.
const PasswordPlaceholder = "<password>"

const separator = "=================================================="

// InstallInstructions returns the static text shown when no strategy is
// available on platform p.
func InstallInstructions(p models.Platform) string {
	var b strings.Builder
	b.WriteString("Install one of the following:\n")

	switch p {
	case models.PlatformWindows:
		fmt.Fprintf(&b, "1. Install Docker Desktop: %s", DockerDesktopURL)
	case models.PlatformMacOS:
		b.WriteString("1. Install the PostgreSQL client: brew install postgresql\n")
		fmt.Fprintf(&b, "2. Install Docker Desktop: %s", DockerDesktopURL)
	default:
		b.WriteString("1. Install the PostgreSQL client: sudo apt-get install postgresql-client\n")
		fmt.Fprintf(&b, "2. Install Docker Desktop: %s", DockerDesktopURL)
	}

	return b.String()
}

// ContainerRestoreInstructions is shown when a container restore has no
// strategy. Only the container runtime can serve it; scriptPath is where the
// bundled restore script is looked up.
func ContainerRestoreInstructions(scriptPath string) string {
	var b strings.Builder
	b.WriteString("Restoring into a container requires the Docker container runtime:\n")
	fmt.Fprintf(&b, "1. Install Docker Desktop and make sure it is running: %s", DockerDesktopURL)
	if scriptPath != "" {
		fmt.Fprintf(&b, "\nThe restore script is looked up at: %s", scriptPath)
	}
	return b.String()
}

// RestoreClientHint explains how to get psql when it could not be started.
func RestoreClientHint(p models.Platform) string {
	switch p {
	case models.PlatformWindows:
		return "the psql command was not found; install the PostgreSQL client from " + PostgresWindowsURL
	case models.PlatformMacOS:
		return "the psql command was not found; install it with: brew install postgresql"
	default:
		return "the psql command was not found; install it with: sudo apt-get install postgresql-client"
	}
}

// ToolStartHint explains what to do when the tool chosen for op could not
// be started at all.
func ToolStartHint(p models.Platform, s models.Strategy, op models.OperationKind) string {
	switch {
	case s.Kind == models.StrategyContainerizedTool:
		return "the container runtime could not be started; make sure Docker Desktop is installed and running: " + DockerDesktopURL
	case s.Kind == models.StrategyPlatformScript:
		return "the restore script could not be started; check that it exists and that its interpreter is installed"
	case op != models.OperationBackup:
		return RestoreClientHint(p)
	case p == models.PlatformMacOS:
		return "pg_dump could not be started; install it with: brew install postgresql"
	default:
		return "pg_dump could not be started; install it with: sudo apt-get install postgresql-client"
	}
}

// RestoreInstructions returns the commands an operator can run to load
// artifact back into the configured container. When the backup ran with the
// local client, a direct psql option against src is listed as well. The
// password is never included.
func RestoreInstructions(
	p models.Platform,
	s models.Strategy,
	src models.ConnectionDescriptor,
	artifact string,
	target models.RestoreDefaults,
) []string {
	lines := []string{separator, "RESTORE INSTRUCTIONS", separator}

	dockerExec := fmt.Sprintf("docker exec -i %s psql -U %s -d %s", target.ContainerName, target.Username, target.DatabaseName)

	if p == models.PlatformWindows {
		file := quotePowerShell(artifact)
		return append(lines,
			"PowerShell:",
			fmt.Sprintf("Get-Content -Raw %s -Encoding UTF8 | %s", file, dockerExec),
			"Or with the bundled script:",
			fmt.Sprintf(`.\restore_database.ps1 -BackupFile %s`, file),
		)
	}

	file := quoteShell(artifact)
	option := 1

	if p == models.PlatformMacOS || s.Kind == models.StrategyLocalTool {
		lines = append(lines,
			fmt.Sprintf("Option %d - with a local PostgreSQL client:", option),
			fmt.Sprintf("PGPASSWORD=%s psql -h %s -p %d -U %s -d %s < %s",
				PasswordPlaceholder, src.Host, src.Port, src.Username, src.Database, file),
		)
		option++
	}

	lines = append(lines,
		fmt.Sprintf("Option %d - with Docker:", option),
		fmt.Sprintf("cat %s | %s", file, dockerExec),
	)

	if p == models.PlatformMacOS {
		lines = append(lines,
			"To fix encoding problems:",
			fmt.Sprintf("iconv -f UTF-8 -t UTF-8 %s | %s", file, dockerExec),
		)
	}

	return lines
}

func quoteShell(path string) string {
	if !strings.ContainsAny(path, " \t'\"$`\\") {
		return path
	}
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

func quotePowerShell(path string) string {
	if !strings.ContainsAny(path, " \t'") {
		return path
	}
	return "'" + strings.ReplaceAll(path, "'", "''") + "'"
}
