package strategy

import (
	"fmt"
	"strconv"

	"github.com/fgeck/gopgbackup/internal/models"
)

// PasswordEnv is the variable the PostgreSQL client tools read the password from.
const PasswordEnv = "PGPASSWORD"

// DumpFlags are appended to every pg_dump invocation.
var DumpFlags = []string{
	"-c",
	"--if-exists",
	"--no-owner",
	"--no-privileges",
	"--encoding=UTF8",
}

// containerDumpBinary is the dump tool inside the container image.
const containerDumpBinary = "pg_dump"

// containerRestoreBinary is the restore client inside the target container.
const containerRestoreBinary = "psql"

// BackupCommand builds the dump invocation for s. The dump lands in tmpPath
// either through pg_dump's -f flag (local) or through captured stdout
// (container).
func BackupCommand(s models.Strategy, tools models.ToolsConfig, src models.ConnectionDescriptor, tmpPath string) (models.Command, error) {
	switch s.Kind {
	case models.StrategyLocalTool:
		args := append(connectionArgs(src), DumpFlags...)
		args = append(args, "-f", tmpPath)
		return models.Command{
			Name:    tools.DumpClient,
			Args:    args,
			Env:     passwordEnv(src.Password),
			Secrets: []string{src.Password},
			Mode:    models.OutputStream,
		}, nil

	case models.StrategyContainerizedTool:
		// -e without a value hands the variable from our overlay to the
		// container, so the password never shows up in argv.
		args := []string{"run", "--rm", "-e", PasswordEnv, tools.Image, containerDumpBinary}
		args = append(args, connectionArgs(src)...)
		args = append(args, DumpFlags...)
		return models.Command{
			Name:       tools.ContainerRuntime,
			Args:       args,
			Env:        passwordEnv(src.Password),
			Secrets:    []string{src.Password},
			StdoutFile: tmpPath,
			Mode:       models.OutputCapture,
		}, nil

	default:
		return models.Command{}, fmt.Errorf("strategy %s cannot run a backup", s)
	}
}

// ContainerRestoreCommand builds the invocation restoring req into a local
// container. scriptPath is used only for the platform script strategy.
func ContainerRestoreCommand(s models.Strategy, tools models.ToolsConfig, req models.ContainerRestoreRequest, scriptPath string) (models.Command, error) {
	switch s.Kind {
	case models.StrategyPlatformScript:
		if s.Script == models.ScriptPowerShell {
			return models.Command{
				Name: "powershell",
				Args: append(powerShellPrefix(scriptPath),
					"-BackupFile", req.BackupFile,
					"-ContainerName", req.ContainerName,
					"-DatabaseName", req.DatabaseName,
					"-Username", req.Username,
				),
				Mode: models.OutputStream,
			}, nil
		}
		return models.Command{
			Name: scriptPath,
			Args: []string{
				"-f", req.BackupFile,
				"-c", req.ContainerName,
				"-d", req.DatabaseName,
				"-u", req.Username,
			},
			Mode: models.OutputStream,
		}, nil

	case models.StrategyContainerizedTool:
		return models.Command{
			Name: tools.ContainerRuntime,
			Args: []string{
				"exec", "-i", req.ContainerName,
				containerRestoreBinary, "-U", req.Username, "-d", req.DatabaseName,
			},
			StdinFile: req.BackupFile,
			Mode:      models.OutputStream,
		}, nil

	default:
		return models.Command{}, fmt.Errorf("strategy %s cannot restore into a container", s)
	}
}

// RemoteRestoreCommand builds the invocation restoring backupFile onto the
// server described by target. rawURL is what the remote script receives.
func RemoteRestoreCommand(
	s models.Strategy,
	tools models.ToolsConfig,
	target models.ConnectionDescriptor,
	rawURL string,
	backupFile string,
	scriptPath string,
) (models.Command, error) {
	secrets := []string{target.Password}

	switch s.Kind {
	case models.StrategyPlatformScript:
		if s.Script == models.ScriptPowerShell {
			return models.Command{
				Name: "powershell",
				Args: append(powerShellPrefix(scriptPath),
					"-BackupFile", backupFile,
					"-ConnectionURL", rawURL,
				),
				Secrets: secrets,
				Mode:    models.OutputStream,
			}, nil
		}
		return models.Command{
			Name:    scriptPath,
			Args:    []string{"-f", backupFile, "-c", rawURL},
			Secrets: secrets,
			Mode:    models.OutputStream,
		}, nil

	case models.StrategyLocalTool:
		return models.Command{
			Name:    tools.RestoreClient,
			Args:    append(connectionArgs(target), "-f", backupFile),
			Env:     passwordEnv(target.Password),
			Secrets: secrets,
			Mode:    models.OutputStream,
		}, nil

	default:
		return models.Command{}, fmt.Errorf("strategy %s cannot restore to a remote server", s)
	}
}

func connectionArgs(d models.ConnectionDescriptor) []string {
	return []string{
		"-h", d.Host,
		"-p", strconv.Itoa(d.Port),
		"-U", d.Username,
		"-d", d.Database,
	}
}

func passwordEnv(password string) map[string]string {
	if password == "" {
		return nil
	}
	return map[string]string{PasswordEnv: password}
}

func powerShellPrefix(scriptPath string) []string {
	return []string{"-ExecutionPolicy", "Bypass", "-File", scriptPath}
}
