package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fgeck/gopgbackup/internal/guidance"
	"github.com/fgeck/gopgbackup/internal/models"
	"github.com/fgeck/gopgbackup/internal/services/probe"
	"github.com/fgeck/gopgbackup/internal/services/restore"
	"github.com/fgeck/gopgbackup/internal/strategy"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Show the detected tools and the strategy each operation would use",
	Long:  `Probe the configured tools without running any backup or restore.`,
	RunE:  runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	caps := probe.New(log.Logger, cfg.Tools).Probe(ctx)

	scriptsDir := cfg.Scripts.Dir
	if scriptsDir == "" {
		scriptsDir = restore.DefaultScriptsDir()
	}

	fmt.Printf("Platform: %s\n", caps.Platform.DisplayName())
	fmt.Println()
	fmt.Println("Tools:")
	fmt.Printf("  %s: %s\n", cfg.Tools.DumpClient, found(caps.HasLocalDumpClient))
	fmt.Printf("  %s: %s\n", cfg.Tools.RestoreClient, found(caps.HasLocalRestoreClient))
	fmt.Printf("  %s: %s\n", cfg.Tools.ContainerRuntime, found(caps.HasContainerRuntime))
	fmt.Println()
	fmt.Println("Strategies:")

	noBackup := false
	for _, op := range []models.OperationKind{
		models.OperationBackup,
		models.OperationRestoreContainer,
		models.OperationRestoreRemote,
	} {
		opCaps := caps
		if name := restore.ScriptName(op, strategy.ScriptKindFor(caps.Platform)); name != "" {
			opCaps.RestoreScriptAvailable = isFile(filepath.Join(scriptsDir, name))
		}

		s, err := strategy.Select(opCaps, op)
		if err != nil {
			fmt.Printf("  %s: none\n", op)
			noBackup = noBackup || op == models.OperationBackup
			continue
		}
		fmt.Printf("  %s: %s\n", op, s)
	}

	if noBackup {
		fmt.Println()
		fmt.Println(guidance.InstallInstructions(caps.Platform))
	}

	return nil
}

func found(ok bool) string {
	if ok {
		return "found"
	}
	return "not found"
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
