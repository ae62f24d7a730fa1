package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fgeck/gopgbackup/internal/config"
	"github.com/fgeck/gopgbackup/internal/connection"
	"github.com/fgeck/gopgbackup/internal/models"
	"github.com/fgeck/gopgbackup/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without executing any backup or restore.`,
	RunE:  validateConfig,
}

var testSSH bool

func init() {
	validateCmd.Flags().BoolVar(&testSSH, "test-ssh", false, "connect to the ssh_shutdown host and run a harmless command")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return fmt.Errorf("config file is required")
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Tools:")
	fmt.Printf("  Dump client: %s\n", cfg.Tools.DumpClient)
	fmt.Printf("  Restore client: %s\n", cfg.Tools.RestoreClient)
	fmt.Printf("  Container runtime: %s\n", cfg.Tools.ContainerRuntime)
	fmt.Printf("  Image: %s\n", cfg.Tools.Image)
	fmt.Printf("  Probe timeout: %s\n", cfg.Tools.ProbeTimeout)
	fmt.Println()
	fmt.Println("Backup:")
	fmt.Printf("  Connection: %s\n", maskedURL(cfg.Backup.ConnectionURL))
	fmt.Printf("  Output: %s\n", cfg.Backup.Output)
	fmt.Println()
	fmt.Println("Restore:")
	fmt.Printf("  Container: %s\n", cfg.Restore.ContainerName)
	fmt.Printf("  Database: %s\n", cfg.Restore.DatabaseName)
	fmt.Printf("  Username: %s\n", cfg.Restore.Username)
	fmt.Printf("  Remote connection: %s\n", maskedURL(cfg.Restore.RemoteConnectionURL))
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Wake-on-LAN: %v\n", cfg.Wake != nil)
	fmt.Printf("  SSH Shutdown: %v\n", cfg.SSHShutdown != nil)
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)
	fmt.Printf("  Upload: %v\n", cfg.Upload != nil)
	fmt.Printf("  Metrics textfile: %v\n", cfg.Metrics.Textfile != "")

	if cfg.Wake != nil {
		fmt.Println()
		fmt.Println("Wake-on-LAN Configuration:")
		fmt.Printf("  MAC Address: %s\n", cfg.Wake.MACAddress)
		fmt.Printf("  Broadcast IP: %s\n", cfg.Wake.BroadcastIP)
		fmt.Printf("  Timeout: %s\n", cfg.Wake.Timeout)
	}

	if cfg.SSHShutdown != nil {
		host := cfg.SSHShutdown.Host
		if host == "" {
			host = "(database host)"
		}
		fmt.Println()
		fmt.Println("SSH Shutdown Configuration:")
		fmt.Printf("  Host: %s\n", host)
		fmt.Printf("  Port: %d\n", cfg.SSHShutdown.Port)
		fmt.Printf("  Username: %s\n", cfg.SSHShutdown.Username)
		fmt.Printf("  OS: %s\n", cfg.SSHShutdown.OS)
		fmt.Printf("  Shutdown Delay: %d minute(s)\n", cfg.SSHShutdown.ShutdownDelay)

		if testSSH {
			if err := checkSSH(*cfg.SSHShutdown, cfg.Backup.ConnectionURL); err != nil {
				return err
			}
		}
	}

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	if cfg.Upload != nil {
		fmt.Println()
		fmt.Println("Upload Configuration:")
		fmt.Printf("  Provider: %s\n", cfg.Upload.Provider)
		fmt.Printf("  Bucket: %s\n", cfg.Upload.Bucket)
		fmt.Printf("  Prefix: %s\n", cfg.Upload.Prefix)
		fmt.Printf("  Compression: %s\n", cfg.Upload.Compression)
	}

	return nil
}

func checkSSH(cfg models.SSHShutdownConfig, backupURL string) error {
	if cfg.Host == "" {
		// Fall back to the backup database host, as the runner does.
		desc, err := connection.ParsePostgres(backupURL)
		if err != nil {
			return fmt.Errorf("ssh_shutdown.host is empty and the backup URL is invalid: %w", err)
		}
		cfg.Host = desc.Host
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := ssh.New(log.Logger).TestConnection(ctx, cfg)
	if err == nil {
		err = result.Error
	}
	if err != nil {
		log.Error().Err(err).Str("host", cfg.Host).Msg("SSH connection test failed")
		return err
	}

	fmt.Printf("  Connection test: %s\n", strings.TrimSpace(result.Output))
	return nil
}

// maskedURL renders a connection URL without its password.
func maskedURL(raw string) string {
	desc, err := connection.ParsePostgres(raw)
	if err != nil {
		return fmt.Sprintf("(invalid: %v)", err)
	}
	return desc.String()
}
