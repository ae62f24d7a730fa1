package main

import (
	"github.com/fgeck/gopgbackup/internal/models"
	"github.com/fgeck/gopgbackup/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	restoreFile      string
	restoreContainer string
	restoreDatabase  string
	restoreUser      string
	restoreURL       string
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a plain SQL backup",
}

var restoreContainerCmd = &cobra.Command{
	Use:   "container",
	Short: "Restore a backup into a running local container",
	Long: `Restore a backup into a running local postgres container.

The restore script next to the binary (restore_database.ps1 on Windows,
restore_database.sh elsewhere) is used when present, otherwise the file is
piped into "docker exec -i <container> psql".`,
	Example: `  gopgbackup restore container -f backup.sql --container nexus_db --database NexusDB`,
	RunE:    runRestoreContainer,
}

var restoreRemoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Restore a backup directly against a server",
	Long: `Restore a backup directly against a PostgreSQL server.

The restore script next to the binary (restore_remote.ps1 on Windows,
restore_remote.sh elsewhere) is used when present, otherwise psql is run
against the server.`,
	Example: `  gopgbackup restore remote -f backup.sql --url postgresql://postgres:secret@db:5432/app`,
	RunE:    runRestoreRemote,
}

func init() {
	for _, c := range []*cobra.Command{restoreContainerCmd, restoreRemoteCmd} {
		c.Flags().StringVarP(&restoreFile, "file", "f", "", "backup file to restore (required)")
		_ = c.MarkFlagRequired("file")
	}

	restoreContainerCmd.Flags().StringVar(&restoreContainer, "container", "", "container name (overrides restore.container_name)")
	restoreContainerCmd.Flags().StringVar(&restoreDatabase, "database", "", "database name (overrides restore.database_name)")
	restoreContainerCmd.Flags().StringVar(&restoreUser, "user", "", "database user (overrides restore.username)")

	restoreRemoteCmd.Flags().StringVarP(&restoreURL, "url", "u", "", "connection URL (overrides restore.remote_connection_url)")

	restoreCmd.AddCommand(restoreContainerCmd)
	restoreCmd.AddCommand(restoreRemoteCmd)
}

func runRestoreContainer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req := models.ContainerRestoreRequest{
		BackupFile:    restoreFile,
		ContainerName: cfg.Restore.ContainerName,
		DatabaseName:  cfg.Restore.DatabaseName,
		Username:      cfg.Restore.Username,
	}
	if cmd.Flags().Changed("container") {
		req.ContainerName = restoreContainer
	}
	if cmd.Flags().Changed("database") {
		req.DatabaseName = restoreDatabase
	}
	if cmd.Flags().Changed("user") {
		req.Username = restoreUser
	}

	ctx, cancel := signalContext()
	defer cancel()

	runnerSvc := runner.New(log.Logger, *cfg)
	request := runner.Request{Operation: models.OperationRestoreContainer, Container: &req}
	if _, err := runnerSvc.Run(ctx, request, operatorSink()); err != nil {
		log.Error().Err(err).Msg("restore failed")
		return err
	}

	return nil
}

func runRestoreRemote(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req := models.RemoteRestoreRequest{
		BackupFile:    restoreFile,
		ConnectionURL: cfg.Restore.RemoteConnectionURL,
	}
	if cmd.Flags().Changed("url") {
		req.ConnectionURL = restoreURL
	}

	ctx, cancel := signalContext()
	defer cancel()

	runnerSvc := runner.New(log.Logger, *cfg)
	request := runner.Request{Operation: models.OperationRestoreRemote, Remote: &req}
	if _, err := runnerSvc.Run(ctx, request, operatorSink()); err != nil {
		log.Error().Err(err).Msg("restore failed")
		return err
	}

	return nil
}
