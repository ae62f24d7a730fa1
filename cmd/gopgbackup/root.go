package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fgeck/gopgbackup/internal/config"
	"github.com/fgeck/gopgbackup/internal/models"
	"github.com/fgeck/gopgbackup/internal/sink"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	verbose    bool
	quiet      bool
	jsonOutput bool
	noColor    bool
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "gopgbackup",
	Short: "Back up and restore PostgreSQL databases with whatever tools are installed",
	Long: `gopgbackup backs up a PostgreSQL database to a plain SQL file and restores
such files into a local container or a remote server.

It picks the execution strategy from the tools it finds on this machine:
  - a local pg_dump / psql client
  - pg_dump inside a throwaway postgres container
  - the restore scripts shipped next to the binary

Optional steps: Wake-on-LAN before, upload to S3/GCS, SSH shutdown and a
Telegram summary after an operation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLogFile()
	},
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (defaults are used when omitted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also append every progress line to this file as JSON")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(validateCmd)
}

var auditFile *os.File

func setupLogging() error {
	// Set output format
	if jsonOutput {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
			NoColor:    noColor || !sink.ColorSupported(os.Stdout),
		}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set log level
	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		auditFile = f
	}

	return nil
}

func closeLogFile() {
	if auditFile != nil {
		_ = auditFile.Close()
		auditFile = nil
	}
}

// operatorSink builds the sink the orchestrators write to. In JSON mode the
// lines become log events; otherwise they are printed to the terminal.
func operatorSink() sink.Sink {
	var out sink.Sink
	if jsonOutput {
		out = sink.NewLogger(log.Logger)
	} else {
		out = sink.NewConsole(os.Stdout, !noColor && sink.ColorSupported(os.Stdout))
	}
	if quiet {
		out = sink.FailuresOnly(out)
	}

	if auditFile != nil {
		// The audit trail ignores the global level so quiet runs are still recorded.
		audit := zerolog.New(auditFile).Level(zerolog.TraceLevel).With().Timestamp().Logger()
		out = sink.Multi(out, sink.NewLogger(audit))
	}

	return out
}

// loadConfig reads --config, or the defaults when it is not set.
func loadConfig() (*models.AppConfig, error) {
	cfg, err := config.NewParser().Load(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, stopping")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
