package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/audio-annotator/cmd/replay"
	"github.com/tphakala/audio-annotator/cmd/serve"
	"github.com/tphakala/audio-annotator/cmd/suggest"
	"github.com/tphakala/audio-annotator/internal/conf"
	"github.com/tphakala/audio-annotator/internal/logger"
	"github.com/tphakala/audio-annotator/internal/telemetry"
)

const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. Subcommands share
// settings, which is filled from the config file before any of them runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var (
		configFile string
		debug      bool
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:           "annotator",
		Short:         "Audio annotation workspace and reference store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	rootCmd.AddCommand(
		serve.Command(settings),
		replay.Command(settings),
		suggest.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		version, buildDate := settings.Version, settings.BuildDate
		*settings = *loaded
		settings.Version, settings.BuildDate = version, buildDate

		if cmd.Flags().Changed("debug") {
			settings.Debug = debug
		}
		if settings.Debug {
			settings.Logging.DefaultLevel = "debug"
		}

		central, err = logger.NewCentralLogger(&settings.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logger.SetGlobal(central)

		if _, err := telemetry.Init(&settings.Sentry, settings.Version, telemetry.Options{}); err != nil {
			// Error reporting is optional
			central.Module("main").Warn("error reporting disabled", logger.Error(err))
		}
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		telemetry.Shutdown(telemetryFlushTimeout)
		if central != nil {
			return central.Close()
		}
		return nil
	}

	return rootCmd
}
