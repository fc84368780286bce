package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/threshcorder/cmd/config"
	"github.com/tphakala/threshcorder/cmd/devices"
	"github.com/tphakala/threshcorder/cmd/episodes"
	"github.com/tphakala/threshcorder/cmd/record"
	"github.com/tphakala/threshcorder/internal/buildinfo"
	"github.com/tphakala/threshcorder/internal/conf"
	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
)

// exitCoder is implemented by errors that choose the process exit code.
type exitCoder interface {
	ExitCode() int
}

// RootCommand creates and returns the root command
func RootCommand(build *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           conf.AppName,
		Short:         "Threshold-triggered audio recorder",
		Version:       build.GetVersion(),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(
		record.Command(build),
		devices.Command(),
		config.Command(),
		episodes.Command(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		settings, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		return initLogging(settings)
	}

	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute(build *buildinfo.Context) int {
	err := RootCommand(build).Execute()
	if closeErr := logger.Global().Close(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing log file: %v\n", closeErr)
	}
	if err == nil {
		return 0
	}

	var coded exitCoder
	if errors.As(err, &coded) {
		if errors.Unwrap(err) != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return coded.ExitCode()
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

// initLogging installs the global logger described by settings.
func initLogging(settings *conf.Settings) error {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}

	cl, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search the standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
