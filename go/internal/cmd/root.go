package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcdev12/raidtimer/go/internal/config"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg *config.Config

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:           "raidtimer",
	Short:         "Shared raid timer sync server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format = logFormat
		}
		if err := applyServeFlags(cmd, loaded); err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		if err := config.SetupLogging(loaded.Log); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console or json)")
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
