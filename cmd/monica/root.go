package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/monica/internal/config"
)

var (
	configPath string
	cfg        *config.Config
	logFile    *os.File
)

var rootCmd = &cobra.Command{
	Use:   "monica",
	Short: "Task chaining & context suggestion engine",
	Long: `Monica reacts to completed tasks by creating their successors exactly
once, and periodically suggests an open task for an upcoming free window.

Completions arrive through the webhook server (Microsoft Graph change
notifications or direct JSON), the file watcher, or 'monica complete'.
Suggestions are produced by heartbeats: 'monica tick' or POST /heartbeat.

Configuration is read from ~/.config/monica/config.yaml, then .monica.yaml
in the current directory or a parent, then MONICA_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFromPath(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return setupLogging(cfg.Logging.File)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: XDG config plus .monica.yaml)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(respondCmd)
	rootCmd.AddCommand(suggestionsCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(budgetCmd)
	rootCmd.AddCommand(renewCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(dashCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// setupLogging sends the standard logger to path when set.
func setupLogging(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logFile = f
	log.SetOutput(f)
	return nil
}
