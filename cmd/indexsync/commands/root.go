// Package commands implements the indexsync CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maildrop/indexsync/internal/logger"
	"github.com/maildrop/indexsync/pkg/config"
	"github.com/maildrop/indexsync/pkg/metrics"
)

var (
	cfgFile string
	cfg     *config.Config

	versionStr = "dev"
	commitStr  = "none"
	dateStr    = "unknown"
)

// SetVersionInfo receives the build-time version variables from main.
func SetVersionInfo(version, commit, date string) {
	versionStr, commitStr, dateStr = version, commit, date
}

var rootCmd = &cobra.Command{
	Use:   "indexsync",
	Short: "Inspect and sync mailbox index files",
	Long: `indexsync maintains mailbox index files: compact binary indexes
advanced by replaying a transaction log. It can inspect an index or a log,
replay a log into an index, and repair a broken index.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := logger.Init(logger.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		}); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		if cfg.Metrics.Enabled {
			metrics.InitRegistry()
		}
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"path to config file (YAML)")
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(dumpLogCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(fsckCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("indexsync %s (commit %s, built %s)\n", versionStr, commitStr, dateStr)
	},
}
