package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/restruct/pkg/restruct/backup"
	"github.com/jamesainslie/restruct/pkg/restruct/config"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Manage backup sessions",
	Long: `Manage the backup sessions created during plan execution.

A session normally removes itself once post-conditions pass. Sessions
left behind by interrupted runs or failed validation are orphans and
safe to delete once inspected.`,
}

var backupsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove orphaned backup sessions",
	Long:  `Delete backup sessions older than the retention period.`,
	RunE:  runBackupsClean,
}

func init() {
	backupsCmd.AddCommand(backupsCleanCmd)
	rootCmd.AddCommand(backupsCmd)
}

// runBackupsClean purges sessions past the retention window.
func runBackupsClean(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	dir := cfg.Backup.Dir
	if dir == "" {
		dir = backup.DefaultDir()
	}

	maxAge := time.Duration(cfg.Backup.RetentionDays) * 24 * time.Hour
	removed, err := backup.CleanOrphans(dir, maxAge)
	if err != nil {
		return fmt.Errorf("clean backups: %w", err)
	}

	if len(removed) == 0 {
		printInfo("No orphaned backup sessions found.")
		return nil
	}

	for _, session := range removed {
		printInfo("Removed %s", session)
	}
	printInfo("Removed %d orphaned backup sessions.", len(removed))
	return nil
}
