package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/restruct/pkg/restruct/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage restruct configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/restruct/config.yaml (if set)
  2. ~/.config/restruct/config.yaml

Environment variables can override config file settings using the RESTRUCT_ prefix:
  RESTRUCT_FORMAT=json
  RESTRUCT_WORKERS=8
  RESTRUCT_GUARD=false`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings from all sources.`,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("Config file: %s\n\n", used)
	} else {
		fmt.Printf("Config file: (none, using defaults)\n\n")
	}

	fmt.Printf("format:  %s\n", cfg.Format)
	fmt.Printf("workers: %d\n", cfg.Workers)
	fmt.Printf("guard:   %t\n", cfg.Guard)
	fmt.Printf("exclude: %s\n", strings.Join(cfg.Exclude, ", "))
	fmt.Printf("backup:\n")
	fmt.Printf("  dir:            %s\n", orDefault(cfg.Backup.Dir, "(xdg state dir)"))
	fmt.Printf("  retention_days: %d\n", cfg.Backup.RetentionDays)
	fmt.Printf("history:\n")
	fmt.Printf("  enabled:        %t\n", cfg.History.Enabled)
	fmt.Printf("  path:           %s\n", orDefault(cfg.History.Path, "(xdg data dir)"))
	fmt.Printf("  retention_days: %d\n", cfg.History.RetentionDays)
	fmt.Printf("cache:\n")
	fmt.Printf("  enabled: %t\n", cfg.Cache.Enabled)
	fmt.Printf("  path:    %s\n", orDefault(cfg.Cache.Path, "(xdg cache dir)"))
	fmt.Printf("logging:\n")
	fmt.Printf("  level: %s\n", cfg.Logging.Level)
	fmt.Printf("  path:  %s\n", orDefault(cfg.Logging.Path, "(xdg state dir)"))

	return nil
}

// orDefault substitutes a placeholder for empty values.
func orDefault(value, placeholder string) string {
	if value == "" {
		return placeholder
	}
	return value
}

// runConfigInit creates a default configuration file.
func runConfigInit(cmd *cobra.Command, args []string) error {
	dir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("determine config directory: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		printInfo("Config file already exists: %s", path)
		return nil
	}

	if err := config.WriteDefault(); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	printInfo("Created %s", path)
	return nil
}

// runConfigPath prints the configuration file location.
func runConfigPath(cmd *cobra.Command, args []string) error {
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Println(used)
		return nil
	}

	dir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("determine config directory: %w", err)
	}
	fmt.Println(filepath.Join(dir, "config.yaml"))
	return nil
}
