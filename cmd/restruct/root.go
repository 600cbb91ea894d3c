package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/restruct/pkg/restruct/config"
	"github.com/jamesainslie/restruct/pkg/restruct/logging"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "restruct",
		Short: "Safe bulk repository refactoring",
		Long: `Restruct applies ordered batches of file moves, renames, text
replacements, and empty-directory deletions to a repository tree.

Every plan is validated before anything touches the filesystem, every
mutation is shadowed by a backup, and any failure restores the tree to
its pre-plan state. Post-conditions are verified after execution.

Examples:
  restruct apply plan.yaml            # Execute a plan
  restruct apply -d plan.yaml         # Preview without mutating
  restruct verify checks.yaml         # Run checks alone
  restruct verify --from-plan p.yaml  # Derive checks from a plan
  restruct history                    # View past executions
  restruct config show                # Show configuration`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/restruct/config.yaml)")
	rootCmd.PersistentFlags().StringP("format", "o", "", "output format (pretty, plain, json, yaml)")
	rootCmd.PersistentFlags().IntP("workers", "w", 0, "validation worker count (0=auto)")
	rootCmd.PersistentFlags().StringSliceP("exclude", "e", nil, "exclude patterns for validation scans")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	// Bind flags to viper
	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))
	_ = viper.BindPFlag("exclude", rootCmd.PersistentFlags().Lookup("exclude"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			viper.AddConfigPath(filepath.Join(xdgConfigHome, "restruct"))
		}

		homeDir, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(homeDir, ".config", "restruct"))
		}
	}

	viper.SetEnvPrefix("RESTRUCT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()
}

// loadConfig loads the merged configuration and prepares logging from it.
// Command-line flags take precedence over file and environment values.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if format := viper.GetString("format"); format != "" {
		cfg.Format = format
	}
	if workers := viper.GetInt("workers"); workers > 0 {
		cfg.Workers = workers
	}
	if exclude := viper.GetStringSlice("exclude"); len(exclude) > 0 {
		cfg.Exclude = exclude
	}

	logCfg := logging.Config{
		Level:      cfg.Logging.Level,
		Path:       cfg.Logging.Path,
		Components: cfg.Logging.Components,
		Rotation: logging.RotationConfig{
			MaxAge:     cfg.Logging.Rotation.MaxAge,
			MaxBackups: cfg.Logging.Rotation.MaxBackups,
			Daily:      cfg.Logging.Rotation.Daily,
		},
	}
	if cfg.Logging.Rotation.MaxSize != "" {
		size, parseErr := humanize.ParseBytes(cfg.Logging.Rotation.MaxSize)
		if parseErr != nil {
			return nil, fmt.Errorf("logging.rotation.max_size: %w", parseErr)
		}
		logCfg.Rotation.MaxSize = int64(size)
	}
	if getVerbose() {
		logCfg.ConsoleLevel = "debug"
	}

	if err := logging.Init(logCfg); err != nil {
		// Logging failures never block the actual work.
		fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
	}

	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	defer func() { _ = logging.Close() }()
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
