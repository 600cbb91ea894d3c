// Package config provides configuration management for restruct.
package config

// Default configuration values for restruct.
const (
	// DefaultFormat is the default output format.
	DefaultFormat = "pretty"

	// DefaultConfigDir is the default configuration directory path.
	DefaultConfigDir = "~/.config/restruct"

	// DefaultRetentionDays is the default number of days to retain
	// history entries and orphaned backup sessions.
	DefaultRetentionDays = 30

	// DefaultWorkers is the default number of validation workers.
	// Zero means use the CPU count.
	DefaultWorkers = 0
)

// DefaultExcludes contains glob patterns excluded from validation scans
// by default.
var DefaultExcludes = []string{
	".git",
	".git/**",
	"node_modules",
	"node_modules/**",
	"vendor",
	"vendor/**",
}
