package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/restruct/pkg/restruct/config"
	"github.com/jamesainslie/restruct/pkg/restruct/manifest"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View execution history",
	Long: `View the history of executed and previewed plans.

Each apply or preview writes an audit entry recording every operation
outcome and the validation verdict.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a specific execution",
	Long:  `Display the full record of one execution by its entry or plan ID.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than the retention period.`,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// getManifest returns a manifest instance with the configured directory.
func getManifest() (*manifest.Manifest, error) {
	path := config.DefaultHistoryPath()
	if cfg, err := config.Load(); err == nil && cfg.History.Path != "" {
		path = cfg.History.Path
	}
	return manifest.New(path)
}

// runHistory lists recent executions.
func runHistory(cmd *cobra.Command, args []string) error {
	m, err := getManifest()
	if err != nil {
		return fmt.Errorf("initialize history: %w", err)
	}

	entries, err := m.List(historyLimit)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'restruct apply <plan.yaml>' to execute a plan.")
		return nil
	}

	fmt.Printf("\n%-34s  %-16s  %-8s  %-10s  %s\n", "ID", "WHEN", "OPS", "OUTCOME", "ROOT")
	fmt.Println(strings.Repeat("-", 90))

	for _, entry := range entries {
		fmt.Printf("%-34s  %-16s  %-8d  %-10s  %s\n",
			truncateString(entry.ID, 34),
			humanize.Time(entry.Timestamp),
			len(entry.Ops),
			entryOutcome(entry),
			entry.Root,
		)
	}

	fmt.Println(strings.Repeat("-", 90))
	fmt.Printf("\nShowing %d entries. Use --limit to see more.\n", len(entries))
	fmt.Println("Use 'restruct history show <id>' for details on a specific entry.")

	return nil
}

// entryOutcome summarizes one entry's verdict in a single word.
func entryOutcome(entry manifest.Entry) string {
	switch {
	case entry.RolledBack:
		return "rolled-back"
	case entry.DryRun:
		return "previewed"
	case entry.Validation != nil && !entry.Validation.Passed:
		return "unverified"
	default:
		return "applied"
	}
}

// runHistoryShow displays details of a specific execution.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	m, err := getManifest()
	if err != nil {
		return fmt.Errorf("initialize history: %w", err)
	}

	entry, err := m.Get(args[0])
	if err != nil {
		return fmt.Errorf("get entry: %w", err)
	}

	fmt.Println("\nExecution Details")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("ID:         %s\n", entry.ID)
	fmt.Printf("Plan:       %s\n", entry.PlanID)
	fmt.Printf("Root:       %s\n", entry.Root)
	fmt.Printf("When:       %s (%s)\n", entry.Timestamp.Format("2006-01-02 15:04:05"), humanize.Time(entry.Timestamp))
	fmt.Printf("Elapsed:    %s\n", entry.Elapsed)
	fmt.Printf("Outcome:    %s\n", entryOutcome(*entry))
	fmt.Printf("Applied:    %d of %d operations\n", entry.Applied, len(entry.Ops))

	if len(entry.Ops) > 0 {
		fmt.Println("\nOperations:")
		for _, op := range entry.Ops {
			fmt.Printf("  [%-11s] %s %s\n", op.Status, op.Kind, op.Description)
			if op.Detail != "" {
				fmt.Printf("                %s\n", strings.ReplaceAll(op.Detail, "\n", "\n                "))
			}
		}
	}

	if entry.Validation != nil {
		fmt.Printf("\nValidation: %d/%d checks passed\n", entry.Validation.PassCount, entry.Validation.Total)
		for _, failure := range entry.Validation.Failures {
			fmt.Printf("  FAIL %s\n", failure)
		}
	}

	if len(entry.Warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, warning := range entry.Warnings {
			fmt.Printf("  %s\n", warning)
		}
	}

	return nil
}

// runHistoryClean removes entries older than the retention period.
func runHistoryClean(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	m, err := getManifest()
	if err != nil {
		return fmt.Errorf("initialize history: %w", err)
	}

	if err := m.Cleanup(cfg.History.RetentionDays); err != nil {
		return fmt.Errorf("clean history: %w", err)
	}

	printInfo("Removed history entries older than %d days.", cfg.History.RetentionDays)
	return nil
}

// truncateString shortens a string to maxLen, marking the cut with an
// ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
