package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/restruct/pkg/restruct/backup"
	"github.com/jamesainslie/restruct/pkg/restruct/config"
	"github.com/jamesainslie/restruct/pkg/restruct/engine"
	"github.com/jamesainslie/restruct/pkg/restruct/gitvcs"
	"github.com/jamesainslie/restruct/pkg/restruct/manifest"
	"github.com/jamesainslie/restruct/pkg/restruct/output"
	"github.com/jamesainslie/restruct/pkg/restruct/pathres"
	"github.com/jamesainslie/restruct/pkg/restruct/plan"
	"github.com/jamesainslie/restruct/pkg/restruct/planfile"
	"github.com/jamesainslie/restruct/pkg/restruct/scancache"
	"github.com/jamesainslie/restruct/pkg/restruct/validate"
)

var applyCmd = &cobra.Command{
	Use:   "apply <plan.yaml>",
	Short: "Execute a refactoring plan",
	Long: `Apply loads a plan file, validates every operation against the current
tree, executes the operations in order, and verifies the post-conditions.

Execution is all-or-nothing: the first failure restores every prior
mutation and the tree is left exactly as it was. Backups are kept until
post-conditions pass; on validation failure the backup session directory
is reported and retained for inspection.

With --dry-run the plan is previewed against current state and nothing
is mutated.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

var (
	applyDryRun bool
	applyRoot   string
	applyNoVCS  bool
)

func init() {
	applyCmd.Flags().BoolVarP(&applyDryRun, "dry-run", "d", false, "preview the plan without mutating anything")
	applyCmd.Flags().StringVarP(&applyRoot, "root", "r", "", "override the plan root directory")
	applyCmd.Flags().BoolVar(&applyNoVCS, "no-vcs", false, "plain filesystem moves even inside a git work tree")

	rootCmd.AddCommand(applyCmd)
}

// runApply executes a plan file end to end.
func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	file, err := planfile.Load(args[0])
	if err != nil {
		return err
	}

	p, err := buildPlan(file, applyRoot)
	if err != nil {
		return err
	}

	if applyDryRun {
		return runPreview(cmd.Context(), cfg, p)
	}

	session, err := backup.NewSession(cfg.Backup.Dir)
	if err != nil {
		return fmt.Errorf("create backup session: %w", err)
	}

	var repo *gitvcs.Repo
	if !applyNoVCS {
		// Best effort; a plain tree is not an error.
		repo, _ = gitvcs.Detect(p.Root())
	}

	eng := engine.New(engine.Options{
		Backups:      session,
		Repo:         repo,
		WatchForeign: cfg.Guard,
	})

	res, execErr := eng.Apply(cmd.Context(), p)

	var report *validate.Report
	if execErr == nil {
		extra, checksErr := file.ChecksOf()
		if checksErr != nil {
			return checksErr
		}
		report, err = runSuite(cmd, cfg, p.Root(), append(validate.FromPlan(p), extra...))
		if err != nil {
			return err
		}
	}

	recordHistory(cfg, res, report)

	if err := render(cfg, res, report); err != nil {
		return err
	}

	if execErr != nil {
		if purged := releaseBackups(session, res); purged {
			printError("plan failed, tree restored: %v", execErr)
		} else {
			printError("plan failed: %v", execErr)
			printInfo("Backups retained at %s", session.Dir())
		}
		return execErr
	}

	if !report.Passed {
		printError("validation failed: %d/%d checks passed", report.PassCount, report.Total)
		printInfo("Backups retained at %s", session.Dir())
		return fmt.Errorf("validation failed")
	}

	// Post-conditions hold; the shadow copies are no longer needed.
	if err := session.Purge(); err != nil {
		printError("could not remove backup session: %v", err)
	}
	return nil
}

// runPreview evaluates the plan without mutating and reports every
// operation outcome.
func runPreview(ctx context.Context, cfg *config.Config, p *plan.Plan) error {
	eng := engine.New(engine.Options{DryRun: true})
	res, err := eng.Apply(ctx, p)
	if err != nil {
		return err
	}

	recordHistory(cfg, res, nil)

	if err := render(cfg, res, nil); err != nil {
		return err
	}

	failing := 0
	for _, op := range res.Ops {
		if op.Status == engine.StatusFailed {
			failing++
		}
	}
	if failing > 0 {
		return fmt.Errorf("preview found %d failing operations", failing)
	}
	return nil
}

// buildPlan resolves the plan file against its root and validates it.
func buildPlan(file *planfile.File, overrideRoot string) (*plan.Plan, error) {
	root := file.Root
	if overrideRoot != "" {
		root = overrideRoot
	}
	if root == "" {
		root = "."
	}

	resolver, err := pathres.NewResolver(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	ops, err := file.Ops()
	if err != nil {
		return nil, err
	}

	return plan.Build(resolver, ops)
}

// releaseBackups disposes of the backup session after a failed run and
// reports whether it was purged. A completed rollback leaves the tree in
// its pre-run state, so the shadow copies hold nothing the tree does
// not. An incomplete rollback keeps the session for manual recovery.
func releaseBackups(session *backup.Session, res *engine.Result) bool {
	if res == nil || !res.RolledBack {
		return false
	}
	if err := session.Purge(); err != nil {
		printError("could not remove backup session: %v", err)
	}
	return true
}

// runSuite runs the given checks against a root with the configured
// cache and worker pool.
func runSuite(cmd *cobra.Command, cfg *config.Config, root string, checks []validate.Check) (*validate.Report, error) {
	var cache *scancache.Cache
	if cfg.Cache.Enabled {
		path := cfg.Cache.Path
		if path == "" {
			path = scancache.DefaultPath()
		}
		c, err := scancache.Open(path)
		if err == nil {
			cache = c
			defer func() { _ = cache.Close() }()
		}
	}

	suite, err := validate.New(validate.Options{
		Root:     root,
		Excludes: cfg.Exclude,
		Cache:    cache,
		Workers:  cfg.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("prepare validation: %w", err)
	}

	return suite.Run(cmd.Context(), checks)
}

// recordHistory appends the run to the audit log when enabled.
func recordHistory(cfg *config.Config, res *engine.Result, report *validate.Report) {
	if !cfg.History.Enabled || res == nil {
		return
	}
	path := cfg.History.Path
	if path == "" {
		path = config.DefaultHistoryPath()
	}
	m, err := manifest.New(path)
	if err != nil {
		printError("history disabled: %v", err)
		return
	}
	if err := m.EnsureDir(); err != nil {
		printError("history disabled: %v", err)
		return
	}
	if _, err := m.Log(res, report); err != nil {
		printError("could not record history: %v", err)
	}
}

// render formats the result with the configured formatter and prints it.
func render(cfg *config.Config, res *engine.Result, report *validate.Report) error {
	formatter, err := output.Get(cfg.Format)
	if err != nil {
		return fmt.Errorf("%v (available: %v)", err, output.Available())
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, &output.Document{Execution: res, Validation: report}); err != nil {
		return fmt.Errorf("format output: %w", err)
	}

	_, err = os.Stdout.Write(buf.Bytes())
	return err
}
