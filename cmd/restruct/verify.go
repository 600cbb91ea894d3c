package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/restruct/pkg/restruct/pathres"
	"github.com/jamesainslie/restruct/pkg/restruct/plan"
	"github.com/jamesainslie/restruct/pkg/restruct/planfile"
	"github.com/jamesainslie/restruct/pkg/restruct/validate"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [checks.yaml]",
	Short: "Run validation checks against a tree",
	Long: `Verify runs post-condition checks without executing anything.

Checks come from a check file, or with --from-plan they are derived
from a plan file: each move and rename implies its source is gone and
its destination exists, each text replacement implies no references to
the old pattern remain, and each directory deletion implies the
directory is absent.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

var (
	verifyFromPlan string
	verifyRoot     string
)

func init() {
	verifyCmd.Flags().StringVar(&verifyFromPlan, "from-plan", "", "derive checks from a plan file")
	verifyCmd.Flags().StringVarP(&verifyRoot, "root", "r", "", "tree to validate (default: file's root or cwd)")

	rootCmd.AddCommand(verifyCmd)
}

// runVerify runs the validation suite alone.
func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(args) == 0 && verifyFromPlan == "" {
		return fmt.Errorf("a check file or --from-plan is required")
	}

	var checks []validate.Check
	root := verifyRoot

	if verifyFromPlan != "" {
		file, err := planfile.Load(verifyFromPlan)
		if err != nil {
			return err
		}
		root, checks, err = deriveChecks(file, verifyRoot)
		if err != nil {
			return err
		}
	}

	if len(args) == 1 {
		file, err := planfile.Load(args[0])
		if err != nil {
			return err
		}
		if root == "" {
			root = file.Root
		}
		extra, err := file.ChecksOf()
		if err != nil {
			return err
		}
		checks = append(checks, extra...)
	}

	if root == "" {
		root = "."
	}
	if len(checks) == 0 {
		return fmt.Errorf("no checks to run")
	}

	report, err := runSuite(cmd, cfg, root, checks)
	if err != nil {
		return err
	}

	if err := render(cfg, nil, report); err != nil {
		return err
	}

	if !report.Passed {
		return fmt.Errorf("validation failed: %d/%d checks passed", report.PassCount, report.Total)
	}
	return nil
}

// deriveChecks turns a plan file into the post-condition checks its
// operations imply, plus any extra checks the file declares. Paths are
// resolved without precondition checking: against an applied plan the
// sources are gone and the destinations occupied, which is exactly the
// state the derived checks assert.
func deriveChecks(file *planfile.File, overrideRoot string) (string, []validate.Check, error) {
	root := file.Root
	if overrideRoot != "" {
		root = overrideRoot
	}
	if root == "" {
		root = "."
	}

	resolver, err := pathres.NewResolver(root)
	if err != nil {
		return "", nil, fmt.Errorf("resolve root: %w", err)
	}

	ops, err := file.Ops()
	if err != nil {
		return "", nil, err
	}

	resolved, err := plan.ResolveOnly(resolver, ops)
	if err != nil {
		return "", nil, err
	}

	checks := validate.FromOps(resolved)
	extra, err := file.ChecksOf()
	if err != nil {
		return "", nil, err
	}
	return resolver.Root(), append(checks, extra...), nil
}
