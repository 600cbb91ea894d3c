// Package planfile loads refactoring plans and standalone check lists
// from YAML files.
//
// A plan file names a root, an ordered operation list, and optionally
// extra post-condition checks:
//
//	root: .
//	operations:
//	  - kind: move
//	    source: old/examples
//	    destination: new/examples
//	checks:
//	  - kind: must-not-exist
//	    path: old
//
// Decoding is strict: unknown fields and unknown kinds are errors, so a
// typo fails loudly instead of silently dropping an operation.
package planfile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/restruct/pkg/restruct/plan"
	"github.com/jamesainslie/restruct/pkg/restruct/validate"
)

// ErrInvalidPlanFile marks any structural problem in a plan or check
// file.
var ErrInvalidPlanFile = errors.New("invalid plan file")

// File is the decoded form of a plan file.
type File struct {
	// Root is the tree the plan is confined to. Empty means the current
	// working directory.
	Root string `yaml:"root"`

	// Operations is the ordered operation list.
	Operations []OpSpec `yaml:"operations"`

	// Checks are extra post-conditions beyond those derived from the
	// operations.
	Checks []CheckSpec `yaml:"checks"`
}

// OpSpec is one operation entry as written in YAML. Which fields apply
// depends on the kind.
type OpSpec struct {
	Kind        string   `yaml:"kind"`
	Source      string   `yaml:"source"`
	Destination string   `yaml:"destination"`
	Files       []string `yaml:"files"`
	Pattern     string   `yaml:"pattern"`
	Replacement string   `yaml:"replacement"`
	Target      string   `yaml:"target"`
}

// CheckSpec is one check entry as written in YAML.
type CheckSpec struct {
	Kind    string `yaml:"kind"`
	Path    string `yaml:"path"`
	Pattern string `yaml:"pattern"`
}

// Load reads and decodes a plan file.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes plan file content.
func Parse(raw []byte) (*File, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlanFile, err)
	}
	return &f, nil
}

// Ops converts the decoded operation entries into plan operations with
// paths still relative to the root. Every malformed entry is reported;
// conversion does not stop at the first problem.
func (f *File) Ops() ([]plan.Operation, error) {
	var (
		ops  []plan.Operation
		errs []string
	)
	bad := func(i int, format string, args ...any) {
		errs = append(errs, fmt.Sprintf("operation %d: %s", i, fmt.Sprintf(format, args...)))
	}

	for i, spec := range f.Operations {
		kind, err := plan.KindOf(spec.Kind)
		if err != nil {
			bad(i, "%v", err)
			continue
		}

		switch kind {
		case plan.KindMove:
			if spec.Source == "" || spec.Destination == "" {
				bad(i, "move requires source and destination")
				continue
			}
			ops = append(ops, plan.Move{Source: spec.Source, Destination: spec.Destination})

		case plan.KindRename:
			if spec.Source == "" || spec.Destination == "" {
				bad(i, "rename requires source and destination")
				continue
			}
			ops = append(ops, plan.Rename{Source: spec.Source, Destination: spec.Destination})

		case plan.KindTextReplace:
			if len(spec.Files) == 0 {
				bad(i, "text-replace requires at least one file")
				continue
			}
			if spec.Pattern == "" {
				bad(i, "text-replace requires a pattern")
				continue
			}
			ops = append(ops, plan.TextReplace{
				Files:       spec.Files,
				Pattern:     spec.Pattern,
				Replacement: spec.Replacement,
			})

		case plan.KindDeleteEmptyDir:
			if spec.Target == "" {
				bad(i, "delete-empty-dir requires a target")
				continue
			}
			ops = append(ops, plan.DeleteEmptyDir{Target: spec.Target})
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w:\n  %s", ErrInvalidPlanFile, strings.Join(errs, "\n  "))
	}
	return ops, nil
}

// ChecksOf converts the decoded check entries into validation checks.
// Paths stay relative; the validation suite resolves them against its
// root.
func (f *File) ChecksOf() ([]validate.Check, error) {
	var (
		checks []validate.Check
		errs   []string
	)
	bad := func(i int, format string, args ...any) {
		errs = append(errs, fmt.Sprintf("check %d: %s", i, fmt.Sprintf(format, args...)))
	}

	for i, spec := range f.Checks {
		switch strings.ToLower(strings.TrimSpace(spec.Kind)) {
		case "must-exist":
			if spec.Path == "" {
				bad(i, "must-exist requires a path")
				continue
			}
			checks = append(checks, validate.MustExist{Path: spec.Path})

		case "must-not-exist":
			if spec.Path == "" {
				bad(i, "must-not-exist requires a path")
				continue
			}
			checks = append(checks, validate.MustNotExist{Path: spec.Path})

		case "no-references":
			if spec.Pattern == "" {
				bad(i, "no-references requires a pattern")
				continue
			}
			checks = append(checks, validate.NoRemainingReferences{Pattern: spec.Pattern})

		case "links-resolve":
			checks = append(checks, validate.LinksResolve{})

		default:
			bad(i, "unknown check kind %q", spec.Kind)
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w:\n  %s", ErrInvalidPlanFile, strings.Join(errs, "\n  "))
	}
	return checks, nil
}
