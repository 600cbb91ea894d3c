// Package validate runs post-condition checks over a tree after a plan
// has been applied. Checks are read-only and independent; all of them run
// regardless of earlier failures, and the report enumerates every problem
// found in one pass.
package validate

import "fmt"

// Check is a single read-only post-condition test. The set of variants is
// closed: MustExist, MustNotExist, NoRemainingReferences, LinksResolve.
type Check interface {
	// Describe returns a one-line human-readable description.
	Describe() string

	sealed()
}

// MustExist asserts a path exists under the root.
type MustExist struct {
	// Path is the target, relative to the suite root or absolute.
	Path string
}

// Describe returns the check description.
func (c MustExist) Describe() string { return fmt.Sprintf("must exist: %s", c.Path) }

func (MustExist) sealed() {}

// MustNotExist asserts a path is absent under the root.
type MustNotExist struct {
	// Path is the target, relative to the suite root or absolute.
	Path string
}

// Describe returns the check description.
func (c MustNotExist) Describe() string { return fmt.Sprintf("must not exist: %s", c.Path) }

func (MustNotExist) sealed() {}

// NoRemainingReferences asserts no text file under the root still
// contains the literal pattern.
type NoRemainingReferences struct {
	// Pattern is matched exactly, never as a regular expression.
	Pattern string
}

// Describe returns the check description.
func (c NoRemainingReferences) Describe() string {
	return fmt.Sprintf("no remaining references to %q", c.Pattern)
}

func (NoRemainingReferences) sealed() {}

// LinksResolve asserts every relative link inside markdown files under
// the root resolves to an existing path.
type LinksResolve struct{}

// Describe returns the check description.
func (LinksResolve) Describe() string { return "relative links resolve" }

func (LinksResolve) sealed() {}

// CheckResult is the outcome of one check.
type CheckResult struct {
	// Description identifies the check.
	Description string `json:"description"`

	// Passed reports whether the check held.
	Passed bool `json:"passed"`

	// Detail lists what remains wrong, one finding per line. Empty when
	// the check passed.
	Detail string `json:"detail,omitempty"`
}

// Report is the outcome of a validation run. It always contains exactly
// one result per submitted check, in submission order.
type Report struct {
	// Results are per-check outcomes, in check order.
	Results []CheckResult `json:"results"`

	// Passed is true iff every check passed.
	Passed bool `json:"passed"`

	// PassCount is the number of checks that passed.
	PassCount int `json:"pass_count"`

	// Total is the number of checks run.
	Total int `json:"total"`
}
