// Package manifest persists an audit log of executed plans.
package manifest

import "time"

// OpRecord is the persisted outcome of one plan operation.
type OpRecord struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
}

// ValidationSummary is the persisted outcome of the post-condition run.
type ValidationSummary struct {
	Passed    bool     `json:"passed"`
	PassCount int      `json:"pass_count"`
	Total     int      `json:"total"`
	Failures  []string `json:"failures,omitempty"`
}

// Entry represents a single executed (or previewed) plan.
type Entry struct {
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	PlanID     string             `json:"plan_id"`
	Root       string             `json:"root"`
	DryRun     bool               `json:"dry_run"`
	Applied    int                `json:"applied"`
	RolledBack bool               `json:"rolled_back"`
	Elapsed    time.Duration      `json:"elapsed"`
	Ops        []OpRecord         `json:"ops"`
	Warnings   []string           `json:"warnings,omitempty"`
	Validation *ValidationSummary `json:"validation,omitempty"`
}
