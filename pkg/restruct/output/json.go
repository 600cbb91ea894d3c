package output

import (
	"bytes"
	"encoding/json"
	"time"
)

// jsonOutput represents the full JSON output structure.
type jsonOutput struct {
	Execution  *jsonExecution  `json:"execution,omitempty"`
	Validation *jsonValidation `json:"validation,omitempty"`
}

// jsonExecution represents the engine result in JSON output.
type jsonExecution struct {
	PlanID     string    `json:"plan_id"`
	Root       string    `json:"root"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	Elapsed    string    `json:"elapsed"`
	Ops        []jsonOp  `json:"ops"`
	Applied    int       `json:"applied"`
	RolledBack bool      `json:"rolled_back"`
	Warnings   []string  `json:"warnings,omitempty"`
}

// jsonOp represents one operation outcome in JSON output.
type jsonOp struct {
	Index        int               `json:"index"`
	Kind         string            `json:"kind"`
	Description  string            `json:"description"`
	Status       string            `json:"status"`
	Detail       string            `json:"detail,omitempty"`
	Replacements []jsonReplacement `json:"replacements,omitempty"`
}

// jsonReplacement represents one rewritten file in JSON output.
type jsonReplacement struct {
	File    string      `json:"file"`
	Count   int         `json:"count"`
	Matches []jsonMatch `json:"matches,omitempty"`
}

// jsonMatch locates one occurrence in JSON output.
type jsonMatch struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Context string `json:"context"`
}

// jsonValidation represents the check report in JSON output.
type jsonValidation struct {
	Results   []jsonCheck `json:"results"`
	Passed    bool        `json:"passed"`
	PassCount int         `json:"pass_count"`
	Total     int         `json:"total"`
}

// jsonCheck represents one check outcome in JSON output.
type jsonCheck struct {
	Description string `json:"description"`
	Passed      bool   `json:"passed"`
	Detail      string `json:"detail,omitempty"`
}

// JSONFormatter formats output as a single indented JSON object.
// It produces a complete JSON document with execution and validation
// sections.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, d *Document) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildOutput(d))
}

// buildOutput converts a Document to the serializable output structure.
func buildOutput(d *Document) jsonOutput {
	var out jsonOutput

	if r := d.Execution; r != nil {
		exec := &jsonExecution{
			PlanID:     r.PlanID,
			Root:       r.Root,
			DryRun:     r.DryRun,
			StartedAt:  r.StartedAt,
			Elapsed:    r.Elapsed.String(),
			Applied:    r.Applied,
			RolledBack: r.RolledBack,
			Warnings:   r.Warnings,
		}
		exec.Ops = make([]jsonOp, len(r.Ops))
		for i, op := range r.Ops {
			jop := jsonOp{
				Index:       op.Index,
				Kind:        string(op.Kind),
				Description: op.Description,
				Status:      string(op.Status),
				Detail:      op.Detail,
			}
			for _, repl := range op.Replacements {
				jrepl := jsonReplacement{File: repl.File, Count: repl.Count}
				for _, m := range repl.Matches {
					jrepl.Matches = append(jrepl.Matches, jsonMatch{
						Line:    m.Line,
						Column:  m.Column,
						Context: m.Context,
					})
				}
				jop.Replacements = append(jop.Replacements, jrepl)
			}
			exec.Ops[i] = jop
		}
		out.Execution = exec
	}

	if rep := d.Validation; rep != nil {
		val := &jsonValidation{
			Passed:    rep.Passed,
			PassCount: rep.PassCount,
			Total:     rep.Total,
		}
		val.Results = make([]jsonCheck, len(rep.Results))
		for i, res := range rep.Results {
			val.Results[i] = jsonCheck{
				Description: res.Description,
				Passed:      res.Passed,
				Detail:      res.Detail,
			}
		}
		out.Validation = val
	}

	return out
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

// Ensure JSONFormatter implements Formatter.
var _ Formatter = (*JSONFormatter)(nil)
