package output

import (
	"bytes"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlOutput represents the full YAML output structure.
type yamlOutput struct {
	Execution  *yamlExecution  `yaml:"execution,omitempty"`
	Validation *yamlValidation `yaml:"validation,omitempty"`
}

// yamlExecution represents the engine result in YAML output.
type yamlExecution struct {
	PlanID     string    `yaml:"plan_id"`
	Root       string    `yaml:"root"`
	DryRun     bool      `yaml:"dry_run"`
	StartedAt  time.Time `yaml:"started_at"`
	Elapsed    string    `yaml:"elapsed"`
	Ops        []yamlOp  `yaml:"ops"`
	Applied    int       `yaml:"applied"`
	RolledBack bool      `yaml:"rolled_back"`
	Warnings   []string  `yaml:"warnings,omitempty"`
}

// yamlOp represents one operation outcome in YAML output.
type yamlOp struct {
	Index        int               `yaml:"index"`
	Kind         string            `yaml:"kind"`
	Description  string            `yaml:"description"`
	Status       string            `yaml:"status"`
	Detail       string            `yaml:"detail,omitempty"`
	Replacements []yamlReplacement `yaml:"replacements,omitempty"`
}

// yamlReplacement represents one rewritten file in YAML output.
type yamlReplacement struct {
	File  string `yaml:"file"`
	Count int    `yaml:"count"`
}

// yamlValidation represents the check report in YAML output.
type yamlValidation struct {
	Results   []yamlCheck `yaml:"results"`
	Passed    bool        `yaml:"passed"`
	PassCount int         `yaml:"pass_count"`
	Total     int         `yaml:"total"`
}

// yamlCheck represents one check outcome in YAML output.
type yamlCheck struct {
	Description string `yaml:"description"`
	Passed      bool   `yaml:"passed"`
	Detail      string `yaml:"detail,omitempty"`
}

// YAMLFormatter formats output as YAML.
// It produces the same structure as JSONFormatter but in YAML format.
type YAMLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *YAMLFormatter) Format(w *bytes.Buffer, d *Document) error {
	var out yamlOutput

	if r := d.Execution; r != nil {
		exec := &yamlExecution{
			PlanID:     r.PlanID,
			Root:       r.Root,
			DryRun:     r.DryRun,
			StartedAt:  r.StartedAt,
			Elapsed:    r.Elapsed.String(),
			Applied:    r.Applied,
			RolledBack: r.RolledBack,
			Warnings:   r.Warnings,
		}
		exec.Ops = make([]yamlOp, len(r.Ops))
		for i, op := range r.Ops {
			yop := yamlOp{
				Index:       op.Index,
				Kind:        string(op.Kind),
				Description: op.Description,
				Status:      string(op.Status),
				Detail:      op.Detail,
			}
			for _, repl := range op.Replacements {
				yop.Replacements = append(yop.Replacements, yamlReplacement{
					File:  repl.File,
					Count: repl.Count,
				})
			}
			exec.Ops[i] = yop
		}
		out.Execution = exec
	}

	if rep := d.Validation; rep != nil {
		val := &yamlValidation{
			Passed:    rep.Passed,
			PassCount: rep.PassCount,
			Total:     rep.Total,
		}
		val.Results = make([]yamlCheck, len(rep.Results))
		for i, res := range rep.Results {
			val.Results[i] = yamlCheck{
				Description: res.Description,
				Passed:      res.Passed,
				Detail:      res.Detail,
			}
		}
		out.Validation = val
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(out); err != nil {
		return err
	}
	return encoder.Close()
}

func init() {
	Register("yaml", func() Formatter {
		return &YAMLFormatter{}
	})
}

// Ensure YAMLFormatter implements Formatter.
var _ Formatter = (*YAMLFormatter)(nil)
