package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// PlainFormatter formats output as a simple tab-separated table.
// It produces plain text output suitable for scripting and piping.
// No colors or styling are applied.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, d *Document) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if d.Execution != nil {
		if _, err := tw.Write([]byte("STATUS\tKIND\tOPERATION\n")); err != nil {
			return err
		}
		for _, op := range d.Execution.Ops {
			row := string(op.Status) + "\t" + string(op.Kind) + "\t" + op.Description
			if op.Detail != "" {
				row += " (" + firstLine(op.Detail) + ")"
			}
			if _, err := tw.Write([]byte(row + "\n")); err != nil {
				return err
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if d.Validation != nil {
		if d.Execution != nil {
			w.WriteString("\n")
		}
		if _, err := tw.Write([]byte("RESULT\tCHECK\n")); err != nil {
			return err
		}
		for _, res := range d.Validation.Results {
			state := "pass"
			if !res.Passed {
				state = "fail"
			}
			if _, err := tw.Write([]byte(state + "\t" + res.Description + "\n")); err != nil {
				return err
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "checks: %d/%d passed\n", d.Validation.PassCount, d.Validation.Total)
	}

	for _, warning := range warningsOf(d) {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}

	return nil
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
