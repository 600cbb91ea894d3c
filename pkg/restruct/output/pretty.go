package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/restruct/pkg/restruct/engine"
	"github.com/jamesainslie/restruct/pkg/restruct/validate"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
// It produces a visually appealing output suitable for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, d *Document) error {
	if d.Execution != nil {
		w.WriteString(f.formatHeader(d.Execution))
		w.WriteString("\n")
		w.WriteString(f.formatOps(d.Execution))
	}

	if d.Validation != nil {
		if d.Execution != nil {
			w.WriteString("\n")
		}
		w.WriteString(f.formatValidation(d.Validation))
	}

	w.WriteString(f.formatFooter(d))

	if warnings := warningsOf(d); len(warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(warnings))
	}

	return nil
}

// formatHeader builds the header box with run metadata.
func (f *PrettyFormatter) formatHeader(r *engine.Result) string {
	var lines []string

	planLabel := LabelStyle.Render("Plan:")
	planValue := ValueStyle.Render(r.PlanID)
	lines = append(lines, fmt.Sprintf("%s %s", planLabel, planValue))

	rootLabel := LabelStyle.Render("Root:")
	rootValue := ValueStyle.Render(r.Root)
	mode := SuccessStyle.Render("apply")
	if r.DryRun {
		mode = WarningStyle.Render("preview")
	}
	started := MutedStyle.Render("started " + humanize.Time(r.StartedAt))
	lines = append(lines, fmt.Sprintf("%s %s  %s  %s", rootLabel, rootValue, mode, started))

	content := strings.Join(lines, "\n")
	return HeaderBox.Render(content)
}

// formatOps builds the per-operation listing.
func (f *PrettyFormatter) formatOps(r *engine.Result) string {
	if len(r.Ops) == 0 {
		return MutedStyle.Render("  Plan contains no operations\n")
	}

	var sb strings.Builder
	for _, op := range r.Ops {
		glyph, style := statusDecor(op.Status)
		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			style.Render(glyph),
			MutedStyle.Render(string(op.Kind)),
			ValueStyle.Render(op.Description)))

		if op.Detail != "" {
			detailStyle := MutedStyle
			if op.Status == engine.StatusFailed {
				detailStyle = ErrorStyle
			}
			for _, line := range strings.Split(op.Detail, "\n") {
				sb.WriteString("      " + detailStyle.Render(line) + "\n")
			}
		}

		for _, repl := range op.Replacements {
			sb.WriteString(fmt.Sprintf("      %s %s\n",
				MutedStyle.Render(fmt.Sprintf("%d in", repl.Count)),
				ValueStyle.Render(repl.File)))
		}
	}
	return sb.String()
}

// formatValidation builds the per-check listing.
func (f *PrettyFormatter) formatValidation(rep *validate.Report) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render("Validation"))
	sb.WriteString("\n")

	for _, res := range rep.Results {
		glyph := SuccessStyle.Render("ok")
		if !res.Passed {
			glyph = ErrorStyle.Render("FAIL")
		}
		sb.WriteString(fmt.Sprintf("  %s %s\n", glyph, ValueStyle.Render(res.Description)))
		if res.Detail != "" {
			for _, line := range strings.Split(res.Detail, "\n") {
				sb.WriteString("      " + MutedStyle.Render(line) + "\n")
			}
		}
	}
	return sb.String()
}

// formatFooter builds the footer box with summary information.
func (f *PrettyFormatter) formatFooter(d *Document) string {
	var parts []string

	if r := d.Execution; r != nil {
		opsLabel := LabelStyle.Render("Applied:")
		opsValue := ValueStyle.Render(fmt.Sprintf("%d/%d", r.Applied, len(r.Ops)))
		if r.DryRun {
			opsLabel = LabelStyle.Render("Previewed:")
			opsValue = ValueStyle.Render(fmt.Sprintf("%d", len(r.Ops)))
		}
		parts = append(parts, fmt.Sprintf("%s %s", opsLabel, opsValue))

		if r.RolledBack {
			parts = append(parts, ErrorStyle.Bold(true).Render("rolled back"))
		}

		elapsedLabel := LabelStyle.Render("Elapsed:")
		elapsedValue := ValueStyle.Render(formatDuration(r.Elapsed))
		parts = append(parts, fmt.Sprintf("%s %s", elapsedLabel, elapsedValue))
	}

	if rep := d.Validation; rep != nil {
		checksLabel := LabelStyle.Render("Checks:")
		checksValue := SuccessStyle.Render(fmt.Sprintf("%d/%d passed", rep.PassCount, rep.Total))
		if !rep.Passed {
			checksValue = ErrorStyle.Render(fmt.Sprintf("%d/%d passed", rep.PassCount, rep.Total))
		}
		parts = append(parts, fmt.Sprintf("%s %s", checksLabel, checksValue))
	}

	if len(parts) == 0 {
		return ""
	}

	content := strings.Join(parts, "  ")
	return FooterBox.Render(content)
}

// formatWarnings builds a warning block.
func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder

	titleStyle := WarningStyle.Bold(true)
	sb.WriteString(titleStyle.Render("Warnings:"))
	sb.WriteString("\n")

	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}

	return sb.String()
}

// statusDecor maps an operation status to its glyph and style.
func statusDecor(s engine.Status) (string, interface{ Render(...string) string }) {
	switch s {
	case engine.StatusApplied:
		return "✓", SuccessStyle
	case engine.StatusPreviewed:
		return "→", MutedStyle
	case engine.StatusFailed:
		return "✗", ErrorStyle
	case engine.StatusRolledBack:
		return "↩", WarningStyle
	case engine.StatusSkipped:
		return "-", MutedStyle
	default:
		return "?", MutedStyle
	}
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
