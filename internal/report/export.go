package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mwiater/agenteval/internal/runs"
	"github.com/mwiater/agenteval/internal/util"
)

// ExportName returns the default export file name for a run.
func ExportName(run *runs.Run, ext string) string {
	base := util.Slugify(run.Name)
	if base == "" {
		base = "run"
	}
	id := run.ID
	if len(id) > 8 {
		id = id[:8]
	}
	if id != "" {
		base += "_" + id
	}
	return base + "." + strings.TrimPrefix(ext, ".")
}

// JSON returns the indented JSON form of a run.
func JSON(run *runs.Run) ([]byte, error) {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	return append(data, '\n'), nil
}

// ExportJSON writes the run as JSON to path.
func ExportJSON(path string, run *runs.Run) error {
	data, err := JSON(run)
	if err != nil {
		return err
	}
	if err := util.WriteFile(path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ExportMarkdown writes the run as a Markdown report to path.
func ExportMarkdown(path string, run *runs.Run) error {
	if err := util.WriteFile(path, []byte(Markdown(run))); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Markdown renders a run as a Markdown document without terminal styling.
func Markdown(run *runs.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", run.Name)

	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "| %s | %s |\n", k, mdEscape(v))
		}
	}
	row("Run ID", run.ID)
	row("Status", string(run.Status))
	row("Environment", run.Environment)
	row("Agent", run.Agent)
	row("Dataset", run.Dataset)
	row("Suite", run.Suite)
	row("Created", run.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	row("Duration", run.Duration)
	row("Pass rate", fmt.Sprintf("%.1f%%", run.PassRate))
	row("Total records", fmt.Sprint(run.TotalRecords))
	row("Execution failures", fmt.Sprint(run.ExecutionFailures))
	if run.PendingRecords > 0 {
		row("Pending records", fmt.Sprint(run.PendingRecords))
	}
	row("Error", run.Error)

	if run.Summary != nil && len(run.Summary.Evaluators) > 0 {
		b.WriteString("\n## Evaluators\n\n")
		b.WriteString("| Evaluator | Mean | Std dev | Min | Max | Passed | Failed | Pending | Faults |\n")
		b.WriteString("|---|---|---|---|---|---|---|---|---|\n")
		for _, ev := range run.Summary.Evaluators {
			fmt.Fprintf(&b, "| %s | %.3f | %.3f | %.3f | %.3f | %d | %d | %d | %d |\n",
				mdEscape(ev.Name), ev.Scores.Mean, ev.Scores.StdDev, ev.Scores.Min, ev.Scores.Max,
				ev.Passed, ev.Failed, ev.Pending, ev.Faults)
		}
	}

	if len(run.Results) > 0 {
		names := MetricNames(run)
		b.WriteString("\n## Results\n\n")
		b.WriteString("| # | Input | Expected | Actual | Verdict |")
		for _, name := range names {
			b.WriteString(" " + mdEscape(name) + " |")
		}
		b.WriteString("\n|---|---|---|---|---|" + strings.Repeat("---|", len(names)) + "\n")
		for i, r := range run.Results {
			verdict := "FAIL"
			switch {
			case r.Pending:
				verdict = "PENDING"
			case r.Passed:
				verdict = "PASS"
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |", i+1,
				mdEscape(cell(r.Input)), mdEscape(cell(r.Expected)), mdEscape(cell(r.Actual)), verdict)
			for _, name := range names {
				b.WriteString(" " + Score(r.Metrics[name]) + " |")
			}
			b.WriteString("\n")
		}
	}

	if len(run.Failures) > 0 {
		b.WriteString("\n## Execution failures\n\n")
		for _, f := range run.Failures {
			fmt.Fprintf(&b, "- #%d `%s`: %s\n", f.Index, cell(f.Input), f.Error)
		}
	}
	return b.String()
}

func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
