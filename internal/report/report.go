// Package report renders finished runs for the terminal and exports them as
// JSON or Markdown.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"

	"github.com/mwiater/agenteval/internal/evaluator"
	"github.com/mwiater/agenteval/internal/runs"
	"github.com/mwiater/agenteval/internal/util"
)

const (
	defaultCellWidth = 40
	errorWidth       = 100
)

var (
	passLabel    = color.New(color.FgGreen, color.Bold).SprintFunc()
	failLabel    = color.New(color.FgRed, color.Bold).SprintFunc()
	pendingLabel = color.New(color.FgYellow).SprintFunc()

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle  = lipgloss.NewStyle().Faint(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))

	statusStyles = map[runs.Status]lipgloss.Style{
		runs.StatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Background(lipgloss.Color("238")).Padding(0, 1),
		runs.StatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("33")).Padding(0, 1),
		runs.StatusSucceeded: lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("34")).Padding(0, 1),
		runs.StatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("160")).Padding(0, 1),
	}
)

// Options tunes the terminal report.
type Options struct {
	// MaxRows limits the per-record table; 0 prints every row.
	MaxRows int
	// CellWidth truncates input, expected and actual cells.
	CellWidth int
}

// Verdict labels a record outcome.
func Verdict(passed, pending bool) string {
	switch {
	case pending:
		return pendingLabel("PENDING")
	case passed:
		return passLabel("PASS")
	default:
		return failLabel("FAIL")
	}
}

// StatusChip renders a run status as a coloured badge.
func StatusChip(status runs.Status) string {
	style, ok := statusStyles[status]
	if !ok {
		style = statusStyles[runs.StatusPending]
	}
	return style.Render(string(status))
}

// Write prints the run header, its evaluator summary and the per-record table.
func Write(w io.Writer, run *runs.Run, opts Options) error {
	if run == nil {
		return fmt.Errorf("report: nil run")
	}
	width := opts.CellWidth
	if width <= 0 {
		width = defaultCellWidth
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(run.Name) + "  " + StatusChip(run.Status) + "\n")
	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", label)) + value + "\n")
	}
	field("Run ID", run.ID)
	field("Environment", run.Environment)
	field("Agent", run.Agent)
	field("Dataset", run.Dataset)
	field("Suite", run.Suite)
	field("Created", run.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	field("Duration", run.Duration)
	field("Pass rate", fmt.Sprintf("%.1f%% (%d records)", run.PassRate, run.TotalRecords))
	if run.ExecutionFailures > 0 {
		field("Failures", strconv.Itoa(run.ExecutionFailures))
	}
	if run.PendingRecords > 0 {
		field("Pending", strconv.Itoa(run.PendingRecords))
	}
	if run.Error != "" {
		b.WriteString(errorStyle.Render(util.WrapToWidth("Error: "+run.Error, errorWidth)) + "\n")
	}

	if run.Summary != nil && len(run.Summary.Evaluators) > 0 {
		b.WriteString("\n" + evaluatorTable(run) + "\n")
	}
	if len(run.Results) > 0 {
		b.WriteString("\n" + resultTable(run, opts.MaxRows, width) + "\n")
	}
	if len(run.Failures) > 0 {
		b.WriteString("\n" + titleStyle.Render("Execution failures") + "\n")
		for _, f := range run.Failures {
			line := fmt.Sprintf("#%d %s: %s", f.Index, util.TruncateRunes(cell(f.Input), width), f.Error)
			b.WriteString(errorStyle.Render(util.WrapToWidth(line, errorWidth)) + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteList prints one line per run, newest first as given.
func WriteList(w io.Writer, list []*runs.Run) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	rows := make([][]string, 0, len(list))
	for _, run := range list {
		rows = append(rows, []string{
			run.ID,
			util.TruncateRunes(run.Name, 30),
			StatusChip(run.Status),
			run.Agent,
			util.TruncateRunes(run.Dataset, 30),
			fmt.Sprintf("%.1f%%", run.PassRate),
			strconv.Itoa(run.TotalRecords),
			run.Duration,
			run.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	t := newTable("ID", "Name", "Status", "Agent", "Dataset", "Pass rate", "Records", "Duration", "Created").Rows(rows...)
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func evaluatorTable(run *runs.Run) string {
	rows := make([][]string, 0, len(run.Summary.Evaluators))
	for _, ev := range run.Summary.Evaluators {
		mean := "-"
		if ev.Scores.Count > 0 {
			mean = fmt.Sprintf("%.3f ± %.3f", ev.Scores.Mean, ev.Scores.StdDev)
		}
		rows = append(rows, []string{
			ev.Name,
			mean,
			strconv.Itoa(ev.Passed),
			strconv.Itoa(ev.Failed),
			strconv.Itoa(ev.Pending),
			strconv.Itoa(ev.Faults),
		})
	}
	return newTable("Evaluator", "Score", "Passed", "Failed", "Pending", "Faults").Rows(rows...).String()
}

func resultTable(run *runs.Run, maxRows, width int) string {
	names := MetricNames(run)
	headers := append([]string{"#", "Input", "Expected", "Actual", "Verdict"}, names...)

	rows := make([][]string, 0, len(run.Results))
	for i, row := range run.Results {
		if maxRows > 0 && i >= maxRows {
			break
		}
		r := []string{
			strconv.Itoa(i + 1),
			util.TruncateRunes(cell(row.Input), width),
			util.TruncateRunes(cell(row.Expected), width),
			util.TruncateRunes(cell(row.Actual), width),
			Verdict(row.Passed, row.Pending),
		}
		for _, name := range names {
			r = append(r, Score(row.Metrics[name]))
		}
		rows = append(rows, r)
	}
	out := newTable(headers...).Rows(rows...).String()
	if hidden := len(run.Results) - len(rows); hidden > 0 {
		out += "\n" + labelStyle.Render(fmt.Sprintf("… %d more rows", hidden))
	}
	return out
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// MetricNames returns the metric columns of a run: the suite order when the
// summary is present, otherwise the sorted union of row metrics.
func MetricNames(run *runs.Run) []string {
	if run.Summary != nil && len(run.Summary.Evaluators) > 0 {
		names := make([]string, 0, len(run.Summary.Evaluators))
		for _, ev := range run.Summary.Evaluators {
			names = append(names, ev.Name)
		}
		return names
	}
	seen := map[string]bool{}
	var names []string
	for _, row := range run.Results {
		for name := range row.Metrics {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Score formats a metric score; nil means the score is not available yet.
func Score(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func cell(v any) string {
	s := evaluator.Stringify(v)
	return strings.Join(strings.Fields(s), " ")
}
