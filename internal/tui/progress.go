// internal/tui/progress.go
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/agenteval/internal/engine"
	"github.com/mwiater/agenteval/internal/pipeline"
	"github.com/mwiater/agenteval/internal/report"
	"github.com/mwiater/agenteval/internal/runner"
	"github.com/mwiater/agenteval/internal/runs"
	"github.com/mwiater/agenteval/internal/util"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	stageStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle    = lipgloss.NewStyle().Faint(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("178")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	counterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

type stageMsg struct {
	stage pipeline.Stage
	total int
}

type executedMsg struct {
	failed bool
	err    error
}

type evaluatedMsg struct {
	passed  bool
	pending bool
}

type runMsg struct{ run runs.Run }

type doneMsg struct {
	run *runs.Run
	err error
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// progressModel shows a run while it executes and evaluates.
type progressModel struct {
	title      string
	cancel     context.CancelFunc
	spinner    spinner.Model
	bar        progress.Model
	start      time.Time
	elapsed    time.Duration
	stage      pipeline.Stage
	total      int
	completed  int
	execFailed int
	passed     int
	failed     int
	pending    int
	lastErr    string
	status     runs.Status
	runID      string
	cancelling bool
	done       bool
	result     *runs.Run
	err        error
}

func newProgressModel(title string, cancel context.CancelFunc) *progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return &progressModel{
		title:   title,
		cancel:  cancel,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		start:   time.Now(),
		status:  runs.StatusPending,
	}
}

// Init starts the spinner and the elapsed timer.
func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// Update folds pipeline events and key presses into the model.
func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.cancelling && m.cancel != nil {
				m.cancelling = true
				m.cancel()
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(msg.Width-20, 80))
		return m, nil
	case stageMsg:
		m.stage = msg.stage
		m.total = msg.total
		m.completed = 0
		return m, nil
	case executedMsg:
		m.completed++
		if msg.failed {
			m.execFailed++
			if msg.err != nil {
				m.lastErr = msg.err.Error()
			}
		}
		return m, nil
	case evaluatedMsg:
		m.completed++
		switch {
		case msg.pending:
			m.pending++
		case msg.passed:
			m.passed++
		default:
			m.failed++
		}
		return m, nil
	case runMsg:
		m.status = msg.run.Status
		m.runID = msg.run.ID
		return m, nil
	case doneMsg:
		m.done = true
		m.result = msg.run
		m.err = msg.err
		return m, tea.Quit
	case tickMsg:
		m.elapsed = time.Since(m.start)
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) percent() float64 {
	if m.total <= 0 {
		return 0
	}
	return float64(m.completed) / float64(m.total)
}

// View renders the progress screen.
func (m *progressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title) + "  " + report.StatusChip(m.status) + "\n")
	if m.runID != "" {
		b.WriteString(helpStyle.Render("run "+m.runID) + "\n")
	}
	b.WriteString("\n")

	stage := "preparing"
	if m.stage != "" {
		stage = string(m.stage)
	}
	timer := fmt.Sprintf("%.1fs", m.elapsed.Seconds())
	if !m.done {
		b.WriteString(m.spinner.View() + " ")
	}
	b.WriteString(stageStyle.Render(stage) + " " + counterStyle.Render(fmt.Sprintf("%d/%d  %s", m.completed, m.total, timer)) + "\n")
	b.WriteString(m.bar.ViewAs(m.percent()) + "\n\n")

	b.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d   agent errors %d\n",
		report.Verdict(true, false), m.passed,
		report.Verdict(false, false), m.failed,
		report.Verdict(false, true), m.pending,
		m.execFailed))
	if m.lastErr != "" {
		b.WriteString(errorStyle.Render("last error: "+util.TruncateRunes(m.lastErr, 100)) + "\n")
	}
	if m.cancelling && !m.done {
		b.WriteString(warnStyle.Render("cancelling, waiting for in-flight records…") + "\n")
	}
	if !m.done {
		b.WriteString("\n" + helpStyle.Render("q / ctrl+c cancel the run"))
	}
	return lipgloss.NewStyle().Margin(1, 2).Render(b.String())
}

// programObserver forwards pipeline events into a running program.
type programObserver struct {
	send func(tea.Msg)
}

func (o programObserver) RecordStarted(index, total int) {}

func (o programObserver) RecordFinished(index, total int, result runner.ExecutionResult) {
	o.send(executedMsg{failed: result.Failed(), err: result.Err})
}

func (o programObserver) RecordEvaluated(index, total int, result engine.EvalResult) {
	o.send(evaluatedMsg{passed: result.Passed, pending: result.Pending})
}

func (o programObserver) StageStarted(stage pipeline.Stage, total int) {
	o.send(stageMsg{stage: stage, total: total})
}

func (o programObserver) RunUpdated(run runs.Run) {
	o.send(runMsg{run: run})
}

// RunFunc performs a run, reporting to obs.
type RunFunc func(ctx context.Context, obs pipeline.Observer) (*runs.Run, error)

// Run shows live progress while fn executes. Pressing q or ctrl+c cancels the
// context passed to fn; Run still waits for fn to return its final run.
func Run(ctx context.Context, title string, out io.Writer, fn RunFunc) (*runs.Run, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newProgressModel(title, cancel)
	// no WithContext: the program outlives cancellation to show the final state
	var opts []tea.ProgramOption
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}
	p := tea.NewProgram(m, opts...)

	result := make(chan doneMsg, 1)
	go func() {
		run, err := fn(ctx, programObserver{send: p.Send})
		result <- doneMsg{run: run, err: err}
		p.Send(doneMsg{run: run, err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		done := <-result
		if done.err != nil {
			return done.run, done.err
		}
		return done.run, fmt.Errorf("progress view: %w", err)
	}
	done := <-result
	return done.run, done.err
}
