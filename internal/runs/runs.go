// Package runs models an evaluation run's lifecycle and defines the store
// that persists it.
package runs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mwiater/agenteval/internal/engine"
	"github.com/mwiater/agenteval/internal/runner"
)

var (
	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid run status transition")
	// ErrRunNotFound is returned by stores for an unknown run ID.
	ErrRunNotFound = fmt.Errorf("run not found: %w", os.ErrNotExist)
)

// Status is a run's lifecycle state.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusRunning   Status = "Running"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusSucceeded, StatusFailed},
}

// CanTransition reports whether a run in status s may move to to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Row is the stored form of one evaluated record.
type Row struct {
	Input    any                 `json:"input"`
	Expected any                 `json:"expected"`
	Actual   any                 `json:"actual"`
	Passed   bool                `json:"passed"`
	Pending  bool                `json:"pending,omitempty"`
	Metrics  map[string]*float64 `json:"metrics"`
}

// Failure is the stored form of a record the agent could not answer.
type Failure struct {
	Index int    `json:"index"`
	Input any    `json:"input"`
	Error string `json:"error"`
}

// Run is one evaluation of a dataset against an agent.
type Run struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Environment       string          `json:"environment"`
	Agent             string          `json:"agent"`
	Dataset           string          `json:"dataset"`
	Suite             string          `json:"suite,omitempty"`
	Status            Status          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	Duration          string          `json:"duration"`
	PassRate          float64         `json:"pass_rate"`
	TotalRecords      int             `json:"total_records"`
	ExecutionFailures int             `json:"execution_failures"`
	PendingRecords    int             `json:"pending_records"`
	Error             string          `json:"error,omitempty"`
	Summary           *engine.Summary `json:"summary,omitempty"`
	Results           []Row           `json:"results"`
	Failures          []Failure       `json:"failures,omitempty"`
}

// New returns a Pending run with a fresh ID.
func New(name, environment, agent, dataset, suite string, createdAt time.Time) *Run {
	return &Run{
		ID:          uuid.NewString(),
		Name:        name,
		Environment: environment,
		Agent:       agent,
		Dataset:     dataset,
		Suite:       suite,
		Status:      StatusPending,
		CreatedAt:   createdAt.UTC(),
		Duration:    "0s",
		Results:     []Row{},
	}
}

// Transition moves the run to status to.
func (r *Run) Transition(to Status) error {
	if !r.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	return nil
}

// Record fills the run's statistics and rows from the pipeline output. It
// may be called for partial output before a failure.
func (r *Run) Record(results []engine.EvalResult, executions []runner.ExecutionResult, elapsed time.Duration) {
	summary := engine.Summarize(results, executions)
	r.Summary = &summary
	r.Duration = FormatDuration(elapsed)
	r.PassRate = summary.PassRate
	r.TotalRecords = summary.Total
	r.ExecutionFailures = summary.ExecutionFailures
	r.PendingRecords = summary.Pending
	r.Results = RowsFromResults(results)
	r.Failures = FailuresFromExecutions(executions)
}

// FormatDuration renders d as seconds with one decimal place, e.g. "1.2s".
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// RowsFromResults converts evaluated records into stored rows.
func RowsFromResults(results []engine.EvalResult) []Row {
	rows := make([]Row, 0, len(results))
	for _, res := range results {
		scores := make(map[string]*float64, len(res.Metrics))
		for _, nm := range res.Metrics {
			scores[nm.Name] = nm.Metric.Score
		}
		rows = append(rows, Row{
			Input:    res.Execution.Record.Input,
			Expected: res.Execution.Record.Expected,
			Actual:   res.Execution.Output,
			Passed:   res.Passed,
			Pending:  res.Pending,
			Metrics:  scores,
		})
	}
	return rows
}

// FailuresFromExecutions lists the records whose execution failed.
func FailuresFromExecutions(executions []runner.ExecutionResult) []Failure {
	var out []Failure
	for _, exec := range executions {
		if !exec.Failed() {
			continue
		}
		out = append(out, Failure{Index: exec.Index, Input: exec.Record.Input, Error: exec.Err.Error()})
	}
	return out
}

// Store persists runs. Save upserts by ID and List returns runs newest first.
type Store interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context) ([]*Run, error)
	Close() error
}
