// Package pipeline runs one evaluation end to end: it records the run, drives
// the dataset through the agent, scores the outputs and persists the verdict.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mwiater/agenteval/internal/dataset"
	"github.com/mwiater/agenteval/internal/engine"
	"github.com/mwiater/agenteval/internal/environment"
	"github.com/mwiater/agenteval/internal/evaluator"
	"github.com/mwiater/agenteval/internal/logging"
	"github.com/mwiater/agenteval/internal/metrics"
	"github.com/mwiater/agenteval/internal/runner"
	"github.com/mwiater/agenteval/internal/runs"
)

// Stage names a phase of a run.
type Stage string

const (
	StageExecute  Stage = "execute"
	StageEvaluate Stage = "evaluate"
)

// Observer follows a run. Record callbacks may arrive from several goroutines.
type Observer interface {
	runner.Observer
	engine.Observer
	StageStarted(stage Stage, total int)
	RunUpdated(run runs.Run)
}

// NopObserver ignores every event; embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) RecordStarted(index, total int)                                {}
func (NopObserver) RecordFinished(index, total int, result runner.ExecutionResult) {}
func (NopObserver) RecordEvaluated(index, total int, result engine.EvalResult)     {}
func (NopObserver) StageStarted(stage Stage, total int)                           {}
func (NopObserver) RunUpdated(run runs.Run)                                       {}

// ClientFactory builds the agent client for an environment.
type ClientFactory func(cfg environment.Config) (environment.Client, error)

// Request describes one run.
type Request struct {
	Name            string
	EnvironmentName string
	Environment     environment.Config
	DatasetName     string
	DatasetPath     string
	// Records, when set, are used instead of loading DatasetPath.
	Records []dataset.Record
	Suite   evaluator.SuiteConfig
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClientFactory overrides how agent clients are built.
func WithClientFactory(f ClientFactory) Option {
	return func(p *Pipeline) { p.clients = f }
}

// WithEvaluatorFactory sets the factory used to build the suite.
func WithEvaluatorFactory(f *evaluator.Factory) Option {
	return func(p *Pipeline) { p.evaluators = f }
}

// WithConcurrency bounds both record execution and evaluation.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) { p.concurrency = n }
}

// WithObserver registers a run observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithAggregator records agent latency under the agent name.
func WithAggregator(a *metrics.Aggregator) Option {
	return func(p *Pipeline) { p.aggregator = a }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline orchestrates runs against a store.
type Pipeline struct {
	store       runs.Store
	clients     ClientFactory
	evaluators  *evaluator.Factory
	concurrency int
	observer    Observer
	aggregator  *metrics.Aggregator
	now         func() time.Time
}

// New returns a pipeline that persists into store.
func New(store runs.Store, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("pipeline: nil run store")
	}
	p := &Pipeline{
		store:       store,
		concurrency: 1,
		observer:    NopObserver{},
		now:         time.Now,
		clients: func(cfg environment.Config) (environment.Client, error) {
			return environment.NewClient(cfg, environment.Options{})
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.evaluators == nil {
		p.evaluators = evaluator.NewFactory(evaluator.Dependencies{})
	}
	return p, nil
}

// Execute performs the run described by req. The returned run is always in a
// terminal state and has been saved, unless saving itself failed. A non-nil
// error means the run ended Failed.
func (p *Pipeline) Execute(ctx context.Context, req Request) (*runs.Run, error) {
	run := runs.New(
		runName(req),
		firstNonEmpty(req.EnvironmentName, req.Environment.AgentName, req.Environment.APIEndpoint),
		req.Environment.AgentName,
		firstNonEmpty(req.DatasetName, filepath.Base(req.DatasetPath)),
		req.Suite.SuiteName,
		p.now(),
	)
	start := p.now()
	if err := run.Transition(runs.StatusRunning); err != nil {
		return run, err
	}
	if err := p.save(ctx, run); err != nil {
		return run, err
	}
	logging.LogEvent("[PIPELINE] Run %s (%s) started", run.ID, run.Name)

	var (
		executions []runner.ExecutionResult
		results    []engine.EvalResult
	)
	fail := func(cause error) (*runs.Run, error) {
		run.Record(results, executions, p.now().Sub(start))
		run.Error = cause.Error()
		if err := run.Transition(runs.StatusFailed); err != nil {
			return run, errors.Join(cause, err)
		}
		logging.LogEvent("[PIPELINE] Run %s failed: %v", run.ID, cause)
		// the caller's context may be cancelled; the final state must still land
		if err := p.save(context.WithoutCancel(ctx), run); err != nil {
			return run, errors.Join(cause, err)
		}
		return run, cause
	}

	records := req.Records
	if records == nil {
		loaded, err := dataset.LoadFile(req.DatasetPath)
		if err != nil {
			return fail(err)
		}
		records = loaded
	}

	client, err := p.clients(req.Environment)
	if err != nil {
		return fail(fmt.Errorf("build agent client: %w", err))
	}
	if client == nil {
		return fail(fmt.Errorf("build agent client: %w", runner.ErrNilClient))
	}
	if p.aggregator != nil {
		client = metrics.NewClient(client, p.aggregator, firstNonEmpty(req.Environment.AgentName, run.Environment))
	}

	eng, err := engine.New(req.Suite, p.evaluators, engine.WithConcurrency(p.concurrency), engine.WithObserver(p.observer))
	if err != nil {
		return fail(err)
	}
	r, err := runner.New(client, runner.WithConcurrency(p.concurrency), runner.WithObserver(p.observer))
	if err != nil {
		return fail(err)
	}

	p.observer.StageStarted(StageExecute, len(records))
	executions, err = r.Run(ctx, records)
	if err != nil {
		// records that finished before cancellation are still scored and kept
		if completed := countExecuted(executions); completed > 0 {
			p.observer.StageStarted(StageEvaluate, completed)
			results, _ = eng.EvaluateRun(context.WithoutCancel(ctx), executions)
		}
		return fail(fmt.Errorf("execute records: %w", err))
	}

	p.observer.StageStarted(StageEvaluate, countExecuted(executions))
	results, err = eng.EvaluateRun(ctx, executions)
	if err != nil {
		return fail(fmt.Errorf("evaluate records: %w", err))
	}

	run.Record(results, executions, p.now().Sub(start))
	if err := run.Transition(runs.StatusSucceeded); err != nil {
		return fail(err)
	}
	if err := p.save(ctx, run); err != nil {
		return run, err
	}
	logging.LogEvent("[PIPELINE] Run %s succeeded: pass rate %.1f%% over %d records", run.ID, run.PassRate, run.TotalRecords)
	return run, nil
}

func (p *Pipeline) save(ctx context.Context, run *runs.Run) error {
	if err := p.store.Save(ctx, run); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	p.observer.RunUpdated(*run)
	return nil
}

func countExecuted(executions []runner.ExecutionResult) int {
	n := 0
	for _, exec := range executions {
		if !exec.Failed() {
			n++
		}
	}
	return n
}

func runName(req Request) string {
	if name := strings.TrimSpace(req.Name); name != "" {
		return name
	}
	if req.Suite.SuiteName != "" {
		return req.Suite.SuiteName
	}
	return "run"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" && v != "." {
			return v
		}
	}
	return ""
}
