// Package engine applies an evaluation suite to the results of a run.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/mwiater/agenteval/internal/evaluator"
	"github.com/mwiater/agenteval/internal/logging"
	"github.com/mwiater/agenteval/internal/runner"
)

// NamedMetric pairs an evaluator name with its metric.
type NamedMetric struct {
	Name   string           `json:"name"`
	Metric evaluator.Metric `json:"metric"`
}

// Metrics holds one metric per evaluator, in suite order.
type Metrics []NamedMetric

// Get returns the metric produced by the named evaluator.
func (m Metrics) Get(name string) (evaluator.Metric, bool) {
	for _, nm := range m {
		if nm.Name == name {
			return nm.Metric, true
		}
	}
	return evaluator.Metric{}, false
}

// EvalResult is the verdict for one successfully executed record.
type EvalResult struct {
	Execution runner.ExecutionResult `json:"execution"`
	Metrics   Metrics                `json:"metrics"`
	Passed    bool                   `json:"passed"`
	Pending   bool                   `json:"pending"`
}

// Observer is notified after each record is evaluated. Calls may arrive from
// several goroutines when concurrency is above one.
type Observer interface {
	RecordEvaluated(index, total int, result EvalResult)
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency bounds the number of records evaluated at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// Engine evaluates execution results against a fixed suite.
type Engine struct {
	suite       evaluator.SuiteConfig
	evaluators  []evaluator.Evaluator
	concurrency int
	observer    Observer
}

// New validates suite and builds every evaluator up front. Any construction
// error aborts before a record is evaluated.
func New(suite evaluator.SuiteConfig, factory *evaluator.Factory, opts ...Option) (*Engine, error) {
	if err := suite.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		factory = evaluator.NewFactory(evaluator.Dependencies{})
	}

	e := &Engine{suite: suite, concurrency: 1}
	for _, opt := range opts {
		opt(e)
	}
	for _, cfg := range suite.Evaluators {
		ev, err := factory.Create(cfg)
		if err != nil {
			return nil, fmt.Errorf("build suite %q: %w", suite.SuiteName, err)
		}
		e.evaluators = append(e.evaluators, ev)
	}
	logging.LogEvent("[ENGINE] Suite %q ready with %d evaluators", suite.SuiteName, len(e.evaluators))
	return e, nil
}

// Suite returns the suite the engine was built from.
func (e *Engine) Suite() evaluator.SuiteConfig {
	return e.suite
}

type job struct {
	ctx   context.Context
	pos   int
	total int
	exec  runner.ExecutionResult
	out   []EvalResult
	done  []bool
	wg    *sync.WaitGroup
}

// EvaluateRun scores every execution result that has no error, preserving
// input order. Evaluator errors and panics become fault metrics. When ctx is
// cancelled no further records are scheduled and the records already
// evaluated are returned together with ctx.Err().
func (e *Engine) EvaluateRun(ctx context.Context, results []runner.ExecutionResult) ([]EvalResult, error) {
	executed := make([]runner.ExecutionResult, 0, len(results))
	for _, r := range results {
		if r.Failed() {
			continue
		}
		executed = append(executed, r)
	}
	if len(executed) == 0 {
		return []EvalResult{}, ctx.Err()
	}

	out := make([]EvalResult, len(executed))
	done := make([]bool, len(executed))

	pool, err := ants.NewPoolWithFunc(e.concurrency, func(args any) {
		j, ok := args.(*job)
		if !ok {
			panic("engine pool args type error")
		}
		defer j.wg.Done()
		if j.ctx.Err() != nil {
			return
		}
		res := e.evaluateRecord(j.ctx, j.exec)
		j.out[j.pos] = res
		j.done[j.pos] = true
		if e.observer != nil {
			e.observer.RecordEvaluated(j.pos, j.total, res)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create engine pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, exec := range executed {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		j := &job{ctx: ctx, pos: i, total: len(executed), exec: exec, out: out, done: done, wg: &wg}
		if err := pool.Invoke(j); err != nil {
			wg.Done()
			wg.Wait()
			return compact(out, done), fmt.Errorf("schedule evaluation: %w", err)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		logging.LogEvent("[ENGINE] Evaluation cancelled: %v", err)
		return compact(out, done), err
	}
	return out, nil
}

func compact(out []EvalResult, done []bool) []EvalResult {
	kept := make([]EvalResult, 0, len(out))
	for i, ok := range done {
		if ok {
			kept = append(kept, out[i])
		}
	}
	return kept
}

func (e *Engine) evaluateRecord(ctx context.Context, exec runner.ExecutionResult) EvalResult {
	res := EvalResult{
		Execution: exec,
		Metrics:   make(Metrics, 0, len(e.evaluators)),
		Passed:    true,
	}
	for _, ev := range e.evaluators {
		m := safeEvaluate(ctx, ev, exec)
		res.Metrics = append(res.Metrics, NamedMetric{Name: ev.Name(), Metric: m})
		res.Passed = res.Passed && m.Passed
		res.Pending = res.Pending || m.Pending
	}
	return res
}

func safeEvaluate(ctx context.Context, ev evaluator.Evaluator, exec runner.ExecutionResult) (m evaluator.Metric) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.LogEvent("[ENGINE] Evaluator %q panicked on record %d: %v", ev.Name(), exec.Index, rec)
			m = evaluator.FaultMetric(fmt.Errorf("panic: %v", rec))
		}
	}()
	m, err := ev.Evaluate(ctx, exec.Record.Input, exec.Output, exec.Record.Expected)
	if err != nil {
		logging.LogEvent("[ENGINE] Evaluator %q failed on record %d: %v", ev.Name(), exec.Index, err)
		return evaluator.FaultMetric(err)
	}
	return m
}
