// Package runner drives dataset records through an agent client and collects
// one execution result per record, in input order.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/mwiater/agenteval/internal/dataset"
	"github.com/mwiater/agenteval/internal/environment"
	"github.com/mwiater/agenteval/internal/logging"
)

var (
	// ErrNilClient is returned by New when no agent client is supplied.
	ErrNilClient = errors.New("runner: nil agent client")
	// ErrNotExecuted marks records that never started because the run was cancelled.
	ErrNotExecuted = errors.New("record not executed")
	// ErrClientPanic marks records whose agent call panicked.
	ErrClientPanic = errors.New("agent client panic")
)

// ExecutionResult is the outcome of invoking the agent for one record.
// Exactly one of Executed and Err holds; Output may be nil when Executed.
type ExecutionResult struct {
	Index    int
	Record   dataset.Record
	Output   any
	Executed bool
	Err      error
}

// Failed reports whether the record produced an error instead of an output.
func (r ExecutionResult) Failed() bool {
	return r.Err != nil
}

// Observer receives progress notifications. Calls may arrive from several
// goroutines when concurrency is above one.
type Observer interface {
	RecordStarted(index, total int)
	RecordFinished(index, total int, result ExecutionResult)
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency bounds the number of records in flight. Values below one
// select the sequential default.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observer = o
	}
}

// Runner invokes an agent for every record of a dataset.
type Runner struct {
	client      environment.Client
	concurrency int
	observer    Observer
}

// New returns a Runner bound to client.
func New(client environment.Client, opts ...Option) (*Runner, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	r := &Runner{client: client, concurrency: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type task struct {
	ctx     context.Context
	index   int
	total   int
	record  dataset.Record
	results []ExecutionResult
	wg      *sync.WaitGroup
}

// Run executes every record and returns exactly len(records) results in input
// order. Agent failures are recorded per record and never abort the run. When
// ctx is cancelled no further records start; those records carry
// ErrNotExecuted and Run returns ctx.Err() alongside the results.
func (r *Runner) Run(ctx context.Context, records []dataset.Record) ([]ExecutionResult, error) {
	results := make([]ExecutionResult, len(records))
	if len(records) == 0 {
		return results, nil
	}

	pool, err := ants.NewPoolWithFunc(r.concurrency, func(args any) {
		t, ok := args.(*task)
		if !ok {
			panic("runner pool args type error")
		}
		defer t.wg.Done()
		t.results[t.index] = r.execute(t.ctx, t.index, t.total, t.record)
	})
	if err != nil {
		return nil, fmt.Errorf("create runner pool: %w", err)
	}
	defer pool.Release()

	logging.LogEvent("[RUNNER] Running %d records with concurrency %d", len(records), r.concurrency)

	var wg sync.WaitGroup
	for i, rec := range records {
		if ctx.Err() != nil {
			results[i] = notExecuted(ctx, i, rec)
			continue
		}
		wg.Add(1)
		t := &task{ctx: ctx, index: i, total: len(records), record: rec, results: results, wg: &wg}
		if err := pool.Invoke(t); err != nil {
			wg.Done()
			results[i] = ExecutionResult{Index: i, Record: rec, Err: fmt.Errorf("schedule record: %w", err)}
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		logging.LogEvent("[RUNNER] Run cancelled: %v", err)
		return results, err
	}
	return results, nil
}

func (r *Runner) execute(ctx context.Context, index, total int, rec dataset.Record) ExecutionResult {
	if ctx.Err() != nil {
		return notExecuted(ctx, index, rec)
	}
	if r.observer != nil {
		r.observer.RecordStarted(index, total)
	}

	result := ExecutionResult{Index: index, Record: rec}
	output, err := r.invoke(ctx, rec.Input)
	if err != nil {
		result.Err = err
		logging.LogEvent("[RUNNER] Record %d failed: %v", index, err)
	} else {
		result.Output = output
		result.Executed = true
	}

	if r.observer != nil {
		r.observer.RecordFinished(index, total, result)
	}
	return result
}

func (r *Runner) invoke(ctx context.Context, input any) (output any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			output = nil
			err = fmt.Errorf("%w: %v", ErrClientPanic, rec)
		}
	}()
	return r.client.Invoke(ctx, input)
}

func notExecuted(ctx context.Context, index int, rec dataset.Record) ExecutionResult {
	return ExecutionResult{
		Index:  index,
		Record: rec,
		Err:    fmt.Errorf("%w: %w", ErrNotExecuted, context.Cause(ctx)),
	}
}
