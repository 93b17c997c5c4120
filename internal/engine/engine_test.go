package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/mwiater/agenteval/internal/dataset"
	"github.com/mwiater/agenteval/internal/environment"
	"github.com/mwiater/agenteval/internal/evaluator"
	"github.com/mwiater/agenteval/internal/runner"
)

func threshold(v float64) *float64 { return &v }

func exactMatchSuite() evaluator.SuiteConfig {
	return evaluator.SuiteConfig{
		SuiteName: "qa",
		Evaluators: []evaluator.Config{
			{Name: "Exact Match", Type: "local-function", Target: "exact_match", PassThreshold: threshold(1)},
			{Name: "JSON", Type: "local-function", Target: "json_validity", PassThreshold: threshold(1)},
		},
	}
}

func executed(i int, output any, expected any) runner.ExecutionResult {
	return runner.ExecutionResult{
		Index:    i,
		Record:   dataset.Record{Input: fmt.Sprintf("q%d", i), Expected: expected},
		Output:   output,
		Executed: true,
	}
}

func TestNewRejectsUnsupportedType(t *testing.T) {
	suite := evaluator.SuiteConfig{
		SuiteName:  "bad",
		Evaluators: []evaluator.Config{{Name: "Mystery", Type: "telepathy", Target: "x"}},
	}
	if _, err := New(suite, evaluator.NewFactory(evaluator.Dependencies{})); !errors.Is(err, evaluator.ErrUnsupportedEvaluatorType) {
		t.Fatalf("expected ErrUnsupportedEvaluatorType, got %v", err)
	}
}

func TestNewRejectsEmptyType(t *testing.T) {
	suite := evaluator.SuiteConfig{
		SuiteName:  "blank",
		Evaluators: []evaluator.Config{{Name: "Untyped", Type: "", Target: "exact_match"}},
	}
	_, err := New(suite, evaluator.NewFactory(evaluator.Dependencies{}))
	if !errors.Is(err, evaluator.ErrUnsupportedEvaluatorType) {
		t.Fatalf("expected ErrUnsupportedEvaluatorType, got %v", err)
	}
	if !errors.Is(err, evaluator.ErrInvalidSuite) {
		t.Fatalf("expected ErrInvalidSuite, got %v", err)
	}
}

func TestNewRejectsInvalidSuite(t *testing.T) {
	suite := evaluator.SuiteConfig{Evaluators: []evaluator.Config{
		{Name: "A", Type: "local", Target: "exact_match"},
		{Name: "A", Type: "local", Target: "exact_match"},
	}}
	if _, err := New(suite, nil); !errors.Is(err, evaluator.ErrInvalidSuite) {
		t.Fatalf("expected ErrInvalidSuite, got %v", err)
	}
}

func TestEvaluateRunScoresAnswers(t *testing.T) {
	eng, err := New(exactMatchSuite(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	results, err := eng.EvaluateRun(context.Background(), []runner.ExecutionResult{
		executed(0, "4", map[string]any{"answer": "4"}),
		executed(1, "five", map[string]any{"answer": "4"}),
	})
	if err != nil {
		t.Fatalf("EvaluateRun: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	em, _ := results[0].Metrics.Get("Exact Match")
	if *em.Score != 1 || !em.Passed || !results[0].Passed {
		t.Fatalf("expected first record to pass, got %+v", results[0])
	}
	em, _ = results[1].Metrics.Get("Exact Match")
	if *em.Score != 0 || em.Passed || results[1].Passed {
		t.Fatalf("expected second record to fail, got %+v", results[1])
	}
	if results[0].Metrics[0].Name != "Exact Match" || results[0].Metrics[1].Name != "JSON" {
		t.Fatalf("metrics not in suite order: %+v", results[0].Metrics)
	}
}

func TestEvaluateRunSkipsExecutionFailures(t *testing.T) {
	eng, _ := New(exactMatchSuite(), nil)
	execs := []runner.ExecutionResult{
		executed(0, "4", "4"),
		{Index: 1, Record: dataset.Record{Input: "q1"}, Err: fmt.Errorf("%w: slow", environment.ErrAgentTimeout)},
		executed(2, "4", "4"),
	}
	results, err := eng.EvaluateRun(context.Background(), execs)
	if err != nil {
		t.Fatalf("EvaluateRun: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 eval results from 3 executions, got %d", len(results))
	}
	for _, r := range results {
		if r.Execution.Index == 1 {
			t.Fatal("failed execution must not be evaluated")
		}
	}

	sum := Summarize(results, execs)
	if sum.Total != 2 || sum.ExecutionFailures != 1 || sum.Passed != 2 || sum.PassRate != 100 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestEvaluateRunNoEvaluatorsPasses(t *testing.T) {
	eng, err := New(evaluator.SuiteConfig{SuiteName: "empty"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	results, err := eng.EvaluateRun(context.Background(), []runner.ExecutionResult{executed(0, "x", nil)})
	if err != nil {
		t.Fatalf("EvaluateRun: %v", err)
	}
	if !results[0].Passed || len(results[0].Metrics) != 0 {
		t.Fatalf("expected vacuous pass, got %+v", results[0])
	}
}

type stubEvaluator struct {
	name string
	fn   func(actual any) (evaluator.Metric, error)
}

func (s stubEvaluator) Name() string { return s.name }

func (s stubEvaluator) Evaluate(ctx context.Context, input, actual, expected any) (evaluator.Metric, error) {
	return s.fn(actual)
}

func registerStub(t *testing.T, typ string, fn func(actual any) (evaluator.Metric, error)) {
	t.Helper()
	evaluator.Register(typ, func(cfg evaluator.Config, deps evaluator.Dependencies) (evaluator.Evaluator, error) {
		return stubEvaluator{name: cfg.Name, fn: fn}, nil
	})
}

func TestEvaluateRunIsolatesFaults(t *testing.T) {
	registerStub(t, "test-erroring", func(actual any) (evaluator.Metric, error) {
		return evaluator.Metric{}, errors.New("scorer offline")
	})
	registerStub(t, "test-panicking", func(actual any) (evaluator.Metric, error) {
		panic("scorer exploded")
	})

	suite := evaluator.SuiteConfig{SuiteName: "faulty", Evaluators: []evaluator.Config{
		{Name: "Erroring", Type: "test-erroring"},
		{Name: "Panicking", Type: "test-panicking"},
		{Name: "Exact", Type: "local-function", Target: "exact_match", PassThreshold: threshold(1)},
	}}
	eng, err := New(suite, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	results, err := eng.EvaluateRun(context.Background(), []runner.ExecutionResult{executed(0, "a", "a"), executed(1, "b", "b")})
	if err != nil {
		t.Fatalf("EvaluateRun: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both records evaluated, got %d", len(results))
	}
	for _, r := range results {
		for _, name := range []string{"Erroring", "Panicking"} {
			m, _ := r.Metrics.Get(name)
			if !m.Fault || m.Passed || m.Score != nil || !errors.Is(m.FaultError(), evaluator.ErrEvaluatorFault) {
				t.Fatalf("expected fault metric for %s, got %+v", name, m)
			}
		}
		if m, _ := r.Metrics.Get("Exact"); !m.Passed {
			t.Fatalf("healthy evaluator should still run, got %+v", m)
		}
		if r.Passed {
			t.Fatal("record with faults must not pass")
		}
	}

	sum := Summarize(results, nil)
	if sum.Evaluators[0].Faults != 2 || sum.Evaluators[2].Passed != 2 {
		t.Fatalf("unexpected evaluator stats %+v", sum.Evaluators)
	}
}

func TestEvaluateRunPendingRecords(t *testing.T) {
	suite := evaluator.SuiteConfig{SuiteName: "mixed", Evaluators: []evaluator.Config{
		{Name: "Exact", Type: "local-function", Target: "exact_match", PassThreshold: threshold(1)},
		{Name: "Human", Type: "human-placeholder"},
	}}
	eng, err := New(suite, evaluator.NewFactory(evaluator.Dependencies{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	results, _ := eng.EvaluateRun(context.Background(), []runner.ExecutionResult{executed(0, "a", "a")})
	if results[0].Passed || !results[0].Pending {
		t.Fatalf("expected pending, not passed: %+v", results[0])
	}
	sum := Summarize(results, nil)
	if sum.Pending != 1 || sum.Failed != 0 || sum.PassRate != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestEvaluateRunConcurrentOrder(t *testing.T) {
	eng, _ := New(exactMatchSuite(), nil, WithConcurrency(8))
	var execs []runner.ExecutionResult
	for i := 0; i < 40; i++ {
		execs = append(execs, executed(i, fmt.Sprint(i), fmt.Sprint(i%2*i)))
	}
	results, err := eng.EvaluateRun(context.Background(), execs)
	if err != nil {
		t.Fatalf("EvaluateRun: %v", err)
	}
	for i, r := range results {
		if r.Execution.Index != i {
			t.Fatalf("result %d out of order: index %d", i, r.Execution.Index)
		}
	}
}

type countingObserver struct {
	mu    sync.Mutex
	count int
	stop  func()
	after int
}

func (o *countingObserver) RecordEvaluated(index, total int, result EvalResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.count++
	if o.stop != nil && o.count == o.after {
		o.stop()
	}
}

func TestEvaluateRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	obs := &countingObserver{stop: cancel, after: 2}

	eng, _ := New(exactMatchSuite(), nil, WithObserver(obs))
	var execs []runner.ExecutionResult
	for i := 0; i < 6; i++ {
		execs = append(execs, executed(i, "x", "x"))
	}
	results, err := eng.EvaluateRun(ctx, execs)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 evaluated records before cancellation, got %d", len(results))
	}
	if results[0].Execution.Index != 0 || results[1].Execution.Index != 1 {
		t.Fatalf("unexpected partial results %+v", results)
	}
}

func TestPassRate(t *testing.T) {
	cases := []struct {
		passed, total int
		want          float64
	}{
		{0, 0, 0},
		{2, 3, 66.7},
		{1, 3, 33.3},
		{3, 3, 100},
		{1, 8, 12.5},
	}
	for _, tc := range cases {
		if got := PassRate(tc.passed, tc.total); got != tc.want {
			t.Fatalf("PassRate(%d, %d) = %v, want %v", tc.passed, tc.total, got, tc.want)
		}
	}
}

func TestEndToEndWithRunner(t *testing.T) {
	client := clientFunc(func(ctx context.Context, input any) (any, error) {
		if input == "q1" {
			return nil, fmt.Errorf("%w: deadline", environment.ErrAgentTimeout)
		}
		return "4", nil
	})
	r, err := runner.New(client)
	if err != nil {
		t.Fatalf("runner.New: %v", err)
	}
	records := []dataset.Record{
		{Input: "q0", Expected: map[string]any{"answer": "4"}},
		{Input: "q1", Expected: map[string]any{"answer": "4"}},
		{Input: "q2", Expected: map[string]any{"answer": "5"}},
	}
	execs, err := r.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	eng, _ := New(exactMatchSuite(), nil)
	results, err := eng.EvaluateRun(context.Background(), execs)
	if err != nil {
		t.Fatalf("EvaluateRun: %v", err)
	}
	if len(execs) != 3 || len(results) != 2 {
		t.Fatalf("expected 3 executions and 2 evaluations, got %d and %d", len(execs), len(results))
	}
	sum := Summarize(results, execs)
	if sum.PassRate != 50 || sum.ExecutionFailures != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

type clientFunc func(ctx context.Context, input any) (any, error)

func (f clientFunc) Invoke(ctx context.Context, input any) (any, error) { return f(ctx, input) }
