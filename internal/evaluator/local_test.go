package evaluator

import (
	"context"
	"errors"
	"math"
	"testing"
)

func threshold(v float64) *float64 { return &v }

func mustCreate(t *testing.T, cfg Config) Evaluator {
	t.Helper()
	ev, err := NewFactory(Dependencies{}).Create(cfg)
	if err != nil {
		t.Fatalf("Create(%+v): %v", cfg, err)
	}
	return ev
}

func evaluate(t *testing.T, ev Evaluator, input, actual, expected any) Metric {
	t.Helper()
	m, err := ev.Evaluate(context.Background(), input, actual, expected)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return m
}

func TestExactMatchAgainstAnswerObject(t *testing.T) {
	ev := mustCreate(t, Config{Name: "Exact Match", Type: "local-function", Target: "exact_match", PassThreshold: threshold(1)})

	m := evaluate(t, ev, "2+2?", "4", map[string]any{"answer": "4"})
	if m.Score == nil || *m.Score != 1 || !m.Passed {
		t.Fatalf("expected match, got %+v", m)
	}

	m = evaluate(t, ev, "2+2?", "five", map[string]any{"answer": "4"})
	if m.Score == nil || *m.Score != 0 || m.Passed {
		t.Fatalf("expected mismatch, got %+v", m)
	}

	m = evaluate(t, ev, "2+2?", "  4 \n", map[string]any{"answer": "4"})
	if *m.Score != 1 {
		t.Fatalf("expected trimmed match for answer objects, got %+v", m)
	}
}

func TestExactMatchPlainValues(t *testing.T) {
	ev := mustCreate(t, Config{Name: "em", Type: "rule-based", Target: "exact_match", PassThreshold: threshold(1)})

	if m := evaluate(t, ev, nil, "Paris", "Paris"); *m.Score != 1 {
		t.Fatalf("expected match, got %+v", m)
	}
	if m := evaluate(t, ev, nil, " Paris", "Paris"); *m.Score != 0 {
		t.Fatalf("plain values compare without trimming, got %+v", m)
	}
}

func TestThresholdDefaultsToZero(t *testing.T) {
	ev := mustCreate(t, Config{Name: "em", Type: "local", Target: "exact_match"})
	m := evaluate(t, ev, nil, "a", "b")
	if *m.Score != 0 || !m.Passed {
		t.Fatalf("score 0 should pass a zero threshold, got %+v", m)
	}
}

func TestF1Score(t *testing.T) {
	ev := mustCreate(t, Config{Name: "f1", Type: "local-function", Target: "f1_score", PassThreshold: threshold(0.5)})

	m := evaluate(t, ev, nil, "The cat sat", map[string]any{"answer": "the cat sat down"})
	// precision 3/3, recall 3/4
	want := 2 * 1.0 * 0.75 / 1.75
	if math.Abs(*m.Score-want) > 1e-9 || !m.Passed {
		t.Fatalf("unexpected f1 %+v, want %v", m, want)
	}

	m = evaluate(t, ev, nil, "dog", "cat")
	if *m.Score != 0 || m.Passed {
		t.Fatalf("expected zero overlap, got %+v", m)
	}

	m = evaluate(t, ev, nil, "", "")
	if *m.Score != 1 {
		t.Fatalf("expected empty answers to match, got %+v", m)
	}
}

func TestKeywordCheck(t *testing.T) {
	ev := mustCreate(t, Config{
		Name: "kw", Type: "local-function", Target: "keyword_check", PassThreshold: threshold(1),
		Parameters: map[string]any{"keywords": []any{"Refund", "policy"}},
	})

	m := evaluate(t, ev, nil, "Our REFUND window is 30 days", nil)
	if *m.Score != 1 || !m.Passed {
		t.Fatalf("expected keyword hit, got %+v", m)
	}
	m = evaluate(t, ev, nil, "Nothing relevant", nil)
	if *m.Score != 0 || m.Passed {
		t.Fatalf("expected keyword miss, got %+v", m)
	}

	if _, err := NewFactory(Dependencies{}).Create(Config{
		Name: "bad", Type: "local", Target: "keyword_check",
		Parameters: map[string]any{"keywords": "refund"},
	}); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters, got %v", err)
	}
}

func TestJSONValidity(t *testing.T) {
	ev := mustCreate(t, Config{Name: "json", Type: "local-function", Target: "json_validity", PassThreshold: threshold(1)})

	if m := evaluate(t, ev, nil, `{"ok":true}`, nil); *m.Score != 1 {
		t.Fatalf("expected valid JSON, got %+v", m)
	}
	if m := evaluate(t, ev, nil, `{"ok":`, nil); *m.Score != 0 || m.Passed {
		t.Fatalf("expected invalid JSON, got %+v", m)
	}
	if m := evaluate(t, ev, nil, map[string]any{"ok": true}, nil); *m.Score != 1 {
		t.Fatalf("structured outputs are already valid, got %+v", m)
	}
}

func TestJSONSchema(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"answer"},
		"properties": map[string]any{
			"answer": map[string]any{"type": "string"},
		},
	}
	ev := mustCreate(t, Config{
		Name: "schema", Type: "local-function", Target: "json_schema", PassThreshold: threshold(1),
		Parameters: map[string]any{"schema": schema},
	})

	if m := evaluate(t, ev, nil, map[string]any{"answer": "4"}, nil); *m.Score != 1 || !m.Passed {
		t.Fatalf("expected schema match, got %+v", m)
	}
	if m := evaluate(t, ev, nil, `{"answer": 4}`, nil); *m.Score != 0 || m.Details["violations"] == nil {
		t.Fatalf("expected violations, got %+v", m)
	}
	if m := evaluate(t, ev, nil, `not json`, nil); *m.Score != 0 {
		t.Fatalf("expected failure for non-JSON output, got %+v", m)
	}

	if _, err := NewFactory(Dependencies{}).Create(Config{Name: "s", Type: "local", Target: "json_schema"}); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters without schema, got %v", err)
	}
}

func TestRegexMatch(t *testing.T) {
	ev := mustCreate(t, Config{
		Name: "re", Type: "local-function", Target: "regex_match", PassThreshold: threshold(1),
		Parameters: map[string]any{"pattern": `^\d{3}-\d{4}$`},
	})
	if m := evaluate(t, ev, nil, "555-1234", nil); *m.Score != 1 {
		t.Fatalf("expected regex match, got %+v", m)
	}
	if m := evaluate(t, ev, nil, "call me", nil); *m.Score != 0 {
		t.Fatalf("expected regex miss, got %+v", m)
	}

	if _, err := NewFactory(Dependencies{}).Create(Config{
		Name: "re", Type: "local", Target: "regex_match",
		Parameters: map[string]any{"pattern": "("},
	}); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected compile error at construction, got %v", err)
	}
}

func TestUnknownLocalTarget(t *testing.T) {
	_, err := NewFactory(Dependencies{}).Create(Config{Name: "x", Type: "local-function", Target: "bleu"})
	if !errors.Is(err, ErrUnknownEvaluatorTarget) {
		t.Fatalf("expected ErrUnknownEvaluatorTarget, got %v", err)
	}
}

func TestUnsupportedType(t *testing.T) {
	_, err := NewFactory(Dependencies{}).Create(Config{Name: "x", Type: "quantum", Target: "exact_match"})
	if !errors.Is(err, ErrUnsupportedEvaluatorType) {
		t.Fatalf("expected ErrUnsupportedEvaluatorType, got %v", err)
	}
}

func TestRegisteredTypesIncludeAliases(t *testing.T) {
	types := map[string]bool{}
	for _, typ := range RegisteredTypes() {
		types[typ] = true
	}
	for _, want := range []string{"local-function", "azure-builtin", "human-placeholder", "custom-service", "custom", "llm-judge"} {
		if !types[want] {
			t.Fatalf("expected %q to be registered, got %v", want, RegisteredTypes())
		}
	}
}

func TestFaultMetric(t *testing.T) {
	m := FaultMetric(errors.New("backend down"))
	if !m.Fault || m.Passed || m.Score != nil {
		t.Fatalf("unexpected fault metric %+v", m)
	}
	if !errors.Is(m.FaultError(), ErrEvaluatorFault) {
		t.Fatalf("expected ErrEvaluatorFault, got %v", m.FaultError())
	}
	if (Metric{Passed: true}).FaultError() != nil {
		t.Fatal("healthy metric should not report a fault")
	}
}
