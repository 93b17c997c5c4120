package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func scoringServer(t *testing.T, handler func(req map[string]any) (int, string)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode scoring request: %v", err)
		}
		status, body := handler(req)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestBuiltinScoresOnNativeScale(t *testing.T) {
	server := scoringServer(t, func(req map[string]any) (int, string) {
		if req["metric"] != "Groundedness" || req["actual"] != "Paris" {
			t.Errorf("unexpected scoring request %#v", req)
		}
		return http.StatusOK, `{"score": 4, "reasoning": "well grounded"}`
	})

	ev, err := NewFactory(Dependencies{ScoringBackend: server.URL}).Create(Config{
		Name: "Groundedness", Type: "llm-judge", Target: "Groundedness", PassThreshold: threshold(3.5),
		Parameters: map[string]any{"scale": "1-5"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m := evaluate(t, ev, "capital of France?", "Paris", nil)
	if m.Score == nil || *m.Score != 4 || !m.Passed {
		t.Fatalf("unexpected metric %+v", m)
	}
	if m.Details["normalized"] != 0.75 || m.Reasoning != "well grounded" {
		t.Fatalf("unexpected details %+v", m)
	}
}

func TestBuiltinParameterEndpointWins(t *testing.T) {
	server := scoringServer(t, func(req map[string]any) (int, string) {
		return http.StatusOK, `{"score": 0.2, "reasoning": "weak"}`
	})
	ev, err := NewFactory(Dependencies{ScoringBackend: "http://unused.invalid"}).Create(Config{
		Name: "Similarity", Type: "azure-builtin", Target: "Similarity", PassThreshold: threshold(0.5),
		Parameters: map[string]any{"endpoint": server.URL},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m := evaluate(t, ev, nil, "x", "y"); m.Passed || *m.Score != 0.2 {
		t.Fatalf("unexpected metric %+v", m)
	}
}

func TestBuiltinErrors(t *testing.T) {
	if _, err := NewFactory(Dependencies{}).Create(Config{Name: "g", Type: "semantic", Target: "Similarity"}); !errors.Is(err, ErrMissingEndpoint) {
		t.Fatalf("expected ErrMissingEndpoint, got %v", err)
	}
	if _, err := NewFactory(Dependencies{ScoringBackend: "http://x"}).Create(Config{
		Name: "g", Type: "semantic", Target: "Similarity", Parameters: map[string]any{"scale": "0-100"},
	}); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters for bad scale, got %v", err)
	}

	server := scoringServer(t, func(req map[string]any) (int, string) {
		return http.StatusOK, `{"score": 7}`
	})
	ev, err := NewFactory(Dependencies{ScoringBackend: server.URL}).Create(Config{Name: "g", Type: "builtin", Target: "Coherence"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := ev.Evaluate(context.Background(), nil, "x", nil); !errors.Is(err, errScoringResponse) {
		t.Fatalf("expected out-of-scale error, got %v", err)
	}

	failing := scoringServer(t, func(req map[string]any) (int, string) {
		return http.StatusBadGateway, "upstream down"
	})
	ev, _ = NewFactory(Dependencies{ScoringBackend: failing.URL}).Create(Config{Name: "g", Type: "builtin", Target: "Coherence"})
	if _, err := ev.Evaluate(context.Background(), nil, "x", nil); err == nil {
		t.Fatal("expected error for non-2xx scoring response")
	}
}

func TestCustomProductRecommendationContract(t *testing.T) {
	server := scoringServer(t, func(req map[string]any) (int, string) {
		if req["evaluator"] != "ProductRecommendation" {
			t.Errorf("unexpected evaluator %v", req["evaluator"])
		}
		return http.StatusOK, `{"score":0.9,"reasoning":"good picks","details":{"precision":0.95,"recall":0.8,"diversity":0.7}}`
	})
	deps := Dependencies{CustomServices: map[string]string{"ProductRecommendation": server.URL}}
	ev, err := NewFactory(deps).Create(Config{Name: "Product Rec", Type: "custom", Target: "ProductRecommendation", PassThreshold: threshold(0.8)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m := evaluate(t, ev, "shoes", []any{"a", "b"}, nil)
	if !m.Passed || *m.Score != 0.9 || m.Details["precision"] != 0.95 {
		t.Fatalf("unexpected metric %+v", m)
	}
}

func TestCustomContractRequiresDetails(t *testing.T) {
	server := scoringServer(t, func(req map[string]any) (int, string) {
		return http.StatusOK, `{"score":0.9,"details":{"accuracy":0.99}}`
	})
	ev, err := NewFactory(Dependencies{}).Create(Config{
		Name: "Approval", Type: "custom-service", Target: "ApprovalEvaluator",
		Parameters: map[string]any{"endpoint": server.URL},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := ev.Evaluate(context.Background(), nil, "approved", nil); !errors.Is(err, errScoringResponse) {
		t.Fatalf("expected missing latency_ms to fail the contract, got %v", err)
	}
}

func TestCustomGenericServiceHonoursPassed(t *testing.T) {
	server := scoringServer(t, func(req map[string]any) (int, string) {
		return http.StatusOK, `{"score":0.1,"passed":true,"reasoning":"service decides"}`
	})
	deps := Dependencies{CustomServices: map[string]string{"ToneCheck": server.URL}}
	ev, err := NewFactory(deps).Create(Config{Name: "Tone", Type: "custom", Target: "ToneCheck", PassThreshold: threshold(0.5)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m := evaluate(t, ev, nil, "hi", nil); !m.Passed {
		t.Fatalf("expected service verdict to win, got %+v", m)
	}
}

func TestCustomTargetResolution(t *testing.T) {
	if _, err := NewFactory(Dependencies{}).Create(Config{Name: "x", Type: "custom", Target: "Mystery"}); !errors.Is(err, ErrUnknownEvaluatorTarget) {
		t.Fatalf("expected ErrUnknownEvaluatorTarget, got %v", err)
	}
	if _, err := NewFactory(Dependencies{}).Create(Config{Name: "x", Type: "custom", Target: "ApprovalEvaluator"}); !errors.Is(err, ErrMissingEndpoint) {
		t.Fatalf("expected ErrMissingEndpoint for a known contract without endpoint, got %v", err)
	}
}

func TestHumanPlaceholderQueuesReview(t *testing.T) {
	queue := NewMemoryQueue()
	ev, err := NewFactory(Dependencies{ReviewQueue: queue}).Create(Config{Name: "Expert Review", Type: "human", Target: "review"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m := evaluate(t, ev, "q", "a", "e")
	if m.Score != nil || m.Passed || !m.Pending {
		t.Fatalf("expected pending metric, got %+v", m)
	}
	items := queue.Items()
	if len(items) != 1 || items[0].Evaluator != "Expert Review" || items[0].Actual != "a" {
		t.Fatalf("unexpected queue contents %+v", items)
	}
	if m.Details["review_id"] != items[0].ID {
		t.Fatalf("expected review id in details, got %+v", m.Details)
	}
}

func TestFileQueueRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review", "queue.jsonl")
	queue := NewFileQueue(path)
	ev, _ := NewFactory(Dependencies{ReviewQueue: queue}).Create(Config{Name: "Human", Type: "human-placeholder"})

	for _, out := range []string{"first", "second"} {
		evaluate(t, ev, "in", out, nil)
	}
	items, err := ReadQueue(path)
	if err != nil {
		t.Fatalf("ReadQueue: %v", err)
	}
	if len(items) != 2 || items[0].Actual != "first" || items[1].Actual != "second" {
		t.Fatalf("unexpected queue items %+v", items)
	}

	missing, err := ReadQueue(filepath.Join(t.TempDir(), "none.jsonl"))
	if err != nil || missing != nil {
		t.Fatalf("expected empty queue for missing file, got %v, %v", missing, err)
	}
}
