package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mwiater/agenteval/internal/environment"
	"github.com/mwiater/agenteval/internal/evaluator"
)

func threshold(v float64) *float64 { return &v }

func seeded(t *testing.T) *Catalog {
	t.Helper()
	c := New()
	suite := evaluator.SuiteConfig{SuiteName: "default", Evaluators: []evaluator.Config{
		{Name: "Exact Match", Category: "Automated - Statistical", Type: "local-function", Target: "exact_match", PassThreshold: threshold(1)},
		{Name: "Keyword Check", Type: "local-function", Target: "keyword_check", Parameters: map[string]any{"keywords": []any{"refund"}}},
		{Name: "Human Review", Category: "Human", Type: "human-placeholder", Target: "review"},
	}}
	n, err := c.SeedEvaluators(suite)
	if err != nil || n != 3 {
		t.Fatalf("SeedEvaluators = %d, %v", n, err)
	}
	return c
}

func TestID(t *testing.T) {
	if got := ID("Exact Match"); got != "exact-match" {
		t.Fatalf("ID() = %q", got)
	}
	if got := ID("  LLM Judge v2 "); got != "llm-judge-v2" {
		t.Fatalf("ID() = %q", got)
	}
}

func TestSeedEvaluatorsOnlyWhenEmpty(t *testing.T) {
	c := seeded(t)
	if def, ok := c.Evaluator("exact-match"); !ok || def.Name != "Exact Match" {
		t.Fatalf("expected seeded exact-match, got %+v", def)
	}
	if def, _ := c.Evaluator("keyword-check"); def.Category != "Uncategorized" {
		t.Fatalf("expected default category, got %q", def.Category)
	}
	n, err := c.SeedEvaluators(evaluator.SuiteConfig{Evaluators: []evaluator.Config{{Name: "Other", Type: "local"}}})
	if err != nil || n != 0 {
		t.Fatalf("expected no seeding into a populated catalog, got %d, %v", n, err)
	}
}

func TestResolveSuite(t *testing.T) {
	c := seeded(t)
	suite, err := c.ResolveSuite("nightly", []string{"Human Review", "exact-match"})
	if err != nil {
		t.Fatalf("ResolveSuite: %v", err)
	}
	if suite.SuiteName != "nightly" || len(suite.Evaluators) != 2 {
		t.Fatalf("unexpected suite %+v", suite)
	}
	if suite.Evaluators[0].Name != "Human Review" || suite.Evaluators[1].Threshold() != 1 {
		t.Fatalf("unexpected resolved configs %+v", suite.Evaluators)
	}
}

func TestResolveSuiteUnknown(t *testing.T) {
	c := seeded(t)
	_, err := c.ResolveSuite("nightly", []string{"exact-match", "Telepathy", "Mind Reading"})
	if !errors.Is(err, ErrUnknownEvaluator) {
		t.Fatalf("expected ErrUnknownEvaluator, got %v", err)
	}
}

func TestAddRejectsDuplicates(t *testing.T) {
	c := seeded(t)
	if _, err := c.AddEvaluator(EvaluatorDef{Name: "Exact Match", Type: "local"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	env := EnvironmentDef{Name: "Test Env", Config: environment.Config{EnvID: "e", EnvVersion: "1", AgentName: "bot"}}
	if _, err := c.AddEnvironment(env); err != nil {
		t.Fatalf("AddEnvironment: %v", err)
	}
	if _, err := c.AddEnvironment(env); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if _, err := c.AddEnvironment(EnvironmentDef{Name: "Broken"}); err == nil {
		t.Fatal("expected validation error for incomplete environment")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"catalog.json", "catalog.yaml"} {
		t.Run(name, func(t *testing.T) {
			c := seeded(t)
			c.now = func() time.Time { return time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC) }
			if _, err := c.AddEnvironment(EnvironmentDef{Name: "Local", Config: environment.Config{APIEndpoint: "http://localhost:9000/agent", AgentName: "bot"}}); err != nil {
				t.Fatalf("AddEnvironment: %v", err)
			}
			if _, err := c.AddDataset(DatasetDef{Name: "Sample Records", FilePath: "dataset/sample.json"}); err != nil {
				t.Fatalf("AddDataset: %v", err)
			}

			path := filepath.Join(t.TempDir(), "nested", name)
			if err := c.Save(path); err != nil {
				t.Fatalf("Save: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(loaded.Evaluators) != 3 || len(loaded.Environments) != 1 || len(loaded.Datasets) != 1 {
				t.Fatalf("unexpected loaded catalog %+v", loaded)
			}
			env, err := loaded.Environment("local")
			if err != nil || env.APIEndpoint != "http://localhost:9000/agent" {
				t.Fatalf("unexpected environment %+v, %v", env, err)
			}
			ds, err := loaded.Dataset("Sample Records")
			if err != nil || ds.ID != "sample-records" {
				t.Fatalf("unexpected dataset %+v, %v", ds, err)
			}
			kw, _ := loaded.Evaluator("keyword-check")
			if _, err := evaluator.NewFactory(evaluator.Dependencies{}).Create(kw.Config()); err != nil {
				t.Fatalf("loaded evaluator should build: %v", err)
			}
		})
	}
}

func TestLoadMissingAndInvalid(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil || len(c.Evaluators) != 0 {
		t.Fatalf("expected empty catalog, got %+v, %v", c, err)
	}

	path := filepath.Join(t.TempDir(), "dup.json")
	content := `{"evaluators":[{"id":"a","name":"A","type":"local"},{"id":"a","name":"A2","type":"local"}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestLookupMisses(t *testing.T) {
	c := New()
	if _, err := c.Environment("x"); !errors.Is(err, ErrUnknownEnvironment) {
		t.Fatalf("expected ErrUnknownEnvironment, got %v", err)
	}
	if _, err := c.Dataset("x"); !errors.Is(err, ErrUnknownDataset) {
		t.Fatalf("expected ErrUnknownDataset, got %v", err)
	}
}
