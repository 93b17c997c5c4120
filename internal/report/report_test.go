package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/mwiater/agenteval/internal/engine"
	"github.com/mwiater/agenteval/internal/metrics"
	"github.com/mwiater/agenteval/internal/runs"
)

func init() {
	color.NoColor = true
}

func score(v float64) *float64 { return &v }

func sampleRun() *runs.Run {
	return &runs.Run{
		ID:                "3f2a9c1e-0000-4000-8000-000000000000",
		Name:              "Nightly QA",
		Environment:       "Test Env",
		Agent:             "finance-bot",
		Dataset:           "sample.json",
		Suite:             "qa",
		Status:            runs.StatusSucceeded,
		CreatedAt:         time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:          "1.2s",
		PassRate:          50,
		TotalRecords:      2,
		ExecutionFailures: 1,
		Summary: &engine.Summary{
			Total: 2, Passed: 1, Failed: 1, ExecutionFailures: 1, PassRate: 50,
			Evaluators: []engine.EvaluatorStats{
				{Name: "Exact Match", Scores: metrics.Stats{Count: 2, Mean: 0.5, StdDev: 0.707, Max: 1}, Passed: 1, Failed: 1},
			},
		},
		Results: []runs.Row{
			{Input: "2+2?", Expected: map[string]any{"answer": "4"}, Actual: "4", Passed: true, Metrics: map[string]*float64{"Exact Match": score(1)}},
			{Input: "a|b", Expected: map[string]any{"answer": "6"}, Actual: "five", Metrics: map[string]*float64{"Exact Match": score(0)}},
		},
		Failures: []runs.Failure{{Index: 1, Input: "slow", Error: "agent timed out"}},
	}
}

func TestVerdict(t *testing.T) {
	if got := Verdict(true, false); got != "PASS" {
		t.Fatalf("Verdict(pass) = %q", got)
	}
	if got := Verdict(false, false); got != "FAIL" {
		t.Fatalf("Verdict(fail) = %q", got)
	}
	if got := Verdict(true, true); got != "PENDING" {
		t.Fatalf("Verdict(pending) = %q", got)
	}
}

func TestScore(t *testing.T) {
	if Score(nil) != "-" || Score(score(0.25)) != "0.25" || Score(score(1)) != "1" {
		t.Fatalf("unexpected score formatting")
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleRun(), Options{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Nightly QA", "Succeeded", "finance-bot", "50.0% (2 records)", "Exact Match", "PASS", "FAIL", "agent timed out"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestWriteMaxRows(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleRun(), Options{MaxRows: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), "1 more rows") {
		t.Fatalf("expected hidden row note:\n%s", buf.String())
	}
	if err := Write(&buf, nil, Options{}); err == nil {
		t.Fatal("expected error for nil run")
	}
}

func TestWriteList(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteList(&buf, nil); err != nil || !strings.Contains(buf.String(), "No runs") {
		t.Fatalf("unexpected empty list output %q, %v", buf.String(), err)
	}
	buf.Reset()
	if err := WriteList(&buf, []*runs.Run{sampleRun()}); err != nil {
		t.Fatalf("WriteList: %v", err)
	}
	if !strings.Contains(buf.String(), "Nightly QA") || !strings.Contains(buf.String(), "50.0%") {
		t.Fatalf("unexpected list output:\n%s", buf.String())
	}
}

func TestMetricNamesWithoutSummary(t *testing.T) {
	run := sampleRun()
	run.Summary = nil
	run.Results[1].Metrics["Keyword"] = nil
	names := MetricNames(run)
	if len(names) != 2 || names[0] != "Exact Match" || names[1] != "Keyword" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleRun())
	for _, want := range []string{"# Nightly QA", "| Pass rate | 50.0% |", "## Evaluators", "| 1 | 2+2? | {\"answer\":\"4\"} | 4 | PASS | 1 |", `a\|b`, "## Execution failures", "- #1 `slow`: agent timed out"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestExportName(t *testing.T) {
	if got := ExportName(sampleRun(), "json"); got != "nightly-qa_3f2a9c1e.json" {
		t.Fatalf("ExportName = %q", got)
	}
	if got := ExportName(&runs.Run{}, ".md"); got != "run.md" {
		t.Fatalf("ExportName = %q", got)
	}
}

func TestExportFiles(t *testing.T) {
	dir := t.TempDir()
	run := sampleRun()

	jsonPath := filepath.Join(dir, "out", "run.json")
	if err := ExportJSON(jsonPath, run); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var decoded runs.Run
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("exported JSON invalid: %v", err)
	}
	if decoded.ID != run.ID || len(decoded.Results) != 2 || decoded.Summary == nil {
		t.Fatalf("unexpected decoded run %+v", decoded)
	}

	mdPath := filepath.Join(dir, "out", "run.md")
	if err := ExportMarkdown(mdPath, run); err != nil {
		t.Fatalf("ExportMarkdown: %v", err)
	}
	md, _ := os.ReadFile(mdPath)
	if !strings.HasPrefix(string(md), "# Nightly QA") {
		t.Fatalf("unexpected markdown %q", md)
	}
}
