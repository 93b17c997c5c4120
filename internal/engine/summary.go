package engine

import (
	"math"

	"github.com/mwiater/agenteval/internal/metrics"
	"github.com/mwiater/agenteval/internal/runner"
)

// EvaluatorStats aggregates one evaluator's outcomes across a run.
type EvaluatorStats struct {
	Name    string        `json:"name"`
	Scores  metrics.Stats `json:"scores"`
	Passed  int           `json:"passed"`
	Failed  int           `json:"failed"`
	Pending int           `json:"pending"`
	Faults  int           `json:"faults"`
}

// Summary is the aggregate view of an evaluated run.
type Summary struct {
	Total             int              `json:"total"`
	Passed            int              `json:"passed"`
	Failed            int              `json:"failed"`
	Pending           int              `json:"pending"`
	ExecutionFailures int              `json:"execution_failures"`
	PassRate          float64          `json:"pass_rate"`
	Evaluators        []EvaluatorStats `json:"evaluators"`
}

// PassRate returns passed/total as a percentage rounded to one decimal
// place, or 0 when total is 0.
func PassRate(passed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(passed)/float64(total)*1000) / 10
}

// Summarize derives run statistics from the evaluated records and the raw
// execution results. Records that are pending count as neither passed nor
// failed, but they stay in the pass-rate denominator.
func Summarize(results []EvalResult, executions []runner.ExecutionResult) Summary {
	s := Summary{Total: len(results)}
	for _, exec := range executions {
		if exec.Failed() {
			s.ExecutionFailures++
		}
	}

	type acc struct {
		stats EvaluatorStats
		score metrics.RunningStat
	}
	var order []string
	byName := map[string]*acc{}

	for _, r := range results {
		switch {
		case r.Passed:
			s.Passed++
		case r.Pending:
			s.Pending++
		default:
			s.Failed++
		}
		for _, nm := range r.Metrics {
			a, ok := byName[nm.Name]
			if !ok {
				a = &acc{stats: EvaluatorStats{Name: nm.Name}}
				byName[nm.Name] = a
				order = append(order, nm.Name)
			}
			m := nm.Metric
			switch {
			case m.Fault:
				a.stats.Faults++
			case m.Pending:
				a.stats.Pending++
			case m.Passed:
				a.stats.Passed++
			default:
				a.stats.Failed++
			}
			if m.Score != nil {
				a.score.Add(*m.Score)
			}
		}
	}

	s.PassRate = PassRate(s.Passed, s.Total)
	for _, name := range order {
		a := byName[name]
		a.stats.Scores = a.score.Stats()
		s.Evaluators = append(s.Evaluators, a.stats)
	}
	return s
}
