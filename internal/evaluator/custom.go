package evaluator

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// contract lists the detail fields a custom service must return.
type contract struct {
	details []string
}

// contracts are the custom evaluators with a known response shape.
var contracts = map[string]contract{
	"ProductRecommendation": {details: []string{"precision", "recall", "diversity"}},
	"ApprovalEvaluator":     {details: []string{"accuracy", "latency_ms"}},
}

// KnownContracts lists the custom targets with a built-in response contract.
func KnownContracts() []string {
	out := make([]string, 0, len(contracts))
	for name := range contracts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type customRequest struct {
	Evaluator  string         `json:"evaluator"`
	Input      any            `json:"input"`
	Actual     any            `json:"actual"`
	Expected   any            `json:"expected"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type customEvaluator struct {
	cfg      Config
	contract contract
	client   *scoringClient
}

func newCustomEvaluator(cfg Config, deps Dependencies) (Evaluator, error) {
	target := strings.TrimSpace(cfg.Target)
	endpoint := cfg.StringParam("endpoint")
	if endpoint == "" {
		endpoint = strings.TrimSpace(deps.CustomServices[target])
	}

	c, known := contracts[target]
	if !known && endpoint == "" {
		return nil, fmt.Errorf("%w: custom service %q", ErrUnknownEvaluatorTarget, cfg.Target)
	}
	client, err := newScoringClient(endpoint, deps.ScoringToken, cfg.Name, deps)
	if err != nil {
		return nil, fmt.Errorf("custom service %q: %w", target, err)
	}
	return &customEvaluator{cfg: cfg, contract: c, client: client}, nil
}

func (e *customEvaluator) Name() string { return e.cfg.Name }

func (e *customEvaluator) Evaluate(ctx context.Context, input, actual, expected any) (Metric, error) {
	resp, err := e.client.post(ctx, customRequest{
		Evaluator:  e.cfg.Target,
		Input:      input,
		Actual:     actual,
		Expected:   expected,
		Parameters: e.cfg.Parameters,
	})
	if err != nil {
		return Metric{}, err
	}
	if resp.Score == nil {
		return Metric{}, fmt.Errorf("%w: missing score", errScoringResponse)
	}
	for _, field := range e.contract.details {
		if _, ok := toFloat(resp.Details[field]); !ok {
			return Metric{}, fmt.Errorf("%w: %s requires numeric details.%s", errScoringResponse, e.cfg.Target, field)
		}
	}

	passed := *resp.Score >= e.cfg.Threshold()
	if resp.Passed != nil {
		passed = *resp.Passed
	}
	return Metric{
		Score:     resp.Score,
		Passed:    passed,
		Reasoning: resp.Reasoning,
		Details:   resp.Details,
	}, nil
}
