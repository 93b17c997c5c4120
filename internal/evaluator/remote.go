package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mwiater/agenteval/internal/logging"
)

var errScoringResponse = errors.New("invalid scoring response")

// remoteScore is the response contract shared by scoring services.
type remoteScore struct {
	Score     *float64       `json:"score"`
	Passed    *bool          `json:"passed,omitempty"`
	Reasoning string         `json:"reasoning"`
	Details   map[string]any `json:"details,omitempty"`
}

type scoringClient struct {
	endpoint string
	token    string
	name     string
	http     *http.Client
}

func newScoringClient(endpoint, token, name string, deps Dependencies) (*scoringClient, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidParameters, endpoint)
	}
	return &scoringClient{endpoint: endpoint, token: token, name: name, http: deps.httpClient()}, nil
}

func (c *scoringClient) post(ctx context.Context, payload any) (remoteScore, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return remoteScore{}, fmt.Errorf("encode scoring request: %w", err)
	}

	logging.LogRequest("EVAL->SCORER", c.endpoint, c.name, body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return remoteScore{}, fmt.Errorf("build scoring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return remoteScore{}, fmt.Errorf("scoring request to %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return remoteScore{}, fmt.Errorf("read scoring response: %w", err)
	}
	logging.LogRequest("SCORER->EVAL", c.endpoint, c.name, raw)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return remoteScore{}, fmt.Errorf("scoring service returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var out remoteScore
	if err := json.Unmarshal(raw, &out); err != nil {
		return remoteScore{}, fmt.Errorf("%w: %v", errScoringResponse, err)
	}
	return out, nil
}

type builtinRequest struct {
	Metric     string         `json:"metric"`
	Input      any            `json:"input"`
	Actual     any            `json:"actual"`
	Expected   any            `json:"expected"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// scale bounds a builtin metric's native score range.
type scale struct {
	min, max float64
	label    string
}

func parseScale(raw string) (scale, error) {
	switch strings.TrimSpace(raw) {
	case "", "0-1":
		return scale{min: 0, max: 1, label: "0-1"}, nil
	case "1-5":
		return scale{min: 1, max: 5, label: "1-5"}, nil
	default:
		return scale{}, fmt.Errorf("%w: scale %q (want 0-1 or 1-5)", ErrInvalidParameters, raw)
	}
}

func (s scale) normalize(v float64) float64 {
	return (v - s.min) / (s.max - s.min)
}

// builtinEvaluator delegates a named metric (similarity, groundedness,
// relevance, ...) to the scoring backend.
type builtinEvaluator struct {
	cfg    Config
	scale  scale
	client *scoringClient
}

func newBuiltinEvaluator(cfg Config, deps Dependencies) (Evaluator, error) {
	if strings.TrimSpace(cfg.Target) == "" {
		return nil, fmt.Errorf("%w: builtin evaluator needs a metric target", ErrUnknownEvaluatorTarget)
	}
	sc, err := parseScale(cfg.StringParam("scale"))
	if err != nil {
		return nil, err
	}
	endpoint := cfg.StringParam("endpoint")
	if endpoint == "" {
		endpoint = deps.ScoringBackend
	}
	client, err := newScoringClient(endpoint, deps.ScoringToken, cfg.Name, deps)
	if err != nil {
		return nil, fmt.Errorf("builtin metric %q: %w", cfg.Target, err)
	}
	return &builtinEvaluator{cfg: cfg, scale: sc, client: client}, nil
}

func (e *builtinEvaluator) Name() string { return e.cfg.Name }

func (e *builtinEvaluator) Evaluate(ctx context.Context, input, actual, expected any) (Metric, error) {
	resp, err := e.client.post(ctx, builtinRequest{
		Metric:     e.cfg.Target,
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
	score := *resp.Score
	if score < e.scale.min || score > e.scale.max {
		return Metric{}, fmt.Errorf("%w: score %v outside scale %s", errScoringResponse, score, e.scale.label)
	}

	details := map[string]any{
		"metric":     e.cfg.Target,
		"scale":      e.scale.label,
		"normalized": e.scale.normalize(score),
	}
	for k, v := range resp.Details {
		if _, reserved := details[k]; !reserved {
			details[k] = v
		}
	}
	return Metric{
		Score:     scorePtr(score),
		Passed:    score >= e.cfg.Threshold(),
		Reasoning: resp.Reasoning,
		Details:   details,
	}, nil
}
