// Package evaluator defines the evaluator contract, the built-in evaluator
// variants, and the factory that builds them from configuration.
package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedEvaluatorType is returned for a type with no registered constructor.
	ErrUnsupportedEvaluatorType = errors.New("unsupported evaluator type")
	// ErrUnknownEvaluatorTarget is returned when a variant does not know the configured target.
	ErrUnknownEvaluatorTarget = errors.New("unknown evaluator target")
	// ErrMissingEndpoint is returned when a remote evaluator has nowhere to send requests.
	ErrMissingEndpoint = errors.New("missing evaluator endpoint")
	// ErrInvalidParameters is returned when an evaluator's parameters cannot be used.
	ErrInvalidParameters = errors.New("invalid evaluator parameters")
	// ErrEvaluatorFault marks a metric produced from an evaluator error or panic.
	ErrEvaluatorFault = errors.New("evaluator fault")
)

// Evaluator scores one (input, actual, expected) triple. Implementations are
// safe for concurrent use.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, input, actual, expected any) (Metric, error)
}

// Metric is the outcome of one evaluator on one record. A nil Score means the
// score is pending or could not be computed.
type Metric struct {
	Score     *float64       `json:"score"`
	Passed    bool           `json:"passed"`
	Pending   bool           `json:"pending,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Fault     bool           `json:"fault,omitempty"`
}

// FaultMetric converts an evaluator error into a failed metric.
func FaultMetric(err error) Metric {
	return Metric{
		Passed:    false,
		Fault:     true,
		Reasoning: err.Error(),
	}
}

// FaultError returns an error matching ErrEvaluatorFault for a fault metric,
// and nil otherwise.
func (m Metric) FaultError() error {
	if !m.Fault {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrEvaluatorFault, m.Reasoning)
}

// Config describes one evaluator. It is read once, when the evaluator is built.
type Config struct {
	Name          string         `json:"name" yaml:"name"`
	Category      string         `json:"category,omitempty" yaml:"category,omitempty"`
	Type          string         `json:"type" yaml:"type"`
	Target        string         `json:"target" yaml:"target"`
	PassThreshold *float64       `json:"pass_threshold,omitempty" yaml:"pass_threshold,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Threshold returns the configured pass threshold, or 0 when unset.
func (c Config) Threshold() float64 {
	if c.PassThreshold == nil {
		return 0
	}
	return *c.PassThreshold
}

// StringParam returns a string parameter, or "" when it is missing or not a string.
func (c Config) StringParam(key string) string {
	v, ok := c.Parameters[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func scorePtr(v float64) *float64 {
	return &v
}

// Stringify renders a JSON-like value the way the comparisons expect: strings
// verbatim, nil as empty, scalars with fmt, and structured values as JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

// toFloat converts a decoded JSON number into a float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
