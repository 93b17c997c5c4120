package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/xeipuuv/gojsonschema"
)

// scoreFunc is a deterministic local check. It returns a score in [0, 1],
// the reasoning, and optional details.
type scoreFunc func(input, actual, expected any) (float64, string, map[string]any)

type localEvaluator struct {
	cfg Config
	fn  scoreFunc
}

func newLocalEvaluator(cfg Config, _ Dependencies) (Evaluator, error) {
	var fn scoreFunc
	switch strings.TrimSpace(cfg.Target) {
	case "exact_match":
		fn = exactMatch
	case "f1_score":
		fn = f1Score
	case "keyword_check":
		keywords, err := keywordsParam(cfg)
		if err != nil {
			return nil, err
		}
		fn = keywordCheck(keywords)
	case "json_validity":
		fn = jsonValidity
	case "json_schema":
		schema, err := compileSchema(cfg)
		if err != nil {
			return nil, err
		}
		fn = schemaCheck(schema)
	case "regex_match":
		pattern := cfg.StringParam("pattern")
		if pattern == "" {
			return nil, fmt.Errorf("%w: regex_match requires parameters.pattern", ErrInvalidParameters)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalidParameters, pattern, err)
		}
		fn = regexMatch(re)
	default:
		return nil, fmt.Errorf("%w: local function %q", ErrUnknownEvaluatorTarget, cfg.Target)
	}
	return &localEvaluator{cfg: cfg, fn: fn}, nil
}

func (e *localEvaluator) Name() string { return e.cfg.Name }

func (e *localEvaluator) Evaluate(ctx context.Context, input, actual, expected any) (Metric, error) {
	score, reasoning, details := e.fn(input, actual, expected)
	return Metric{
		Score:     scorePtr(score),
		Passed:    score >= e.cfg.Threshold(),
		Reasoning: reasoning,
		Details:   details,
	}, nil
}

// expectedText returns the reference answer: the "answer" field of an object,
// otherwise the value itself.
func expectedText(expected any) (string, bool) {
	if obj, ok := expected.(map[string]any); ok {
		return Stringify(obj["answer"]), true
	}
	return Stringify(expected), false
}

func exactMatch(_, actual, expected any) (float64, string, map[string]any) {
	want, fromObject := expectedText(expected)
	got := Stringify(actual)
	if fromObject {
		got = strings.TrimSpace(got)
		want = strings.TrimSpace(want)
	}
	if got == want {
		return 1, "Strings match exactly.", nil
	}
	return 0, "Strings do not match.", nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func f1Score(_, actual, expected any) (float64, string, map[string]any) {
	want, _ := expectedText(expected)
	predicted := tokenize(Stringify(actual))
	reference := tokenize(want)

	if len(predicted) == 0 || len(reference) == 0 {
		if len(predicted) == len(reference) {
			return 1, "Both answers are empty.", nil
		}
		return 0, "One answer has no tokens.", nil
	}

	counts := make(map[string]int, len(reference))
	for _, tok := range reference {
		counts[tok]++
	}
	common := 0
	for _, tok := range predicted {
		if counts[tok] > 0 {
			counts[tok]--
			common++
		}
	}
	if common == 0 {
		return 0, "No token overlap.", map[string]any{"precision": 0.0, "recall": 0.0}
	}

	precision := float64(common) / float64(len(predicted))
	recall := float64(common) / float64(len(reference))
	f1 := 2 * precision * recall / (precision + recall)
	return f1, "Calculated token overlap.", map[string]any{
		"precision": precision,
		"recall":    recall,
	}
}

func keywordsParam(cfg Config) ([]string, error) {
	raw, present := cfg.Parameters["keywords"]
	if !present || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: keywords must be strings, got %T", ErrInvalidParameters, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: keywords must be a list, got %T", ErrInvalidParameters, raw)
	}
}

func keywordCheck(keywords []string) scoreFunc {
	return func(_, actual, _ any) (float64, string, map[string]any) {
		text := strings.ToLower(Stringify(actual))
		var found []string
		for _, k := range keywords {
			if strings.Contains(text, strings.ToLower(k)) {
				found = append(found, k)
			}
		}
		if len(found) == 0 {
			return 0, "No required keywords found.", nil
		}
		return 1, fmt.Sprintf("Found keywords: %s", strings.Join(found, ", ")), map[string]any{"found": found}
	}
}

func jsonValidity(_, actual, _ any) (float64, string, map[string]any) {
	if s, ok := actual.(string); ok && !json.Valid([]byte(s)) {
		return 0, "Invalid JSON format.", nil
	}
	return 1, "Valid JSON.", nil
}

func compileSchema(cfg Config) (*gojsonschema.Schema, error) {
	raw, present := cfg.Parameters["schema"]
	if !present || raw == nil {
		return nil, fmt.Errorf("%w: json_schema requires parameters.schema", ErrInvalidParameters)
	}
	var loader gojsonschema.JSONLoader
	if s, ok := raw.(string); ok {
		loader = gojsonschema.NewStringLoader(s)
	} else {
		loader = gojsonschema.NewGoLoader(raw)
	}
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("%w: schema: %v", ErrInvalidParameters, err)
	}
	return schema, nil
}

func schemaCheck(schema *gojsonschema.Schema) scoreFunc {
	return func(_, actual, _ any) (float64, string, map[string]any) {
		var doc gojsonschema.JSONLoader
		if s, ok := actual.(string); ok {
			if !json.Valid([]byte(s)) {
				return 0, "Output is not valid JSON.", nil
			}
			doc = gojsonschema.NewStringLoader(s)
		} else {
			doc = gojsonschema.NewGoLoader(actual)
		}

		result, err := schema.Validate(doc)
		if err != nil {
			return 0, fmt.Sprintf("Schema validation failed: %v", err), nil
		}
		if result.Valid() {
			return 1, "Output matches schema.", nil
		}
		var violations []string
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}
		return 0, "Output does not match schema.", map[string]any{"violations": violations}
	}
}

func regexMatch(re *regexp.Regexp) scoreFunc {
	return func(_, actual, _ any) (float64, string, map[string]any) {
		if re.MatchString(Stringify(actual)) {
			return 1, fmt.Sprintf("Output matches %s.", re.String()), nil
		}
		return 0, fmt.Sprintf("Output does not match %s.", re.String()), nil
	}
}
