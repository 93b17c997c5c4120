package evaluator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/mwiater/agenteval/internal/dataset"
)

// ErrInvalidSuite wraps every suite validation failure.
var ErrInvalidSuite = errors.New("invalid evaluation suite")

// SuiteConfig is an ordered set of evaluator configs.
type SuiteConfig struct {
	SuiteName  string   `json:"suite_name" yaml:"suite_name"`
	Evaluators []Config `json:"evaluators" yaml:"evaluators"`
}

// Validate reports every structural problem in the suite at once.
func (s SuiteConfig) Validate() error {
	var result *multierror.Error
	seen := make(map[string]int, len(s.Evaluators))
	for i, cfg := range s.Evaluators {
		name := strings.TrimSpace(cfg.Name)
		if name == "" {
			result = multierror.Append(result, fmt.Errorf("evaluator %d: empty name", i))
		} else if prev, dup := seen[name]; dup {
			result = multierror.Append(result, fmt.Errorf("evaluator %d: duplicate name %q (first used by evaluator %d)", i, name, prev))
		} else {
			seen[name] = i
		}
		if strings.TrimSpace(cfg.Type) == "" {
			result = multierror.Append(result, fmt.Errorf("evaluator %d (%s): %w: empty type", i, name, ErrUnsupportedEvaluatorType))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSuite, err)
	}
	return nil
}

// Names returns the evaluator names in suite order.
func (s SuiteConfig) Names() []string {
	out := make([]string, len(s.Evaluators))
	for i, cfg := range s.Evaluators {
		out[i] = cfg.Name
	}
	return out
}

// ParseSuite decodes a suite from JSON, or YAML when yamlInput is set, and
// validates it.
func ParseSuite(data []byte, yamlInput bool) (SuiteConfig, error) {
	var suite SuiteConfig
	if yamlInput {
		if err := yaml.Unmarshal(data, &suite); err != nil {
			return SuiteConfig{}, fmt.Errorf("%w: %v", ErrInvalidSuite, err)
		}
		for i := range suite.Evaluators {
			if params := suite.Evaluators[i].Parameters; params != nil {
				suite.Evaluators[i].Parameters = dataset.NormalizeYAML(params).(map[string]any)
			}
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&suite); err != nil {
			return SuiteConfig{}, fmt.Errorf("%w: %v", ErrInvalidSuite, err)
		}
	}
	if err := suite.Validate(); err != nil {
		return SuiteConfig{}, err
	}
	return suite, nil
}

// LoadSuite reads and validates a suite file, choosing the decoder by extension.
func LoadSuite(path string) (SuiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SuiteConfig{}, fmt.Errorf("read suite %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	suite, err := ParseSuite(data, ext == ".yaml" || ext == ".yml")
	if err != nil {
		return SuiteConfig{}, fmt.Errorf("load suite %s: %w", path, err)
	}
	return suite, nil
}
