// Package catalog keeps named evaluator, environment and dataset definitions
// and resolves them into the configs the evaluation core consumes.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/mwiater/agenteval/internal/dataset"
	"github.com/mwiater/agenteval/internal/environment"
	"github.com/mwiater/agenteval/internal/evaluator"
	"github.com/mwiater/agenteval/internal/logging"
	"github.com/mwiater/agenteval/internal/util"
)

var (
	// ErrUnknownEvaluator is returned when a selected evaluator is not catalogued.
	ErrUnknownEvaluator = errors.New("unknown evaluator")
	// ErrUnknownEnvironment is returned for an environment that is not catalogued.
	ErrUnknownEnvironment = errors.New("unknown environment")
	// ErrUnknownDataset is returned for a dataset that is not catalogued.
	ErrUnknownDataset = errors.New("unknown dataset")
	// ErrDuplicateID is returned when adding a definition whose ID is taken.
	ErrDuplicateID = errors.New("duplicate catalog id")
)

// EvaluatorDef is a stored evaluator definition.
type EvaluatorDef struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Category      string         `json:"category" yaml:"category"`
	Type          string         `json:"type" yaml:"type"`
	Target        string         `json:"target" yaml:"target"`
	PassThreshold *float64       `json:"pass_threshold,omitempty" yaml:"pass_threshold,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	CreatedAt     time.Time      `json:"created_at" yaml:"created_at"`
}

// Config converts the definition into an evaluator config.
func (d EvaluatorDef) Config() evaluator.Config {
	return evaluator.Config{
		Name:          d.Name,
		Category:      d.Category,
		Type:          d.Type,
		Target:        d.Target,
		PassThreshold: d.PassThreshold,
		Parameters:    d.Parameters,
	}
}

// EnvironmentDef is a stored agent environment.
type EnvironmentDef struct {
	ID                 string    `json:"id" yaml:"id"`
	Name               string    `json:"name" yaml:"name"`
	environment.Config `yaml:",inline"`
	CreatedAt          time.Time `json:"created_at" yaml:"created_at"`
}

// DatasetDef is a stored reference to a dataset file.
type DatasetDef struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	FilePath    string    `json:"file_path" yaml:"file_path"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Catalog is the set of named definitions. It is safe for concurrent use.
type Catalog struct {
	mu           sync.RWMutex
	Evaluators   []EvaluatorDef   `json:"evaluators" yaml:"evaluators"`
	Environments []EnvironmentDef `json:"environments" yaml:"environments"`
	Datasets     []DatasetDef     `json:"datasets" yaml:"datasets"`

	now func() time.Time
}

// New returns an empty catalogue.
func New() *Catalog {
	return &Catalog{now: time.Now}
}

// ID derives a catalogue id from a display name: lower case with spaces
// replaced by dashes.
func ID(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// Load reads a catalogue file. A missing file yields an empty catalogue.
func Load(path string) (*Catalog, error) {
	c := New()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return c, nil
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, c)
		for i := range c.Evaluators {
			if params := c.Evaluators[i].Parameters; params != nil {
				c.Evaluators[i].Parameters = dataset.NormalizeYAML(params).(map[string]any)
			}
		}
	} else {
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Save writes the catalogue to path.
func (c *Catalog) Save(path string) error {
	c.mu.RLock()
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := util.WriteFile(path, data); err != nil {
		return fmt.Errorf("write catalog %s: %w", path, err)
	}
	logging.LogEvent("[CATALOG] Saved catalog to %s", path)
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Validate reports duplicate IDs and incomplete definitions.
func (c *Catalog) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result *multierror.Error
	seen := map[string]bool{}
	for i, d := range c.Evaluators {
		if d.ID == "" || d.Name == "" || d.Type == "" {
			result = multierror.Append(result, fmt.Errorf("evaluator %d: id, name and type are required", i))
		}
		if seen["e:"+d.ID] {
			result = multierror.Append(result, fmt.Errorf("evaluator %d: %w %q", i, ErrDuplicateID, d.ID))
		}
		seen["e:"+d.ID] = true
	}
	for i, d := range c.Environments {
		if d.ID == "" {
			result = multierror.Append(result, fmt.Errorf("environment %d: id is required", i))
		}
		if err := d.Config.Validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("environment %q: %w", d.ID, err))
		}
		if seen["n:"+d.ID] {
			result = multierror.Append(result, fmt.Errorf("environment %d: %w %q", i, ErrDuplicateID, d.ID))
		}
		seen["n:"+d.ID] = true
	}
	for i, d := range c.Datasets {
		if d.ID == "" || d.FilePath == "" {
			result = multierror.Append(result, fmt.Errorf("dataset %d: id and file_path are required", i))
		}
		if seen["d:"+d.ID] {
			result = multierror.Append(result, fmt.Errorf("dataset %d: %w %q", i, ErrDuplicateID, d.ID))
		}
		seen["d:"+d.ID] = true
	}
	return result.ErrorOrNil()
}

func (c *Catalog) stamp() time.Time {
	if c.now == nil {
		return time.Now().UTC()
	}
	return c.now().UTC()
}

// AddEvaluator stores def, deriving its ID from the name when empty.
func (c *Catalog) AddEvaluator(def EvaluatorDef) (EvaluatorDef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if def.ID == "" {
		def.ID = ID(def.Name)
	}
	if def.Name == "" || def.Type == "" {
		return EvaluatorDef{}, errors.New("evaluator name and type are required")
	}
	for _, d := range c.Evaluators {
		if d.ID == def.ID {
			return EvaluatorDef{}, fmt.Errorf("%w %q", ErrDuplicateID, def.ID)
		}
	}
	if def.Category == "" {
		def.Category = "Uncategorized"
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = c.stamp()
	}
	c.Evaluators = append(c.Evaluators, def)
	return def, nil
}

// AddEnvironment stores def, deriving its ID from the name when empty.
func (c *Catalog) AddEnvironment(def EnvironmentDef) (EnvironmentDef, error) {
	if err := def.Config.Validate(); err != nil {
		return EnvironmentDef{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if def.ID == "" {
		def.ID = ID(def.Name)
	}
	for _, d := range c.Environments {
		if d.ID == def.ID {
			return EnvironmentDef{}, fmt.Errorf("%w %q", ErrDuplicateID, def.ID)
		}
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = c.stamp()
	}
	c.Environments = append(c.Environments, def)
	return def, nil
}

// AddDataset stores def, deriving its ID from the name when empty.
func (c *Catalog) AddDataset(def DatasetDef) (DatasetDef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if def.ID == "" {
		def.ID = ID(def.Name)
	}
	if def.ID == "" || def.FilePath == "" {
		return DatasetDef{}, errors.New("dataset name and file path are required")
	}
	for _, d := range c.Datasets {
		if d.ID == def.ID {
			return DatasetDef{}, fmt.Errorf("%w %q", ErrDuplicateID, def.ID)
		}
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = c.stamp()
	}
	c.Datasets = append(c.Datasets, def)
	return def, nil
}

// SeedEvaluators adds every evaluator of suite when the catalogue has none.
// It reports how many definitions were added.
func (c *Catalog) SeedEvaluators(suite evaluator.SuiteConfig) (int, error) {
	c.mu.RLock()
	empty := len(c.Evaluators) == 0
	c.mu.RUnlock()
	if !empty {
		return 0, nil
	}

	added := 0
	for _, cfg := range suite.Evaluators {
		if _, err := c.AddEvaluator(EvaluatorDef{
			Name:          cfg.Name,
			Category:      cfg.Category,
			Type:          cfg.Type,
			Target:        cfg.Target,
			PassThreshold: cfg.PassThreshold,
			Parameters:    cfg.Parameters,
		}); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// Evaluator finds an evaluator by ID or name.
func (c *Catalog) Evaluator(key string) (EvaluatorDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.Evaluators {
		if d.ID == key || d.Name == key {
			return d, true
		}
	}
	return EvaluatorDef{}, false
}

// Environment finds an environment by ID or name.
func (c *Catalog) Environment(key string) (EnvironmentDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.Environments {
		if d.ID == key || d.Name == key {
			return d, nil
		}
	}
	return EnvironmentDef{}, fmt.Errorf("%w %q", ErrUnknownEnvironment, key)
}

// Dataset finds a dataset by ID or name.
func (c *Catalog) Dataset(key string) (DatasetDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.Datasets {
		if d.ID == key || d.Name == key {
			return d, nil
		}
	}
	return DatasetDef{}, fmt.Errorf("%w %q", ErrUnknownDataset, key)
}

// ResolveSuite builds a suite named name from the selected evaluators, in
// the order given. Every unknown selection is reported.
func (c *Catalog) ResolveSuite(name string, selected []string) (evaluator.SuiteConfig, error) {
	suite := evaluator.SuiteConfig{SuiteName: name}
	var result *multierror.Error
	for _, key := range selected {
		def, ok := c.Evaluator(key)
		if !ok {
			result = multierror.Append(result, fmt.Errorf("%w %q", ErrUnknownEvaluator, key))
			continue
		}
		suite.Evaluators = append(suite.Evaluators, def.Config())
	}
	if err := result.ErrorOrNil(); err != nil {
		return evaluator.SuiteConfig{}, err
	}
	if err := suite.Validate(); err != nil {
		return evaluator.SuiteConfig{}, err
	}
	return suite, nil
}
