package evaluator

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Dependencies carries the collaborators remote and queued evaluators need.
type Dependencies struct {
	// ScoringBackend is the default URL for builtin metrics.
	ScoringBackend string
	ScoringToken   string
	// CustomServices maps a custom-service target to its endpoint.
	CustomServices map[string]string
	// ReviewQueue receives items from human-placeholder evaluators. An
	// in-memory queue is used when nil.
	ReviewQueue ReviewQueue
	HTTPClient  *http.Client
	Timeout     time.Duration
}

func (d Dependencies) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Constructor builds an evaluator for one config.
type Constructor func(cfg Config, deps Dependencies) (Evaluator, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register associates an evaluator type with its constructor. Registering a
// type twice replaces the earlier constructor.
func Register(typ string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[normalizeType(typ)] = ctor
}

// RegisteredTypes lists every registered type, sorted.
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for typ := range registry {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

func lookup(typ string) (Constructor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ctor, ok := registry[normalizeType(typ)]
	return ctor, ok
}

func normalizeType(typ string) string {
	return strings.ToLower(strings.TrimSpace(typ))
}

func init() {
	for _, typ := range []string{"local-function", "rule-based", "local"} {
		Register(typ, newLocalEvaluator)
	}
	for _, typ := range []string{"builtin", "azure-builtin", "semantic", "llm-judge"} {
		Register(typ, newBuiltinEvaluator)
	}
	for _, typ := range []string{"human-placeholder", "human"} {
		Register(typ, newHumanEvaluator)
	}
	for _, typ := range []string{"custom-service", "custom"} {
		Register(typ, newCustomEvaluator)
	}
}

// Factory builds evaluators from configs using the registration table.
type Factory struct {
	deps Dependencies
}

// NewFactory returns a factory that hands deps to every constructor.
func NewFactory(deps Dependencies) *Factory {
	if deps.ReviewQueue == nil {
		deps.ReviewQueue = NewMemoryQueue()
	}
	return &Factory{deps: deps}
}

// Create builds the evaluator described by cfg.
func (f *Factory) Create(cfg Config) (Evaluator, error) {
	ctor, ok := lookup(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("evaluator %q: %w: %q", cfg.Name, ErrUnsupportedEvaluatorType, cfg.Type)
	}
	ev, err := ctor(cfg, f.deps)
	if err != nil {
		return nil, fmt.Errorf("evaluator %q: %w", cfg.Name, err)
	}
	return ev, nil
}
