package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReviewItem is one output waiting for a human verdict.
type ReviewItem struct {
	ID        string    `json:"id"`
	Evaluator string    `json:"evaluator"`
	Category  string    `json:"category,omitempty"`
	Input     any       `json:"input"`
	Actual    any       `json:"actual"`
	Expected  any       `json:"expected,omitempty"`
	QueuedAt  time.Time `json:"queued_at"`
}

// ReviewQueue accepts items for manual review. Implementations are safe for
// concurrent use.
type ReviewQueue interface {
	Enqueue(ctx context.Context, item ReviewItem) error
}

// MemoryQueue keeps review items in memory.
type MemoryQueue struct {
	mu    sync.Mutex
	items []ReviewItem
}

// NewMemoryQueue returns an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Enqueue appends item.
func (q *MemoryQueue) Enqueue(ctx context.Context, item ReviewItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

// Items returns a copy of the queued items in arrival order.
func (q *MemoryQueue) Items() []ReviewItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]ReviewItem(nil), q.items...)
}

// FileQueue appends review items to a JSON Lines file.
type FileQueue struct {
	mu   sync.Mutex
	path string
}

// NewFileQueue returns a queue writing to path. The file and its directory
// are created on first use.
func NewFileQueue(path string) *FileQueue {
	return &FileQueue{path: path}
}

// Path returns the queue file location.
func (q *FileQueue) Path() string { return q.path }

// Enqueue appends item as one JSON line.
func (q *FileQueue) Enqueue(ctx context.Context, item ReviewItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return fmt.Errorf("error creating review queue dir: %w", err)
	}
	file, err := os.OpenFile(q.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("error opening review queue: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(item); err != nil {
		return fmt.Errorf("error writing review item: %w", err)
	}
	return nil
}

// ReadQueue returns every item stored in a FileQueue file. A missing file
// yields no items.
func ReadQueue(path string) ([]ReviewItem, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error opening review queue: %w", err)
	}
	defer file.Close()

	var items []ReviewItem
	dec := json.NewDecoder(file)
	for dec.More() {
		var item ReviewItem
		if err := dec.Decode(&item); err != nil {
			return nil, fmt.Errorf("error reading review queue: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

type humanEvaluator struct {
	cfg   Config
	queue ReviewQueue
	now   func() time.Time
}

func newHumanEvaluator(cfg Config, deps Dependencies) (Evaluator, error) {
	queue := deps.ReviewQueue
	if queue == nil {
		queue = NewMemoryQueue()
	}
	return &humanEvaluator{cfg: cfg, queue: queue, now: time.Now}, nil
}

func (e *humanEvaluator) Name() string { return e.cfg.Name }

// Evaluate queues the triple for review and reports a pending metric.
func (e *humanEvaluator) Evaluate(ctx context.Context, input, actual, expected any) (Metric, error) {
	item := ReviewItem{
		ID:        uuid.NewString(),
		Evaluator: e.cfg.Name,
		Category:  e.cfg.Category,
		Input:     input,
		Actual:    actual,
		Expected:  expected,
		QueuedAt:  e.now().UTC(),
	}
	if err := e.queue.Enqueue(ctx, item); err != nil {
		return Metric{}, fmt.Errorf("queue review: %w", err)
	}
	return Metric{
		Score:     nil,
		Passed:    false,
		Pending:   true,
		Reasoning: "Queued for human expert review.",
		Details:   map[string]any{"review_id": item.ID},
	}, nil
}
