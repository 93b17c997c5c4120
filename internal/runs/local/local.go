// Package local stores runs in a JSON file on disk.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mwiater/agenteval/internal/logging"
	"github.com/mwiater/agenteval/internal/runs"
)

// FileName is the file the store keeps inside its directory.
const FileName = "runs.json"

var _ runs.Store = (*Store)(nil)

// Store keeps every run in <dir>/runs.json. It is safe for concurrent use
// within one process.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates dir if needed and returns a store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run store dir %s: %w", dir, err)
	}
	return &Store{path: filepath.Join(dir, FileName)}, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Save inserts run or replaces the stored run with the same ID.
func (s *Store) Save(ctx context.Context, run *runs.Run) error {
	if run == nil || run.ID == "" {
		return errors.New("run id is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range all {
		if existing.ID == run.ID {
			all[i] = run
			replaced = true
			break
		}
	}
	if !replaced {
		all = append(all, run)
	}
	logging.LogEvent("[STORE] Saving run %s (%s) to %s", run.ID, run.Status, s.path)
	return s.write(all)
}

// Get returns the run with id.
func (s *Store) Get(ctx context.Context, id string) (*runs.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, run := range all {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, fmt.Errorf("run %s: %w", id, runs.ErrRunNotFound)
}

// List returns every run, newest first.
func (s *Store) List(ctx context.Context) ([]*runs.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all, nil
}

// Close is a no-op; every Save is flushed immediately.
func (s *Store) Close() error { return nil }

func (s *Store) load() ([]*runs.Run, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []*runs.Run{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read runs %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return []*runs.Run{}, nil
	}
	var all []*runs.Run
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode runs %s: %w", s.path, err)
	}
	return all, nil
}

func (s *Store) write(all []*runs.Run) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encode runs: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".runs-*.json")
	if err != nil {
		return fmt.Errorf("create temp runs file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write runs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write runs: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace runs file: %w", err)
	}
	return nil
}
