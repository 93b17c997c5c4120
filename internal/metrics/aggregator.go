// internal/metrics/aggregator.go
package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mwiater/agenteval/internal/logging"
)

// Aggregator collects running statistics keyed by name. It is safe for
// concurrent use.
type Aggregator struct {
	mutex  sync.Mutex
	series map[string]*Series
	now    func() time.Time
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		series: make(map[string]*Series),
		now:    time.Now,
	}
}

func (a *Aggregator) entry(key string) *Series {
	s, exists := a.series[key]
	if !exists {
		s = &Series{Name: key}
		a.series[key] = s
	}
	s.LastUpdatedUTC = a.now().UTC()
	return s
}

// Record adds one observation for key.
func (a *Aggregator) Record(key string, value float64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.entry(key).Stats.Add(value)
}

// RecordFailure counts a failed observation for key without touching its statistics.
func (a *Aggregator) RecordFailure(key string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.entry(key).Failures++
}

// Get returns a copy of the series for key.
func (a *Aggregator) Get(key string) (Series, bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	s, ok := a.series[key]
	if !ok {
		return Series{}, false
	}
	return *s, true
}

// Snapshot returns a copy of every series sorted by name.
func (a *Aggregator) Snapshot() []Series {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	out := make([]Series, 0, len(a.series))
	for _, s := range a.series {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Save writes the snapshot as indented JSON, merging with any series already
// stored in path so statistics accumulate across runs.
func (a *Aggregator) Save(path string) error {
	logging.LogEvent("[METRICS] Saving metrics to %s", path)

	merged, err := loadSeries(path)
	if err != nil {
		return err
	}
	for _, s := range a.Snapshot() {
		prev, ok := merged[s.Name]
		if !ok {
			merged[s.Name] = s
			continue
		}
		prev.Stats = mergeStats(prev.Stats, s.Stats)
		prev.Failures += s.Failures
		prev.LastUpdatedUTC = s.LastUpdatedUTC
		merged[s.Name] = prev
	}

	list := make([]Series, 0, len(merged))
	for _, s := range merged {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}

// LoadFile reads series previously written by Save.
func LoadFile(path string) ([]Series, error) {
	byName, err := loadSeries(path)
	if err != nil {
		return nil, err
	}
	list := make([]Series, 0, len(byName))
	for _, s := range byName {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func loadSeries(path string) (map[string]Series, error) {
	out := make(map[string]Series)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metrics %s: %w", path, err)
	}

	var list []Series
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode metrics %s: %w", path, err)
	}
	for _, s := range list {
		out[s.Name] = s
	}
	return out, nil
}

// mergeStats combines two running statistics (Chan et al. parallel update).
func mergeStats(a, b RunningStat) RunningStat {
	if a.Count == 0 {
		return b
	}
	if b.Count == 0 {
		return a
	}
	n := a.Count + b.Count
	delta := b.Mean - a.Mean
	out := RunningStat{
		Count: n,
		Mean:  a.Mean + delta*float64(b.Count)/float64(n),
		M2:    a.M2 + b.M2 + delta*delta*float64(a.Count)*float64(b.Count)/float64(n),
		Min:   a.Min,
		Max:   a.Max,
	}
	if b.Min < out.Min {
		out.Min = b.Min
	}
	if b.Max > out.Max {
		out.Max = b.Max
	}
	return out
}
