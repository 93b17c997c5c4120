// Package dataset defines the evaluation record and loads datasets of records
// from JSON or YAML sources.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMalformedDataset is returned when the top-level value is not a list.
	ErrMalformedDataset = errors.New("malformed dataset")
	// ErrMalformedRecord is returned when a record is not a structured object.
	ErrMalformedRecord = errors.New("malformed record")
)

// Record is one input/expected/metadata triple. Input and Expected are opaque
// JSON-like values; Expected and Metadata may be nil.
type Record struct {
	Input    any            `json:"input"`
	Expected any            `json:"expected,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Parse builds a Record from a decoded JSON-like value.
func Parse(raw any) (Record, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Record{}, fmt.Errorf("%w: expected an object, got %s", ErrMalformedRecord, kindOf(raw))
	}

	rec := Record{
		Input:    obj["input"],
		Expected: obj["expected"],
	}
	if meta, present := obj["metadata"]; present && meta != nil {
		m, ok := meta.(map[string]any)
		if !ok {
			return Record{}, fmt.Errorf("%w: metadata must be an object, got %s", ErrMalformedRecord, kindOf(meta))
		}
		rec.Metadata = m
	}
	return rec, nil
}

// Load decodes a JSON dataset from r.
func Load(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
	}
	return fromValue(raw)
}

// LoadFile reads a dataset file, choosing the decoder by extension.
func LoadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}

	var records []Record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		records, err = loadYAML(data)
	default:
		records, err = Load(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", path, err)
	}
	return records, nil
}

func loadYAML(data []byte) ([]Record, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
	}
	return fromValue(NormalizeYAML(raw))
}

func fromValue(raw any) ([]Record, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: dataset must contain a list of records, got %s", ErrMalformedDataset, kindOf(raw))
	}

	records := make([]Record, 0, len(items))
	for i, item := range items {
		rec, err := Parse(item)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// NormalizeYAML converts the map[any]any values yaml.v3 produces for
// non-string keys into map[string]any so YAML and JSON sources share a shape.
func NormalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = NormalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprint(k)
			}
			out[key] = NormalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeYAML(item)
		}
		return out
	default:
		return v
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "list"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number, float64, float32, int, int64, int32, uint64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
