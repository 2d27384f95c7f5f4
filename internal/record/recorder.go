// Package record persists executed fills for post-run analysis: JSON lines
// for quick inspection, SQLite for queries.
package record

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"masmarket-go/internal/market"
	"masmarket-go/internal/metrics"
)

// JSONLRecorder appends fills as JSON lines.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// Record writes a single fill to the underlying JSONL file.
func (r *JSONLRecorder) Record(fill market.Fill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(fill)
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Multi fans one fill out to several recorders.
type Multi []market.FillRecorder

// Record forwards the fill to every recorder in order.
func (m Multi) Record(fill market.Fill) {
	for _, r := range m {
		r.Record(fill)
	}
}

// Metrics counts fills into the prometheus registry.
type Metrics struct{}

// Record increments the fill counter.
func (Metrics) Record(market.Fill) {
	metrics.FillsTotal.Inc()
}
