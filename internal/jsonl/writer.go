// Package jsonl writes newline-delimited JSON records.
package jsonl

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Writer encodes one JSON value per line. It is safe for concurrent use and
// a nil *Writer discards everything.
type Writer struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

// Open appends to the file at path, creating it and its directory as needed.
// An empty path returns a nil Writer.
func Open(path string) (*Writer, error) {
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	w := NewWriter(f)
	w.closer = f
	return w, nil
}

// NewWriter wraps w without taking ownership of it.
func NewWriter(w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{enc: enc}
}

// Write encodes v as a single line.
func (w *Writer) Write(v any) error {
	if w == nil || w.enc == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

func (w *Writer) Close() error {
	if w == nil || w.closer == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closer.Close()
}
