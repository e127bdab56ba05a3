package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer appends records to a log file. Appends are line-atomic: every
// record is written with a single O_APPEND write so concurrent runs
// sharing a file never interleave partial lines.
type Writer struct {
	mu   sync.Mutex
	path string
}

// NewWriter creates a writer for the given log path, creating the parent
// directory if missing.
func NewWriter(path string) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &Writer{path: path}, nil
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// Append writes one record as a single line.
func (w *Writer) Append(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", w.path, err)
	}
	defer file.Close()

	if _, err := file.Write([]byte(rec.Format() + "\n")); err != nil {
		return fmt.Errorf("failed to append to log file %s: %w", w.path, err)
	}
	return nil
}
