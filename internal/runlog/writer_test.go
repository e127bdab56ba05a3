package runlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestWriterAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "teamA_model_inference.log")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	rec := Record{Model: "teamA", Stage: "model_inference", Cohort: "GLI", RuntimeSeconds: 90, Status: "Completed"}
	if err := w.Append(rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := w.Append(rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}
	for _, line := range lines {
		if _, err := ParseRecord(line); err != nil {
			t.Errorf("appended line does not parse: %q", line)
		}
	}
}

func TestWriterAppendPreservesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teamA_process.log")
	if err := os.WriteFile(path, []byte("Model: teamA, Stage: process, Cohort: GLI, Start: , Runtime: 1 (s), Status: Failed, Error: first try\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(Record{Model: "teamA", Stage: "process", Status: "Completed"}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "first try") {
		t.Error("existing records must survive appends")
	}
	if !strings.Contains(string(data), "Status: Completed") {
		t.Error("new record missing")
	}
}

func TestWriterConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared_score.log")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Append(Record{Model: "teamA", Stage: "score", Status: "Completed"})
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != n {
		t.Fatalf("expected %d lines, got %d", n, len(lines))
	}
	for _, line := range lines {
		if _, err := ParseRecord(line); err != nil {
			t.Errorf("interleaved line: %q", line)
		}
	}
}

func TestNewWriterRequiresPath(t *testing.T) {
	if _, err := NewWriter(""); err == nil {
		t.Error("expected error for empty path")
	}
}
