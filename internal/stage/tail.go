package stage

import (
	"strings"
	"sync"
)

const defaultTailLines = 20

// tailWriter keeps the last maxLines lines written through it.
type tailWriter struct {
	mu       sync.Mutex
	maxLines int
	lines    []string
	buffer   string
}

func newTailWriter(maxLines int) *tailWriter {
	if maxLines <= 0 {
		maxLines = defaultTailLines
	}
	return &tailWriter{maxLines: maxLines}
}

func (t *tailWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	text := t.buffer + string(p)
	parts := strings.Split(text, "\n")
	t.buffer = parts[len(parts)-1]

	for _, line := range parts[:len(parts)-1] {
		if len(t.lines) >= t.maxLines {
			t.lines = t.lines[1:]
		}
		t.lines = append(t.lines, line)
	}
	return len(p), nil
}

func (t *tailWriter) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := append([]string{}, t.lines...)
	if strings.TrimSpace(t.buffer) != "" {
		lines = append(lines, t.buffer)
	}
	return strings.Join(lines, "\n")
}

// markerWriter watches a stream for a marker token. The merge script
// signals failure with an "Error:" marker even when it exits zero.
type markerWriter struct {
	mu      sync.Mutex
	marker  string
	matched bool
	line    string
	partial string
}

func newMarkerWriter(marker string) *markerWriter {
	return &markerWriter{marker: marker}
}

func (m *markerWriter) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.matched || m.marker == "" {
		return len(p), nil
	}

	text := m.partial + string(p)
	parts := strings.Split(text, "\n")
	m.partial = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		if idx := strings.Index(line, m.marker); idx >= 0 {
			m.matched = true
			m.line = strings.TrimSpace(line[idx:])
			return len(p), nil
		}
	}
	// Keep a bounded window so a marker split across writes still matches.
	if len(m.partial) > 4096 {
		m.partial = m.partial[len(m.partial)-4096:]
	}
	return len(p), nil
}

// Matched reports whether the marker was seen, with the matching line.
func (m *markerWriter) Matched() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.matched && m.partial != "" {
		if idx := strings.Index(m.partial, m.marker); idx >= 0 {
			m.matched = true
			m.line = strings.TrimSpace(m.partial[idx:])
		}
	}
	return m.matched, m.line
}
