// Package mocks provides shared mock implementations for testing.
package mocks

import (
	"context"
	"io"
	"strings"
	"sync"
)

// ExecCall records a single call to Exec or Stream.
type ExecCall struct {
	Name string
	Args []string
}

// Command returns the call rendered as a single command line.
func (c ExecCall) Command() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// ExecResponse defines a canned response for an Exec call.
type ExecResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// StreamResponse defines a canned response for a Stream call.
type StreamResponse struct {
	Output   string
	ExitCode int
	Err      error
}

// Executor is a mock implementation of shell.Executor for testing.
type Executor struct {
	mu sync.Mutex

	// Calls records all commands executed.
	Calls []ExecCall

	// Responses maps command-line prefixes to canned Exec responses.
	// If a rendered command starts with a key, that response is returned.
	Responses map[string]ExecResponse

	// DefaultResponse is returned when no matching Exec response is found.
	DefaultResponse ExecResponse

	// StreamResponses maps command-line prefixes to canned Stream responses.
	StreamResponses map[string]StreamResponse

	// DefaultStream is returned when no matching Stream response is found.
	DefaultStream StreamResponse
}

// NewExecutor creates a new mock executor.
func NewExecutor() *Executor {
	return &Executor{
		Responses:       make(map[string]ExecResponse),
		StreamResponses: make(map[string]StreamResponse),
	}
}

// SetResponse registers a canned Exec response for a command-line prefix.
func (m *Executor) SetResponse(prefix string, stdout, stderr []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[prefix] = ExecResponse{Stdout: stdout, Stderr: stderr, Err: err}
}

// SetStreamResponse registers a canned Stream response for a command-line prefix.
func (m *Executor) SetStreamResponse(prefix, output string, exitCode int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StreamResponses[prefix] = StreamResponse{Output: output, ExitCode: exitCode, Err: err}
}

// Exec returns the canned response matching the rendered command line.
func (m *Executor) Exec(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := ExecCall{Name: name, Args: args}
	m.Calls = append(m.Calls, call)

	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	for prefix, resp := range m.Responses {
		if strings.HasPrefix(call.Command(), prefix) {
			return resp.Stdout, resp.Stderr, resp.Err
		}
	}
	return m.DefaultResponse.Stdout, m.DefaultResponse.Stderr, m.DefaultResponse.Err
}

// Stream writes the canned output to w and returns the canned exit code.
func (m *Executor) Stream(ctx context.Context, w io.Writer, name string, args ...string) (int, error) {
	m.mu.Lock()
	call := ExecCall{Name: name, Args: args}
	m.Calls = append(m.Calls, call)

	var resp StreamResponse
	found := false
	for prefix, r := range m.StreamResponses {
		if strings.HasPrefix(call.Command(), prefix) {
			resp = r
			found = true
			break
		}
	}
	if !found {
		resp = m.DefaultStream
	}
	m.mu.Unlock()

	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	if resp.Output != "" {
		if _, err := io.WriteString(w, resp.Output); err != nil {
			return -1, err
		}
	}
	return resp.ExitCode, resp.Err
}

// CommandLines returns every recorded call rendered as a command line.
func (m *Executor) CommandLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := make([]string, 0, len(m.Calls))
	for _, c := range m.Calls {
		lines = append(lines, c.Command())
	}
	return lines
}
