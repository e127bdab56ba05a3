// Package container drives the container runtime for inference stages.
package container

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rrchai/medrun/internal/config"
	"github.com/rrchai/medrun/internal/shell"
)

// RunSpec describes one detached inference container.
type RunSpec struct {
	// Image is the submitted model image reference.
	Image string

	// Name is the container name derived from the run descriptor.
	Name string

	// InputDir is bind-mounted read-only at /input.
	InputDir string

	// OutputDir is bind-mounted read-write at /output.
	OutputDir string
}

// Client shells out to the container runtime.
type Client struct {
	exec   shell.Executor
	binary string
	cfg    config.ContainerConfig
}

// NewClient creates a container runtime client.
func NewClient(executor shell.Executor, cfg config.ContainerConfig) *Client {
	binary := cfg.Binary
	if binary == "" {
		binary = "docker"
	}
	return &Client{exec: executor, binary: binary, cfg: cfg}
}

// Run starts a detached container and returns its identifier.
func (c *Client) Run(ctx context.Context, spec RunSpec) (string, error) {
	args := []string{"run", "-d", "--name", spec.Name,
		"-v", spec.InputDir + ":/input:ro",
		"-v", spec.OutputDir + ":/output:rw",
	}
	if c.cfg.Network != "" {
		args = append(args, "--network", c.cfg.Network)
	}
	if c.cfg.CPUs != "" {
		args = append(args, "--cpus", c.cfg.CPUs)
	}
	if c.cfg.Memory != "" {
		args = append(args, "--memory", c.cfg.Memory)
	}
	if c.cfg.GPUs != "" {
		args = append(args, "--gpus", c.cfg.GPUs)
	}
	args = append(args, spec.Image)

	stdout, _, err := c.exec.Exec(ctx, c.binary, args...)
	if err != nil {
		return "", fmt.Errorf("failed to start container %s: %w", spec.Name, err)
	}
	id := strings.TrimSpace(string(stdout))
	if id == "" {
		return "", fmt.Errorf("container runtime returned no identifier for %s", spec.Name)
	}
	return id, nil
}

// Wait blocks until the container terminates and returns its exit code.
func (c *Client) Wait(ctx context.Context, id string) (int, error) {
	stdout, _, err := c.exec.Exec(ctx, c.binary, "wait", id)
	if err != nil {
		return -1, fmt.Errorf("failed to wait for container %s: %w", id, err)
	}
	code, parseErr := strconv.Atoi(strings.TrimSpace(string(stdout)))
	if parseErr != nil {
		return -1, fmt.Errorf("unparsable wait output for container %s: %q", id, strings.TrimSpace(string(stdout)))
	}
	return code, nil
}

// ExitCode inspects a terminated container for its exit code.
func (c *Client) ExitCode(ctx context.Context, id string) (int, error) {
	stdout, _, err := c.exec.Exec(ctx, c.binary, "inspect", "--format", "{{.State.ExitCode}}", id)
	if err != nil {
		return -1, fmt.Errorf("failed to inspect container %s: %w", id, err)
	}
	code, parseErr := strconv.Atoi(strings.TrimSpace(string(stdout)))
	if parseErr != nil {
		return -1, fmt.Errorf("unparsable exit code for container %s: %q", id, strings.TrimSpace(string(stdout)))
	}
	return code, nil
}

// Logs returns up to tail trailing lines of the container's combined output.
func (c *Client) Logs(ctx context.Context, id string, tail int) (string, error) {
	args := []string{"logs"}
	if tail > 0 {
		args = append(args, "--tail", strconv.Itoa(tail))
	}
	args = append(args, id)

	stdout, stderr, err := c.exec.Exec(ctx, c.binary, args...)
	if err != nil {
		return "", fmt.Errorf("failed to read logs for container %s: %w", id, err)
	}
	// docker logs writes the container's stderr stream to stderr.
	combined := string(stdout)
	if len(stderr) > 0 {
		if combined != "" && !strings.HasSuffix(combined, "\n") {
			combined += "\n"
		}
		combined += string(stderr)
	}
	return combined, nil
}

// Remove deletes a terminated container.
func (c *Client) Remove(ctx context.Context, id string) error {
	if _, _, err := c.exec.Exec(ctx, c.binary, "rm", "-f", id); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	return nil
}
