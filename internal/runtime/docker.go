// ABOUTME: Docker implementation of the Runtime interface
// ABOUTME: Wraps the Docker engine SDK with per-call timeouts and error mapping

package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerRuntime drives containers through the Docker engine API.
type DockerRuntime struct {
	cli           *client.Client
	opTimeout     time.Duration
	statusTimeout time.Duration
	logger        *slog.Logger
}

// Ensure DockerRuntime implements Runtime.
var _ Runtime = (*DockerRuntime)(nil)

// NewDockerRuntime connects to the Docker engine. An empty host uses the
// DOCKER_HOST environment or the default socket. API version negotiation
// keeps the client compatible with older engines.
func NewDockerRuntime(host string, opTimeout, statusTimeout time.Duration) (*DockerRuntime, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	return &DockerRuntime{
		cli:           cli,
		opTimeout:     opTimeout,
		statusTimeout: statusTimeout,
		logger:        slog.Default().With("component", "runtime"),
	}, nil
}

// Close releases the engine client's idle connections.
func (d *DockerRuntime) Close() error {
	return d.cli.Close()
}

// Start starts the container. Starting an already-running container is a
// no-op at the engine level.
func (d *DockerRuntime) Start(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	if err := d.cli.ContainerStart(ctx, ref, container.StartOptions{}); err != nil {
		return mapEngineError("starting container", ref, err)
	}

	d.logger.Info("started container", "container", ref)
	return nil
}

// Restart restarts the container, starting it if it was stopped. The
// engine's default stop grace period applies.
func (d *DockerRuntime) Restart(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	if err := d.cli.ContainerRestart(ctx, ref, container.StopOptions{}); err != nil {
		return mapEngineError("restarting container", ref, err)
	}

	d.logger.Info("restarted container", "container", ref)
	return nil
}

// Kill delivers SIGKILL to the container.
func (d *DockerRuntime) Kill(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	if err := d.cli.ContainerKill(ctx, ref, "SIGKILL"); err != nil {
		return mapEngineError("killing container", ref, err)
	}

	d.logger.Warn("killed container", "container", ref)
	return nil
}

// Status reports whether the container is running, stopped, or in any
// other engine state (restarting, paused, dead) as unknown.
func (d *DockerRuntime) Status(ctx context.Context, ref string) (State, error) {
	ctx, cancel := context.WithTimeout(ctx, d.statusTimeout)
	defer cancel()

	insp, err := d.cli.ContainerInspect(ctx, ref)
	if err != nil {
		return StateUnknown, mapEngineError("inspecting container", ref, err)
	}

	if insp.State == nil {
		return StateUnknown, nil
	}
	switch {
	case insp.State.Running:
		return StateRunning, nil
	case insp.State.Status == "exited" || insp.State.Status == "created":
		return StateStopped, nil
	default:
		return StateUnknown, nil
	}
}

// maxLogLines caps how much log output one chat command may pull.
const maxLogLines = 20

// Logs returns the last lines of the container's combined stdout/stderr.
// lines is clamped to [1, maxLogLines].
func (d *DockerRuntime) Logs(ctx context.Context, ref string, lines int) (string, error) {
	if lines < 1 {
		lines = 1
	}
	if lines > maxLogLines {
		lines = maxLogLines
	}

	ctx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	insp, err := d.cli.ContainerInspect(ctx, ref)
	if err != nil {
		return "", mapEngineError("inspecting container", ref, err)
	}

	rc, err := d.cli.ContainerLogs(ctx, ref, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(lines),
	})
	if err != nil {
		return "", mapEngineError("reading container logs", ref, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if insp.Config != nil && insp.Config.Tty {
		// TTY containers stream raw output
		_, err = io.Copy(&buf, rc)
	} else {
		// Non-TTY output is multiplexed; demux stdout and stderr together
		_, err = stdcopy.StdCopy(&buf, &buf, rc)
	}
	if err != nil {
		return "", fmt.Errorf("reading container logs for %q: %w", ref, err)
	}

	return buf.String(), nil
}

// mapEngineError wraps engine errors, translating not-found into the
// package sentinel so callers can distinguish a bad name from a sick
// engine.
func mapEngineError(op, ref string, err error) error {
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("%s %q: %w", op, ref, ErrContainerNotFound)
	}
	return fmt.Errorf("%s %q: %w", op, ref, err)
}
