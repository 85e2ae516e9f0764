// ABOUTME: Container runtime abstraction for berth
// ABOUTME: Defines the per-container lifecycle operations the dispatcher drives

package runtime

import (
	"context"
	"errors"
)

// State is the coarse container status reported to operators.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateUnknown State = "unknown"
)

// ErrContainerNotFound is returned when the engine does not know the
// container reference.
var ErrContainerNotFound = errors.New("container not found")

// Runtime exposes lifecycle operations on named containers. Every call is
// synchronous, bounded by a timeout, and fails independently per
// container; implementations never panic on engine errors.
type Runtime interface {
	// Start starts the container. No-op if already running.
	Start(ctx context.Context, ref string) error

	// Restart restarts the container, starting it if stopped.
	Restart(ctx context.Context, ref string) error

	// Kill delivers SIGKILL. Unsafe by design; callers gate it behind an
	// explicit capability.
	Kill(ctx context.Context, ref string) error

	// Status reports the container's coarse state.
	Status(ctx context.Context, ref string) (State, error)

	// Logs returns the last lines of the container's log output.
	Logs(ctx context.Context, ref string, lines int) (string, error)
}
