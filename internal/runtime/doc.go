// Package runtime abstracts the container engine behind the Runtime
// interface: start, restart, kill, status, and log tailing on named
// containers. DockerRuntime is the production implementation; tests
// substitute fakes. Failures are strictly per-container and bounded by
// configured timeouts so one sick container never hangs a whole command.
package runtime
