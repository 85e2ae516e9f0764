// ABOUTME: Dispatcher orchestrating authorization, runtime fan-out, and audit
// ABOUTME: Executes one parsed command for one identity and returns an ordered Outcome

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/berth-ops/berth/internal/command"
	"github.com/berth-ops/berth/internal/perm"
	"github.com/berth-ops/berth/internal/runtime"
	"github.com/berth-ops/berth/internal/store"
)

// maxConcurrentOps bounds how many runtime calls one invocation issues at
// once. Results still land in request order regardless of completion order.
const maxConcurrentOps = 4

// defaultLogLines is used when the logs command omits or mangles the line
// count.
const defaultLogLines = 10

// Dispatcher executes parsed commands: it checks authorization per target,
// drives the container runtime, records every decision in the audit log,
// and aggregates per-server results into an Outcome.
//
// Execute is safe for concurrent use. No permission state is locked while
// a runtime call is in flight.
type Dispatcher struct {
	perm      *perm.Service
	store     store.Store
	runtime   runtime.Runtime
	startedAt time.Time
	logger    *slog.Logger
}

// New creates a dispatcher. startedAt feeds the uptime command.
func New(p *perm.Service, st store.Store, rt runtime.Runtime, startedAt time.Time) *Dispatcher {
	return &Dispatcher{
		perm:      p,
		store:     st,
		runtime:   rt,
		startedAt: startedAt,
		logger:    slog.Default().With("component", "dispatch"),
	}
}

// Execute runs one command for one identity. Per-server denials and
// runtime failures are normal Result values; the returned error is
// reserved for programming errors (a command that should never have
// reached the dispatcher) and audit persistence failures.
func (d *Dispatcher) Execute(ctx context.Context, identity string, cmd *command.Command) (Outcome, error) {
	d.logger.Info("executing command", "identity", identity, "command", cmd.Name, "args", strings.Join(cmd.Args, " "))

	switch cmd.Name {
	case "help":
		if len(cmd.Args) == 1 {
			if text, ok := command.HelpFor(cmd.Args[0]); ok {
				return info(text), nil
			}
			return info(fmt.Sprintf("no such command %q - try `help`", cmd.Args[0])), nil
		}
		return info(command.Help()), nil

	case "uptime":
		return info(fmt.Sprintf("up %s", time.Since(d.startedAt).Round(time.Second))), nil

	case "permissions":
		return d.executePermissions(ctx, identity, cmd.Args)

	case "status":
		return d.executeStatus(ctx, identity, cmd.Args)

	case "logs":
		return d.executeLogs(ctx, identity, cmd.Args)

	case "start", "restart", "kill":
		spec, _ := command.Lookup(cmd.Name)
		return d.executeLifecycle(ctx, identity, cmd.Name, spec.Capability, cmd.Args)

	default:
		// Unreachable post-parse; a command name outside the grammar here is
		// a programming error, not a user-facing outcome.
		return nil, fmt.Errorf("dispatcher received unparsed command %q", cmd.Name)
	}
}

// executeLifecycle handles start, restart, and kill: authorize each target,
// fan the runtime calls out concurrently, and collect results in request
// order. kill is gated on its own capability only - it is never implied by
// the routine operations.
func (d *Dispatcher) executeLifecycle(ctx context.Context, identity, name string, cap store.Capability, targets []string) (Outcome, error) {
	results := make(Outcome, len(targets))

	// Authorization pass: sequential store reads, deterministic audit order.
	// Slots that fail here are settled before any runtime call goes out.
	type job struct {
		idx       int
		container string
	}
	var jobs []job
	for i, target := range targets {
		results[i].Server = target

		srv, err := d.store.GetServer(ctx, target)
		if errors.Is(err, store.ErrServerNotFound) {
			results[i].Status = StatusFailed
			results[i].Detail = "unknown server"
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving server %q: %w", target, err)
		}

		ok, err := d.perm.HasCapability(ctx, identity, target, cap)
		if err != nil {
			return nil, fmt.Errorf("checking capability: %w", err)
		}
		if !ok {
			results[i].Status = StatusDenied
			continue
		}

		jobs = append(jobs, job{idx: i, container: srv.Container})
	}

	// Runtime pass: independent I/O against the engine, bounded
	// concurrency, results written into their original slots.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentOps)
	for _, j := range jobs {
		g.Go(func() error {
			detail, err := d.invokeRuntime(gctx, name, j.container)
			if err != nil {
				results[j.idx].Status = StatusFailed
				results[j.idx].Detail = failureReason(err)
				return nil
			}
			results[j.idx].Status = StatusOK
			results[j.idx].Detail = detail
			return nil
		})
	}
	_ = g.Wait() // jobs never return errors; failures live in their slots

	if err := d.auditResults(ctx, identity, name, results); err != nil {
		return nil, err
	}
	return results, nil
}

// invokeRuntime issues one engine call and returns the success detail.
func (d *Dispatcher) invokeRuntime(ctx context.Context, name, container string) (string, error) {
	switch name {
	case "start":
		return "started", d.runtime.Start(ctx, container)
	case "restart":
		return "restart sent", d.runtime.Restart(ctx, container)
	case "kill":
		return "SIGKILL sent", d.runtime.Kill(ctx, container)
	default:
		return "", fmt.Errorf("no runtime operation for %q", name)
	}
}

// executeStatus handles the status command. An empty target list is
// resolved to every server the caller can view; if that set is empty the
// outcome is a single denied summary rather than an empty sequence.
func (d *Dispatcher) executeStatus(ctx context.Context, identity string, targets []string) (Outcome, error) {
	if len(targets) == 0 {
		visible, err := d.perm.VisibleServers(ctx, identity, store.CapStatus)
		if err != nil {
			return nil, fmt.Errorf("resolving viewable servers: %w", err)
		}
		if len(visible) == 0 {
			out := Outcome{{Status: StatusDenied, Detail: "no servers you can view"}}
			if err := d.audit(ctx, identity, "status", store.ScopeAll, store.DecisionDenied, nil); err != nil {
				return nil, err
			}
			return out, nil
		}
		targets = make([]string, len(visible))
		for i, srv := range visible {
			targets[i] = srv.Name
		}
	}

	results := make(Outcome, len(targets))

	type job struct {
		idx       int
		container string
	}
	var jobs []job
	for i, target := range targets {
		results[i].Server = target

		srv, err := d.store.GetServer(ctx, target)
		if errors.Is(err, store.ErrServerNotFound) {
			results[i].Status = StatusFailed
			results[i].Detail = "unknown server"
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving server %q: %w", target, err)
		}

		ok, err := d.perm.HasCapability(ctx, identity, target, store.CapStatus)
		if err != nil {
			return nil, fmt.Errorf("checking capability: %w", err)
		}
		if !ok {
			results[i].Status = StatusDenied
			continue
		}

		jobs = append(jobs, job{idx: i, container: srv.Container})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentOps)
	for _, j := range jobs {
		g.Go(func() error {
			state, err := d.runtime.Status(gctx, j.container)
			if err != nil {
				results[j.idx].Status = StatusFailed
				results[j.idx].Detail = failureReason(err)
				return nil
			}
			results[j.idx].Status = StatusOK
			results[j.idx].Detail = string(state)
			return nil
		})
	}
	_ = g.Wait()

	if err := d.auditResults(ctx, identity, "status", results); err != nil {
		return nil, err
	}
	return results, nil
}

// executeLogs handles the logs command: one server, optional line count.
// A mangled line count falls back to the default rather than erroring.
func (d *Dispatcher) executeLogs(ctx context.Context, identity string, args []string) (Outcome, error) {
	target := args[0]
	lines := defaultLogLines
	if len(args) == 2 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
			lines = n
		}
	}

	result := Result{Server: target}

	srv, err := d.store.GetServer(ctx, target)
	if errors.Is(err, store.ErrServerNotFound) {
		result.Status = StatusFailed
		result.Detail = "unknown server"
	} else if err != nil {
		return nil, fmt.Errorf("resolving server %q: %w", target, err)
	} else {
		ok, err := d.perm.HasCapability(ctx, identity, target, store.CapLogs)
		if err != nil {
			return nil, fmt.Errorf("checking capability: %w", err)
		}
		if !ok {
			result.Status = StatusDenied
		} else if out, err := d.runtime.Logs(ctx, srv.Container, lines); err != nil {
			result.Status = StatusFailed
			result.Detail = failureReason(err)
		} else {
			result.Status = StatusOK
			result.Detail = out
		}
	}

	results := Outcome{result}
	if err := d.auditResults(ctx, identity, "logs", results); err != nil {
		return nil, err
	}
	return results, nil
}

// executePermissions routes the permissions subcommands. Grant and revoke
// flow through the perm service's gating; the result is a single-element
// outcome for uniformity with server commands.
func (d *Dispatcher) executePermissions(ctx context.Context, identity string, args []string) (Outcome, error) {
	if args[0] == "show" {
		return d.executePermissionsShow(ctx, identity)
	}

	action := args[0] // "grant" or "revoke", validated by the parser
	target := args[1]
	capName := args[2]
	scope := store.ScopeAll
	if len(args) == 4 {
		scope = args[3]
	}

	cap, err := store.ParseCapability(capName)
	if err != nil {
		return Outcome{{Server: scope, Status: StatusFailed, Detail: err.Error()}}, nil
	}

	detail := map[string]any{
		"target_identity": target,
		"capability":      string(cap),
	}

	var opErr error
	if action == "grant" {
		opErr = d.perm.Grant(ctx, identity, target, scope, cap)
	} else {
		opErr = d.perm.Revoke(ctx, identity, target, scope, cap)
	}

	var result Result
	var decision store.Decision
	switch {
	case errors.Is(opErr, perm.ErrUnauthorized):
		result = Result{Server: scope, Status: StatusDenied}
		decision = store.DecisionDenied
	case errors.Is(opErr, store.ErrServerNotFound):
		result = Result{Server: scope, Status: StatusFailed, Detail: "unknown server"}
		decision = store.DecisionFailed
		detail["reason"] = "unknown server"
	case opErr != nil:
		return nil, fmt.Errorf("%s: %w", action, opErr)
	default:
		result = Result{
			Server: scope,
			Status: StatusOK,
			Detail: fmt.Sprintf("%sed %s for %s", strings.TrimSuffix(action, "e"), cap, target),
		}
		decision = store.DecisionAllowed
	}

	if err := d.audit(ctx, identity, action, scope, decision, detail); err != nil {
		return nil, err
	}
	return Outcome{result}, nil
}

// executePermissionsShow renders the whole permission state. Admin only.
func (d *Dispatcher) executePermissionsShow(ctx context.Context, identity string) (Outcome, error) {
	isAdmin, err := d.perm.IsAdmin(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("checking admin: %w", err)
	}
	if !isAdmin {
		if err := d.audit(ctx, identity, "permissions_show", store.ScopeAll, store.DecisionDenied, nil); err != nil {
			return nil, err
		}
		return Outcome{{Status: StatusDenied, Detail: "permissions show is admin-only"}}, nil
	}

	snap, err := d.perm.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading permission state: %w", err)
	}

	if err := d.audit(ctx, identity, "permissions_show", store.ScopeAll, store.DecisionAllowed, nil); err != nil {
		return nil, err
	}
	return info(formatSnapshot(snap)), nil
}

// formatSnapshot renders the permission state as markdown.
func formatSnapshot(snap *perm.Snapshot) string {
	var b strings.Builder

	b.WriteString("**Servers**\n")
	if len(snap.Servers) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, srv := range snap.Servers {
		fmt.Fprintf(&b, "- `%s` → container `%s`\n", srv.Name, srv.Container)
	}

	b.WriteString("\n**Admins**\n")
	if len(snap.Admins) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, admin := range snap.Admins {
		fmt.Fprintf(&b, "- `%s`\n", admin)
	}

	b.WriteString("\n**Grants**\n")
	if len(snap.Grants) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, g := range snap.Grants {
		fmt.Fprintf(&b, "- `%s`: `%s` on `%s`\n", g.Identity, g.Capability, g.Scope)
	}

	return b.String()
}

// auditResults appends one audit entry per settled slot, in slot order.
func (d *Dispatcher) auditResults(ctx context.Context, identity, action string, results Outcome) error {
	for _, r := range results {
		var decision store.Decision
		var detail map[string]any
		switch r.Status {
		case StatusOK:
			decision = store.DecisionAllowed
		case StatusDenied:
			decision = store.DecisionDenied
		case StatusFailed:
			decision = store.DecisionFailed
			detail = map[string]any{"reason": r.Detail}
		}
		if err := d.audit(ctx, identity, action, r.Server, decision, detail); err != nil {
			return err
		}
	}
	return nil
}

// audit appends one entry. Audit persistence failures are escalated: an
// unauditable control plane must not keep executing silently.
func (d *Dispatcher) audit(ctx context.Context, actor, action, target string, decision store.Decision, detail map[string]any) error {
	if target == "" {
		target = "-"
	}
	entry := &store.AuditEntry{
		Actor:    actor,
		Action:   action,
		Target:   target,
		Decision: decision,
		Detail:   detail,
	}
	if err := d.store.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// failureReason normalizes engine errors into short operator-facing
// reasons.
func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, runtime.ErrContainerNotFound):
		return "container not found"
	default:
		return err.Error()
	}
}
