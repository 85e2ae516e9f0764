// ABOUTME: Admin CLI for berth server, admin, and grant management
// ABOUTME: Operates directly on the daemon's SQLite database and audits every change

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/berth-ops/berth/internal/store"
)

const banner = `
 _               _   _                  _           _
| |__   ___ _ __| |_| |__         __ _ | | _ _ __  (_)_ __
| '_ \ / _ \ '__| __| '_ \ _____ / _' || |/ | '_ \ | | '_ \
| |_) |  __/ |  | |_| | | |_____| (_| ||   <| | | || | | | |
|_.__/ \___|_|   \__|_| |_|      \__,_||_|\_|_| |_||_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		color.Red("Error: opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()

	switch cmd {
	case "servers":
		err = cmdServers(ctx, st, args)
	case "admins":
		err = cmdAdmins(ctx, st, args)
	case "grants":
		err = cmdGrants(ctx, st, args)
	case "audit":
		err = cmdAudit(ctx, st, args)
	case "prune":
		err = cmdPrune(ctx, st, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: berth-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  servers                          List managed servers")
	fmt.Println("  servers add <name> [container]   Register a server (container defaults to name)")
	fmt.Println("  servers remove <name>            Unregister a server (grants are kept, see prune)")
	fmt.Println("  admins                           List admin identities")
	fmt.Println("  admins add <identity>            Add an admin")
	fmt.Println("  admins remove <identity>         Remove an admin")
	fmt.Println("  grants                           List all capability grants")
	fmt.Println("  grants list <identity>           List grants held by one identity")
	fmt.Println("  grants grant <identity> <capability> [server]")
	fmt.Println("                                   Grant a capability (no server = fleet-wide)")
	fmt.Println("  grants revoke <identity> <capability> [server]")
	fmt.Println("                                   Revoke a capability")
	fmt.Println("  audit [--limit N]                Show recent audit entries, newest first")
	fmt.Println("  prune <server>                   Delete grants scoped to a removed server")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  BERTH_ADMIN_CONFIG  Config file path (default: ~/.config/berth/admin.toml)")
	fmt.Println("  BERTH_DB            Database path override")
	fmt.Println()
	yellow.Println("Capabilities:")
	fmt.Printf("  %s\n", strings.Join(capabilityNames(), ", "))
	fmt.Println()
}

func capabilityNames() []string {
	names := make([]string, len(store.ValidCapabilities))
	for i, c := range store.ValidCapabilities {
		names[i] = string(c)
	}
	return names
}

// actor identifies the CLI operator in the audit log. Changes made here
// bypass chat-side gating, so the trail must still say who did what.
func actor() string {
	user := os.Getenv("USER")
	if user == "" {
		user = "local"
	}
	return "cli:" + user
}

// audit appends one entry for a CLI-side change.
func audit(ctx context.Context, st store.Store, action, target string, detail map[string]any) error {
	entry := &store.AuditEntry{
		Actor:    actor(),
		Action:   action,
		Target:   target,
		Decision: store.DecisionAllowed,
		Detail:   detail,
	}
	if err := st.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

func cmdServers(ctx context.Context, st store.Store, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdServersList(ctx, st)
	case "add":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: berth-admin servers add <name> [container]")
		}
		name := args[0]
		container := name
		if len(args) == 2 {
			container = args[1]
		}
		if name == store.ScopeAll {
			return fmt.Errorf("server name %q is reserved for fleet-wide grants", store.ScopeAll)
		}
		if err := st.AddServer(ctx, &store.Server{Name: name, Container: container}); err != nil {
			return fmt.Errorf("adding server: %w", err)
		}
		if err := audit(ctx, st, "server_add", name, map[string]any{"container": container}); err != nil {
			return err
		}
		color.Green("Added server %s (container %s)\n", name, container)
		return nil
	case "remove", "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: berth-admin servers remove <name>")
		}
		if err := st.RemoveServer(ctx, args[0]); err != nil {
			return fmt.Errorf("removing server: %w", err)
		}
		if err := audit(ctx, st, "server_remove", args[0], nil); err != nil {
			return err
		}
		color.Green("Removed server %s\n", args[0])
		fmt.Println("Grants scoped to it were kept; run `berth-admin prune " + args[0] + "` to delete them.")
		return nil
	default:
		return fmt.Errorf("unknown servers subcommand: %s (use list, add, remove)", subcmd)
	}
}

func cmdServersList(ctx context.Context, st store.Store) error {
	servers, err := st.ListServers(ctx)
	if err != nil {
		return fmt.Errorf("listing servers: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Servers")
	cyan.Println("  -------")

	if len(servers) == 0 {
		fmt.Println("  (no servers)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tCONTAINER\tCREATED")
	fmt.Fprintln(w, "  ----\t---------\t-------")
	for _, srv := range servers {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", srv.Name, srv.Container, srv.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdAdmins(ctx context.Context, st store.Store, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		admins, err := st.ListAdmins(ctx)
		if err != nil {
			return fmt.Errorf("listing admins: %w", err)
		}
		cyan := color.New(color.FgCyan)
		fmt.Println()
		cyan.Println("  Admins")
		cyan.Println("  ------")
		if len(admins) == 0 {
			fmt.Println("  (no admins)")
		}
		for _, a := range admins {
			fmt.Printf("  %s\n", a)
		}
		fmt.Println()
		return nil
	case "add":
		if len(args) != 1 {
			return fmt.Errorf("usage: berth-admin admins add <identity>")
		}
		if err := st.AddAdmin(ctx, args[0]); err != nil {
			return fmt.Errorf("adding admin: %w", err)
		}
		if err := audit(ctx, st, "admin_add", args[0], nil); err != nil {
			return err
		}
		color.Green("Added admin %s\n", args[0])
		fmt.Println("Note: berthd re-seeds admins from its config at startup.")
		return nil
	case "remove", "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: berth-admin admins remove <identity>")
		}
		if err := st.RemoveAdmin(ctx, args[0]); err != nil {
			return fmt.Errorf("removing admin: %w", err)
		}
		if err := audit(ctx, st, "admin_remove", args[0], nil); err != nil {
			return err
		}
		color.Green("Removed admin %s\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown admins subcommand: %s (use list, add, remove)", subcmd)
	}
}

func cmdGrants(ctx context.Context, st store.Store, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdGrantsList(ctx, st, args)
	case "grant", "add":
		return cmdGrantsChange(ctx, st, args, true)
	case "revoke", "rm", "remove":
		return cmdGrantsChange(ctx, st, args, false)
	default:
		return fmt.Errorf("unknown grants subcommand: %s (use list, grant, revoke)", subcmd)
	}
}

func cmdGrantsList(ctx context.Context, st store.Store, args []string) error {
	var grants []store.Grant
	var err error
	if len(args) == 1 {
		grants, err = st.ListGrants(ctx, args[0])
	} else {
		grants, err = st.ListAllGrants(ctx)
	}
	if err != nil {
		return fmt.Errorf("listing grants: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Grants")
	cyan.Println("  ------")

	if len(grants) == 0 {
		fmt.Println("  (no grants)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  IDENTITY\tCAPABILITY\tSCOPE\tCREATED")
	fmt.Fprintln(w, "  --------\t----------\t-----\t-------")
	for _, g := range grants {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", g.Identity, g.Capability, g.Scope, g.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdGrantsChange(ctx context.Context, st store.Store, args []string, granting bool) error {
	verb := "grant"
	if !granting {
		verb = "revoke"
	}
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: berth-admin grants %s <identity> <capability> [server]", verb)
	}

	identity := args[0]
	cap, err := store.ParseCapability(args[1])
	if err != nil {
		return err
	}
	scope := store.ScopeAll
	if len(args) == 3 {
		scope = args[2]
	}

	if granting && scope != store.ScopeAll {
		if _, err := st.GetServer(ctx, scope); err != nil {
			return fmt.Errorf("resolving server %q: %w", scope, err)
		}
	}

	if granting {
		err = st.AddGrant(ctx, identity, scope, cap)
	} else {
		err = st.RemoveGrant(ctx, identity, scope, cap)
	}
	if err != nil {
		return fmt.Errorf("%sing grant: %w", strings.TrimSuffix(verb, "e"), err)
	}

	detail := map[string]any{"target_identity": identity, "capability": string(cap)}
	if err := audit(ctx, st, verb, scope, detail); err != nil {
		return err
	}

	if granting {
		color.Green("Granted %s on %s to %s\n", cap, scope, identity)
	} else {
		color.Green("Revoked %s on %s from %s\n", cap, scope, identity)
	}
	return nil
}

func cmdAudit(ctx context.Context, st store.Store, args []string) error {
	filter := store.AuditFilter{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--limit":
			if i+1 >= len(args) {
				return fmt.Errorf("--limit requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid --limit value %q", args[i+1])
			}
			filter.Limit = n
			i++
		case "--actor":
			if i+1 >= len(args) {
				return fmt.Errorf("--actor requires a value")
			}
			filter.Actor = &args[i+1]
			i++
		default:
			return fmt.Errorf("unknown audit flag: %s", args[i])
		}
	}

	entries, err := st.ListAudit(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing audit entries: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Audit Log (newest first)")
	cyan.Println("  ------------------------")

	if len(entries) == 0 {
		fmt.Println("  (no entries)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tACTOR\tACTION\tTARGET\tDECISION")
	fmt.Fprintln(w, "  ----\t-----\t------\t------\t--------")
	for _, e := range entries {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime),
			e.Actor, e.Action, e.Target, e.Decision)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdPrune(ctx context.Context, st store.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: berth-admin prune <server>")
	}
	scope := args[0]
	if scope == store.ScopeAll {
		return fmt.Errorf("refusing to prune fleet-wide grants")
	}

	if _, err := st.GetServer(ctx, scope); err == nil {
		return fmt.Errorf("server %q still exists; remove it before pruning its grants", scope)
	}

	n, err := st.PruneGrants(ctx, scope)
	if err != nil {
		return fmt.Errorf("pruning grants: %w", err)
	}
	if err := audit(ctx, st, "prune", scope, map[string]any{"deleted": n}); err != nil {
		return err
	}
	color.Green("Deleted %d grants scoped to %s\n", n, scope)
	return nil
}
