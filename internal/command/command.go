// ABOUTME: Pure text parser for the chat command grammar
// ABOUTME: Splits raw text into a Command and validates shape, never touching I/O or permissions

package command

import (
	"fmt"
	"strings"

	"github.com/berth-ops/berth/internal/store"
)

// Command is a parsed invocation: a command name and its ordered arguments.
// Parsed once per invocation and immutable afterwards.
type Command struct {
	Name string
	Args []string
}

// ParseErrorKind classifies parse failures.
type ParseErrorKind string

const (
	UnknownCommand  ParseErrorKind = "unknown_command"
	MissingArgument ParseErrorKind = "missing_argument"
)

// ParseError reports a malformed invocation. It is the caller-facing half
// of the error taxonomy: parse errors are reported directly to the user and
// never reach the dispatcher.
type ParseError struct {
	Kind    ParseErrorKind
	Command string
	Usage   string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case UnknownCommand:
		if e.Command == "" {
			return "no command given"
		}
		return fmt.Sprintf("unknown command %q", e.Command)
	case MissingArgument:
		return fmt.Sprintf("usage: %s", e.Usage)
	default:
		return "invalid command"
	}
}

// Spec describes one command in the grammar.
type Spec struct {
	Name       string
	Capability store.Capability // "" = no authorization required
	MinArgs    int
	Usage      string
	Summary    string
}

// Specs lists the accepted grammar in help order. status is the only
// server-targeting command that accepts zero arguments; the dispatcher
// resolves the empty list to the servers the caller can view.
var Specs = []Spec{
	{
		Name:    "help",
		MinArgs: 0,
		Usage:   "help [command]",
		Summary: "Show available commands, or detailed help for one command.",
	},
	{
		Name:       "status",
		Capability: store.CapStatus,
		MinArgs:    0,
		Usage:      "status [server...]",
		Summary:    "Show container status. With no arguments, covers every server you can view.",
	},
	{
		Name:       "start",
		Capability: store.CapStart,
		MinArgs:    1,
		Usage:      "start <server>...",
		Summary:    "Start the named servers. Does nothing to servers already running.",
	},
	{
		Name:       "restart",
		Capability: store.CapRestart,
		MinArgs:    1,
		Usage:      "restart <server>...",
		Summary:    "Restart the named servers, starting them if stopped.",
	},
	{
		Name:       "kill",
		Capability: store.CapKill,
		MinArgs:    1,
		Usage:      "kill <server>...",
		Summary:    "SIGKILL the named servers. Unsafe: may lose or corrupt data. Last resort only.",
	},
	{
		Name:       "logs",
		Capability: store.CapLogs,
		MinArgs:    1,
		Usage:      "logs <server> [lines]",
		Summary:    "Tail a server's log output (default 10 lines, max 20).",
	},
	{
		Name:       "permissions",
		Capability: store.CapManagePermissions,
		MinArgs:    1,
		Usage:      "permissions <grant|revoke> <identity> <capability> [server] | permissions show",
		Summary:    "Grant or revoke a capability, or show the full permission state (admins only).",
	},
	{
		Name:    "uptime",
		MinArgs: 0,
		Usage:   "uptime",
		Summary: "Show how long the daemon has been running.",
	},
}

// Lookup returns the Spec for a command name.
func Lookup(name string) (*Spec, bool) {
	for i := range Specs {
		if Specs[i].Name == name {
			return &Specs[i], true
		}
	}
	return nil, false
}

// Parse turns raw text into a Command or a *ParseError. It is pure: no
// I/O, no permission lookups, no knowledge of which servers exist.
func Parse(raw string) (*Command, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, &ParseError{Kind: UnknownCommand}
	}

	name := strings.ToLower(fields[0])
	spec, ok := Lookup(name)
	if !ok {
		return nil, &ParseError{Kind: UnknownCommand, Command: name}
	}

	args := fields[1:]
	if len(args) < spec.MinArgs {
		return nil, &ParseError{Kind: MissingArgument, Command: name, Usage: spec.Usage}
	}

	if name == "permissions" {
		if err := validatePermissionsForm(args, spec.Usage); err != nil {
			return nil, err
		}
	}

	if name == "help" && len(args) > 1 {
		return nil, &ParseError{Kind: MissingArgument, Command: name, Usage: spec.Usage}
	}

	if name == "logs" && len(args) > 2 {
		return nil, &ParseError{Kind: MissingArgument, Command: name, Usage: spec.Usage}
	}

	return &Command{Name: name, Args: args}, nil
}

// validatePermissionsForm checks the permissions subcommand shape:
// "show" alone, or grant/revoke with identity, capability, and an optional
// server. Capability and server values are validated downstream.
func validatePermissionsForm(args []string, usage string) error {
	switch args[0] {
	case "show":
		if len(args) != 1 {
			return &ParseError{Kind: MissingArgument, Command: "permissions", Usage: usage}
		}
	case "grant", "revoke":
		if len(args) < 3 || len(args) > 4 {
			return &ParseError{Kind: MissingArgument, Command: "permissions", Usage: usage}
		}
	default:
		return &ParseError{Kind: MissingArgument, Command: "permissions", Usage: usage}
	}
	return nil
}

// Help renders the command overview as markdown.
func Help() string {
	var b strings.Builder
	b.WriteString("**Commands**\n")
	for _, spec := range Specs {
		fmt.Fprintf(&b, "- `%s`: %s\n", spec.Usage, spec.Summary)
	}
	return b.String()
}

// HelpFor renders detailed help for one command. Returns false for names
// not in the grammar.
func HelpFor(name string) (string, bool) {
	spec, ok := Lookup(strings.ToLower(name))
	if !ok {
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n`%s`\n\n%s", spec.Name, spec.Usage, spec.Summary)
	if spec.Capability != "" {
		fmt.Fprintf(&b, "\n\nRequires the `%s` capability.", spec.Capability)
	}
	return b.String(), true
}
