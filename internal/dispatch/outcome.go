// ABOUTME: Outcome and per-server Result types returned by the dispatcher
// ABOUTME: Every multi-target command reports each server's fate independently

package dispatch

import "fmt"

// ResultStatus classifies one server's fate within a command.
type ResultStatus string

const (
	StatusOK     ResultStatus = "ok"     // authorized and executed
	StatusDenied ResultStatus = "denied" // authorization refused
	StatusFailed ResultStatus = "failed" // authorized but the operation failed
)

// Result is one server's slot in an Outcome. Denied and Failed are normal
// result values, not exceptional conditions: one server's denial or
// failure never affects its siblings.
type Result struct {
	Server string       // server name; empty for informational results
	Status ResultStatus
	Detail string       // success detail, or failure reason for StatusFailed
}

// Outcome is the ordered per-target result set of one dispatched command.
// The order matches the resolved target list; it is never collapsed into a
// single boolean.
type Outcome []Result

// Line renders one result as a human-readable per-server line.
func (r Result) Line() string {
	if r.Server == "" {
		return r.Detail
	}
	switch r.Status {
	case StatusDenied:
		return fmt.Sprintf("%s: denied", r.Server)
	case StatusFailed:
		return fmt.Sprintf("%s: failed (%s)", r.Server, r.Detail)
	default:
		return fmt.Sprintf("%s: %s", r.Server, r.Detail)
	}
}

// Lines renders the whole outcome, one line per target in request order.
func (o Outcome) Lines() []string {
	lines := make([]string, len(o))
	for i, r := range o {
		lines[i] = r.Line()
	}
	return lines
}

// info builds a single-element informational outcome.
func info(detail string) Outcome {
	return Outcome{{Status: StatusOK, Detail: detail}}
}
