// ABOUTME: Reply rendering for the Matrix bridge
// ABOUTME: Turns dispatch outcomes into markdown and markdown into Matrix HTML

package bridge

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/berth-ops/berth/internal/dispatch"
)

// renderOutcome turns a dispatch outcome into reply markdown. A single
// unlabeled result (help text, uptime, the permission dump) passes through
// as-is. Per-server one-liners become a bullet list; multiline details such
// as log output are fenced under a server heading.
func renderOutcome(out dispatch.Outcome) string {
	if len(out) == 1 && out[0].Server == "" {
		return out[0].Detail
	}

	var b strings.Builder
	for i, r := range out {
		if r.Status == dispatch.StatusOK && strings.Contains(r.Detail, "\n") {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "**%s**\n```\n%s\n```\n", r.Server, strings.TrimRight(r.Detail, "\n"))
			continue
		}
		fmt.Fprintf(&b, "- %s\n", r.Line())
	}
	return strings.TrimRight(b.String(), "\n")
}

// markdownToHTML converts reply markdown to the HTML Matrix clients render
// as the formatted body.
func markdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
