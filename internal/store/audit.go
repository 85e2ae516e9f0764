// ABOUTME: Audit log entity and store methods for command and authorization events
// ABOUTME: Records who ran what against which server and how it was decided

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Decision records how an audited action was resolved.
type Decision string

const (
	DecisionAllowed Decision = "allowed" // authorized and executed successfully
	DecisionDenied  Decision = "denied"  // authorization refused
	DecisionFailed  Decision = "failed"  // authorized but the runtime call failed
)

// AuditEntry represents a single audit log entry. One entry is appended per
// authorization decision and per runtime call, denials included - a denial
// is as security-relevant as a success.
type AuditEntry struct {
	ID        string         // UUID v4
	Actor     string         // identity that issued the command
	Action    string         // command name, or "grant"/"revoke" for permission changes
	Target    string         // server name, grant scope, or "-" for fleet-level actions
	Decision  Decision       // how the action was resolved
	Detail    map[string]any // additional context (failure reason, granted capability, ...)
	Timestamp time.Time      // when it happened
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	Since    *time.Time // entries after this time
	Until    *time.Time // entries before this time
	Actor    *string    // filter by actor
	Action   *string    // filter by action
	Decision *Decision  // filter by decision
	Limit    int        // max results (default 100, max 1000)
}

// AppendAudit appends a new entry to the audit log.
// Generates ID and Timestamp if not set. The entry is committed before this
// returns; the log is append-only and never rewritten by the dispatcher.
func (s *SQLiteStore) AppendAudit(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	query := `
		INSERT INTO audit_log (audit_id, actor, action, target, decision, detail_json, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.Actor,
		e.Action,
		e.Target,
		e.Decision,
		detailJSON,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit entry",
		"id", e.ID,
		"actor", e.Actor,
		"action", e.Action,
		"target", e.Target,
		"decision", e.Decision,
	)
	return nil
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const auditLogQuery = `
	SELECT audit_id, actor, action, target, decision, detail_json, ts
	FROM audit_log
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR ts <= ?)
	  AND (? IS NULL OR actor = ?)
	  AND (? IS NULL OR action = ?)
	  AND (? IS NULL OR decision = ?)
	ORDER BY ts DESC
	LIMIT ?
`

// ListAudit returns audit entries matching the filter criteria.
// Results are returned newest first (DESC by timestamp).
func (s *SQLiteStore) ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	limit := normalizeAuditLimit(f.Limit)

	var sinceStr, untilStr, decisionStr *string
	if f.Since != nil {
		v := f.Since.UTC().Format(time.RFC3339Nano)
		sinceStr = &v
	}
	if f.Until != nil {
		v := f.Until.UTC().Format(time.RFC3339Nano)
		untilStr = &v
	}
	if f.Decision != nil {
		v := string(*f.Decision)
		decisionStr = &v
	}

	rows, err := s.db.QueryContext(ctx, auditLogQuery,
		sinceStr, sinceStr,
		untilStr, untilStr,
		f.Actor, f.Actor,
		f.Action, f.Action,
		decisionStr, decisionStr,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var decisionVal, tsStr string
		var detailJSON *string

		if err := rows.Scan(
			&e.ID,
			&e.Actor,
			&e.Action,
			&e.Target,
			&decisionVal,
			&detailJSON,
			&tsStr,
		); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		e.Decision = Decision(decisionVal)
		e.Timestamp, err = time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}

		if detailJSON != nil {
			if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshaling detail: %w", err)
			}
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	if entries == nil {
		entries = []AuditEntry{}
	}
	return entries, nil
}
