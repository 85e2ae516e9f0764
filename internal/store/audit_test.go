// ABOUTME: Tests for audit log store operations
// ABOUTME: Covers append, filtering, limits, and durability across reopen

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudit_AppendGeneratesIDAndTimestamp(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	e := &AuditEntry{
		Actor:    "@alice:example.org",
		Action:   "restart",
		Target:   "factorio",
		Decision: DecisionAllowed,
	}
	require.NoError(t, store.AppendAudit(ctx, e))

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
}

func TestAudit_ListNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, action := range []string{"start", "restart", "kill"} {
		require.NoError(t, store.AppendAudit(ctx, &AuditEntry{
			Actor:     "@alice:example.org",
			Action:    action,
			Target:    "factorio",
			Decision:  DecisionAllowed,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := store.ListAudit(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "kill", entries[0].Action)
	assert.Equal(t, "start", entries[2].Action)
}

func TestAudit_FilterByActorAndDecision(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendAudit(ctx, &AuditEntry{
		Actor: "@alice:example.org", Action: "kill", Target: "factorio", Decision: DecisionDenied,
	}))
	require.NoError(t, store.AppendAudit(ctx, &AuditEntry{
		Actor: "@bob:example.org", Action: "kill", Target: "factorio", Decision: DecisionAllowed,
	}))

	actor := "@alice:example.org"
	denied := DecisionDenied
	entries, err := store.ListAudit(ctx, AuditFilter{Actor: &actor, Decision: &denied})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "@alice:example.org", entries[0].Actor)
	assert.Equal(t, DecisionDenied, entries[0].Decision)
}

func TestAudit_DetailRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendAudit(ctx, &AuditEntry{
		Actor:    "@admin:example.org",
		Action:   "grant",
		Target:   "factorio",
		Decision: DecisionAllowed,
		Detail: map[string]any{
			"target_identity": "@alice:example.org",
			"capability":      "restart",
		},
	}))

	entries, err := store.ListAudit(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "@alice:example.org", entries[0].Detail["target_identity"])
	assert.Equal(t, "restart", entries[0].Detail["capability"])
}

func TestAudit_LimitNormalization(t *testing.T) {
	assert.Equal(t, 100, normalizeAuditLimit(0))
	assert.Equal(t, 100, normalizeAuditLimit(-5))
	assert.Equal(t, 1000, normalizeAuditLimit(5000))
	assert.Equal(t, 42, normalizeAuditLimit(42))
}

func TestAudit_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	require.NoError(t, store.AppendAudit(ctx, &AuditEntry{
		Actor: "@alice:example.org", Action: "restart", Target: "factorio", Decision: DecisionAllowed,
	}))
	require.NoError(t, store.Close())

	// No entry may be lost across a crash-and-restart between mutations
	store2, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	require.NoError(t, store2.AppendAudit(ctx, &AuditEntry{
		Actor: "@alice:example.org", Action: "kill", Target: "factorio", Decision: DecisionDenied,
	}))

	entries, err := store2.ListAudit(ctx, AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
