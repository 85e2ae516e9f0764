// ABOUTME: Shared test helpers and basic store lifecycle tests
// ABOUTME: Provides setupTestStore used by the other store test files

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestNewSQLiteStore_CreatesParentDirs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	// Schema should be usable immediately
	err = store.AddServer(context.Background(), &Server{Name: "factorio", Container: "factorio-main"})
	require.NoError(t, err)
}

func TestSQLiteStore_ReopenPreservesState(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	require.NoError(t, store.AddServer(ctx, &Server{Name: "factorio", Container: "factorio-main"}))
	require.NoError(t, store.AddGrant(ctx, "@alice:example.org", "factorio", CapRestart))
	require.NoError(t, store.Close())

	// Simulated crash-and-restart: reopen the same file
	store2, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	has, err := store2.HasGrant(ctx, "@alice:example.org", "factorio", CapRestart)
	require.NoError(t, err)
	assert.True(t, has)

	srv, err := store2.GetServer(ctx, "factorio")
	require.NoError(t, err)
	assert.Equal(t, "factorio-main", srv.Container)
}

func TestParseCapability(t *testing.T) {
	for _, c := range ValidCapabilities {
		got, err := ParseCapability(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := ParseCapability("fly")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown capability")
}
