// ABOUTME: Tests for the authorization policy service
// ABOUTME: Covers scope widening, admin bypass, grant gating, and escalation limits

package perm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berth-ops/berth/internal/store"
)

const (
	admin = "@admin:example.org"
	alice = "@alice:example.org"
	bob   = "@bob:example.org"
)

// setupService creates a service over a fresh store with two servers and
// one admin.
func setupService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.AddServer(ctx, &store.Server{Name: "factorio", Container: "factorio-main"}))
	require.NoError(t, st.AddServer(ctx, &store.Server{Name: "valheim", Container: "valheim-main"}))
	require.NoError(t, st.AddAdmin(ctx, admin))

	return NewService(st), st
}

func TestHasCapability_ExactGrant(t *testing.T) {
	svc, st := setupService(t)
	ctx := context.Background()

	require.NoError(t, st.AddGrant(ctx, alice, "factorio", store.CapRestart))

	has, err := svc.HasCapability(ctx, alice, "factorio", store.CapRestart)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestHasCapability_NoScopeLeakage(t *testing.T) {
	svc, st := setupService(t)
	ctx := context.Background()

	require.NoError(t, st.AddGrant(ctx, alice, "factorio", store.CapRestart))

	// Same capability, different server
	has, err := svc.HasCapability(ctx, alice, "valheim", store.CapRestart)
	require.NoError(t, err)
	assert.False(t, has)

	// Same server, different capability
	has, err = svc.HasCapability(ctx, alice, "factorio", store.CapStatus)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestHasCapability_KillNeverImplied(t *testing.T) {
	svc, st := setupService(t)
	ctx := context.Background()

	require.NoError(t, st.AddGrant(ctx, alice, "factorio", store.CapStart))
	require.NoError(t, st.AddGrant(ctx, alice, "factorio", store.CapRestart))
	require.NoError(t, st.AddGrant(ctx, alice, "factorio", store.CapStatus))

	has, err := svc.HasCapability(ctx, alice, "factorio", store.CapKill)
	require.NoError(t, err)
	assert.False(t, has, "routine capabilities must never imply kill")
}

func TestHasCapability_FleetScope(t *testing.T) {
	svc, st := setupService(t)
	ctx := context.Background()

	require.NoError(t, st.AddGrant(ctx, alice, store.ScopeAll, store.CapStatus))

	for _, server := range []string{"factorio", "valheim"} {
		has, err := svc.HasCapability(ctx, alice, server, store.CapStatus)
		require.NoError(t, err)
		assert.True(t, has, "fleet grant should cover %s", server)
	}
}

func TestHasCapability_AdminBypass(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	for _, cap := range store.ValidCapabilities {
		has, err := svc.HasCapability(ctx, admin, "factorio", cap)
		require.NoError(t, err)
		assert.True(t, has, "admin should hold %s", cap)
	}
}

func TestGrant_AdminMayGrantAnything(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.Grant(ctx, admin, alice, "factorio", store.CapKill))

	has, err := svc.HasCapability(ctx, alice, "factorio", store.CapKill)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestGrant_RoundTripImmediatelyVisible(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.Grant(ctx, admin, alice, "factorio", store.CapRestart))

	has, err := svc.HasCapability(ctx, alice, "factorio", store.CapRestart)
	require.NoError(t, err)
	assert.True(t, has, "grant must be visible as soon as Grant returns")
}

func TestGrant_UnknownServer(t *testing.T) {
	svc, _ := setupService(t)

	err := svc.Grant(context.Background(), admin, alice, "minecraft", store.CapStart)
	assert.ErrorIs(t, err, store.ErrServerNotFound)
}

func TestGrant_NonManagerDenied(t *testing.T) {
	svc, _ := setupService(t)

	err := svc.Grant(context.Background(), bob, alice, "factorio", store.CapStart)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGrant_ManagerMayGrantWhatItHolds(t *testing.T) {
	svc, st := setupService(t)
	ctx := context.Background()

	require.NoError(t, st.AddGrant(ctx, bob, "factorio", store.CapManagePermissions))
	require.NoError(t, st.AddGrant(ctx, bob, "factorio", store.CapRestart))

	require.NoError(t, svc.Grant(ctx, bob, alice, "factorio", store.CapRestart))

	has, err := svc.HasCapability(ctx, alice, "factorio", store.CapRestart)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestGrant_ManagerCannotEscalate(t *testing.T) {
	svc, st := setupService(t)
	ctx := context.Background()

	require.NoError(t, st.AddGrant(ctx, bob, "factorio", store.CapManagePermissions))
	require.NoError(t, st.AddGrant(ctx, bob, "factorio", store.CapRestart))

	// bob does not hold kill, so bob cannot hand it out - to alice or himself
	err := svc.Grant(ctx, bob, alice, "factorio", store.CapKill)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = svc.Grant(ctx, bob, bob, "factorio", store.CapKill)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGrant_ManagerScopeBound(t *testing.T) {
	svc, st := setupService(t)
	ctx := context.Background()

	require.NoError(t, st.AddGrant(ctx, bob, "factorio", store.CapManagePermissions))
	require.NoError(t, st.AddGrant(ctx, bob, "factorio", store.CapRestart))

	// manage_permissions on factorio does not reach valheim or the fleet
	err := svc.Grant(ctx, bob, alice, "valheim", store.CapRestart)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = svc.Grant(ctx, bob, alice, store.ScopeAll, store.CapRestart)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRevoke_Symmetric(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.Grant(ctx, admin, alice, "factorio", store.CapRestart))
	require.NoError(t, svc.Revoke(ctx, admin, alice, "factorio", store.CapRestart))

	has, err := svc.HasCapability(ctx, alice, "factorio", store.CapRestart)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRevoke_NeverGrantedIsNoOp(t *testing.T) {
	svc, _ := setupService(t)

	err := svc.Revoke(context.Background(), admin, alice, "factorio", store.CapRestart)
	require.NoError(t, err)
}

func TestRevoke_NonManagerDenied(t *testing.T) {
	svc, _ := setupService(t)

	err := svc.Revoke(context.Background(), bob, alice, "factorio", store.CapRestart)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRevoke_StaleScope(t *testing.T) {
	svc, st := setupService(t)
	ctx := context.Background()

	// Grant against a live server, then remove the server
	require.NoError(t, svc.Grant(ctx, admin, alice, "factorio", store.CapRestart))
	require.NoError(t, st.RemoveServer(ctx, "factorio"))

	// The stale row must remain revocable
	require.NoError(t, svc.Revoke(ctx, admin, alice, "factorio", store.CapRestart))

	grants, err := st.ListGrants(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestVisibleServers_FiltersByGrant(t *testing.T) {
	svc, st := setupService(t)
	ctx := context.Background()

	require.NoError(t, st.AddGrant(ctx, alice, "valheim", store.CapStatus))

	visible, err := svc.VisibleServers(ctx, alice, store.CapStatus)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "valheim", visible[0].Name)
}

func TestVisibleServers_AdminSeesAll(t *testing.T) {
	svc, _ := setupService(t)

	visible, err := svc.VisibleServers(context.Background(), admin, store.CapStatus)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	// Deterministic name order
	assert.Equal(t, "factorio", visible[0].Name)
	assert.Equal(t, "valheim", visible[1].Name)
}

func TestVisibleServers_NoneForUnknownIdentity(t *testing.T) {
	svc, _ := setupService(t)

	visible, err := svc.VisibleServers(context.Background(), bob, store.CapStatus)
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestBootstrap_SyncsServersAndAdmins(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()
	svc := NewService(st)
	ctx := context.Background()

	servers := []*store.Server{
		{Name: "factorio", Container: "factorio-main"},
		{Name: "valheim", Container: "valheim-main"},
	}
	require.NoError(t, svc.Bootstrap(ctx, servers, []string{admin}))

	// Re-bootstrap with a changed container ref and a new admin set
	servers[0].Container = "factorio-v2"
	require.NoError(t, svc.Bootstrap(ctx, servers, []string{alice}))

	srv, err := st.GetServer(ctx, "factorio")
	require.NoError(t, err)
	assert.Equal(t, "factorio-v2", srv.Container)

	admins, err := st.ListAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{alice}, admins)
}

func TestSnapshot(t *testing.T) {
	svc, st := setupService(t)
	ctx := context.Background()

	require.NoError(t, st.AddGrant(ctx, alice, "factorio", store.CapStatus))

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Servers, 2)
	assert.Equal(t, []string{admin}, snap.Admins)
	require.Len(t, snap.Grants, 1)
	assert.Equal(t, alice, snap.Grants[0].Identity)
}
