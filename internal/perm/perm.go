// ABOUTME: Authorization policy service over the permission store
// ABOUTME: Admin bypass, fleet-wide scope widening, and grant/revoke gating live here

package perm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/berth-ops/berth/internal/store"
)

// ErrUnauthorized is returned when an actor attempts a grant or revoke it is
// not allowed to make.
var ErrUnauthorized = errors.New("unauthorized")

// Service answers capability questions and enforces the rules around
// changing grants. It holds no state of its own; the store serializes
// mutations, so concurrent reads never observe a half-applied grant.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

// NewService creates a permission service backed by the given store.
func NewService(st store.Store) *Service {
	return &Service{
		store:  st,
		logger: slog.Default().With("component", "perm"),
	}
}

// HasCapability reports whether identity may exercise cap on server.
// True if the identity is an admin, holds cap fleet-wide, or holds cap on
// that exact server. Read-only and side-effect-free.
//
// There is no implicit widening between capabilities: holding restart never
// implies kill, and holding a capability on one server says nothing about
// any other.
func (s *Service) HasCapability(ctx context.Context, identity, server string, cap store.Capability) (bool, error) {
	isAdmin, err := s.store.IsAdmin(ctx, identity)
	if err != nil {
		return false, fmt.Errorf("checking admin: %w", err)
	}
	if isAdmin {
		return true, nil
	}

	has, err := s.store.HasGrant(ctx, identity, store.ScopeAll, cap)
	if err != nil {
		return false, fmt.Errorf("checking fleet grant: %w", err)
	}
	if has {
		return true, nil
	}

	if server == store.ScopeAll {
		return false, nil
	}

	has, err = s.store.HasGrant(ctx, identity, server, cap)
	if err != nil {
		return false, fmt.Errorf("checking server grant: %w", err)
	}
	return has, nil
}

// IsAdmin reports whether identity holds the admin role.
func (s *Service) IsAdmin(ctx context.Context, identity string) (bool, error) {
	return s.store.IsAdmin(ctx, identity)
}

// canManage reports whether actor may grant or revoke cap in scope.
// Admins always may. A non-admin needs manage_permissions covering the
// scope AND must itself hold the capability it is handing out: a grantor
// can never escalate anyone, itself included, past its own authority.
func (s *Service) canManage(ctx context.Context, actor, scope string, cap store.Capability) (bool, error) {
	isAdmin, err := s.store.IsAdmin(ctx, actor)
	if err != nil {
		return false, fmt.Errorf("checking admin: %w", err)
	}
	if isAdmin {
		return true, nil
	}

	manages, err := s.HasCapability(ctx, actor, scope, store.CapManagePermissions)
	if err != nil {
		return false, err
	}
	if !manages {
		return false, nil
	}

	holds, err := s.HasCapability(ctx, actor, scope, cap)
	if err != nil {
		return false, err
	}
	return holds, nil
}

// Grant gives target the capability cap in scope (a server name or
// store.ScopeAll) on behalf of actor. Returns ErrUnauthorized if actor may
// not make this grant, or store.ErrServerNotFound if scope names an unknown
// server. Durable once this returns.
func (s *Service) Grant(ctx context.Context, actor, target, scope string, cap store.Capability) error {
	if scope != store.ScopeAll {
		if _, err := s.store.GetServer(ctx, scope); err != nil {
			return err
		}
	}

	allowed, err := s.canManage(ctx, actor, scope, cap)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrUnauthorized
	}

	if err := s.store.AddGrant(ctx, target, scope, cap); err != nil {
		return err
	}

	s.logger.Info("granted capability",
		"actor", actor,
		"target", target,
		"scope", scope,
		"capability", cap,
	)
	return nil
}

// Revoke removes the capability cap in scope from target on behalf of
// actor. Revoking a grant that was never made is a no-op. The scope is not
// checked against the server registry so stale rows for removed servers
// stay revocable.
func (s *Service) Revoke(ctx context.Context, actor, target, scope string, cap store.Capability) error {
	allowed, err := s.canManage(ctx, actor, scope, cap)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrUnauthorized
	}

	if err := s.store.RemoveGrant(ctx, target, scope, cap); err != nil {
		return err
	}

	s.logger.Info("revoked capability",
		"actor", actor,
		"target", target,
		"scope", scope,
		"capability", cap,
	)
	return nil
}

// VisibleServers returns, in name order, every registered server the
// identity holds cap on. Admins and fleet-wide grant holders see the whole
// registry. The order is deterministic so rendered outcomes are stable.
func (s *Service) VisibleServers(ctx context.Context, identity string, cap store.Capability) ([]*store.Server, error) {
	servers, err := s.store.ListServers(ctx)
	if err != nil {
		return nil, err
	}

	isAdmin, err := s.store.IsAdmin(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("checking admin: %w", err)
	}
	if !isAdmin {
		all, err := s.store.HasGrant(ctx, identity, store.ScopeAll, cap)
		if err != nil {
			return nil, fmt.Errorf("checking fleet grant: %w", err)
		}
		isAdmin = all
	}
	if isAdmin {
		return servers, nil
	}

	var visible []*store.Server
	for _, srv := range servers {
		has, err := s.store.HasGrant(ctx, identity, srv.Name, cap)
		if err != nil {
			return nil, fmt.Errorf("checking server grant: %w", err)
		}
		if has {
			visible = append(visible, srv)
		}
	}
	return visible, nil
}

// Snapshot is a point-in-time copy of the whole permission state.
type Snapshot struct {
	Servers []*store.Server
	Admins  []string
	Grants  []store.Grant
}

// Snapshot returns the full permission state for display. Admin-gated at
// the call site.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	servers, err := s.store.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	admins, err := s.store.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}
	grants, err := s.store.ListAllGrants(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Servers: servers, Admins: admins, Grants: grants}, nil
}

// Bootstrap syncs the configured servers and admins into the store at
// startup. Servers are upserted (container references may change between
// runs); the admin set is replaced wholesale since the bootstrap config is
// its source of truth. Any failure here must abort startup.
func (s *Service) Bootstrap(ctx context.Context, servers []*store.Server, admins []string) error {
	for _, srv := range servers {
		if err := s.store.UpsertServer(ctx, srv); err != nil {
			return fmt.Errorf("seeding server %q: %w", srv.Name, err)
		}
	}

	if err := s.store.ReplaceAdmins(ctx, admins); err != nil {
		return fmt.Errorf("seeding admins: %w", err)
	}

	s.logger.Info("bootstrapped permission state",
		"servers", len(servers),
		"admins", len(admins),
	)
	return nil
}
