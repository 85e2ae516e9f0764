// ABOUTME: Store interface and data types for berth persistence
// ABOUTME: Defines Server, Grant, AuditEntry structs and the Store interface

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrServerNotFound is returned when a requested server does not exist
var ErrServerNotFound = errors.New("server not found")

// ErrServerExists is returned when trying to add a server that already exists
var ErrServerExists = errors.New("server already exists")

// ScopeAll is the grant scope covering every server in the fleet.
const ScopeAll = "*"

// Capability represents a discrete permission on a server or on the whole fleet
type Capability string

const (
	CapStart             Capability = "start"
	CapRestart           Capability = "restart"
	CapKill              Capability = "kill"
	CapStatus            Capability = "status"
	CapLogs              Capability = "logs"
	CapManagePermissions Capability = "manage_permissions"
)

// ValidCapabilities lists all grantable capabilities
var ValidCapabilities = []Capability{
	CapStart,
	CapRestart,
	CapKill,
	CapStatus,
	CapLogs,
	CapManagePermissions,
}

// ParseCapability validates a capability name from user input.
func ParseCapability(s string) (Capability, error) {
	for _, c := range ValidCapabilities {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// Server represents a logical server name mapped to one managed container
type Server struct {
	Name      string
	Container string
	CreatedAt time.Time
}

// Grant represents one granted capability for an identity in a scope.
// Scope is a server name or ScopeAll. The capability set of an
// (identity, scope) pair is the union of its Grant rows; the store never
// holds duplicate rows for the same triple.
type Grant struct {
	Identity   string
	Scope      string
	Capability Capability
	CreatedAt  time.Time
}

// Store defines the interface for permission state and audit persistence
type Store interface {
	// Servers
	AddServer(ctx context.Context, srv *Server) error
	UpsertServer(ctx context.Context, srv *Server) error
	RemoveServer(ctx context.Context, name string) error
	GetServer(ctx context.Context, name string) (*Server, error)
	ListServers(ctx context.Context) ([]*Server, error)

	// Admins (bootstrap-configured, bypass all capability checks)
	AddAdmin(ctx context.Context, identity string) error
	RemoveAdmin(ctx context.Context, identity string) error
	IsAdmin(ctx context.Context, identity string) (bool, error)
	ListAdmins(ctx context.Context) ([]string, error)
	ReplaceAdmins(ctx context.Context, identities []string) error

	// Grants
	AddGrant(ctx context.Context, identity, scope string, cap Capability) error
	RemoveGrant(ctx context.Context, identity, scope string, cap Capability) error
	HasGrant(ctx context.Context, identity, scope string, cap Capability) (bool, error)
	ListGrants(ctx context.Context, identity string) ([]Grant, error)
	ListAllGrants(ctx context.Context) ([]Grant, error)
	PruneGrants(ctx context.Context, scope string) (int64, error)

	// Audit log
	AppendAudit(ctx context.Context, e *AuditEntry) error
	ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)

	// Close releases any resources held by the store
	Close() error
}
