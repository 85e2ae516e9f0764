// ABOUTME: Server registry store methods
// ABOUTME: Servers are the unit of authorization and command targeting

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AddServer registers a new server. Returns ErrServerExists if the name is
// already taken.
func (s *SQLiteStore) AddServer(ctx context.Context, srv *Server) error {
	if srv.CreatedAt.IsZero() {
		srv.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO servers (name, container_ref, created_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		srv.Name,
		srv.Container,
		srv.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrServerExists
		}
		return fmt.Errorf("inserting server: %w", err)
	}

	s.logger.Info("added server", "name", srv.Name, "container", srv.Container)
	return nil
}

// UpsertServer registers a server or updates its container reference.
// Used by the bootstrap sync at startup.
func (s *SQLiteStore) UpsertServer(ctx context.Context, srv *Server) error {
	if srv.CreatedAt.IsZero() {
		srv.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO servers (name, container_ref, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET container_ref = excluded.container_ref
	`

	_, err := s.db.ExecContext(ctx, query,
		srv.Name,
		srv.Container,
		srv.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting server: %w", err)
	}

	s.logger.Debug("upserted server", "name", srv.Name, "container", srv.Container)
	return nil
}

// RemoveServer deletes a server from the registry. Grant rows referencing it
// are left in place (weak relation); use PruneGrants to clean them up.
func (s *SQLiteStore) RemoveServer(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM servers WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrServerNotFound
	}

	s.logger.Info("removed server", "name", name)
	return nil
}

// GetServer retrieves a server by name.
func (s *SQLiteStore) GetServer(ctx context.Context, name string) (*Server, error) {
	query := `
		SELECT name, container_ref, created_at
		FROM servers
		WHERE name = ?
	`

	var srv Server
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&srv.Name,
		&srv.Container,
		&createdAtStr,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying server: %w", err)
	}

	srv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &srv, nil
}

// ListServers returns all registered servers ordered by name.
// The order is deterministic so multi-server outcomes render stably.
func (s *SQLiteStore) ListServers(ctx context.Context) ([]*Server, error) {
	query := `
		SELECT name, container_ref, created_at
		FROM servers
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var servers []*Server
	for rows.Next() {
		var srv Server
		var createdAtStr string

		if err := rows.Scan(&srv.Name, &srv.Container, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning server: %w", err)
		}

		srv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		servers = append(servers, &srv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating servers: %w", err)
	}

	return servers, nil
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}
