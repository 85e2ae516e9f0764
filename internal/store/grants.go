// ABOUTME: Capability grant store methods
// ABOUTME: Grants give an identity one capability on one server or on the whole fleet

package store

import (
	"context"
	"fmt"
	"time"
)

// AddGrant records a capability grant. Idempotent - adding an existing grant
// succeeds silently, so the (identity, scope) capability set never holds
// duplicates.
func (s *SQLiteStore) AddGrant(ctx context.Context, identity, scope string, cap Capability) error {
	query := `
		INSERT OR IGNORE INTO grants (identity, scope, capability, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		identity,
		scope,
		cap,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("adding grant: %w", err)
	}

	s.logger.Debug("added grant", "identity", identity, "scope", scope, "capability", cap)
	return nil
}

// RemoveGrant removes a capability grant. Idempotent - revoking a capability
// that was never granted is a no-op, not an error.
func (s *SQLiteStore) RemoveGrant(ctx context.Context, identity, scope string, cap Capability) error {
	query := `DELETE FROM grants WHERE identity = ? AND scope = ? AND capability = ?`

	_, err := s.db.ExecContext(ctx, query, identity, scope, cap)
	if err != nil {
		return fmt.Errorf("removing grant: %w", err)
	}

	s.logger.Debug("removed grant", "identity", identity, "scope", scope, "capability", cap)
	return nil
}

// HasGrant checks for an exact (identity, scope, capability) row. Policy
// such as admin bypass and ScopeAll widening lives in the perm package, not
// here.
func (s *SQLiteStore) HasGrant(ctx context.Context, identity, scope string, cap Capability) (bool, error) {
	query := `
		SELECT COUNT(*) FROM grants
		WHERE identity = ? AND scope = ? AND capability = ?
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, identity, scope, cap).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking grant: %w", err)
	}

	return count > 0, nil
}

// ListGrants returns all grants held by an identity, ordered by scope then
// capability. Returns an empty slice if the identity has none.
func (s *SQLiteStore) ListGrants(ctx context.Context, identity string) ([]Grant, error) {
	query := `
		SELECT identity, scope, capability, created_at
		FROM grants
		WHERE identity = ?
		ORDER BY scope, capability
	`

	rows, err := s.db.QueryContext(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanGrants(rows)
}

// ListAllGrants returns every grant in the store, ordered by identity,
// scope, capability.
func (s *SQLiteStore) ListAllGrants(ctx context.Context) ([]Grant, error) {
	query := `
		SELECT identity, scope, capability, created_at
		FROM grants
		ORDER BY identity, scope, capability
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing all grants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanGrants(rows)
}

// PruneGrants deletes every grant row scoped to the given server name and
// returns the number removed. Used to clean up after a server leaves the
// fleet; grants are a weak relation, so removal of a server never forces
// this.
func (s *SQLiteStore) PruneGrants(ctx context.Context, scope string) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM grants WHERE scope = ?", scope)
	if err != nil {
		return 0, fmt.Errorf("pruning grants: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Info("pruned grants", "scope", scope, "count", rowsAffected)
	}
	return rowsAffected, nil
}

// scanGrants reads grant rows into a slice.
func scanGrants(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Grant, error) {
	var grants []Grant
	for rows.Next() {
		var g Grant
		var capStr, createdAtStr string

		if err := rows.Scan(&g.Identity, &g.Scope, &capStr, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning grant: %w", err)
		}

		g.Capability = Capability(capStr)
		var err error
		g.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		grants = append(grants, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating grants: %w", err)
	}

	if grants == nil {
		grants = []Grant{}
	}
	return grants, nil
}
