// ABOUTME: Admin identity store methods
// ABOUTME: Admins bypass all capability checks and may manage any grant

package store

import (
	"context"
	"fmt"
	"time"
)

// AddAdmin marks an identity as admin. Idempotent - adding an existing
// admin succeeds silently.
func (s *SQLiteStore) AddAdmin(ctx context.Context, identity string) error {
	query := `
		INSERT OR IGNORE INTO admins (identity, created_at)
		VALUES (?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		identity,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("adding admin: %w", err)
	}

	s.logger.Info("added admin", "identity", identity)
	return nil
}

// RemoveAdmin removes the admin flag from an identity. Idempotent -
// removing a non-admin succeeds silently.
func (s *SQLiteStore) RemoveAdmin(ctx context.Context, identity string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM admins WHERE identity = ?", identity)
	if err != nil {
		return fmt.Errorf("removing admin: %w", err)
	}

	s.logger.Info("removed admin", "identity", identity)
	return nil
}

// IsAdmin checks whether an identity holds the admin role. Returns false for
// unknown identities (not an error).
func (s *SQLiteStore) IsAdmin(ctx context.Context, identity string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM admins WHERE identity = ?", identity).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking admin: %w", err)
	}

	return count > 0, nil
}

// ListAdmins returns all admin identities ordered by identity.
func (s *SQLiteStore) ListAdmins(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT identity FROM admins ORDER BY identity ASC")
	if err != nil {
		return nil, fmt.Errorf("querying admins: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var admins []string
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return nil, fmt.Errorf("scanning admin: %w", err)
		}
		admins = append(admins, identity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating admins: %w", err)
	}

	return admins, nil
}

// ReplaceAdmins atomically replaces the admin set with the given identities.
// The bootstrap config is the source of truth for admins, so startup syncs
// the table to it; either the whole replacement applies or none of it does.
func (s *SQLiteStore) ReplaceAdmins(ctx context.Context, identities []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM admins"); err != nil {
		return fmt.Errorf("clearing admins: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, identity := range identities {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO admins (identity, created_at) VALUES (?, ?)",
			identity, now,
		); err != nil {
			return fmt.Errorf("inserting admin %q: %w", identity, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing admin replacement: %w", err)
	}

	s.logger.Info("replaced admin set", "count", len(identities))
	return nil
}
