package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dash/internal/security"
)

// AdminToken describes a stored admin credential. The raw token is never kept.
type AdminToken struct {
	Hash      string    `json:"hash"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// AddAdminToken stores the SHA-256 hash of raw under label.
func (s *Store) AddAdminToken(ctx context.Context, raw, label string) error {
	if raw == "" {
		return errors.New("token cannot be empty")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admins (token_hash, label, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(token_hash) DO UPDATE SET label = excluded.label`,
		security.HashToken(raw), label, s.timestamp(),
	)
	if err != nil {
		return unavailable("insert admin token", err)
	}
	return nil
}

// RemoveAdminToken deletes the admin token. Removing an unknown token
// returns ErrNotFound.
func (s *Store) RemoveAdminToken(ctx context.Context, raw string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM admins WHERE token_hash = ?`, security.HashToken(raw))
	if err != nil {
		return unavailable("delete admin token", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return unavailable("delete admin token", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdminTokenExists reports whether raw matches a stored admin token.
// Matching is an exact lookup; there is no expiry or scope.
func (s *Store) AdminTokenExists(ctx context.Context, raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM admins WHERE token_hash = ?`, security.HashToken(raw)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("look up admin token", err)
	}
	return true, nil
}

// ListAdminTokens returns all admin tokens, newest first.
func (s *Store) ListAdminTokens(ctx context.Context) ([]AdminToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token_hash, label, created_at FROM admins ORDER BY created_at DESC`)
	if err != nil {
		return nil, unavailable("list admin tokens", err)
	}
	defer rows.Close()

	var tokens []AdminToken
	for rows.Next() {
		var (
			t       AdminToken
			created string
		)
		if err := rows.Scan(&t.Hash, &t.Label, &created); err != nil {
			return nil, unavailable("scan admin token", err)
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate admin tokens", err)
	}

	return tokens, nil
}
