// ABOUTME: Principal store methods backing issued gateway tokens
// ABOUTME: Create, lookup, list, revoke, and last-seen tracking on the principals table

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// scopesSeparator joins scopes in the scopes column. Scope names never contain spaces.
const scopesSeparator = " "

// CreatePrincipal inserts a new principal. Status defaults to active and
// CreatedAt to now when unset.
func (s *SQLiteStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	if p.Status == "" {
		p.Status = PrincipalStatusActive
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO principals (principal_id, display_name, role, scopes, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.DisplayName,
		p.Role,
		strings.Join(p.Scopes, scopesSeparator),
		string(p.Status),
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrPrincipalExists
		}
		return fmt.Errorf("inserting principal: %w", err)
	}

	s.logger.Info("created principal", "id", p.ID, "role", p.Role)
	return nil
}

// GetPrincipal retrieves a principal by ID.
func (s *SQLiteStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	query := `
		SELECT principal_id, display_name, role, scopes, status, created_at, last_seen
		FROM principals
		WHERE principal_id = ?
	`

	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying principal: %w", err)
	}
	return p, nil
}

// ListPrincipals returns all principals, oldest first.
func (s *SQLiteStore) ListPrincipals(ctx context.Context) ([]*Principal, error) {
	query := `
		SELECT principal_id, display_name, role, scopes, status, created_at, last_seen
		FROM principals
		ORDER BY created_at ASC, principal_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying principals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var principals []*Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning principal: %w", err)
		}
		principals = append(principals, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating principals: %w", err)
	}

	return principals, nil
}

// RevokePrincipal marks a principal revoked. Tokens already issued to it stop
// authenticating immediately.
func (s *SQLiteStore) RevokePrincipal(ctx context.Context, id string) error {
	query := `UPDATE principals SET status = ? WHERE principal_id = ?`

	result, err := s.db.ExecContext(ctx, query, string(PrincipalStatusRevoked), id)
	if err != nil {
		return fmt.Errorf("revoking principal: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("revoked principal", "id", id)
	return nil
}

// TouchPrincipal records the last time a principal authenticated.
func (s *SQLiteStore) TouchPrincipal(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE principals SET last_seen = ? WHERE principal_id = ?`

	result, err := s.db.ExecContext(ctx, query, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating last_seen: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*Principal, error) {
	var p Principal
	var scopes, status, createdAtStr string
	var lastSeen sql.NullString

	if err := row.Scan(&p.ID, &p.DisplayName, &p.Role, &scopes, &status, &createdAtStr, &lastSeen); err != nil {
		return nil, err
	}

	p.Status = PrincipalStatus(status)
	p.Scopes = strings.Fields(scopes)

	var err error
	p.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		p.LastSeen = &t
	}

	return &p, nil
}
