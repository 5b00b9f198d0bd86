// ABOUTME: Store interfaces and data types for moltbot-gateway persistence
// ABOUTME: Defines Principal and AuditEntry plus the interfaces the auth layer and CLI depend on

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrPrincipalExists is returned when creating a principal whose ID is already taken
var ErrPrincipalExists = errors.New("principal already exists")

// PrincipalStatus is the lifecycle state of a principal.
type PrincipalStatus string

const (
	PrincipalStatusActive  PrincipalStatus = "active"
	PrincipalStatusRevoked PrincipalStatus = "revoked"
)

// Principal is an identity that can hold issued gateway tokens.
// Role and Scopes are copied into the auth context of every connection the
// principal opens.
type Principal struct {
	ID          string
	DisplayName string
	Role        string
	Scopes      []string
	Status      PrincipalStatus
	CreatedAt   time.Time
	LastSeen    *time.Time
}

// IsActive reports whether the principal may still authenticate.
func (p *Principal) IsActive() bool {
	return p.Status == PrincipalStatusActive
}

// PrincipalStore defines principal persistence used by token issuance and authentication.
type PrincipalStore interface {
	CreatePrincipal(ctx context.Context, p *Principal) error
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	ListPrincipals(ctx context.Context) ([]*Principal, error)
	RevokePrincipal(ctx context.Context, id string) error
	TouchPrincipal(ctx context.Context, id string, at time.Time) error
}

// AuditStore records administrative actions.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, limit int) ([]*AuditEntry, error)
}

// Store is everything the gateway persists.
type Store interface {
	PrincipalStore
	AuditStore

	// Close releases any resources held by the store
	Close() error
}
