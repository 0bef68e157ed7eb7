// Package domain holds the leaf identity types shared by every subsystem:
// typed IDs, claims, and the resolved claims set. It must stay free of
// net/http and store dependencies.
package domain

import (
	"github.com/google/uuid"

	dErrors "authgate/pkg/domain-errors"
)

// Typed IDs prevent accidental cross-assignment between user, session, tenant
// and API-key identifiers at compile time.
type (
	UserID    uuid.UUID
	SessionID uuid.UUID
	TenantID  uuid.UUID
)

func NewUserID() UserID       { return UserID(uuid.New()) }
func NewSessionID() SessionID { return SessionID(uuid.New()) }
func NewTenantID() TenantID   { return TenantID(uuid.New()) }

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TenantID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id TenantID) String() string  { return uuid.UUID(id).String() }

// IDs must be valid, non-empty, non-nil UUIDs. Parsing enforces that at trust
// boundaries (cookies, URLs, store rows).

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	return UserID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s)
	return SessionID(u), err
}

func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s)
	return TenantID(u), err
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "nil id")
	}
	return u, nil
}
