package session

import (
	"context"

	id "authgate/pkg/domain"
)

// Store persists session records keyed by session ID. Implementations must be
// safe for concurrent use across resolver instances.
//
// Delete is idempotent: deleting a missing session is not an error, because
// sign-out is invoked from multiple paths (expiry detection, IP mismatch,
// explicit logout) without extra guarding.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*Session, error)
	// Save overwrites the record in a single atomic write; the resolver
	// relies on this for expiry extension.
	Save(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, sessionID id.SessionID) error
}
