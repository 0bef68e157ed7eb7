package identity

import (
	"context"

	id "authgate/pkg/domain"
)

// Store is the read/propose interface over the identity collaborator. The
// resolver only reads; the synchronizer and login surface call Save with a
// mutated snapshot.
type Store interface {
	FindByID(ctx context.Context, userID id.UserID) (*User, error)
	FindByUsername(ctx context.Context, tenantID id.TenantID, username string) (*User, error)
	FindByDirectorySID(ctx context.Context, sid string) (*User, error)
	Save(ctx context.Context, user *User) error
}
