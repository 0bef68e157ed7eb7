// Package syncer reconciles directory-asserted attributes and roles with the
// locally stored identity snapshot. It mutates the snapshot in place; the
// caller persists it. Sync is best-effort per request and never a hard
// dependency for login.
package syncer

import (
	"log/slog"

	"authgate/internal/directory"
	"authgate/internal/identity"
)

// Syncer applies a tenant's sync policy to an identity snapshot.
type Syncer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Syncer {
	return &Syncer{logger: logger}
}

// Apply reconciles the snapshot with directory-asserted data under the given
// options. catalogue is the tenant's role catalogue; asserted roles outside
// it are ignored. Returns true when the snapshot changed and needs
// persisting.
//
// System administrators are never synchronized.
func (s *Syncer) Apply(user *identity.User, attrs *directory.Attributes, opts directory.SyncOptions, catalogue []string) bool {
	if user.SystemAdmin || attrs == nil || opts == directory.SyncNone {
		return false
	}

	changed := false
	if opts.Has(directory.SyncProfile) {
		changed = s.syncProfile(user, attrs) || changed
	}
	if opts.Has(directory.SyncRoles) {
		changed = s.syncRoles(user, attrs, catalogue) || changed
	}
	return changed
}

// syncProfile adds-or-updates every recognized profile attribute the
// directory supplied a value for. Absent attributes leave local values
// untouched.
func (s *Syncer) syncProfile(user *identity.User, attrs *directory.Attributes) bool {
	changed := false
	for claimType, value := range attrs.Values {
		if current := profileValue(user, claimType); current == value {
			continue
		}
		user.SetProfile(claimType, value)
		changed = true
	}
	return changed
}

// syncRoles reconciles role memberships against the directory assertion.
//
// An empty group assertion means "the directory did not answer", not "the
// user has no roles": role sync is skipped entirely so a partially failed
// sync call cannot de-privilege a user.
func (s *Syncer) syncRoles(user *identity.User, attrs *directory.Attributes, catalogue []string) bool {
	if len(attrs.Groups) == 0 {
		return false
	}

	asserted := make(map[string]bool, len(attrs.Groups))
	for _, g := range attrs.Groups {
		asserted[g] = true
	}

	changed := false

	// Drop removable local roles the directory no longer asserts.
	kept := user.Roles[:0]
	for _, role := range user.Roles {
		if role.Removable() && !asserted[role.Name] {
			s.logger.Info("directory sync removed role",
				"user_id", user.ID.String(),
				"role", role.Name,
			)
			changed = true
			continue
		}
		kept = append(kept, role)
	}
	user.Roles = kept

	// Add asserted roles that exist in the tenant catalogue. The built-in
	// registered-users role is membership by definition, never granted by
	// the directory.
	inCatalogue := make(map[string]bool, len(catalogue))
	for _, name := range catalogue {
		inCatalogue[name] = true
	}
	for _, name := range attrs.Groups {
		if !inCatalogue[name] || name == identity.RoleRegisteredUsers || user.HasRole(name) {
			continue
		}
		user.Roles = append(user.Roles, identity.Role{Name: name})
		s.logger.Info("directory sync added role",
			"user_id", user.ID.String(),
			"role", name,
		)
		changed = true
	}

	return changed
}

func profileValue(user *identity.User, claimType string) string {
	for _, p := range user.Profile {
		if p.Type == claimType {
			return p.Value
		}
	}
	return ""
}
