package identity

import (
	"time"

	id "authgate/pkg/domain"
)

// Built-in structural roles. These exist in every tenant and are never
// removed by directory sync.
const (
	RoleAdministrators     = "Administrators"
	RoleSiteAdministrators = "SiteAdministrators"
	RoleRegisteredUsers    = "RegisteredUsers"
	RoleEveryone           = "Everyone"
)

// IsBuiltInRole reports whether name is one of the four structural roles.
func IsBuiltInRole(name string) bool {
	switch name {
	case RoleAdministrators, RoleSiteAdministrators, RoleRegisteredUsers, RoleEveryone:
		return true
	}
	return false
}

// Role is a membership held by a user.
type Role struct {
	Name string
	// AutoAssigned roles are granted by policy rather than by an operator
	// and are exempt from directory removal.
	AutoAssigned bool
	// Restricted roles may only be changed by an operator.
	Restricted bool
}

// Removable reports whether directory sync is allowed to take this role away.
func (r Role) Removable() bool {
	return !r.AutoAssigned && !r.Restricted && !IsBuiltInRole(r.Name)
}

// ProfileValue is one attribute of a user's profile, keyed by a stable
// claim-type URI.
type ProfileValue struct {
	Type  string
	Value string
}

// User is the identity snapshot this core reads. The identity store owns the
// record; resolution never mutates it, and sync only proposes mutations which
// the caller persists.
type User struct {
	ID                id.UserID
	TenantID          id.TenantID
	Username          string
	DisplayName       string
	PasswordHash      string
	Approved          bool
	Verified          bool
	SystemAdmin       bool
	SiteAdmin         bool
	PasswordExpiresAt *time.Time
	// MultifactorSecret is opaque verification material; empty means the
	// user has not enrolled a second factor.
	MultifactorSecret string
	// DirectorySID is the stable identifier of this user in the external
	// directory, when the account originated there.
	DirectorySID string
	Roles        []Role
	Profile      []ProfileValue
}

// PasswordExpired reports whether the password-expiry timestamp has passed.
func (u *User) PasswordExpired(now time.Time) bool {
	return u.PasswordExpiresAt != nil && u.PasswordExpiresAt.Before(now)
}

// HasRole reports whether the user holds the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// SetProfile adds or updates a profile value by type.
func (u *User) SetProfile(claimType, value string) {
	for i := range u.Profile {
		if u.Profile[i].Type == claimType {
			u.Profile[i].Value = value
			return
		}
	}
	u.Profile = append(u.Profile, ProfileValue{Type: claimType, Value: value})
}
