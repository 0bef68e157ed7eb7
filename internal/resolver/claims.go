package resolver

import (
	"time"

	"authgate/internal/identity"
	"authgate/pkg/domain"
)

// profileClaimTypes is the static table of profile-value types with a
// defined claim-type mapping. Profile values outside it never become claims.
var profileClaimTypes = map[string]bool{
	domain.ClaimTypeEmail:         true,
	domain.ClaimTypePhone:         true,
	domain.ClaimTypeStreetAddress: true,
	domain.ClaimTypeLocality:      true,
	domain.ClaimTypeRegion:        true,
	domain.ClaimTypePostalCode:    true,
	domain.ClaimTypeCountry:       true,
}

// buildUserClaims normalizes an identity snapshot into a claims set.
//
// Partially-valid accounts never receive elevated trust: an unapproved or
// unverified user gets the minimal identity claims plus the warning tag and
// nothing else, regardless of what the snapshot holds. An expired password
// keeps the full set (the user must still reach the password-change surface)
// with PasswordExpired attached for upstream gating.
func buildUserClaims(user *identity.User, method domain.AuthMethod, now time.Time) *domain.ClaimsSet {
	cs := &domain.ClaimsSet{
		Method:        method,
		SubjectID:     user.ID.String(),
		DisplayName:   user.DisplayName,
		Authenticated: true,
	}
	cs.Add(domain.ClaimTypeNameID, user.ID.String())
	cs.Add(domain.ClaimTypeName, user.DisplayName)

	if !user.Approved {
		cs.Warnings = append(cs.Warnings, domain.WarningNotApproved)
	}
	if !user.Verified {
		cs.Warnings = append(cs.Warnings, domain.WarningNotVerified)
	}
	if len(cs.Warnings) > 0 {
		return cs
	}

	if user.SystemAdmin {
		cs.Add(domain.ClaimTypeRole, identity.RoleAdministrators)
	}
	if user.SiteAdmin {
		cs.Add(domain.ClaimTypeRole, identity.RoleSiteAdministrators)
	}
	for _, role := range user.Roles {
		if !cs.HasRole(role.Name) {
			cs.Add(domain.ClaimTypeRole, role.Name)
		}
	}
	for _, p := range user.Profile {
		if profileClaimTypes[p.Type] {
			cs.Add(p.Type, p.Value)
		}
	}

	if user.PasswordExpired(now) {
		cs.Warnings = append(cs.Warnings, domain.WarningPasswordExpired)
	}
	return cs
}
