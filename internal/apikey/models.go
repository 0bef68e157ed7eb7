package apikey

import (
	"strings"

	"authgate/pkg/domain"
)

// Key is a signed API credential. Lifecycle (issuance, rotation, disabling)
// belongs to the key-management surface; this core only verifies signatures
// against it and expands its scope into claims.
type Key struct {
	// ID is the access key identifier carried in the request envelope.
	ID     string
	Secret string
	// Enabled gates the key without deleting it.
	Enabled bool
	// Scope is a newline-delimited list of claimType:claimValue entries.
	Scope string
}

// scopeRoleAlias is the literal scope key that maps to the role claim type.
const scopeRoleAlias = "role"

// ParseScope expands a scope string into claims. Each line is
// claimType:claimValue; the literal key "role" aliases the role claim type.
// Malformed entries (wrong segment count, empty parts) are skipped without
// aborting the remaining entries.
func ParseScope(scope string) []domain.Claim {
	var claims []domain.Claim
	for _, line := range strings.Split(scope, "\n") {
		entry := strings.TrimSpace(line)
		if entry == "" {
			continue
		}
		claimType, value, ok := strings.Cut(entry, ":")
		if !ok || claimType == "" || value == "" {
			continue
		}
		if claimType == scopeRoleAlias {
			claimType = domain.ClaimTypeRole
		}
		claims = append(claims, domain.Claim{Type: claimType, Value: value})
	}
	return claims
}
