package directory

import (
	"strings"

	"github.com/go-ldap/ldap/v3"

	"authgate/pkg/domain"
)

// Attributes is the resolved result of a directory search: well-known
// attribute values keyed by claim type, plus asserted group names.
type Attributes struct {
	Values map[string]string
	Groups []string
}

const attrMemberOf = "memberOf"

// attributeClaimTypes maps well-known directory attribute names to claim
// types. This table is the only place protocol attribute names appear;
// everything downstream speaks claim types.
var attributeClaimTypes = map[string]string{
	"displayName":     domain.ClaimTypeName,
	"mail":            domain.ClaimTypeEmail,
	"telephoneNumber": domain.ClaimTypePhone,
	"streetAddress":   domain.ClaimTypeStreetAddress,
	"l":               domain.ClaimTypeLocality,
	"st":              domain.ClaimTypeRegion,
	"postalCode":      domain.ClaimTypePostalCode,
	"co":              domain.ClaimTypeCountry,
}

// searchAttributes is the fixed attribute set requested from the directory.
func searchAttributes() []string {
	attrs := make([]string, 0, len(attributeClaimTypes)+1)
	for name := range attributeClaimTypes {
		attrs = append(attrs, name)
	}
	return append(attrs, attrMemberOf)
}

// attributesFromEntry maps a search entry through the claim-type table.
// Empty values are dropped; unknown attributes are ignored.
func attributesFromEntry(entry *ldap.Entry) *Attributes {
	out := &Attributes{Values: make(map[string]string)}
	for name, claimType := range attributeClaimTypes {
		if v := entry.GetAttributeValue(name); v != "" {
			out.Values[claimType] = v
		}
	}
	for _, dn := range entry.GetAttributeValues(attrMemberOf) {
		if group := GroupNameFromDN(dn); group != "" {
			out.Groups = append(out.Groups, group)
		}
	}
	return out
}

// GroupNameFromDN extracts the human-readable group name from a structured
// distinguished name such as "CN=Editors,OU=Groups,DC=corp,DC=example".
// Malformed values yield "" and are skipped by the caller; a bad group entry
// never aborts attribute resolution.
func GroupNameFromDN(dn string) string {
	first, _, _ := strings.Cut(dn, ",")
	key, name, ok := strings.Cut(first, "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(key), "cn") {
		return ""
	}
	return strings.TrimSpace(name)
}

// BaseDN derives the search base from a DNS domain name:
// "corp.example.com" becomes "dc=corp,dc=example,dc=com".
func BaseDN(domain string) string {
	parts := strings.Split(domain, ".")
	for i, p := range parts {
		parts[i] = "dc=" + p
	}
	return strings.Join(parts, ",")
}
