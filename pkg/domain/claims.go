package domain

// AuthMethod tags how a principal was authenticated.
type AuthMethod string

const (
	AuthMethodPassword  AuthMethod = "password"
	AuthMethodSignature AuthMethod = "signature"
	AuthMethodAssertion AuthMethod = "assertion"
)

// Claim-type URIs. Stable across stores and wire formats; never rename.
const (
	ClaimTypeNameID        = "urn:authgate:claims:nameid"
	ClaimTypeName          = "urn:authgate:claims:name"
	ClaimTypeRole          = "urn:authgate:claims:role"
	ClaimTypeEmail         = "urn:authgate:claims:email"
	ClaimTypePhone         = "urn:authgate:claims:phone"
	ClaimTypeStreetAddress = "urn:authgate:claims:streetaddress"
	ClaimTypeLocality      = "urn:authgate:claims:locality"
	ClaimTypeRegion        = "urn:authgate:claims:region"
	ClaimTypePostalCode    = "urn:authgate:claims:postalcode"
	ClaimTypeCountry       = "urn:authgate:claims:country"
	ClaimTypeGroup         = "urn:authgate:claims:group"
)

// Claim is a typed fact about an authenticated principal.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Warning tags soft conditions attached to an otherwise resolved principal.
type Warning string

const (
	WarningNotApproved     Warning = "not-approved"
	WarningNotVerified     Warning = "not-verified"
	WarningPasswordExpired Warning = "password-expired"
)

// ClaimsSet is the output artifact of session resolution. It is consumed by
// downstream authorization and never persisted.
type ClaimsSet struct {
	Method        AuthMethod `json:"method"`
	SubjectID     string     `json:"subject_id"`
	DisplayName   string     `json:"display_name"`
	Claims        []Claim    `json:"claims,omitempty"`
	Warnings      []Warning  `json:"warnings,omitempty"`
	Authenticated bool       `json:"authenticated"`
}

// Anonymous is the terminal claims set for requests with no credential.
func Anonymous() *ClaimsSet {
	return &ClaimsSet{Authenticated: false}
}

// Add appends a claim, skipping empty values.
func (c *ClaimsSet) Add(claimType, value string) {
	if value == "" {
		return
	}
	c.Claims = append(c.Claims, Claim{Type: claimType, Value: value})
}

// Roles returns the values of all role claims.
func (c *ClaimsSet) Roles() []string {
	var roles []string
	for _, cl := range c.Claims {
		if cl.Type == ClaimTypeRole {
			roles = append(roles, cl.Value)
		}
	}
	return roles
}

// HasRole reports whether the set carries a role claim with the given value.
func (c *ClaimsSet) HasRole(role string) bool {
	for _, cl := range c.Claims {
		if cl.Type == ClaimTypeRole && cl.Value == role {
			return true
		}
	}
	return false
}

// HasWarning reports whether the set carries the given warning tag.
func (c *ClaimsSet) HasWarning(w Warning) bool {
	for _, got := range c.Warnings {
		if got == w {
			return true
		}
	}
	return false
}
