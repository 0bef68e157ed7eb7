// Package assertion verifies externally-asserted identities. A trusted
// front-end authenticator (the component terminating Negotiate/Kerberos in
// this deployment) forwards the authenticated principal as a signed token in
// the X-Asserted-Identity header; this package checks the signature and
// unpacks the assertion.
package assertion

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	dErrors "authgate/pkg/domain-errors"
)

// Header carries the forwarded identity assertion.
const Header = "X-Asserted-Identity"

// Assertion is the verified externally-asserted identity.
type Assertion struct {
	// Principal is the asserted account name, possibly DOMAIN\-qualified.
	Principal string
	// SID is the principal's stable directory identifier, used for the
	// directory attribute search and local account correlation.
	SID string
	// Roles are directory group names asserted alongside the principal.
	// May be empty; attribute resolution fills the rest.
	Roles []string
}

// StripDomain removes a leading DOMAIN\ qualifier from the principal name.
func (a Assertion) StripDomain() string {
	if _, name, ok := strings.Cut(a.Principal, `\`); ok {
		return name
	}
	return a.Principal
}

type tokenClaims struct {
	Principal string   `json:"principal"`
	SID       string   `json:"sid"`
	Roles     []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates assertion tokens with the shared key configured for the
// authentication scheme.
type Verifier struct {
	key []byte
}

func NewVerifier(key string) *Verifier {
	return &Verifier{key: []byte(key)}
}

// FromRequest extracts and verifies the assertion, if present. The second
// return is false when the header is absent; a present-but-invalid assertion
// is an error, never a fall-through to a weaker result.
func (v *Verifier) FromRequest(r *http.Request) (*Assertion, bool, error) {
	token := r.Header.Get(Header)
	if token == "" {
		return nil, false, nil
	}
	a, err := v.Verify(token)
	if err != nil {
		return nil, true, err
	}
	return a, true, nil
}

// Verify checks the token signature and expiry and unpacks the assertion.
func (v *Verifier) Verify(token string) (*Assertion, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "assertion has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid assertion")
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid assertion claims")
	}
	if claims.Principal == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "assertion missing principal")
	}
	return &Assertion{
		Principal: claims.Principal,
		SID:       claims.SID,
		Roles:     claims.Roles,
	}, nil
}
