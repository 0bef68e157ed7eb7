// Package credential verifies presented secrets against stored verification
// material. It is stateless; callers own the material and the policy around
// failures.
package credential

import (
	"errors"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch is returned when a presented secret does not verify. Callers
// must not distinguish "no such user" from "wrong secret" in anything they
// surface externally.
var ErrMismatch = errors.New("credential mismatch")

type Verifier struct{}

func NewVerifier() Verifier { return Verifier{} }

// VerifyPassword checks a presented password against its bcrypt hash. The
// hashing algorithm is opaque to the rest of the system; only this package
// touches it.
func (Verifier) VerifyPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	if err != nil {
		// Malformed hashes verify as a mismatch rather than an internal
		// error; a corrupt record must not become an authentication oracle.
		return ErrMismatch
	}
	return nil
}

// HashPassword produces verification material for storage.
func (Verifier) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyOneTimeCode checks a TOTP code against the user's enrolled secret.
// totp.Validate tolerates one step of clock skew in either direction.
func (Verifier) VerifyOneTimeCode(secret, code string) error {
	if !totp.Validate(code, secret) {
		return ErrMismatch
	}
	return nil
}
