package apikey

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Request headers carrying the signature envelope.
const (
	HeaderKey       = "X-Auth-Key"
	HeaderTimestamp = "X-Auth-Timestamp"
	HeaderSignature = "X-Auth-Signature"
)

// Envelope is the signature material extracted from a request.
type Envelope struct {
	KeyID     string
	Timestamp string
	Signature string
}

// EnvelopeFromRequest extracts the signature envelope. The envelope is
// present if the access-key header is set at all; an incomplete envelope is
// still "present" so that a bad signature fails rather than silently falling
// through to the cookie path.
func EnvelopeFromRequest(r *http.Request) (Envelope, bool) {
	keyID := r.Header.Get(HeaderKey)
	if keyID == "" {
		return Envelope{}, false
	}
	return Envelope{
		KeyID:     keyID,
		Timestamp: r.Header.Get(HeaderTimestamp),
		Signature: r.Header.Get(HeaderSignature),
	}, true
}

// CanonicalRequest builds the canonical string the signature covers: method,
// path, timestamp and body digest, newline-joined. Any change to this layout
// breaks every issued key.
func CanonicalRequest(method, path, timestamp string, bodyDigest string) string {
	return strings.Join([]string{method, path, timestamp, bodyDigest}, "\n")
}

// Sign computes the hex HMAC-SHA256 of the canonical request under secret.
func Sign(secret, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// BodyDigest reads and restores the request body, returning its hex SHA-256.
// An absent body digests to the empty-input hash.
func BodyDigest(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		sum := sha256.Sum256(nil)
		return hex.EncodeToString(sum[:]), nil
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return "", fmt.Errorf("read body for digest: %w", err)
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(payload))
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the expected signature for the request and compares it in
// constant time. The reason string is for logs only and must never reach the
// caller: externally, every mismatch looks the same.
func Verify(secret string, r *http.Request, env Envelope) (ok bool, reason string) {
	if env.Timestamp == "" {
		return false, "missing timestamp"
	}
	if env.Signature == "" {
		return false, "missing signature"
	}
	digest, err := BodyDigest(r)
	if err != nil {
		return false, "unreadable body"
	}
	expected := Sign(secret, CanonicalRequest(r.Method, r.URL.Path, env.Timestamp, digest))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(env.Signature)) != 1 {
		return false, "signature mismatch"
	}
	return true, ""
}
