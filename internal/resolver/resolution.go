package resolver

import (
	"authgate/internal/session"
	"authgate/pkg/domain"
)

// Kind is the terminal state of a resolution.
type Kind int

const (
	// KindAnonymous means no usable credential was presented; the request
	// proceeds unauthenticated.
	KindAnonymous Kind = iota
	KindAuthenticated
	KindFailed
)

// FailureKind is the typed failure taxonomy. The caller treats the session
// failures identically (sign out, clear cookie, fall through to anonymous);
// the kinds differ in log severity and auditing.
type FailureKind string

const (
	FailureNoCredential     FailureKind = "no_credential"
	FailureInvalidSession   FailureKind = "invalid_session"
	FailureExpiredSession   FailureKind = "expired_session"
	FailureIPMismatch       FailureKind = "ip_mismatch"
	FailureUserNotFound     FailureKind = "user_not_found"
	FailureInvalidSignature FailureKind = "invalid_signature"
	FailureDisabledKey      FailureKind = "disabled_key"
)

// Resolution is the tagged result of resolving one request.
type Resolution struct {
	Kind    Kind
	Failure FailureKind
	// Claims is set when Kind is KindAuthenticated, and holds the empty
	// unauthenticated set when KindAnonymous.
	Claims *domain.ClaimsSet
	// Session is set on a successful cookie-path resolution so the
	// transport layer can refresh the outbound cookie.
	Session *session.Session
	// FromSignature records that the request carried an API signature
	// envelope; the challenge dispatcher keys off it.
	FromSignature bool
}

func anonymous() Resolution {
	return Resolution{Kind: KindAnonymous, Claims: domain.Anonymous()}
}

func failed(kind FailureKind) Resolution {
	return Resolution{Kind: KindFailed, Failure: kind}
}

// Authenticated reports whether the resolution produced a usable identity.
func (r Resolution) Authenticated() bool { return r.Kind == KindAuthenticated }
