package session

import (
	"net/http"

	id "authgate/pkg/domain"
)

// CookieCodec reads and writes the session cookie. The cookie value is the
// session identifier only; no claims are embedded.
type CookieCodec struct {
	Name string
}

// Read extracts the session ID from the request cookie jar. A missing or
// malformed cookie is not an error; it just means no cookie credential.
func (c CookieCodec) Read(r *http.Request) (id.SessionID, bool) {
	cookie, err := r.Cookie(c.Name)
	if err != nil {
		return id.SessionID{}, false
	}
	sessionID, err := id.ParseSessionID(cookie.Value)
	if err != nil {
		return id.SessionID{}, false
	}
	return sessionID, true
}

// Write refreshes the outbound cookie for the session. SameSite=Lax is
// required so the cookie survives a redirect chain originating from an
// external identity provider. Expires is set only for persistent sessions;
// non-persistent sessions ride on a browser-session cookie.
func (c CookieCodec) Write(w http.ResponseWriter, sess *Session, secure bool) {
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    sess.ID.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if sess.Persistent {
		cookie.Expires = sess.ExpiresAt
	}
	http.SetCookie(w, cookie)
}

// Clear expires the cookie immediately. Safe to call on requests that never
// carried one.
func (c CookieCodec) Clear(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
