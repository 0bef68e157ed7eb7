package session

import (
	"fmt"
	"time"

	"github.com/mssola/useragent"

	id "authgate/pkg/domain"
)

// Session binds an opaque identifier to a user and an expiry. The identifier
// is a v4 UUID, which satisfies the 128-bit unguessability requirement for
// cookie values.
type Session struct {
	ID        id.SessionID `json:"id"`
	UserID    id.UserID    `json:"user_id"`
	TenantID  id.TenantID  `json:"tenant_id"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	// Sliding sessions have their expiry pushed forward on use. A
	// non-sliding session's expiry is immutable after creation.
	Sliding bool `json:"sliding"`
	// Persistent sessions outlive the browser session; the cookie carries
	// an Expires attribute only for these.
	Persistent bool `json:"persistent"`
	// RemoteIP is the client address recorded at creation, compared on
	// every resolution when IP binding is enforced.
	RemoteIP string `json:"remote_ip"`
	// Device is a human-readable label derived from the User-Agent at
	// creation, shown on session-management surfaces.
	Device string `json:"device,omitempty"`
	// LastUpdatedAt throttles sliding-expiry store writes: an extension is
	// persisted at most once per coalescing window.
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// Expired reports whether the session's expiry has passed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Extend pushes the expiry forward by ttl from now and stamps the write
// throttle. Expiry is only ever extended, never shortened.
func (s *Session) Extend(now time.Time, ttl time.Duration) {
	if next := now.Add(ttl); next.After(s.ExpiresAt) {
		s.ExpiresAt = next
	}
	s.LastUpdatedAt = now
}

// WriteDue reports whether enough time has passed since the last persisted
// update to allow another store write. A plain timestamp check, not a lock:
// the worst a race costs is one extra write.
func (s *Session) WriteDue(now time.Time, window time.Duration) bool {
	return now.Sub(s.LastUpdatedAt) >= window
}

// DeviceLabel renders a short human-readable device description from a
// User-Agent string, e.g. "Firefox on Linux".
func DeviceLabel(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	ua := useragent.New(rawUA)
	name, _ := ua.Browser()
	os := ua.OS()
	switch {
	case name != "" && os != "":
		return fmt.Sprintf("%s on %s", name, os)
	case name != "":
		return name
	default:
		return os
	}
}
