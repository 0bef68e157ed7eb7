// Package challenge decides what an authorization rejection looks like on the
// wire: a redirect to the login surface, a structured 403, or a lightweight
// session-expired body, depending on the request shape.
package challenge

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"authgate/internal/platform/metrics"
)

// DefaultLoginPath is the built-in fallback when no tenant login destination
// is configured or the configured one cannot be resolved.
const DefaultLoginPath = "/auth/login"

// Dispatcher routes rejected requests to the appropriate challenge.
type Dispatcher struct {
	// AdminPathPrefix marks the administrative surface, which is loaded
	// inside a frame; redirects there break the frame.
	AdminPathPrefix string
	// LoginURL is the tenant's configured login destination; empty falls
	// back to DefaultLoginPath.
	LoginURL string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Challenge emits the rejection response. fromSignature marks requests that
// carried a (now-rejected) API signature; those get a structured 403 and are
// never redirected.
func (d *Dispatcher) Challenge(w http.ResponseWriter, r *http.Request, fromSignature bool) {
	switch {
	case d.AdminPathPrefix != "" && strings.HasPrefix(r.URL.Path, d.AdminPathPrefix):
		d.count("admin_expired")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "Session expired. Please sign in again.")

	case fromSignature:
		d.count("forbidden")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":"forbidden","error_description":"The request credential was rejected"}`)

	default:
		d.count("redirect")
		dest := d.loginDestination()
		redirect := dest + "?returnUrl=" + url.QueryEscape(r.URL.Path)
		http.Redirect(w, r, redirect, http.StatusFound)
	}
}

// loginDestination resolves the configured login URL, falling back to the
// built-in route when it is absent or unusable.
func (d *Dispatcher) loginDestination() string {
	if d.LoginURL == "" {
		return DefaultLoginPath
	}
	if _, err := url.Parse(d.LoginURL); err != nil {
		if d.Logger != nil {
			d.Logger.Warn("configured login URL is unusable, using default",
				"login_url", d.LoginURL,
				"error", err,
			)
		}
		return DefaultLoginPath
	}
	return d.LoginURL
}

func (d *Dispatcher) count(kind string) {
	if d.Metrics != nil {
		d.Metrics.Challenges.WithLabelValues(kind).Inc()
	}
}
