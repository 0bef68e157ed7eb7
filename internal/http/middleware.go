package httpapi

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"authgate/internal/challenge"
	"authgate/internal/resolver"
	"authgate/internal/session"
	"authgate/pkg/requestcontext"
)

// RequestTime captures the current time at the start of the request so every
// operation within it observes the same "now".
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID assigns each request an identifier for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithRequestID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientMetadata extracts the client IP address and User-Agent and adds them
// to the context for the resolver and services.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(),
			clientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIPFromRequest extracts the real client IP, handling proxies and load
// balancers.
func clientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, ...); the
	// first is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ResolveSession runs the resolver on every request. Session failures sign
// the caller out (cookie cleared) and the request proceeds anonymously;
// signature failures stop the chain with the dispatcher's 403. Store errors
// surface as 500 rather than quietly authenticating no one.
func ResolveSession(res *resolver.Resolver, cookies session.CookieCodec, dispatcher *challenge.Dispatcher, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			secure := r.TLS != nil

			result, err := res.Resolve(ctx, r)
			if err != nil {
				logger.ErrorContext(ctx, "session resolution failed",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal", "Authentication is unavailable")
				return
			}

			switch result.Kind {
			case resolver.KindAuthenticated:
				if result.Session != nil {
					// Refresh the outbound cookie with the (possibly
					// just-extended) session.
					cookies.Write(w, result.Session, secure)
				}
				ctx = requestcontext.WithPrincipal(ctx, result.Claims)

			case resolver.KindFailed:
				if result.FromSignature || result.Failure == resolver.FailureInvalidSignature {
					dispatcher.Challenge(w, r, true)
					return
				}
				// InvalidSession, ExpiredSession, IpMismatch, UserNotFound:
				// sign out and fall through to anonymous.
				cookies.Clear(w, secure)
				ctx = requestcontext.WithPrincipal(ctx, nil)

			default:
				// Anonymous terminal state; the request proceeds.
				ctx = requestcontext.WithPrincipal(ctx, result.Claims)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated gates a subtree on a resolved principal, handing
// rejected requests to the challenge dispatcher.
func RequireAuthenticated(dispatcher *challenge.Dispatcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := requestcontext.Principal(r.Context())
			if p == nil || !p.Authenticated {
				dispatcher.Challenge(w, r, false)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
