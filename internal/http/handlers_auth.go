package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"authgate/internal/audit"
	"authgate/internal/credential"
	"authgate/internal/identity"
	"authgate/internal/platform/metrics"
	"authgate/internal/session"
	"authgate/pkg/domain"
	"authgate/pkg/platform/sentinel"
	"authgate/pkg/requestcontext"
)

// Handler owns the primary-credential login surface and the introspection
// endpoints. Resolution of existing credentials happens in the middleware;
// this layer only creates and destroys sessions.
type Handler struct {
	Users    identity.Store
	Sessions session.Store
	Cookies  session.CookieCodec
	Verifier credential.Verifier
	Audit    *audit.Publisher
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	TenantID      domain.TenantID
	SessionTTL    time.Duration
	PersistentTTL time.Duration
	SlidingTTL    time.Duration
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Code       string `json:"code,omitempty"`
	Persistent bool   `json:"persistent,omitempty"`
}

// handleLogin verifies the primary credential, enforces the multi-factor
// gate, and creates the session. Every rejection is the same generic 401; no
// response distinguishes unknown users from wrong passwords or missing codes.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "Malformed request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "Username and password are required")
		return
	}

	user, err := h.Users.FindByUsername(ctx, h.TenantID, req.Username)
	if errors.Is(err, sentinel.ErrNotFound) {
		h.rejectLogin(ctx, w, req.Username, "unknown user")
		return
	}
	if err != nil {
		h.Logger.ErrorContext(ctx, "identity store failure during login", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal", "Authentication is unavailable")
		return
	}

	if err := h.Verifier.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		h.rejectLogin(ctx, w, req.Username, "password mismatch")
		return
	}

	// Multi-factor gate: enrolled users must present a valid code before a
	// session exists at all.
	if user.MultifactorSecret != "" {
		if err := h.Verifier.VerifyOneTimeCode(user.MultifactorSecret, req.Code); err != nil {
			h.rejectLogin(ctx, w, req.Username, "one-time code mismatch")
			return
		}
	}

	now := requestcontext.Now(ctx)
	ttl := h.SessionTTL
	if req.Persistent {
		ttl = h.PersistentTTL
	}
	sess := &session.Session{
		ID:            domain.NewSessionID(),
		UserID:        user.ID,
		TenantID:      user.TenantID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
		Sliding:       !req.Persistent,
		Persistent:    req.Persistent,
		RemoteIP:      requestcontext.ClientIP(ctx),
		Device:        session.DeviceLabel(requestcontext.UserAgent(ctx)),
		LastUpdatedAt: now,
	}
	if err := h.Sessions.Create(ctx, sess); err != nil {
		h.Logger.ErrorContext(ctx, "failed to create session", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal", "Authentication is unavailable")
		return
	}

	h.emitAudit(ctx, audit.Event{
		Action:    audit.ActionLogin,
		SubjectID: user.ID.String(),
		SessionID: sess.ID.String(),
		RemoteIP:  sess.RemoteIP,
	})
	h.countLogin("success")

	h.Cookies.Write(w, sess, r.TLS != nil)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"session_id":%q}`, sess.ID.String())
}

func (h *Handler) rejectLogin(ctx context.Context, w http.ResponseWriter, username, reason string) {
	h.Logger.WarnContext(ctx, "login rejected",
		"username", username,
		"reason", reason,
	)
	h.emitAudit(ctx, audit.Event{
		Action:   audit.ActionLoginFailed,
		RemoteIP: requestcontext.ClientIP(ctx),
		Reason:   reason,
	})
	h.countLogin("rejected")
	writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials")
}

// handleLogout deletes the session behind the cookie, if any, and clears the
// cookie either way. Deletion is idempotent; repeating a logout is harmless.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if sessionID, ok := h.Cookies.Read(r); ok {
		if err := h.Sessions.Delete(ctx, sessionID); err != nil {
			h.Logger.ErrorContext(ctx, "failed to delete session on logout",
				"session_id", sessionID.String(),
				"error", err,
			)
			writeJSONError(w, http.StatusInternalServerError, "internal", "Logout failed")
			return
		}
		h.emitAudit(ctx, audit.Event{
			Action:    audit.ActionLogout,
			SessionID: sessionID.String(),
			RemoteIP:  requestcontext.ClientIP(ctx),
		})
	}

	// The resolve middleware may have queued a cookie refresh for this
	// response; drop it so the clear below is the only Set-Cookie.
	w.Header().Del("Set-Cookie")
	h.Cookies.Clear(w, r.TLS != nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleWhoami returns the resolved claims set for the request, including
// the anonymous one. Downstream authorization consumes the same shape.
func (h *Handler) handleWhoami(w http.ResponseWriter, r *http.Request) {
	p := requestcontext.Principal(r.Context())
	if p == nil {
		p = domain.Anonymous()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(p); err != nil {
		h.Logger.ErrorContext(r.Context(), "failed to encode claims set", "error", err)
	}
}

func (h *Handler) emitAudit(ctx context.Context, event audit.Event) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Emit(ctx, event); err != nil {
		h.Logger.Warn("failed to emit audit event", "action", event.Action, "error", err)
	}
}

func (h *Handler) countLogin(result string) {
	if h.Metrics != nil {
		h.Metrics.LoginsTotal.WithLabelValues(result).Inc()
	}
}

// writeJSONError centralizes the JSON error envelope so every surface speaks
// the same shape.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"error_description":%q}`, errCode, errDesc))
}
