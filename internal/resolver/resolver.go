// Package resolver decides, for every inbound request, who the caller is.
// It merges the four authentication sources (API signature, externally
// asserted identity, session cookie, anonymous) into one decision function
// over request signals and store lookups. I/O sits behind the small store
// interfaces so the decision logic tests without a network or database.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"authgate/internal/apikey"
	"authgate/internal/assertion"
	"authgate/internal/audit"
	"authgate/internal/directory"
	"authgate/internal/identity"
	"authgate/internal/platform/metrics"
	"authgate/internal/session"
	"authgate/internal/syncer"
	"authgate/pkg/domain"
	"authgate/pkg/platform/sentinel"
	"authgate/pkg/requestcontext"
)

// Config is the explicit per-resolver configuration. No ambient state: the
// resolver reads nothing but this struct and the request.
type Config struct {
	EnforceIPBinding bool
	// SlidingTTL is the per-extension duration added to a sliding session.
	SlidingTTL time.Duration
	// CoalescingWindow bounds sliding-expiry store writes to one per
	// window per session.
	CoalescingWindow time.Duration
}

// Deps are the resolver's collaborators. Asserter, Directory and Audit are
// optional; a nil value disables the corresponding behavior.
type Deps struct {
	Sessions      session.Store
	Users         identity.Store
	Keys          apikey.Store
	Cookies       session.CookieCodec
	Asserter      *assertion.Verifier
	Descriptor    directory.Descriptor
	Directory     directory.Client
	Syncer        *syncer.Syncer
	RoleCatalogue []string
	Audit         *audit.Publisher
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

type Resolver struct {
	deps   Deps
	cfg    Config
	tracer trace.Tracer
}

func New(deps Deps, cfg Config) *Resolver {
	return &Resolver{
		deps:   deps,
		cfg:    cfg,
		tracer: otel.Tracer("authgate/resolver"),
	}
}

// Resolve inspects the request for an API signature, then an asserted
// identity, then a session cookie, and falls through to anonymous. A non-nil
// error means an underlying store or connection failed; those propagate,
// because suppressing them could silently authenticate no one while
// appearing to succeed.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (Resolution, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.Resolve")
	defer span.End()

	res, err := r.resolve(ctx, req)
	if err != nil {
		span.RecordError(err)
		return res, err
	}

	span.SetAttributes(
		attribute.Int("auth.kind", int(res.Kind)),
		attribute.String("auth.failure", string(res.Failure)),
	)
	if r.deps.Metrics != nil {
		r.deps.Metrics.Resolutions.WithLabelValues(outcomeLabel(res)).Inc()
	}
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, req *http.Request) (Resolution, error) {
	// The signature path never touches the session cookie.
	if env, ok := apikey.EnvelopeFromRequest(req); ok {
		return r.resolveSignature(ctx, req, env)
	}

	if res, handled, err := r.resolveAssertion(ctx, req); handled || err != nil {
		return res, err
	}

	if sessionID, ok := r.deps.Cookies.Read(req); ok {
		return r.resolveSession(ctx, sessionID)
	}

	return anonymous(), nil
}

// --- session-cookie path ---

func (r *Resolver) resolveSession(ctx context.Context, sessionID domain.SessionID) (Resolution, error) {
	now := requestcontext.Now(ctx)
	clientIP := requestcontext.ClientIP(ctx)

	sess, err := r.deps.Sessions.FindByID(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		// A cookie pointing at no session is indistinguishable from
		// anonymous for the caller; only the log tells them apart.
		r.deps.Logger.InfoContext(ctx, "session cookie does not resolve",
			"session_id", sessionID.String(),
		)
		return failed(FailureInvalidSession), nil
	}
	if err != nil {
		return Resolution{}, err
	}

	if r.cfg.EnforceIPBinding && !ipEqual(sess.RemoteIP, clientIP) {
		if err := r.deps.Sessions.Delete(ctx, sess.ID); err != nil {
			return Resolution{}, err
		}
		r.deps.Logger.ErrorContext(ctx, "session IP mismatch, session revoked",
			"security", true,
			"session_id", sess.ID.String(),
			"user_id", sess.UserID.String(),
			"recorded_ip", sess.RemoteIP,
			"request_ip", clientIP,
		)
		r.emitAudit(ctx, audit.Event{
			Action:    audit.ActionIPMismatch,
			SubjectID: sess.UserID.String(),
			SessionID: sess.ID.String(),
			RemoteIP:  clientIP,
		})
		return failed(FailureIPMismatch), nil
	}

	if sess.Expired(now) {
		if err := r.deps.Sessions.Delete(ctx, sess.ID); err != nil {
			return Resolution{}, err
		}
		r.deps.Logger.InfoContext(ctx, "session expired",
			"session_id", sess.ID.String(),
			"expired_at", sess.ExpiresAt,
		)
		return failed(FailureExpiredSession), nil
	}

	if sess.Sliding && sess.WriteDue(now, r.cfg.CoalescingWindow) {
		sess.Extend(now, r.cfg.SlidingTTL)
		// One atomic Save; the extension is never split across writes.
		if err := r.deps.Sessions.Save(ctx, sess); err != nil {
			return Resolution{}, err
		}
		if r.deps.Metrics != nil {
			r.deps.Metrics.SessionWrites.Inc()
		}
	}

	user, err := r.deps.Users.FindByID(ctx, sess.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		// A structurally valid session with no backing user is store
		// inconsistency, not a bad cookie.
		r.deps.Logger.WarnContext(ctx, "session user missing from identity store",
			"session_id", sess.ID.String(),
			"user_id", sess.UserID.String(),
		)
		return failed(FailureUserNotFound), nil
	}
	if err != nil {
		return Resolution{}, err
	}

	return Resolution{
		Kind:    KindAuthenticated,
		Claims:  buildUserClaims(user, domain.AuthMethodPassword, now),
		Session: sess,
	}, nil
}

// --- API-key path ---

func (r *Resolver) resolveSignature(ctx context.Context, req *http.Request, env apikey.Envelope) (Resolution, error) {
	key, err := r.deps.Keys.FindByID(ctx, env.KeyID)
	if errors.Is(err, sentinel.ErrNotFound) {
		res := failed(FailureDisabledKey)
		res.FromSignature = true
		return res, nil
	}
	if err != nil {
		return Resolution{}, err
	}
	if !key.Enabled {
		res := failed(FailureDisabledKey)
		res.FromSignature = true
		return res, nil
	}

	if ok, reason := apikey.Verify(key.Secret, req, env); !ok {
		// The reason stays in logs; externally every mismatch is the same.
		r.deps.Logger.WarnContext(ctx, "api signature rejected",
			"key_id", key.ID,
			"reason", reason,
		)
		r.emitAudit(ctx, audit.Event{
			Action:    audit.ActionInvalidSignature,
			SubjectID: key.ID,
			RemoteIP:  requestcontext.ClientIP(ctx),
			Reason:    reason,
		})
		res := failed(FailureInvalidSignature)
		res.FromSignature = true
		return res, nil
	}

	cs := &domain.ClaimsSet{
		Method:        domain.AuthMethodSignature,
		SubjectID:     key.ID,
		DisplayName:   key.ID,
		Authenticated: true,
	}
	cs.Add(domain.ClaimTypeNameID, key.ID)
	cs.Claims = append(cs.Claims, apikey.ParseScope(key.Scope)...)

	return Resolution{Kind: KindAuthenticated, Claims: cs, FromSignature: true}, nil
}

// --- externally-asserted path ---

// resolveAssertion handles the asserted-identity header when the scheme is
// enabled for automatic logon. handled=false means the request falls through
// to the cookie path: header absent, scheme disabled, unknown principal
// without create-users, or user class not admitted by the descriptor.
func (r *Resolver) resolveAssertion(ctx context.Context, req *http.Request) (res Resolution, handled bool, err error) {
	desc := r.deps.Descriptor
	if r.deps.Asserter == nil || !desc.Enabled || !desc.AutoLogon {
		return Resolution{}, false, nil
	}

	a, present, aerr := r.deps.Asserter.FromRequest(req)
	if !present {
		return Resolution{}, false, nil
	}
	if aerr != nil {
		// A forged or stale assertion from the front-end authenticator is
		// a signature failure, not a fall-through to weaker credentials.
		r.deps.Logger.ErrorContext(ctx, "identity assertion rejected",
			"security", true,
			"scheme", desc.Scheme,
			"error", aerr,
		)
		return failed(FailureInvalidSignature), true, nil
	}

	user, err := r.deps.Users.FindByDirectorySID(ctx, a.SID)
	if errors.Is(err, sentinel.ErrNotFound) {
		if !desc.CreateUsers {
			return Resolution{}, false, nil
		}
		user, err = r.provision(ctx, a)
	}
	if err != nil {
		return Resolution{}, true, err
	}

	if !classAllowed(desc.AllowedClasses, user) {
		r.deps.Logger.InfoContext(ctx, "asserted principal class not admitted",
			"scheme", desc.Scheme,
			"user_id", user.ID.String(),
		)
		return Resolution{}, false, nil
	}

	r.syncFromDirectory(ctx, user, a)

	now := requestcontext.Now(ctx)
	return Resolution{
		Kind:   KindAuthenticated,
		Claims: buildUserClaims(user, domain.AuthMethodAssertion, now),
	}, true, nil
}

// provision creates a local account on first sight of an asserted principal.
func (r *Resolver) provision(ctx context.Context, a *assertion.Assertion) (*identity.User, error) {
	name := a.Principal
	if r.deps.Descriptor.RemoveDomainName {
		name = a.StripDomain()
	}
	user := &identity.User{
		ID:           domain.NewUserID(),
		Username:     name,
		DisplayName:  name,
		Approved:     true,
		Verified:     true,
		DirectorySID: a.SID,
		Roles: []identity.Role{
			{Name: identity.RoleRegisteredUsers, AutoAssigned: true},
		},
	}
	if err := r.deps.Users.Save(ctx, user); err != nil {
		return nil, err
	}
	r.deps.Logger.InfoContext(ctx, "provisioned user from directory assertion",
		"scheme", r.deps.Descriptor.Scheme,
		"user_id", user.ID.String(),
		"username", user.Username,
	)
	return user, nil
}

// syncFromDirectory runs the best-effort attribute/role sync. Directory
// failures degrade to "no sync this request" and never fail authentication.
func (r *Resolver) syncFromDirectory(ctx context.Context, user *identity.User, a *assertion.Assertion) {
	desc := r.deps.Descriptor
	if r.deps.Directory == nil || r.deps.Syncer == nil || desc.Sync == directory.SyncNone {
		return
	}

	attrs, err := r.deps.Directory.ResolveAttributes(ctx, a.SID)
	if err != nil {
		r.deps.Logger.WarnContext(ctx, "directory unavailable, skipping sync",
			"scheme", desc.Scheme,
			"user_id", user.ID.String(),
			"error", err,
		)
		r.countSync("unavailable")
		return
	}

	if !r.deps.Syncer.Apply(user, attrs, desc.Sync, r.deps.RoleCatalogue) {
		r.countSync("unchanged")
		return
	}
	if err := r.deps.Users.Save(ctx, user); err != nil {
		r.deps.Logger.WarnContext(ctx, "failed to persist directory sync",
			"user_id", user.ID.String(),
			"error", err,
		)
		r.countSync("save_failed")
		return
	}
	r.countSync("applied")
}

func (r *Resolver) countSync(result string) {
	if r.deps.Metrics != nil {
		r.deps.Metrics.DirectorySyncs.WithLabelValues(result).Inc()
	}
}

func (r *Resolver) emitAudit(ctx context.Context, event audit.Event) {
	if r.deps.Audit == nil {
		return
	}
	if err := r.deps.Audit.Emit(ctx, event); err != nil {
		r.deps.Logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}

func classAllowed(allowed directory.UserClassSet, user *identity.User) bool {
	switch {
	case user.SystemAdmin:
		return allowed.Has(directory.ClassSystemAdmins)
	case user.SiteAdmin:
		return allowed.Has(directory.ClassSiteAdmins)
	default:
		return allowed.Has(directory.ClassUsers)
	}
}

// ipEqual compares the recorded and current remote addresses byte for byte,
// except that loopback equals loopback regardless of address family.
// Unparseable addresses fall back to the exact string comparison.
func ipEqual(recorded, current string) bool {
	if recorded == current {
		return true
	}
	a, errA := netip.ParseAddr(recorded)
	b, errB := netip.ParseAddr(current)
	if errA != nil || errB != nil {
		return false
	}
	if a.IsLoopback() && b.IsLoopback() {
		return true
	}
	return a == b
}

func outcomeLabel(res Resolution) string {
	switch res.Kind {
	case KindAuthenticated:
		return "authenticated"
	case KindAnonymous:
		return "anonymous"
	default:
		return string(res.Failure)
	}
}
