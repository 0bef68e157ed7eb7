package resolver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"authgate/internal/apikey"
	"authgate/internal/assertion"
	"authgate/internal/audit"
	"authgate/internal/directory"
	"authgate/internal/identity"
	"authgate/internal/session"
	"authgate/internal/syncer"
	"authgate/pkg/domain"
	"authgate/pkg/requestcontext"
)

const assertionKey = "test-assertion-key"

// countingStore wraps the in-memory session store to observe I/O, so tests
// can assert on write coalescing and on paths that must not touch storage.
type countingStore struct {
	*session.InMemoryStore
	finds   int
	saves   int
	deletes int
}

func (c *countingStore) FindByID(ctx context.Context, sessionID domain.SessionID) (*session.Session, error) {
	c.finds++
	return c.InMemoryStore.FindByID(ctx, sessionID)
}

func (c *countingStore) Save(ctx context.Context, sess *session.Session) error {
	c.saves++
	return c.InMemoryStore.Save(ctx, sess)
}

func (c *countingStore) Delete(ctx context.Context, sessionID domain.SessionID) error {
	c.deletes++
	return c.InMemoryStore.Delete(ctx, sessionID)
}

type fakeDirectory struct {
	attrs *directory.Attributes
	err   error
	calls int
}

func (f *fakeDirectory) ResolveAttributes(context.Context, string) (*directory.Attributes, error) {
	f.calls++
	return f.attrs, f.err
}

type ResolverSuite struct {
	suite.Suite
	sessions *countingStore
	users    *identity.InMemoryStore
	keys     *apikey.InMemoryStore
	auditLog *audit.InMemoryStore
	deps     Deps
	cfg      Config
	now      time.Time
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.sessions = &countingStore{InMemoryStore: session.NewInMemory()}
	s.users = identity.NewInMemory()
	s.keys = apikey.NewInMemory()
	s.auditLog = audit.NewInMemory()
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s.deps = Deps{
		Sessions: s.sessions,
		Users:    s.users,
		Keys:     s.keys,
		Cookies:  session.CookieCodec{Name: "authgate_session"},
		Syncer:   syncer.New(slog.New(slog.NewTextHandler(io.Discard, nil))),
		Audit:    audit.NewPublisher(s.auditLog),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	s.cfg = Config{
		EnforceIPBinding: true,
		SlidingTTL:       time.Hour,
		CoalescingWindow: time.Minute,
	}
}

func (s *ResolverSuite) resolve(req *http.Request, clientIP string) Resolution {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	ctx = requestcontext.WithClientMetadata(ctx, clientIP, "")
	res, err := New(s.deps, s.cfg).Resolve(ctx, req)
	s.Require().NoError(err)
	return res
}

func (s *ResolverSuite) seedUser(mutate ...func(*identity.User)) *identity.User {
	user := &identity.User{
		ID:          domain.NewUserID(),
		Username:    "jdoe",
		DisplayName: "Jane Doe",
		Approved:    true,
		Verified:    true,
		Roles:       []identity.Role{{Name: "Editors"}},
	}
	for _, m := range mutate {
		m(user)
	}
	s.Require().NoError(s.users.Save(context.Background(), user))
	return user
}

func (s *ResolverSuite) seedSession(user *identity.User, mutate ...func(*session.Session)) *session.Session {
	sess := &session.Session{
		ID:            domain.NewSessionID(),
		UserID:        user.ID,
		CreatedAt:     s.now.Add(-time.Hour),
		ExpiresAt:     s.now.Add(time.Hour),
		RemoteIP:      "10.0.0.7",
		LastUpdatedAt: s.now.Add(-time.Hour),
	}
	for _, m := range mutate {
		m(sess)
	}
	s.Require().NoError(s.sessions.Create(context.Background(), sess))
	return sess
}

func cookieRequest(sess *session.Session) *http.Request {
	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "authgate_session", Value: sess.ID.String()})
	return req
}

func (s *ResolverSuite) TestAnonymous() {
	s.Run("no credential resolves anonymous without touching storage", func() {
		res := s.resolve(httptest.NewRequest("GET", "/", nil), "10.0.0.7")

		s.Equal(KindAnonymous, res.Kind)
		s.False(res.Claims.Authenticated)
		s.Zero(s.sessions.finds)
	})

	s.Run("a malformed cookie value is no credential at all", func() {
		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(&http.Cookie{Name: "authgate_session", Value: "garbage"})

		res := s.resolve(req, "10.0.0.7")

		s.Equal(KindAnonymous, res.Kind)
		s.Zero(s.sessions.finds)
	})
}

func (s *ResolverSuite) TestSessionPath() {
	s.Run("cookie pointing at no session fails as invalid", func() {
		// SetupTest runs per method; subtests asserting on store counters
		// reset their own state.
		s.SetupTest()
		user := s.seedUser()
		sess := s.seedSession(user)
		s.Require().NoError(s.sessions.Delete(context.Background(), sess.ID))
		s.sessions.deletes = 0

		res := s.resolve(cookieRequest(sess), "10.0.0.7")

		s.Equal(KindFailed, res.Kind)
		s.Equal(FailureInvalidSession, res.Failure)
	})

	s.Run("an expired session is revoked on sight", func() {
		s.SetupTest()
		user := s.seedUser()
		sess := s.seedSession(user, func(sess *session.Session) {
			sess.ExpiresAt = s.now.Add(-time.Minute)
		})

		res := s.resolve(cookieRequest(sess), "10.0.0.7")

		s.Equal(FailureExpiredSession, res.Failure)
		s.Equal(1, s.sessions.deletes)
	})

	s.Run("a non-sliding expiry is never moved", func() {
		s.SetupTest()
		user := s.seedUser()
		sess := s.seedSession(user)
		req := cookieRequest(sess)

		for i := 0; i < 3; i++ {
			res := s.resolve(req, "10.0.0.7")
			s.Require().True(res.Authenticated())
		}

		s.Zero(s.sessions.saves)
		stored, err := s.sessions.FindByID(context.Background(), sess.ID)
		s.Require().NoError(err)
		s.Equal(sess.ExpiresAt, stored.ExpiresAt)
	})

	s.Run("sliding extensions coalesce into one write per window", func() {
		s.SetupTest()
		user := s.seedUser()
		sess := s.seedSession(user, func(sess *session.Session) {
			sess.Sliding = true
		})
		req := cookieRequest(sess)

		for i := 0; i < 5; i++ {
			res := s.resolve(req, "10.0.0.7")
			s.Require().True(res.Authenticated())
		}

		s.Equal(1, s.sessions.saves)
		stored, err := s.sessions.FindByID(context.Background(), sess.ID)
		s.Require().NoError(err)
		s.Equal(s.now.Add(s.cfg.SlidingTTL), stored.ExpiresAt)
		s.Equal(s.now, stored.LastUpdatedAt)
	})

	s.Run("an address mismatch revokes the session", func() {
		s.SetupTest()
		user := s.seedUser()
		sess := s.seedSession(user)

		res := s.resolve(cookieRequest(sess), "198.51.100.20")

		s.Equal(FailureIPMismatch, res.Failure)
		s.Equal(1, s.sessions.deletes)

		events := s.auditLog.Events()
		s.Require().Len(events, 1)
		s.Equal(audit.ActionIPMismatch, events[0].Action)
		s.Equal(user.ID.String(), events[0].SubjectID)
	})

	s.Run("loopback matches loopback across address families", func() {
		s.SetupTest()
		user := s.seedUser()
		sess := s.seedSession(user, func(sess *session.Session) {
			sess.RemoteIP = "::1"
		})

		res := s.resolve(cookieRequest(sess), "127.0.0.1")

		s.True(res.Authenticated())
	})

	s.Run("binding is skipped when not enforced", func() {
		s.SetupTest()
		s.cfg.EnforceIPBinding = false
		defer func() { s.cfg.EnforceIPBinding = true }()
		user := s.seedUser()
		sess := s.seedSession(user)

		res := s.resolve(cookieRequest(sess), "198.51.100.20")

		s.True(res.Authenticated())
	})

	s.Run("a session without a backing user fails cleanly", func() {
		s.SetupTest()
		sess := s.seedSession(&identity.User{ID: domain.NewUserID()})

		res := s.resolve(cookieRequest(sess), "10.0.0.7")

		s.Equal(FailureUserNotFound, res.Failure)
	})
}

func (s *ResolverSuite) TestUserClaims() {
	s.Run("a plain user yields identity, name and role claims", func() {
		user := s.seedUser()
		sess := s.seedSession(user)

		res := s.resolve(cookieRequest(sess), "10.0.0.7")

		s.Require().True(res.Authenticated())
		s.Require().NotNil(res.Session)
		cs := res.Claims
		s.Equal(domain.AuthMethodPassword, cs.Method)
		s.Equal(user.ID.String(), cs.SubjectID)
		s.Len(cs.Claims, 3)
		s.True(cs.HasRole("Editors"))
		s.Empty(cs.Warnings)
	})

	s.Run("an unapproved user gets warnings and nothing elevated", func() {
		user := s.seedUser(func(u *identity.User) {
			u.Approved = false
			u.SystemAdmin = true
			u.SetProfile(domain.ClaimTypeEmail, "jdoe@corp.example.com")
		})
		sess := s.seedSession(user)

		res := s.resolve(cookieRequest(sess), "10.0.0.7")

		s.Require().True(res.Authenticated())
		cs := res.Claims
		s.True(cs.HasWarning(domain.WarningNotApproved))
		s.Empty(cs.Roles())
		s.Len(cs.Claims, 2)
	})

	s.Run("an expired password keeps the full set with a warning", func() {
		past := s.now.Add(-24 * time.Hour)
		user := s.seedUser(func(u *identity.User) {
			u.PasswordExpiresAt = &past
		})
		sess := s.seedSession(user)

		res := s.resolve(cookieRequest(sess), "10.0.0.7")

		cs := res.Claims
		s.True(cs.HasWarning(domain.WarningPasswordExpired))
		s.True(cs.HasRole("Editors"))
	})

	s.Run("administrator flags become role claims without duplicates", func() {
		user := s.seedUser(func(u *identity.User) {
			u.SystemAdmin = true
			u.Roles = append(u.Roles, identity.Role{Name: identity.RoleAdministrators})
		})
		sess := s.seedSession(user)

		res := s.resolve(cookieRequest(sess), "10.0.0.7")

		roles := res.Claims.Roles()
		s.Contains(roles, identity.RoleAdministrators)
		s.Len(roles, 2)
	})
}

func (s *ResolverSuite) signedRequest(method, path, secret string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	digest, err := apikey.BodyDigest(req)
	s.Require().NoError(err)
	req.Header.Set(apikey.HeaderKey, "AK1")
	req.Header.Set(apikey.HeaderTimestamp, "1700000000")
	req.Header.Set(apikey.HeaderSignature, apikey.Sign(secret, apikey.CanonicalRequest(method, path, "1700000000", digest)))
	return req
}

func (s *ResolverSuite) TestSignaturePath() {
	const secret = "key-secret"

	s.Run("a valid signature yields the key's scoped claims", func() {
		s.SetupTest()
		s.keys.Put(apikey.Key{ID: "AK1", Secret: secret, Enabled: true, Scope: "role:Editors\nrole:Auditors"})

		res := s.resolve(s.signedRequest("GET", "/api/pages", secret), "10.0.0.7")

		s.Require().True(res.Authenticated())
		s.True(res.FromSignature)
		cs := res.Claims
		s.Equal(domain.AuthMethodSignature, cs.Method)
		s.Equal("AK1", cs.SubjectID)
		s.True(cs.HasRole("Editors"))
		s.True(cs.HasRole("Auditors"))
	})

	s.Run("a bad signature never falls back to the cookie", func() {
		s.SetupTest()
		s.keys.Put(apikey.Key{ID: "AK1", Secret: secret, Enabled: true})
		user := s.seedUser()
		sess := s.seedSession(user)

		req := s.signedRequest("GET", "/api/pages", "wrong-secret")
		req.AddCookie(&http.Cookie{Name: "authgate_session", Value: sess.ID.String()})

		res := s.resolve(req, "10.0.0.7")

		s.Equal(KindFailed, res.Kind)
		s.Equal(FailureInvalidSignature, res.Failure)
		s.True(res.FromSignature)
		s.Zero(s.sessions.finds)

		events := s.auditLog.Events()
		s.Require().Len(events, 1)
		s.Equal(audit.ActionInvalidSignature, events[0].Action)
	})

	s.Run("an unknown key fails as disabled", func() {
		s.SetupTest()
		res := s.resolve(s.signedRequest("GET", "/api/pages", secret), "10.0.0.7")

		s.Equal(FailureDisabledKey, res.Failure)
		s.True(res.FromSignature)
	})

	s.Run("a disabled key is rejected before verification", func() {
		s.SetupTest()
		s.keys.Put(apikey.Key{ID: "AK1", Secret: secret, Enabled: false})

		res := s.resolve(s.signedRequest("GET", "/api/pages", secret), "10.0.0.7")

		s.Equal(FailureDisabledKey, res.Failure)
	})
}

func assertionToken(t *testing.T, key, principal, sid string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"principal": principal,
		"sid":       sid,
		"exp":       time.Now().Add(time.Minute).Unix(),
	})
	signed, err := tok.SignedString([]byte(key))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func assertedRequest(t *testing.T, principal, sid string) *http.Request {
	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.Header.Set(assertion.Header, assertionToken(t, assertionKey, principal, sid))
	return req
}

func (s *ResolverSuite) enableAssertion(mutate ...func(*directory.Descriptor)) {
	s.deps.Asserter = assertion.NewVerifier(assertionKey)
	s.deps.Descriptor = directory.Descriptor{
		Scheme:         "negotiate",
		Enabled:        true,
		AutoLogon:      true,
		AllowedClasses: directory.ClassUsers | directory.ClassSiteAdmins | directory.ClassSystemAdmins,
	}
	for _, m := range mutate {
		m(&s.deps.Descriptor)
	}
}

func (s *ResolverSuite) TestAssertionPath() {
	const sid = "S-1-5-21-1111-2222-3333-500"

	s.Run("a valid assertion authenticates the matching account", func() {
		s.SetupTest()
		s.enableAssertion()
		s.seedUser(func(u *identity.User) { u.DirectorySID = sid })

		res := s.resolve(assertedRequest(s.T(), `CORP\jdoe`, sid), "10.0.0.7")

		s.Require().True(res.Authenticated())
		s.Equal(domain.AuthMethodAssertion, res.Claims.Method)
		s.True(res.Claims.HasRole("Editors"))
	})

	s.Run("the header is ignored while the scheme is disabled", func() {
		s.SetupTest()
		s.enableAssertion(func(d *directory.Descriptor) { d.Enabled = false })

		res := s.resolve(assertedRequest(s.T(), `CORP\jdoe`, sid), "10.0.0.7")

		s.Equal(KindAnonymous, res.Kind)
	})

	s.Run("a forged assertion is a hard failure, not a fall-through", func() {
		s.SetupTest()
		s.enableAssertion()
		req := httptest.NewRequest("GET", "/dashboard", nil)
		req.Header.Set(assertion.Header, assertionToken(s.T(), "wrong-key", `CORP\jdoe`, sid))

		res := s.resolve(req, "10.0.0.7")

		s.Equal(KindFailed, res.Kind)
		s.Equal(FailureInvalidSignature, res.Failure)
	})

	s.Run("unknown principal without provisioning falls through", func() {
		s.SetupTest()
		s.enableAssertion()

		res := s.resolve(assertedRequest(s.T(), `CORP\nobody`, sid), "10.0.0.7")

		s.Equal(KindAnonymous, res.Kind)
	})

	s.Run("unknown principal is provisioned when the scheme allows it", func() {
		s.SetupTest()
		s.enableAssertion(func(d *directory.Descriptor) {
			d.CreateUsers = true
			d.RemoveDomainName = true
		})

		res := s.resolve(assertedRequest(s.T(), `CORP\newhire`, sid), "10.0.0.7")

		s.Require().True(res.Authenticated())
		created, err := s.users.FindByDirectorySID(context.Background(), sid)
		s.Require().NoError(err)
		s.Equal("newhire", created.Username)
		s.Require().Len(created.Roles, 1)
		s.Equal(identity.RoleRegisteredUsers, created.Roles[0].Name)
		s.True(created.Roles[0].AutoAssigned)
		s.True(created.Approved)
		s.True(created.Verified)
	})

	s.Run("an account class outside the scheme falls through", func() {
		s.SetupTest()
		s.enableAssertion(func(d *directory.Descriptor) {
			d.AllowedClasses = directory.ClassUsers
		})
		s.seedUser(func(u *identity.User) {
			u.DirectorySID = sid
			u.SiteAdmin = true
		})

		res := s.resolve(assertedRequest(s.T(), `CORP\jdoe`, sid), "10.0.0.7")

		s.Equal(KindAnonymous, res.Kind)
	})

	s.Run("directory attributes are synced and persisted on logon", func() {
		s.SetupTest()
		dir := &fakeDirectory{attrs: &directory.Attributes{
			Values: map[string]string{domain.ClaimTypeEmail: "jdoe@corp.example.com"},
			Groups: []string{"Editors", "Auditors"},
		}}
		s.enableAssertion(func(d *directory.Descriptor) {
			d.Sync = directory.SyncProfile | directory.SyncRoles
		})
		s.deps.Directory = dir
		s.deps.RoleCatalogue = []string{"Editors", "Auditors"}
		s.seedUser(func(u *identity.User) { u.DirectorySID = sid })

		res := s.resolve(assertedRequest(s.T(), `CORP\jdoe`, sid), "10.0.0.7")

		s.Require().True(res.Authenticated())
		s.Equal(1, dir.calls)
		s.True(res.Claims.HasRole("Auditors"))

		stored, err := s.users.FindByDirectorySID(context.Background(), sid)
		s.Require().NoError(err)
		s.True(stored.HasRole("Auditors"))
		s.Equal("jdoe@corp.example.com", stored.Profile[0].Value)
	})

	s.Run("an unreachable directory never blocks authentication", func() {
		s.SetupTest()
		s.enableAssertion(func(d *directory.Descriptor) {
			d.Sync = directory.SyncRoles
		})
		s.deps.Directory = &fakeDirectory{err: context.DeadlineExceeded}
		s.seedUser(func(u *identity.User) { u.DirectorySID = sid })

		res := s.resolve(assertedRequest(s.T(), `CORP\jdoe`, sid), "10.0.0.7")

		s.True(res.Authenticated())
	})
}
