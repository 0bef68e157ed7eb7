package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-ldap/ldap/v3"

	"authgate/pkg/platform/sentinel"
)

// BindTimeout is the hard upper bound on any directory operation, enforced
// here regardless of the underlying client's own timeout guarantees, which
// have proven unreliable on at least one platform.
const BindTimeout = 15 * time.Second

// Client resolves identity attributes and group membership from the external
// directory. Implementations must treat every failure as "directory
// unavailable for this request"; callers never fail authentication over it.
type Client interface {
	ResolveAttributes(ctx context.Context, sid string) (*Attributes, error)
}

// LDAPClient talks to the directory over LDAP, binding per request. A bound
// connection is not pooled: resolution is one search on a short-lived
// connection, and connection state after a partial failure is not worth
// reasoning about.
type LDAPClient struct {
	desc   Descriptor
	logger *slog.Logger

	// dial is swappable for tests.
	dial func(addr string) (ldapConn, error)
}

// ldapConn is the subset of *ldap.Conn this client uses.
type ldapConn interface {
	Bind(username, password string) error
	UnauthenticatedBind(username string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

func NewLDAPClient(desc Descriptor, logger *slog.Logger) *LDAPClient {
	return &LDAPClient{
		desc:   desc,
		logger: logger,
		dial: func(addr string) (ldapConn, error) {
			return ldap.DialURL(addr)
		},
	}
}

type searchOutcome struct {
	attrs *Attributes
	err   error
}

// ResolveAttributes performs the single filtered search for the principal's
// stable directory identifier and maps the fixed attribute table. The
// library call runs in its own goroutine so the hard timeout holds even when
// the library blocks; an abandoned call is left to finish on its own.
func (c *LDAPClient) ResolveAttributes(ctx context.Context, sid string) (*Attributes, error) {
	ctx, cancel := context.WithTimeout(ctx, BindTimeout)
	defer cancel()

	done := make(chan searchOutcome, 1)
	go func() {
		attrs, err := c.search(sid)
		done <- searchOutcome{attrs: attrs, err: err}
	}()

	select {
	case <-ctx.Done():
		c.logger.WarnContext(ctx, "directory call abandoned",
			"scheme", c.desc.Scheme,
			"error", ctx.Err(),
		)
		return nil, fmt.Errorf("directory timeout: %w", sentinel.ErrUnavailable)
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		return out.attrs, nil
	}
}

func (c *LDAPClient) search(sid string) (*Attributes, error) {
	conn, err := c.connect()
	if err != nil {
		return nil, fmt.Errorf("directory bind: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer conn.Close()

	req := ldap.NewSearchRequest(
		BaseDN(c.desc.Domain),
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1, // one principal per SID
		int(BindTimeout/time.Second),
		false,
		fmt.Sprintf("(objectSid=%s)", ldap.EscapeFilter(sid)),
		searchAttributes(),
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("directory search: %w: %w", sentinel.ErrUnavailable, err)
	}
	if len(res.Entries) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return attributesFromEntry(res.Entries[0]), nil
}

// connect dials and binds. One opportunistic redial is allowed when the
// first dial fails outright, covering directory startup ordering; a failed
// bind on a live connection is not retried.
func (c *LDAPClient) connect() (ldapConn, error) {
	addr := "ldap://" + c.desc.Domain
	conn, err := c.dial(addr)
	if err != nil {
		conn, err = c.dial(addr)
		if err != nil {
			return nil, err
		}
	}

	if c.desc.ServiceAccount != "" {
		err = conn.Bind(c.desc.ServiceAccount+"@"+c.desc.Domain, c.desc.ServiceSecret)
	} else {
		err = conn.UnauthenticatedBind("")
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
