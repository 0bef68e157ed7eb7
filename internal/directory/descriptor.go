package directory

// UserClassSet is the flag set of account classes an external scheme is
// allowed to authenticate.
type UserClassSet uint8

const (
	ClassUsers UserClassSet = 1 << iota
	ClassSiteAdmins
	ClassSystemAdmins
)

// Has reports whether the set contains the given class flag.
func (s UserClassSet) Has(class UserClassSet) bool { return s&class != 0 }

// SyncOptions is the flag set of what directory data overwrites local
// identity data on login.
type SyncOptions uint8

const (
	SyncNone    SyncOptions = 0
	SyncProfile SyncOptions = 1 << iota
	SyncRoles
)

// Has reports whether the options contain the given flag.
func (o SyncOptions) Has(opt SyncOptions) bool { return o&opt != 0 }

// Descriptor configures one external authentication scheme. Immutable after
// load; one descriptor exists per configured scheme.
type Descriptor struct {
	Scheme       string
	FriendlyName string
	Enabled      bool
	// AutoLogon schemes are consulted on every request; otherwise the
	// scheme only participates in explicit login flows.
	AutoLogon      bool
	AllowedClasses UserClassSet
	// CreateUsers provisions a local account on first sight of an
	// asserted principal with no local record.
	CreateUsers bool
	Sync        SyncOptions
	// RemoveDomainName strips the DOMAIN\ qualifier from asserted
	// principal names before matching or creating local accounts.
	RemoveDomainName bool

	// Directory connection parameters.
	Domain string
	// ServiceAccount and ServiceSecret configure an explicit bind; empty
	// means an unauthenticated (negotiated) bind.
	ServiceAccount string
	ServiceSecret  string
}
