package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures everything the server wires at startup. Options are passed
// explicitly into the components that need them; nothing reads the
// environment after FromEnv returns.
type Config struct {
	Addr string

	// Session behavior.
	CookieName       string
	SessionTTL       time.Duration
	PersistentTTL    time.Duration
	SlidingTTL       time.Duration
	CoalescingWindow time.Duration
	EnforceIPBinding bool

	// Challenge behavior.
	AdminPathPrefix string
	LoginURL        string

	// Backing stores. Empty means in-memory.
	RedisURL    string
	PostgresURL string

	// External directory / asserted-identity scheme.
	DirectoryScheme        string
	DirectoryFriendlyName  string
	DirectoryEnabled       bool
	DirectoryAutoLogon     bool
	DirectoryDomain        string
	DirectoryAccount       string
	DirectorySecret        string
	DirectoryCreateUsers   bool
	DirectorySyncProfile   bool
	DirectorySyncRoles     bool
	DirectoryStripDomain   bool
	DirectoryAllowedScopes string // comma-separated: users,siteadmins,sysadmins
	AssertionKey           string

	// RoleCatalogue is the comma-separated set of tenant roles directory
	// sync may grant.
	RoleCatalogue string

	// TenantID scopes username lookups on login. Empty means the zero
	// tenant, which is what single-tenant deployments use.
	TenantID string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:             getenv("AUTHGATE_ADDR", ":8080"),
		CookieName:       getenv("AUTHGATE_COOKIE_NAME", "authgate_session"),
		SessionTTL:       duration("AUTHGATE_SESSION_TTL", time.Hour),
		PersistentTTL:    duration("AUTHGATE_PERSISTENT_TTL", 30*24*time.Hour),
		SlidingTTL:       duration("AUTHGATE_SLIDING_TTL", time.Hour),
		CoalescingWindow: duration("AUTHGATE_COALESCING_WINDOW", 60*time.Second),
		EnforceIPBinding: boolean("AUTHGATE_ENFORCE_IP_BINDING", false),

		AdminPathPrefix: getenv("AUTHGATE_ADMIN_PREFIX", "/admin"),
		LoginURL:        os.Getenv("AUTHGATE_LOGIN_URL"),

		RedisURL:    os.Getenv("AUTHGATE_REDIS_URL"),
		PostgresURL: os.Getenv("AUTHGATE_POSTGRES_URL"),

		DirectoryScheme:        getenv("AUTHGATE_DIRECTORY_SCHEME", "negotiate"),
		DirectoryFriendlyName:  getenv("AUTHGATE_DIRECTORY_NAME", "Corporate directory"),
		DirectoryEnabled:       boolean("AUTHGATE_DIRECTORY_ENABLED", false),
		DirectoryAutoLogon:     boolean("AUTHGATE_DIRECTORY_AUTO_LOGON", false),
		DirectoryDomain:        os.Getenv("AUTHGATE_DIRECTORY_DOMAIN"),
		DirectoryAccount:       os.Getenv("AUTHGATE_DIRECTORY_ACCOUNT"),
		DirectorySecret:        os.Getenv("AUTHGATE_DIRECTORY_SECRET"),
		DirectoryCreateUsers:   boolean("AUTHGATE_DIRECTORY_CREATE_USERS", false),
		DirectorySyncProfile:   boolean("AUTHGATE_DIRECTORY_SYNC_PROFILE", false),
		DirectorySyncRoles:     boolean("AUTHGATE_DIRECTORY_SYNC_ROLES", false),
		DirectoryStripDomain:   boolean("AUTHGATE_DIRECTORY_STRIP_DOMAIN", true),
		DirectoryAllowedScopes: getenv("AUTHGATE_DIRECTORY_ALLOWED", "users"),
		AssertionKey:           os.Getenv("AUTHGATE_ASSERTION_KEY"),
		RoleCatalogue:          os.Getenv("AUTHGATE_ROLE_CATALOGUE"),
		TenantID:               os.Getenv("AUTHGATE_TENANT_ID"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolean(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
