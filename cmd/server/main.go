// main wires high-level dependencies and keeps the server lifecycle small.
// Decision logic lives in the internal packages.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"authgate/internal/apikey"
	"authgate/internal/assertion"
	"authgate/internal/audit"
	"authgate/internal/challenge"
	"authgate/internal/credential"
	"authgate/internal/directory"
	httpapi "authgate/internal/http"
	"authgate/internal/identity"
	"authgate/internal/platform/config"
	"authgate/internal/platform/httpserver"
	"authgate/internal/platform/logger"
	"authgate/internal/platform/metrics"
	platformredis "authgate/internal/platform/redis"
	"authgate/internal/resolver"
	"authgate/internal/session"
	"authgate/internal/syncer"
	"authgate/pkg/domain"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session store: Redis when configured, in-memory otherwise.
	var sessions session.Store = session.NewInMemory()
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = session.NewRedis(redisClient.Client)
		log.Info("using redis session store")
	}

	// Identity store: Postgres when configured, in-memory otherwise.
	var users identity.Store = identity.NewInMemory()
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		users = identity.NewPostgres(pool)
		log.Info("using postgres identity store")
	}

	keys := apikey.NewInMemory()
	auditTrail := audit.NewPublisher(audit.NewInMemory())
	shared := metrics.New()
	cookies := session.CookieCodec{Name: cfg.CookieName}

	desc := descriptorFromConfig(cfg)
	var dir directory.Client
	if desc.Enabled && desc.Domain != "" {
		dir = directory.NewLDAPClient(desc, log)
	}
	var asserter *assertion.Verifier
	if cfg.AssertionKey != "" {
		asserter = assertion.NewVerifier(cfg.AssertionKey)
	}

	res := resolver.New(resolver.Deps{
		Sessions:      sessions,
		Users:         users,
		Keys:          keys,
		Cookies:       cookies,
		Asserter:      asserter,
		Descriptor:    desc,
		Directory:     dir,
		Syncer:        syncer.New(log),
		RoleCatalogue: splitList(cfg.RoleCatalogue),
		Audit:         auditTrail,
		Metrics:       shared,
		Logger:        log,
	}, resolver.Config{
		EnforceIPBinding: cfg.EnforceIPBinding,
		SlidingTTL:       cfg.SlidingTTL,
		CoalescingWindow: cfg.CoalescingWindow,
	})

	dispatcher := &challenge.Dispatcher{
		AdminPathPrefix: cfg.AdminPathPrefix,
		LoginURL:        cfg.LoginURL,
		Logger:          log,
		Metrics:         shared,
	}

	tenantID, err := tenantFromConfig(cfg)
	if err != nil {
		return err
	}

	handler := &httpapi.Handler{
		Users:         users,
		Sessions:      sessions,
		Cookies:       cookies,
		Verifier:      credential.NewVerifier(),
		Audit:         auditTrail,
		Metrics:       shared,
		Logger:        log,
		TenantID:      tenantID,
		SessionTTL:    cfg.SessionTTL,
		PersistentTTL: cfg.PersistentTTL,
		SlidingTTL:    cfg.SlidingTTL,
	}

	srv := httpserver.New(cfg.Addr, httpapi.NewRouter(handler, res, dispatcher))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting authgate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// tenantFromConfig parses the configured tenant identifier. Single-tenant
// deployments leave it unset and use the zero tenant everywhere.
func tenantFromConfig(cfg config.Config) (domain.TenantID, error) {
	if cfg.TenantID == "" {
		return domain.TenantID{}, nil
	}
	return domain.ParseTenantID(cfg.TenantID)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func descriptorFromConfig(cfg config.Config) directory.Descriptor {
	sync := directory.SyncNone
	if cfg.DirectorySyncProfile {
		sync |= directory.SyncProfile
	}
	if cfg.DirectorySyncRoles {
		sync |= directory.SyncRoles
	}

	var allowed directory.UserClassSet
	for _, scope := range strings.Split(cfg.DirectoryAllowedScopes, ",") {
		switch strings.TrimSpace(strings.ToLower(scope)) {
		case "users":
			allowed |= directory.ClassUsers
		case "siteadmins":
			allowed |= directory.ClassSiteAdmins
		case "sysadmins":
			allowed |= directory.ClassSystemAdmins
		}
	}

	return directory.Descriptor{
		Scheme:           cfg.DirectoryScheme,
		FriendlyName:     cfg.DirectoryFriendlyName,
		Enabled:          cfg.DirectoryEnabled,
		AutoLogon:        cfg.DirectoryAutoLogon,
		AllowedClasses:   allowed,
		CreateUsers:      cfg.DirectoryCreateUsers,
		Sync:             sync,
		RemoveDomainName: cfg.DirectoryStripDomain,
		Domain:           cfg.DirectoryDomain,
		ServiceAccount:   cfg.DirectoryAccount,
		ServiceSecret:    cfg.DirectorySecret,
	}
}
