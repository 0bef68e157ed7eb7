package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "authgate/pkg/domain"
	"authgate/pkg/platform/sentinel"
)

// PostgresStore persists identity snapshots across the users, user_roles and
// user_profile tables. Expected schema:
//
//	users(id uuid pk, tenant_id uuid, username text, display_name text,
//	      password_hash text, approved bool, verified bool, system_admin bool,
//	      site_admin bool, password_expires_at timestamptz null,
//	      multifactor_secret text, directory_sid text)
//	user_roles(user_id uuid, name text, auto_assigned bool, restricted bool)
//	user_profile(user_id uuid, claim_type text, value text)
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const userColumns = `id, tenant_id, username, display_name, password_hash,
	approved, verified, system_admin, site_admin, password_expires_at,
	multifactor_secret, directory_sid`

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
	return s.scanUser(ctx, row)
}

func (s *PostgresStore) FindByUsername(ctx context.Context, tenantID id.TenantID, username string) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND username = $2`,
		uuid.UUID(tenantID), username)
	return s.scanUser(ctx, row)
}

func (s *PostgresStore) FindByDirectorySID(ctx context.Context, sid string) (*User, error) {
	if sid == "" {
		return nil, sentinel.ErrNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE directory_sid = $1`, sid)
	return s.scanUser(ctx, row)
}

func (s *PostgresStore) scanUser(ctx context.Context, row pgx.Row) (*User, error) {
	var (
		u                 User
		userUUID, tenUUID uuid.UUID
	)
	err := row.Scan(&userUUID, &tenUUID, &u.Username, &u.DisplayName,
		&u.PasswordHash, &u.Approved, &u.Verified, &u.SystemAdmin, &u.SiteAdmin,
		&u.PasswordExpiresAt, &u.MultifactorSecret, &u.DirectorySID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.ID = id.UserID(userUUID)
	u.TenantID = id.TenantID(tenUUID)

	rows, err := s.pool.Query(ctx,
		`SELECT name, auto_assigned, restricted FROM user_roles WHERE user_id = $1`, userUUID)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	u.Roles, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Role])
	if err != nil {
		return nil, fmt.Errorf("collect roles: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT claim_type, value FROM user_profile WHERE user_id = $1`, userUUID)
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	u.Profile, err = pgx.CollectRows(rows, pgx.RowToStructByPos[ProfileValue])
	if err != nil {
		return nil, fmt.Errorf("collect profile: %w", err)
	}

	return &u, nil
}

// Save upserts the snapshot and replaces roles and profile in one
// transaction, so a partially-synced user is never observable.
func (s *PostgresStore) Save(ctx context.Context, user *User) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	userUUID := uuid.UUID(user.ID)
	_, err = tx.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			password_hash = EXCLUDED.password_hash,
			approved = EXCLUDED.approved,
			verified = EXCLUDED.verified,
			system_admin = EXCLUDED.system_admin,
			site_admin = EXCLUDED.site_admin,
			password_expires_at = EXCLUDED.password_expires_at,
			multifactor_secret = EXCLUDED.multifactor_secret,
			directory_sid = EXCLUDED.directory_sid`,
		userUUID, uuid.UUID(user.TenantID), user.Username, user.DisplayName,
		user.PasswordHash, user.Approved, user.Verified, user.SystemAdmin,
		user.SiteAdmin, user.PasswordExpiresAt, user.MultifactorSecret,
		user.DirectorySID)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userUUID); err != nil {
		return fmt.Errorf("clear roles: %w", err)
	}
	for _, r := range user.Roles {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_roles (user_id, name, auto_assigned, restricted) VALUES ($1,$2,$3,$4)`,
			userUUID, r.Name, r.AutoAssigned, r.Restricted); err != nil {
			return fmt.Errorf("insert role: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM user_profile WHERE user_id = $1`, userUUID); err != nil {
		return fmt.Errorf("clear profile: %w", err)
	}
	for _, p := range user.Profile {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_profile (user_id, claim_type, value) VALUES ($1,$2,$3)`,
			userUUID, p.Type, p.Value); err != nil {
			return fmt.Errorf("insert profile value: %w", err)
		}
	}

	return tx.Commit(ctx)
}
