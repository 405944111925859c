package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"trid/internal/identity"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Load looks up an unexpired session by key hash.
func (s *PostgresStore) Load(ctx context.Context, keyHash string) (identity.Identity, bool, error) {
	const query = `
		SELECT email, full_name, roles, access_token, refresh_token, expires_at
		FROM client_sessions
		WHERE key_hash = $1 AND expires_at > NOW()
	`

	var row sessionRow
	if err := s.db.GetContext(ctx, &row, query, keyHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Identity{}, false, nil
		}
		return identity.Identity{}, false, err
	}

	return row.toIdentity(), true, nil
}

// Save upserts the session in a single statement.
func (s *PostgresStore) Save(ctx context.Context, keyHash string, id identity.Identity, expiresAt time.Time) error {
	const query = `
		INSERT INTO client_sessions (id, key_hash, email, full_name, roles, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (key_hash) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			roles = EXCLUDED.roles,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`

	roles := pq.StringArray(id.Roles)
	if roles == nil {
		roles = pq.StringArray{}
	}

	_, err := s.db.ExecContext(ctx, query,
		uuid.New(),
		keyHash,
		id.Email,
		id.FullName,
		roles,
		id.AccessToken,
		id.RefreshToken,
		expiresAt,
		time.Now(),
	)
	return err
}

// Delete removes a session from the database.
func (s *PostgresStore) Delete(ctx context.Context, keyHash string) error {
	const query = `DELETE FROM client_sessions WHERE key_hash = $1`
	_, err := s.db.ExecContext(ctx, query, keyHash)
	return err
}

// DeleteExpired removes all expired sessions.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM client_sessions WHERE expires_at <= $1`
	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// sessionRow is a database row representation of a persisted identity.
type sessionRow struct {
	Email        string         `db:"email"`
	FullName     string         `db:"full_name"`
	Roles        pq.StringArray `db:"roles"`
	AccessToken  string         `db:"access_token"`
	RefreshToken string         `db:"refresh_token"`
	ExpiresAt    time.Time      `db:"expires_at"`
}

func (r *sessionRow) toIdentity() identity.Identity {
	return identity.Identity{
		Email:        r.Email,
		FullName:     r.FullName,
		Roles:        []string(r.Roles),
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
}
