package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

// User is an account. PasswordHash is empty for Google-only accounts;
// GoogleRefreshToken is empty until the user connects Google Calendar.
type User struct {
	ID                 string
	Email              string
	FullName           string
	PasswordHash       string
	GoogleID           string
	ProfilePicture     string
	GoogleRefreshToken string
	CreatedAt          time.Time
}

// GoogleConnected reports whether the user has granted calendar access.
func (u User) GoogleConnected() bool {
	return u.GoogleRefreshToken != ""
}

type RefreshToken struct {
	TokenID   string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

type Repository interface {
	EnsureSchema(ctx context.Context) error
	CreateUser(ctx context.Context, user User) error
	FindUserByEmail(ctx context.Context, email string) (User, error)
	FindUserByID(ctx context.Context, userID string) (User, error)
	FindUserByGoogleID(ctx context.Context, googleID string) (User, error)
	UpdateGoogleLink(ctx context.Context, userID, googleID, picture, refreshToken string) error
	ClearGoogleLink(ctx context.Context, userID string) error
	ListGoogleConnectedUserIDs(ctx context.Context) ([]string, error)

	CreateRefreshToken(ctx context.Context, token RefreshToken) error
	FindRefreshTokenByHash(ctx context.Context, tokenHash string) (RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenID string) error
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createUsersSQL = `
CREATE TABLE IF NOT EXISTS users (
  id text PRIMARY KEY,
  email text NOT NULL UNIQUE,
  full_name text NOT NULL DEFAULT '',
  password_hash text NOT NULL DEFAULT '',
  google_id text NOT NULL DEFAULT '',
  profile_picture text NOT NULL DEFAULT '',
  google_refresh_token text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now()
)`

const createUsersGoogleIDIndexSQL = `
CREATE INDEX IF NOT EXISTS users_google_id_idx ON users (google_id) WHERE google_id <> ''`

const createRefreshTokensSQL = `
CREATE TABLE IF NOT EXISTS refresh_tokens (
  token_id text PRIMARY KEY,
  user_id text NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  token_hash text NOT NULL UNIQUE,
  expires_at timestamptz NOT NULL,
  revoked_at timestamptz,
  created_at timestamptz NOT NULL DEFAULT now()
)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createUsersSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createUsersGoogleIDIndexSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createRefreshTokensSQL); err != nil {
		return err
	}
	return nil
}

const userColumns = `id, email, full_name, password_hash, google_id, profile_picture, google_refresh_token, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.FullName, &u.PasswordHash,
		&u.GoogleID, &u.ProfilePicture, &u.GoogleRefreshToken, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user User) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO users (id, email, full_name, password_hash, google_id, profile_picture, google_refresh_token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Email, user.FullName, user.PasswordHash,
		user.GoogleID, user.ProfilePicture, user.GoogleRefreshToken,
	)
	return err
}

func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *PostgresRepository) FindUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(r.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

func (r *PostgresRepository) FindUserByGoogleID(ctx context.Context, googleID string) (User, error) {
	return scanUser(r.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = $1 AND google_id <> ''`, googleID))
}

func (r *PostgresRepository) UpdateGoogleLink(ctx context.Context, userID, googleID, picture, refreshToken string) error {
	// An empty refresh token means Google did not reissue one; keep the
	// stored grant in that case.
	res, err := r.Pool.Exec(ctx,
		`UPDATE users
		 SET google_id = $2,
		     profile_picture = CASE WHEN $3 <> '' THEN $3 ELSE profile_picture END,
		     google_refresh_token = CASE WHEN $4 <> '' THEN $4 ELSE google_refresh_token END
		 WHERE id = $1`,
		userID, googleID, picture, refreshToken,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ClearGoogleLink(ctx context.Context, userID string) error {
	res, err := r.Pool.Exec(ctx,
		`UPDATE users SET google_refresh_token = '' WHERE id = $1`,
		userID,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListGoogleConnectedUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT id FROM users WHERE google_refresh_token <> '' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) CreateRefreshToken(ctx context.Context, token RefreshToken) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO refresh_tokens (token_id, user_id, token_hash, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		token.TokenID, token.UserID, token.TokenHash, token.ExpiresAt,
	)
	return err
}

func (r *PostgresRepository) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (RefreshToken, error) {
	var rt RefreshToken
	err := r.Pool.QueryRow(ctx,
		`SELECT token_id, user_id, token_hash, expires_at, revoked_at
		 FROM refresh_tokens
		 WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()`,
		tokenHash,
	).Scan(&rt.TokenID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshToken{}, ErrNotFound
		}
		return RefreshToken{}, err
	}
	return rt, nil
}

func (r *PostgresRepository) RevokeRefreshToken(ctx context.Context, tokenID string) error {
	_, err := r.Pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE token_id = $1`,
		tokenID,
	)
	return err
}
