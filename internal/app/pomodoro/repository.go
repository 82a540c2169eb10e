package pomodoro

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("pomodoro session not found")

// Session is one focus run. MinutesCompleted grows as the client reports
// progress; a session is completed once it reaches DurationMinutes or the
// client finishes it explicitly.
type Session struct {
	ID               string
	UserID           string
	TaskID           string
	DurationMinutes  int
	MinutesCompleted int
	Completed        bool
	StartedAt        time.Time
	EndedAt          *time.Time
}

type Repository interface {
	EnsureSchema(ctx context.Context) error
	Create(ctx context.Context, s Session) error
	Update(ctx context.Context, s Session) error
	FindByID(ctx context.Context, userID, sessionID string) (Session, error)
	FindActive(ctx context.Context, userID string) (Session, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]Session, error)
	ListSince(ctx context.Context, userID string, since time.Time) ([]Session, error)
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createSessionsSQL = `
CREATE TABLE IF NOT EXISTS pomodoro_sessions (
  id text PRIMARY KEY,
  user_id text NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  task_id text NOT NULL DEFAULT '',
  duration_minutes int NOT NULL,
  minutes_completed int NOT NULL DEFAULT 0,
  completed boolean NOT NULL DEFAULT false,
  started_at timestamptz NOT NULL,
  ended_at timestamptz
)`

const createSessionsUserIndexSQL = `
CREATE INDEX IF NOT EXISTS pomodoro_sessions_user_started_idx ON pomodoro_sessions (user_id, started_at DESC)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createSessionsSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createSessionsUserIndexSQL); err != nil {
		return err
	}
	return nil
}

const sessionColumns = `id, user_id, task_id, duration_minutes, minutes_completed, completed, started_at, ended_at`

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.UserID, &s.TaskID, &s.DurationMinutes, &s.MinutesCompleted,
		&s.Completed, &s.StartedAt, &s.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s Session) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO pomodoro_sessions (id, user_id, task_id, duration_minutes, minutes_completed, completed, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.TaskID, s.DurationMinutes, s.MinutesCompleted, s.Completed, s.StartedAt, s.EndedAt,
	)
	return err
}

func (r *PostgresRepository) Update(ctx context.Context, s Session) error {
	res, err := r.Pool.Exec(ctx,
		`UPDATE pomodoro_sessions
		 SET minutes_completed = $3, completed = $4, ended_at = $5
		 WHERE id = $1 AND user_id = $2`,
		s.ID, s.UserID, s.MinutesCompleted, s.Completed, s.EndedAt,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, userID, sessionID string) (Session, error) {
	return scanSession(r.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM pomodoro_sessions WHERE id = $1 AND user_id = $2`,
		sessionID, userID))
}

func (r *PostgresRepository) FindActive(ctx context.Context, userID string) (Session, error) {
	return scanSession(r.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM pomodoro_sessions
		 WHERE user_id = $1 AND completed = false AND ended_at IS NULL
		 ORDER BY started_at DESC LIMIT 1`,
		userID))
}

func (r *PostgresRepository) ListRecent(ctx context.Context, userID string, limit int) ([]Session, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM pomodoro_sessions
		 WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (r *PostgresRepository) ListSince(ctx context.Context, userID string, since time.Time) ([]Session, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM pomodoro_sessions
		 WHERE user_id = $1 AND started_at >= $2 ORDER BY started_at DESC`,
		userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func collectSessions(rows pgx.Rows) ([]Session, error) {
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
