package events

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskleaf/taskleaf/internal/calendar"
)

var ErrNotFound = errors.New("event not found")

// Event is the stored form of a user's calendar event. RemoteID is set once
// the sync worker has mirrored the event to the remote calendar.
type Event struct {
	ID            string
	UserID        string
	Title         string
	Description   string
	Date          calendar.Date
	Time          string
	Tag           string
	Color         string
	Origin        calendar.Origin
	RemoteID      string
	Recurrence    calendar.Recurrence
	RecurrenceEnd *calendar.Date
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CalendarEvent converts the stored row to the resolution core's event form.
func (e Event) CalendarEvent() calendar.Event {
	return calendar.Event{
		ID:            e.ID,
		Title:         e.Title,
		Date:          e.Date,
		Time:          e.Time,
		Tag:           e.Tag,
		Color:         e.Color,
		Origin:        e.Origin,
		RemoteID:      e.RemoteID,
		Recurrence:    e.Recurrence,
		RecurrenceEnd: e.RecurrenceEnd,
	}
}

type Repository interface {
	EnsureSchema(ctx context.Context) error
	Create(ctx context.Context, ev Event) error
	Update(ctx context.Context, ev Event) error
	Delete(ctx context.Context, userID, eventID string) error
	FindByID(ctx context.Context, userID, eventID string) (Event, error)
	ListForUser(ctx context.Context, userID string) ([]Event, error)
	SetRemoteID(ctx context.Context, userID, eventID, remoteID string) error
	ClearRemoteID(ctx context.Context, userID, eventID string) error
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createEventsSQL = `
CREATE TABLE IF NOT EXISTS calendar_events (
  id text PRIMARY KEY,
  user_id text NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  title text NOT NULL,
  description text NOT NULL DEFAULT '',
  event_date date NOT NULL,
  event_time text NOT NULL DEFAULT '',
  tag text NOT NULL DEFAULT '',
  color text NOT NULL DEFAULT '',
  origin text NOT NULL DEFAULT 'local',
  remote_id text NOT NULL DEFAULT '',
  recurrence text NOT NULL DEFAULT '',
  recurrence_end date,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
)`

const createEventsUserDateIndexSQL = `
CREATE INDEX IF NOT EXISTS calendar_events_user_date_idx ON calendar_events (user_id, event_date)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createEventsSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createEventsUserDateIndexSQL); err != nil {
		return err
	}
	return nil
}

const eventColumns = `id, user_id, title, description, event_date, event_time, tag, color,
	origin, remote_id, recurrence, recurrence_end, created_at, updated_at`

func scanEvent(row pgx.Row) (Event, error) {
	var (
		ev      Event
		date    time.Time
		endDate *time.Time
		origin  string
		recur   string
	)
	err := row.Scan(
		&ev.ID, &ev.UserID, &ev.Title, &ev.Description, &date, &ev.Time, &ev.Tag, &ev.Color,
		&origin, &ev.RemoteID, &recur, &endDate, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, ErrNotFound
		}
		return Event{}, err
	}
	ev.Date = calendar.DateOf(date)
	ev.Origin = calendar.Origin(origin)
	ev.Recurrence = calendar.Recurrence(recur)
	if endDate != nil {
		end := calendar.DateOf(*endDate)
		ev.RecurrenceEnd = &end
	}
	return ev, nil
}

func recurrenceEndValue(ev Event) *time.Time {
	if ev.RecurrenceEnd == nil {
		return nil
	}
	t := ev.RecurrenceEnd.Time()
	return &t
}

func (r *PostgresRepository) Create(ctx context.Context, ev Event) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO calendar_events
		   (id, user_id, title, description, event_date, event_time, tag, color, origin, remote_id, recurrence, recurrence_end)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ev.ID, ev.UserID, ev.Title, ev.Description, ev.Date.Time(), ev.Time, ev.Tag, ev.Color,
		string(ev.Origin), ev.RemoteID, string(ev.Recurrence), recurrenceEndValue(ev),
	)
	return err
}

func (r *PostgresRepository) Update(ctx context.Context, ev Event) error {
	res, err := r.Pool.Exec(ctx,
		`UPDATE calendar_events
		 SET title = $3, description = $4, event_date = $5, event_time = $6, tag = $7, color = $8,
		     remote_id = $9, recurrence = $10, recurrence_end = $11, updated_at = now()
		 WHERE id = $1 AND user_id = $2`,
		ev.ID, ev.UserID, ev.Title, ev.Description, ev.Date.Time(), ev.Time, ev.Tag, ev.Color,
		ev.RemoteID, string(ev.Recurrence), recurrenceEndValue(ev),
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, eventID string) error {
	res, err := r.Pool.Exec(ctx,
		`DELETE FROM calendar_events WHERE id = $1 AND user_id = $2`,
		eventID, userID,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, userID, eventID string) (Event, error) {
	return scanEvent(r.Pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM calendar_events WHERE id = $1 AND user_id = $2`,
		eventID, userID))
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]Event, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+eventColumns+` FROM calendar_events WHERE user_id = $1 ORDER BY event_date, event_time, id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *PostgresRepository) SetRemoteID(ctx context.Context, userID, eventID, remoteID string) error {
	res, err := r.Pool.Exec(ctx,
		`UPDATE calendar_events SET remote_id = $3, updated_at = now() WHERE id = $1 AND user_id = $2`,
		eventID, userID, remoteID,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ClearRemoteID(ctx context.Context, userID, eventID string) error {
	return r.SetRemoteID(ctx, userID, eventID, "")
}
