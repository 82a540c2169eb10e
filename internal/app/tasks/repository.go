package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskleaf/taskleaf/internal/app/weather"
	"github.com/taskleaf/taskleaf/internal/calendar"
)

var (
	ErrNotFound         = errors.New("task not found")
	ErrCategoryNotFound = errors.New("category not found")
)

// Task is a to-do item. DueDate is optional; only dated tasks show up in
// calendar views. Weather is a point-in-time snapshot captured at write time
// when the task has a location.
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	DueDate     *calendar.Date
	DueTime     string
	Priority    string
	Completed   bool
	CompletedAt *time.Time
	CategoryID  string
	Location    string
	Weather     *weather.Info
	RemoteID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Category struct {
	ID        string
	UserID    string
	Name      string
	Color     string
	CreatedAt time.Time
}

// Filter narrows ListForUser. Nil/zero fields mean "no constraint"; Due
// selects one of the date buckets relative to Today.
type Filter struct {
	Completed *bool
	Search    string
	Category  string
	Due       string // "", "today", "upcoming", "overdue"
	Today     calendar.Date
}

const (
	DueToday    = "today"
	DueUpcoming = "upcoming"
	DueOverdue  = "overdue"
)

type Repository interface {
	EnsureSchema(ctx context.Context) error

	Create(ctx context.Context, t Task) error
	Update(ctx context.Context, t Task) error
	Delete(ctx context.Context, userID, taskID string) error
	FindByID(ctx context.Context, userID, taskID string) (Task, error)
	ListForUser(ctx context.Context, userID string, f Filter) ([]Task, error)
	ListDated(ctx context.Context, userID string) ([]Task, error)
	SetRemoteID(ctx context.Context, userID, taskID, remoteID string) error

	CreateCategory(ctx context.Context, c Category) error
	DeleteCategory(ctx context.Context, userID, categoryID string) error
	ListCategories(ctx context.Context, userID string) ([]Category, error)
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createCategoriesSQL = `
CREATE TABLE IF NOT EXISTS task_categories (
  id text PRIMARY KEY,
  user_id text NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  name text NOT NULL,
  color text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now(),
  UNIQUE (user_id, name)
)`

const createTasksSQL = `
CREATE TABLE IF NOT EXISTS tasks (
  id text PRIMARY KEY,
  user_id text NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  title text NOT NULL,
  description text NOT NULL DEFAULT '',
  due_date date,
  due_time text NOT NULL DEFAULT '',
  priority text NOT NULL DEFAULT 'medium',
  completed boolean NOT NULL DEFAULT false,
  completed_at timestamptz,
  category_id text NOT NULL DEFAULT '',
  location text NOT NULL DEFAULT '',
  weather jsonb,
  remote_id text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
)`

const createTasksUserDueIndexSQL = `
CREATE INDEX IF NOT EXISTS tasks_user_due_idx ON tasks (user_id, due_date)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createCategoriesSQL, createTasksSQL, createTasksUserDueIndexSQL} {
		if _, err := r.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const taskColumns = `id, user_id, title, description, due_date, due_time, priority, completed,
	completed_at, category_id, location, weather, remote_id, created_at, updated_at`

func scanTask(row pgx.Row) (Task, error) {
	var (
		t       Task
		dueDate *time.Time
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &dueDate, &t.DueTime, &t.Priority, &t.Completed,
		&t.CompletedAt, &t.CategoryID, &t.Location, &t.Weather, &t.RemoteID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, err
	}
	if dueDate != nil {
		d := calendar.DateOf(*dueDate)
		t.DueDate = &d
	}
	return t, nil
}

func dueDateValue(t Task) *time.Time {
	if t.DueDate == nil {
		return nil
	}
	v := t.DueDate.Time()
	return &v
}

func (r *PostgresRepository) Create(ctx context.Context, t Task) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO tasks
		   (id, user_id, title, description, due_date, due_time, priority, completed, category_id, location, weather, remote_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.UserID, t.Title, t.Description, dueDateValue(t), t.DueTime, t.Priority, t.Completed,
		t.CategoryID, t.Location, t.Weather, t.RemoteID,
	)
	return err
}

func (r *PostgresRepository) Update(ctx context.Context, t Task) error {
	res, err := r.Pool.Exec(ctx,
		`UPDATE tasks
		 SET title = $3, description = $4, due_date = $5, due_time = $6, priority = $7,
		     completed = $8, completed_at = $9, category_id = $10, location = $11,
		     weather = $12, remote_id = $13, updated_at = now()
		 WHERE id = $1 AND user_id = $2`,
		t.ID, t.UserID, t.Title, t.Description, dueDateValue(t), t.DueTime, t.Priority,
		t.Completed, t.CompletedAt, t.CategoryID, t.Location, t.Weather, t.RemoteID,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, taskID string) error {
	res, err := r.Pool.Exec(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`, taskID, userID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, userID, taskID string) (Task, error) {
	return scanTask(r.Pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`, taskID, userID))
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string, f Filter) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`
	args := []any{userID}

	if f.Completed != nil {
		args = append(args, *f.Completed)
		query += fmt.Sprintf(" AND completed = $%d", len(args))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", len(args), len(args))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		query += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	switch f.Due {
	case DueToday:
		args = append(args, f.Today.Time())
		query += fmt.Sprintf(" AND due_date = $%d", len(args))
	case DueUpcoming:
		args = append(args, f.Today.Time())
		query += fmt.Sprintf(" AND due_date > $%d", len(args))
	case DueOverdue:
		args = append(args, f.Today.Time())
		query += fmt.Sprintf(" AND due_date < $%d AND completed = false", len(args))
	}
	query += ` ORDER BY due_date NULLS LAST, due_time, created_at`

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *PostgresRepository) ListDated(ctx context.Context, userID string) ([]Task, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 AND due_date IS NOT NULL ORDER BY due_date, due_time`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]Task, error) {
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SetRemoteID(ctx context.Context, userID, taskID, remoteID string) error {
	res, err := r.Pool.Exec(ctx,
		`UPDATE tasks SET remote_id = $3, updated_at = now() WHERE id = $1 AND user_id = $2`,
		taskID, userID, remoteID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateCategory(ctx context.Context, c Category) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO task_categories (id, user_id, name, color) VALUES ($1, $2, $3, $4)`,
		c.ID, c.UserID, c.Name, c.Color)
	return err
}

func (r *PostgresRepository) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	res, err := r.Pool.Exec(ctx,
		`DELETE FROM task_categories WHERE id = $1 AND user_id = $2`, categoryID, userID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	// Orphaned tasks fall back to uncategorized.
	_, err = r.Pool.Exec(ctx,
		`UPDATE tasks SET category_id = '' WHERE user_id = $1 AND category_id = $2`, userID, categoryID)
	return err
}

func (r *PostgresRepository) ListCategories(ctx context.Context, userID string) ([]Category, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT id, user_id, name, color, created_at FROM task_categories WHERE user_id = $1 ORDER BY name`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
