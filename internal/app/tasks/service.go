package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nuid"
	"github.com/taskleaf/taskleaf/internal/app/weather"
	"github.com/taskleaf/taskleaf/internal/calendar"
	"github.com/taskleaf/taskleaf/internal/contracts"
	"github.com/taskleaf/taskleaf/internal/sharding"
)

var (
	ErrTitleRequired       = errors.New("title is required")
	ErrInvalidPriority     = errors.New("priority must be low, medium or high")
	ErrInvalidDueTime      = errors.New("due_time must be HH:MM")
	ErrCategoryNameMissing = errors.New("category name is required")
	ErrSyncNeedsDueDate    = errors.New("a due date is required to sync a task")
)

type PublishFunc func(subject string, payload []byte) error

// WeatherSource enriches dated, located tasks. A nil result means no data;
// task writes never fail over weather.
type WeatherSource interface {
	Current(ctx context.Context, location string) *weather.Info
}

type Service struct {
	Repo    Repository
	Weather WeatherSource
	Publish PublishFunc
	Now     func() time.Time
	NewID   func() string
}

func NewService(repo Repository, weatherSrc WeatherSource, publish PublishFunc) *Service {
	return &Service{
		Repo:    repo,
		Weather: weatherSrc,
		Publish: publish,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   nuid.Next,
	}
}

type TaskRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	DueDate      string `json:"due_date"`
	DueTime      string `json:"due_time"`
	Priority     string `json:"priority"`
	CategoryID   string `json:"category_id"`
	Location     string `json:"location"`
	SyncToGoogle *bool  `json:"sync_to_google"`
}

type TaskResponse struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	DueDate     string        `json:"due_date,omitempty"`
	DueTime     string        `json:"due_time,omitempty"`
	Priority    string        `json:"priority"`
	Completed   bool          `json:"completed"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CategoryID  string        `json:"category_id,omitempty"`
	Location    string        `json:"location,omitempty"`
	Weather     *weather.Info `json:"weather,omitempty"`
	Synced      bool          `json:"synced"`
	CreatedAt   time.Time     `json:"created_at"`
}

type CategoryResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type Stats struct {
	Total          int            `json:"total"`
	Completed      int            `json:"completed"`
	Pending        int            `json:"pending"`
	Overdue        int            `json:"overdue"`
	CompletionRate float64        `json:"completion_rate"`
	ByPriority     map[string]int `json:"by_priority"`
	ByCategory     map[string]int `json:"by_category"`
}

func taskResponse(t Task) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		DueTime:     t.DueTime,
		Priority:    t.Priority,
		Completed:   t.Completed,
		CompletedAt: t.CompletedAt,
		CategoryID:  t.CategoryID,
		Location:    t.Location,
		Weather:     t.Weather,
		Synced:      t.RemoteID != "",
		CreatedAt:   t.CreatedAt,
	}
	if t.DueDate != nil {
		resp.DueDate = t.DueDate.String()
	}
	return resp
}

func normalizePriority(p string) (string, error) {
	p = strings.TrimSpace(strings.ToLower(p))
	switch p {
	case "":
		return "medium", nil
	case "low", "medium", "high":
		return p, nil
	default:
		return "", ErrInvalidPriority
	}
}

func (s *Service) applyRequest(ctx context.Context, t *Task, req TaskRequest) error {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return ErrTitleRequired
	}
	priority, err := normalizePriority(req.Priority)
	if err != nil {
		return err
	}

	t.Title = title
	t.Description = strings.TrimSpace(req.Description)
	t.Priority = priority
	t.CategoryID = strings.TrimSpace(req.CategoryID)
	t.Location = strings.TrimSpace(req.Location)

	t.DueDate = nil
	if due := strings.TrimSpace(req.DueDate); due != "" {
		d, err := calendar.ParseDate(due)
		if err != nil {
			return err
		}
		t.DueDate = &d
	}
	t.DueTime = strings.TrimSpace(req.DueTime)
	if t.DueTime != "" {
		if _, err := time.Parse("15:04", t.DueTime); err != nil {
			return ErrInvalidDueTime
		}
	}

	t.Weather = nil
	if t.Location != "" && s.Weather != nil {
		t.Weather = s.Weather.Current(ctx, t.Location)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, userID string, req TaskRequest) (TaskResponse, error) {
	t := Task{ID: s.NewID(), UserID: userID, CreatedAt: s.Now()}
	if err := s.applyRequest(ctx, &t, req); err != nil {
		return TaskResponse{}, err
	}
	if req.SyncToGoogle != nil && *req.SyncToGoogle && t.DueDate == nil {
		return TaskResponse{}, ErrSyncNeedsDueDate
	}
	if err := s.Repo.Create(ctx, t); err != nil {
		return TaskResponse{}, err
	}

	if req.SyncToGoogle != nil && *req.SyncToGoogle {
		s.enqueue(userID, contracts.SyncOperation{
			Kind:        contracts.KindTask,
			EntityID:    t.ID,
			Action:      contracts.ActionCreateRemote,
			Title:       t.Title,
			Description: t.Description,
			Date:        t.DueDate.String(),
			Time:        t.DueTime,
		})
	}
	return taskResponse(t), nil
}

func (s *Service) Update(ctx context.Context, userID, taskID string, req TaskRequest) (TaskResponse, error) {
	t, err := s.Repo.FindByID(ctx, userID, taskID)
	if err != nil {
		return TaskResponse{}, err
	}
	if err := s.applyRequest(ctx, &t, req); err != nil {
		return TaskResponse{}, err
	}

	// A mirrored task that loses its due date can no longer live on the
	// calendar; unlink it and remove the remote copy.
	var op *contracts.SyncOperation
	switch {
	case t.RemoteID != "" && t.DueDate == nil:
		op = &contracts.SyncOperation{
			Kind:     contracts.KindTask,
			EntityID: t.ID,
			Action:   contracts.ActionDeleteRemote,
			RemoteID: t.RemoteID,
		}
		t.RemoteID = ""
	case t.RemoteID != "":
		op = &contracts.SyncOperation{
			Kind:        contracts.KindTask,
			EntityID:    t.ID,
			Action:      contracts.ActionUpdateRemote,
			RemoteID:    t.RemoteID,
			Title:       t.Title,
			Description: t.Description,
			Date:        t.DueDate.String(),
			Time:        t.DueTime,
		}
	}

	if err := s.Repo.Update(ctx, t); err != nil {
		return TaskResponse{}, err
	}
	if op != nil {
		s.enqueue(userID, *op)
	}
	return taskResponse(t), nil
}

// SetCompleted flips the completion state and stamps CompletedAt.
func (s *Service) SetCompleted(ctx context.Context, userID, taskID string, completed bool) (TaskResponse, error) {
	t, err := s.Repo.FindByID(ctx, userID, taskID)
	if err != nil {
		return TaskResponse{}, err
	}
	t.Completed = completed
	t.CompletedAt = nil
	if completed {
		now := s.Now()
		t.CompletedAt = &now
	}
	if err := s.Repo.Update(ctx, t); err != nil {
		return TaskResponse{}, err
	}
	return taskResponse(t), nil
}

func (s *Service) Delete(ctx context.Context, userID, taskID string) error {
	t, err := s.Repo.FindByID(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, userID, taskID); err != nil {
		return err
	}
	if t.RemoteID != "" {
		s.enqueue(userID, contracts.SyncOperation{
			Kind:     contracts.KindTask,
			EntityID: taskID,
			Action:   contracts.ActionDeleteRemote,
			RemoteID: t.RemoteID,
		})
	}
	return nil
}

func (s *Service) Get(ctx context.Context, userID, taskID string) (TaskResponse, error) {
	t, err := s.Repo.FindByID(ctx, userID, taskID)
	if err != nil {
		return TaskResponse{}, err
	}
	return taskResponse(t), nil
}

func (s *Service) List(ctx context.Context, userID string, f Filter) ([]TaskResponse, error) {
	if f.Today.IsZero() {
		f.Today = calendar.DateOf(s.Now())
	}
	stored, err := s.Repo.ListForUser(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	resp := make([]TaskResponse, 0, len(stored))
	for _, t := range stored {
		resp = append(resp, taskResponse(t))
	}
	return resp, nil
}

// Stats summarizes the user's whole task list.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	all, err := s.Repo.ListForUser(ctx, userID, Filter{})
	if err != nil {
		return Stats{}, err
	}
	today := calendar.DateOf(s.Now())

	stats := Stats{
		Total:      len(all),
		ByPriority: map[string]int{},
		ByCategory: map[string]int{},
	}
	for _, t := range all {
		if t.Completed {
			stats.Completed++
		} else if t.DueDate != nil && t.DueDate.Before(today) {
			stats.Overdue++
		}
		stats.ByPriority[t.Priority]++
		category := t.CategoryID
		if category == "" {
			category = "uncategorized"
		}
		stats.ByCategory[category]++
	}
	stats.Pending = stats.Total - stats.Completed
	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(stats.Total)
	}
	return stats, nil
}

func (s *Service) CreateCategory(ctx context.Context, userID, name, color string) (CategoryResponse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return CategoryResponse{}, ErrCategoryNameMissing
	}
	c := Category{ID: s.NewID(), UserID: userID, Name: name, Color: strings.TrimSpace(color)}
	if err := s.Repo.CreateCategory(ctx, c); err != nil {
		return CategoryResponse{}, err
	}
	return CategoryResponse{ID: c.ID, Name: c.Name, Color: c.Color}, nil
}

func (s *Service) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	return s.Repo.DeleteCategory(ctx, userID, categoryID)
}

func (s *Service) ListCategories(ctx context.Context, userID string) ([]CategoryResponse, error) {
	stored, err := s.Repo.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := make([]CategoryResponse, 0, len(stored))
	for _, c := range stored {
		resp = append(resp, CategoryResponse{ID: c.ID, Name: c.Name, Color: c.Color})
	}
	return resp, nil
}

// CalendarTasks projects dated tasks into the calendar core's read-only form.
func (s *Service) CalendarTasks(ctx context.Context, userID string) ([]calendar.TaskItem, error) {
	stored, err := s.Repo.ListDated(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]calendar.TaskItem, 0, len(stored))
	for _, t := range stored {
		if t.DueDate == nil {
			continue
		}
		items = append(items, calendar.TaskItem{
			ID:        t.ID,
			Title:     t.Title,
			Date:      *t.DueDate,
			Time:      t.DueTime,
			Priority:  t.Priority,
			Completed: t.Completed,
		})
	}
	return items, nil
}

func (s *Service) enqueue(userID string, op contracts.SyncOperation) {
	if s.Publish == nil {
		return
	}
	op.OperationID = s.NewID()
	op.UserID = userID
	op.EnqueuedAt = s.Now()

	payload, err := json.Marshal(op)
	if err != nil {
		log.Printf("tasks: marshal sync operation %s: %v", op.OperationID, err)
		return
	}
	if err := s.Publish(sharding.SyncSubject(userID), payload); err != nil {
		log.Printf("tasks: enqueue %s for user %s failed, mirror deferred: %v", op.Action, userID, err)
	}
}
