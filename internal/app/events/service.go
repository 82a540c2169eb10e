package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nuid"
	"github.com/taskleaf/taskleaf/internal/calendar"
	"github.com/taskleaf/taskleaf/internal/contracts"
	"github.com/taskleaf/taskleaf/internal/sharding"
)

var (
	ErrTitleRequired     = errors.New("title is required")
	ErrDateRequired      = errors.New("date is required")
	ErrInvalidTime       = errors.New("time must be HH:MM")
	ErrInvalidRecurrence = errors.New("unsupported recurrence")
	ErrRemoteReadOnly    = errors.New("remote events are read-only; delete them via the remote endpoint")
)

type PublishFunc func(subject string, payload []byte) error

// RemoteSource provides the cached remote events merged into views and drops
// single entries when their remote delete is requested.
type RemoteSource interface {
	Events(userID string) ([]calendar.Event, error)
	Remove(userID, remoteID string) error
}

// TaskSource provides the read-only task projection merged into views.
type TaskSource interface {
	CalendarTasks(ctx context.Context, userID string) ([]calendar.TaskItem, error)
}

// Service owns local event writes, enqueues remote mirror operations, and
// assembles calendar views. The local write always commits first; a failed
// outbox publish is logged and the write stands.
type Service struct {
	Repo    Repository
	Remote  RemoteSource
	Tasks   TaskSource
	Publish PublishFunc
	Now     func() time.Time
	NewID   func() string

	// DefaultDisplayHour is where untimed items land in day and week views.
	// Nil keeps the calendar core's default of hour 9.
	DefaultDisplayHour *int
}

func NewService(repo Repository, remote RemoteSource, tasks TaskSource, publish PublishFunc) *Service {
	return &Service{
		Repo:    repo,
		Remote:  remote,
		Tasks:   tasks,
		Publish: publish,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   nuid.Next,
	}
}

type EventRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Tag           string `json:"tag"`
	Color         string `json:"color"`
	Recurrence    string `json:"recurrence"`
	RecurrenceEnd string `json:"recurrence_end"`
	SyncToGoogle  *bool  `json:"sync_to_google"`
}

type EventResponse struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Date          string `json:"date"`
	Time          string `json:"time,omitempty"`
	Tag           string `json:"tag,omitempty"`
	Color         string `json:"color,omitempty"`
	Origin        string `json:"origin"`
	Synced        bool   `json:"synced"`
	Recurrence    string `json:"recurrence,omitempty"`
	RecurrenceEnd string `json:"recurrence_end,omitempty"`

	// SyncPending is set when the write requested a mirror change: true if
	// the operation reached the outbox, false if publishing failed and the
	// mirror change is deferred to a later refresh.
	SyncPending *bool `json:"sync_pending,omitempty"`
}

func eventResponse(ev Event) EventResponse {
	resp := EventResponse{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Date:        ev.Date.String(),
		Time:        ev.Time,
		Tag:         ev.Tag,
		Color:       ev.Color,
		Origin:      string(ev.Origin),
		Synced:      ev.RemoteID != "",
	}
	if ev.Recurrence != "" && ev.Recurrence != calendar.RecurrenceNone {
		resp.Recurrence = string(ev.Recurrence)
	}
	if ev.RecurrenceEnd != nil {
		resp.RecurrenceEnd = ev.RecurrenceEnd.String()
	}
	return resp
}

type parsedFields struct {
	date          calendar.Date
	clock         string
	recurrence    calendar.Recurrence
	recurrenceEnd *calendar.Date
}

func parseEventRequest(req EventRequest) (parsedFields, error) {
	if strings.TrimSpace(req.Title) == "" {
		return parsedFields{}, ErrTitleRequired
	}
	if strings.TrimSpace(req.Date) == "" {
		return parsedFields{}, ErrDateRequired
	}
	date, err := calendar.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		return parsedFields{}, err
	}

	clock := strings.TrimSpace(req.Time)
	if clock != "" {
		if _, err := time.Parse("15:04", clock); err != nil {
			return parsedFields{}, ErrInvalidTime
		}
	}

	recur := calendar.Recurrence(strings.TrimSpace(strings.ToLower(req.Recurrence)))
	if recur == "" {
		recur = calendar.RecurrenceNone
	}
	if !calendar.ValidRecurrence(recur) {
		return parsedFields{}, ErrInvalidRecurrence
	}

	fields := parsedFields{date: date, clock: clock, recurrence: recur}
	if end := strings.TrimSpace(req.RecurrenceEnd); end != "" {
		endDate, err := calendar.ParseDate(end)
		if err != nil {
			return parsedFields{}, err
		}
		fields.recurrenceEnd = &endDate
	}
	return fields, nil
}

func (s *Service) Create(ctx context.Context, userID string, req EventRequest) (EventResponse, error) {
	fields, err := parseEventRequest(req)
	if err != nil {
		return EventResponse{}, err
	}

	ev := Event{
		ID:            s.NewID(),
		UserID:        userID,
		Title:         strings.TrimSpace(req.Title),
		Description:   strings.TrimSpace(req.Description),
		Date:          fields.date,
		Time:          fields.clock,
		Tag:           strings.TrimSpace(req.Tag),
		Color:         strings.TrimSpace(req.Color),
		Origin:        calendar.OriginLocal,
		Recurrence:    fields.recurrence,
		RecurrenceEnd: fields.recurrenceEnd,
	}
	if err := s.Repo.Create(ctx, ev); err != nil {
		return EventResponse{}, err
	}

	resp := eventResponse(ev)
	if req.SyncToGoogle != nil && *req.SyncToGoogle {
		pending := s.enqueue(userID, contracts.SyncOperation{
			Kind:        contracts.KindEvent,
			EntityID:    ev.ID,
			Action:      contracts.ActionCreateRemote,
			Title:       ev.Title,
			Description: ev.Description,
			Date:        ev.Date.String(),
			Time:        ev.Time,
		})
		resp.SyncPending = &pending
	}
	return resp, nil
}

func (s *Service) Update(ctx context.Context, userID, eventID string, req EventRequest) (EventResponse, error) {
	existing, err := s.Repo.FindByID(ctx, userID, eventID)
	if err != nil {
		return EventResponse{}, err
	}
	if existing.Origin == calendar.OriginGoogle {
		return EventResponse{}, ErrRemoteReadOnly
	}

	fields, err := parseEventRequest(req)
	if err != nil {
		return EventResponse{}, err
	}

	updated := existing
	updated.Title = strings.TrimSpace(req.Title)
	updated.Description = strings.TrimSpace(req.Description)
	updated.Date = fields.date
	updated.Time = fields.clock
	updated.Tag = strings.TrimSpace(req.Tag)
	updated.Color = strings.TrimSpace(req.Color)
	updated.Recurrence = fields.recurrence
	updated.RecurrenceEnd = fields.recurrenceEnd

	// Sync transitions: turning the flag off unlinks the mirror and asks the
	// worker to remove it; turning it on for an unmirrored event requests a
	// create; an already-mirrored event gets its mirror updated.
	var op *contracts.SyncOperation
	switch {
	case req.SyncToGoogle != nil && !*req.SyncToGoogle && existing.RemoteID != "":
		updated.RemoteID = ""
		op = &contracts.SyncOperation{
			Kind:     contracts.KindEvent,
			EntityID: updated.ID,
			Action:   contracts.ActionDeleteRemote,
			RemoteID: existing.RemoteID,
		}
	case req.SyncToGoogle != nil && *req.SyncToGoogle && existing.RemoteID == "":
		op = &contracts.SyncOperation{
			Kind:        contracts.KindEvent,
			EntityID:    updated.ID,
			Action:      contracts.ActionCreateRemote,
			Title:       updated.Title,
			Description: updated.Description,
			Date:        updated.Date.String(),
			Time:        updated.Time,
		}
	case existing.RemoteID != "":
		op = &contracts.SyncOperation{
			Kind:        contracts.KindEvent,
			EntityID:    updated.ID,
			Action:      contracts.ActionUpdateRemote,
			RemoteID:    existing.RemoteID,
			Title:       updated.Title,
			Description: updated.Description,
			Date:        updated.Date.String(),
			Time:        updated.Time,
		}
	}

	if err := s.Repo.Update(ctx, updated); err != nil {
		return EventResponse{}, err
	}
	resp := eventResponse(updated)
	if op != nil {
		pending := s.enqueue(userID, *op)
		resp.SyncPending = &pending
	}
	return resp, nil
}

func (s *Service) Delete(ctx context.Context, userID, eventID string) error {
	existing, err := s.Repo.FindByID(ctx, userID, eventID)
	if err != nil {
		return err
	}
	if existing.Origin == calendar.OriginGoogle {
		return ErrRemoteReadOnly
	}
	if err := s.Repo.Delete(ctx, userID, eventID); err != nil {
		return err
	}
	if existing.RemoteID != "" {
		_ = s.enqueue(userID, contracts.SyncOperation{
			Kind:     contracts.KindEvent,
			EntityID: eventID,
			Action:   contracts.ActionDeleteRemote,
			RemoteID: existing.RemoteID,
		})
	}
	return nil
}

// DeleteRemote removes a provider-owned event. The cached projection is
// dropped right away so views stop resolving it; the worker deletes the
// provider's copy afterwards.
func (s *Service) DeleteRemote(ctx context.Context, userID, remoteID string) error {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return ErrNotFound
	}
	if s.Remote != nil {
		if err := s.Remote.Remove(userID, remoteID); err != nil {
			return fmt.Errorf("drop cached remote event: %w", err)
		}
	}
	_ = s.enqueue(userID, contracts.SyncOperation{
		Kind:     contracts.KindEvent,
		Action:   contracts.ActionDeleteRemote,
		RemoteID: remoteID,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, userID, eventID string) (EventResponse, error) {
	ev, err := s.Repo.FindByID(ctx, userID, eventID)
	if err != nil {
		return EventResponse{}, err
	}
	return eventResponse(ev), nil
}

func (s *Service) List(ctx context.Context, userID string) ([]EventResponse, error) {
	stored, err := s.Repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := make([]EventResponse, 0, len(stored))
	for _, ev := range stored {
		resp = append(resp, eventResponse(ev))
	}
	return resp, nil
}

// enqueue publishes a sync operation to the user's shard and reports whether
// it reached the outbox. Failures only warn: the local write has committed
// and a later refresh reconciles the mirror.
func (s *Service) enqueue(userID string, op contracts.SyncOperation) bool {
	if s.Publish == nil {
		return false
	}
	op.OperationID = s.NewID()
	op.UserID = userID
	op.EnqueuedAt = s.Now()

	payload, err := json.Marshal(op)
	if err != nil {
		log.Printf("events: marshal sync operation %s: %v", op.OperationID, err)
		return false
	}
	if err := s.Publish(sharding.SyncSubject(userID), payload); err != nil {
		log.Printf("events: enqueue %s for user %s failed, mirror deferred: %v", op.Action, userID, err)
		return false
	}
	return true
}

func (s *Service) resolver(ctx context.Context, userID string, showRemote bool) (calendar.Resolver, error) {
	stored, err := s.Repo.ListForUser(ctx, userID)
	if err != nil {
		return calendar.Resolver{}, err
	}
	local := make([]calendar.Event, 0, len(stored))
	for _, ev := range stored {
		local = append(local, ev.CalendarEvent())
	}

	res := calendar.Resolver{Local: local}
	if showRemote && s.Remote != nil {
		remote, err := s.Remote.Events(userID)
		if err != nil {
			return calendar.Resolver{}, fmt.Errorf("load remote events: %w", err)
		}
		res.Remote = remote
	}
	if s.Tasks != nil {
		tasks, err := s.Tasks.CalendarTasks(ctx, userID)
		if err != nil {
			return calendar.Resolver{}, fmt.Errorf("load tasks: %w", err)
		}
		res.Tasks = tasks
	}
	return res, nil
}

func (s *Service) projector(ctx context.Context, userID string, showRemote bool) (calendar.Projector, error) {
	res, err := s.resolver(ctx, userID, showRemote)
	if err != nil {
		return calendar.Projector{}, err
	}
	return calendar.Projector{
		Resolver:           res,
		Options:            calendar.ResolveOptions{ShowRemote: showRemote},
		DefaultDisplayHour: s.DefaultDisplayHour,
		WeekStart:          time.Sunday,
	}, nil
}

func (s *Service) MonthView(ctx context.Context, userID string, anchor calendar.Date, showRemote bool) (calendar.MonthView, error) {
	p, err := s.projector(ctx, userID, showRemote)
	if err != nil {
		return calendar.MonthView{}, err
	}
	return p.ProjectMonth(anchor), nil
}

func (s *Service) WeekView(ctx context.Context, userID string, anchor calendar.Date, showRemote bool) (calendar.WeekView, error) {
	p, err := s.projector(ctx, userID, showRemote)
	if err != nil {
		return calendar.WeekView{}, err
	}
	return p.ProjectWeek(anchor), nil
}

func (s *Service) DayView(ctx context.Context, userID string, anchor calendar.Date, showRemote bool) (calendar.DayView, error) {
	p, err := s.projector(ctx, userID, showRemote)
	if err != nil {
		return calendar.DayView{}, err
	}
	return p.ProjectDay(anchor), nil
}

// ICSFeed exports the user's locally-owned events as an iCalendar document.
func (s *Service) ICSFeed(ctx context.Context, userID, calendarName string) (string, error) {
	stored, err := s.Repo.ListForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	local := make([]calendar.Event, 0, len(stored))
	for _, ev := range stored {
		local = append(local, ev.CalendarEvent())
	}
	return calendar.BuildICS(local, calendarName)
}
