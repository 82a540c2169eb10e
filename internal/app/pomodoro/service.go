package pomodoro

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nuid"
)

var (
	ErrSessionActive    = errors.New("a session is already running")
	ErrSessionFinished  = errors.New("session is already finished")
	ErrInvalidDuration  = errors.New("duration must be between 1 and 180 minutes")
	ErrProgressBackward = errors.New("minutes_completed cannot decrease")
)

const defaultDurationMinutes = 25

type Service struct {
	Repo  Repository
	Now   func() time.Time
	NewID func() string
}

func NewService(repo Repository) *Service {
	return &Service{
		Repo:  repo,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: nuid.Next,
	}
}

type SessionResponse struct {
	ID               string     `json:"id"`
	TaskID           string     `json:"task_id,omitempty"`
	DurationMinutes  int        `json:"duration_minutes"`
	MinutesCompleted int        `json:"minutes_completed"`
	Completed        bool       `json:"completed"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
}

type Stats struct {
	TodayMinutes      int `json:"today_minutes"`
	WeekMinutes       int `json:"week_minutes"`
	TotalMinutes      int `json:"total_minutes"`
	CompletedSessions int `json:"completed_sessions"`
}

func sessionResponse(s Session) SessionResponse {
	return SessionResponse{
		ID:               s.ID,
		TaskID:           s.TaskID,
		DurationMinutes:  s.DurationMinutes,
		MinutesCompleted: s.MinutesCompleted,
		Completed:        s.Completed,
		StartedAt:        s.StartedAt,
		EndedAt:          s.EndedAt,
	}
}

// Start begins a session. Only one session may run at a time; starting while
// one is active is rejected rather than silently abandoning it.
func (s *Service) Start(ctx context.Context, userID, taskID string, durationMinutes int) (SessionResponse, error) {
	if durationMinutes == 0 {
		durationMinutes = defaultDurationMinutes
	}
	if durationMinutes < 1 || durationMinutes > 180 {
		return SessionResponse{}, ErrInvalidDuration
	}

	if _, err := s.Repo.FindActive(ctx, userID); err == nil {
		return SessionResponse{}, ErrSessionActive
	} else if !errors.Is(err, ErrNotFound) {
		return SessionResponse{}, err
	}

	session := Session{
		ID:              s.NewID(),
		UserID:          userID,
		TaskID:          taskID,
		DurationMinutes: durationMinutes,
		StartedAt:       s.Now(),
	}
	if err := s.Repo.Create(ctx, session); err != nil {
		return SessionResponse{}, err
	}
	return sessionResponse(session), nil
}

// Progress records minute progress. Reaching the planned duration completes
// the session.
func (s *Service) Progress(ctx context.Context, userID, sessionID string, minutesCompleted int) (SessionResponse, error) {
	session, err := s.Repo.FindByID(ctx, userID, sessionID)
	if err != nil {
		return SessionResponse{}, err
	}
	if session.Completed || session.EndedAt != nil {
		return SessionResponse{}, ErrSessionFinished
	}
	if minutesCompleted < session.MinutesCompleted {
		return SessionResponse{}, ErrProgressBackward
	}

	session.MinutesCompleted = minutesCompleted
	if session.MinutesCompleted >= session.DurationMinutes {
		session.MinutesCompleted = session.DurationMinutes
		session.Completed = true
		now := s.Now()
		session.EndedAt = &now
	}
	if err := s.Repo.Update(ctx, session); err != nil {
		return SessionResponse{}, err
	}
	return sessionResponse(session), nil
}

// Stop ends a session early, keeping the minutes completed so far.
func (s *Service) Stop(ctx context.Context, userID, sessionID string) (SessionResponse, error) {
	session, err := s.Repo.FindByID(ctx, userID, sessionID)
	if err != nil {
		return SessionResponse{}, err
	}
	if session.EndedAt != nil {
		return SessionResponse{}, ErrSessionFinished
	}
	now := s.Now()
	session.EndedAt = &now
	if err := s.Repo.Update(ctx, session); err != nil {
		return SessionResponse{}, err
	}
	return sessionResponse(session), nil
}

// Active returns the running session, or ok=false when there is none.
func (s *Service) Active(ctx context.Context, userID string) (SessionResponse, bool, error) {
	session, err := s.Repo.FindActive(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return SessionResponse{}, false, nil
		}
		return SessionResponse{}, false, err
	}
	return sessionResponse(session), true, nil
}

func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]SessionResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	sessions, err := s.Repo.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	resp := make([]SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, sessionResponse(session))
	}
	return resp, nil
}

// Stats sums focus minutes for today, the trailing 7 days, and all time.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	now := s.Now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekAgo := startOfToday.AddDate(0, 0, -6)

	all, err := s.Repo.ListSince(ctx, userID, time.Time{})
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, session := range all {
		stats.TotalMinutes += session.MinutesCompleted
		if session.Completed {
			stats.CompletedSessions++
		}
		if !session.StartedAt.Before(weekAgo) {
			stats.WeekMinutes += session.MinutesCompleted
		}
		if !session.StartedAt.Before(startOfToday) {
			stats.TodayMinutes += session.MinutesCompleted
		}
	}
	return stats, nil
}
