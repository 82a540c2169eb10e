package syncworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/taskleaf/taskleaf/internal/app/googlecal"
	"github.com/taskleaf/taskleaf/internal/calendar"
	"github.com/taskleaf/taskleaf/internal/contracts"
	"github.com/taskleaf/taskleaf/internal/platform/metrics"
)

var (
	ErrInvalidOperationPayload = errors.New("invalid sync operation payload")
	ErrUnsupportedAction       = errors.New("unsupported sync action")
)

var opsProcessed = metrics.NewCounterVec(metrics.Opts{
	Name: "taskleaf_sync_operations_total",
	Help: "Sync operations processed by action and outcome.",
}, []string{"action", "outcome"})

func init() {
	metrics.Default.MustRegister(opsProcessed)
}

// RemoteIDWriter persists the remote id a create operation earned back onto
// the local record.
type RemoteIDWriter interface {
	SetRemoteID(ctx context.Context, userID, entityID, remoteID string) error
}

// Service applies outbox operations to the remote calendar. One instance
// serves one durable consumer; operations for a user arrive in order because
// they share a shard subject.
type Service struct {
	Provider googlecal.Provider
	Events   RemoteIDWriter
	Tasks    RemoteIDWriter

	// MaxAttempts bounds in-process retries per operation; Sleep is
	// injectable for tests.
	MaxAttempts int
	Sleep       func(time.Duration)
}

func NewService(provider googlecal.Provider, events, tasks RemoteIDWriter) *Service {
	return &Service{
		Provider:    provider,
		Events:      events,
		Tasks:       tasks,
		MaxAttempts: 4,
		Sleep:       time.Sleep,
	}
}

// Handle processes one outbox message. A nil return means the message is
// done (applied, or terminally skipped); an error asks the caller to
// redeliver.
func (s *Service) Handle(ctx context.Context, payload []byte) error {
	var op contracts.SyncOperation
	if err := json.Unmarshal(payload, &op); err != nil {
		opsProcessed.WithLabelValues("unknown", "invalid").Inc()
		return ErrInvalidOperationPayload
	}

	err := s.applyWithRetry(ctx, op)
	switch {
	case err == nil:
		opsProcessed.WithLabelValues(op.Action, "applied").Inc()
		return nil
	case errors.Is(err, googlecal.ErrNotConnected):
		// The user disconnected after enqueueing; nothing to mirror to.
		log.Printf("syncworker: drop %s %s for user %s: not connected", op.Action, op.OperationID, op.UserID)
		opsProcessed.WithLabelValues(op.Action, "dropped").Inc()
		return nil
	case errors.Is(err, ErrUnsupportedAction):
		log.Printf("syncworker: drop %s %s: unsupported action", op.Action, op.OperationID)
		opsProcessed.WithLabelValues(op.Action, "dropped").Inc()
		return nil
	default:
		opsProcessed.WithLabelValues(op.Action, "failed").Inc()
		return fmt.Errorf("apply %s %s: %w", op.Action, op.OperationID, err)
	}
}

func (s *Service) applyWithRetry(ctx context.Context, op contracts.SyncOperation) error {
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			s.Sleep(backoff(attempt))
		}
		lastErr = s.apply(ctx, op)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, googlecal.ErrNotConnected) || errors.Is(lastErr, ErrUnsupportedAction) {
			return lastErr
		}
	}
	return lastErr
}

// backoff doubles per attempt, capped at 30s.
func backoff(attempt int) time.Duration {
	d := time.Second << (attempt - 1)
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func (s *Service) apply(ctx context.Context, op contracts.SyncOperation) error {
	switch op.Action {
	case contracts.ActionCreateRemote:
		return s.applyCreate(ctx, op)
	case contracts.ActionUpdateRemote:
		if op.RemoteID == "" {
			return ErrUnsupportedAction
		}
		return s.Provider.UpdateEvent(ctx, op.UserID, op.RemoteID, eventInput(op))
	case contracts.ActionDeleteRemote:
		if op.RemoteID == "" {
			return ErrUnsupportedAction
		}
		return s.Provider.DeleteEvent(ctx, op.UserID, op.RemoteID)
	default:
		return ErrUnsupportedAction
	}
}

func (s *Service) applyCreate(ctx context.Context, op contracts.SyncOperation) error {
	remoteID, err := s.Provider.CreateEvent(ctx, op.UserID, eventInput(op))
	if err != nil {
		return err
	}

	writer := s.Events
	if op.Kind == contracts.KindTask {
		writer = s.Tasks
	}
	if writer == nil || op.EntityID == "" {
		return nil
	}
	if err := writer.SetRemoteID(ctx, op.UserID, op.EntityID, remoteID); err != nil {
		// The mirror exists but the link write failed. Leaving the message
		// unacked would create a duplicate mirror on redelivery, so log and
		// move on; the next full refresh shows the event as remote-origin.
		log.Printf("syncworker: link remote id %s to %s %s failed: %v", remoteID, op.Kind, op.EntityID, err)
	}
	return nil
}

func eventInput(op contracts.SyncOperation) googlecal.EventInput {
	in := googlecal.EventInput{
		Title:       op.Title,
		Description: op.Description,
		Time:        op.Time,
	}
	if op.Date != "" {
		if d, err := calendar.ParseDate(op.Date); err == nil {
			in.Date = d
		}
	}
	return in
}
