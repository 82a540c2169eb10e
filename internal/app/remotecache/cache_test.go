package remotecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskleaf/taskleaf/internal/app/googlecal"
	"github.com/taskleaf/taskleaf/internal/calendar"
)

type fakeProvider struct {
	events   []calendar.Event
	listErr  error
	listFrom calendar.Date
	listTo   calendar.Date
}

func (f *fakeProvider) Connected(ctx context.Context, userID string) (bool, error) {
	return f.listErr == nil, nil
}

func (f *fakeProvider) ListEvents(ctx context.Context, userID string, from, to calendar.Date) ([]calendar.Event, error) {
	f.listFrom, f.listTo = from, to
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.events, nil
}

func (f *fakeProvider) CreateEvent(ctx context.Context, userID string, in googlecal.EventInput) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeProvider) UpdateEvent(ctx context.Context, userID, remoteID string, in googlecal.EventInput) error {
	return errors.New("not implemented")
}

func (f *fakeProvider) DeleteEvent(ctx context.Context, userID, remoteID string) error {
	return errors.New("not implemented")
}

func newTestCache(t *testing.T, provider googlecal.Provider) *Cache {
	t.Helper()
	cache := NewCache(provider, NewStore(t.TempDir()))
	cache.Now = func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) }
	return cache
}

func TestRefreshReplacesSnapshot(t *testing.T) {
	provider := &fakeProvider{events: []calendar.Event{
		{ID: "remote-r1", Title: "Offsite", Date: calendar.Date{Year: 2026, Month: 3, Day: 20}, Origin: calendar.OriginGoogle, RemoteID: "r1"},
	}}
	cache := newTestCache(t, provider)

	if err := cache.Refresh(context.Background(), "u1"); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	events, err := cache.Events("u1")
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(events) != 1 || events[0].RemoteID != "r1" {
		t.Fatalf("unexpected events: %+v", events)
	}

	// Second refresh with a different result set replaces the first.
	provider.events = []calendar.Event{
		{ID: "remote-r2", Title: "Review", Date: calendar.Date{Year: 2026, Month: 4, Day: 2}, Origin: calendar.OriginGoogle, RemoteID: "r2"},
	}
	if err := cache.Refresh(context.Background(), "u1"); err != nil {
		t.Fatalf("second Refresh error: %v", err)
	}
	events, err = cache.Events("u1")
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(events) != 1 || events[0].RemoteID != "r2" {
		t.Fatalf("stale snapshot survived refresh: %+v", events)
	}
}

func TestWindowIsMonthAligned(t *testing.T) {
	cache := newTestCache(t, &fakeProvider{})

	from, to := cache.Window()
	if from.String() != "2025-09-01" {
		t.Fatalf("unexpected window start: %s", from)
	}
	if to.String() != "2027-04-01" {
		t.Fatalf("unexpected window end: %s", to)
	}
}

func TestEventsWithoutSnapshotIsEmpty(t *testing.T) {
	cache := newTestCache(t, &fakeProvider{})

	events, err := cache.Events("never-refreshed")
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected empty slice, got %+v", events)
	}
}

func TestRefreshDisconnectedDropsSnapshot(t *testing.T) {
	provider := &fakeProvider{events: []calendar.Event{
		{ID: "remote-r1", Date: calendar.Date{Year: 2026, Month: 3, Day: 20}, RemoteID: "r1"},
	}}
	cache := newTestCache(t, provider)

	if err := cache.Refresh(context.Background(), "u1"); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	provider.listErr = googlecal.ErrNotConnected
	if err := cache.Refresh(context.Background(), "u1"); err != nil {
		t.Fatalf("Refresh after disconnect error: %v", err)
	}
	events, err := cache.Events("u1")
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("snapshot survived disconnect: %+v", events)
	}
}

func TestRemoveDropsEventFromSnapshot(t *testing.T) {
	provider := &fakeProvider{events: []calendar.Event{
		{ID: "remote-r1", Title: "Offsite", Date: calendar.Date{Year: 2026, Month: 3, Day: 20}, Origin: calendar.OriginGoogle, RemoteID: "r1"},
		{ID: "remote-r2", Title: "Review", Date: calendar.Date{Year: 2026, Month: 3, Day: 21}, Origin: calendar.OriginGoogle, RemoteID: "r2"},
	}}
	cache := newTestCache(t, provider)

	if err := cache.Refresh(context.Background(), "u1"); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if err := cache.Remove("u1", "r1"); err != nil {
		t.Fatalf("Remove error: %v", err)
	}

	events, err := cache.Events("u1")
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(events) != 1 || events[0].RemoteID != "r2" {
		t.Fatalf("removed event survived: %+v", events)
	}

	// Unknown ids and missing snapshots are no-ops.
	if err := cache.Remove("u1", "r1"); err != nil {
		t.Fatalf("second Remove error: %v", err)
	}
	if err := cache.Remove("never-refreshed", "r1"); err != nil {
		t.Fatalf("Remove without snapshot error: %v", err)
	}
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	provider := &fakeProvider{events: []calendar.Event{
		{ID: "remote-r1", Date: calendar.Date{Year: 2026, Month: 3, Day: 20}, RemoteID: "r1"},
	}}
	cache := newTestCache(t, provider)

	if err := cache.Refresh(context.Background(), "u1"); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	provider.listErr = errors.New("upstream 503")
	if err := cache.Refresh(context.Background(), "u1"); err == nil {
		t.Fatal("expected refresh failure")
	}
	events, err := cache.Events("u1")
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("failed refresh should keep the last snapshot, got %+v", events)
	}
}
