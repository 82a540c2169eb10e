package syncworker

import (
	"context"
	"errors"
	"testing"

	"github.com/taskleaf/taskleaf/internal/app/googlecal"
	"github.com/taskleaf/taskleaf/internal/app/remotecache"
	"github.com/taskleaf/taskleaf/internal/calendar"
)

type listProvider struct {
	failFor string
	events  []calendar.Event
}

func (p listProvider) Connected(ctx context.Context, userID string) (bool, error) { return true, nil }

func (p listProvider) ListEvents(ctx context.Context, userID string, from, to calendar.Date) ([]calendar.Event, error) {
	if userID == p.failFor {
		return nil, errors.New("upstream down")
	}
	return p.events, nil
}

func (p listProvider) CreateEvent(ctx context.Context, userID string, in googlecal.EventInput) (string, error) {
	return "", errors.New("not implemented")
}

func (p listProvider) UpdateEvent(ctx context.Context, userID, remoteID string, in googlecal.EventInput) error {
	return errors.New("not implemented")
}

func (p listProvider) DeleteEvent(ctx context.Context, userID, remoteID string) error {
	return errors.New("not implemented")
}

func TestRefreshAllContinuesPastFailures(t *testing.T) {
	provider := listProvider{
		failFor: "user-bad",
		events:  []calendar.Event{{ID: "remote-1", Title: "Standup", Date: calendar.Date{Year: 2026, Month: 3, Day: 20}}},
	}
	cache := remotecache.NewCache(provider, remotecache.NewStore(t.TempDir()))
	r := NewRefresher(fakeUserLister{ids: []string{"user-bad", "user-good"}}, cache)

	err := r.RefreshAll(context.Background())
	if err == nil || err.Error() != "1 of 2 refreshes failed" {
		t.Fatalf("unexpected error: %v", err)
	}

	events, err := cache.Events("user-good")
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(events) != 1 || events[0].Title != "Standup" {
		t.Fatalf("healthy user snapshot missing: %+v", events)
	}
}
