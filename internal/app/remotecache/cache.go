package remotecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskleaf/taskleaf/internal/app/googlecal"
	"github.com/taskleaf/taskleaf/internal/calendar"
)

const (
	// Mirrored window around today. Wide enough that month navigation
	// rarely leaves it; refreshes slide it forward.
	monthsBack    = 6
	monthsForward = 12
)

// Cache serves remote calendar events from the local snapshot store and
// refreshes snapshots from the provider. Reads never touch the network.
type Cache struct {
	Provider googlecal.Provider
	Store    *Store
	Now      func() time.Time
}

func NewCache(provider googlecal.Provider, store *Store) *Cache {
	return &Cache{
		Provider: provider,
		Store:    store,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Window returns the mirrored date range centered on today, aligned to
// month boundaries.
func (c *Cache) Window() (calendar.Date, calendar.Date) {
	today := calendar.DateOf(c.Now())
	firstOfMonth := time.Date(today.Year, today.Month, 1, 0, 0, 0, 0, time.UTC)
	from := calendar.DateOf(firstOfMonth.AddDate(0, -monthsBack, 0))
	to := calendar.DateOf(firstOfMonth.AddDate(0, monthsForward+1, 0))
	return from, to
}

// Events returns the cached remote events for a user. Users without a
// snapshot (not connected, or never refreshed) get an empty slice.
func (c *Cache) Events(userID string) ([]calendar.Event, error) {
	snap, ok, err := c.Store.Get(userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []calendar.Event{}, nil
	}
	return snap.Events, nil
}

// Refresh pulls the remote window and replaces the user's snapshot
// wholesale. A disconnected user gets their snapshot dropped instead.
func (c *Cache) Refresh(ctx context.Context, userID string) error {
	from, to := c.Window()
	events, err := c.Provider.ListEvents(ctx, userID, from, to)
	if err != nil {
		if errors.Is(err, googlecal.ErrNotConnected) {
			return c.Store.Delete(userID)
		}
		return fmt.Errorf("refresh remote events for %s: %w", userID, err)
	}
	if events == nil {
		events = []calendar.Event{}
	}
	return c.Store.Put(Snapshot{
		UserID:    userID,
		From:      from,
		To:        to,
		FetchedAt: c.Now(),
		Events:    events,
	})
}

// Remove drops one event from a user's snapshot by its remote id, so views
// stop resolving it before the provider confirms the delete. Refreshes still
// replace the snapshot wholesale.
func (c *Cache) Remove(userID, remoteID string) error {
	snap, ok, err := c.Store.Get(userID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	kept := make([]calendar.Event, 0, len(snap.Events))
	for _, ev := range snap.Events {
		if ev.RemoteID != remoteID {
			kept = append(kept, ev)
		}
	}
	if len(kept) == len(snap.Events) {
		return nil
	}
	snap.Events = kept
	return c.Store.Put(snap)
}

// Invalidate drops a user's snapshot so the next refresh starts clean.
func (c *Cache) Invalidate(userID string) error {
	return c.Store.Delete(userID)
}
