package syncworker

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
	"github.com/taskleaf/taskleaf/internal/app/remotecache"
	"github.com/taskleaf/taskleaf/internal/platform/metrics"
)

var cacheRefreshes = metrics.NewCounterVec(metrics.Opts{
	Name: "taskleaf_cache_refreshes_total",
	Help: "Remote cache refreshes by outcome.",
}, []string{"outcome"})

func init() {
	metrics.Default.MustRegister(cacheRefreshes)
}

// UserLister enumerates users whose remote calendar should be mirrored.
type UserLister interface {
	ListGoogleConnectedUserIDs(ctx context.Context) ([]string, error)
}

// Refresher periodically rebuilds every connected user's remote snapshot, so
// reads stay local and deletions on the provider side eventually disappear
// from views.
type Refresher struct {
	Users UserLister
	Cache *remotecache.Cache

	cron *cron.Cron
}

func NewRefresher(users UserLister, cache *remotecache.Cache) *Refresher {
	return &Refresher{Users: users, Cache: cache}
}

// Start schedules RefreshAll on the given cron spec, e.g. "*/15 * * * *".
func (r *Refresher) Start(spec string) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(spec, func() {
		if err := r.RefreshAll(context.Background()); err != nil {
			log.Printf("syncworker: scheduled refresh: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache refresh %q: %w", spec, err)
	}
	r.cron.Start()
	return nil
}

func (r *Refresher) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}

// RefreshAll refreshes each connected user, continuing past individual
// failures so one broken grant cannot starve the rest.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	userIDs, err := r.Users.ListGoogleConnectedUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list connected users: %w", err)
	}

	var failed int
	for _, userID := range userIDs {
		if err := r.Cache.Refresh(ctx, userID); err != nil {
			failed++
			cacheRefreshes.WithLabelValues("failed").Inc()
			log.Printf("syncworker: refresh user %s: %v", userID, err)
			continue
		}
		cacheRefreshes.WithLabelValues("ok").Inc()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d refreshes failed", failed, len(userIDs))
	}
	return nil
}
