// Package scheduler runs the periodic maintenance jobs of the server.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// GalleryRefresher rebuilds the gallery when its reference images changed.
type GalleryRefresher interface {
	RefreshIfStale(ctx context.Context) (bool, error)
}

// ThrottlePruner drops throttle keys that have been idle for maxAge.
type ThrottlePruner interface {
	PruneThrottles(maxAge time.Duration) int
}

// Options sets the job intervals. Zero values use the defaults.
type Options struct {
	GalleryRefresh time.Duration
	ThrottlePrune  time.Duration
	ThrottleMaxAge time.Duration
}

// Scheduler wraps a gocron scheduler with the maintenance jobs registered.
type Scheduler struct {
	cron    *gocron.Scheduler
	gallery GalleryRefresher
	pruner  ThrottlePruner
	maxAge  time.Duration
}

// New registers the gallery refresh and throttle pruning jobs. A nil
// refresher or pruner skips its job. Jobs never overlap with themselves.
func New(gallery GalleryRefresher, pruner ThrottlePruner, opts Options) (*Scheduler, error) {
	if opts.GalleryRefresh <= 0 {
		opts.GalleryRefresh = constants.GalleryRefreshMinutes * time.Minute
	}
	if opts.ThrottlePrune <= 0 {
		opts.ThrottlePrune = time.Minute
	}
	if opts.ThrottleMaxAge <= 0 {
		opts.ThrottleMaxAge = constants.ThrottleRetentionMinutes * time.Minute
	}

	s := &Scheduler{
		cron:    gocron.NewScheduler(time.Local),
		gallery: gallery,
		pruner:  pruner,
		maxAge:  opts.ThrottleMaxAge,
	}
	s.cron.SingletonModeAll()
	s.cron.WaitForScheduleAll()

	if gallery != nil {
		if _, err := s.cron.Every(opts.GalleryRefresh).Tag("gallery-refresh").Do(s.refreshGallery); err != nil {
			return nil, fmt.Errorf("failed to schedule gallery refresh: %w", err)
		}
	}
	if pruner != nil {
		if _, err := s.cron.Every(opts.ThrottlePrune).Tag("throttle-prune").Do(s.pruneThrottles); err != nil {
			return nil, fmt.Errorf("failed to schedule throttle pruning: %w", err)
		}
	}
	return s, nil
}

// Start runs the jobs in the background.
func (s *Scheduler) Start() {
	s.cron.StartAsync()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Jobs())
}

func (s *Scheduler) refreshGallery() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	refreshed, err := s.gallery.RefreshIfStale(ctx)
	if err != nil {
		log.Printf("WARNING: gallery refresh failed: %v", err)
		return
	}
	if refreshed {
		log.Printf("Reference images changed, gallery rebuilt")
	}
}

func (s *Scheduler) pruneThrottles() {
	if n := s.pruner.PruneThrottles(s.maxAge); n > 0 {
		log.Printf("Pruned %d idle throttle keys", n)
	}
}
