// package scheduler re-syncs saved subscriptions on an interval and owns subscription CRUD.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/repositories"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/lthibault/jitterbug/v2"
)

const (
	MinIntervalMinutes = 5
	MaxIntervalMinutes = 10080

	tickJitter = 30 * time.Second
)

// Enqueuer admits jobs. It is satisfied by jobs.Manager.
type Enqueuer interface {
	Enqueue(job *models.Job) error
	ActiveForSubscription(subscriptionID string) (*models.Job, error)
}

// Scheduler runs the periodic sync loop and one-off syncs.
//
// A subscription never has more than one active job: the check and the enqueue happen under the
// subscription's lock, and a pending job counts as active.
type Scheduler struct {
	subs   *repositories.SubscriptionRepository
	jobs   Enqueuer
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	running  bool
	lastRun  *time.Time
	nextRun  *time.Time
	reset    chan struct{}

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a scheduler from config.
func New(subs *repositories.SubscriptionRepository, jobs Enqueuer, cfg shared.SchedulerConfig, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	interval := cfg.Interval()
	if interval <= 0 {
		interval = 60 * time.Minute
	}
	return &Scheduler{
		subs:     subs,
		jobs:     jobs,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		enabled:  cfg.Enabled,
		interval: interval,
		reset:    make(chan struct{}, 1),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Run drives the loop until ctx ends. The first sync happens one interval after start.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.nextRun = nil
		s.mu.Unlock()
	}()

	for {
		interval := s.currentInterval()
		ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: tickJitter, Mean: 0})
		s.setNextRun(interval)
		s.logger.Debug("scheduler armed", "interval", interval)

		s.wait(ctx, ticker, interval)
		ticker.Stop()
		if ctx.Err() != nil {
			return nil
		}
	}
}

// wait handles ticks until the interval changes or ctx ends.
func (s *Scheduler) wait(ctx context.Context, ticker *jitterbug.Ticker, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reset:
			return
		case <-ticker.C:
			s.tick(ctx)
			s.setNextRun(interval)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	enabled := s.enabled
	now := s.now()
	s.lastRun = &now
	s.mu.Unlock()

	if !enabled {
		s.logger.Debug("scheduler disabled, skipping run")
		return
	}

	res, err := s.SyncAll(ctx)
	if err != nil {
		s.logger.Error("scheduled sync failed", "error", err)
		return
	}
	s.logger.Info("scheduled sync", "enqueued", len(res.JobIDs), "conflicts", len(res.Conflicts))
}

func (s *Scheduler) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Scheduler) setNextRun(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.now().Add(interval)
	s.nextRun = &next
}

// SetInterval changes the loop interval. The next run is rescheduled from now.
func (s *Scheduler) SetInterval(minutes int) error {
	if minutes < MinIntervalMinutes || minutes > MaxIntervalMinutes {
		return fmt.Errorf("%w: interval must be between %d and %d minutes", shared.ErrValidation, MinIntervalMinutes, MaxIntervalMinutes)
	}

	s.mu.Lock()
	changed := s.interval != time.Duration(minutes)*time.Minute
	s.interval = time.Duration(minutes) * time.Minute
	s.mu.Unlock()

	if changed {
		select {
		case s.reset <- struct{}{}:
		default:
		}
		s.logger.Info("scheduler interval changed", "minutes", minutes)
	}
	return nil
}

// SetEnabled turns periodic runs on or off. Manual syncs work either way.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// Apply reloads the scheduler section of cfg.
func (s *Scheduler) Apply(cfg shared.SchedulerConfig) error {
	s.SetEnabled(cfg.Enabled)
	return s.SetInterval(cfg.IntervalMinutes)
}

// Status reports the loop's state.
func (s *Scheduler) Status() models.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SchedulerStatus{
		Running:         s.running,
		Enabled:         s.enabled,
		IntervalMinutes: int(s.interval / time.Minute),
		LastRunAt:       s.lastRun,
		NextRunAt:       s.nextRun,
	}
}

func (s *Scheduler) lock(id string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// SyncOne enqueues a playlist job for subscription id and records it on the subscription.
//
// If the subscription already has an active job the result is a [shared.ConflictError] naming that job.
func (s *Scheduler) SyncOne(ctx context.Context, id string) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub, err := s.subs.Get(id)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(id)
	defer unlock()

	active, err := s.jobs.ActiveForSubscription(id)
	switch {
	case err == nil:
		return nil, &shared.ConflictError{
			Err:         fmt.Errorf("%w for subscription %s", shared.ErrAlreadyActive, id),
			ActiveJobID: active.ID,
		}
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	job := models.NewJob(models.KindPlaylist, sub.URL, sub.MaxItems)
	job.SubscriptionID = sub.ID
	if err := s.jobs.Enqueue(job); err != nil {
		return nil, err
	}

	if err := s.subs.RecordSync(sub.ID, job.ID, s.now()); err != nil {
		s.logger.Error("failed to record sync", "subscription", sub.ID, "job", job.ID, "error", err)
	}

	s.logger.Info("subscription synced", "subscription", sub.ID, "name", sub.Name, "job", job.ID)
	return job, nil
}

// SyncAll syncs every enabled subscription. Conflicts are reported per subscription and do not fail the call.
func (s *Scheduler) SyncAll(ctx context.Context) (*models.SyncAllResponse, error) {
	subs, err := s.subs.List(map[string]any{"enabled": true})
	if err != nil {
		return nil, err
	}

	res := &models.SyncAllResponse{JobIDs: []string{}, Conflicts: []models.SyncConflict{}}
	for _, sub := range subs {
		job, err := s.SyncOne(ctx, sub.ID)
		switch {
		case err == nil:
			res.JobIDs = append(res.JobIDs, job.ID)
		case shared.KindOf(err) == shared.KindConflict:
			res.Conflicts = append(res.Conflicts, models.SyncConflict{
				SubscriptionID: sub.ID,
				ActiveJobID:    shared.ActiveJobID(err),
			})
		case shared.KindOf(err) == shared.KindNotFound:
			// Deleted since the listing.
		default:
			return res, err
		}
	}
	return res, nil
}
