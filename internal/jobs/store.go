// package jobs owns job state: the persistent [Store], the bounded worker [Queue] and the [Manager] the API talks to.
package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/repositories"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/desertthunder/ytlib/internal/stream"
)

// Store persists jobs and publishes a lifecycle event for every change.
//
// Mutations are serialized, so a job's read-modify-write never interleaves with another writer.
// Finished jobs are immutable: [Store.Update] rejects them with [shared.ErrJobFinished].
type Store struct {
	repo   *repositories.JobRepository
	broker *stream.Broker
	now    func() time.Time

	mu sync.Mutex
}

// NewStore creates a store over repo. broker may be nil.
func NewStore(repo *repositories.JobRepository, broker *stream.Broker) *Store {
	return &Store{
		repo:   repo,
		broker: broker,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new pending job.
func (s *Store) Create(job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Create(job); err != nil {
		return err
	}
	s.publish(stream.EventCreated, job)
	return nil
}

// Get returns a snapshot of job id.
func (s *Store) Get(id string) (*models.Job, error) {
	return s.repo.Get(id)
}

// List returns jobs in admission order, optionally only the active ones.
func (s *Store) List(activeOnly bool) ([]*models.Job, error) {
	criteria := map[string]any{}
	if activeOnly {
		criteria["active"] = true
	}
	return s.repo.List(criteria)
}

// Pending returns pending jobs in admission order.
func (s *Store) Pending() ([]*models.Job, error) {
	return s.repo.List(map[string]any{"status": models.StatusPending})
}

// Running returns jobs in a running status.
func (s *Store) Running() ([]*models.Job, error) {
	active, err := s.repo.List(map[string]any{"active": true})
	if err != nil {
		return nil, err
	}
	running := make([]*models.Job, 0, len(active))
	for _, j := range active {
		if j.Status.IsRunning() {
			running = append(running, j)
		}
	}
	return running, nil
}

// ActiveForSubscription returns the active job spawned by subscriptionID, or an error wrapping [shared.ErrNotFound].
func (s *Store) ActiveForSubscription(subscriptionID string) (*models.Job, error) {
	return s.repo.ActiveForSubscription(subscriptionID)
}

// Update applies fn to the current state of job id and persists the result.
func (s *Store) Update(id string, fn func(job *models.Job, now time.Time) error) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsFinished() {
		return job, fmt.Errorf("%w: %s is %s", shared.ErrJobFinished, id, job.Status)
	}

	before := *job
	if err := fn(job, s.now()); err != nil {
		return job, err
	}
	if job.Status == before.Status && job.Progress == before.Progress && job.Error == before.Error && job.UpdatedAt.Equal(before.UpdatedAt) {
		return job, nil
	}

	if err := job.Validate(); err != nil {
		return job, err
	}
	if err := s.repo.Update(job); err != nil {
		return job, err
	}

	s.publish(stream.EventUpdated, job)
	if job.Status.IsFinished() && s.broker != nil {
		s.broker.CloseTopic(job.ID)
	}
	return job, nil
}

// Delete removes a finished job and forgets its stream.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.repo.Get(id)
	if err != nil {
		return err
	}
	if job.Status.IsActive() {
		return &shared.ConflictError{Err: fmt.Errorf("%w: %s is %s", shared.ErrJobActive, id, job.Status), ActiveJobID: id}
	}

	if err := s.repo.Delete(id); err != nil {
		return err
	}

	s.publish(stream.EventDeleted, job)
	if s.broker != nil {
		s.broker.Forget(id)
	}
	return nil
}

// ClearFinished removes every finished job and returns how many were removed.
func (s *Store) ClearFinished() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished, err := s.repo.List(map[string]any{"active": false})
	if err != nil {
		return 0, err
	}

	n, err := s.repo.DeleteFinished()
	if err != nil {
		return 0, err
	}

	if s.broker != nil {
		for _, j := range finished {
			s.broker.Forget(j.ID)
		}
		s.broker.Publish(stream.Entry{
			Kind:    stream.KindEvent,
			Event:   stream.EventCleared,
			Message: fmt.Sprintf("cleared %d finished jobs", n),
			Fields:  map[string]any{"cleared": n},
		})
	}
	return n, nil
}

func (s *Store) publish(event string, job *models.Job) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(stream.Entry{
		JobID:   job.ID,
		Kind:    stream.KindEvent,
		Event:   event,
		Message: job.Status.String(),
		Fields: map[string]any{
			"status":   job.Status.String(),
			"progress": job.Progress,
			"kind":     string(job.Kind),
			"url":      job.URL,
		},
	})
}
