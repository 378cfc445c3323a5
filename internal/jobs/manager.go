package jobs

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytlib/internal/metrics"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
)

// Manager is the job control surface: submission, inspection, cancellation and deletion.
type Manager struct {
	store  *Store
	queue  *Queue
	logger *log.Logger
}

// NewManager creates a manager over store and queue.
func NewManager(store *Store, queue *Queue, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Manager{store: store, queue: queue, logger: logger}
}

// Submit validates req and admits a new job.
func (m *Manager) Submit(req models.CreateJobRequest) (*models.Job, error) {
	kind, err := models.ResolveKind(req.URL, req.Kind)
	if err != nil {
		return nil, err
	}
	if req.MaxItems < 0 {
		return nil, fmt.Errorf("%w: max_items must not be negative", shared.ErrValidation)
	}

	job := models.NewJob(kind, strings.TrimSpace(req.URL), req.MaxItems)
	job.AudioFormat = req.AudioFormat
	if err := m.Enqueue(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Enqueue admits an already-built pending job.
func (m *Manager) Enqueue(job *models.Job) error {
	if job.ID == "" {
		job.ID = shared.GenerateID()
	}
	if err := m.queue.Submit(job); err != nil {
		return err
	}
	m.logger.Info("job admitted", "job", job.ID, "kind", job.Kind, "url", job.URL, "subscription", job.SubscriptionID)
	return nil
}

// Get returns job id.
func (m *Manager) Get(id string) (*models.Job, error) {
	return m.store.Get(id)
}

// List returns jobs in admission order.
func (m *Manager) List(activeOnly bool) ([]*models.Job, error) {
	return m.store.List(activeOnly)
}

// ActiveForSubscription returns the subscription's active job, or an error wrapping [shared.ErrNotFound].
func (m *Manager) ActiveForSubscription(subscriptionID string) (*models.Job, error) {
	return m.store.ActiveForSubscription(subscriptionID)
}

// Cancel moves an active job to cancelled and stops it if it is running.
//
// The status changes immediately; the worker notices the cancellation at its next check and cleans up.
func (m *Manager) Cancel(id string) (*models.Job, error) {
	job, err := m.store.Update(id, func(j *models.Job, now time.Time) error {
		return j.Transition(models.StatusCancelled, now)
	})
	if err != nil {
		return nil, err
	}

	if m.queue.Cancel(id) {
		m.logger.Info("cancelling running job", "job", id)
	}
	metrics.ObserveJobFinished(job.Status.String(), job.Elapsed())
	return job, nil
}

// Delete removes a finished job.
func (m *Manager) Delete(id string) error {
	return m.store.Delete(id)
}

// ClearFinished removes every finished job.
func (m *Manager) ClearFinished() (int, error) {
	return m.store.ClearFinished()
}

// Recover repairs jobs left over from a previous process.
//
// Jobs caught in a running status are failed as interrupted. Pending jobs are re-admitted in their original order;
// those that no longer fit in the queue are failed.
func (m *Manager) Recover() error {
	running, err := m.store.Running()
	if err != nil {
		return err
	}
	for _, j := range running {
		if _, err := m.store.Update(j.ID, func(j *models.Job, now time.Time) error {
			return j.Fail("interrupted by restart", now)
		}); err != nil {
			return fmt.Errorf("failed to recover job %s: %w", j.ID, err)
		}
		m.logger.Warn("job interrupted by restart", "job", j.ID, "status", j.Status)
	}

	pending, err := m.store.Pending()
	if err != nil {
		return err
	}
	readmitted := 0
	for _, j := range pending {
		if m.queue.admit(j.ID) {
			readmitted++
			continue
		}
		if _, err := m.store.Update(j.ID, func(j *models.Job, now time.Time) error {
			return j.Fail(shared.ErrQueueFull.Error(), now)
		}); err != nil {
			return fmt.Errorf("failed to recover job %s: %w", j.ID, err)
		}
	}

	if len(running) > 0 || len(pending) > 0 {
		m.logger.Info("recovered jobs", "interrupted", len(running), "readmitted", readmitted, "rejected", len(pending)-readmitted)
	}
	return nil
}

// Start recovers leftover jobs and launches the workers.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Recover(); err != nil {
		return err
	}
	m.queue.Start(ctx)
	return nil
}

// Shutdown stops the workers; running jobs are failed as interrupted.
func (m *Manager) Shutdown() {
	m.queue.Shutdown()
}
