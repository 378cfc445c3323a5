package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytlib/internal/metrics"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/desertthunder/ytlib/internal/tasks"
)

// Runner executes one job. It is satisfied by [tasks.Pipeline].
type Runner interface {
	Run(ctx context.Context, job *models.Job, tracker tasks.Tracker) (models.JobResult, error)
}

// QueueOpts configures a [Queue].
type QueueOpts struct {
	Workers    int           // concurrent jobs (default: 2)
	Capacity   int           // admitted jobs waiting for a worker (default: 50)
	JobTimeout time.Duration // wall-clock limit per job; zero disables it
}

// Queue admits jobs first-come-first-served and runs them on a fixed pool of workers.
type Queue struct {
	store  *Store
	runner Runner
	opts   QueueOpts
	logger *log.Logger

	pending chan string

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
	ctx     context.Context
	stop    context.CancelCauseFunc
	wg      sync.WaitGroup
}

// NewQueue creates a queue. Call [Queue.Start] to launch the workers.
func NewQueue(store *Store, runner Runner, opts QueueOpts, logger *log.Logger) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 50
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Queue{
		store:   store,
		runner:  runner,
		opts:    opts,
		logger:  logger,
		pending: make(chan string, opts.Capacity),
		running: make(map[string]context.CancelCauseFunc),
	}
}

// Submit persists job and admits it, or rejects it with [shared.ErrQueueFull] without persisting it.
func (q *Queue) Submit(job *models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) >= cap(q.pending) {
		return &shared.ConflictError{Err: fmt.Errorf("%w (%d waiting)", shared.ErrQueueFull, len(q.pending))}
	}
	if err := q.store.Create(job); err != nil {
		return err
	}

	q.pending <- job.ID
	metrics.SetQueueDepth(len(q.pending))
	return nil
}

// admit re-queues a job that is already persisted.
func (q *Queue) admit(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case q.pending <- id:
		metrics.SetQueueDepth(len(q.pending))
		return true
	default:
		return false
	}
}

// Depth returns the number of admitted jobs waiting for a worker.
func (q *Queue) Depth() int {
	return len(q.pending)
}

// Start launches the workers. They stop when ctx ends or [Queue.Shutdown] is called.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	q.ctx, q.stop = context.WithCancelCause(ctx)
	q.mu.Unlock()

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
}

// Shutdown stops the workers, interrupting running jobs, and waits for them to finish.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	stop := q.stop
	q.mu.Unlock()

	if stop != nil {
		stop(shared.ErrShuttingDown)
	}
	q.wg.Wait()
}

// Cancel stops a running job. It reports whether the job was running on this queue.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	cancel, ok := q.running[id]
	q.mu.Unlock()

	if ok {
		cancel(shared.ErrCancelRequested)
	}
	return ok
}

// worker is a goroutine that executes jobs from the pending channel.
func (q *Queue) worker(n int) {
	defer q.wg.Done()
	logger := shared.WithLogger(q.logger, "worker", n)

	for {
		select {
		case <-q.ctx.Done():
			return
		case id := <-q.pending:
			metrics.SetQueueDepth(len(q.pending))
			if q.ctx.Err() != nil {
				// Left pending; recovered on the next start.
				return
			}
			q.execute(logger, id)
		}
	}
}

func (q *Queue) execute(logger *log.Logger, id string) {
	job, err := q.store.Get(id)
	if err != nil {
		logger.Error("admitted job vanished", "job", id, "error", err)
		return
	}
	if job.Status != models.StatusPending {
		logger.Debug("skipping job that left pending", "job", id, "status", job.Status)
		return
	}

	ctx, cancel := context.WithCancelCause(q.ctx)
	defer cancel(nil)
	if q.opts.JobTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeoutCause(ctx, q.opts.JobTimeout, shared.ErrTimeout)
		defer cancelTimeout()
	}

	q.mu.Lock()
	q.running[id] = cancel
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		delete(q.running, id)
		q.mu.Unlock()
	}()

	logger.Info("job started", "job", id, "kind", job.Kind, "url", job.URL)

	result, runErr := q.runner.Run(ctx, job, &tracker{store: q.store, id: id})

	final, err := q.store.Update(id, func(j *models.Job, now time.Time) error {
		j.Result = result
		return settle(ctx, j, runErr, now)
	})
	if errors.Is(err, shared.ErrJobFinished) {
		logger.Info("job already finished", "job", id, "status", final.Status)
		return
	}
	if err != nil {
		logger.Error("failed to record job outcome", "job", id, "error", err)
		return
	}

	metrics.ObserveJobFinished(final.Status.String(), final.Elapsed())
	logger.Info("job finished", "job", id, "status", final.Status,
		"succeeded", result.Succeeded, "skipped", result.Skipped, "failed", result.Failed, "error", final.Error)
}

// settle picks the terminal status for a run.
func settle(ctx context.Context, j *models.Job, runErr error, now time.Time) error {
	if runErr == nil {
		return j.Transition(models.StatusCompleted, now)
	}

	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		switch {
		case errors.Is(cause, shared.ErrCancelRequested):
			return j.Transition(models.StatusCancelled, now)
		case errors.Is(cause, shared.ErrTimeout):
			return j.Fail("timed out", now)
		default:
			return j.Fail("interrupted", now)
		}
	}

	return j.Fail(runErr.Error(), now)
}

// tracker reports pipeline progress into the store.
type tracker struct {
	store *Store
	id    string
}

func (t *tracker) Advance(next models.JobStatus) error {
	_, err := t.store.Update(t.id, func(j *models.Job, now time.Time) error {
		return j.Transition(next, now)
	})
	return err
}

func (t *tracker) Progress(percent int) {
	t.store.Update(t.id, func(j *models.Job, now time.Time) error {
		return j.SetProgress(percent, now)
	})
}
