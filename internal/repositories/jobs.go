package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
)

const jobColumns = `id, sequence, kind, url, max_items, audio_format, subscription_id, status, progress, error, result,
	created_at, updated_at, started_at, finished_at`

// JobRepository implements models.Repository[*models.Job].
//
// Jobs are hard-deleted; the store only allows deleting finished jobs.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new JobRepository with the given database connection
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new [models.Job] with a generated ID (unless already set) and the next admission sequence
func (r *JobRepository) Create(job *models.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "jobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if job.ID == "" {
		job.ID = shared.GenerateID()
	}
	job.Sequence = sequence

	result, err := json.Marshal(job.Result)
	if err != nil {
		return fmt.Errorf("failed to encode job result: %w", err)
	}

	query := `INSERT INTO jobs (` + jobColumns + `) VALUES (` + placeholders(15) + `)`

	_, err = r.db.Exec(query,
		job.ID,
		job.Sequence,
		string(job.Kind),
		job.URL,
		job.MaxItems,
		job.AudioFormat,
		nullString(job.SubscriptionID),
		job.Status,
		job.Progress,
		job.Error,
		string(result),
		job.CreatedAt,
		job.UpdatedAt,
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: job %s already exists", shared.ErrConflict, job.ID)
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// Get retrieves a job by ID
func (r *JobRepository) Get(id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`
	return scanJob(r.db.QueryRow(query, id))
}

// Update writes the mutable job fields: status, progress, error, result and timestamps
func (r *JobRepository) Update(job *models.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	result, err := json.Marshal(job.Result)
	if err != nil {
		return fmt.Errorf("failed to encode job result: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = ?, progress = ?, error = ?, result = ?, updated_at = ?, started_at = ?, finished_at = ?
		WHERE id = ?
	`

	res, err := r.db.Exec(query,
		job.Status,
		job.Progress,
		job.Error,
		string(result),
		job.UpdatedAt,
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: job %s", shared.ErrNotFound, job.ID)
	}

	return nil
}

// Delete removes a job by ID
func (r *JobRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: job %s", shared.ErrNotFound, id)
	}

	return nil
}

// List retrieves jobs in admission order.
//
// Supported criteria: "active" (bool), "status" ([models.JobStatus]), "subscription_id" (string), "limit" (int).
func (r *JobRepository) List(criteria map[string]any) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1 = 1`
	args := []any{}

	if active, ok := criteria["active"].(bool); ok {
		statuses := models.ActiveStatuses()
		clause := " AND status IN (" + placeholders(len(statuses)) + ")"
		if !active {
			clause = " AND status NOT IN (" + placeholders(len(statuses)) + ")"
		}
		query += clause
		for _, s := range statuses {
			args = append(args, s)
		}
	}

	if status, ok := criteria["status"].(models.JobStatus); ok {
		query += " AND status = ?"
		args = append(args, status)
	}

	if subscriptionID, ok := criteria["subscription_id"].(string); ok && subscriptionID != "" {
		query += " AND subscription_id = ?"
		args = append(args, subscriptionID)
	}

	query += " ORDER BY sequence ASC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return jobs, nil
}

// ActiveForSubscription returns the active job spawned by the subscription, or an error wrapping [shared.ErrNotFound].
func (r *JobRepository) ActiveForSubscription(subscriptionID string) (*models.Job, error) {
	jobs, err := r.List(map[string]any{"active": true, "subscription_id": subscriptionID, "limit": 1})
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: no active job for subscription %s", shared.ErrNotFound, subscriptionID)
	}
	return jobs[0], nil
}

// DeleteFinished removes every job in a terminal status and returns how many were removed.
func (r *JobRepository) DeleteFinished() (int, error) {
	statuses := models.ActiveStatuses()
	args := make([]any, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, s)
	}

	res, err := r.db.Exec(`DELETE FROM jobs WHERE status NOT IN (`+placeholders(len(statuses))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished jobs: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob scans a [sql.Row] or the current row of [sql.Rows] into a [models.Job]
func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job            models.Job
		kind           string
		subscriptionID sql.NullString
		result         string
		startedAt      sql.NullTime
		finishedAt     sql.NullTime
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(
		&job.ID, &job.Sequence, &kind, &job.URL, &job.MaxItems, &job.AudioFormat, &subscriptionID,
		&job.Status, &job.Progress, &job.Error, &result, &createdAt, &updatedAt, &startedAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if err := json.Unmarshal([]byte(result), &job.Result); err != nil {
		return nil, fmt.Errorf("failed to decode job result: %w", err)
	}

	job.Kind = models.JobKind(kind)
	job.SubscriptionID = subscriptionID.String
	job.CreatedAt = createdAt
	job.UpdatedAt = updatedAt
	job.StartedAt = timePtr(startedAt)
	job.FinishedAt = timePtr(finishedAt)

	return &job, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
