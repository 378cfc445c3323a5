package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
)

const subscriptionColumns = `id, url, name, thumbnail_url, enabled, max_items, last_synced_at, last_job_id, created_at, updated_at`

// SubscriptionRepository implements models.Repository[*models.Subscription].
//
// URLs are unique; creating a second subscription for the same URL is a conflict.
type SubscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository with the given database connection
func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create inserts a new [models.Subscription] with a generated ID
func (r *SubscriptionRepository) Create(sub *models.Subscription) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sub.ID = shared.GenerateID()

	query := `INSERT INTO subscriptions (` + subscriptionColumns + `) VALUES (` + placeholders(10) + `)`
	_, err := r.db.Exec(query,
		sub.ID,
		sub.URL,
		sub.Name,
		sub.ThumbnailURL,
		sub.Enabled,
		sub.MaxItems,
		nullTime(sub.LastSyncedAt),
		sub.LastJobID,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &shared.ConflictError{Err: fmt.Errorf("%w: %s", shared.ErrDuplicateSource, sub.URL)}
		}
		return fmt.Errorf("failed to insert subscription: %w", err)
	}

	return nil
}

// Get retrieves a subscription by ID
func (r *SubscriptionRepository) Get(id string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = ?`
	return scanSubscription(r.db.QueryRow(query, id))
}

// GetByURL retrieves a subscription by its source URL
func (r *SubscriptionRepository) GetByURL(url string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE url = ?`
	return scanSubscription(r.db.QueryRow(query, url))
}

// Update writes the operator-editable fields of a subscription
func (r *SubscriptionRepository) Update(sub *models.Subscription) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE subscriptions
		SET name = ?, thumbnail_url = ?, enabled = ?, max_items = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.Exec(query, sub.Name, sub.ThumbnailURL, sub.Enabled, sub.MaxItems, sub.UpdatedAt, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	return requireAffected(res, "subscription", sub.ID)
}

// RecordSync stores the scheduler's bookkeeping for a newly enqueued job
func (r *SubscriptionRepository) RecordSync(id, jobID string, at time.Time) error {
	query := `
		UPDATE subscriptions
		SET last_job_id = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.Exec(query, jobID, at, at, id)
	if err != nil {
		return fmt.Errorf("failed to record subscription sync: %w", err)
	}

	return requireAffected(res, "subscription", id)
}

// Delete removes a subscription by ID. Jobs it spawned keep their subscription_id.
func (r *SubscriptionRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	return requireAffected(res, "subscription", id)
}

// List retrieves subscriptions ordered by creation time.
//
// Supported criteria: "enabled" (bool).
func (r *SubscriptionRepository) List(criteria map[string]any) ([]*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE 1 = 1`
	args := []any{}

	if enabled, ok := criteria["enabled"].(bool); ok {
		query += " AND enabled = ?"
		args = append(args, enabled)
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return subs, nil
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub          models.Subscription
		lastSyncedAt sql.NullTime
	)

	err := row.Scan(
		&sub.ID, &sub.URL, &sub.Name, &sub.ThumbnailURL, &sub.Enabled, &sub.MaxItems,
		&lastSyncedAt, &sub.LastJobID, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: subscription", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}

	sub.LastSyncedAt = timePtr(lastSyncedAt)
	return &sub, nil
}

func requireAffected(res sql.Result, entity, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %s", shared.ErrNotFound, entity, id)
	}
	return nil
}
