package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/ytlib/internal/shared"
)

// Subscription is a saved playlist URL the scheduler re-syncs on an interval.
//
// LastSyncedAt and LastJobID are written by the scheduler when it enqueues a job, not when that job finishes.
type Subscription struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Name         string     `json:"name"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	Enabled      bool       `json:"enabled"`
	MaxItems     int        `json:"max_items,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	LastJobID    string     `json:"last_job_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewSubscription creates an enabled subscription for url.
func NewSubscription(url, name string, maxItems int) *Subscription {
	now := time.Now().UTC()
	return &Subscription{
		URL:       url,
		Name:      name,
		Enabled:   true,
		MaxItems:  maxItems,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the subscription's fields.
func (s *Subscription) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("%w: subscription url is required", shared.ErrValidation)
	}
	if s.MaxItems < 0 {
		return fmt.Errorf("%w: max_items must not be negative", shared.ErrValidation)
	}
	return nil
}

// SubscriptionPatch holds the operator-editable fields; nil fields are left unchanged.
type SubscriptionPatch struct {
	Name         *string `json:"name,omitempty"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	Enabled      *bool   `json:"enabled,omitempty"`
	MaxItems     *int    `json:"max_items,omitempty" validate:"omitempty,gte=0"`
}

// Apply copies the set fields of p onto s.
func (p SubscriptionPatch) Apply(s *Subscription, now time.Time) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.ThumbnailURL != nil {
		s.ThumbnailURL = *p.ThumbnailURL
	}
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.MaxItems != nil {
		s.MaxItems = *p.MaxItems
	}
	s.UpdatedAt = now
}
