package scheduler

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/repositories"
	"github.com/desertthunder/ytlib/internal/services"
	"github.com/desertthunder/ytlib/internal/shared"
)

// Subscriptions is the operator-facing CRUD over saved playlist URLs.
type Subscriptions struct {
	repo    *repositories.SubscriptionRepository
	catalog services.Catalog
	logger  *log.Logger
}

// NewSubscriptions creates the CRUD service. catalog is used to name subscriptions created without one and may be nil.
func NewSubscriptions(repo *repositories.SubscriptionRepository, catalog services.Catalog, logger *log.Logger) *Subscriptions {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Subscriptions{repo: repo, catalog: catalog, logger: logger}
}

func (s *Subscriptions) List() ([]*models.Subscription, error) {
	return s.repo.List(nil)
}

func (s *Subscriptions) Get(id string) (*models.Subscription, error) {
	return s.repo.Get(id)
}

// Create saves a subscription for a playlist or album URL. A duplicate URL is a conflict.
func (s *Subscriptions) Create(ctx context.Context, req models.CreateSubscriptionRequest) (*models.Subscription, error) {
	url := strings.TrimSpace(req.URL)
	kind, err := models.DetectKind(url)
	if err != nil {
		return nil, err
	}
	if kind != models.KindPlaylist && kind != models.KindAlbum {
		return nil, fmt.Errorf("%w: subscriptions need a playlist URL, got a %s", shared.ErrValidation, kind)
	}

	sub := models.NewSubscription(url, strings.TrimSpace(req.Name), req.MaxItems)
	if req.Enabled != nil {
		sub.Enabled = *req.Enabled
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetByURL(url); err == nil {
		return nil, &shared.ConflictError{Err: fmt.Errorf("%w: %s (subscription %s)", shared.ErrDuplicateSource, url, existing.ID)}
	}

	if sub.Name == "" {
		s.describe(ctx, sub)
	}

	if err := s.repo.Create(sub); err != nil {
		return nil, err
	}
	s.logger.Info("subscription created", "id", sub.ID, "name", sub.Name, "url", sub.URL)
	return sub, nil
}

// describe fills the name and thumbnail from the catalog, falling back to the playlist id.
func (s *Subscriptions) describe(ctx context.Context, sub *models.Subscription) {
	sub.Name = models.ExtractPlaylistID(sub.URL)
	if s.catalog == nil {
		return
	}

	item, err := s.catalog.Resolve(ctx, sub.URL)
	if err != nil {
		s.logger.Warn("could not name subscription from catalog", "url", sub.URL, "error", err)
		return
	}
	if item.Title != "" {
		sub.Name = item.Title
	}
	sub.ThumbnailURL = item.ThumbnailURL
}

// Update applies patch to subscription id.
func (s *Subscriptions) Update(id string, patch models.SubscriptionPatch) (*models.Subscription, error) {
	sub, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}

	patch.Apply(sub, time.Now().UTC())
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Delete removes subscription id. Jobs it spawned are kept.
func (s *Subscriptions) Delete(id string) error {
	if err := s.repo.Delete(id); err != nil {
		return err
	}
	s.logger.Info("subscription deleted", "id", id)
	return nil
}
