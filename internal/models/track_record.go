package models

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/desertthunder/ytlib/internal/shared"
)

// TrackRecord is one dedup index entry: a catalog track and the canonical file that holds it.
//
// Records are append-only. Path is relative to the library root.
type TrackRecord struct {
	ID          int64     `json:"-"`
	Key         string    `json:"key"`
	Path        string    `json:"path"`
	AlbumKey    string    `json:"album_key,omitempty"`
	ArtistKey   string    `json:"artist_key,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the record's fields.
func (r *TrackRecord) Validate() error {
	if r.Key == "" {
		return fmt.Errorf("%w: track record key is required", shared.ErrValidation)
	}
	if r.Path == "" || filepath.IsAbs(r.Path) {
		return fmt.Errorf("%w: track record path must be relative to the library root", shared.ErrValidation)
	}
	if r.Fingerprint == "" {
		return fmt.Errorf("%w: track record fingerprint is required", shared.ErrValidation)
	}
	return nil
}
