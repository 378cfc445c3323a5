// package services defines the collaborators the pipeline depends on and their production implementations.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
)

// Catalog resolves a source URL into authoritative metadata and an ordered track list.
type Catalog interface {
	Resolve(ctx context.Context, url string) (*models.CatalogItem, error)
}

// Retriever downloads one track's audio, extracted as format, and its thumbnail into dir.
// An empty format selects the retriever's default.
//
// Errors wrapping [shared.ErrTransient] may be retried.
type Retriever interface {
	Fetch(ctx context.Context, track models.CatalogTrack, dir, format string) (*Retrieved, error)
}

// Tagger writes metadata and cover art into an audio file.
//
// [shared.ErrUnsupportedFormat] is permanent for the file; errors wrapping [shared.ErrTransient] may be retried.
type Tagger interface {
	Tag(ctx context.Context, file string, meta TrackMeta, coverPath string) error
}

// Retrieved names the files a [Retriever] produced. ThumbnailFile is empty when none was written.
type Retrieved struct {
	AudioFile     string
	ThumbnailFile string
}

// TrackMeta is the tag set written into an organized file.
type TrackMeta struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Year        int
	TrackNumber int
}

// MetaFor builds tags from catalog metadata. fallbackAlbum is used when the track carries no album.
func MetaFor(t models.CatalogTrack, fallbackAlbum string) TrackMeta {
	album := t.Album
	if album == "" {
		album = fallbackAlbum
	}
	return TrackMeta{
		Title:       t.Title,
		Artist:      t.ArtistCredit(),
		Album:       album,
		AlbumArtist: t.LibraryArtist(),
		Year:        t.Year,
		TrackNumber: t.TrackNumber,
	}
}

// Transient marks err as retryable. Context errors are returned unchanged.
func Transient(err error) error {
	if err == nil || errors.Is(err, shared.ErrTransient) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", shared.ErrTransient, err)
}

// IsTransient reports whether err may be retried.
func IsTransient(err error) bool {
	return errors.Is(err, shared.ErrTransient)
}
