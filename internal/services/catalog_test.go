package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/ytlib/internal/cache"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
)

const playlistURL = "https://music.youtube.com/playlist?list=PLtest"

func catalogServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	available := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.URL.Path != "/resolve" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("url") != playlistURL {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"detail": "not found"})
			return
		}

		json.NewEncoder(w).Encode(CatalogResponse{
			ID:    "PLtest",
			Title: "Road Trip",
			Thumbnails: []CatalogImage{
				{URL: "small", Width: 60, Height: 60},
				{URL: "large", Width: 544, Height: 544},
			},
			Tracks: []CatalogTrackResponse{
				{
					VideoID:     "v1",
					Title:       "First",
					Artists:     []CatalogArtist{{Name: "Band"}, {Name: "Guest"}},
					Album:       &catalogAlbum{Name: "Record"},
					Year:        2019,
					TrackNumber: 4,
					DurationSec: 200,
				},
				{VideoID: "v2", Title: "Gone", IsAvailable: &available},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPCatalog(t *testing.T) {
	t.Run("Resolve maps the response", func(t *testing.T) {
		server := catalogServer(t, nil)
		c := NewHTTPCatalog(CatalogOptions{BaseURL: server.URL})

		item, err := c.Resolve(context.Background(), playlistURL)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if item.Kind != models.KindPlaylist {
			t.Errorf("expected playlist kind from URL, got %s", item.Kind)
		}
		if item.ThumbnailURL != "large" {
			t.Errorf("expected largest thumbnail, got %s", item.ThumbnailURL)
		}
		if len(item.Tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(item.Tracks))
		}

		first := item.Tracks[0]
		if first.Album != "Record" || first.Year != 2019 || first.TrackNumber != 4 || first.Duration != 200 {
			t.Errorf("unexpected track %+v", first)
		}
		if first.ArtistCredit() != "Band, Guest" {
			t.Errorf("unexpected artist credit %s", first.ArtistCredit())
		}
		if first.ThumbnailURL != "large" {
			t.Errorf("expected item thumbnail fallback, got %s", first.ThumbnailURL)
		}
		if !item.Tracks[1].Unavailable {
			t.Error("expected second track to be unavailable")
		}
		if len(item.Available()) != 1 {
			t.Errorf("expected one available track, got %d", len(item.Available()))
		}
	})

	t.Run("Error detail is surfaced", func(t *testing.T) {
		server := catalogServer(t, nil)
		c := NewHTTPCatalog(CatalogOptions{BaseURL: server.URL})

		_, err := c.Resolve(context.Background(), "https://music.youtube.com/playlist?list=PLother")
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected API request error, got %v", err)
		}
	})

	t.Run("Rate limit honours context", func(t *testing.T) {
		server := catalogServer(t, nil)
		c := NewHTTPCatalog(CatalogOptions{BaseURL: server.URL, RateLimit: 0.01})

		if _, err := c.Resolve(context.Background(), playlistURL); err != nil {
			t.Fatalf("first call should pass the limiter: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := c.Resolve(ctx, playlistURL); err == nil {
			t.Error("expected the limiter to refuse a second call within the deadline")
		}
	})
}

func TestCachedCatalog(t *testing.T) {
	var hits atomic.Int32
	server := catalogServer(t, &hits)
	c := NewCachedCatalog(
		NewHTTPCatalog(CatalogOptions{BaseURL: server.URL}),
		cache.New[*models.CatalogItem](8, time.Minute),
	)

	first, err := c.Resolve(context.Background(), playlistURL)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	first.Tracks = first.Tracks[:1]

	second, err := c.Resolve(context.Background(), playlistURL)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected one upstream call, got %d", hits.Load())
	}
	if len(second.Tracks) != 2 {
		t.Error("callers must not be able to modify the cached item")
	}

	c.Invalidate(playlistURL)
	if _, err := c.Resolve(context.Background(), playlistURL); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("expected a fresh upstream call after invalidation, got %d", hits.Load())
	}
}

func TestMetaFor(t *testing.T) {
	track := models.CatalogTrack{Title: "T", Artists: []string{"A", "B"}, Year: 2001}

	meta := MetaFor(track, "Playlist Title")
	if meta.Album != "Playlist Title" {
		t.Errorf("expected album fallback, got %s", meta.Album)
	}
	if meta.Artist != "A, B" || meta.AlbumArtist != "A" {
		t.Errorf("unexpected artists %+v", meta)
	}

	track.Album = "Real"
	if MetaFor(track, "Playlist Title").Album != "Real" {
		t.Error("catalog album should win over the fallback")
	}
}

func TestTransient(t *testing.T) {
	base := errors.New("socket closed")

	if !IsTransient(Transient(base)) {
		t.Error("expected wrapped error to be transient")
	}
	if !errors.Is(Transient(base), base) {
		t.Error("expected the original error to stay reachable")
	}
	if IsTransient(Transient(context.Canceled)) {
		t.Error("context errors are never transient")
	}
	if Transient(nil) != nil {
		t.Error("expected nil to stay nil")
	}
}
