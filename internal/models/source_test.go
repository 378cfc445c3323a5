package models

import (
	"errors"
	"testing"

	"github.com/desertthunder/ytlib/internal/shared"
)

func TestExtractPlaylistID(t *testing.T) {
	tc := []struct {
		url  string
		want string
	}{
		{"https://music.youtube.com/playlist?list=PLxxx123", "PLxxx123"},
		{"https://music.youtube.com/playlist?list=OLAK5uy_abc123", "OLAK5uy_abc123"},
		{"https://music.youtube.com/playlist?list=PLxxx&si=abc123", "PLxxx"},
		{"https://music.youtube.com/watch?v=abc123", ""},
	}

	for _, tt := range tc {
		if got := ExtractPlaylistID(tt.url); got != tt.want {
			t.Errorf("ExtractPlaylistID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestDetectKind(t *testing.T) {
	tc := []struct {
		name string
		url  string
		want JobKind
	}{
		{"album prefix", "https://music.youtube.com/playlist?list=OLAK5uy_abc123def456", KindAlbum},
		{"playlist", "https://music.youtube.com/playlist?list=PLxxx123", KindPlaylist},
		{"radio mix", "https://music.youtube.com/playlist?list=RDTMAK5uy_xxx", KindPlaylist},
		{"unknown prefix", "https://music.youtube.com/playlist?list=FUTURE_PREFIX_xxx", KindPlaylist},
		{"watch", "https://music.youtube.com/watch?v=abc123", KindTrack},
		{"short link", "https://youtu.be/abc123", KindTrack},
		{"channel", "https://music.youtube.com/channel/UCabc", KindDiscography},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectKind(tt.url)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectKind() = %s, want %s", got, tt.want)
			}
		})
	}

	for _, bad := range []string{"https://example.com/not-youtube", "ftp://music.youtube.com/playlist?list=PL1", "https://music.youtube.com/", "::"} {
		if _, err := DetectKind(bad); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("DetectKind(%q) expected validation error, got %v", bad, err)
		}
	}
}

func TestResolveKind(t *testing.T) {
	album := "https://music.youtube.com/playlist?list=OLAK5uy_abc"

	if kind, err := ResolveKind(album, ""); err != nil || kind != KindAlbum {
		t.Errorf("expected inferred album, got %s (%v)", kind, err)
	}

	if kind, err := ResolveKind(album, KindPlaylist); err != nil || kind != KindPlaylist {
		t.Errorf("album URL may run as playlist, got %s (%v)", kind, err)
	}

	if _, err := ResolveKind("https://music.youtube.com/watch?v=abc", KindPlaylist); !errors.Is(err, shared.ErrValidation) {
		t.Errorf("expected mismatch validation error, got %v", err)
	}
}
