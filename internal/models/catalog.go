package models

import (
	"strings"
)

// CatalogTrack is authoritative track metadata resolved by the catalog.
type CatalogTrack struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Artists      []string `json:"artists"`
	Album        string   `json:"album,omitempty"`
	AlbumArtist  string   `json:"album_artist,omitempty"`
	Year         int      `json:"year,omitempty"`
	TrackNumber  int      `json:"track_number,omitempty"`
	Duration     int      `json:"duration,omitempty"` // seconds
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	Lyrics       string   `json:"lyrics,omitempty"`
	Unavailable  bool     `json:"unavailable,omitempty"`
}

// PrimaryArtist returns the first credited artist.
func (t CatalogTrack) PrimaryArtist() string {
	for _, a := range t.Artists {
		if a = strings.TrimSpace(a); a != "" {
			return a
		}
	}
	return "Unknown Artist"
}

// ArtistCredit joins all credited artists for tags and playlist entries.
func (t CatalogTrack) ArtistCredit() string {
	if len(t.Artists) == 0 {
		return t.PrimaryArtist()
	}
	return strings.Join(t.Artists, ", ")
}

// LibraryArtist is the artist directory the track is filed under: the album artist when known.
func (t CatalogTrack) LibraryArtist() string {
	if a := strings.TrimSpace(t.AlbumArtist); a != "" {
		return a
	}
	return t.PrimaryArtist()
}

// ArtistKey is the normalized artist identity stored on dedup records.
func (t CatalogTrack) ArtistKey() string {
	return normalizeKey(t.LibraryArtist())
}

// AlbumKey is the normalized album identity stored on dedup records.
func (t CatalogTrack) AlbumKey() string {
	if t.Album == "" {
		return ""
	}
	return normalizeKey(t.LibraryArtist()) + "|" + normalizeKey(t.Album)
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// CatalogItem is a resolved URL with its ordered tracks.
type CatalogItem struct {
	ID           string         `json:"id"`
	Kind         JobKind        `json:"kind"`
	Title        string         `json:"title"`
	Artist       string         `json:"artist,omitempty"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
	Tracks       []CatalogTrack `json:"tracks"`
}

// Available returns the tracks not marked unavailable, preserving order.
func (c *CatalogItem) Available() []CatalogTrack {
	tracks := make([]CatalogTrack, 0, len(c.Tracks))
	for _, t := range c.Tracks {
		if !t.Unavailable {
			tracks = append(tracks, t)
		}
	}
	return tracks
}
