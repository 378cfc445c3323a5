package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/desertthunder/ytlib/internal/shared"
)

// AlbumPlaylistPrefix marks playlist ids that the catalog serves as albums.
const AlbumPlaylistPrefix = "OLAK5uy_"

var supportedHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// ParseSourceURL checks that raw is an http(s) URL on a supported catalog host.
func ParseSourceURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUnsupportedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", shared.ErrUnsupportedURL, u.Scheme)
	}
	if !supportedHosts[strings.ToLower(u.Hostname())] {
		return nil, fmt.Errorf("%w: host %q", shared.ErrUnsupportedURL, u.Hostname())
	}
	return u, nil
}

// ExtractPlaylistID returns the list= parameter of raw, or "" if there is none.
func ExtractPlaylistID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Query().Get("list")
}

// DetectKind infers the job kind from a source URL.
//
//   - list=OLAK5uy_... is an album
//   - any other list= is a playlist
//   - /channel/<id> or /browse/UC... is a discography
//   - watch?v=<id> and youtu.be/<id> are single tracks
func DetectKind(raw string) (JobKind, error) {
	u, err := ParseSourceURL(raw)
	if err != nil {
		return "", err
	}

	if list := u.Query().Get("list"); list != "" {
		if strings.HasPrefix(list, AlbumPlaylistPrefix) {
			return KindAlbum, nil
		}
		return KindPlaylist, nil
	}

	path := strings.Trim(u.Path, "/")
	switch {
	case strings.HasPrefix(path, "channel/") && len(path) > len("channel/"):
		return KindDiscography, nil
	case strings.HasPrefix(path, "browse/UC"):
		return KindDiscography, nil
	case path == "watch" && u.Query().Get("v") != "":
		return KindTrack, nil
	case strings.EqualFold(u.Hostname(), "youtu.be") && path != "":
		return KindTrack, nil
	}

	return "", fmt.Errorf("%w: cannot determine content type of %s", shared.ErrUnsupportedURL, raw)
}

// ResolveKind validates raw and checks that an explicit kind agrees with it.
//
// An empty requested kind is inferred. Album URLs may be submitted as playlists, since an album is an ordered track list.
func ResolveKind(raw string, requested JobKind) (JobKind, error) {
	detected, err := DetectKind(raw)
	if err != nil {
		return "", err
	}
	if requested == "" || requested == detected {
		return detected, nil
	}
	if !requested.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", shared.ErrValidation, requested)
	}
	if requested == KindPlaylist && detected == KindAlbum {
		return requested, nil
	}
	return "", fmt.Errorf("%w: %s URL submitted as %s", shared.ErrValidation, detected, requested)
}
