// package formatter renders library artifacts: canonical file paths, M3U playlists, lyrics sidecars and index exports
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
)

const maxImageBytes = 20 << 20

// TrackPath returns the canonical slash-separated path of a track relative to the library root:
//
//	Artist/Year - Album/NN - Title.ext
//
// Year and track number are omitted when unknown. Tracks without an album use fallbackAlbum.
func TrackPath(t models.CatalogTrack, fallbackAlbum, ext string) string {
	album := t.Album
	if album == "" {
		album = fallbackAlbum
	}
	if album == "" {
		album = "Singles"
	}

	albumDir := shared.SanitizeFilename(album)
	if t.Year > 0 {
		albumDir = shared.SanitizeFilename(fmt.Sprintf("%d - %s", t.Year, album))
	}

	name := t.Title
	if t.TrackNumber > 0 {
		name = fmt.Sprintf("%02d - %s", t.TrackNumber, t.Title)
	}

	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return path.Join(
		shared.SanitizeFilename(t.LibraryArtist()),
		albumDir,
		shared.SanitizeFilename(name)+"."+ext,
	)
}

// PlaylistPath returns the M3U path for a playlist title under dir.
func PlaylistPath(dir, title string) string {
	return filepath.Join(dir, shared.SanitizeFilename(title)+".m3u")
}

// M3UEntry is one playlist line. Path is relative to the playlist file.
type M3UEntry struct {
	Duration int // seconds; -1 when unknown
	Artist   string
	Title    string
	Path     string
}

// ExportToM3U renders an extended M3U playlist.
func ExportToM3U(entries []M3UEntry) []byte {
	var buf bytes.Buffer
	buf.WriteString("#EXTM3U\n")
	for _, e := range entries {
		d := e.Duration
		if d <= 0 {
			d = -1
		}
		fmt.Fprintf(&buf, "#EXTINF:%d,%s - %s\n", d, e.Artist, e.Title)
		buf.WriteString(filepath.ToSlash(e.Path))
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

// WriteM3U writes entries to dest, creating its directory. Entries whose paths are absolute are made relative to dest.
func WriteM3U(dest string, entries []M3UEntry) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create playlist directory: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve playlist directory: %w", err)
	}

	rel := make([]M3UEntry, len(entries))
	for i, e := range entries {
		if filepath.IsAbs(e.Path) {
			r, err := filepath.Rel(absDir, e.Path)
			if err != nil {
				return fmt.Errorf("failed to relativize %s: %w", e.Path, err)
			}
			e.Path = r
		}
		rel[i] = e
	}

	if err := os.WriteFile(dest, ExportToM3U(rel), 0644); err != nil {
		return fmt.Errorf("failed to write playlist: %w", err)
	}
	return nil
}

// LyricsPath returns the .lrc sidecar path for an audio file.
func LyricsPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".lrc"
}

// WriteLyrics writes lyrics next to audioPath and returns the sidecar path. Empty lyrics write nothing.
func WriteLyrics(audioPath, lyrics string) (string, error) {
	if strings.TrimSpace(lyrics) == "" {
		return "", nil
	}

	dest := LyricsPath(audioPath)
	if !strings.HasSuffix(lyrics, "\n") {
		lyrics += "\n"
	}
	if err := os.WriteFile(dest, []byte(lyrics), 0644); err != nil {
		return "", fmt.Errorf("failed to write lyrics: %w", err)
	}
	return dest, nil
}

// ExportToCSV converts index records to CSV with columns: Key, Path, Album, Artist, Fingerprint, Recorded
func ExportToCSV(records []*models.TrackRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Key", "Path", "Album", "Artist", "Fingerprint", "Recorded"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range records {
		record := []string{
			r.Key,
			r.Path,
			r.AlbumKey,
			r.ArtistKey,
			r.Fingerprint,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToText lists index records one path per line.
func ExportToText(records []*models.TrackRecord) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(records))
	for i, r := range records {
		fmt.Fprintf(&buf, "%d. %s\n", i+1, r.Path)
	}
	return buf.Bytes()
}

// FormatDuration renders seconds as m:ss or h:mm:ss.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "--:--"
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return strconv.Itoa(m) + ":" + fmt.Sprintf("%02d", s)
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// SaveImage downloads url into dest.
func SaveImage(ctx context.Context, url, dest string) error {
	data, err := DownloadImage(ctx, url)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
