package formatter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/ytlib/internal/models"
	th "github.com/desertthunder/ytlib/internal/testing"
)

func TestTrackPath(t *testing.T) {
	tests := []struct {
		name     string
		track    models.CatalogTrack
		fallback string
		ext      string
		want     string
	}{
		{
			name:  "full metadata",
			track: models.CatalogTrack{Title: "Song", Artists: []string{"Band"}, Album: "Record", Year: 2020, TrackNumber: 3},
			ext:   "mp3",
			want:  "Band/2020 - Record/03 - Song.mp3",
		},
		{
			name:  "album artist wins",
			track: models.CatalogTrack{Title: "Song", Artists: []string{"Guest"}, AlbumArtist: "Band", Album: "Record", TrackNumber: 1},
			ext:   ".MP3",
			want:  "Band/Record/01 - Song.mp3",
		},
		{
			name:     "missing year and number",
			track:    models.CatalogTrack{Title: "Song", Artists: []string{"Band"}},
			fallback: "Road Trip",
			ext:      "m4a",
			want:     "Band/Road Trip/Song.m4a",
		},
		{
			name:  "no album at all",
			track: models.CatalogTrack{Title: "Song"},
			ext:   "mp3",
			want:  "Unknown Artist/Singles/Song.mp3",
		},
		{
			name:  "unsafe characters",
			track: models.CatalogTrack{Title: "What/Now?", Artists: []string{"AC/DC"}, Album: "Live: 1991", TrackNumber: 12},
			ext:   "mp3",
			want:  "AC_DC/Live_ 1991/12 - What_Now_.mp3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrackPath(tt.track, tt.fallback, tt.ext)
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestM3U(t *testing.T) {
	t.Run("ExportToM3U", func(t *testing.T) {
		data := string(ExportToM3U([]M3UEntry{
			{Duration: 215, Artist: "Band", Title: "Song", Path: "../Band/Record/01 - Song.mp3"},
			{Duration: 0, Artist: "Other", Title: "Unknown Length", Path: "../Other/x.mp3"},
		}))

		if !strings.HasPrefix(data, "#EXTM3U\n") {
			t.Errorf("missing header, got: %s", data)
		}
		if !strings.Contains(data, "#EXTINF:215,Band - Song\n../Band/Record/01 - Song.mp3\n") {
			t.Errorf("missing first entry, got: %s", data)
		}
		if !strings.Contains(data, "#EXTINF:-1,Other - Unknown Length\n") {
			t.Errorf("expected -1 for unknown duration, got: %s", data)
		}
	})

	t.Run("WriteM3U relativizes absolute paths", func(t *testing.T) {
		root := t.TempDir()
		dest := PlaylistPath(filepath.Join(root, "Playlists"), "Road Trip")
		track := filepath.Join(root, "Band", "Record", "01 - Song.mp3")

		if err := WriteM3U(dest, []M3UEntry{{Duration: 10, Artist: "Band", Title: "Song", Path: track}}); err != nil {
			t.Fatalf("WriteM3U failed: %v", err)
		}

		th.AssertFileExists(t, dest)
		content := th.MustReadFile(t, dest)
		if !strings.Contains(content, "../Band/Record/01 - Song.mp3") {
			t.Errorf("expected relative path, got: %s", content)
		}
		if filepath.Base(dest) != "Road Trip.m3u" {
			t.Errorf("unexpected playlist name %s", dest)
		}
	})
}

func TestLyrics(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "01 - Song.mp3")

	t.Run("writes sidecar", func(t *testing.T) {
		path, err := WriteLyrics(audio, "[00:01.00]hello")
		if err != nil {
			t.Fatalf("WriteLyrics failed: %v", err)
		}
		if path != filepath.Join(dir, "01 - Song.lrc") {
			t.Errorf("unexpected sidecar path %s", path)
		}
		if got := th.MustReadFile(t, path); got != "[00:01.00]hello\n" {
			t.Errorf("unexpected content %q", got)
		}
	})

	t.Run("empty lyrics write nothing", func(t *testing.T) {
		other := filepath.Join(dir, "02 - Other.mp3")
		path, err := WriteLyrics(other, "  ")
		if err != nil || path != "" {
			t.Errorf("expected no sidecar, got %q, %v", path, err)
		}
		th.AssertNoFile(t, LyricsPath(other))
	})
}

func TestExporters(t *testing.T) {
	records := []*models.TrackRecord{
		{Key: "k1", Path: "Band/Record/01 - Song.mp3", AlbumKey: "band|record", ArtistKey: "band", Fingerprint: "sha256:aa", CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{Key: "k2", Path: "Band/Record/02 - Other.mp3", Fingerprint: "sha256:bb"},
	}

	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(records)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "Key,Path,Album,Artist,Fingerprint,Recorded") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "k1,Band/Record/01 - Song.mp3,band|record,band,sha256:aa,2024-01-02T03:04:05Z") {
			t.Errorf("CSV missing first record, got: %s", output)
		}
		if lines := strings.Count(output, "\n"); lines != 3 {
			t.Errorf("expected 3 lines, got %d", lines)
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		output := string(ExportToText(records))
		if !strings.Contains(output, "Tracks: 2") || !strings.Contains(output, "2. Band/Record/02 - Other.mp3") {
			t.Errorf("unexpected text export: %s", output)
		}
	})
}

func TestFormatDuration(t *testing.T) {
	cases := map[int]string{0: "--:--", 5: "0:05", 215: "3:35", 3725: "1:02:05"}
	for in, want := range cases {
		if got := FormatDuration(in); got != want {
			t.Errorf("FormatDuration(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestDownloadImage(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("image-bytes"))
		}))
		defer server.Close()

		dest := filepath.Join(t.TempDir(), "cover.jpg")
		if err := SaveImage(context.Background(), server.URL, dest); err != nil {
			t.Fatalf("SaveImage failed: %v", err)
		}
		data, _ := os.ReadFile(dest)
		if string(data) != "image-bytes" {
			t.Errorf("unexpected image data %q", data)
		}
	})

	t.Run("Empty URL", func(t *testing.T) {
		if _, err := DownloadImage(context.Background(), ""); err == nil {
			t.Error("expected error for empty URL")
		}
	})

	t.Run("Non-OK Status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := DownloadImage(context.Background(), server.URL)
		if err == nil || !strings.Contains(err.Error(), "status 404") {
			t.Errorf("expected status error, got %v", err)
		}
	})
}
