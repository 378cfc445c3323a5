package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"
	"github.com/desertthunder/ytlib/internal/shared"
	tu "github.com/desertthunder/ytlib/internal/testing"
)

func TestFindRetrieved(t *testing.T) {
	t.Run("audio and thumbnail", func(t *testing.T) {
		dir := t.TempDir()
		tu.MustWriteFile(t, filepath.Join(dir, "abc.mp3"), "audio")
		tu.MustWriteFile(t, filepath.Join(dir, "abc.webp"), "img")
		tu.MustWriteFile(t, filepath.Join(dir, "abc.jpg"), "img")
		tu.MustWriteFile(t, filepath.Join(dir, "abc.mp3.part"), "partial")
		tu.MustWriteFile(t, filepath.Join(dir, "other.mp3"), "audio")

		got, err := findRetrieved(dir, "abc", "mp3")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if filepath.Base(got.AudioFile) != "abc.mp3" {
			t.Errorf("unexpected audio file %s", got.AudioFile)
		}
		if filepath.Base(got.ThumbnailFile) != "abc.jpg" {
			t.Errorf("expected jpg thumbnail, got %s", got.ThumbnailFile)
		}
	})

	t.Run("no audio is transient", func(t *testing.T) {
		dir := t.TempDir()
		tu.MustWriteFile(t, filepath.Join(dir, "abc.jpg"), "img")

		_, err := findRetrieved(dir, "abc", "mp3")
		if !IsTransient(err) {
			t.Errorf("expected transient error, got %v", err)
		}
	})
}

func TestID3Tagger(t *testing.T) {
	t.Run("writes tags and cover", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "song.mp3")
		cover := filepath.Join(dir, "cover.jpg")
		tu.MustWriteFile(t, file, "not really audio")
		tu.MustWriteFile(t, cover, "jpeg bytes")

		meta := TrackMeta{Title: "Song", Artist: "A, B", Album: "Record", AlbumArtist: "A", Year: 2020, TrackNumber: 7}
		if err := NewID3Tagger().Tag(context.Background(), file, meta, cover); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		tag, err := id3v2.Open(file, id3v2.Options{Parse: true})
		if err != nil {
			t.Fatalf("failed to reopen tags: %v", err)
		}
		defer tag.Close()

		if tag.Title() != "Song" || tag.Artist() != "A, B" || tag.Album() != "Record" || tag.Year() != "2020" {
			t.Errorf("unexpected tags: %s / %s / %s / %s", tag.Title(), tag.Artist(), tag.Album(), tag.Year())
		}
		if got := tag.GetTextFrame(tag.CommonID("Track number/Position in set")).Text; got != "7" {
			t.Errorf("expected track number 7, got %q", got)
		}
		if pics := tag.GetFrames(tag.CommonID("Attached picture")); len(pics) != 1 {
			t.Errorf("expected one picture frame, got %d", len(pics))
		}
	})

	t.Run("retagging replaces frames", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "song.mp3")
		tu.MustWriteFile(t, file, "not really audio")

		tagger := NewID3Tagger()
		for _, n := range []int{1, 2} {
			if err := tagger.Tag(context.Background(), file, TrackMeta{Title: "S", TrackNumber: n}, ""); err != nil {
				t.Fatalf("tag: %v", err)
			}
		}

		tag, err := id3v2.Open(file, id3v2.Options{Parse: true})
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		defer tag.Close()
		if frames := tag.GetFrames(tag.CommonID("Track number/Position in set")); len(frames) != 1 {
			t.Errorf("expected a single track number frame, got %d", len(frames))
		}
	})

	t.Run("unreadable tag header is permanent", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "song.mp3")
		tu.MustWriteFile(t, file, "audio")

		err := NewID3Tagger().Tag(context.Background(), file, TrackMeta{Title: "S"}, "")
		if err == nil {
			t.Fatal("expected error for a file shorter than a tag header")
		}
		if IsTransient(err) {
			t.Errorf("parse failure must not be retried: %v", err)
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "song.opus")
		tu.MustWriteFile(t, file, "audio")

		err := NewID3Tagger().Tag(context.Background(), file, TrackMeta{Title: "S"}, "")
		if !errors.Is(err, shared.ErrUnsupportedFormat) {
			t.Errorf("expected unsupported format, got %v", err)
		}
		if IsTransient(err) {
			t.Error("unsupported format must not be retried")
		}
	})

	t.Run("missing cover", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "song.mp3")
		tu.MustWriteFile(t, file, "not really audio")

		err := NewID3Tagger().Tag(context.Background(), file, TrackMeta{Title: "S"}, filepath.Join(os.TempDir(), "no-such-cover.jpg"))
		if err == nil {
			t.Error("expected error for missing cover")
		}
	})
}
