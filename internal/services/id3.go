package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/desertthunder/ytlib/internal/shared"
)

// ID3Tagger implements [Tagger] for mp3 files.
type ID3Tagger struct{}

// NewID3Tagger creates an ID3Tagger.
func NewID3Tagger() *ID3Tagger {
	return &ID3Tagger{}
}

// Tag replaces the file's tags with meta and embeds the cover at coverPath as the front cover.
func (t *ID3Tagger) Tag(ctx context.Context, file string, meta TrackMeta, coverPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !strings.EqualFold(filepath.Ext(file), ".mp3") {
		return fmt.Errorf("%w: %s", shared.ErrUnsupportedFormat, filepath.Ext(file))
	}

	// Parse failures are permanent for the file.
	tag, err := id3v2.Open(file, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open tags %s: %w", file, err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetVersion(4)
	tag.SetTitle(meta.Title)
	tag.SetArtist(meta.Artist)
	tag.SetAlbum(meta.Album)
	if meta.AlbumArtist != "" {
		tag.DeleteFrames(tag.CommonID("Band/Orchestra/Accompaniment"))
		tag.AddTextFrame(tag.CommonID("Band/Orchestra/Accompaniment"), id3v2.EncodingUTF8, meta.AlbumArtist)
	}
	if meta.Year > 0 {
		tag.SetYear(strconv.Itoa(meta.Year))
	}
	if meta.TrackNumber > 0 {
		tag.DeleteFrames(tag.CommonID("Track number/Position in set"))
		tag.AddTextFrame(tag.CommonID("Track number/Position in set"), id3v2.EncodingUTF8, strconv.Itoa(meta.TrackNumber))
	}

	if coverPath != "" {
		art, err := os.ReadFile(coverPath)
		if err != nil {
			return fmt.Errorf("read cover %s: %w", coverPath, err)
		}
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    coverMime(coverPath),
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     art,
		})
	}

	if err := tag.Save(); err != nil {
		return Transient(fmt.Errorf("save tags %s: %w", file, err))
	}
	return nil
}

func coverMime(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
