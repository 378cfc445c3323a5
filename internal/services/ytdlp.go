package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/lrstanley/go-ytdlp"
)

const watchURL = "https://music.youtube.com/watch?v="

var thumbnailExts = []string{".jpg", ".jpeg", ".png", ".webp"}

// YTDLPRetriever implements [Retriever] with yt-dlp.
type YTDLPRetriever struct {
	format string
	logger *log.Logger
}

// NewYTDLPRetriever creates a retriever whose default extraction format is format.
func NewYTDLPRetriever(format string, logger *log.Logger) *YTDLPRetriever {
	if format == "" {
		format = "mp3"
	}
	return &YTDLPRetriever{format: format, logger: logger}
}

// Fetch downloads track into dir as <id>.<format> with its thumbnail as <id>.jpg.
func (r *YTDLPRetriever) Fetch(ctx context.Context, track models.CatalogTrack, dir, format string) (*Retrieved, error) {
	if format == "" {
		format = r.format
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	dl := ytdlp.New().
		ExtractAudio().
		AudioFormat(format).
		AudioQuality("0").
		WriteThumbnail().
		ConvertThumbnails("jpg").
		NoPlaylist().
		ForceOverwrites().
		Output(filepath.Join(dir, track.ID+".%(ext)s"))

	if r.logger != nil {
		dl.ProgressFunc(2*time.Second, func(update ytdlp.ProgressUpdate) {
			r.logger.Debug("retrieving", "track", track.ID, "bytes", update.DownloadedBytes, "total", update.TotalBytes, "eta", update.ETA())
		})
	}

	if _, err := dl.Run(ctx, watchURL+track.ID); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Transient(fmt.Errorf("yt-dlp %s: %w", track.ID, err))
	}

	return findRetrieved(dir, track.ID, format)
}

// findRetrieved locates the audio and thumbnail files yt-dlp wrote for id.
func findRetrieved(dir, id, format string) (*Retrieved, error) {
	matches, err := filepath.Glob(filepath.Join(dir, id+".*"))
	if err != nil {
		return nil, err
	}

	out := &Retrieved{}
	for _, m := range matches {
		ext := strings.ToLower(filepath.Ext(m))
		switch {
		case ext == ".part" || ext == ".ytdl":
			continue
		case ext == "."+strings.ToLower(format):
			out.AudioFile = m
		case slices.Contains(thumbnailExts, ext):
			if out.ThumbnailFile == "" || ext == ".jpg" {
				out.ThumbnailFile = m
			}
		case out.AudioFile == "":
			out.AudioFile = m
		}
	}

	if out.AudioFile == "" {
		return nil, Transient(fmt.Errorf("yt-dlp produced no audio for %s", id))
	}
	return out, nil
}
