// Catalog proxy [Catalog] implementation
//
// Talks to a JSON proxy over the music catalog exposing GET /resolve?url=<source>.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytlib/internal/cache"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const defaultCatalogURL string = "http://127.0.0.1:8080"

// CatalogImage is a thumbnail in proxy responses.
type CatalogImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// CatalogArtist is an artist credit in proxy responses.
type CatalogArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type catalogAlbum struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// CatalogTrackResponse is one track as the proxy returns it.
type CatalogTrackResponse struct {
	VideoID     string          `json:"videoId"`
	Title       string          `json:"title"`
	Artists     []CatalogArtist `json:"artists"`
	Album       *catalogAlbum   `json:"album"`
	AlbumArtist string          `json:"albumArtist,omitempty"`
	Year        int             `json:"year,omitempty"`
	TrackNumber int             `json:"trackNumber,omitempty"`
	DurationSec int             `json:"duration_seconds"`
	Thumbnails  []CatalogImage  `json:"thumbnails"`
	Lyrics      string          `json:"lyrics,omitempty"`
	IsAvailable *bool           `json:"isAvailable,omitempty"`
}

// CatalogResponse is a resolved URL as the proxy returns it.
type CatalogResponse struct {
	ID         string                 `json:"id"`
	Kind       string                 `json:"kind,omitempty"`
	Title      string                 `json:"title"`
	Author     string                 `json:"author,omitempty"`
	Thumbnails []CatalogImage         `json:"thumbnails"`
	Tracks     []CatalogTrackResponse `json:"tracks"`
}

// CatalogOptions configures [NewHTTPCatalog].
type CatalogOptions struct {
	BaseURL      string
	TokenURL     string // enables oauth2 client credentials when set with ClientID
	ClientID     string
	ClientSecret string
	RateLimit    float64 // requests per second; zero disables limiting
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *log.Logger
}

// HTTPCatalog implements [Catalog] against the catalog proxy.
type HTTPCatalog struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPCatalog creates a catalog client with retries, optional client-credentials auth and rate limiting.
func NewHTTPCatalog(opts CatalogOptions) *HTTPCatalog {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultCatalogURL
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	rc.Logger = nil
	if opts.Logger != nil {
		rc.Logger = LeveledLogger{opts.Logger}
	}

	client := rc.StandardClient()
	if opts.ClientID != "" && opts.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = cc.Client(ctx)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &HTTPCatalog{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: client,
		limiter:    limiter,
	}
}

// Resolve fetches metadata for source.
func (c *HTTPCatalog) Resolve(ctx context.Context, source string) (*models.CatalogItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/resolve?url=" + url.QueryEscape(source)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Detail string `json:"detail"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Detail != "" {
			return nil, fmt.Errorf("%w: catalog error (status %d): %s", shared.ErrAPIRequest, resp.StatusCode, errResp.Detail)
		}
		return nil, fmt.Errorf("%w: catalog error: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var payload CatalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return payload.toItem(source)
}

func (r CatalogResponse) toItem(source string) (*models.CatalogItem, error) {
	kind := models.JobKind(r.Kind)
	if !kind.Valid() {
		detected, err := models.DetectKind(source)
		if err != nil {
			return nil, err
		}
		kind = detected
	}

	item := &models.CatalogItem{
		ID:           r.ID,
		Kind:         kind,
		Title:        r.Title,
		Artist:       r.Author,
		ThumbnailURL: bestThumbnail(r.Thumbnails),
		Tracks:       make([]models.CatalogTrack, 0, len(r.Tracks)),
	}

	for _, t := range r.Tracks {
		track := models.CatalogTrack{
			ID:           t.VideoID,
			Title:        t.Title,
			AlbumArtist:  t.AlbumArtist,
			Year:         t.Year,
			TrackNumber:  t.TrackNumber,
			Duration:     t.DurationSec,
			ThumbnailURL: bestThumbnail(t.Thumbnails),
			Lyrics:       t.Lyrics,
			Unavailable:  t.VideoID == "" || (t.IsAvailable != nil && !*t.IsAvailable),
		}
		for _, a := range t.Artists {
			track.Artists = append(track.Artists, a.Name)
		}
		if t.Album != nil {
			track.Album = t.Album.Name
		}
		if track.ThumbnailURL == "" {
			track.ThumbnailURL = item.ThumbnailURL
		}
		item.Tracks = append(item.Tracks, track)
	}

	return item, nil
}

// bestThumbnail returns the largest image by area.
func bestThumbnail(images []CatalogImage) string {
	best, area := "", -1
	for _, img := range images {
		if a := img.Width * img.Height; a > area {
			best, area = img.URL, a
		}
	}
	return best
}

// CachedCatalog serves repeated resolves of the same URL from memory.
type CachedCatalog struct {
	next  Catalog
	cache *cache.Cache[*models.CatalogItem]
}

// NewCachedCatalog wraps next with c.
func NewCachedCatalog(next Catalog, c *cache.Cache[*models.CatalogItem]) *CachedCatalog {
	return &CachedCatalog{next: next, cache: c}
}

// Resolve returns a copy of the cached item, loading it on a miss.
func (c *CachedCatalog) Resolve(ctx context.Context, source string) (*models.CatalogItem, error) {
	item, err := c.cache.GetOrLoad(ctx, source, func(ctx context.Context, key string) (*models.CatalogItem, error) {
		return c.next.Resolve(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	cp := *item
	cp.Tracks = append([]models.CatalogTrack(nil), item.Tracks...)
	return &cp, nil
}

// Invalidate drops source from the cache so the next resolve reaches the catalog.
func (c *CachedCatalog) Invalidate(source string) {
	c.cache.Delete(source)
}

// LeveledLogger adapts a charm logger to retryablehttp.LeveledLogger.
type LeveledLogger struct {
	L *log.Logger
}

func (l LeveledLogger) Error(msg string, kv ...any) { l.L.Error(msg, kv...) }
func (l LeveledLogger) Info(msg string, kv ...any)  { l.L.Info(msg, kv...) }
func (l LeveledLogger) Debug(msg string, kv ...any) { l.L.Debug(msg, kv...) }
func (l LeveledLogger) Warn(msg string, kv ...any)  { l.L.Warn(msg, kv...) }
