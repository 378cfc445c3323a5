// package fakes contains in-memory test doubles for the pipeline collaborators
package fakes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/services"
	"github.com/desertthunder/ytlib/internal/shared"
)

// FakeCatalog is a test double for [services.Catalog] serving fixed items by URL.
type FakeCatalog struct {
	mu    sync.Mutex
	items map[string]*models.CatalogItem
	calls map[string]int
	Err   error
}

func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{items: make(map[string]*models.CatalogItem), calls: make(map[string]int)}
}

// Add serves item for url.
func (c *FakeCatalog) Add(url string, item *models.CatalogItem) *FakeCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[url] = item
	return c
}

func (c *FakeCatalog) Resolve(ctx context.Context, url string) (*models.CatalogItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[url]++

	if c.Err != nil {
		return nil, c.Err
	}
	item, ok := c.items[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrNotFound, url)
	}
	cp := *item
	cp.Tracks = append([]models.CatalogTrack(nil), item.Tracks...)
	return &cp, nil
}

// Calls returns how many times url was resolved.
func (c *FakeCatalog) Calls(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[url]
}

// FakeRetriever is a test double for [services.Retriever] that writes small files named after the track.
//
// Failures lists how many leading calls for a track fail transiently; Permanent fails every call.
// When Gate is set, every Fetch blocks until the gate is closed or the context ends.
type FakeRetriever struct {
	Format    string
	Failures  map[string]int
	Permanent map[string]error
	Gate      chan struct{}
	Started   chan string

	mu      sync.Mutex
	calls   map[string]int
	formats []string
}

func NewFakeRetriever() *FakeRetriever {
	return &FakeRetriever{
		Format:    "mp3",
		Failures:  make(map[string]int),
		Permanent: make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (r *FakeRetriever) Fetch(ctx context.Context, track models.CatalogTrack, dir, format string) (*services.Retrieved, error) {
	if format == "" {
		format = r.Format
	}

	r.mu.Lock()
	r.calls[track.ID]++
	r.formats = append(r.formats, format)
	n := r.calls[track.ID]
	failures := r.Failures[track.ID]
	permanent := r.Permanent[track.ID]
	r.mu.Unlock()

	if r.Started != nil {
		select {
		case r.Started <- track.ID:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if r.Gate != nil {
		select {
		case <-r.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if permanent != nil {
		return nil, permanent
	}
	if n <= failures {
		return nil, services.Transient(fmt.Errorf("fake retrieval %s attempt %d", track.ID, n))
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	audio := filepath.Join(dir, track.ID+"."+format)
	if err := os.WriteFile(audio, []byte("audio:"+track.ID), 0644); err != nil {
		return nil, err
	}
	thumb := filepath.Join(dir, track.ID+".jpg")
	if err := os.WriteFile(thumb, []byte("cover:"+track.ID), 0644); err != nil {
		return nil, err
	}
	return &services.Retrieved{AudioFile: audio, ThumbnailFile: thumb}, nil
}

// Calls returns how many times id was fetched.
func (r *FakeRetriever) Calls(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

// Formats returns the extraction format requested by each Fetch call, in call order.
func (r *FakeRetriever) Formats() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.formats...)
}

// Total returns the number of Fetch calls across all tracks.
func (r *FakeRetriever) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.calls {
		total += n
	}
	return total
}

// FakeTagger is a test double for [services.Tagger] recording the metadata written per file name.
//
// Gate and Started behave as on [FakeRetriever].
type FakeTagger struct {
	Err     error
	Gate    chan struct{}
	Started chan string

	mu     sync.Mutex
	tagged map[string]services.TrackMeta
}

func NewFakeTagger() *FakeTagger {
	return &FakeTagger{tagged: make(map[string]services.TrackMeta)}
}

func (t *FakeTagger) Tag(ctx context.Context, file string, meta services.TrackMeta, coverPath string) error {
	if t.Started != nil {
		select {
		case t.Started <- filepath.Base(file):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if t.Gate != nil {
		select {
		case <-t.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if t.Err != nil {
		return t.Err
	}
	if _, err := os.Stat(file); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tagged[filepath.Base(file)] = meta
	return nil
}

// Meta returns the tags written to the file with the given base name.
func (t *FakeTagger) Meta(name string) (services.TrackMeta, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.tagged[name]
	return m, ok
}

// Count returns the number of files tagged.
func (t *FakeTagger) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tagged)
}
