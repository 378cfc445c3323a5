package dedup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/repositories"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	records []*models.TrackRecord
}

func (s *memStore) Latest(key string) (*models.TrackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Key == key {
			r := *s.records[i]
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: track %s", shared.ErrNotFound, key)
}

func (s *memStore) Append(rec *models.TrackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *rec
	s.records = append(s.records, &r)
	return nil
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestClaim(t *testing.T) {
	ctx := context.Background()

	t.Run("miss leases then busy", func(t *testing.T) {
		idx := New(&memStore{}, Options{Root: t.TempDir()}, nil)

		first, err := idx.Claim(ctx, "t1", "job-a")
		require.NoError(t, err)
		require.Equal(t, Leased, first.Outcome)
		require.NotNil(t, first.Lease)
		assert.Equal(t, "job-a", first.Lease.Owner())

		second, err := idx.Claim(ctx, "t1", "job-b")
		require.NoError(t, err)
		assert.Equal(t, Busy, second.Outcome)

		other, err := idx.Claim(ctx, "t2", "job-b")
		require.NoError(t, err)
		assert.Equal(t, Leased, other.Outcome, "distinct keys proceed independently")

		first.Lease.Release()
		first.Lease.Release()
		assert.Equal(t, 1, idx.InFlight())
	})

	t.Run("hit after record", func(t *testing.T) {
		root := t.TempDir()
		idx := New(&memStore{}, Options{Root: root}, nil)

		claim, err := idx.Claim(ctx, "t1", "job-a")
		require.NoError(t, err)
		require.Equal(t, Leased, claim.Outcome)

		writeFile(t, root, "Artist/Album/01 - Song.mp3", "audio")
		require.NoError(t, idx.Record(ctx, claim.Lease, &models.TrackRecord{
			Path: filepath.Join(root, "Artist", "Album", "01 - Song.mp3"),
		}))
		assert.Equal(t, 0, idx.InFlight())

		hit, err := idx.Claim(ctx, "t1", "job-b")
		require.NoError(t, err)
		require.Equal(t, Hit, hit.Outcome)
		assert.Equal(t, "Artist/Album/01 - Song.mp3", hit.Record.Path)
		assert.Contains(t, hit.Record.Fingerprint, FingerprintPrefix)
		assert.Equal(t, 0, idx.InFlight(), "a hit holds no lease")
	})

	t.Run("missing file is not a hit", func(t *testing.T) {
		root := t.TempDir()
		store := &memStore{}
		require.NoError(t, store.Append(&models.TrackRecord{Key: "t1", Path: "gone.mp3", Fingerprint: "sha256:00"}))
		idx := New(store, Options{Root: root}, nil)

		claim, err := idx.Claim(ctx, "t1", "job-a")
		require.NoError(t, err)
		assert.Equal(t, Leased, claim.Outcome)
	})

	t.Run("verify rejects changed content", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a.mp3", "original")
		fp, err := Fingerprint(filepath.Join(root, "a.mp3"))
		require.NoError(t, err)

		store := &memStore{}
		require.NoError(t, store.Append(&models.TrackRecord{Key: "t1", Path: "a.mp3", Fingerprint: fp}))

		idx := New(store, Options{Root: root, Verify: true}, nil)
		_, ok, err := idx.Lookup(ctx, "t1")
		require.NoError(t, err)
		assert.True(t, ok)

		writeFile(t, root, "a.mp3", "tampered")
		_, ok, err = idx.Lookup(ctx, "t1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("cancelled context", func(t *testing.T) {
		idx := New(&memStore{}, Options{Root: t.TempDir()}, nil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := idx.Claim(cctx, "t1", "job-a")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, idx.InFlight())
	})
}

func TestConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	idx := New(&memStore{}, Options{Root: root}, nil)

	var retrievals atomic.Int32
	var wg sync.WaitGroup

	for j := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			owner := fmt.Sprintf("job-%d", j)
			for {
				claim, err := idx.Claim(ctx, "shared", owner)
				if !assert.NoError(t, err) {
					return
				}
				switch claim.Outcome {
				case Hit:
					return
				case Busy:
					assert.NoError(t, idx.Wait(ctx, "shared"))
					continue
				case Leased:
					retrievals.Add(1)
					time.Sleep(5 * time.Millisecond)
					writeFile(t, root, "shared.mp3", "audio")
					assert.NoError(t, idx.Record(ctx, claim.Lease, &models.TrackRecord{Path: "shared.mp3"}))
					return
				}
			}
		}()
	}

	wg.Wait()
	assert.EqualValues(t, 1, retrievals.Load())
}

func TestWait(t *testing.T) {
	ctx := context.Background()

	t.Run("returns immediately without a lease", func(t *testing.T) {
		idx := New(&memStore{}, Options{Root: t.TempDir()}, nil)
		assert.NoError(t, idx.Wait(ctx, "t1"))
	})

	t.Run("wakes on release", func(t *testing.T) {
		idx := New(&memStore{}, Options{Root: t.TempDir()}, nil)
		claim, err := idx.Claim(ctx, "t1", "job-a")
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() { done <- idx.Wait(ctx, "t1") }()

		select {
		case <-done:
			t.Fatal("wait returned before release")
		case <-time.After(20 * time.Millisecond):
		}

		claim.Lease.Release()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("wait did not return after release")
		}

		retry, err := idx.Claim(ctx, "t1", "job-b")
		require.NoError(t, err)
		assert.Equal(t, Leased, retry.Outcome, "a failed owner leaves the key retrievable")
	})

	t.Run("honours context", func(t *testing.T) {
		idx := New(&memStore{}, Options{Root: t.TempDir()}, nil)
		_, err := idx.Claim(ctx, "t1", "job-a")
		require.NoError(t, err)

		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, idx.Wait(cctx, "t1"), context.DeadlineExceeded)
	})
}

func TestRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects paths outside the root", func(t *testing.T) {
		idx := New(&memStore{}, Options{Root: t.TempDir()}, nil)
		claim, err := idx.Claim(ctx, "t1", "job-a")
		require.NoError(t, err)

		err = idx.Record(ctx, claim.Lease, &models.TrackRecord{Path: filepath.Join(t.TempDir(), "x.mp3")})
		assert.ErrorIs(t, err, shared.ErrValidation)
		assert.Equal(t, 0, idx.InFlight(), "the lease is released on failure")
	})

	t.Run("rejects relative paths escaping the root", func(t *testing.T) {
		idx := New(&memStore{}, Options{Root: t.TempDir()}, nil)

		for _, p := range []string{"../x.mp3", "Band/../../x.mp3", "..", "."} {
			_, err := idx.Rel(p)
			assert.ErrorIs(t, err, shared.ErrValidation, p)
		}

		rel, err := idx.Rel("Band/./Record/../Record/01 - Song.mp3")
		require.NoError(t, err)
		assert.Equal(t, "Band/Record/01 - Song.mp3", rel)

		claim, err := idx.Claim(ctx, "t2", "job-a")
		require.NoError(t, err)
		err = idx.Record(ctx, claim.Lease, &models.TrackRecord{Path: "../escape.mp3"})
		assert.ErrorIs(t, err, shared.ErrValidation)
		assert.Equal(t, 0, idx.InFlight())
	})

	t.Run("persists across restarts", func(t *testing.T) {
		db, err := shared.NewDatabase(":memory:")
		require.NoError(t, err)
		db.SetMaxOpenConns(1)
		defer db.Close()
		require.NoError(t, shared.RunMigrations(db))

		root := t.TempDir()
		repo := repositories.NewTrackRecordRepository(db)

		idx := New(repo, Options{Root: root}, nil)
		claim, err := idx.Claim(ctx, "t1", "job-a")
		require.NoError(t, err)
		writeFile(t, root, "A/B/01 - C.mp3", "audio")
		require.NoError(t, idx.Record(ctx, claim.Lease, &models.TrackRecord{
			Path:      "A/B/01 - C.mp3",
			AlbumKey:  "a|b",
			ArtistKey: "a",
		}))

		restarted := New(repo, Options{Root: root, Verify: true}, nil)
		hit, err := restarted.Claim(ctx, "t1", "job-b")
		require.NoError(t, err)
		require.Equal(t, Hit, hit.Outcome)
		assert.Equal(t, "a|b", hit.Record.AlbumKey)
	})
}

func TestFingerprint(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a", "same")
	writeFile(t, root, "b", "same")
	writeFile(t, root, "c", "different")

	a, err := Fingerprint(filepath.Join(root, "a"))
	require.NoError(t, err)
	b, _ := Fingerprint(filepath.Join(root, "b"))
	c, _ := Fingerprint(filepath.Join(root, "c"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, len(FingerprintPrefix)+64)

	_, err = Fingerprint(filepath.Join(root, "missing"))
	assert.Error(t, err)
}
