// package dedup guarantees at most one in-flight retrieval per catalog track across every running job.
//
// A job calls [Index.Claim] before retrieving a track. The claim is either a hit (a valid file is already
// in the library), a lease (this job now owns the retrieval), or busy (another job owns it).
// The lease is released by [Index.Record] once the file is organized, or by [Lease.Release] on failure.
//
// Jobs must release every lease they hold before calling [Index.Wait] on another job's key.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
)

// FingerprintPrefix is prepended to the hex digest of a file's content.
const FingerprintPrefix = "sha256:"

// Store persists index records. It is satisfied by repositories.TrackRecordRepository.
type Store interface {
	Latest(key string) (*models.TrackRecord, error)
	Append(rec *models.TrackRecord) error
}

// Outcome is the result kind of a [Claim].
type Outcome int

const (
	Hit Outcome = iota
	Leased
	Busy
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Leased:
		return "leased"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// Claim is returned by [Index.Claim]. Record is set for hits, Lease for leases.
type Claim struct {
	Outcome Outcome
	Record  *models.TrackRecord
	Lease   *Lease
}

// Lease is exclusive ownership of one key's retrieval.
type Lease struct {
	key   string
	owner string
	index *Index
	once  sync.Once
	done  chan struct{}
}

// Key returns the track key the lease covers.
func (l *Lease) Key() string { return l.key }

// Owner returns the job id holding the lease.
func (l *Lease) Owner() string { return l.owner }

// Release gives up the lease and wakes every waiter. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.index.mu.Lock()
		if l.index.inflight[l.key] == l {
			delete(l.index.inflight, l.key)
		}
		l.index.mu.Unlock()
		close(l.done)
	})
}

// Options configures an [Index].
type Options struct {
	Root   string // library root; record paths are relative to it
	Verify bool   // re-hash files on lookup and reject mismatches
}

// Index is the shared dedup index.
type Index struct {
	store  Store
	root   string
	verify bool
	logger *log.Logger

	mu       sync.Mutex
	inflight map[string]*Lease
}

// New creates an index over store.
func New(store Store, opts Options, logger *log.Logger) *Index {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Index{
		store:    store,
		root:     opts.Root,
		verify:   opts.Verify,
		logger:   logger,
		inflight: make(map[string]*Lease),
	}
}

// Root returns the library root.
func (i *Index) Root() string { return i.root }

// InFlight returns the number of outstanding leases.
func (i *Index) InFlight() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.inflight)
}

// Claim decides whether owner may retrieve key.
//
// The lease is taken before the store is consulted, so two jobs that miss at the same time never both retrieve.
func (i *Index) Claim(ctx context.Context, key, owner string) (Claim, error) {
	if err := ctx.Err(); err != nil {
		return Claim{}, err
	}

	i.mu.Lock()
	if _, ok := i.inflight[key]; ok {
		i.mu.Unlock()
		return Claim{Outcome: Busy}, nil
	}
	lease := &Lease{key: key, owner: owner, index: i, done: make(chan struct{})}
	i.inflight[key] = lease
	i.mu.Unlock()

	rec, ok, err := i.Lookup(ctx, key)
	if err != nil {
		lease.Release()
		return Claim{}, err
	}
	if ok {
		lease.Release()
		return Claim{Outcome: Hit, Record: rec}, nil
	}

	return Claim{Outcome: Leased, Lease: lease}, nil
}

// Wait blocks until no lease is outstanding for key.
func (i *Index) Wait(ctx context.Context, key string) error {
	i.mu.Lock()
	lease, ok := i.inflight[key]
	i.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-lease.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lookup returns the newest valid record for key.
//
// A record is valid while its file exists under the root, and, when verification is on, while its content still matches.
func (i *Index) Lookup(ctx context.Context, key string) (*models.TrackRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	rec, err := i.store.Latest(key)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("dedup lookup %s: %w", key, err)
	}

	abs := i.Abs(rec.Path)
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		i.logger.Debug("dedup record points at missing file", "key", key, "path", rec.Path)
		return nil, false, nil
	}

	if i.verify {
		fp, err := Fingerprint(abs)
		if err != nil {
			return nil, false, err
		}
		if fp != rec.Fingerprint {
			i.logger.Warn("dedup fingerprint mismatch", "key", key, "path", rec.Path)
			return nil, false, nil
		}
	}

	return rec, true, nil
}

// Record appends rec for the lease's key and then releases the lease, whether or not the write succeeded.
//
// rec.Path may be absolute under the root or already relative to it.
func (i *Index) Record(ctx context.Context, lease *Lease, rec *models.TrackRecord) error {
	defer lease.Release()

	if err := ctx.Err(); err != nil {
		return err
	}

	rel, err := i.Rel(rec.Path)
	if err != nil {
		return err
	}

	rec.Key = lease.key
	rec.Path = rel
	if rec.Fingerprint == "" {
		fp, err := Fingerprint(i.Abs(rel))
		if err != nil {
			return err
		}
		rec.Fingerprint = fp
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if err := i.store.Append(rec); err != nil {
		return fmt.Errorf("dedup record %s: %w", lease.key, err)
	}
	return nil
}

// Abs resolves a record path against the root.
func (i *Index) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(i.root, filepath.FromSlash(rel))
}

// Rel converts path to a slash-separated path relative to the root. Paths that resolve outside the root
// are rejected.
func (i *Index) Rel(path string) (string, error) {
	rel := filepath.Clean(path)
	if filepath.IsAbs(rel) {
		root, err := filepath.Abs(i.root)
		if err != nil {
			return "", fmt.Errorf("resolve library root: %w", err)
		}
		if rel, err = filepath.Rel(root, rel); err != nil {
			return "", fmt.Errorf("%w: %s is outside the library root", shared.ErrValidation, path)
		}
	}

	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the library root", shared.ErrValidation, path)
	}
	return filepath.ToSlash(rel), nil
}

// Fingerprint hashes the file at path.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return FingerprintPrefix + hex.EncodeToString(h.Sum(nil)), nil
}
