package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytlib/internal/dedup"
	"github.com/desertthunder/ytlib/internal/formatter"
	"github.com/desertthunder/ytlib/internal/metrics"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/services"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/desertthunder/ytlib/internal/stream"
	"golang.org/x/time/rate"
)

// Tracker receives a running job's status and progress changes.
type Tracker interface {
	// Advance moves the job to the status of the next phase. An error aborts the run.
	Advance(next models.JobStatus) error
	// Progress records the percentage complete within the current phase.
	Progress(percent int)
}

// invalidator is implemented by catalogs that cache resolutions.
type invalidator interface {
	Invalidate(url string)
}

// Options configures a [Pipeline].
type Options struct {
	TempDir      string  // parent of per-job working directories
	PlaylistsDir string  // where M3U files are written
	AudioFormat  string  // default extraction format
	RateLimit    float64 // retrievals per second; zero disables limiting
	Retry        RetryPolicy
}

// Pipeline executes jobs. It is safe for concurrent use by multiple workers.
type Pipeline struct {
	catalog   services.Catalog
	retriever services.Retriever
	tagger    services.Tagger
	index     *dedup.Index
	broker    *stream.Broker
	logger    *log.Logger
	limiter   *rate.Limiter
	opts      Options
}

// NewPipeline creates a pipeline over its collaborators. broker and logger may be nil.
func NewPipeline(
	catalog services.Catalog,
	retriever services.Retriever,
	tagger services.Tagger,
	index *dedup.Index,
	broker *stream.Broker,
	logger *log.Logger,
	opts Options,
) *Pipeline {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if opts.AudioFormat == "" {
		opts.AudioFormat = "mp3"
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.PlaylistsDir == "" {
		opts.PlaylistsDir = filepath.Join(index.Root(), "Playlists")
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &Pipeline{
		catalog:   catalog,
		retriever: retriever,
		tagger:    tagger,
		index:     index,
		broker:    broker,
		logger:    logger,
		limiter:   limiter,
		opts:      opts,
	}
}

// trackState follows one track through the phases.
type trackState struct {
	track     models.CatalogTrack
	outcome   dedup.Outcome
	lease     *dedup.Lease
	retrieved *services.Retrieved
	path      string // canonical path relative to the library root
	err       error
	failedIn  Phase
}

func (t *trackState) done() bool   { return t.path != "" }
func (t *trackState) failed() bool { return t.err != nil }

// JobContext is the state shared by the phases of one run.
type JobContext struct {
	Job     *models.Job
	WorkDir string
	Item    *models.CatalogItem
	Result  models.JobResult

	tracks  []*trackState
	emit    *Emitter
	tracker Tracker
}

func (jc *JobContext) releaseLeases() {
	for _, t := range jc.tracks {
		if t.lease != nil {
			t.lease.Release()
		}
	}
}

func (jc *JobContext) fail(t *trackState, phase Phase, step, total int, err error) {
	t.err = err
	t.failedIn = phase
	if t.lease != nil {
		t.lease.Release()
	}
	metrics.IncreaseTrackFailures(phase.String())
	jc.emit.Progress(trackFailedUpdate(phase, step, total, t.track, err))
}

type phaseFunc func(ctx context.Context, jc *JobContext) error

// Run executes every phase for job and returns the result accumulated so far.
//
// A nil error means at least one track was organized and the job may complete. Cancellation of ctx is
// returned as ctx's error; every other error is wrapped in [shared.ErrPhaseFailed].
// The job's working directory is removed and every lease it held is released before Run returns.
func (p *Pipeline) Run(ctx context.Context, job *models.Job, tracker Tracker) (models.JobResult, error) {
	jc := &JobContext{
		Job:     job.Clone(),
		WorkDir: filepath.Join(p.opts.TempDir, job.ID),
		emit:    NewEmitter(job.ID, p.logger, p.broker),
		tracker: tracker,
	}
	if jc.Job.AudioFormat == "" {
		jc.Job.AudioFormat = p.opts.AudioFormat
	}

	defer p.cleanup(jc)

	phases := []struct {
		phase Phase
		run   phaseFunc
	}{
		{PhaseFetch, p.fetchInfo},
		{PhaseDownload, p.download},
		{PhaseImport, p.importTracks},
	}

	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			return jc.Result, err
		}
		if err := tracker.Advance(ph.phase.Status()); err != nil {
			return jc.Result, err
		}
		if err := ph.run(ctx, jc); err != nil {
			if ctx.Err() != nil {
				return jc.Result, ctx.Err()
			}
			jc.emit.Error(ph.phase, "phase failed", "error", err)
			return jc.Result, fmt.Errorf("%w: %s: %w", shared.ErrPhaseFailed, ph.phase, err)
		}
	}

	if jc.Result.Succeeded == 0 {
		return jc.Result, fmt.Errorf("%w: no tracks were organized", shared.ErrPhaseFailed)
	}
	return jc.Result, nil
}

// cleanup releases the job's leases and removes its working directory, leftover .part files included.
func (p *Pipeline) cleanup(jc *JobContext) {
	jc.releaseLeases()

	if err := os.RemoveAll(jc.WorkDir); err != nil {
		jc.emit.Warn(PhaseImport, "failed to remove work directory", "dir", jc.WorkDir, "error", err)
	}
}

// trackContext carries ctx's values but not its cancellation. A track whose retrieval or import has begun
// runs to completion; cancellation is observed between tracks. RetryPolicy.CallTimeout bounds each call.
func trackContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// fetchInfo resolves the job's URL. Any catalog error and an empty listing are fatal.
func (p *Pipeline) fetchInfo(ctx context.Context, jc *JobContext) error {
	jc.emit.Progress(resolvingUpdate(jc.Job.URL))

	// Subscription runs always see the current listing.
	if inv, ok := p.catalog.(invalidator); ok && jc.Job.SubscriptionID != "" {
		inv.Invalidate(jc.Job.URL)
	}

	item, err := p.catalog.Resolve(ctx, jc.Job.URL)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", jc.Job.URL, err)
	}
	if len(item.Tracks) == 0 {
		return fmt.Errorf("%s resolved to no tracks", jc.Job.URL)
	}

	tracks := item.Tracks
	if jc.Job.MaxItems > 0 && len(tracks) > jc.Job.MaxItems {
		tracks = tracks[:jc.Job.MaxItems]
	}

	jc.Item = item
	jc.Result.Title = item.Title
	for _, t := range tracks {
		if t.Unavailable {
			jc.Result.Skipped++
			jc.emit.Info(PhaseFetch, "skipping unavailable track", "track", t.ID, "title", t.Title)
			continue
		}
		jc.tracks = append(jc.tracks, &trackState{track: t})
	}

	jc.tracker.Progress(100)
	jc.emit.Progress(resolvedUpdate(item, len(jc.tracks)))
	return nil
}

// download claims every track and retrieves the ones this job leases.
func (p *Pipeline) download(ctx context.Context, jc *JobContext) error {
	total := len(jc.tracks)
	for i, t := range jc.tracks {
		if err := ctx.Err(); err != nil {
			return err
		}

		step := i + 1
		claim, err := p.index.Claim(ctx, t.track.ID, jc.Job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			jc.fail(t, PhaseDownload, step, total, err)
			jc.tracker.Progress(step * 100 / total)
			continue
		}

		t.outcome = claim.Outcome
		switch claim.Outcome {
		case dedup.Hit:
			t.path = claim.Record.Path
			metrics.IncreaseDedupHits()
			jc.emit.Progress(dedupHitUpdate(step, total, t.track, t.path))
		case dedup.Leased:
			t.lease = claim.Lease
			if err := p.retrieve(ctx, jc, t); err != nil {
				jc.fail(t, PhaseDownload, step, total, err)
			} else {
				jc.emit.Progress(retrievedUpdate(step, total, t.track))
			}
		case dedup.Busy:
			jc.emit.Progress(deferredUpdate(step, total, t.track))
		}

		jc.tracker.Progress(step * 100 / total)
	}
	return nil
}

func (p *Pipeline) retrieve(ctx context.Context, jc *JobContext, t *trackState) error {
	err := p.opts.Retry.Do(trackContext(ctx), func(ctx context.Context) error {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		r, err := p.retriever.Fetch(ctx, t.track, jc.WorkDir, jc.Job.AudioFormat)
		if err != nil {
			return err
		}
		t.retrieved = r
		return nil
	}, func(attempt int, err error) {
		jc.emit.Warn(PhaseDownload, "retrying retrieval", "track", t.track.ID, "attempt", attempt, "error", err)
	})

	if err != nil {
		metrics.IncreaseRetrievals("failed")
		return err
	}
	metrics.IncreaseRetrievals("ok")
	return nil
}

// importTracks organizes owned tracks, then settles deferred ones, then writes the playlist.
func (p *Pipeline) importTracks(ctx context.Context, jc *JobContext) error {
	total := len(jc.tracks)
	step := 0
	progress := func() {
		step++
		jc.tracker.Progress(step * 100 / max(total, 1))
	}

	for _, t := range jc.tracks {
		if t.outcome != dedup.Leased || t.failed() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.organize(ctx, jc, t); err != nil {
			jc.fail(t, PhaseImport, step+1, total, err)
		} else {
			jc.emit.Progress(organizedUpdate(step+1, total, t.track, t.path))
		}
		progress()
	}

	// No lease may be held while waiting on another job.
	jc.releaseLeases()

	for _, t := range jc.tracks {
		if t.outcome != dedup.Busy {
			continue
		}
		if err := p.settleDeferred(ctx, jc, t, step+1, total); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			jc.fail(t, PhaseImport, step+1, total, err)
		}
		progress()
	}

	for _, t := range jc.tracks {
		switch {
		case t.done():
			jc.Result.Succeeded++
			jc.Result.OutputPaths = append(jc.Result.OutputPaths, p.index.Abs(t.path))
		case t.failed():
			jc.Result.Failed++
			jc.Result.Failures = append(jc.Result.Failures, models.TrackFailure{
				TrackID: t.track.ID,
				Title:   t.track.Title,
				Error:   t.err.Error(),
			})
		}
	}

	if jc.Job.Kind == models.KindPlaylist && jc.Result.Succeeded > 0 {
		path, err := p.writePlaylist(jc)
		if err != nil {
			return err
		}
		jc.Result.PlaylistPath = path
	}

	jc.tracker.Progress(100)
	return nil
}

// settleDeferred waits for the owning job and then re-claims the track, retrieving it here if the owner failed.
func (p *Pipeline) settleDeferred(ctx context.Context, jc *JobContext, t *trackState, step, total int) error {
	for {
		if err := p.index.Wait(ctx, t.track.ID); err != nil {
			return err
		}

		claim, err := p.index.Claim(ctx, t.track.ID, jc.Job.ID)
		if err != nil {
			return err
		}

		switch claim.Outcome {
		case dedup.Hit:
			t.path = claim.Record.Path
			metrics.IncreaseDedupHits()
			jc.emit.Progress(dedupHitUpdate(step, total, t.track, t.path))
			return nil
		case dedup.Leased:
			t.lease = claim.Lease
			jc.emit.Info(PhaseImport, "owner did not record deferred track, retrieving", "track", t.track.ID)
			if err := p.retrieve(ctx, jc, t); err != nil {
				return err
			}
			if err := p.organize(ctx, jc, t); err != nil {
				return err
			}
			jc.emit.Progress(organizedUpdate(step, total, t.track, t.path))
			return nil
		case dedup.Busy:
			// Another waiter claimed it first.
		}
	}
}

// organize tags a retrieved file, moves it into the library layout, writes lyrics and records it in the index.
// Once started it is not interrupted by cancellation of ctx.
func (p *Pipeline) organize(ctx context.Context, jc *JobContext, t *trackState) error {
	ctx = trackContext(ctx)
	if t.retrieved == nil || t.lease == nil {
		return fmt.Errorf("track %s was not retrieved", t.track.ID)
	}

	cover := t.retrieved.ThumbnailFile
	if cover == "" && t.track.ThumbnailURL != "" {
		dest := filepath.Join(jc.WorkDir, t.track.ID+".cover.jpg")
		if err := formatter.SaveImage(ctx, t.track.ThumbnailURL, dest); err != nil {
			jc.emit.Warn(PhaseImport, "cover unavailable", "track", t.track.ID, "error", err)
		} else {
			cover = dest
		}
	}

	meta := services.MetaFor(t.track, p.fallbackAlbum(jc))
	err := p.opts.Retry.Do(ctx, func(ctx context.Context) error {
		return p.tagger.Tag(ctx, t.retrieved.AudioFile, meta, cover)
	}, func(attempt int, err error) {
		jc.emit.Warn(PhaseImport, "retrying tag write", "track", t.track.ID, "attempt", attempt, "error", err)
	})
	if err != nil {
		return fmt.Errorf("tag %s: %w", t.track.ID, err)
	}

	rel := formatter.TrackPath(t.track, p.fallbackAlbum(jc), filepath.Ext(t.retrieved.AudioFile))
	dest := p.index.Abs(rel)
	if err := moveFile(t.retrieved.AudioFile, dest); err != nil {
		return err
	}

	if _, err := formatter.WriteLyrics(dest, t.track.Lyrics); err != nil {
		jc.emit.Warn(PhaseImport, "lyrics not written", "track", t.track.ID, "error", err)
	}

	rec := &models.TrackRecord{
		Path:      rel,
		AlbumKey:  t.track.AlbumKey(),
		ArtistKey: t.track.ArtistKey(),
	}
	if err := p.index.Record(ctx, t.lease, rec); err != nil {
		return err
	}

	t.path = rec.Path
	return nil
}

// fallbackAlbum is the album tag for tracks that carry none: the collection they were resolved from.
func (p *Pipeline) fallbackAlbum(jc *JobContext) string {
	if jc.Item == nil {
		return ""
	}
	switch jc.Item.Kind {
	case models.KindPlaylist, models.KindAlbum:
		return jc.Item.Title
	default:
		return ""
	}
}

func (p *Pipeline) writePlaylist(jc *JobContext) (string, error) {
	entries := make([]formatter.M3UEntry, 0, jc.Result.Succeeded)
	for _, t := range jc.tracks {
		if !t.done() {
			continue
		}
		entries = append(entries, formatter.M3UEntry{
			Duration: t.track.Duration,
			Artist:   t.track.ArtistCredit(),
			Title:    t.track.Title,
			Path:     absPath(p.index.Abs(t.path)),
		})
	}

	dest := formatter.PlaylistPath(p.opts.PlaylistsDir, jc.Item.Title)
	if err := formatter.WriteM3U(dest, entries); err != nil {
		return "", err
	}

	jc.emit.Progress(playlistUpdate(dest, len(entries)))
	return dest, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// moveFile renames src to dest, copying when the two are on different filesystems.
func moveFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create library directory: %w", err)
	}

	if err := os.Rename(src, dest); err == nil {
		return nil
	} else if !isCrossDevice(err) {
		return fmt.Errorf("failed to move %s: %w", filepath.Base(src), err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to copy %s: %w", filepath.Base(src), err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return err
	}
	return os.Remove(src)
}

func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}
