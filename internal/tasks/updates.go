package tasks

import (
	"fmt"

	"github.com/desertthunder/ytlib/internal/models"
)

// ProgressUpdate represents a progress event during a running job.
//
// Step and Total count tracks (or a single step for the fetch phase) within the phase.
type ProgressUpdate struct {
	Phase   Phase  // Pipeline phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Percent returns the progress within the phase.
func (u ProgressUpdate) Percent() int {
	if u.Total <= 0 {
		return 0
	}
	return min(u.Step*100/u.Total, 100)
}

// Overall maps phase progress onto the whole job: fetch 0–10, download 10–90, import 90–100.
func (u ProgressUpdate) Overall() int {
	lo, hi := u.Phase.band()
	return lo + (hi-lo)*u.Percent()/100
}

// Phase is a pipeline stage. Each phase runs under the job status of the same name.
type Phase int

const (
	PhaseFetch Phase = iota
	PhaseDownload
	PhaseImport
)

func (p Phase) String() string {
	return p.Status().String()
}

// Status returns the job status the phase runs under.
func (p Phase) Status() models.JobStatus {
	switch p {
	case PhaseFetch:
		return models.StatusFetchingInfo
	case PhaseDownload:
		return models.StatusDownloading
	case PhaseImport:
		return models.StatusImporting
	default:
		return models.StatusPending
	}
}

func (p Phase) band() (int, int) {
	switch p {
	case PhaseFetch:
		return 0, 10
	case PhaseDownload:
		return 10, 90
	case PhaseImport:
		return 90, 100
	default:
		return 0, 0
	}
}

func resolvingUpdate(url string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseFetch,
		Step:    0,
		Total:   1,
		Message: fmt.Sprintf("Resolving %s...", url),
	}
}

func resolvedUpdate(item *models.CatalogItem, tracks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseFetch,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Resolved %s %q with %d tracks", item.Kind, item.Title, tracks),
		Data:    item,
	}
}

func dedupHitUpdate(step, total int, track models.CatalogTrack, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseDownload,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Already in library: %s", track.Title),
		Data:    path,
	}
}

func retrievedUpdate(step, total int, track models.CatalogTrack) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseDownload,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Retrieved %s - %s", track.ArtistCredit(), track.Title),
	}
}

func deferredUpdate(step, total int, track models.CatalogTrack) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseDownload,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Deferred %s: another job is retrieving it", track.Title),
	}
}

func trackFailedUpdate(phase Phase, step, total int, track models.CatalogTrack, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Failed %s: %v", track.Title, err),
		Data:    err,
	}
}

func organizedUpdate(step, total int, track models.CatalogTrack, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseImport,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Organized %s", path),
		Data:    path,
	}
}

func playlistUpdate(path string, entries int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseImport,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Wrote playlist %s (%d entries)", path, entries),
		Data:    path,
	}
}
