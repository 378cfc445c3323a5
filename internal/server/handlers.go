package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/desertthunder/ytlib/internal/stream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type jobsHandler struct{ s *Server }

func (h *jobsHandler) Mount(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Delete("/", h.clear)
		r.Get("/{id}", h.get)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/cancel", h.cancel)
		r.Get("/{id}/logs", h.logs)
	})
}

func (h *jobsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := h.s.decode(r, &req); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	job, err := h.s.deps.Jobs.Submit(req)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, models.CreateJobResponse{ID: job.ID})
}

func (h *jobsHandler) list(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := boolParam(r, "active")
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	list, err := h.s.deps.Jobs.List(activeOnly)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Job{}
	}
	render.JSON(w, r, models.JobsResponse{Jobs: list})
}

func (h *jobsHandler) get(w http.ResponseWriter, r *http.Request) {
	job, err := h.s.deps.Jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, job)
}

func (h *jobsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	if _, err := h.s.deps.Jobs.Cancel(chi.URLParam(r, "id")); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *jobsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.s.deps.Jobs.Delete(chi.URLParam(r, "id")); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *jobsHandler) clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.s.deps.Jobs.ClearFinished()
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, models.ClearResponse{Cleared: n})
}

// logs checks the job exists before upgrading so unknown ids get a 404 instead of an empty stream.
func (h *jobsHandler) logs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.s.deps.Jobs.Get(id); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	stream.Handler(h.s.deps.Broker, func(*http.Request) string { return id }, h.s.logger)(w, r)
}

type subscriptionsHandler struct{ s *Server }

func (h *subscriptionsHandler) Mount(r chi.Router) {
	r.Route("/subscriptions", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Post("/sync", h.syncAll)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/sync", h.sync)
	})
	r.Get("/scheduler", h.status)
}

func (h *subscriptionsHandler) list(w http.ResponseWriter, r *http.Request) {
	subs, err := h.s.deps.Subscriptions.List()
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	if subs == nil {
		subs = []*models.Subscription{}
	}
	render.JSON(w, r, models.SubscriptionsResponse{Subscriptions: subs})
}

func (h *subscriptionsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSubscriptionRequest
	if err := h.s.decode(r, &req); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	sub, err := h.s.deps.Subscriptions.Create(r.Context(), req)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sub)
}

func (h *subscriptionsHandler) update(w http.ResponseWriter, r *http.Request) {
	var patch models.SubscriptionPatch
	if err := h.s.decode(r, &patch); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	sub, err := h.s.deps.Subscriptions.Update(chi.URLParam(r, "id"), patch)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, sub)
}

func (h *subscriptionsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.s.deps.Subscriptions.Delete(chi.URLParam(r, "id")); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *subscriptionsHandler) sync(w http.ResponseWriter, r *http.Request) {
	job, err := h.s.deps.Scheduler.SyncOne(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, models.SyncResponse{JobID: job.ID})
}

func (h *subscriptionsHandler) syncAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.s.deps.Scheduler.SyncAll(r.Context())
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	if res.JobIDs == nil {
		res.JobIDs = []string{}
	}
	if res.Conflicts == nil {
		res.Conflicts = []models.SyncConflict{}
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, res)
}

func (h *subscriptionsHandler) status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.s.deps.Scheduler.Status())
}

type libraryHandler struct{ s *Server }

func (h *libraryHandler) Mount(r chi.Router) {
	r.Get("/library/tracks", h.tracks)
}

func (h *libraryHandler) tracks(w http.ResponseWriter, r *http.Request) {
	criteria := map[string]any{}
	if album := r.URL.Query().Get("album"); album != "" {
		criteria["album_key"] = album
	}
	if artist := r.URL.Query().Get("artist"); artist != "" {
		criteria["artist_key"] = artist
	}

	records, err := h.s.deps.Tracks.List(criteria)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []*models.TrackRecord{}
	}
	render.JSON(w, r, models.TracksResponse{Tracks: records, Count: len(records)})
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", shared.ErrValidation, name)
	}
	return v, nil
}
