package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/ytlib/internal/jobs"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/repositories"
	"github.com/desertthunder/ytlib/internal/scheduler"
	"github.com/desertthunder/ytlib/internal/services"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/desertthunder/ytlib/internal/stream"
	"github.com/desertthunder/ytlib/internal/tasks"
	"github.com/desertthunder/ytlib/internal/testing/fakes"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	trackURL    = "https://music.youtube.com/watch?v=abc123"
	playlistURL = "https://music.youtube.com/playlist?list=PLmix"
)

// idleRunner is never reached; the queue is not started so admitted jobs stay pending.
type idleRunner struct{}

func (idleRunner) Run(context.Context, *models.Job, tasks.Tracker) (models.JobResult, error) {
	return models.JobResult{}, errors.New("unexpected run")
}

type env struct {
	ts     *httptest.Server
	api    *services.APIService
	broker *stream.Broker
	tracks *repositories.TrackRecordRepository
}

func newEnv(t *testing.T, capacity int) *env {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, shared.RunMigrations(db))

	broker := stream.NewBroker(50)
	store := jobs.NewStore(repositories.NewJobRepository(db), broker)
	queue := jobs.NewQueue(store, idleRunner{}, jobs.QueueOpts{Workers: 1, Capacity: capacity}, nil)
	manager := jobs.NewManager(store, queue, nil)

	subsRepo := repositories.NewSubscriptionRepository(db)
	catalog := fakes.NewFakeCatalog().Add(playlistURL, &models.CatalogItem{Kind: models.KindPlaylist, Title: "Road Trip"})
	tracks := repositories.NewTrackRecordRepository(db)

	srv := New(shared.ServerConfig{CORSOrigins: []string{"http://localhost:5173"}}, Deps{
		Jobs:          manager,
		Scheduler:     scheduler.New(subsRepo, manager, shared.SchedulerConfig{Enabled: true, IntervalMinutes: 60}, nil),
		Subscriptions: scheduler.NewSubscriptions(subsRepo, catalog, nil),
		Tracks:        tracks,
		Broker:        broker,
		Registry:      prometheus.NewRegistry(),
	}, nil)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &env{ts: ts, api: services.NewAPIService(ts.URL, ts.Client()), broker: broker, tracks: tracks}
}

func TestJobsAPI(t *testing.T) {
	ctx := context.Background()

	t.Run("submit and fetch", func(t *testing.T) {
		e := newEnv(t, 5)

		id, err := e.api.SubmitJob(ctx, models.CreateJobRequest{URL: trackURL})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		job, err := e.api.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, job.Status)
		assert.Equal(t, models.KindTrack, job.Kind)

		active, err := e.api.ListJobs(ctx, true)
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})

	t.Run("submit returns 201", func(t *testing.T) {
		e := newEnv(t, 5)

		resp, err := http.Post(e.ts.URL+"/api/jobs", "application/json", strings.NewReader(`{"url":"`+trackURL+`"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("validation errors", func(t *testing.T) {
		e := newEnv(t, 5)

		for _, body := range []string{`{}`, `{"url":"not a url"}`, `{"url":"https://example.com/x"}`, `{"url":"` + trackURL + `","max_items":-1}`, `{"url":"` + trackURL + `","audio_format":"opus"}`, `{`} {
			resp, err := http.Post(e.ts.URL+"/api/jobs", "application/json", strings.NewReader(body))
			require.NoError(t, err)

			var out models.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			resp.Body.Close()

			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, body)
			assert.Equal(t, "validation", out.Error, body)
		}

		listed, err := e.api.ListJobs(ctx, false)
		require.NoError(t, err)
		assert.Empty(t, listed)
	})

	t.Run("full queue is a conflict", func(t *testing.T) {
		e := newEnv(t, 1)

		_, err := e.api.SubmitJob(ctx, models.CreateJobRequest{URL: trackURL})
		require.NoError(t, err)
		_, err = e.api.SubmitJob(ctx, models.CreateJobRequest{URL: trackURL})
		require.ErrorIs(t, err, shared.ErrConflict)
		assert.Contains(t, err.Error(), "queue is full")
	})

	t.Run("unknown job", func(t *testing.T) {
		e := newEnv(t, 5)

		_, err := e.api.GetJob(ctx, "missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.ErrorIs(t, e.api.CancelJob(ctx, "missing"), shared.ErrNotFound)
		assert.ErrorIs(t, e.api.DeleteJob(ctx, "missing"), shared.ErrNotFound)
	})

	t.Run("cancel delete and clear", func(t *testing.T) {
		e := newEnv(t, 5)

		first, err := e.api.SubmitJob(ctx, models.CreateJobRequest{URL: trackURL})
		require.NoError(t, err)
		second, err := e.api.SubmitJob(ctx, models.CreateJobRequest{URL: trackURL})
		require.NoError(t, err)

		err = e.api.DeleteJob(ctx, first)
		require.ErrorIs(t, err, shared.ErrConflict)
		assert.Equal(t, first, shared.ActiveJobID(err))

		require.NoError(t, e.api.CancelJob(ctx, first))
		job, err := e.api.GetJob(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, job.Status)

		assert.ErrorIs(t, e.api.CancelJob(ctx, first), shared.ErrConflict)

		require.NoError(t, e.api.CancelJob(ctx, second))
		require.NoError(t, e.api.DeleteJob(ctx, first))

		n, err := e.api.ClearJobs(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		all, err := e.api.ListJobs(ctx, false)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestSubscriptionsAPI(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 5)

	sub, err := e.api.CreateSubscription(ctx, models.CreateSubscriptionRequest{URL: playlistURL, MaxItems: 3})
	require.NoError(t, err)
	assert.Equal(t, "Road Trip", sub.Name)

	_, err = e.api.CreateSubscription(ctx, models.CreateSubscriptionRequest{URL: playlistURL})
	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = e.api.CreateSubscription(ctx, models.CreateSubscriptionRequest{URL: trackURL})
	assert.ErrorIs(t, err, shared.ErrValidation)

	name := "Renamed"
	updated, err := e.api.UpdateSubscription(ctx, sub.ID, models.SubscriptionPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	_, err = e.api.UpdateSubscription(ctx, "missing", models.SubscriptionPatch{Name: &name})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	jobID, err := e.api.SyncSubscription(ctx, sub.ID)
	require.NoError(t, err)
	job, err := e.api.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, job.SubscriptionID)
	assert.Equal(t, 3, job.MaxItems)

	_, err = e.api.SyncSubscription(ctx, sub.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, jobID, shared.ActiveJobID(err))

	res, err := e.api.SyncAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.JobIDs)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, jobID, res.Conflicts[0].ActiveJobID)

	status, err := e.api.SchedulerStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, 60, status.IntervalMinutes)

	list, err := e.api.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, e.api.DeleteSubscription(ctx, sub.ID))
	assert.ErrorIs(t, e.api.DeleteSubscription(ctx, sub.ID), shared.ErrNotFound)

	_, err = e.api.GetJob(ctx, jobID)
	assert.NoError(t, err)
}

func TestSyncReturnsAccepted(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 5)

	sub, err := e.api.CreateSubscription(ctx, models.CreateSubscriptionRequest{URL: playlistURL})
	require.NoError(t, err)

	resp, err := http.Post(e.ts.URL+"/api/subscriptions/"+sub.ID+"/sync", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestLibraryAPI(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 5)

	for _, rec := range []*models.TrackRecord{
		{Key: "a1", Path: "Artist/2020 - One/01 - A.mp3", AlbumKey: "one", ArtistKey: "artist", Fingerprint: "f1"},
		{Key: "b1", Path: "Other/2021 - Two/01 - B.mp3", AlbumKey: "two", ArtistKey: "other", Fingerprint: "f2"},
	} {
		require.NoError(t, e.tracks.Append(rec))
	}

	all, err := e.api.LibraryTracks(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, all.Count)

	one, err := e.api.LibraryTracks(ctx, "one", "")
	require.NoError(t, err)
	require.Len(t, one.Tracks, 1)
	assert.Equal(t, "a1", one.Tracks[0].Key)
}

func TestJobLogsStream(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 5)

	id, err := e.api.SubmitJob(ctx, models.CreateJobRequest{URL: trackURL})
	require.NoError(t, err)
	e.broker.Publish(stream.Entry{JobID: id, Message: "resolving"})

	conn, _, err := websocket.DefaultDialer.Dial(e.api.StreamURL(id), nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello stream.Frame
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, stream.FrameHello, hello.Type)
	require.NotEmpty(t, hello.Entries)
	assert.Equal(t, "resolving", hello.Entries[len(hello.Entries)-1].Message)

	e.broker.Publish(stream.Entry{JobID: id, Message: "downloading"})
	var next stream.Frame
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, stream.FrameEntry, next.Type)

	_, resp, err := websocket.DefaultDialer.Dial(e.api.StreamURL("missing"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t, 5)
	require.NoError(t, e.api.Health(context.Background()))

	resp, err := http.Get(e.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	e := newEnv(t, 5)

	req, err := http.NewRequest(http.MethodOptions, e.ts.URL+"/api/jobs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}
