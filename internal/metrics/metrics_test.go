package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainMetrics(t *testing.T) {
	t.Run("job finished", func(t *testing.T) {
		before := testutil.ToFloat64(jobsFinishedMetric.WithLabelValues("completed"))
		ObserveJobFinished("completed", 2*time.Second)
		assert.Equal(t, before+1, testutil.ToFloat64(jobsFinishedMetric.WithLabelValues("completed")))
	})

	t.Run("zero duration is not sampled", func(t *testing.T) {
		series := testutil.CollectAndCount(jobDurationMetric)
		ObserveJobFinished("cancelled-unsampled", 0)
		assert.Equal(t, series, testutil.CollectAndCount(jobDurationMetric))
		assert.Equal(t, float64(1), testutil.ToFloat64(jobsFinishedMetric.WithLabelValues("cancelled-unsampled")))

		ObserveJobFinished("cancelled-sampled", 3*time.Second)
		assert.Equal(t, series+1, testutil.CollectAndCount(jobDurationMetric))
	})

	t.Run("retrievals and hits", func(t *testing.T) {
		ok := testutil.ToFloat64(retrievalsMetric.WithLabelValues("ok"))
		hits := testutil.ToFloat64(dedupHitsMetric)

		IncreaseRetrievals("ok")
		IncreaseDedupHits()

		assert.Equal(t, ok+1, testutil.ToFloat64(retrievalsMetric.WithLabelValues("ok")))
		assert.Equal(t, hits+1, testutil.ToFloat64(dedupHitsMetric))
	})

	t.Run("queue depth", func(t *testing.T) {
		SetQueueDepth(3)
		assert.Equal(t, float64(3), testutil.ToFloat64(queueDepthMetric))
		SetQueueDepth(0)
	})
}

func TestMiddleware(t *testing.T) {
	m := NewMiddleware("test")
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m.requests))
	require.NoError(t, reg.Register(m.latency))

	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/jobs/"+id, nil))
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.requests.WithLabelValues("404", http.MethodGet, "/api/jobs/{id}")))
}
