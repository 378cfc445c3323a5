package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytlib/internal/jobs"
	"github.com/desertthunder/ytlib/internal/metrics"
	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/scheduler"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/desertthunder/ytlib/internal/stream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler groups the endpoints of one resource.
type Handler interface {
	Mount(r chi.Router)
}

// TrackLister reads the dedup index. It is satisfied by repositories.TrackRecordRepository.
type TrackLister interface {
	List(criteria map[string]any) ([]*models.TrackRecord, error)
}

// Deps are the services the API controls.
type Deps struct {
	Jobs          *jobs.Manager
	Scheduler     *scheduler.Scheduler
	Subscriptions *scheduler.Subscriptions
	Tracks        TrackLister
	Broker        *stream.Broker
	Registry      *prometheus.Registry // nil uses the default registry
}

// Server is the HTTP API.
type Server struct {
	cfg    shared.ServerConfig
	deps   Deps
	logger *log.Logger
	router chi.Router
	valid  *validator.Validate
}

// New builds the router. Call [Server.Run] to listen.
func New(cfg shared.ServerConfig, deps Deps, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		router: chi.NewRouter(),
		valid:  validator.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	requests := metrics.NewMiddleware("ytlib")
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if s.deps.Registry != nil {
		s.deps.Registry.MustRegister(requests.Collectors()...)
		gatherer = s.deps.Registry
	} else {
		registerDefault(requests.Collectors())
	}

	s.Use(
		middleware.RequestID,
		middleware.Recoverer,
		requestLogger(s.logger),
		requests.Handler,
	)
	if len(s.cfg.CORSOrigins) > 0 {
		s.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		for _, h := range []Handler{
			&jobsHandler{s: s},
			&subscriptionsHandler{s: s},
			&libraryHandler{s: s},
		} {
			h.Mount(r)
		}
		r.Get("/events", stream.Handler(s.deps.Broker, func(*http.Request) string { return stream.AllTopic }, s.logger))
	})
}

// registerDefault registers collectors on the default registry, tolerating repeats from earlier servers.
func registerDefault(cs []prometheus.Collector) {
	for _, c := range cs {
		if err := prometheus.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

// Use adds middleware to every route.
func (s *Server) Use(mw ...Middleware) {
	for _, m := range mw {
		s.router.Use(m)
	}
}

// ServeHTTP implements [http.Handler] for the entire router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on the configured address until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestLogger logs each request at debug level, or warn for server errors.
func requestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			kv := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			}
			if ww.Status() >= 500 {
				logger.Warn("request failed", kv...)
				return
			}
			logger.Debug("request", kv...)
		})
	}
}
