// Package server exposes the stream interpreter over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"phobos.org.uk/sajtmaskin/internal/api"
	"phobos.org.uk/sajtmaskin/internal/config"
	"phobos.org.uk/sajtmaskin/internal/logging"
	"phobos.org.uk/sajtmaskin/internal/ratelimit"
	"phobos.org.uk/sajtmaskin/internal/session"
	"phobos.org.uk/sajtmaskin/internal/upstream"
)

// defaultDrainTimeout is used by /shutdown when no timeout is given.
const defaultDrainTimeout = 30

// Generator opens generation streams on the builder API.
type Generator interface {
	CreateChatStream(ctx context.Context, req upstream.ChatRequest) (io.ReadCloser, error)
	BaseURL() string
	Ready() bool
}

// Server is the interpreter HTTP service.
type Server struct {
	config    *config.Config
	version   string
	startTime time.Time
	log       *logging.Logger

	store    *session.Store
	hub      *session.Hub
	consumer *session.Consumer
	upstream Generator
	ingest   *ratelimit.Limiter

	// relayCtx is the parent of every background relay.
	relayCtx   context.Context
	stopRelays context.CancelFunc
	relays     sync.WaitGroup

	serverMu  sync.Mutex
	server    *http.Server
	shutdown  chan struct{}
	closeOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithLogger replaces the default stderr logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithGenerator replaces the upstream client built from the config.
func WithGenerator(g Generator) Option {
	return func(s *Server) { s.upstream = g }
}

// New creates a server from cfg.
func New(cfg *config.Config, version string, opts ...Option) *Server {
	s := &Server{
		config:    cfg,
		version:   version,
		startTime: time.Now(),
		store:     session.NewStore(cfg.Streams.MaxRetained),
		hub:       session.NewHub(),
		ingest: ratelimit.NewLimiter(ratelimit.Config{
			Rate:  cfg.Ingest.Rate,
			Burst: cfg.Ingest.Burst,
		}),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = logging.New(logging.Config{
			Output:     os.Stderr,
			Level:      cfg.Level(),
			Component:  "server",
			MaxEntries: 1000,
		})
	}
	if s.upstream == nil {
		s.upstream = upstream.NewClient(upstream.Config{
			BaseURL: cfg.Upstream.BaseURL,
			APIKey:  cfg.APIKey(),
			Timeout: cfg.Upstream.Timeout,
			Rate:    cfg.Upstream.Rate,
			Burst:   cfg.Upstream.Burst,
		})
	}
	s.consumer = session.NewConsumer(s.hub, s.log, cfg.Streams.MaxFrameBytes)
	s.relayCtx, s.stopRelays = context.WithCancel(context.Background())
	return s
}

// Router returns the HTTP router
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.config.Ingest.TrustProxy {
		r.Use(middleware.RealIP)
	}

	r.Get("/status", s.handleStatus)
	r.Post("/interpret", s.handleInterpret)
	r.Post("/shutdown", s.handleShutdown)

	r.Route("/streams", func(r chi.Router) {
		r.Get("/", s.handleListStreams)
		r.Get("/{id}", s.handleGetStream)
		r.Post("/{id}/cancel", s.handleCancelStream)
		r.Get("/{id}/events", s.handleStreamEvents)

		r.Group(func(r chi.Router) {
			r.Use(s.ingest.Middleware(rejectRateLimited))
			r.Post("/", s.handleIngest)
			r.Post("/generate", s.handleGenerate)
		})
	})

	r.Get("/logs", s.handleLogs)
	r.Get("/logs/stats", s.handleLogStats)

	return r
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.serverMu.Lock()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.serverMu.Unlock()

	s.log.Info("server starting", map[string]any{
		"addr":     addr,
		"version":  s.version,
		"upstream": s.upstream.BaseURL(),
	})
	return srv.ListenAndServe()
}

// Shutdown stops accepting requests, cancels running relays and waits for
// them to finish or for ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	s.closeOnce.Do(func() { close(s.shutdown) })
	srv := s.server
	s.serverMu.Unlock()
	s.stopRelays()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.relays.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// Store returns the stream registry.
func (s *Server) Store() *session.Store {
	return s.store
}

// handleStatus returns version, uptime and stream counts.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	active, total := s.store.Counts()
	api.WriteJSON(w, http.StatusOK, api.StatusResponse{
		Type:          api.ComponentType,
		Interfaces:    []string{api.InterfaceStatusable, api.InterfaceObservable, api.InterfaceStreamable},
		Version:       s.version,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		ActiveStreams: active,
		TotalStreams:  total,
		Upstream:      s.upstream.BaseURL(),
		UpstreamReady: s.upstream.Ready(),
	})
}

// handleShutdown initiates graceful shutdown.
// If force=false and streams are active, returns 409.
// If force=true, running relays are cancelled.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TimeoutSeconds int  `json:"timeout_seconds"`
		Force          bool `json:"force"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			api.WriteError(w, http.StatusBadRequest, api.ErrValidation, "Invalid JSON: "+err.Error())
			return
		}
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = defaultDrainTimeout
	}

	if active, _ := s.store.Counts(); active > 0 && !req.Force {
		api.WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"error":          api.ErrConflict,
			"message":        "Streams are still active, use force to cancel them",
			"active_streams": active,
		})
		return
	}

	api.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":       "Shutdown initiated",
		"drain_timeout": req.TimeoutSeconds,
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(req.TimeoutSeconds)*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	}()
}

// handleLogs returns log entries filtered by level, stream, time window
// and limit (default 100).
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := logging.Query{
		StreamID:  query.Get("stream_id"),
		Component: query.Get("component"),
	}

	if v := query.Get("level"); v != "" {
		level, ok := logging.ParseLevel(v)
		if !ok {
			api.WriteError(w, http.StatusBadRequest, api.ErrValidation, "level must be debug, info, warn or error")
			return
		}
		q.Level = level
	}

	var err error
	if q.Since, err = api.ParseTimeParam(query.Get("since")); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrValidation, "since "+err.Error())
		return
	}
	if q.Until, err = api.ParseTimeParam(query.Get("until")); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrValidation, "until "+err.Error())
		return
	}
	if q.Limit, err = api.ParseIntParam(query.Get("limit"), 1, 1000, 100); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrValidation, "limit "+err.Error())
		return
	}

	api.WriteJSON(w, http.StatusOK, s.log.Query(q))
}

// handleLogStats returns log statistics without entries.
func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, s.log.Stats())
}

func rejectRateLimited(w http.ResponseWriter, r *http.Request) {
	api.WriteError(w, http.StatusTooManyRequests, api.ErrRateLimited, "Too many stream submissions, slow down")
}
