package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
)

// StatusSource is satisfied by *service.AccessController.
type StatusSource interface {
	Snapshot() service.Snapshot
}

type Dependencies struct {
	Logger *slog.Logger
	Addr   string
	Status StatusSource

	// Journal, if set, backs GET /v1/events.
	Journal store.AccessEventStore

	// Gatherer, if set, is exposed on /metrics.
	Gatherer prometheus.Gatherer

	Now func() time.Time
}

// Server is the local, read-only status surface. It exposes no
// operation that can change controller state.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux
	status     StatusSource
	journal    store.AccessEventStore
	now        func() time.Time
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	s := &Server{
		logger:  d.Logger.With("component", "httpapi"),
		mux:     mux,
		status:  d.Status,
		journal: d.Journal,
		now:     d.Now,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	if d.Journal != nil {
		mux.HandleFunc("GET /v1/events", s.handleEvents)
	}
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	handler := loggingMiddleware(s.logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.status.Snapshot()

	if wantsProtobuf(r) {
		msg, err := snapshotToProto(snap, s.now())
		if err != nil {
			s.logger.Error("encode status", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, snap.Map(s.now()))
}

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	recs, err := s.journal.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: eventsToJSON(recs)})
}
