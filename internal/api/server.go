package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hubharvest/hubharvest/internal/harvest"
)

// Server reports reconciliation state over HTTP. It never mutates the record
// store; runs stay the exclusive writer.
type Server struct {
	router  chi.Router
	catalog []harvest.CatalogEntry
	store   harvest.RecordStore
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. gatherer may be
// nil to fall back to the default Prometheus registry.
func NewServer(
	catalog []harvest.CatalogEntry,
	store harvest.RecordStore,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		catalog: catalog,
		store:   store,
		logger:  logger,
	}

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.getStatus)
		r.Get("/records/*", s.getRecord)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.LoadAll(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "record store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	Catalog int             `json:"catalog"`
	WorkSet int             `json:"work_set"`
	Summary harvest.Summary `json:"summary"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.LoadAll(r.Context())
	if err != nil {
		s.logger.Error("status load failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load records")
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		Catalog: len(s.catalog),
		WorkSet: len(harvest.ComputeWorkSet(s.catalog, records)),
		Summary: harvest.Summarize(s.catalog, records),
	})
}

type recordResponse struct {
	ID             harvest.Identifier     `json:"id"`
	Classification harvest.Classification `json:"classification"`
	Revisions      int                    `json:"revisions,omitempty"`
	FetchedAt      *time.Time             `json:"fetched_at,omitempty"`
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	id := harvest.Identifier(chi.URLParam(r, "*"))
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "identifier required")
		return
	}
	records, err := s.store.LoadAll(r.Context())
	if err != nil {
		s.logger.Error("record load failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load records")
		return
	}
	resp := recordResponse{ID: id, Classification: harvest.ClassifyStored(id, records)}
	if rec, ok := records[id]; ok {
		resp.Revisions = len(rec.History)
		resp.FetchedAt = &rec.FetchedAt
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
