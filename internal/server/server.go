// Package server exposes the query and import HTTP API.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/jobatlas/internal/ingest"
	"github.com/sells-group/jobatlas/internal/ratelimit"
	"github.com/sells-group/jobatlas/internal/store"
)

// ImportRunner triggers the ingestion pipeline on demand.
type ImportRunner interface {
	Run(ctx context.Context, pages []int, perPage int) (ingest.Summary, error)
}

// Options carries the server's request-handling knobs.
type Options struct {
	Limiter       *ratelimit.Limiter
	ImportSecret  string
	ImportPages   []int
	ImportPerPage int
	CORSOrigins   []string
}

// Server routes API requests to the store, the spatial engine, and the
// import pipeline.
type Server struct {
	store    store.Store
	importer ImportRunner
	limiter  *ratelimit.Limiter
	indexes  *IndexCache
	opts     Options
}

// New wires a Server. The importer may be nil, in which case the import
// endpoint reports a configuration error.
func New(st store.Store, importer ImportRunner, opts Options) *Server {
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New(time.Minute, 60)
	}
	return &Server{
		store:    st,
		importer: importer,
		limiter:  limiter,
		indexes:  NewIndexCache(256, 5*time.Minute),
		opts:     opts,
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Import-Secret"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Get("/jobs", s.handleJobs)
			r.Get("/clusters", s.handleClusters)
			r.Get("/clusters/expand", s.handleExpand)
		})
		r.Post("/import", s.handleImport)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// apiError is the wire shape of every non-2xx response.
type apiError struct {
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message, hint string) {
	writeJSON(w, status, apiError{Message: message, Hint: hint})
}
