// Package api exposes the outreach database over a small management REST
// API and as MCP tools.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kalambet/outreach/internal/metrics"
	"github.com/kalambet/outreach/internal/sequence"
	"github.com/kalambet/outreach/internal/storage"
)

type AppDeps struct {
	Store           *storage.Store
	Enroller        *sequence.Enroller
	Sequences       sequence.Catalog
	DefaultSequence string
	Token           string
	AllowedOrigins  []string         // CORS; defaults to localhost only
	Now             func() time.Time // optional; defaults to time.Now in UTC
}

func (d AppDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// sequenceID resolves an optional requested id against the catalog.
func (d AppDeps) sequenceID(requested string) (string, bool) {
	if requested == "" {
		requested = d.DefaultSequence
	}
	_, ok := d.Sequences[requested]
	return requested, ok
}

// NewAppHandler builds the management API. /health and /metrics are open;
// everything else requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware(routePattern))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth(deps))
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/status", handleStatus(deps))

		r.Route("/prospects", func(r chi.Router) {
			r.Get("/", handleListProspects(deps))
			r.Post("/", handleAddProspect(deps))
			r.Get("/{id}", handleGetProspect(deps))
		})

		r.Route("/enrollments", func(r chi.Router) {
			r.Post("/", handleEnroll(deps))
			r.Post("/enroll-all", handleEnrollAll(deps))
			r.Get("/due", handleListDue(deps))
			r.Delete("/", handleClearEnrollments(deps))
		})

		r.Get("/replies", handleListReplies(deps))
	})

	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Ping(); err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "database unavailable: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := BuildStatus(deps.Store, deps.now())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build status: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleListProspects(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)
		offset := parseIntParam(r, "offset", 0, 0)

		prospects, err := deps.Store.ListProspects(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list prospects: %v", err)
			return
		}
		if prospects == nil {
			prospects = []storage.Prospect{}
		}
		writeJSON(w, http.StatusOK, prospects)
	}
}

func handleAddProspect(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var in ProspectInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := in.validate(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		p, created, err := addProspect(deps.Store, in)
		if errors.Is(err, errEmailTaken) {
			httpError(w, http.StatusConflict, "conflict", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save prospect: %v", err)
			return
		}
		code := http.StatusOK
		if created {
			code = http.StatusCreated
		}
		writeJSON(w, code, p)
	}
}

type prospectDetail struct {
	storage.Prospect
	Enrollments []storage.Enrollment `json:"enrollments"`
}

func handleGetProspect(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		p, err := deps.Store.GetProspect(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "prospect not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get prospect: %v", err)
			return
		}
		enrollments, err := deps.Store.ListEnrollments(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list enrollments: %v", err)
			return
		}
		if enrollments == nil {
			enrollments = []storage.Enrollment{}
		}
		writeJSON(w, http.StatusOK, prospectDetail{Prospect: p, Enrollments: enrollments})
	}
}

type enrollRequest struct {
	ProspectID string `json:"prospect_id"`
	SequenceID string `json:"sequence_id"`
}

func handleEnroll(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req enrollRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ProspectID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prospect_id is required")
			return
		}
		seq, ok := deps.sequenceID(req.SequenceID)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown sequence %q", seq)
			return
		}

		err := deps.Enroller.Enroll(r.Context(), req.ProspectID, seq)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "prospect not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enroll: %v", err)
			return
		}
		e, err := deps.Store.GetEnrollmentFor(req.ProspectID, seq)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load enrollment: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func handleEnrollAll(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SequenceID string `json:"sequence_id"`
		}
		if r.ContentLength != 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}
		seq, ok := deps.sequenceID(req.SequenceID)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown sequence %q", seq)
			return
		}

		n, err := deps.Enroller.EnrollAll(r.Context(), seq)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enroll prospects: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sequence_id": seq, "enrolled": n})
	}
}

func handleListDue(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		due, err := deps.Store.GetDueActions(deps.now())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list due actions: %v", err)
			return
		}
		if due == nil {
			due = []storage.Enrollment{}
		}
		writeJSON(w, http.StatusOK, due)
	}
}

// handleClearEnrollments wipes every enrollment. Prospects are kept.
// Requires ?confirm=true.
func handleClearEnrollments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") != "true" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "add ?confirm=true to delete all enrollments")
			return
		}
		n, err := deps.Store.ClearAllEnrollments()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear enrollments: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
	}
}

func handleListReplies(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		replies, err := deps.Store.ListReplies(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list replies: %v", err)
			return
		}
		if replies == nil {
			replies = []storage.Reply{}
		}
		writeJSON(w, http.StatusOK, replies)
	}
}
