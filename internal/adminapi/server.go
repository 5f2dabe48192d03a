// Package adminapi serves the local inspection API: queue listing, manual
// sync triggering and metrics. It binds to loopback by default and carries
// no authentication of its own.
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	apperrors "github.com/dmeireles/writeback/internal/errors"
	"github.com/dmeireles/writeback/internal/models"
	"github.com/dmeireles/writeback/internal/netmon"
	"github.com/dmeireles/writeback/internal/store"
	"github.com/dmeireles/writeback/internal/sync"
	"github.com/dmeireles/writeback/internal/uuid"
)

// Server holds dependencies for the admin handlers.
type Server struct {
	Engine   sync.Synchronizer
	Store    store.Store
	Monitor  netmon.Monitor
	Registry *prometheus.Registry
}

// enqueueRequest is the POST /v1/queue body.
type enqueueRequest struct {
	Kind       string          `json:"kind"`
	Method     string          `json:"method"`
	Endpoint   string          `json:"endpoint"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Priority   int             `json:"priority,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	EntityType string          `json:"entity_type,omitempty"`
}

type enqueueResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	State      string     `json:"state"`
	Online     bool       `json:"online"`
	QueueDepth int        `json:"queue_depth"`
	LastSync   *time.Time `json:"last_sync,omitempty"`
}

type queueResponse struct {
	Count      int                 `json:"count"`
	Operations []*models.Operation `json:"operations"`
}

type syncResponse struct {
	State   string `json:"state"`
	Success *bool  `json:"success,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// writeError maps an error code onto an HTTP status and a JSON envelope.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrInvalidOperation:
		status = http.StatusBadRequest
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
	case apperrors.ErrStore:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: string(code)})
}

// Routes creates the HTTP router with all admin endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	})

	if s.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
	}

	r.Get("/v1/status", s.getStatus)
	r.Get("/v1/queue", s.listQueue)
	r.Post("/v1/queue", s.enqueue)
	r.Get("/v1/queue/{id}", s.getOperation)
	r.Delete("/v1/queue/{id}", s.deleteOperation)
	r.Post("/v1/sync", s.triggerSync)

	return r
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	depth, err := s.Engine.Depth(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := statusResponse{
		State:      string(s.Engine.Status()),
		Online:     s.Monitor.Online(),
		QueueDepth: depth,
	}
	if last := s.Engine.LastSync(); !last.IsZero() {
		resp.LastSync = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

// listQueue returns pending operations in replay order.
func (s *Server) listQueue(w http.ResponseWriter, r *http.Request) {
	ops, err := s.Store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].Priority < ops[j].Priority
	})
	writeJSON(w, http.StatusOK, queueResponse{Count: len(ops), Operations: ops})
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalidOperation, "invalid request body", err))
		return
	}

	id, err := s.Engine.Enqueue(r.Context(), sync.Request{
		Kind:       models.ParseKind(req.Kind),
		Method:     req.Method,
		Endpoint:   req.Endpoint,
		Payload:    req.Payload,
		Priority:   req.Priority,
		EntityID:   req.EntityID,
		EntityType: req.EntityType,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, enqueueResponse{ID: id})
}

func (s *Server) getOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := uuid.Validate(id); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalidOperation, "malformed operation id", err))
		return
	}

	ops, err := s.Store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	for _, op := range ops {
		if op.ID == id {
			writeJSON(w, http.StatusOK, op)
			return
		}
	}
	writeError(w, apperrors.New(apperrors.ErrNotFound, "no pending operation with this id"))
}

// deleteOperation removes a pending operation. Removal is idempotent, so an
// absent id still answers 204.
func (s *Server) deleteOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := uuid.Validate(id); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalidOperation, "malformed operation id", err))
		return
	}

	if err := s.Store.Remove(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// triggerSync starts a pass. With ?wait=true the response carries the result
// of the pass the caller landed on, whether it won or joined one in flight.
// The pass itself runs on a detached context so an impatient client cannot
// abort it.
func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") != "true" {
		go s.Engine.Synchronize(context.Background())
		writeJSON(w, http.StatusAccepted, syncResponse{State: string(sync.StatusSyncing)})
		return
	}

	result := make(chan bool, 1)
	go s.Engine.Synchronize(context.Background(), func(success bool) {
		result <- success
	})

	select {
	case success := <-result:
		writeJSON(w, http.StatusOK, syncResponse{
			State:   string(s.Engine.Status()),
			Success: &success,
		})
	case <-r.Context().Done():
		// Client gave up; the pass keeps running
	}
}
