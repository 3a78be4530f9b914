// Package http provides HTTP REST API handlers.
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/school-platform/attendance-service/internal/attendance"
	"github.com/school-platform/attendance-service/internal/auth"
	"github.com/school-platform/attendance-service/internal/broker"
	"github.com/school-platform/attendance-service/internal/dataset"
	"github.com/school-platform/attendance-service/internal/replicated"
	"github.com/school-platform/attendance-service/internal/store"
)

// Handler provides HTTP handlers for attendance operations.
type Handler struct {
	registration *attendance.RegistrationService
	flags        *attendance.FlagService
	fetcher      *dataset.Fetcher
	invalidation *broker.InvalidationService
	cache        *replicated.Client
}

// NewHandler creates a new HTTP handler.
func NewHandler(registration *attendance.RegistrationService, flags *attendance.FlagService, fetcher *dataset.Fetcher, invalidation *broker.InvalidationService, cache *replicated.Client) *Handler {
	return &Handler{
		registration: registration,
		flags:        flags,
		fetcher:      fetcher,
		invalidation: invalidation,
		cache:        cache,
	}
}

// MarkRequest represents a mark registration request body.
type MarkRequest struct {
	Mode       string `json:"mode"`
	ExpectedAt string `json:"expected_at"`

	StaffID   string `json:"staff_id,omitempty"`
	StaffKind string `json:"staff_kind,omitempty"`

	Level     string `json:"level,omitempty"`
	Grade     string `json:"grade,omitempty"`
	Section   string `json:"section,omitempty"`
	StudentID string `json:"student_id,omitempty"`
}

// MarkView is the JSON shape of a stored mark.
type MarkView struct {
	MarkedAtMillis *int64 `json:"marked_at_ms,omitempty"`
	OffsetSeconds  int64  `json:"offset_seconds"`
}

// MarkResponse represents a mark registration response.
type MarkResponse struct {
	Outcome    string    `json:"outcome"`
	Key        string    `json:"key"`
	Mark       *MarkView `json:"mark,omitempty"`
	TTLSeconds int       `json:"ttl_seconds"`
	Population string    `json:"population"`
}

// StatusResponse represents a mark status response.
type StatusResponse struct {
	Found bool      `json:"found"`
	Key   string    `json:"key"`
	Mark  *MarkView `json:"mark,omitempty"`
}

// WindowResponse represents an attendance window state response.
type WindowResponse struct {
	Population string `json:"population"`
	Open       bool   `json:"open"`
}

// InvalidateResponse represents a dataset invalidation response.
type InvalidateResponse struct {
	Dataset   string `json:"dataset"`
	Dropped   bool   `json:"dropped"`
	Published bool   `json:"published"`
}

func markView(m attendance.Mark) *MarkView {
	switch v := m.(type) {
	case attendance.StaffMark:
		markedAt := v.MarkedAt
		return &MarkView{MarkedAtMillis: &markedAt, OffsetSeconds: v.OffsetSeconds}
	case attendance.StudentMark:
		return &MarkView{OffsetSeconds: v.OffsetSeconds}
	default:
		return nil
	}
}

// RegisterMark handles POST /api/v1/attendance/marks
func (h *Handler) RegisterMark(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.GetIdentityFromContext(r.Context())
	if !ok {
		WriteUnauthorized(w, r, "authentication required")
		return
	}

	var req MarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}

	expectedAt, err := time.Parse(time.RFC3339, req.ExpectedAt)
	if err != nil {
		WriteBadRequest(w, r, "expected_at must be an RFC 3339 timestamp")
		return
	}

	result, err := h.registration.Register(r.Context(), identity, attendance.MarkRequest{
		Mode:       attendance.Mode(req.Mode),
		ExpectedAt: expectedAt,
		StaffID:    req.StaffID,
		StaffKind:  attendance.ActorKind(req.StaffKind),
		Level:      req.Level,
		Grade:      req.Grade,
		Section:    req.Section,
		StudentID:  req.StudentID,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Outcome == attendance.OutcomeAlreadyExists {
		status = http.StatusOK
	}

	writeJSON(w, status, MarkResponse{
		Outcome:    result.Outcome.String(),
		Key:        result.Key,
		Mark:       markView(result.Mark),
		TTLSeconds: result.TTLSeconds,
		Population: string(result.Population),
	})
}

// MarkStatus handles GET /api/v1/attendance/marks/{key}
func (h *Handler) MarkStatus(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		WriteBadRequest(w, r, "key is required")
		return
	}

	status, err := h.registration.Status(r.Context(), key)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	resp := StatusResponse{Found: status.Found, Key: status.Key}
	if status.Found {
		resp.Mark = markView(status.Mark)
	}
	writeJSON(w, http.StatusOK, resp)
}

// DiscardMark handles DELETE /api/v1/attendance/marks/{key}
func (h *Handler) DiscardMark(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.GetIdentityFromContext(r.Context())
	if !ok {
		WriteUnauthorized(w, r, "authentication required")
		return
	}

	key := chi.URLParam(r, "key")
	if key == "" {
		WriteBadRequest(w, r, "key is required")
		return
	}

	if err := h.registration.Discard(r.Context(), identity, key); err != nil {
		WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkConsistency handles GET /api/v1/attendance/marks/{key}/consistency
func (h *Handler) MarkConsistency(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		WriteBadRequest(w, r, "key is required")
		return
	}

	report, err := h.registration.CheckConsistency(r.Context(), key)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// OpenWindow handles POST /api/v1/attendance/windows/{population}
func (h *Handler) OpenWindow(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.GetIdentityFromContext(r.Context())
	if !ok {
		WriteUnauthorized(w, r, "authentication required")
		return
	}

	population := attendance.Population(chi.URLParam(r, "population"))
	if !population.Valid() {
		WriteBadRequest(w, r, "unknown population")
		return
	}

	if err := h.flags.Open(r.Context(), identity, population); err != nil {
		WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, WindowResponse{Population: string(population), Open: true})
}

// WindowStatus handles GET /api/v1/attendance/windows/{population}
func (h *Handler) WindowStatus(w http.ResponseWriter, r *http.Request) {
	population := attendance.Population(chi.URLParam(r, "population"))
	if !population.Valid() {
		WriteBadRequest(w, r, "unknown population")
		return
	}

	open, err := h.flags.IsOpen(r.Context(), population)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, WindowResponse{Population: string(population), Open: open})
}

// FetchDataset handles GET /api/v1/datasets/{name}
func (h *Handler) FetchDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		WriteBadRequest(w, r, "dataset name is required")
		return
	}

	result, err := h.fetcher.Fetch(r.Context(), name)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Data-Source", result.Source.String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// InvalidateDataset handles POST /api/v1/datasets/{name}/invalidate
func (h *Handler) InvalidateDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		WriteBadRequest(w, r, "dataset name is required")
		return
	}

	dropped := h.fetcher.Invalidate(name)

	published := false
	if h.invalidation != nil {
		if err := h.invalidation.PublishInvalidation(r.Context(), []string{name}, "update"); err == nil {
			published = true
		}
	}

	writeJSON(w, http.StatusOK, InvalidateResponse{
		Dataset:   name,
		Dropped:   dropped,
		Published: published,
	})
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Healthy bool              `json:"healthy"`
	Groups  map[string]string `json:"groups,omitempty"`
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Healthy: true})
}

// Ready handles GET /ready. Readiness requires every instance group to
// answer a ping on at least one instance.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	groups := make(map[string]string, len(store.Groups))
	healthy := true

	for _, group := range store.Groups {
		if err := h.cache.Ping(r.Context(), group); err != nil {
			groups[group.String()] = "unreachable"
			healthy = false
			continue
		}
		groups[group.String()] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{Healthy: healthy, Groups: groups})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) // Error intentionally ignored - response already committed
}
