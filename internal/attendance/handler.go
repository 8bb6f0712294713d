// internal/attendance/handler.go
package attendance

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"shepherd/internal/analytics"
	"shepherd/internal/auth"
	"shepherd/internal/pkg/httputil"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type submitSheetRequest struct {
	Version int     `json:"version" validate:"min=0"`
	Entries []Entry `json:"entries" validate:"max=2000,dive"`
}

// Routes serves /api/services and /api/attendance behind auth.Middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/api/services", h.handleListServices)
	r.Post("/api/services", h.handleCreateService)
	r.Get("/api/attendance/{serviceID}", h.handleGetSheet)
	r.Put("/api/attendance/{serviceID}", h.handleSubmitSheet)
	return r
}

func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	scope, err := auth.ScopeFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	rng, err := analytics.ParseDateRange(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	services, err := h.service.ListServices(r.Context(), scope, rng)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, services)
}

func (h *Handler) handleCreateService(w http.ResponseWriter, r *http.Request) {
	scope, err := auth.ScopeFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req ServiceInput
	if !httputil.DecodeValid(w, r, &req) {
		return
	}
	svc, err := h.service.CreateService(r.Context(), scope, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, svc)
}

func (h *Handler) handleGetSheet(w http.ResponseWriter, r *http.Request) {
	scope, err := auth.ScopeFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, ok := httputil.UUID(w, chi.URLParam(r, "serviceID"), "service ID")
	if !ok {
		return
	}
	sheet, err := h.service.GetSheet(r.Context(), scope, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, sheet)
}

func (h *Handler) handleSubmitSheet(w http.ResponseWriter, r *http.Request) {
	scope, err := auth.ScopeFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, ok := httputil.UUID(w, chi.URLParam(r, "serviceID"), "service ID")
	if !ok {
		return
	}
	var req submitSheetRequest
	if !httputil.DecodeValid(w, r, &req) {
		return
	}
	sheet, err := h.service.SubmitSheet(r.Context(), scope, id, req.Version, req.Entries)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, sheet)
}
