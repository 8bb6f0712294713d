// internal/giving/handler.go
package giving

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"shepherd/internal/analytics"
	"shepherd/internal/auth"
	"shepherd/internal/pkg/httputil"
)

const maxImportBytes = 10 << 20

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes serves /api/giving behind auth.Middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api/giving", func(r chi.Router) {
		r.Get("/", h.handleListGifts)
		r.Post("/", h.handleRecordGift)
		r.Post("/import", h.handleImport)
		r.Delete("/{id}", h.handleDeleteGift)
	})
	return r
}

func (h *Handler) handleListGifts(w http.ResponseWriter, r *http.Request) {
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
	filter := GiftFilter{Range: rng}
	if raw := q.Get("memberId"); raw != "" {
		id, ok := httputil.UUID(w, raw, "memberId")
		if !ok {
			return
		}
		filter.MemberID = &id
	}

	gifts, err := h.service.ListGifts(r.Context(), scope, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, gifts)
}

func (h *Handler) handleRecordGift(w http.ResponseWriter, r *http.Request) {
	scope, err := auth.ScopeFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req GiftInput
	if !httputil.DecodeValid(w, r, &req) {
		return
	}
	gift, err := h.service.RecordGift(r.Context(), scope, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, gift)
}

func (h *Handler) handleDeleteGift(w http.ResponseWriter, r *http.Request) {
	scope, err := auth.ScopeFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, ok := httputil.UUID(w, chi.URLParam(r, "id"), "gift ID")
	if !ok {
		return
	}
	if err := h.service.DeleteGift(r.Context(), scope, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	scope, err := auth.ScopeFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body, ok := httputil.Upload(w, r, maxImportBytes)
	if !ok {
		return
	}
	defer body.Close()

	result, err := h.service.ImportGiving(r.Context(), scope, body)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, result)
}
