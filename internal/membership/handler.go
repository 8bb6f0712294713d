// internal/membership/handler.go
package membership

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

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

type updateMemberRequest struct {
	Version int `json:"version" validate:"required,min=1"`
	MemberInput
}

type assignHouseholdRequest struct {
	HouseholdID *uuid.UUID `json:"householdId"`
}

// Routes serves /api/members and /api/households. It must sit behind
// auth.Middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api/members", func(r chi.Router) {
		r.Get("/", h.handleListMembers)
		r.Post("/", h.handleAddMember)
		r.Post("/import", h.handleImport)
		r.Get("/activity", h.handleActivity)
		r.Get("/{id}", h.handleGetMember)
		r.Put("/{id}", h.handleUpdateMember)
		r.Delete("/{id}", h.handleRemoveMember)
		r.Put("/{id}/household", h.handleAssignHousehold)
	})
	r.Route("/api/households", func(r chi.Router) {
		r.Post("/", h.handleCreateHousehold)
		r.Get("/{id}", h.handleGetHousehold)
	})
	return r
}

func (h *Handler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := MemberFilter{
		EnvelopeNumber: q.Get("envelope"),
		Participation:  analytics.Participation(q.Get("participation")),
	}
	if raw := q.Get("householdId"); raw != "" {
		id, ok := httputil.UUID(w, raw, "householdId")
		if !ok {
			return
		}
		filter.HouseholdID = &id
	}

	members, err := h.service.ListMembers(r.Context(), scope, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if members == nil {
		members = []Member{}
	}
	httputil.OK(w, members)
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	var req MemberInput
	if !httputil.DecodeValid(w, r, &req) {
		return
	}
	member, err := h.service.AddMember(r.Context(), scope, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, member)
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := httputil.UUID(w, chi.URLParam(r, "id"), "member ID")
	if !ok {
		return
	}
	member, err := h.service.GetMember(r.Context(), scope, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, member)
}

func (h *Handler) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := httputil.UUID(w, chi.URLParam(r, "id"), "member ID")
	if !ok {
		return
	}
	var req updateMemberRequest
	if !httputil.DecodeValid(w, r, &req) {
		return
	}
	member, err := h.service.UpdateMember(r.Context(), scope, id, req.Version, req.MemberInput)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, member)
}

func (h *Handler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := httputil.UUID(w, chi.URLParam(r, "id"), "member ID")
	if !ok {
		return
	}
	if err := h.service.RemoveMember(r.Context(), scope, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handler) handleAssignHousehold(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := httputil.UUID(w, chi.URLParam(r, "id"), "member ID")
	if !ok {
		return
	}
	var req assignHouseholdRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	member, err := h.service.AssignHousehold(r.Context(), scope, id, req.HouseholdID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, member)
}

func (h *Handler) handleCreateHousehold(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	var req HouseholdInput
	if !httputil.DecodeValid(w, r, &req) {
		return
	}
	household, err := h.service.CreateHousehold(r.Context(), scope, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, household)
}

func (h *Handler) handleGetHousehold(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := httputil.UUID(w, chi.URLParam(r, "id"), "household ID")
	if !ok {
		return
	}
	household, err := h.service.GetHousehold(r.Context(), scope, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, household)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	body, ok := httputil.Upload(w, r, maxImportBytes)
	if !ok {
		return
	}
	defer body.Close()

	result, err := h.service.ImportMembers(r.Context(), scope, body)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, result)
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	before, _ := strconv.ParseInt(q.Get("before"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))

	events, err := h.service.Activity(r.Context(), scope, before, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, events)
}

func scopeOf(w http.ResponseWriter, r *http.Request) (auth.Scope, bool) {
	scope, err := auth.ScopeFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return auth.Scope{}, false
	}
	return scope, true
}
