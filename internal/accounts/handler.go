// internal/accounts/handler.go
package accounts

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"shepherd/internal/auth"
	"shepherd/internal/pkg/httputil"
)

type Handler struct {
	service Service
	issuer  *auth.Issuer
}

func NewHandler(service Service, issuer *auth.Issuer) *Handler {
	return &Handler{service: service, issuer: issuer}
}

// Routes serves /api/accounts. Login and invitation acceptance are public;
// everything else needs an admin session.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api/accounts", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/invitations/accept", h.handleAccept)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(h.issuer), auth.RequireRole(auth.RoleAdmin))
			r.Get("/users", h.handleListUsers)
			r.Get("/invitations", h.handleListInvitations)
			r.Post("/invitations", h.handleInvite)
			r.Delete("/invitations/{id}", h.handleRevoke)
		})
	})
	return r
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginInput
	if !httputil.Decode(w, r, &req) {
		return
	}
	session, err := h.service.Login(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, session)
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req AcceptInput
	if !httputil.DecodeValid(w, r, &req) {
		return
	}
	session, err := h.service.AcceptInvitation(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, session)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	scope, _ := auth.ScopeFrom(r.Context())
	users, err := h.service.ListUsers(r.Context(), scope)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, users)
}

func (h *Handler) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	scope, _ := auth.ScopeFrom(r.Context())
	invitations, err := h.service.ListInvitations(r.Context(), scope)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, invitations)
}

func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	scope, _ := auth.ScopeFrom(r.Context())
	var req InviteInput
	if !httputil.DecodeValid(w, r, &req) {
		return
	}
	inv, err := h.service.Invite(r.Context(), scope, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, inv)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	scope, _ := auth.ScopeFrom(r.Context())
	id, ok := httputil.UUID(w, chi.URLParam(r, "id"), "invitation ID")
	if !ok {
		return
	}
	if err := h.service.RevokeInvitation(r.Context(), scope, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.NoContent(w)
}
