// AngelaMos | 2026
// handler.go

package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/angelamos/tenfold/internal/core"
)

type Handler struct {
	service   *Service
	manager   *Manager
	validator *validator.Validate
}

func NewHandler(service *Service, manager *Manager) *Handler {
	return &Handler{
		service:   service,
		manager:   manager,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/google", h.GoogleSignIn)
		r.Post("/logout", h.Logout)
	})
}

func (h *Handler) GoogleSignIn(w http.ResponseWriter, r *http.Request) {
	var req GoogleSignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	token, resp, err := h.service.SignInWithGoogle(r.Context(), req.Credential)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidCredential):
			core.JSONError(w, core.InvalidCredentialError())
		case errors.Is(err, core.ErrUpstreamProvider):
			core.JSONError(w, core.UpstreamProviderError("identity"))
		default:
			core.InternalServerError(w, err)
		}
		return
	}

	http.SetCookie(w, h.manager.Cookie(token))
	core.OK(w, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.manager.ClearedCookie())
	core.OK(w, map[string]any{"signed_out": true})
}
