// AngelaMos | 2026
// handler.go

package payment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/angelamos/tenfold/internal/core"
	"github.com/angelamos/tenfold/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/payment", func(r chi.Router) {
		r.Use(authenticator)
		r.Post("/checkout", h.Checkout)
		r.Post("/confirm", h.Confirm)
	})
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		core.JSONError(w, core.UnauthorizedError(""))
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.Checkout(r.Context(), identity.AuthID, req.PlanID)
	if err != nil {
		writePaymentError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		core.JSONError(w, core.UnauthorizedError(""))
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.Confirm(r.Context(), identity.AuthID, req.SessionID)
	if err != nil {
		writePaymentError(w, err)
		return
	}

	core.OK(w, resp)
}

func writePaymentError(w http.ResponseWriter, err error) {
	switch {
	case core.IsAppError(err):
		core.JSONError(w, err)
	case errors.Is(err, core.ErrUserNotFound):
		core.JSONError(w, core.UserNotFoundError())
	case errors.Is(err, core.ErrUpstreamProvider):
		core.JSONError(w, core.UpstreamProviderError("billing"))
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, err.Error())
	case errors.Is(err, core.ErrPersistence):
		core.JSONError(w, core.PersistenceError(err))
	default:
		core.InternalServerError(w, err)
	}
}
