// AngelaMos | 2026
// handler.go

// Package state exposes the funnel over HTTP: the current-state view,
// the transition endpoint, the SSE streams, and the active-workspace
// reads. Identity failures on read paths resolve to the VISITOR view,
// never an error page.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/angelamos/tenfold/internal/core"
	"github.com/angelamos/tenfold/internal/funnel"
	"github.com/angelamos/tenfold/internal/middleware"
	"github.com/angelamos/tenfold/internal/provision"
)

type StateEngine interface {
	Snapshot(ctx context.Context, authID string) (*funnel.Snapshot, error)
	Transition(
		ctx context.Context,
		authID string,
		target funnel.State,
		patch funnel.Metadata,
		reason string,
	) (*funnel.Snapshot, error)
}

type Handler struct {
	engine    StateEngine
	folders   provision.Repository
	progress  provision.ProgressSubscriber
	validator *validator.Validate
	logger    *slog.Logger
}

func NewHandler(
	engine StateEngine,
	folders provision.Repository,
	progress provision.ProgressSubscriber,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		engine:    engine,
		folders:   folders,
		progress:  progress,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

// RegisterRoutes mounts the state surface. optionalSession resolves a
// session when present but lets anonymous visitors through;
// authenticator requires one.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	optionalSession func(http.Handler) http.Handler,
	authenticator func(http.Handler) http.Handler,
) {
	r.Group(func(r chi.Router) {
		r.Use(optionalSession)
		r.Get("/", h.CurrentState)
		r.Get("/events", h.StateEvents)
		r.Get("/requirements/{state}", h.Requirements)
	})

	r.Group(func(r chi.Router) {
		r.Use(authenticator)
		r.Post("/{state}/transition", h.Transition)
		r.Get("/drive/events", h.DriveEvents)
		r.Get("/active/folders", h.ActiveFolders)
		r.Get("/active/stats", h.ActiveStats)
	})
}

// CurrentState returns the caller's funnel position. No credential, a
// stale one, or a vanished user all collapse to the VISITOR default.
func (h *Handler) CurrentState(w http.ResponseWriter, r *http.Request) {
	core.OK(w, h.resolveState(r))
}

func (h *Handler) resolveState(r *http.Request) *StateResponse {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		return visitorState()
	}

	snapshot, err := h.engine.Snapshot(r.Context(), identity.AuthID)
	if err != nil {
		if !errors.Is(err, core.ErrUserNotFound) {
			h.logger.Warn("state lookup failed, serving visitor view",
				"auth_id", identity.AuthID,
				"error", err,
			)
		}
		return visitorState()
	}

	return &StateResponse{
		State:    snapshot.State,
		Metadata: snapshot.Metadata,
	}
}

func visitorState() *StateResponse {
	metadata := funnel.Metadata{}
	metadata.StampAllowedTransitions(funnel.StateVisitor)
	return &StateResponse{
		State:    funnel.StateVisitor,
		Metadata: metadata,
	}
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		core.JSONError(w, core.UnauthorizedError(""))
		return
	}

	target, err := funnel.ParseState(chi.URLParam(r, "state"))
	if err != nil {
		core.JSONError(w, core.InvalidStateError(chi.URLParam(r, "state")))
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	snapshot, err := h.engine.Transition(
		r.Context(),
		identity.AuthID,
		target,
		funnel.Metadata(req.Metadata),
		req.Reason,
	)
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	core.OK(w, &StateResponse{
		State:    snapshot.State,
		Metadata: snapshot.Metadata,
	})
}

func (h *Handler) Requirements(w http.ResponseWriter, r *http.Request) {
	target, err := funnel.ParseState(chi.URLParam(r, "state"))
	if err != nil {
		core.JSONError(w, core.InvalidStateError(chi.URLParam(r, "state")))
		return
	}

	allowed := funnel.AllowedTransitions(target)
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = s.String()
	}

	core.OK(w, &RequirementsResponse{
		State:              target,
		RequiredFields:     funnel.RequiredFields(target),
		AllowedTransitions: names,
	})
}

func (h *Handler) ActiveFolders(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		core.JSONError(w, core.UnauthorizedError(""))
		return
	}

	folders, err := h.folders.ListByUser(r.Context(), identity.UserID)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	views := make([]provision.FolderView, len(folders))
	for i := range folders {
		views[i] = folders[i].View()
	}

	core.OK(w, map[string]any{"folders": views})
}

func (h *Handler) ActiveStats(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		core.JSONError(w, core.UnauthorizedError(""))
		return
	}

	stats, err := h.folders.StatsForUser(r.Context(), identity.UserID)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, stats)
}

func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case core.IsAppError(err):
		core.JSONError(w, err)
	case errors.Is(err, core.ErrUserNotFound):
		core.JSONError(w, core.UserNotFoundError())
	case errors.Is(err, core.ErrInvalidState):
		core.JSONError(w, core.InvalidStateError(""))
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, err.Error())
	case errors.Is(err, core.ErrPersistence):
		core.JSONError(w, core.PersistenceError(err))
	default:
		core.InternalServerError(w, err)
	}
}
