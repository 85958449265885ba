// AngelaMos | 2026
// engine.go

package funnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/angelamos/tenfold/internal/core"
)

// Event types emitted into the outbox alongside state writes.
const (
	EventStateChanged   = "state_changed"
	EventDriveConnected = "drive_connected"
)

// maxTransitionRetries bounds the re-read loop when a concurrent writer
// bumps the version between our read and our conditional update.
const maxTransitionRetries = 3

var errVersionConflict = errors.New("version conflict")

// EventWriter appends an event inside the engine's transaction, so the
// event exists iff the state change committed.
type EventWriter interface {
	InsertTx(
		ctx context.Context,
		tx core.DBTX,
		userID string,
		eventType string,
		payload any,
	) error
}

// Engine is the only component that moves users through the funnel.
// Every write goes through one transaction: conditional user update,
// history row when the state moved, and outbox events for side effects.
// External providers are never called while the transaction is open.
type Engine struct {
	db     *sqlx.DB
	repo   Repository
	events EventWriter
	logger *slog.Logger
}

func NewEngine(
	db *sqlx.DB,
	repo Repository,
	events EventWriter,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		db:     db,
		repo:   repo,
		events: events,
		logger: logger,
	}
}

// Snapshot returns the user's committed state without touching it.
func (e *Engine) Snapshot(
	ctx context.Context,
	authID string,
) (*Snapshot, error) {
	user, err := e.repo.GetByAuthID(ctx, authID)
	if err != nil {
		return nil, err
	}
	return user.Snapshot(), nil
}

// Transition moves the user identified by authID to target, merging
// patch into the metadata document. target equal to the current state
// merges metadata only and writes no history row. On a version conflict
// the whole read-validate-write cycle is retried from a fresh row.
func (e *Engine) Transition(
	ctx context.Context,
	authID string,
	target State,
	patch Metadata,
	reason string,
) (*Snapshot, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("transition to %q: %w", target, core.ErrInvalidState)
	}

	for attempt := 1; attempt <= maxTransitionRetries; attempt++ {
		user, err := e.repo.GetByAuthID(ctx, authID)
		if err != nil {
			return nil, err
		}

		snapshot, err := e.apply(ctx, user, target, patch, reason)
		if errors.Is(err, errVersionConflict) {
			e.logger.Warn("transition retry after concurrent write",
				"auth_id", authID,
				"target", target,
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		return snapshot, nil
	}

	return nil, fmt.Errorf(
		"transition to %s exhausted retries: %w",
		target,
		core.ErrPersistence,
	)
}

func (e *Engine) apply(
	ctx context.Context,
	user *User,
	target State,
	patch Metadata,
	reason string,
) (*Snapshot, error) {
	from := user.CurrentState

	if target != from && !from.CanTransitionTo(target) {
		return nil, core.IllegalTransitionError(from.String(), target.String())
	}

	// callers that don't care still leave a readable history trail
	if reason == "" {
		reason = fmt.Sprintf("Transition from %s to %s", from, target)
	}

	merged := user.StateMetadata.Merge(patch)

	if err := validateRequirements(target, merged); err != nil {
		return nil, err
	}

	merged.StampAllowedTransitions(target)

	update := buildStateUpdate(user, target, merged)
	driveConnected := target == StateDrive &&
		user.DriveAuthStatus != DriveStatusConnected &&
		update.DriveAuthStatus == DriveStatusConnected

	err := core.InTx(ctx, e.db, func(tx *sqlx.Tx) error {
		applied, txErr := e.repo.UpdateStateTx(ctx, tx, update)
		if txErr != nil {
			return txErr
		}
		if !applied {
			return errVersionConflict
		}

		if target != from {
			record := &TransitionRecord{
				UserID:           user.ID,
				AuthID:           user.AuthID,
				FromState:        from,
				ToState:          target,
				TransitionReason: reason,
				Metadata:         merged,
			}
			if txErr := e.repo.InsertHistoryTx(ctx, tx, record); txErr != nil {
				return txErr
			}

			if txErr := e.events.InsertTx(ctx, tx, user.ID, EventStateChanged,
				map[string]any{
					"auth_id": user.AuthID,
					"from":    from,
					"to":      target,
					"reason":  reason,
				},
			); txErr != nil {
				return txErr
			}
		}

		if driveConnected {
			if txErr := e.events.InsertTx(ctx, tx, user.ID, EventDriveConnected,
				map[string]any{"auth_id": user.AuthID},
			); txErr != nil {
				return txErr
			}
		}

		return nil
	})
	if errors.Is(err, errVersionConflict) {
		return nil, errVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	if target != from {
		e.logger.Info("state transition",
			"auth_id", user.AuthID,
			"from", from,
			"to", target,
			"reason", reason,
		)
		core.AddSpanEvent(ctx, "funnel.transition")
	}

	return &Snapshot{
		UserID:    user.ID,
		AuthID:    user.AuthID,
		State:     target,
		Metadata:  merged,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func buildStateUpdate(user *User, target State, merged Metadata) StateUpdate {
	update := StateUpdate{
		UserID:            user.ID,
		ExpectedVersion:   user.Version,
		NewState:          target,
		Metadata:          merged,
		DriveAuthStatus:   user.DriveAuthStatus,
		DriveAccessToken:  user.DriveAccessToken,
		DriveRefreshToken: user.DriveRefreshToken,
	}

	// The reactive trigger keys off the flat columns, so the drive
	// namespace is projected onto them whenever it carries values.
	if status := merged.DriveAuthStatus(); status != "" {
		update.DriveAuthStatus = status
	}
	if access, refresh := merged.DriveTokens(); access != "" {
		update.DriveAccessToken = &access
		if refresh != "" {
			update.DriveRefreshToken = &refresh
		}
	}

	return update
}

// validateRequirements checks that the merged document carries every
// field the target state needs. The check runs against the merged
// document, not the patch, so fields supplied earlier still count.
func validateRequirements(target State, merged Metadata) error {
	required := RequiredFields(target)
	if len(required) == 0 {
		return nil
	}

	ns := merged.Namespace(RequirementNamespace(target))

	var missing []string
	for _, field := range required {
		val, ok := ns[field]
		if !ok || val == "" || val == nil {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf(
			"state %s requires fields [%s]: %w",
			target,
			strings.Join(missing, ", "),
			core.ErrInvalidInput,
		)
	}

	return nil
}
