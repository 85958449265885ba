// AngelaMos | 2026
// trigger.go

package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/angelamos/tenfold/internal/core"
	"github.com/angelamos/tenfold/internal/funnel"
	"github.com/angelamos/tenfold/internal/outbox"
)

// JobQueue decouples the trigger from the worker loop.
type JobQueue interface {
	Enqueue(job Job)
}

// Trigger owns the reactive side of the funnel. It consumes outbox
// events; handlers are idempotent because delivery is at-least-once.
type Trigger struct {
	users   funnel.Repository
	folders Repository
	engine  TransitionEngine
	queue   JobQueue
	logger  *slog.Logger
}

func NewTrigger(
	users funnel.Repository,
	folders Repository,
	engine TransitionEngine,
	queue JobQueue,
	logger *slog.Logger,
) *Trigger {
	return &Trigger{
		users:   users,
		folders: folders,
		engine:  engine,
		queue:   queue,
		logger:  logger,
	}
}

func (t *Trigger) Register(consumer *outbox.Consumer) {
	consumer.Register(funnel.EventStateChanged, t.HandleStateChanged)
	consumer.Register(funnel.EventDriveConnected, t.HandleDriveConnected)
}

type stateChangedPayload struct {
	AuthID string `json:"auth_id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// HandleStateChanged prepares a PENDING workspace folder when a user
// lands in DRIVE. Re-delivery no-ops: an open folder, or a user who has
// already moved on, creates nothing.
func (t *Trigger) HandleStateChanged(
	ctx context.Context,
	event outbox.Event,
) error {
	var payload stateChangedPayload
	if err := event.DecodePayload(&payload); err != nil {
		return err
	}

	if payload.To != funnel.StateDrive.String() {
		return nil
	}

	user, err := t.users.GetByID(ctx, event.UserID)
	if err != nil {
		return err
	}
	if user.CurrentState != funnel.StateDrive {
		return nil
	}

	open, err := t.folders.HasOpenFolder(ctx, event.UserID)
	if err != nil {
		return err
	}
	if open {
		return nil
	}

	count, err := t.folders.CountForUser(ctx, event.UserID)
	if err != nil {
		return err
	}

	folder := &Folder{
		UserID:        event.UserID,
		Name:          folderName(count + 1),
		CurrentState:  FolderPending,
		StateMetadata: funnel.Metadata{},
	}
	if err := t.folders.Create(ctx, folder); err != nil {
		return err
	}

	t.logger.Info("pending folder prepared",
		"auth_id", payload.AuthID,
		"folder_id", folder.ID,
		"name", folder.Name,
	)
	return nil
}

type driveConnectedPayload struct {
	AuthID string `json:"auth_id"`
}

// HandleDriveConnected starts the deployment: the PENDING folder moves
// to DEPLOYING, the user is transitioned DRIVE → ACTIVE tagged
// in_progress, and the job is handed to the worker. A re-delivery after
// the folder left PENDING no-ops.
func (t *Trigger) HandleDriveConnected(
	ctx context.Context,
	event outbox.Event,
) error {
	var payload driveConnectedPayload
	if err := event.DecodePayload(&payload); err != nil {
		return err
	}

	user, err := t.users.GetByID(ctx, event.UserID)
	if err != nil {
		return err
	}

	folder, err := t.folders.PendingForUser(ctx, event.UserID)
	if errors.Is(err, core.ErrNotFound) {
		t.logger.Warn("drive connected with no pending folder",
			"auth_id", user.AuthID,
		)
		return nil
	}
	if err != nil {
		return err
	}

	if err := t.folders.MarkDeploying(ctx, folder.ID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// lost a race with another consumer, nothing to do
			return nil
		}
		return err
	}

	patch := funnel.Metadata{
		funnel.NamespaceWorkspaceStatus: map[string]any{
			"folder_id":         folder.ID,
			"deployment_status": DeploymentInProgress,
		},
	}
	_, err = t.engine.Transition(
		ctx,
		user.AuthID,
		funnel.StateActive,
		patch,
		"drive_connected",
	)
	if err != nil {
		if errors.Is(err, core.ErrIllegalTransition) {
			t.logger.Warn("drive connected while not in DRIVE",
				"auth_id", user.AuthID,
				"state", user.CurrentState,
			)
			return nil
		}
		return err
	}

	t.queue.Enqueue(Job{User: user, Folder: folder})
	return nil
}

func folderName(n int) string {
	return fmt.Sprintf("Workspace%02d_TenFold", n)
}
