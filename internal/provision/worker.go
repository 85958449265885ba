// AngelaMos | 2026
// worker.go

package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/angelamos/tenfold/internal/funnel"
)

// TransitionEngine is the slice of the funnel engine the provisioners
// need.
type TransitionEngine interface {
	Transition(
		ctx context.Context,
		authID string,
		target funnel.State,
		patch funnel.Metadata,
		reason string,
	) (*funnel.Snapshot, error)
}

// Job is one folder deployment. The user is a snapshot taken when the
// drive connection landed; the worker never blocks a request handler.
type Job struct {
	User   *funnel.User
	Folder *Folder
}

type Worker struct {
	drive    DriveProvider
	folders  Repository
	engine   TransitionEngine
	progress ProgressPublisher
	jobs     chan Job
	logger   *slog.Logger
}

func NewWorker(
	drive DriveProvider,
	folders Repository,
	engine TransitionEngine,
	progress ProgressPublisher,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		drive:    drive,
		folders:  folders,
		engine:   engine,
		progress: progress,
		jobs:     make(chan Job, 16),
		logger:   logger,
	}
}

func (w *Worker) Enqueue(job Job) {
	w.jobs <- job
}

// Run blocks until ctx is cancelled. A deployment in flight when the
// client disconnects keeps running; only process shutdown stops it.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("provisioning worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("provisioning worker stopped")
			return
		case job := <-w.jobs:
			w.Deploy(ctx, job)
		}
	}
}

// Deploy drives the folder through the provider and finishes with a
// terminal completed or error frame. Failure leaves the folder in ERROR
// and the user's workspace metadata marked failed; it never leaves a
// half-deployed workspace looking healthy.
func (w *Worker) Deploy(ctx context.Context, job Job) {
	userID := job.User.ID

	w.publish(ctx, userID, ProgressFrame{
		Type:     "provision",
		Status:   ProgressStarted,
		Progress: 10,
	})

	token := ""
	if job.User.DriveAccessToken != nil {
		token = *job.User.DriveAccessToken
	}
	if token == "" {
		w.fail(ctx, job, fmt.Errorf("no drive access token on file"))
		return
	}

	driveFolderID, err := w.drive.CreateFolder(ctx, token, job.Folder.Name)
	if err != nil {
		w.fail(ctx, job, fmt.Errorf("create folder: %w", err))
		return
	}

	w.publish(ctx, userID, ProgressFrame{
		Type:     "provision",
		Status:   ProgressFolderCreated,
		Progress: 45,
	})

	err = w.drive.ShareWithOwner(ctx, token, driveFolderID, job.User.Email)
	if err != nil {
		w.fail(ctx, job, fmt.Errorf("share folder: %w", err))
		return
	}

	readme := fmt.Sprintf(
		"# %s\n\nThis workspace was provisioned by TenFold.\n",
		job.Folder.Name,
	)
	err = w.drive.UploadReadme(ctx, token, driveFolderID, []byte(readme))
	if err != nil {
		w.fail(ctx, job, fmt.Errorf("upload readme: %w", err))
		return
	}

	w.publish(ctx, userID, ProgressFrame{
		Type:     "provision",
		Status:   ProgressReadmeUpload,
		Progress: 80,
	})

	workspaceStatus := funnel.Metadata{
		funnel.NamespaceWorkspaceStatus: map[string]any{
			"folder_id":         job.Folder.ID,
			"drive_folder_id":   driveFolderID,
			"deployment_status": DeploymentCompleted,
		},
	}

	err = w.folders.Complete(ctx, job.Folder.ID, driveFolderID, workspaceStatus)
	if err != nil {
		w.fail(ctx, job, err)
		return
	}

	_, err = w.engine.Transition(
		ctx,
		job.User.AuthID,
		funnel.StateActive,
		workspaceStatus,
		"deployment_completed",
	)
	if err != nil {
		w.logger.Error("deployment metadata update failed",
			"auth_id", job.User.AuthID,
			"folder_id", job.Folder.ID,
			"error", err,
		)
	}

	views := w.folderViews(ctx, userID)

	w.publish(ctx, userID, ProgressFrame{
		Type:      "provision",
		Status:    ProgressCompleted,
		Progress:  100,
		Folders:   views,
		Completed: true,
	})

	w.logger.Info("workspace deployed",
		"auth_id", job.User.AuthID,
		"folder_id", job.Folder.ID,
		"drive_folder_id", driveFolderID,
	)
}

func (w *Worker) fail(ctx context.Context, job Job, cause error) {
	w.logger.Error("deployment failed",
		"auth_id", job.User.AuthID,
		"folder_id", job.Folder.ID,
		"error", cause,
	)

	if err := w.folders.Fail(ctx, job.Folder.ID, cause.Error()); err != nil {
		w.logger.Error("mark folder failed errored",
			"folder_id", job.Folder.ID,
			"error", err,
		)
	}

	patch := funnel.Metadata{
		funnel.NamespaceWorkspaceStatus: map[string]any{
			"folder_id":         job.Folder.ID,
			"deployment_status": DeploymentFailed,
		},
	}
	if _, err := w.engine.Transition(
		ctx,
		job.User.AuthID,
		funnel.StateActive,
		patch,
		"deployment_failed",
	); err != nil {
		w.logger.Error("failed-deployment metadata update errored",
			"auth_id", job.User.AuthID,
			"error", err,
		)
	}

	w.publish(ctx, job.User.ID, ProgressFrame{
		Type:      "provision",
		Status:    ProgressError,
		Progress:  100,
		Completed: true,
		Message:   "workspace deployment failed",
	})
}

func (w *Worker) publish(
	ctx context.Context,
	userID string,
	frame ProgressFrame,
) {
	if err := w.progress.Publish(ctx, userID, frame); err != nil {
		w.logger.Warn("progress publish failed",
			"user_id", userID,
			"status", frame.Status,
			"error", err,
		)
	}
}

func (w *Worker) folderViews(ctx context.Context, userID string) []FolderView {
	folders, err := w.folders.ListByUser(ctx, userID)
	if err != nil {
		w.logger.Warn("list folders for progress frame failed",
			"user_id", userID,
			"error", err,
		)
		return nil
	}

	views := make([]FolderView, len(folders))
	for i := range folders {
		views[i] = folders[i].View()
	}
	return views
}
