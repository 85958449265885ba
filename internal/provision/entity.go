// AngelaMos | 2026
// entity.go

// Package provision reacts to funnel events: it prepares a pending
// workspace folder when a user reaches DRIVE, deploys it through the
// drive provider once the OAuth connection lands, and streams progress
// over Redis pub/sub.
package provision

import (
	"time"

	"github.com/angelamos/tenfold/internal/funnel"
)

// Folder lifecycle. PENDING is created when the user enters DRIVE,
// DEPLOYING while the worker owns it, then ACTIVE or ERROR.
const (
	FolderPending   = "PENDING"
	FolderDeploying = "DEPLOYING"
	FolderActive    = "ACTIVE"
	FolderError     = "ERROR"
)

// Deployment status values stamped into workspace_status metadata.
const (
	DeploymentInProgress = "in_progress"
	DeploymentCompleted  = "completed"
	DeploymentFailed     = "failed"
)

type Folder struct {
	ID               string          `db:"id"`
	UserID           string          `db:"user_id"`
	Name             string          `db:"name"`
	CurrentState     string          `db:"current_state"`
	StateMetadata    funnel.Metadata `db:"state_metadata"`
	DriveFolderID    *string         `db:"drive_folder_id"`
	StorageLimitGB   int             `db:"storage_limit_gb"`
	CurrentSizeBytes int64           `db:"current_size_bytes"`
	FileCount        int             `db:"file_count"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// FolderView is the client-facing shape used in progress frames and the
// active-workspace endpoints.
type FolderView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	State            string `json:"state"`
	DriveFolderID    string `json:"drive_folder_id,omitempty"`
	StorageLimitGB   int    `json:"storage_limit_gb"`
	CurrentSizeBytes int64  `json:"current_size_bytes"`
	FileCount        int    `json:"file_count"`
}

func (f *Folder) View() FolderView {
	view := FolderView{
		ID:               f.ID,
		Name:             f.Name,
		State:            f.CurrentState,
		StorageLimitGB:   f.StorageLimitGB,
		CurrentSizeBytes: f.CurrentSizeBytes,
		FileCount:        f.FileCount,
	}
	if f.DriveFolderID != nil {
		view.DriveFolderID = *f.DriveFolderID
	}
	return view
}

// Stats summarizes a user's workspace for the active dashboard.
type Stats struct {
	FolderCount      int   `json:"folder_count" db:"folder_count"`
	ActiveFolders    int   `json:"active_folders" db:"active_folders"`
	TotalSizeBytes   int64 `json:"total_size_bytes" db:"total_size_bytes"`
	TotalFiles       int   `json:"total_files" db:"total_files"`
	StorageLimitGB   int   `json:"storage_limit_gb" db:"storage_limit_gb"`
}
