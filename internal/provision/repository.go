// AngelaMos | 2026
// repository.go

package provision

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/angelamos/tenfold/internal/core"
	"github.com/angelamos/tenfold/internal/funnel"
)

type Repository interface {
	Create(ctx context.Context, folder *Folder) error
	GetByID(ctx context.Context, id string) (*Folder, error)
	PendingForUser(ctx context.Context, userID string) (*Folder, error)
	HasOpenFolder(ctx context.Context, userID string) (bool, error)
	CountForUser(ctx context.Context, userID string) (int, error)
	MarkDeploying(ctx context.Context, id string) error
	Complete(
		ctx context.Context,
		id string,
		driveFolderID string,
		metadata funnel.Metadata,
	) error
	Fail(ctx context.Context, id string, detail string) error
	ListByUser(ctx context.Context, userID string) ([]Folder, error)
	StatsForUser(ctx context.Context, userID string) (*Stats, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const folderColumns = `
	id, user_id, name, current_state, state_metadata, drive_folder_id,
	storage_limit_gb, current_size_bytes, file_count, created_at, updated_at`

func (r *repository) Create(ctx context.Context, folder *Folder) error {
	query := `
		INSERT INTO folders (user_id, name, current_state, state_metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING` + folderColumns

	err := r.db.GetContext(ctx, folder, query,
		folder.UserID,
		folder.Name,
		folder.CurrentState,
		folder.StateMetadata,
	)
	if err != nil {
		return fmt.Errorf("create folder: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Folder, error) {
	query := `
		SELECT` + folderColumns + `
		FROM folders
		WHERE id = $1`

	var folder Folder
	err := r.db.GetContext(ctx, &folder, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get folder: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get folder: %w", err)
	}

	return &folder, nil
}

// PendingForUser relies on the partial unique index guaranteeing at
// most one PENDING folder per user.
func (r *repository) PendingForUser(
	ctx context.Context,
	userID string,
) (*Folder, error) {
	query := `
		SELECT` + folderColumns + `
		FROM folders
		WHERE user_id = $1 AND current_state = 'PENDING'`

	var folder Folder
	err := r.db.GetContext(ctx, &folder, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending folder: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pending folder: %w", err)
	}

	return &folder, nil
}

// HasOpenFolder reports whether a PENDING or DEPLOYING folder exists,
// which is the re-delivery guard against duplicate provisioning.
func (r *repository) HasOpenFolder(
	ctx context.Context,
	userID string,
) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM folders
			WHERE user_id = $1 AND current_state IN ('PENDING', 'DEPLOYING')
		)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID); err != nil {
		return false, fmt.Errorf("check open folder: %w", err)
	}

	return exists, nil
}

func (r *repository) CountForUser(
	ctx context.Context,
	userID string,
) (int, error) {
	query := `SELECT COUNT(*) FROM folders WHERE user_id = $1`

	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count folders: %w", err)
	}

	return count, nil
}

func (r *repository) MarkDeploying(ctx context.Context, id string) error {
	query := `
		UPDATE folders
		SET current_state = 'DEPLOYING', updated_at = NOW()
		WHERE id = $1 AND current_state = 'PENDING'`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark folder deploying: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark folder deploying: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("mark folder deploying: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) Complete(
	ctx context.Context,
	id string,
	driveFolderID string,
	metadata funnel.Metadata,
) error {
	query := `
		UPDATE folders
		SET current_state = 'ACTIVE',
		    drive_folder_id = $2,
		    state_metadata = $3,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, driveFolderID, metadata)
	if err != nil {
		return fmt.Errorf("complete folder: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete folder: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("complete folder: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) Fail(ctx context.Context, id string, detail string) error {
	query := `
		UPDATE folders
		SET current_state = 'ERROR',
		    state_metadata = state_metadata ||
		        jsonb_build_object('error_detail', $2::text),
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, detail)
	if err != nil {
		return fmt.Errorf("fail folder: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail folder: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("fail folder: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) ListByUser(
	ctx context.Context,
	userID string,
) ([]Folder, error) {
	query := `
		SELECT` + folderColumns + `
		FROM folders
		WHERE user_id = $1
		ORDER BY created_at`

	var folders []Folder
	if err := r.db.SelectContext(ctx, &folders, query, userID); err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}

	return folders, nil
}

func (r *repository) StatsForUser(
	ctx context.Context,
	userID string,
) (*Stats, error) {
	query := `
		SELECT COUNT(*) AS folder_count,
		       COUNT(*) FILTER (WHERE current_state = 'ACTIVE') AS active_folders,
		       COALESCE(SUM(current_size_bytes), 0) AS total_size_bytes,
		       COALESCE(SUM(file_count), 0) AS total_files,
		       COALESCE(MAX(storage_limit_gb), 0) AS storage_limit_gb
		FROM folders
		WHERE user_id = $1`

	var stats Stats
	if err := r.db.GetContext(ctx, &stats, query, userID); err != nil {
		return nil, fmt.Errorf("folder stats: %w", err)
	}

	return &stats, nil
}
