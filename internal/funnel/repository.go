// AngelaMos | 2026
// repository.go

package funnel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/angelamos/tenfold/internal/core"
)

// StateUpdate carries the new row image for the conditional update. The
// write succeeds only when ExpectedVersion still matches the row, which
// is how concurrent transitions lose instead of clobbering each other.
type StateUpdate struct {
	UserID            string
	ExpectedVersion   int64
	NewState          State
	Metadata          Metadata
	DriveAuthStatus   string
	DriveAccessToken  *string
	DriveRefreshToken *string
}

type Repository interface {
	Upsert(ctx context.Context, user *User) error
	GetByAuthID(ctx context.Context, authID string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	UpdateStateTx(
		ctx context.Context,
		tx core.DBTX,
		update StateUpdate,
	) (bool, error)
	InsertHistoryTx(
		ctx context.Context,
		tx core.DBTX,
		record *TransitionRecord,
	) error
	History(
		ctx context.Context,
		userID string,
		limit int,
	) ([]TransitionRecord, error)
	CountByState(ctx context.Context) (map[State]int, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const userColumns = `
	id, auth_id, email, name, current_state, state_metadata,
	drive_auth_status, drive_access_token, drive_refresh_token,
	version, created_at, updated_at`

// Upsert inserts the user or refreshes identity fields for a returning
// one. State columns are untouched on conflict; only the engine moves
// state.
func (r *repository) Upsert(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (auth_id, email, name, current_state, state_metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (auth_id) DO UPDATE
		SET email = EXCLUDED.email,
		    name = EXCLUDED.name,
		    updated_at = NOW()
		RETURNING` + userColumns

	err := r.db.GetContext(ctx, user, query,
		user.AuthID,
		user.Email,
		user.Name,
		user.CurrentState,
		user.StateMetadata,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("upsert user: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("upsert user: %w", err)
	}

	return nil
}

func (r *repository) GetByAuthID(
	ctx context.Context,
	authID string,
) (*User, error) {
	query := `
		SELECT` + userColumns + `
		FROM users
		WHERE auth_id = $1`

	var user User
	err := r.db.GetContext(ctx, &user, query, authID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user by auth id: %w", core.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by auth id: %w", err)
	}

	return &user, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT` + userColumns + `
		FROM users
		WHERE id = $1`

	var user User
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user: %w", core.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &user, nil
}

// UpdateStateTx applies the conditional write. false with a nil error
// means the version check failed and the caller should re-read.
func (r *repository) UpdateStateTx(
	ctx context.Context,
	tx core.DBTX,
	update StateUpdate,
) (bool, error) {
	query := `
		UPDATE users
		SET current_state = $2,
		    state_metadata = $3,
		    drive_auth_status = $4,
		    drive_access_token = $5,
		    drive_refresh_token = $6,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $7`

	result, err := tx.ExecContext(ctx, query,
		update.UserID,
		update.NewState,
		update.Metadata,
		update.DriveAuthStatus,
		update.DriveAccessToken,
		update.DriveRefreshToken,
		update.ExpectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("update user state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update user state: %w", err)
	}

	return rows > 0, nil
}

func (r *repository) InsertHistoryTx(
	ctx context.Context,
	tx core.DBTX,
	record *TransitionRecord,
) error {
	query := `
		INSERT INTO user_state_history
			(user_id, auth_id, from_state, to_state, transition_reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := tx.GetContext(ctx, record, query,
		record.UserID,
		record.AuthID,
		record.FromState,
		record.ToState,
		record.TransitionReason,
		record.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	return nil
}

func (r *repository) History(
	ctx context.Context,
	userID string,
	limit int,
) ([]TransitionRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT id, user_id, auth_id, from_state, to_state,
		       transition_reason, metadata, created_at
		FROM user_state_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	var records []TransitionRecord
	if err := r.db.SelectContext(ctx, &records, query, userID, limit); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	return records, nil
}

func (r *repository) CountByState(
	ctx context.Context,
) (map[State]int, error) {
	query := `
		SELECT current_state, COUNT(*) AS total
		FROM users
		GROUP BY current_state`

	var rows []struct {
		State State `db:"current_state"`
		Total int   `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count users by state: %w", err)
	}

	counts := make(map[State]int, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Total
	}

	return counts, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
