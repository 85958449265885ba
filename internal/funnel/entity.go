// AngelaMos | 2026
// entity.go

package funnel

import (
	"time"
)

// User is a funnel participant. After creation the row is mutated only
// through the engine, which serializes writers via the version column.
type User struct {
	ID                string    `db:"id"`
	AuthID            string    `db:"auth_id"`
	Email             string    `db:"email"`
	Name              string    `db:"name"`
	CurrentState      State     `db:"current_state"`
	StateMetadata     Metadata  `db:"state_metadata"`
	DriveAuthStatus   string    `db:"drive_auth_status"`
	DriveAccessToken  *string   `db:"drive_access_token"`
	DriveRefreshToken *string   `db:"drive_refresh_token"`
	Version           int64     `db:"version"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// TransitionRecord is one append-only history row, written in the same
// transaction as the user update and only when the state actually moved.
type TransitionRecord struct {
	ID               int64     `db:"id"`
	UserID           string    `db:"user_id"`
	AuthID           string    `db:"auth_id"`
	FromState        State     `db:"from_state"`
	ToState          State     `db:"to_state"`
	TransitionReason string    `db:"transition_reason"`
	Metadata         Metadata  `db:"metadata"`
	CreatedAt        time.Time `db:"created_at"`
}

// Snapshot is what the engine hands back after a successful operation:
// the committed state with its merged metadata.
type Snapshot struct {
	UserID    string    `json:"user_id"`
	AuthID    string    `json:"auth_id"`
	State     State     `json:"state"`
	Metadata  Metadata  `json:"metadata"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) Snapshot() *Snapshot {
	return &Snapshot{
		UserID:    u.ID,
		AuthID:    u.AuthID,
		State:     u.CurrentState,
		Metadata:  u.StateMetadata.Clone(),
		UpdatedAt: u.UpdatedAt,
	}
}
