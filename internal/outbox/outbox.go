// AngelaMos | 2026
// outbox.go

// Package outbox persists side-effect events in the same transaction as
// the state change that caused them, and delivers them to handlers with
// at-least-once semantics. Handlers must be idempotent.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelamos/tenfold/internal/core"
)

type Event struct {
	ID          int64           `db:"id"`
	UserID      string          `db:"user_id"`
	EventType   string          `db:"event_type"`
	Payload     json.RawMessage `db:"payload"`
	CreatedAt   time.Time       `db:"created_at"`
	ProcessedAt *time.Time      `db:"processed_at"`
}

// DecodePayload unmarshals the payload into dest.
func (e *Event) DecodePayload(dest any) error {
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}

type Repository interface {
	InsertTx(
		ctx context.Context,
		tx core.DBTX,
		userID string,
		eventType string,
		payload any,
	) error
	FetchUnprocessed(ctx context.Context, limit int) ([]Event, error)
	MarkProcessed(ctx context.Context, id int64) error
	Backlog(ctx context.Context) (int64, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) InsertTx(
	ctx context.Context,
	tx core.DBTX,
	userID string,
	eventType string,
	payload any,
) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	query := `
		INSERT INTO state_outbox (user_id, event_type, payload)
		VALUES ($1, $2, $3)`

	if _, err := tx.ExecContext(ctx, query, userID, eventType, body); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return nil
}

func (r *repository) FetchUnprocessed(
	ctx context.Context,
	limit int,
) ([]Event, error) {
	query := `
		SELECT id, user_id, event_type, payload, created_at, processed_at
		FROM state_outbox
		WHERE processed_at IS NULL
		ORDER BY id
		LIMIT $1`

	var events []Event
	if err := r.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("fetch unprocessed events: %w", err)
	}

	return events, nil
}

func (r *repository) MarkProcessed(ctx context.Context, id int64) error {
	query := `
		UPDATE state_outbox
		SET processed_at = NOW()
		WHERE id = $1 AND processed_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}

	return nil
}

func (r *repository) Backlog(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM state_outbox WHERE processed_at IS NULL`

	var count int64
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("count outbox backlog: %w", err)
	}

	return count, nil
}
