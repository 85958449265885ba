// AngelaMos | 2026
// engine_test.go

package funnel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelamos/tenfold/internal/core"
)

// -------- test fakes --------

type fakeRepo struct {
	Repository

	user   *User
	getErr error

	// updateResults is consumed one per UpdateStateTx call; an empty
	// tail means true.
	updateResults []bool
	updates       []StateUpdate
	history       []*TransitionRecord
}

func (f *fakeRepo) GetByAuthID(ctx context.Context, authID string) (*User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u := *f.user
	u.StateMetadata = f.user.StateMetadata.Clone()
	return &u, nil
}

func (f *fakeRepo) UpdateStateTx(
	ctx context.Context,
	tx core.DBTX,
	update StateUpdate,
) (bool, error) {
	f.updates = append(f.updates, update)

	if len(f.updateResults) > 0 {
		result := f.updateResults[0]
		f.updateResults = f.updateResults[1:]
		if !result {
			// simulate the concurrent writer that consumed our version
			f.user.Version++
			return false, nil
		}
	}
	return true, nil
}

func (f *fakeRepo) InsertHistoryTx(
	ctx context.Context,
	tx core.DBTX,
	record *TransitionRecord,
) error {
	f.history = append(f.history, record)
	return nil
}

type fakeEvents struct {
	types    []string
	payloads []any
	err      error
}

func (f *fakeEvents) InsertTx(
	ctx context.Context,
	tx core.DBTX,
	userID string,
	eventType string,
	payload any,
) error {
	if f.err != nil {
		return f.err
	}
	f.types = append(f.types, eventType)
	f.payloads = append(f.payloads, payload)
	return nil
}

func newEngineForTest(t *testing.T, repo *fakeRepo, events *fakeEvents) (*Engine, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(sqlx.NewDb(db, "sqlmock"), repo, events, logger), mock
}

func visitorUser() *User {
	return &User{
		ID:              "u-1",
		AuthID:          "google-1",
		Email:           "a@example.com",
		CurrentState:    StateVisitor,
		StateMetadata:   Metadata{},
		DriveAuthStatus: DriveStatusPending,
		Version:         1,
	}
}

// -------- tests --------

func TestTransitionVisitorToAuth(t *testing.T) {
	repo := &fakeRepo{user: visitorUser()}
	events := &fakeEvents{}
	engine, mock := newEngineForTest(t, repo, events)

	mock.ExpectBegin()
	mock.ExpectCommit()

	patch := Metadata{
		"user": map[string]any{
			"email":   "a@example.com",
			"auth_id": "google-1",
		},
	}

	snapshot, err := engine.Transition(
		context.Background(), "google-1", StateAuth, patch, "google_signin",
	)
	require.NoError(t, err)

	assert.Equal(t, StateAuth, snapshot.State)
	assert.Equal(t, "a@example.com", snapshot.Metadata.Namespace("user")["email"])
	assert.ElementsMatch(t,
		[]string{"PAYMENT"},
		snapshot.Metadata[KeyAllowedTransitions],
	)

	require.Len(t, repo.history, 1)
	assert.Equal(t, StateVisitor, repo.history[0].FromState)
	assert.Equal(t, StateAuth, repo.history[0].ToState)
	assert.Equal(t, "google_signin", repo.history[0].TransitionReason)

	assert.Equal(t, []string{EventStateChanged}, events.types)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionEmptyReasonGetsDefault(t *testing.T) {
	repo := &fakeRepo{user: visitorUser()}
	events := &fakeEvents{}
	engine, mock := newEngineForTest(t, repo, events)

	mock.ExpectBegin()
	mock.ExpectCommit()

	patch := Metadata{
		"user": map[string]any{
			"email":   "a@example.com",
			"auth_id": "google-1",
		},
	}

	_, err := engine.Transition(
		context.Background(), "google-1", StateAuth, patch, "",
	)
	require.NoError(t, err)

	require.Len(t, repo.history, 1)
	assert.Equal(t,
		"Transition from VISITOR to AUTH",
		repo.history[0].TransitionReason,
	)

	require.Len(t, events.payloads, 1)
	payload, ok := events.payloads[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Transition from VISITOR to AUTH", payload["reason"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionIllegalEdge(t *testing.T) {
	repo := &fakeRepo{user: visitorUser()}
	engine, mock := newEngineForTest(t, repo, &fakeEvents{})

	_, err := engine.Transition(
		context.Background(), "google-1", StatePayment, Metadata{}, "",
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrIllegalTransition))

	assert.Empty(t, repo.updates, "state must be untouched")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionUnknownState(t *testing.T) {
	repo := &fakeRepo{user: visitorUser()}
	engine, _ := newEngineForTest(t, repo, &fakeEvents{})

	_, err := engine.Transition(
		context.Background(), "google-1", State("CHECKOUT"), Metadata{}, "",
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidState))
}

func TestTransitionMissingRequiredFields(t *testing.T) {
	repo := &fakeRepo{user: visitorUser()}
	engine, _ := newEngineForTest(t, repo, &fakeEvents{})

	_, err := engine.Transition(
		context.Background(), "google-1", StateAuth, Metadata{}, "",
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
	assert.Empty(t, repo.updates)
}

func TestTransitionUserNotFound(t *testing.T) {
	repo := &fakeRepo{getErr: core.ErrUserNotFound}
	engine, _ := newEngineForTest(t, repo, &fakeEvents{})

	_, err := engine.Transition(
		context.Background(), "missing", StateAuth, Metadata{}, "",
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUserNotFound))
}

func TestSameStateMergesWithoutHistory(t *testing.T) {
	user := visitorUser()
	user.CurrentState = StatePayment
	user.StateMetadata = Metadata{
		"payment": map[string]any{
			"plan_id":    "pro",
			"session_id": "sess-1",
			"status":     "pending",
		},
	}
	repo := &fakeRepo{user: user}
	events := &fakeEvents{}
	engine, mock := newEngineForTest(t, repo, events)

	mock.ExpectBegin()
	mock.ExpectCommit()

	patch := Metadata{
		"payment": map[string]any{"status": "completed"},
	}

	snapshot, err := engine.Transition(
		context.Background(), "google-1", StatePayment, patch, "",
	)
	require.NoError(t, err)

	assert.Equal(t, StatePayment, snapshot.State)
	assert.Equal(t, "completed", snapshot.Metadata.Namespace("payment")["status"])
	assert.Equal(t, "pro", snapshot.Metadata.Namespace("payment")["plan_id"])

	assert.Empty(t, repo.history, "no history row for a same-state merge")
	assert.Empty(t, events.types)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionConflictRetries(t *testing.T) {
	repo := &fakeRepo{
		user:          visitorUser(),
		updateResults: []bool{false, true},
	}
	events := &fakeEvents{}
	engine, mock := newEngineForTest(t, repo, events)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	patch := Metadata{
		"user": map[string]any{
			"email":   "a@example.com",
			"auth_id": "google-1",
		},
	}

	snapshot, err := engine.Transition(
		context.Background(), "google-1", StateAuth, patch, "",
	)
	require.NoError(t, err)
	assert.Equal(t, StateAuth, snapshot.State)

	require.Len(t, repo.updates, 2)
	assert.Greater(t,
		repo.updates[1].ExpectedVersion,
		repo.updates[0].ExpectedVersion,
		"retry must re-read the fresh version",
	)
	require.Len(t, repo.history, 1, "the lost attempt writes nothing")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionConflictExhaustion(t *testing.T) {
	repo := &fakeRepo{
		user:          visitorUser(),
		updateResults: []bool{false, false, false},
	}
	engine, mock := newEngineForTest(t, repo, &fakeEvents{})

	for range 3 {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	patch := Metadata{
		"user": map[string]any{
			"email":   "a@example.com",
			"auth_id": "google-1",
		},
	}

	_, err := engine.Transition(
		context.Background(), "google-1", StateAuth, patch, "",
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPersistence))
	assert.Empty(t, repo.history)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriveConnectedEventAndFlatColumns(t *testing.T) {
	user := visitorUser()
	user.CurrentState = StateDrive
	user.DriveAuthStatus = DriveStatusPending
	repo := &fakeRepo{user: user}
	events := &fakeEvents{}
	engine, mock := newEngineForTest(t, repo, events)

	mock.ExpectBegin()
	mock.ExpectCommit()

	patch := Metadata{
		"drive": map[string]any{
			"auth_status": "connected",
			"tokens": map[string]any{
				"access_token":  "at-1",
				"refresh_token": "rt-1",
			},
		},
	}

	_, err := engine.Transition(
		context.Background(), "google-1", StateDrive, patch, "drive_oauth",
	)
	require.NoError(t, err)

	assert.Equal(t, []string{EventDriveConnected}, events.types)
	assert.Empty(t, repo.history, "same-state drive connect moves no state")

	require.Len(t, repo.updates, 1)
	update := repo.updates[0]
	assert.Equal(t, DriveStatusConnected, update.DriveAuthStatus)
	require.NotNil(t, update.DriveAccessToken)
	assert.Equal(t, "at-1", *update.DriveAccessToken)
	require.NotNil(t, update.DriveRefreshToken)
	assert.Equal(t, "rt-1", *update.DriveRefreshToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriveConnectedNotReemitted(t *testing.T) {
	user := visitorUser()
	user.CurrentState = StateDrive
	user.DriveAuthStatus = DriveStatusConnected
	user.StateMetadata = Metadata{
		"drive": map[string]any{"auth_status": "connected"},
	}
	repo := &fakeRepo{user: user}
	events := &fakeEvents{}
	engine, mock := newEngineForTest(t, repo, events)

	mock.ExpectBegin()
	mock.ExpectCommit()

	patch := Metadata{
		"drive": map[string]any{"auth_status": "connected"},
	}

	_, err := engine.Transition(
		context.Background(), "google-1", StateDrive, patch, "",
	)
	require.NoError(t, err)

	assert.Empty(t, events.types, "already connected, no duplicate event")
	require.NoError(t, mock.ExpectationsWereMet())
}
