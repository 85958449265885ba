// AngelaMos | 2026
// handler_test.go

package state

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelamos/tenfold/internal/core"
	"github.com/angelamos/tenfold/internal/funnel"
	"github.com/angelamos/tenfold/internal/middleware"
	"github.com/angelamos/tenfold/internal/provision"
)

type fakeEngine struct {
	snapshot      *funnel.Snapshot
	snapshotErr   error
	transitionErr error

	gotTarget funnel.State
	gotPatch  funnel.Metadata
	gotReason string
}

func (f *fakeEngine) Snapshot(
	ctx context.Context,
	authID string,
) (*funnel.Snapshot, error) {
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return f.snapshot, nil
}

func (f *fakeEngine) Transition(
	ctx context.Context,
	authID string,
	target funnel.State,
	patch funnel.Metadata,
	reason string,
) (*funnel.Snapshot, error) {
	f.gotTarget = target
	f.gotPatch = patch
	f.gotReason = reason
	if f.transitionErr != nil {
		return nil, f.transitionErr
	}
	return &funnel.Snapshot{
		AuthID:   authID,
		State:    target,
		Metadata: patch,
	}, nil
}

type fakeFolders struct {
	provision.Repository
	folders []provision.Folder
	stats   *provision.Stats
}

func (f *fakeFolders) ListByUser(
	ctx context.Context,
	userID string,
) ([]provision.Folder, error) {
	return f.folders, nil
}

func (f *fakeFolders) StatsForUser(
	ctx context.Context,
	userID string,
) (*provision.Stats, error) {
	return f.stats, nil
}

type chanStream struct {
	frames chan provision.ProgressFrame
}

func (s *chanStream) Frames() <-chan provision.ProgressFrame { return s.frames }
func (s *chanStream) Close() error                           { return nil }

type fakeProgress struct {
	stream *chanStream
	err    error
}

func (f *fakeProgress) Subscribe(
	ctx context.Context,
	userID string,
) (provision.ProgressStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func testIdentity() *middleware.Identity {
	return &middleware.Identity{
		UserID: "u-1",
		AuthID: "google-1",
		Email:  "ada@example.com",
	}
}

func injectIdentity(identity *middleware.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity != nil {
				ctx := context.WithValue(
					r.Context(),
					middleware.IdentityKey,
					identity,
				)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newTestRouter(
	h *Handler,
	identity *middleware.Identity,
) chi.Router {
	r := chi.NewRouter()
	r.Route("/api/state", func(r chi.Router) {
		h.RegisterRoutes(r, injectIdentity(identity), injectIdentity(identity))
	})
	return r
}

func newHandlerForTest(
	engine *fakeEngine,
	folders *fakeFolders,
	progress *fakeProgress,
) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if folders == nil {
		folders = &fakeFolders{}
	}
	if progress == nil {
		progress = &fakeProgress{}
	}
	return NewHandler(engine, folders, progress, logger)
}

func decodeEnvelope(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&envelope))
	return envelope.Data
}

func TestCurrentStateAnonymousVisitor(t *testing.T) {
	h := newHandlerForTest(&fakeEngine{}, nil, nil)
	router := newTestRouter(h, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec.Body)
	assert.Equal(t, "VISITOR", data["state"])

	metadata, ok := data["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"AUTH"}, metadata["allowed_transitions"])
}

func TestCurrentStateAuthenticated(t *testing.T) {
	metadata := funnel.Metadata{}
	metadata.StampAllowedTransitions(funnel.StatePayment)
	engine := &fakeEngine{snapshot: &funnel.Snapshot{
		AuthID:   "google-1",
		State:    funnel.StatePayment,
		Metadata: metadata,
	}}
	h := newHandlerForTest(engine, nil, nil)
	router := newTestRouter(h, testIdentity())

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec.Body)
	assert.Equal(t, "PAYMENT", data["state"])
}

func TestCurrentStateVanishedUserFallsBackToVisitor(t *testing.T) {
	engine := &fakeEngine{snapshotErr: core.ErrUserNotFound}
	h := newHandlerForTest(engine, nil, nil)
	router := newTestRouter(h, testIdentity())

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec.Body)
	assert.Equal(t, "VISITOR", data["state"])
}

func TestTransitionSuccess(t *testing.T) {
	engine := &fakeEngine{}
	h := newHandlerForTest(engine, nil, nil)
	router := newTestRouter(h, testIdentity())

	body := strings.NewReader(
		`{"metadata":{"user":{"email":"ada@example.com","auth_id":"google-1"}},` +
			`"reason":"google_signin"}`,
	)
	req := httptest.NewRequest(http.MethodPost, "/api/state/AUTH/transition", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, funnel.StateAuth, engine.gotTarget)
	assert.Equal(t, "google_signin", engine.gotReason)

	data := decodeEnvelope(t, rec.Body)
	assert.Equal(t, "AUTH", data["state"])
}

func TestTransitionUnknownState(t *testing.T) {
	h := newHandlerForTest(&fakeEngine{}, nil, nil)
	router := newTestRouter(h, testIdentity())

	req := httptest.NewRequest(
		http.MethodPost,
		"/api/state/LIMBO/transition",
		strings.NewReader(`{}`),
	)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_STATE")
}

func TestTransitionIllegalEdge(t *testing.T) {
	engine := &fakeEngine{
		transitionErr: core.IllegalTransitionError("VISITOR", "DRIVE"),
	}
	h := newHandlerForTest(engine, nil, nil)
	router := newTestRouter(h, testIdentity())

	req := httptest.NewRequest(
		http.MethodPost,
		"/api/state/DRIVE/transition",
		strings.NewReader(`{}`),
	)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "ILLEGAL_TRANSITION")
}

func TestTransitionMissingRequirements(t *testing.T) {
	engine := &fakeEngine{
		transitionErr: core.ErrInvalidInput,
	}
	h := newHandlerForTest(engine, nil, nil)
	router := newTestRouter(h, testIdentity())

	req := httptest.NewRequest(
		http.MethodPost,
		"/api/state/PAYMENT/transition",
		strings.NewReader(`{"metadata":{}}`),
	)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitionMalformedBody(t *testing.T) {
	h := newHandlerForTest(&fakeEngine{}, nil, nil)
	router := newTestRouter(h, testIdentity())

	req := httptest.NewRequest(
		http.MethodPost,
		"/api/state/AUTH/transition",
		strings.NewReader(`{broken`),
	)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequirementsForPayment(t *testing.T) {
	h := newHandlerForTest(&fakeEngine{}, nil, nil)
	router := newTestRouter(h, nil)

	req := httptest.NewRequest(
		http.MethodGet,
		"/api/state/requirements/PAYMENT",
		nil,
	)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec.Body)
	assert.Equal(t, "PAYMENT", data["state"])
	assert.ElementsMatch(t,
		[]any{"plan_id", "session_id", "status"},
		data["required_fields"],
	)
	assert.ElementsMatch(t, []any{"DRIVE", "AUTH"}, data["allowed_transitions"])
}

func TestActiveFolders(t *testing.T) {
	folders := &fakeFolders{folders: []provision.Folder{
		{
			ID:           "f-1",
			UserID:       "u-1",
			Name:         "Workspace01_TenFold",
			CurrentState: provision.FolderActive,
		},
	}}
	h := newHandlerForTest(&fakeEngine{}, folders, nil)
	router := newTestRouter(h, testIdentity())

	req := httptest.NewRequest(http.MethodGet, "/api/state/active/folders", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec.Body)
	list, ok := data["folders"].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	folder := list[0].(map[string]any)
	assert.Equal(t, "Workspace01_TenFold", folder["name"])
}

func TestActiveStats(t *testing.T) {
	folders := &fakeFolders{stats: &provision.Stats{
		FolderCount:   2,
		ActiveFolders: 1,
	}}
	h := newHandlerForTest(&fakeEngine{}, folders, nil)
	router := newTestRouter(h, testIdentity())

	req := httptest.NewRequest(http.MethodGet, "/api/state/active/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec.Body)
	assert.EqualValues(t, 2, data["folder_count"])
	assert.EqualValues(t, 1, data["active_folders"])
}

func TestDriveEventsStreamsUntilTerminalFrame(t *testing.T) {
	stream := &chanStream{frames: make(chan provision.ProgressFrame, 4)}
	stream.frames <- provision.ProgressFrame{
		Type:     "deployment_progress",
		Status:   provision.ProgressStarted,
		Progress: 10,
	}
	stream.frames <- provision.ProgressFrame{
		Type:      "deployment_progress",
		Status:    provision.ProgressCompleted,
		Progress:  100,
		Completed: true,
	}

	h := newHandlerForTest(&fakeEngine{}, nil, &fakeProgress{stream: stream})
	router := newTestRouter(h, testIdentity())

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		srv.URL+"/api/state/drive/events",
		nil,
	)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck // test cleanup

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var frames []provision.ProgressFrame
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame provision.ProgressFrame
		require.NoError(
			t,
			json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame),
		)
		frames = append(frames, frame)
	}

	require.Len(t, frames, 2)
	assert.Equal(t, provision.ProgressStarted, frames[0].Status)
	assert.Equal(t, provision.ProgressCompleted, frames[1].Status)
	assert.True(t, frames[1].Terminal())
}

func TestStateEventsFirstFrameImmediate(t *testing.T) {
	metadata := funnel.Metadata{}
	metadata.StampAllowedTransitions(funnel.StateAuth)
	engine := &fakeEngine{snapshot: &funnel.Snapshot{
		AuthID:   "google-1",
		State:    funnel.StateAuth,
		Metadata: metadata,
	}}
	h := newHandlerForTest(engine, nil, nil)
	router := newTestRouter(h, testIdentity())

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		srv.URL+"/api/state/events",
		nil,
	)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck // test cleanup

	require.Equal(t, http.StatusOK, resp.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	var first string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			first = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	require.NotEmpty(t, first)

	var payload StateResponse
	require.NoError(t, json.Unmarshal([]byte(first), &payload))
	assert.Equal(t, funnel.StateAuth, payload.State)
	cancel()
}
