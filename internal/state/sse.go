// AngelaMos | 2026
// sse.go

package state

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/angelamos/tenfold/internal/core"
	"github.com/angelamos/tenfold/internal/middleware"
)

const (
	statePollInterval = 2 * time.Second
	sseHeartbeat      = 25 * time.Second
)

func sseHeaders(w http.ResponseWriter) {
	// the server's global write timeout would sever a long-lived stream
	//nolint:errcheck // best effort, not every writer supports deadlines
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// StateEvents streams the caller's funnel snapshot. The first frame
// goes out immediately; afterwards a frame is sent whenever the state
// or metadata changes, plus a heartbeat comment so proxies keep the
// connection open.
func (h *Handler) StateEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		core.InternalServerError(w, nil)
		return
	}
	sseHeaders(w)

	current := h.resolveState(r)
	if err := writeFrame(w, flusher, current); err != nil {
		return
	}
	lastSent, _ := json.Marshal(current)

	poll := time.NewTicker(statePollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-poll.C:
			next := h.resolveState(r)
			body, err := json.Marshal(next)
			if err != nil || string(body) == string(lastSent) {
				continue
			}
			if err := writeFrame(w, flusher, next); err != nil {
				return
			}
			lastSent = body
		}
	}
}

// DriveEvents streams workspace deployment progress frames. The stream
// ends after a terminal frame. A client that disconnects mid-deploy
// only loses the stream; the deployment itself keeps running.
func (h *Handler) DriveEvents(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		core.JSONError(w, core.UnauthorizedError(""))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		core.InternalServerError(w, nil)
		return
	}

	stream, err := h.progress.Subscribe(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("progress subscribe failed",
			"user_id", identity.UserID,
			"error", err,
		)
		core.InternalServerError(w, err)
		return
	}
	defer stream.Close() //nolint:errcheck // stream teardown

	sseHeaders(w)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case frame, open := <-stream.Frames():
			if !open {
				return
			}
			if err := writeFrame(w, flusher, frame); err != nil {
				return
			}
			if frame.Terminal() {
				return
			}
		}
	}
}
