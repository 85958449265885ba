// AngelaMos | 2026
// events.go

package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Progress frame statuses, in deployment order. The terminal frames are
// completed and error; subscribers stop after either.
const (
	ProgressStarted       = "started"
	ProgressFolderCreated = "folder_created"
	ProgressReadmeUpload  = "readme_uploaded"
	ProgressCompleted     = "completed"
	ProgressError         = "error"
)

type ProgressFrame struct {
	Type      string       `json:"type"`
	Status    string       `json:"status"`
	Progress  int          `json:"progress"`
	Folders   []FolderView `json:"folders,omitempty"`
	Completed bool         `json:"completed"`
	Message   string       `json:"message,omitempty"`
}

func (f ProgressFrame) Terminal() bool {
	return f.Status == ProgressCompleted || f.Status == ProgressError
}

type ProgressPublisher interface {
	Publish(ctx context.Context, userID string, frame ProgressFrame) error
}

// ProgressStream delivers frames to one subscriber; the SSE handler
// consumes it. Close releases the underlying subscription.
type ProgressStream interface {
	Frames() <-chan ProgressFrame
	Close() error
}

type ProgressSubscriber interface {
	Subscribe(ctx context.Context, userID string) (ProgressStream, error)
}

func progressChannel(userID string) string {
	return "provision:" + userID
}

// RedisProgress carries frames over Redis pub/sub so any API replica
// can serve the SSE stream regardless of which one runs the worker.
type RedisProgress struct {
	client *redis.Client
}

func NewRedisProgress(client *redis.Client) *RedisProgress {
	return &RedisProgress{client: client}
}

func (p *RedisProgress) Publish(
	ctx context.Context,
	userID string,
	frame ProgressFrame,
) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal progress frame: %w", err)
	}

	if err := p.client.Publish(ctx, progressChannel(userID), body).Err(); err != nil {
		return fmt.Errorf("publish progress frame: %w", err)
	}

	return nil
}

func (p *RedisProgress) Subscribe(
	ctx context.Context,
	userID string,
) (ProgressStream, error) {
	sub := p.client.Subscribe(ctx, progressChannel(userID))

	// force the SUBSCRIBE round-trip so a broken connection surfaces
	// here instead of as a silent empty stream
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close() //nolint:errcheck // cleanup on subscribe failure
		return nil, fmt.Errorf("subscribe progress channel: %w", err)
	}

	stream := &redisStream{
		sub:    sub,
		frames: make(chan ProgressFrame, 8),
		done:   make(chan struct{}),
	}
	go stream.pump(sub.Channel())

	return stream, nil
}

type redisStream struct {
	sub       *redis.PubSub
	frames    chan ProgressFrame
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisStream) pump(messages <-chan *redis.Message) {
	defer close(s.frames)

	for msg := range messages {
		var frame ProgressFrame
		if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
			continue
		}
		// a subscriber that closed mid-burst must not strand the pump
		select {
		case s.frames <- frame:
		case <-s.done:
			return
		}
		if frame.Terminal() {
			return
		}
	}
}

func (s *redisStream) Frames() <-chan ProgressFrame {
	return s.frames
}

func (s *redisStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.sub.Close()
}
