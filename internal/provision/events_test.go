// AngelaMos | 2026
// events_test.go

package provision

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameMessage(t *testing.T, frame ProgressFrame) *redis.Message {
	t.Helper()
	body, err := json.Marshal(frame)
	require.NoError(t, err)
	return &redis.Message{Payload: string(body)}
}

// drainUntilClosed reads frames until the channel closes, or reports
// failure on timeout.
func drainUntilClosed(t *testing.T, frames <-chan ProgressFrame) bool {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-frames:
			if !open {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func TestStreamPumpStopsAfterTerminalFrame(t *testing.T) {
	stream := &redisStream{
		frames: make(chan ProgressFrame, 8),
		done:   make(chan struct{}),
	}
	messages := make(chan *redis.Message, 2)
	messages <- frameMessage(t, ProgressFrame{
		Status: ProgressStarted, Progress: 10,
	})
	messages <- frameMessage(t, ProgressFrame{
		Status: ProgressCompleted, Progress: 100, Completed: true,
	})

	go stream.pump(messages)

	assert.True(t, drainUntilClosed(t, stream.frames),
		"frame channel closes after the terminal frame")
}

func TestStreamPumpStopsWhenClosedMidBurst(t *testing.T) {
	stream := &redisStream{
		frames: make(chan ProgressFrame, 1),
		done:   make(chan struct{}),
	}
	messages := make(chan *redis.Message, 4)
	for range 3 {
		messages <- frameMessage(t, ProgressFrame{
			Status: ProgressStarted, Progress: 10,
		})
	}

	go stream.pump(messages)

	// wait for the pump to fill the buffer and block on the next send
	require.Eventually(t, func() bool {
		return len(stream.frames) == 1
	}, time.Second, 5*time.Millisecond)

	close(stream.done)

	assert.True(t, drainUntilClosed(t, stream.frames),
		"a closed subscriber releases the blocked pump")
}

func TestStreamPumpSkipsMalformedPayload(t *testing.T) {
	stream := &redisStream{
		frames: make(chan ProgressFrame, 8),
		done:   make(chan struct{}),
	}
	messages := make(chan *redis.Message, 2)
	messages <- &redis.Message{Payload: "{broken"}
	messages <- frameMessage(t, ProgressFrame{
		Status: ProgressError, Completed: true,
	})

	go stream.pump(messages)

	frame, open := <-stream.frames
	require.True(t, open)
	assert.Equal(t, ProgressError, frame.Status)
	assert.True(t, drainUntilClosed(t, stream.frames))
}
