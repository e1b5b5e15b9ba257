package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func TestJSONMessage(t *testing.T) {
	msg, err := NewJSONMessage("submission", payload{Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "submission", msg.Type)
	assert.JSONEq(t, `{"name":"Alice"}`, string(msg.Body))

	var got payload
	require.NoError(t, msg.Decode(&got))
	assert.Equal(t, "Alice", got.Name)

	bad := Message{Type: "submission", Body: []byte("{")}
	assert.ErrorContains(t, bad.Decode(&got), "decoding submission message")
}

func TestInMemory_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewInMemory(4)

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	for _, name := range []string{"a", "b"} {
		msg, err := NewJSONMessage("submission", payload{Name: name})
		require.NoError(t, err)
		require.NoError(t, q.Publish(ctx, msg))
	}

	for _, want := range []string{"a", "b"} {
		select {
		case msg := <-ch:
			var p payload
			require.NoError(t, msg.Decode(&p))
			assert.Equal(t, want, p.Name)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel closes on cancel")
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemory_PublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "x"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "x"}), context.DeadlineExceeded)
}

func TestNewRedisQueue_DefaultKey(t *testing.T) {
	assert.Equal(t, DefaultKey, NewRedisQueue(nil, "").key)
	assert.Equal(t, "custom", NewRedisQueue(nil, "custom").key)
}
