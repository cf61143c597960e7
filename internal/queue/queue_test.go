package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, q.Publish(ctx, Message{Type: TypeExpand, Body: []byte("CP_1")}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, TypeExpand, msg.Type)
		assert.Equal(t, "CP_1", string(msg.Body))
	case <-ctx.Done():
		t.Fatal("no message before timeout")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	msg := Message{Type: TypeExpand, Body: []byte("CP_1756_R3")}
	got, err := deserialize(serialize(msg))
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	// Body containing the separator survives: only the first pipe splits.
	msg = Message{Type: "t", Body: []byte("a|b")}
	got, err = deserialize(serialize(msg))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}
