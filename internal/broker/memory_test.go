package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Value string `json:"value"`
}

func TestMemoryBrokerDeliversToConsumer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b := NewMemory()
	received := make(chan testPayload, 1)

	err := b.Consumer(ctx, "ready-tasks", "", 1, 1, func(_ context.Context, content json.RawMessage) error {
		var p testPayload
		if err := json.Unmarshal(content, &p); err != nil {
			return err
		}
		received <- p
		return nil
	})
	require.NoError(t, err)

	_, err = b.Send(ctx, "ready-tasks", testPayload{Value: "hello"})
	require.NoError(t, err)

	select {
	case p := <-received:
		require.Equal(t, "hello", p.Value)
	case <-ctx.Done():
		t.Fatal("timed out waiting for delivery")
	}

	require.NoError(t, b.Shutdown(context.Background()))
}

func TestMemoryBrokerRoutesFailedMessagesToDLQ(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b := NewMemory()
	handled := make(chan struct{}, 1)

	err := b.Consumer(ctx, "running-tasks", "", 1, 1, func(_ context.Context, _ json.RawMessage) error {
		defer func() { handled <- struct{}{} }()
		return errors.New("boom")
	})
	require.NoError(t, err)

	_, err = b.Send(ctx, "running-tasks", testPayload{Value: "will-fail"})
	require.NoError(t, err)

	select {
	case <-handled:
	case <-ctx.Done():
		t.Fatal("timed out waiting for handler")
	}

	require.Eventually(t, func() bool {
		return len(b.DeadLettered("running-tasks")) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, b.Shutdown(context.Background()))
}

func TestDLQTopic(t *testing.T) {
	require.Equal(t, "ready-tasks-dlq", DLQTopic("ready-tasks"))
}
