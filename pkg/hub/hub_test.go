package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	return h
}

// join registers a connectionless client; tests read its queue directly.
func join(t *testing.T, h *Hub, goalID string) *Client {
	t.Helper()
	c := newClient(h, nil, goalID)
	h.register <- c
	return c
}

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("no message")
		return nil
	}
}

func TestHub_PublishReachesAllGoalClients(t *testing.T) {
	h := startHub(t)

	a, b := join(t, h, ""), join(t, h, "")
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, h.Publish("g1", map[string]string{"phase": "rotate"}))

	assert.JSONEq(t, `{"phase":"rotate"}`, string(recv(t, a.send)))
	assert.JSONEq(t, `{"phase":"rotate"}`, string(recv(t, b.send)))
}

func TestHub_GoalFilter(t *testing.T) {
	h := startHub(t)

	follower := join(t, h, "g2")
	all := join(t, h, "")
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, time.Millisecond)

	h.Broadcast("g1", []byte(`1`))
	h.Broadcast("g2", []byte(`2`))

	assert.Equal(t, "1", string(recv(t, all.send)))
	assert.Equal(t, "2", string(recv(t, all.send)))
	assert.Equal(t, "2", string(recv(t, follower.send)))
	assert.Empty(t, follower.send)
}

func TestHub_Unregister(t *testing.T) {
	h := startHub(t)

	c := join(t, h, "")
	h.unregister <- c

	_, ok := <-c.send
	assert.False(t, ok, "send channel closed")
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)

	// A second unregister of the same client is harmless.
	h.unregister <- c
}

func TestHub_EvictsSlowClient(t *testing.T) {
	h := startHub(t)

	slow := join(t, h, "")
	other := join(t, h, "elsewhere")
	_ = slow

	for i := 0; i < sendBuffer+1; i++ {
		h.Broadcast("g1", []byte(`{}`))
	}

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, h.Evicted())
	assert.Empty(t, other.send)
}

func TestHub_StopClosesClients(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := join(t, h, "")
	cancel()
	<-done

	_, ok := <-c.send
	assert.False(t, ok)
	assert.False(t, h.IsRunning())
}
