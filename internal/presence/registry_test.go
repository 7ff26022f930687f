// ABOUTME: Tests for the presence Registry and Conn handle lifecycle
// ABOUTME: Covers connect, supersession, stale disconnect races, and drop-on-full

package presence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ConnectAndLookup(t *testing.T) {
	r := NewRegistry(0, nil)
	defer r.Close()

	conn := r.Connect("u1", "requester")
	require.NotNil(t, conn)
	assert.Equal(t, "u1", conn.UserID())
	assert.Equal(t, "requester", conn.Role())

	got, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, conn.Handle(), got.Handle())

	_, ok = r.Lookup("u2")
	assert.False(t, ok)
}

func TestRegistry_ReconnectSupersedesPriorHandle(t *testing.T) {
	r := NewRegistry(0, nil)
	defer r.Close()

	first := r.Connect("u1", "provider")
	second := r.Connect("u1", "provider")

	assert.NotEqual(t, first.Handle(), second.Handle())

	// The stale handle accepts no events and its stream is closed.
	assert.False(t, first.Send(&Event{Type: "new_message"}))
	_, open := <-first.Events()
	assert.False(t, open)

	// Fan-out reaches only the live handle.
	require.True(t, second.Send(&Event{Type: "new_message"}))
	ev := <-second.Events()
	assert.Equal(t, "new_message", ev.Type)
}

func TestRegistry_StaleDisconnectDoesNotEvictNewerConnection(t *testing.T) {
	r := NewRegistry(0, nil)
	defer r.Close()

	first := r.Connect("u1", "requester")
	second := r.Connect("u1", "requester")

	// The old transport tearing down must not remove the new connection.
	r.Disconnect(first)

	got, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, second.Handle(), got.Handle())
	assert.True(t, second.Send(&Event{Type: "user_typing"}))
}

func TestRegistry_DisconnectRemovesLiveHandle(t *testing.T) {
	r := NewRegistry(0, nil)
	defer r.Close()

	conn := r.Connect("u1", "requester")
	r.Disconnect(conn)

	_, ok := r.Lookup("u1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Connected())

	// Double disconnect is harmless.
	r.Disconnect(conn)
	r.Disconnect(nil)
}

func TestConn_SendDropsWhenBufferFull(t *testing.T) {
	r := NewRegistry(2, nil)
	defer r.Close()

	conn := r.Connect("u1", "provider")

	assert.True(t, conn.Send(&Event{Type: "new_message"}))
	assert.True(t, conn.Send(&Event{Type: "new_message"}))
	assert.False(t, conn.Send(&Event{Type: "new_message"}), "full buffer drops, never blocks")
}

func TestRegistry_Connected(t *testing.T) {
	r := NewRegistry(0, nil)
	defer r.Close()

	r.Connect("u1", "requester")
	r.Connect("u2", "provider")
	r.Connect("u1", "requester") // reconnect, not a new user

	assert.Equal(t, 2, r.Connected())
}

func TestRegistry_ConcurrentConnectDisconnect(t *testing.T) {
	r := NewRegistry(0, nil)
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := r.Connect("u1", "requester")
			conn.Send(&Event{Type: "new_message"})
			r.Disconnect(conn)
		}()
	}
	wg.Wait()

	// Every goroutine's disconnect either removed its own live handle or
	// was ignored as stale; nothing dangles.
	assert.Equal(t, 0, r.Connected())
}
