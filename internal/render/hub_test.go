package render

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastsDecimatedFrames(t *testing.T) {
	hub := NewHub(8)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, time.Millisecond)

	times, values := ramp(50, 0.01)
	f, ok := Build(times, values, 5*time.Second, 5)
	require.True(t, ok)
	hub.Present(f)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Frame
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, 50, got.Count)
	assert.LessOrEqual(t, len(got.Times), 8)
	assert.Equal(t, f.XMax, got.Times[len(got.Times)-1])

	hub.Close()
	assert.Zero(t, hub.Clients())
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "connection still open after hub close")
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(0)
	assert.Equal(t, DefaultMaxPoints, hub.MaxPoints)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, time.Millisecond)

	// No clients: presenting is a no-op.
	hub.Present(Frame{})
	hub.Close()
}
