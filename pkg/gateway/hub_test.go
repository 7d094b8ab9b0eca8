package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/conduit/pkg/agent"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastStampsSequence(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	h := newHub(zerolog.Nop())
	h.add(NewClient("client-1", serverConn, "127.0.0.1", NewTurnLimiter(0, 0)))

	assert.Equal(t, 1, h.broadcast(agent.Event{Type: TypeShutdown, Message: "bye"}))
	assert.Equal(t, 1, h.broadcast(agent.Event{Type: TypeShutdown, Message: "bye again"}))

	var first, second EventMessage
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&first))
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&second))

	assert.Equal(t, TypeShutdown, first.Type)
	assert.Equal(t, "bye", first.Message)
	assert.Equal(t, "client-1", first.ClientID)
	assert.NotZero(t, first.Timestamp)
	assert.Greater(t, second.Seq, first.Seq)
}

func TestHubSkipsClosedClients(t *testing.T) {
	serverConn, _, cleanup := websocketConnPair(t)
	defer cleanup()

	h := newHub(zerolog.Nop())
	client := NewClient("client-1", serverConn, "127.0.0.1", NewTurnLimiter(0, 0))
	h.add(client)
	require.NoError(t, client.Close())

	assert.True(t, client.Closed())
	assert.ErrorIs(t, client.Write(agent.Event{Type: TypePong}), ErrClientClosed)
	assert.Equal(t, 0, h.broadcast(agent.Event{Type: TypeShutdown}))
}

func TestHubMembership(t *testing.T) {
	serverConn, _, cleanup := websocketConnPair(t)
	defer cleanup()

	h := newHub(zerolog.Nop())
	client := NewClient("c1", serverConn, "10.0.0.1", NewTurnLimiter(0, 0))
	h.add(client)
	assert.Equal(t, 1, h.len())
	require.Len(t, h.snapshot(), 1)
	assert.Same(t, client, h.snapshot()[0])

	before := client.LastSeen()
	time.Sleep(time.Millisecond)
	client.Touch()
	assert.True(t, client.LastSeen().After(before))

	infos := h.infos(time.Now())
	require.Len(t, infos, 1)
	assert.Equal(t, "10.0.0.1", infos[0].IPAddress)
	assert.False(t, infos[0].Idle)

	infos = h.infos(time.Now().Add(idleAfter + time.Second))
	assert.True(t, infos[0].Idle)

	h.remove("c1")
	assert.Equal(t, 0, h.len())
	assert.Empty(t, h.snapshot())
}

func websocketConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConnCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		serverConnCh <- conn
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var serverConn *websocket.Conn
	select {
	case serverConn = <-serverConnCh:
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server websocket connection")
	}

	cleanup := func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
		srv.Close()
	}

	return serverConn, clientConn, cleanup
}
