package socketclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x-minds/0xpads-listener/internal/config"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// backendStub upgrades incoming connections and forwards every received
// envelope onto a channel for assertions.
func backendStub(t *testing.T, received chan<- Envelope) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				continue
			}
			received <- env
		}
	}))
}

func wsConfig(srv *httptest.Server) config.WebSocketConfig {
	return config.WebSocketConfig{
		BackendSocketURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		BackendNamespace: "/charts",
		PingIntervalS:    20,
		PingTimeoutS:     10,
	}
}

func waitFor(t *testing.T, received <-chan Envelope, event string) Envelope {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case env := <-received:
			if env.Event == event {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", event)
		}
	}
}

func TestClient_ConnectSendsIdentify(t *testing.T) {
	received := make(chan Envelope, 16)
	srv := backendStub(t, received)
	defer srv.Close()

	c := New(wsConfig(srv), 16, testLogger())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	env := waitFor(t, received, "client_identify")
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "blockchain_listener", data["client_type"])
}

func TestClient_RoomMessageReachesBackend(t *testing.T) {
	received := make(chan Envelope, 16)
	srv := backendStub(t, received)
	defer srv.Close()

	c := New(wsConfig(srv), 16, testLogger())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	require.NoError(t, c.RoomMessage("token:0xabc", map[string]string{"price": "0.02"}))

	env := waitFor(t, received, "room_message")
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "token:0xabc", data["room"])
}

func TestClient_QueueFullDropsOldest(t *testing.T) {
	// Never connected: nothing drains the queue, so the capacity-2 queue
	// fills and further sends evict the oldest entry.
	c := New(config.WebSocketConfig{}, 2, testLogger())
	defer c.Close()

	require.NoError(t, c.Broadcast(map[string]string{"seq": "1"}))
	require.NoError(t, c.Broadcast(map[string]string{"seq": "2"}))
	require.NoError(t, c.Broadcast(map[string]string{"seq": "3"}))

	assert.Equal(t, 2, c.QueueDepth())

	first := <-c.sendCh
	data := first.Data.(map[string]string)
	assert.Equal(t, "2", data["seq"])
}

func TestClient_EnqueueAfterCloseFails(t *testing.T) {
	c := New(config.WebSocketConfig{}, 4, testLogger())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Broadcast("x"), ErrClosed)
}

func TestClient_ConnectRequiresURL(t *testing.T) {
	c := New(config.WebSocketConfig{}, 4, testLogger())
	assert.Error(t, c.Connect(context.Background()))
}
