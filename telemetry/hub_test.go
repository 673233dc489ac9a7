package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	hub := NewHub(HubConfig{Interval: 10 * time.Millisecond, PingPeriod: time.Second}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeStream(w, r, "CASE-0001", 130, 1)
	}))
	return hub, server, cancel, stopped
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestHubStreamsSamples(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub, server, cancel, stopped := startHub(t)
	conn := dial(t, server)

	for i := 0; i < 3; i++ {
		var sample Sample
		require.NoError(t, conn.ReadJSON(&sample))
		assert.Equal(t, "CASE-0001", sample.CaseID)
		assert.InDelta(t, 130, sample.FHR, fhrAmplitude+fhrJitter)
		assert.False(t, sample.Timestamp.IsZero())
	}
	assert.Equal(t, 1, hub.Clients())

	cancel()
	<-stopped
	drain(conn)
	conn.Close()
	server.Close()
	assert.Equal(t, 0, hub.Clients())
}

func TestHubClientDisconnect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub, server, cancel, stopped := startHub(t)
	conn := dial(t, server)
	var sample Sample
	require.NoError(t, conn.ReadJSON(&sample))

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-stopped
	server.Close()
}

func TestHubRejectsAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	_, server, cancel, stopped := startHub(t)
	cancel()
	<-stopped

	conn := dial(t, server)
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	conn.Close()
	server.Close()
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(HubConfig{AllowedOrigins: []string{"http://dashboard.local"}}, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "http://dashboard.local")
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, hub.checkOrigin(req))
}
