package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/agentmesh/agent/discovery"
	"github.com/BaSui01/agentmesh/testutil/fixtures"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoveryHandler_HandleDiscover(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.orch.RegisterAgent(fixtures.CodeAgent()))
	require.NoError(t, env.orch.RegisterAgent(fixtures.Agent("core", "coordinator", 99)))

	var summaries []discovery.AgentSummary
	w := env.do(t, http.MethodGet, "/api/v1/discovery", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeResponse(t, w, &summaries)

	require.Len(t, summaries, 1)
	assert.Equal(t, "agent-a", summaries[0].AgentID)
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/discovery/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func TestDiscoveryHandler_Stream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.mux)
	t.Cleanup(srv.Close)

	conn := dialStream(t, srv)

	// The subscription is registered after the upgrade; keep publishing
	// until the first frame arrives.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = env.orch.Channel().Broadcast(ctx, discovery.NewHeartbeat("agent-a"))
				// Agent traffic must never reach the stream.
				_ = env.orch.Channel().Broadcast(ctx, discovery.NewAgentMessage("core", "agent-a", []byte(`{}`)))
			}
		}
	}()

	for i := 0; i < 3; i++ {
		var msg discovery.Message
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		assert.Equal(t, discovery.MessageTypeHeartbeat, msg.Type)
		assert.Equal(t, "agent-a", msg.SourceAgent)
	}
}

func TestDiscoveryHandler_CloseEndsStreams(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.mux)
	t.Cleanup(srv.Close)

	conn := dialStream(t, srv)

	done := make(chan struct{})
	go func() {
		env.discovery.Close()
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var msg discovery.Message
	err := wsjson.Read(ctx, conn, &msg)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return")
	}

	w := env.do(t, http.MethodGet, "/api/v1/discovery/stream", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
