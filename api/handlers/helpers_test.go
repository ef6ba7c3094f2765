package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/agentmesh/agent/discovery"
	"github.com/BaSui01/agentmesh/agent/orchestrator"
	"github.com/BaSui01/agentmesh/agent/protocol/a2a"
	"github.com/BaSui01/agentmesh/internal/pool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testEnv bundles an orchestrator with a mux mounting every handler.
type testEnv struct {
	orch      *orchestrator.Orchestrator
	discovery *DiscoveryHandler
	mux       *http.ServeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith lets tune adjust the orchestrator config before start.
func newTestEnvWith(t *testing.T, tune func(*orchestrator.Config)) *testEnv {
	t.Helper()

	channel := discovery.NewInMemoryChannel(pool.GoroutinePoolConfig{MaxWorkers: 16, QueueSize: 256}, zap.NewNop())
	t.Cleanup(func() { _ = channel.Close() })

	cfg := orchestrator.DefaultConfig()
	cfg.MessageTimeout = 2 * time.Second
	cfg.DiscoveryTimeout = 200 * time.Millisecond
	if tune != nil {
		tune(&cfg)
	}
	orch := orchestrator.New(cfg, discovery.NewAgentRegistry(zap.NewNop()), channel)
	require.NoError(t, orch.Start(context.Background()))
	t.Cleanup(orch.Stop)

	agents := NewAgentHandler(orch, nil)
	disc := NewDiscoveryHandler(orch, DefaultStreamConfig(), nil)
	t.Cleanup(disc.Close)
	coord := NewCoordinationHandler(orch, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/agents", agents.HandleListAgents)
	mux.HandleFunc("POST /api/v1/agents", agents.HandleRegisterAgent)
	mux.HandleFunc("GET /api/v1/agents/{id}", agents.HandleGetAgent)
	mux.HandleFunc("DELETE /api/v1/agents/{id}", agents.HandleDeleteAgent)
	mux.HandleFunc("POST /api/v1/agents/{id}/heartbeat", agents.HandleHeartbeat)
	mux.HandleFunc("GET /api/v1/discovery", disc.HandleDiscover)
	mux.HandleFunc("GET /api/v1/discovery/stream", disc.HandleStream)
	mux.HandleFunc("GET /api/v1/capabilities", coord.HandleQueryCapabilities)
	mux.HandleFunc("POST /api/v1/coordinate", coord.HandleCoordinate)
	mux.HandleFunc("POST /api/v1/messages", coord.HandleSendMessage)
	mux.HandleFunc("GET /api/v1/network/health", coord.HandleNetworkHealth)
	mux.HandleFunc("GET /api/v1/sessions", coord.HandleListSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", coord.HandleGetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", coord.HandleDeleteSession)

	return &testEnv{orch: orch, discovery: disc, mux: mux}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, bytes.NewReader(data))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	return w
}

// decodeResponse decodes the envelope and, when dst is non-nil, its data.
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, dst any) Response {
	t.Helper()

	var raw struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
	if dst != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, dst))
	}
	return raw.Response
}

func replyWith(content string, quality float64) orchestrator.AgentHandler {
	return func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		return msg.NewReply(content, a2a.Metadata{
			Priority:        a2a.PriorityNormal,
			QualityScore:    quality,
			ConfidenceLevel: quality / 100,
		}), nil
	}
}
