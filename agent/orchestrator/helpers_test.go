package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/agentmesh/agent/discovery"
	"github.com/BaSui01/agentmesh/agent/protocol/a2a"
	"github.com/BaSui01/agentmesh/internal/pool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestOrchestrator(t *testing.T, cfg Config, opts ...Option) *Orchestrator {
	t.Helper()

	channel := discovery.NewInMemoryChannel(pool.GoroutinePoolConfig{MaxWorkers: 16, QueueSize: 256}, zap.NewNop())
	t.Cleanup(func() { _ = channel.Close() })

	orch := New(cfg, discovery.NewAgentRegistry(zap.NewNop()), channel, opts...)
	require.NoError(t, orch.Start(context.Background()))
	t.Cleanup(orch.Stop)
	return orch
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MessageTimeout = 2 * time.Second
	return cfg
}

// replyWith answers every message with content and quality.
func replyWith(content string, quality float64) AgentHandler {
	return func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		return msg.NewReply(content, a2a.Metadata{
			Priority:        a2a.PriorityNormal,
			QualityScore:    quality,
			ConfidenceLevel: quality / 100,
		}), nil
	}
}

func failWith(err error) AgentHandler {
	return func(context.Context, *a2a.Message) (*a2a.Message, error) {
		return nil, err
	}
}

type fakeRecorder struct {
	mu             sync.Mutex
	coordinations  []bool
	messages       map[string]int
	registryEvents []string
	activeSessions int
	online         int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{messages: make(map[string]int)}
}

func (r *fakeRecorder) SetAgentCounts(online, offline int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = online
}

func (r *fakeRecorder) RecordRegistryEvent(eventType, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registryEvents = append(r.registryEvents, eventType)
}

func (r *fakeRecorder) RecordCoordination(success bool, quality float64, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coordinations = append(r.coordinations, success)
}

func (r *fakeRecorder) SetActiveSessions(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeSessions = n
}

func (r *fakeRecorder) RecordMessage(kind string, success bool, roundTrip time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := kind + ":failure"
	if success {
		key = kind + ":success"
	}
	r.messages[key]++
}

func (r *fakeRecorder) onlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

type fakeExecutor struct {
	health     AgentHealth
	actions    []AgentAction
	healthErr  error
	actionsErr error
}

func (e *fakeExecutor) GetHealthStatus(context.Context) (AgentHealth, error) {
	return e.health, e.healthErr
}

func (e *fakeExecutor) GetAvailableActions(context.Context) ([]AgentAction, error) {
	return e.actions, e.actionsErr
}

var errBoom = errors.New("boom")
