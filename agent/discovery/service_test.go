package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/agentmesh/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observerStub struct {
	mu         sync.Mutex
	paths      []string
	heartbeats int
}

func (o *observerStub) ObserveDiscovery(path string, found int, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paths = append(o.paths, path)
}

func (o *observerStub) ObserveHeartbeat(agentID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.heartbeats++
}

func (o *observerStub) heartbeatCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.heartbeats
}

func newTestChannel(t *testing.T) *InMemoryChannel {
	t.Helper()
	c := NewInMemoryChannel(testPoolConfig(), nil)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDiscoverAgents_RegistryPathExcludesCore(t *testing.T) {
	r := NewAgentRegistry(nil)
	require.NoError(t, r.Register(testAgent("core", "core", 100)))
	require.NoError(t, r.Register(testAgent("b", "office", 95, "document_processing")))
	require.NoError(t, r.Register(testAgent("a", "dev", 90, "code_analysis")))

	observer := &observerStub{}
	// A huge timeout proves the registry path never waits on it.
	s := NewDiscoveryService(DiscoveryConfig{CoreAgentID: "core", DiscoveryTimeout: time.Hour},
		newTestChannel(t), r, nil, WithObserver(observer))

	start := time.Now()
	agents := s.DiscoverAgents(context.Background())
	assert.Less(t, time.Since(start), time.Second)

	require.Len(t, agents, 2)
	assert.Equal(t, "a", agents[0].AgentID)
	assert.Equal(t, "b", agents[1].AgentID)
	assert.Equal(t, "inproc://b", agents[1].Endpoint)
	assert.Equal(t, AgentStatusOnline, agents[1].Status)
	assert.Equal(t, []string{PathRegistry}, observer.paths)
}

func TestDiscoverAgents_BroadcastPathWithoutResponders(t *testing.T) {
	timeout := 100 * time.Millisecond
	s := NewDiscoveryService(DiscoveryConfig{CoreAgentID: "core", DiscoveryTimeout: timeout},
		newTestChannel(t), nil, nil)

	start := time.Now()
	agents := s.DiscoverAgents(context.Background())
	elapsed := time.Since(start)

	assert.NotNil(t, agents)
	assert.Empty(t, agents)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+time.Second)
}

func TestDiscoverAgents_BroadcastPathCollectsResponders(t *testing.T) {
	channel := newTestChannel(t)
	cfg := DiscoveryConfig{CoreAgentID: "core", DiscoveryTimeout: 200 * time.Millisecond, HeartbeatInterval: time.Hour}

	peers := NewDiscoveryService(cfg, channel, nil, nil)
	defer peers.Close()
	require.NoError(t, peers.RespondToDiscovery(context.Background(), testAgent("a", "dev", 90, "code_analysis")))
	require.NoError(t, peers.RespondToDiscovery(context.Background(), testAgent("b", "office", 95, "document_processing")))
	// The core agent answering its own request is excluded.
	require.NoError(t, peers.RespondToDiscovery(context.Background(), testAgent("core", "core", 100)))

	s := NewDiscoveryService(cfg, channel, nil, nil)
	agents := s.DiscoverAgents(context.Background())

	require.Len(t, agents, 2)
	assert.Equal(t, "a", agents[0].AgentID)
	assert.Equal(t, []CapabilityDescriptor{{Name: "code_analysis", Version: "1.0.0", ConstitutionalCompliant: true}}, agents[0].Capabilities)
	assert.Equal(t, "b", agents[1].AgentID)
	assert.Equal(t, 95.0, agents[1].QualityScore)
}

func TestDiscoverAgents_LateResponsesDropped(t *testing.T) {
	channel := newTestChannel(t)
	timeout := 50 * time.Millisecond

	channel.Subscribe(ByType(MessageTypeDiscoverRequest), func(msg *Message) {
		time.Sleep(4 * timeout)
		_ = channel.Broadcast(context.Background(), NewAgentAvailable(testAgent("slow", "dev", 90), msg))
	})

	s := NewDiscoveryService(DiscoveryConfig{CoreAgentID: "core", DiscoveryTimeout: timeout}, channel, nil, nil)
	assert.Empty(t, s.DiscoverAgents(context.Background()))
}

func TestDiscoverAgents_ContextCancelEndsRound(t *testing.T) {
	s := NewDiscoveryService(DiscoveryConfig{CoreAgentID: "core", DiscoveryTimeout: time.Hour},
		newTestChannel(t), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.Empty(t, s.DiscoverAgents(ctx))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRespondToDiscovery_RejectsEmptyID(t *testing.T) {
	s := NewDiscoveryService(DefaultDiscoveryConfig(), newTestChannel(t), nil, nil)

	err := s.RespondToDiscovery(context.Background(), AgentRegistration{})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRegistration))
}

func TestHeartbeatAndShutdown(t *testing.T) {
	channel := newTestChannel(t)
	r := NewAgentRegistry(nil)
	tracker := NewLivenessTracker(r, channel, LivenessConfig{HeartbeatInterval: time.Hour}, nil)

	observer := &observerStub{}
	s := NewDiscoveryService(DiscoveryConfig{CoreAgentID: "core", HeartbeatInterval: 20 * time.Millisecond},
		channel, r, nil, WithLivenessTracker(tracker), WithObserver(observer))
	defer s.Close()

	var heartbeats, shutdowns recorder
	channel.Subscribe(ByType(MessageTypeHeartbeat), heartbeats.handle)
	channel.Subscribe(ByType(MessageTypeShutdown), shutdowns.handle)

	require.NoError(t, r.Register(testAgent("a", "dev", 90)))
	s.StartHeartbeat("a")
	s.StartHeartbeat("a")
	assert.True(t, s.HeartbeatRunning("a"))

	assert.Eventually(t, func() bool { return heartbeats.count() >= 2 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, observer.heartbeatCount(), 1)

	require.NoError(t, s.Shutdown(context.Background(), "a"))
	assert.False(t, s.HeartbeatRunning("a"))
	_, ok := r.Get("a")
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return shutdowns.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "a", shutdowns.first().SourceAgent)

	time.Sleep(30 * time.Millisecond)
	settled := heartbeats.count()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, heartbeats.count())
}

func TestAnnounce_BroadcastsOnceWithoutHeartbeat(t *testing.T) {
	channel := newTestChannel(t)
	s := NewDiscoveryService(DiscoveryConfig{CoreAgentID: "core", HeartbeatInterval: 10 * time.Millisecond}, channel, nil, nil)
	defer s.Close()

	var available, heartbeats recorder
	channel.Subscribe(ByType(MessageTypeAgentAvailable), available.handle)
	channel.Subscribe(ByType(MessageTypeHeartbeat), heartbeats.handle)

	require.NoError(t, s.Announce(context.Background(), testAgent("a", "dev", 90, "code_analysis")))

	assert.Eventually(t, func() bool { return available.count() == 1 }, time.Second, 5*time.Millisecond)
	msg := available.first()
	assert.Equal(t, "a", msg.SourceAgent)
	assert.Empty(t, msg.CorrelationID)
	require.NotNil(t, msg.Payload)
	assert.Equal(t, AgentStatusOnline, msg.Payload.Status)

	assert.False(t, s.HeartbeatRunning("a"))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, heartbeats.count())
	assert.Equal(t, 1, available.count())
}

func TestAnnounce_RejectsEmptyID(t *testing.T) {
	s := NewDiscoveryService(DefaultDiscoveryConfig(), newTestChannel(t), nil, nil)

	err := s.Announce(context.Background(), AgentRegistration{})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRegistration))
}

func TestAnnounce_SilentAgentIsEvicted(t *testing.T) {
	channel := newTestChannel(t)
	r := NewAgentRegistry(nil)
	interval := 20 * time.Millisecond
	tracker := NewLivenessTracker(r, channel, LivenessConfig{HeartbeatInterval: interval}, nil)
	require.NoError(t, tracker.Start(context.Background()))
	defer tracker.Stop()

	s := NewDiscoveryService(DiscoveryConfig{CoreAgentID: "core", HeartbeatInterval: interval},
		channel, r, nil, WithLivenessTracker(tracker))
	defer s.Close()

	require.NoError(t, r.Register(testAgent("dead", "dev", 90)))
	announced := testAgent("announced", "dev", 90)
	require.NoError(t, r.Register(announced))
	require.NoError(t, s.Announce(context.Background(), announced))

	assert.Eventually(t, func() bool {
		_, dead := r.Get("dead")
		_, live := r.Get("announced")
		return !dead && !live
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRespondToDiscovery_CancelledContext(t *testing.T) {
	channel := newTestChannel(t)
	s := NewDiscoveryService(DiscoveryConfig{CoreAgentID: "core", HeartbeatInterval: time.Hour}, channel, nil, nil)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.RespondToDiscovery(ctx, testAgent("a", "dev", 90))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.HeartbeatRunning("a"))

	// Nothing answers on a's behalf.
	d := NewDiscoveryService(DiscoveryConfig{CoreAgentID: "core", DiscoveryTimeout: 50 * time.Millisecond}, channel, nil, nil)
	assert.Empty(t, d.DiscoverAgents(context.Background()))
}

func TestStopResponding_Quiet(t *testing.T) {
	channel := newTestChannel(t)
	r := NewAgentRegistry(nil)
	s := NewDiscoveryService(DiscoveryConfig{CoreAgentID: "core", HeartbeatInterval: time.Hour, DiscoveryTimeout: 50 * time.Millisecond},
		channel, nil, nil)
	defer s.Close()

	var shutdowns recorder
	channel.Subscribe(ByType(MessageTypeShutdown), shutdowns.handle)

	reg := testAgent("a", "dev", 90)
	require.NoError(t, r.Register(reg))
	require.NoError(t, s.RespondToDiscovery(context.Background(), reg))
	require.True(t, s.HeartbeatRunning("a"))

	s.StopResponding("a")
	assert.False(t, s.HeartbeatRunning("a"))
	assert.Empty(t, s.DiscoverAgents(context.Background()))
	assert.Zero(t, shutdowns.count())
	_, ok := r.Get("a")
	assert.True(t, ok)
}
