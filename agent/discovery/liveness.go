package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultStaleMultiplier is how many missed heartbeat intervals make an agent stale.
const DefaultStaleMultiplier = 3

// LivenessConfig holds configuration for the liveness tracker.
type LivenessConfig struct {
	// HeartbeatInterval is both the expected heartbeat period and the sweep period.
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`

	// StaleMultiplier scales HeartbeatInterval into the eviction threshold.
	StaleMultiplier int `json:"stale_multiplier"`
}

// DefaultLivenessConfig returns a LivenessConfig with sensible defaults.
func DefaultLivenessConfig() LivenessConfig {
	return LivenessConfig{
		HeartbeatInterval: 30 * time.Second,
		StaleMultiplier:   DefaultStaleMultiplier,
	}
}

// Threshold returns the silence after which an agent is evicted.
func (c LivenessConfig) Threshold() time.Duration {
	return c.HeartbeatInterval * time.Duration(c.StaleMultiplier)
}

// LivenessTracker refreshes LastSeen from heartbeat traffic and evicts agents
// that stay silent longer than the threshold. Eviction is final: an evicted
// agent must register again.
type LivenessTracker struct {
	registry *AgentRegistry
	channel  BroadcastChannel
	config   LivenessConfig
	now      func() time.Time
	logger   *zap.Logger

	mu      sync.Mutex
	subID   string
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// LivenessOption configures a LivenessTracker.
type LivenessOption func(*LivenessTracker)

// WithLivenessClock overrides the clock used for sweeps and refreshes.
func WithLivenessClock(now func() time.Time) LivenessOption {
	return func(t *LivenessTracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewLivenessTracker creates a tracker over registry. channel may be nil, in
// which case only Touch refreshes agents.
func NewLivenessTracker(registry *AgentRegistry, channel BroadcastChannel, config LivenessConfig, logger *zap.Logger, opts ...LivenessOption) *LivenessTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultLivenessConfig()
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if config.StaleMultiplier <= 0 {
		config.StaleMultiplier = defaults.StaleMultiplier
	}

	t := &LivenessTracker{
		registry: registry,
		channel:  channel,
		config:   config,
		now:      registry.now,
		logger:   logger.With(zap.String("component", "liveness_tracker")),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start subscribes to heartbeat traffic and starts the periodic sweep.
func (t *LivenessTracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return errors.New("liveness tracker already running")
	}

	if t.channel != nil {
		t.subID = t.channel.Subscribe(
			ByType(MessageTypeHeartbeat, MessageTypeAgentAvailable, MessageTypeShutdown),
			t.handleMessage,
		)
	}

	t.done = make(chan struct{})
	t.running = true
	t.wg.Add(1)
	go t.sweepLoop()

	t.logger.Info("liveness tracker started",
		zap.Duration("interval", t.config.HeartbeatInterval),
		zap.Duration("threshold", t.config.Threshold()),
	)
	return nil
}

// Running reports whether the sweep loop is active.
func (t *LivenessTracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Stop stops the sweep and drops the channel subscription.
func (t *LivenessTracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.done)
	if t.channel != nil && t.subID != "" {
		t.channel.Unsubscribe(t.subID)
		t.subID = ""
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("liveness tracker stopped")
}

func (t *LivenessTracker) sweepLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Sweep()
		case <-t.done:
			return
		}
	}
}

func (t *LivenessTracker) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeHeartbeat, MessageTypeAgentAvailable:
		t.Touch(msg.SourceAgent)
	case MessageTypeShutdown:
		t.Evict(msg.SourceAgent, EvictionReasonShutdown)
	}
}

// Touch refreshes LastSeen for agentID. Unknown agents are ignored.
func (t *LivenessTracker) Touch(agentID string) bool {
	return t.registry.touch(agentID, t.now())
}

// Sweep evicts every agent silent for longer than the threshold and returns their IDs.
func (t *LivenessTracker) Sweep() []string {
	now := t.now()
	cutoff := now.Add(-t.config.Threshold())

	var evicted []string
	for _, agent := range t.registry.All() {
		if !agent.LastSeen.Before(cutoff) {
			continue
		}
		record, ok := t.registry.removeIfStale(agent.AgentID, cutoff)
		if !ok {
			continue
		}
		evicted = append(evicted, record.AgentID)
		t.logger.Info("agent evicted",
			zap.String("agent_id", record.AgentID),
			zap.Duration("silent_for", now.Sub(record.LastSeen)),
		)
		t.registry.emitEvent(&RegistryEvent{
			Type:      RegistryEventEvicted,
			AgentID:   record.AgentID,
			Reason:    EvictionReasonStale,
			Timestamp: now,
		})
	}
	return evicted
}

// Evict removes agentID immediately. It returns false if the agent was unknown.
func (t *LivenessTracker) Evict(agentID, reason string) bool {
	if !t.registry.remove(agentID) {
		return false
	}
	t.logger.Info("agent evicted", zap.String("agent_id", agentID), zap.String("reason", reason))
	t.registry.emitEvent(&RegistryEvent{
		Type:      RegistryEventEvicted,
		AgentID:   agentID,
		Reason:    reason,
		Timestamp: t.now(),
	})
	return true
}

// OnEviction registers handler for eviction events only.
// The returned ID is removed with the registry's Unsubscribe.
func (t *LivenessTracker) OnEviction(handler RegistryEventHandler) string {
	return t.registry.Subscribe(func(event *RegistryEvent) {
		if event.Type == RegistryEventEvicted {
			handler(event)
		}
	})
}
