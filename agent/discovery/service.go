package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/agentmesh/types"
	"go.uber.org/zap"
)

// Discovery paths reported to observers.
const (
	PathRegistry  = "registry"
	PathBroadcast = "broadcast"
)

// DiscoveryConfig holds configuration for the discovery service.
type DiscoveryConfig struct {
	// CoreAgentID is the identity of the local agent; it is excluded from results.
	CoreAgentID string `json:"core_agent_id"`

	// HeartbeatInterval is the period between heartbeats.
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`

	// DiscoveryTimeout bounds a broadcast-and-collect round.
	DiscoveryTimeout time.Duration `json:"discovery_timeout"`
}

// DefaultDiscoveryConfig returns a DiscoveryConfig with sensible defaults.
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		CoreAgentID:       "core",
		HeartbeatInterval: 30 * time.Second,
		DiscoveryTimeout:  5 * time.Second,
	}
}

// Observer receives discovery measurements.
type Observer interface {
	ObserveDiscovery(path string, found int, elapsed time.Duration)
	ObserveHeartbeat(agentID string, err error)
}

// DiscoveryService answers "who is available". With a registry attached it reads
// the registry directly; without one it runs a bounded broadcast-and-collect round.
type DiscoveryService struct {
	config   DiscoveryConfig
	channel  BroadcastChannel
	registry *AgentRegistry
	liveness *LivenessTracker
	observer Observer
	logger   *zap.Logger

	mu         sync.Mutex
	heartbeats map[string]chan struct{}
	responders map[string]string
	wg         sync.WaitGroup
}

// ServiceOption configures a DiscoveryService.
type ServiceOption func(*DiscoveryService)

// WithLivenessTracker lets Shutdown evict the agent from the tracker.
func WithLivenessTracker(tracker *LivenessTracker) ServiceOption {
	return func(s *DiscoveryService) { s.liveness = tracker }
}

// WithObserver attaches a measurement observer.
func WithObserver(observer Observer) ServiceOption {
	return func(s *DiscoveryService) { s.observer = observer }
}

// NewDiscoveryService creates a discovery service. registry may be nil.
func NewDiscoveryService(config DiscoveryConfig, channel BroadcastChannel, registry *AgentRegistry, logger *zap.Logger, opts ...ServiceOption) *DiscoveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultDiscoveryConfig()
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if config.DiscoveryTimeout <= 0 {
		config.DiscoveryTimeout = defaults.DiscoveryTimeout
	}

	s := &DiscoveryService{
		config:     config,
		channel:    channel,
		registry:   registry,
		logger:     logger.With(zap.String("component", "discovery_service")),
		heartbeats: make(map[string]chan struct{}),
		responders: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the service configuration.
func (s *DiscoveryService) Config() DiscoveryConfig {
	return s.config
}

// DiscoverAgents lists every known agent except the core agent. It never fails:
// zero responders yield an empty slice. Cancelling ctx ends a broadcast round
// early with whatever was collected.
func (s *DiscoveryService) DiscoverAgents(ctx context.Context) []AgentSummary {
	start := time.Now()

	if s.registry != nil {
		agents := s.registry.Filter(func(r AgentRegistration) bool {
			return r.AgentID != s.config.CoreAgentID
		})
		out := make([]AgentSummary, 0, len(agents))
		for i := range agents {
			out = append(out, agents[i].Summary())
		}
		s.observe(PathRegistry, len(out), time.Since(start))
		return out
	}

	out := s.collect(ctx)
	s.observe(PathBroadcast, len(out), time.Since(start))
	return out
}

// collect publishes a discover_request and gathers agent_available answers
// until DiscoveryTimeout elapses.
func (s *DiscoveryService) collect(ctx context.Context) []AgentSummary {
	request := NewDiscoverRequest(s.config.CoreAgentID)

	var (
		mu     sync.Mutex
		closed bool
		found  = make(map[string]AgentSummary)
	)
	subID := s.channel.Subscribe(
		func(msg *Message) bool {
			return msg.Type == MessageTypeAgentAvailable && msg.CorrelationID == request.ID
		},
		func(msg *Message) {
			if msg.Payload == nil {
				return
			}
			summary := msg.Payload.Summary()
			if summary.AgentID == "" {
				summary.AgentID = msg.SourceAgent
			}
			if summary.AgentID == s.config.CoreAgentID {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if !closed {
				found[summary.AgentID] = summary
			}
		},
	)

	if err := s.channel.Broadcast(ctx, request); err != nil {
		s.channel.Unsubscribe(subID)
		s.logger.Warn("discover request not sent", zap.Error(err))
		return []AgentSummary{}
	}

	timer := time.NewTimer(s.config.DiscoveryTimeout)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	}
	s.channel.Unsubscribe(subID)

	mu.Lock()
	closed = true
	out := make([]AgentSummary, 0, len(found))
	for _, summary := range found {
		out = append(out, summary)
	}
	mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	if len(out) == 0 {
		s.logger.Debug("discovery round closed without responses",
			zap.String("code", string(types.ErrDiscoveryTimeout)),
			zap.Duration("timeout", s.config.DiscoveryTimeout),
		)
	}
	return out
}

// RespondToDiscovery answers discover_request messages on behalf of self and
// starts its heartbeat. Calling it again for the same agent replaces the answer.
func (s *DiscoveryService) RespondToDiscovery(ctx context.Context, self AgentRegistration) error {
	if self.AgentID == "" {
		return types.NewInvalidRegistrationError("agent id is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if self.Status == "" {
		self.Status = AgentStatusOnline
	}
	announced := self.Clone()

	subID := s.channel.Subscribe(ByType(MessageTypeDiscoverRequest), func(msg *Message) {
		if msg.SourceAgent == announced.AgentID {
			return
		}
		reply := NewAgentAvailable(announced.Clone(), msg)
		reply.Payload.LastSeen = reply.Timestamp
		if err := s.channel.Broadcast(context.Background(), reply); err != nil {
			s.logger.Warn("discovery reply not sent",
				zap.String("agent_id", announced.AgentID),
				zap.Error(err),
			)
		}
	})

	s.mu.Lock()
	previous, replaced := s.responders[announced.AgentID]
	s.responders[announced.AgentID] = subID
	s.mu.Unlock()
	if replaced {
		s.channel.Unsubscribe(previous)
	}

	s.logger.Info("responding to discovery",
		zap.String("agent_id", announced.AgentID),
		zap.Strings("capabilities", announced.CapabilityNames()),
	)

	s.StartHeartbeat(announced.AgentID)
	return nil
}

// Announce publishes a single agent_available for self. Unlike
// RespondToDiscovery it starts no heartbeat: the agent keeps itself alive
// through its own heartbeats.
func (s *DiscoveryService) Announce(ctx context.Context, self AgentRegistration) error {
	if self.AgentID == "" {
		return types.NewInvalidRegistrationError("agent id is empty")
	}
	if self.Status == "" {
		self.Status = AgentStatusOnline
	}
	msg := NewAgentAvailable(self.Clone(), nil)
	msg.Payload.LastSeen = msg.Timestamp
	if err := s.channel.Broadcast(ctx, msg); err != nil {
		return err
	}
	s.logger.Info("agent announced",
		zap.String("agent_id", self.AgentID),
		zap.Strings("capabilities", self.CapabilityNames()),
	)
	return nil
}

// StopResponding cancels agentID's heartbeat and discovery answers without
// publishing a shutdown notice.
func (s *DiscoveryService) StopResponding(agentID string) {
	s.mu.Lock()
	if done, ok := s.heartbeats[agentID]; ok {
		close(done)
		delete(s.heartbeats, agentID)
	}
	subID, responding := s.responders[agentID]
	delete(s.responders, agentID)
	s.mu.Unlock()

	if responding {
		s.channel.Unsubscribe(subID)
	}
}

// StartHeartbeat publishes a heartbeat for agentID every HeartbeatInterval
// until Shutdown. Starting an already running heartbeat is a no-op.
func (s *DiscoveryService) StartHeartbeat(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.heartbeats[agentID]; running {
		return
	}
	done := make(chan struct{})
	s.heartbeats[agentID] = done

	s.wg.Add(1)
	go s.heartbeatLoop(agentID, done)
}

func (s *DiscoveryService) heartbeatLoop(agentID string, done chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := s.channel.Broadcast(context.Background(), NewHeartbeat(agentID))
			if err != nil {
				s.logger.Warn("heartbeat not sent", zap.String("agent_id", agentID), zap.Error(err))
			}
			if s.observer != nil {
				s.observer.ObserveHeartbeat(agentID, err)
			}
		case <-done:
			return
		}
	}
}

// HeartbeatRunning reports whether a heartbeat is active for agentID.
func (s *DiscoveryService) HeartbeatRunning(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.heartbeats[agentID]
	return ok
}

// Shutdown cancels agentID's heartbeat and discovery answers, publishes a
// shutdown notice and evicts the agent from the liveness tracker.
func (s *DiscoveryService) Shutdown(ctx context.Context, agentID string) error {
	s.StopResponding(agentID)

	err := s.channel.Broadcast(ctx, NewShutdown(agentID))
	if s.liveness != nil {
		s.liveness.Evict(agentID, EvictionReasonShutdown)
	}

	s.logger.Info("agent shut down", zap.String("agent_id", agentID))
	return err
}

// Close stops every heartbeat and discovery answer without publishing shutdowns.
func (s *DiscoveryService) Close() {
	s.mu.Lock()
	for id, done := range s.heartbeats {
		close(done)
		delete(s.heartbeats, id)
	}
	subs := make([]string, 0, len(s.responders))
	for id, subID := range s.responders {
		subs = append(subs, subID)
		delete(s.responders, id)
	}
	s.mu.Unlock()

	for _, subID := range subs {
		s.channel.Unsubscribe(subID)
	}
	s.wg.Wait()
}

func (s *DiscoveryService) observe(path string, found int, elapsed time.Duration) {
	s.logger.Debug("agents discovered",
		zap.String("path", path),
		zap.Int("found", found),
		zap.Duration("elapsed", elapsed),
	)
	if s.observer != nil {
		s.observer.ObserveDiscovery(path, found, elapsed)
	}
}
