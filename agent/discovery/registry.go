package discovery

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/agentmesh/types"
	"go.uber.org/zap"
)

// AgentRegistry holds the authoritative map of agentId to registration.
// Readers always receive copies; LastSeen is only advanced by the LivenessTracker.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]*AgentRegistration

	handlerMu     sync.RWMutex
	eventHandlers map[string]RegistryEventHandler
	subCounter    atomic.Int64

	now    func() time.Time
	logger *zap.Logger
}

// RegistryOption configures an AgentRegistry.
type RegistryOption func(*AgentRegistry)

// WithRegistryClock overrides the clock used to stamp LastSeen.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *AgentRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewAgentRegistry creates an empty registry.
func NewAgentRegistry(logger *zap.Logger, opts ...RegistryOption) *AgentRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &AgentRegistry{
		agents:        make(map[string]*AgentRegistration),
		eventHandlers: make(map[string]RegistryEventHandler),
		now:           time.Now,
		logger:        logger.With(zap.String("component", "agent_registry")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts or replaces the record for reg.AgentID and resets its LastSeen.
func (r *AgentRegistry) Register(reg AgentRegistration) error {
	if reg.AgentID == "" {
		return types.NewInvalidRegistrationError("agent id is empty")
	}

	record := reg.Clone()
	if record.Status == "" {
		record.Status = AgentStatusOnline
	}
	now := r.now()
	record.LastSeen = now

	r.mu.Lock()
	_, replaced := r.agents[record.AgentID]
	r.agents[record.AgentID] = &record
	r.mu.Unlock()

	r.logger.Info("agent registered",
		zap.String("agent_id", record.AgentID),
		zap.String("agent_type", record.AgentType),
		zap.Int("capabilities", len(record.Capabilities)),
		zap.Bool("replaced", replaced),
	)

	r.emitEvent(&RegistryEvent{
		Type:      RegistryEventRegistered,
		AgentID:   record.AgentID,
		Timestamp: now,
	})
	return nil
}

// Unregister removes the record. It returns false if the agent was unknown.
func (r *AgentRegistry) Unregister(agentID string) bool {
	if !r.remove(agentID) {
		return false
	}
	r.logger.Info("agent unregistered", zap.String("agent_id", agentID))
	r.emitEvent(&RegistryEvent{
		Type:      RegistryEventUnregistered,
		AgentID:   agentID,
		Timestamp: r.now(),
	})
	return true
}

// Get returns a copy of the record for agentID.
func (r *AgentRegistry) Get(agentID string) (AgentRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.agents[agentID]
	if !ok {
		return AgentRegistration{}, false
	}
	return record.Clone(), true
}

// All returns a snapshot of every record, ordered by agent id.
func (r *AgentRegistry) All() []AgentRegistration {
	return r.Filter(nil)
}

// Filter returns a snapshot of the records accepted by pred, ordered by agent id.
// A nil pred accepts everything.
func (r *AgentRegistry) Filter(pred func(AgentRegistration) bool) []AgentRegistration {
	r.mu.RLock()
	out := make([]AgentRegistration, 0, len(r.agents))
	for _, record := range r.agents {
		c := record.Clone()
		if pred == nil || pred(c) {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Len returns the number of registered agents.
func (r *AgentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Reset drops every registration. Event subscriptions are kept.
func (r *AgentRegistry) Reset() {
	r.mu.Lock()
	n := len(r.agents)
	r.agents = make(map[string]*AgentRegistration)
	r.mu.Unlock()

	r.logger.Info("registry reset", zap.Int("dropped", n))
}

// Subscribe registers a handler for registry events.
func (r *AgentRegistry) Subscribe(handler RegistryEventHandler) string {
	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()

	id := fmt.Sprintf("registry-sub-%d", r.subCounter.Add(1))
	r.eventHandlers[id] = handler
	return id
}

// Unsubscribe removes a handler registered with Subscribe.
func (r *AgentRegistry) Unsubscribe(subscriptionID string) {
	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()
	delete(r.eventHandlers, subscriptionID)
}

// touch advances LastSeen. It returns false if the agent is unknown.
func (r *AgentRegistry) touch(agentID string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.agents[agentID]
	if !ok {
		return false
	}
	if at.After(record.LastSeen) {
		record.LastSeen = at
	}
	return true
}

// removeIfStale deletes the record when its LastSeen is before cutoff.
// The check and the delete happen under one lock so only one caller wins.
func (r *AgentRegistry) removeIfStale(agentID string, cutoff time.Time) (AgentRegistration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.agents[agentID]
	if !ok || !record.LastSeen.Before(cutoff) {
		return AgentRegistration{}, false
	}
	delete(r.agents, agentID)
	return record.Clone(), true
}

func (r *AgentRegistry) remove(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[agentID]; !ok {
		return false
	}
	delete(r.agents, agentID)
	return true
}

// emitEvent emits a registry event to all subscribers.
func (r *AgentRegistry) emitEvent(event *RegistryEvent) {
	r.handlerMu.RLock()
	handlers := make([]RegistryEventHandler, 0, len(r.eventHandlers))
	for _, h := range r.eventHandlers {
		handlers = append(handlers, h)
	}
	r.handlerMu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}
