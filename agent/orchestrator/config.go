package orchestrator

import (
	"time"

	"github.com/BaSui01/agentmesh/agent/coordination"
	"github.com/BaSui01/agentmesh/agent/discovery"
)

// Config holds the startup configuration of an Orchestrator. The values are
// read-only once the orchestrator is constructed.
type Config struct {
	// CoreAgentID identifies the orchestrating agent. It is the source of task
	// delegations and is excluded from discovery results.
	CoreAgentID string `json:"core_agent_id"`

	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	DiscoveryTimeout  time.Duration `json:"discovery_timeout"`

	// QualityThreshold gates agent eligibility during planning (0-100).
	QualityThreshold float64 `json:"quality_threshold"`

	// TargetQuality is the default result quality a coordination must reach
	// to be reported as successful (0-100).
	TargetQuality float64 `json:"target_quality"`

	// MessageTimeout bounds the wait for an agent reply.
	MessageTimeout time.Duration `json:"message_timeout"`

	// Scoring synthesizes registrations in Bootstrap.
	Scoring ScoringWeights `json:"scoring"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CoreAgentID:       "core",
		HeartbeatInterval: 30 * time.Second,
		DiscoveryTimeout:  5 * time.Second,
		QualityThreshold:  80,
		TargetQuality:     80,
		MessageTimeout:    10 * time.Second,
		Scoring:           DefaultScoringWeights(),
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CoreAgentID == "" {
		c.CoreAgentID = d.CoreAgentID
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = d.DiscoveryTimeout
	}
	if c.MessageTimeout <= 0 {
		c.MessageTimeout = d.MessageTimeout
	}
	if c.Scoring == (ScoringWeights{}) {
		c.Scoring = d.Scoring
	}
	return c
}

// DiscoveryConfig derives the discovery service configuration.
func (c Config) DiscoveryConfig() discovery.DiscoveryConfig {
	return discovery.DiscoveryConfig{
		CoreAgentID:       c.CoreAgentID,
		HeartbeatInterval: c.HeartbeatInterval,
		DiscoveryTimeout:  c.DiscoveryTimeout,
	}
}

// LivenessConfig derives the liveness tracker configuration.
func (c Config) LivenessConfig() discovery.LivenessConfig {
	return discovery.LivenessConfig{
		HeartbeatInterval: c.HeartbeatInterval,
		StaleMultiplier:   discovery.DefaultStaleMultiplier,
	}
}

// PlannerConfig derives the coordination planner configuration.
func (c Config) PlannerConfig() coordination.PlannerConfig {
	return coordination.PlannerConfig{QualityThreshold: c.QualityThreshold}
}
