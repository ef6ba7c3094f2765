package orchestrator

import (
	"fmt"

	"github.com/BaSui01/agentmesh/agent/discovery"
)

// HealthStatus summarizes the state of the agent network.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusCritical HealthStatus = "critical"
)

// minOnlineRatio is the share of registered agents that must be online for
// the network to count as healthy.
const minOnlineRatio = 0.8

// NetworkHealth is derived from the current registry and session state.
type NetworkHealth struct {
	Status          HealthStatus `json:"status"`
	TotalAgents     int          `json:"total_agents"`
	OnlineAgents    int          `json:"online_agents"`
	AverageQuality  float64      `json:"average_quality"`
	ActiveSessions  int          `json:"active_sessions"`
	Recommendations []string     `json:"recommendations"`
}

// GetNetworkHealth reports the network status. It performs no I/O.
func (o *Orchestrator) GetNetworkHealth() *NetworkHealth {
	agents := o.registry.All()
	health := &NetworkHealth{
		TotalAgents:     len(agents),
		ActiveSessions:  o.sessions.Active(),
		Recommendations: []string{},
	}

	var qualitySum float64
	for _, reg := range agents {
		if reg.Status == discovery.AgentStatusOnline {
			health.OnlineAgents++
		}
		qualitySum += reg.QualityScore
	}
	if len(agents) > 0 {
		health.AverageQuality = qualitySum / float64(len(agents))
	}

	if health.OnlineAgents == 0 {
		health.Status = HealthStatusCritical
		health.Recommendations = append(health.Recommendations,
			"No agents are online: register agents or check that heartbeats reach the mesh")
		return health
	}

	health.Status = HealthStatusHealthy
	if ratio := float64(health.OnlineAgents) / float64(health.TotalAgents); ratio < minOnlineRatio {
		health.Status = HealthStatusDegraded
		health.Recommendations = append(health.Recommendations, fmt.Sprintf(
			"Only %d of %d agents are online: investigate offline agents", health.OnlineAgents, health.TotalAgents))
	}
	if threshold := o.config.QualityThreshold; health.AverageQuality < threshold {
		health.Status = HealthStatusDegraded
		health.Recommendations = append(health.Recommendations, fmt.Sprintf(
			"Average agent quality %.1f is below the threshold of %.0f: add or retrain agents", health.AverageQuality, threshold))
	}
	return health
}
