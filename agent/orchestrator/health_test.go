package orchestrator

import (
	"testing"

	"github.com/BaSui01/agentmesh/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetNetworkHealth(t *testing.T) {
	t.Run("critical when empty", func(t *testing.T) {
		orch := newTestOrchestrator(t, testConfig())
		orch.Sessions().Create("pending")

		health := orch.GetNetworkHealth()
		assert.Equal(t, HealthStatusCritical, health.Status)
		assert.Zero(t, health.TotalAgents)
		assert.Equal(t, 1, health.ActiveSessions)
		assert.Len(t, health.Recommendations, 1)
	})

	t.Run("critical when all offline", func(t *testing.T) {
		orch := newTestOrchestrator(t, testConfig())
		require.NoError(t, orch.RegisterAgent(fixtures.Offline(fixtures.CodeAgent())))

		health := orch.GetNetworkHealth()
		assert.Equal(t, HealthStatusCritical, health.Status)
		assert.Equal(t, 1, health.TotalAgents)
		assert.Zero(t, health.OnlineAgents)
	})

	t.Run("healthy roster", func(t *testing.T) {
		orch := newTestOrchestrator(t, testConfig())
		for _, reg := range fixtures.Roster() {
			require.NoError(t, orch.RegisterAgent(reg))
		}

		health := orch.GetNetworkHealth()
		assert.Equal(t, HealthStatusHealthy, health.Status)
		assert.Equal(t, 4, health.OnlineAgents)
		assert.InDelta(t, 88.0, health.AverageQuality, 0.001)
		assert.NotNil(t, health.Recommendations)
		assert.Empty(t, health.Recommendations)
	})

	t.Run("degraded by offline share", func(t *testing.T) {
		orch := newTestOrchestrator(t, testConfig())
		roster := fixtures.Roster()
		roster[2] = fixtures.Offline(roster[2])
		roster[3] = fixtures.Offline(roster[3])
		for _, reg := range roster {
			require.NoError(t, orch.RegisterAgent(reg))
		}

		health := orch.GetNetworkHealth()
		assert.Equal(t, HealthStatusDegraded, health.Status)
		assert.Equal(t, 2, health.OnlineAgents)
		require.Len(t, health.Recommendations, 1)
		assert.Contains(t, health.Recommendations[0], "Only 2 of 4 agents are online")
	})

	t.Run("degraded by quality", func(t *testing.T) {
		orch := newTestOrchestrator(t, testConfig())
		require.NoError(t, orch.RegisterAgent(fixtures.Agent("weak", "general", 60, "general_assistance")))

		health := orch.GetNetworkHealth()
		assert.Equal(t, HealthStatusDegraded, health.Status)
		require.Len(t, health.Recommendations, 1)
		assert.Contains(t, health.Recommendations[0], "Average agent quality 60.0")
	})
}
