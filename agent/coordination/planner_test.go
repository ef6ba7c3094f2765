package coordination

import (
	"context"
	"fmt"
	"testing"

	"github.com/BaSui01/agentmesh/agent/discovery"
	"github.com/BaSui01/agentmesh/testutil/fixtures"
	"github.com/BaSui01/agentmesh/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newPlanner(t *testing.T, threshold float64, agents ...discovery.AgentRegistration) (*discovery.AgentRegistry, *CoordinationPlanner) {
	t.Helper()
	r := discovery.NewAgentRegistry(nil)
	for _, a := range agents {
		require.NoError(t, r.Register(a))
	}
	return r, NewCoordinationPlanner(r, nil, PlannerConfig{QualityThreshold: threshold}, nil)
}

func TestCoordinateAgents_FollowsExtractionOrder(t *testing.T) {
	_, p := newPlanner(t, 80, fixtures.DocumentAgent(), fixtures.CodeAgent())

	plan, err := p.CoordinateAgents(context.Background(), "Analyze this code and produce a document", nil, map[string]any{"repo": "x"})
	require.NoError(t, err)

	require.Len(t, plan.ExecutionOrder, 2)
	assert.Equal(t, []string{"code_analysis", "document_processing"}, plan.RequiredCapabilities)
	assert.Equal(t, PlanStep{
		Step: 1, AgentID: "agent-a", AgentType: "dev", Capability: "code_analysis",
		Description: "code_analysis (code_analysis capability): Analyze this code and produce a document",
		Quality:     90,
	}, plan.ExecutionOrder[0])
	assert.Equal(t, "agent-b", plan.ExecutionOrder[1].AgentID)
	assert.Equal(t, 2, plan.ExecutionOrder[1].Step)
	assert.InDelta(t, 92.5, plan.EstimatedQuality, 1e-9)
	assert.Equal(t, []string{"agent-a", "agent-b"}, plan.AgentIDs())
	assert.NotEmpty(t, plan.PlanID)
	assert.Equal(t, "x", plan.Context["repo"])
}

func TestCoordinateAgents_ExplicitCapabilities(t *testing.T) {
	_, p := newPlanner(t, 80, fixtures.Roster()...)

	plan, err := p.CoordinateAgents(context.Background(), "anything", []string{"data_analysis", " ", "code_analysis", "data_analysis"}, nil)
	require.NoError(t, err)

	require.Len(t, plan.ExecutionOrder, 2)
	assert.Equal(t, "agent-c", plan.ExecutionOrder[0].AgentID)
	assert.Equal(t, "agent-a", plan.ExecutionOrder[1].AgentID)
}

func TestCoordinateAgents_TieBreak(t *testing.T) {
	_, p := newPlanner(t, 80,
		fixtures.WithLoad(fixtures.Agent("busy", "dev", 95, "code_analysis"), 0.9),
		fixtures.WithLoad(fixtures.Agent("idle", "dev", 95, "code_analysis"), 0.1),
		fixtures.WithLoad(fixtures.Agent("weaker", "dev", 85, "code_analysis"), 0.0),
	)

	plan, err := p.CoordinateAgents(context.Background(), "", []string{"code_analysis"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "idle", plan.ExecutionOrder[0].AgentID)
}

func TestCoordinateAgents_QualityGating(t *testing.T) {
	strict := fixtures.Agent("strict", "dev", 90, "code_analysis")
	strict.Capabilities[0].QualityThreshold = 95

	_, p := newPlanner(t, 80,
		fixtures.Agent("low", "dev", 79, "code_analysis"),
		fixtures.Offline(fixtures.Agent("offline", "dev", 99, "code_analysis")),
		strict,
	)

	plan, err := p.CoordinateAgents(context.Background(), "debug the code", nil, nil)
	assert.Nil(t, plan)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrNoEligibleAgents))
	assert.Contains(t, err.Error(), "code_analysis")
}

func TestCoordinateAgents_FailureListsEveryMissingCapability(t *testing.T) {
	_, p := newPlanner(t, 80, fixtures.CodeAgent())

	_, err := p.CoordinateAgents(context.Background(), "", []string{"translation", "code_analysis", "data_analysis"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "translation, data_analysis")
}

func TestCoordinateAgents_FailureIsTotalProperty(t *testing.T) {
	capabilities := []string{"code_analysis", "document_processing", "data_analysis", "translation"}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a plan covers every capability or does not exist", prop.ForAll(
		func(qualities []int, requested []int) bool {
			r := discovery.NewAgentRegistry(nil)
			for i, q := range qualities {
				capability := capabilities[i%len(capabilities)]
				if err := r.Register(fixtures.Agent(fmt.Sprintf("agent-%d", i), "t", float64(q), capability)); err != nil {
					return false
				}
			}
			p := NewCoordinationPlanner(r, nil, PlannerConfig{QualityThreshold: 80}, nil)

			required := make([]string, 0, len(requested))
			for _, idx := range requested {
				required = append(required, capabilities[idx])
			}
			want := normalizeCapabilities(required)

			coverable := true
			for _, c := range want {
				if len(p.Eligible(c)) == 0 {
					coverable = false
				}
			}

			plan, err := p.CoordinateAgents(context.Background(), "task", required, nil)
			if !coverable {
				return plan == nil && types.IsErrorCode(err, types.ErrNoEligibleAgents)
			}
			if err != nil || len(plan.ExecutionOrder) != len(want) {
				return false
			}
			for i, step := range plan.ExecutionOrder {
				if step.Capability != want[i] || step.Quality < 80 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(8, gen.IntRange(50, 100)),
		gen.SliceOfN(3, gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}

func TestQueryCapabilities_FiltersAndStats(t *testing.T) {
	_, p := newPlanner(t, 80,
		fixtures.Agent("a", "dev", 90, "code_analysis"),
		fixtures.Agent("b", "dev", 70, "code_analysis"),
		fixtures.Offline(fixtures.Agent("c", "dev", 85, "code_analysis")),
		fixtures.Agent("d", "office", 95, "document_processing"),
	)
	ctx := context.Background()

	all := p.QueryCapabilities(ctx, "code_analysis", QueryFilters{})
	assert.Equal(t, 3, all.TotalFound)
	assert.Equal(t, 2, all.QualityStats.AboveThreshold)
	assert.InDelta(t, 81.666, all.QualityStats.AverageQuality, 0.01)
	assert.Equal(t, "a", all.Agents[0].AgentID)

	gated := p.QueryCapabilities(ctx, "code analysis", QueryFilters{QualityFilter: true, StatusFilter: discovery.AgentStatusOnline})
	require.Equal(t, 1, gated.TotalFound)
	assert.Equal(t, "a", gated.Agents[0].AgentID)

	limited := p.QueryCapabilities(ctx, "", QueryFilters{MaxResults: 2})
	assert.Equal(t, 4, limited.TotalFound)
	require.Len(t, limited.Agents, 2)
	assert.Equal(t, "d", limited.Agents[0].AgentID)

	none := p.QueryCapabilities(ctx, "translation", QueryFilters{})
	assert.Zero(t, none.TotalFound)
	assert.NotNil(t, none.Agents)
	assert.Zero(t, none.QualityStats.AverageQuality)
}

func TestQueryCapabilities_IdempotentProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := discovery.NewAgentRegistry(nil)
		n := rapid.IntRange(0, 12).Draw(rt, "agents")
		for i := 0; i < n; i++ {
			reg := fixtures.Agent(
				fmt.Sprintf("agent-%02d", i),
				rapid.SampledFrom([]string{"dev", "office", "analyst"}).Draw(rt, "type"),
				float64(rapid.IntRange(0, 100).Draw(rt, "quality")),
				rapid.SampledFrom([]string{"code_analysis", "document_processing", "data_analysis"}).Draw(rt, "capability"),
			)
			reg.LoadLevel = rapid.Float64Range(0, 1).Draw(rt, "load")
			if err := r.Register(reg); err != nil {
				rt.Fatalf("register: %v", err)
			}
		}
		p := NewCoordinationPlanner(r, nil, PlannerConfig{QualityThreshold: 80}, nil)

		query := rapid.SampledFrom([]string{"", "code", "document_processing", "analyst"}).Draw(rt, "query")
		filters := QueryFilters{QualityFilter: true, MaxResults: rapid.IntRange(0, 5).Draw(rt, "max")}

		first := p.QueryCapabilities(context.Background(), query, filters)
		second := p.QueryCapabilities(context.Background(), query, filters)
		assert.Equal(rt, first, second)
		for _, a := range first.Agents {
			assert.GreaterOrEqual(rt, a.QualityScore, 80.0)
		}
	})
}
