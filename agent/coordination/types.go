package coordination

import (
	"time"

	"github.com/BaSui01/agentmesh/agent/discovery"
)

// PlanStep assigns one required capability to one agent.
type PlanStep struct {
	Step        int     `json:"step"`
	AgentID     string  `json:"agent_id"`
	AgentType   string  `json:"agent_type"`
	Capability  string  `json:"capability"`
	Description string  `json:"description"`
	Quality     float64 `json:"quality"`
}

// CoordinationPlan is an ordered list of (agent, capability) assignments.
// Step order follows the order capabilities were requested.
type CoordinationPlan struct {
	PlanID               string         `json:"plan_id"`
	Task                 string         `json:"task"`
	RequiredCapabilities []string       `json:"required_capabilities"`
	ExecutionOrder       []PlanStep     `json:"execution_order"`
	EstimatedQuality     float64        `json:"estimated_quality"`
	Context              map[string]any `json:"context,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}

// AgentIDs returns the distinct agents of the plan in step order.
func (p *CoordinationPlan) AgentIDs() []string {
	seen := make(map[string]bool, len(p.ExecutionOrder))
	ids := make([]string, 0, len(p.ExecutionOrder))
	for _, step := range p.ExecutionOrder {
		if !seen[step.AgentID] {
			seen[step.AgentID] = true
			ids = append(ids, step.AgentID)
		}
	}
	return ids
}

// QueryFilters narrows a capability query.
type QueryFilters struct {
	// QualityFilter keeps only agents at or above the planner's quality threshold.
	QualityFilter bool `json:"quality_filter"`
	// StatusFilter keeps only agents with this status when set.
	StatusFilter discovery.AgentStatus `json:"status_filter,omitempty"`
	// MaxResults truncates the agent list when positive.
	MaxResults int `json:"max_results,omitempty"`
}

// QualityStats aggregates the quality of a query's matches.
type QualityStats struct {
	AverageQuality float64 `json:"average_quality"`
	AboveThreshold int     `json:"above_threshold"`
}

// CapabilityQueryResult is the answer to a capability query.
// TotalFound and QualityStats cover every match, before MaxResults truncation.
type CapabilityQueryResult struct {
	Agents       []discovery.AgentSummary `json:"agents"`
	TotalFound   int                      `json:"total_found"`
	QualityStats QualityStats             `json:"quality_stats"`
}
