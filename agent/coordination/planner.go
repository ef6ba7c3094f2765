package coordination

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/agentmesh/agent/discovery"
	"github.com/BaSui01/agentmesh/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/BaSui01/agentmesh/agent/coordination"

// tracer reads the current global provider on each call.
func tracer() trace.Tracer { return otel.Tracer(tracerName) }

// PlannerConfig holds configuration for the coordination planner.
type PlannerConfig struct {
	// QualityThreshold is the minimum agent quality score (0-100) for planning.
	QualityThreshold float64 `json:"quality_threshold"`
}

// DefaultPlannerConfig returns a PlannerConfig with sensible defaults.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{QualityThreshold: 80}
}

// CoordinationPlanner turns a task description into an execution plan over
// registered agents.
type CoordinationPlanner struct {
	registry   *discovery.AgentRegistry
	classifier TaskClassifier
	config     PlannerConfig
	now        func() time.Time
	logger     *zap.Logger
}

// NewCoordinationPlanner creates a planner. A nil classifier uses the keyword classifier.
func NewCoordinationPlanner(registry *discovery.AgentRegistry, classifier TaskClassifier, config PlannerConfig, logger *zap.Logger) *CoordinationPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if classifier == nil {
		classifier = NewKeywordClassifier(DefaultKeywordGroups()...)
	}
	return &CoordinationPlanner{
		registry:   registry,
		classifier: classifier,
		config:     config,
		now:        time.Now,
		logger:     logger.With(zap.String("component", "coordination_planner")),
	}
}

// Config returns the planner configuration.
func (p *CoordinationPlanner) Config() PlannerConfig {
	return p.config
}

// ExtractCapabilities classifies a task description into capability tags.
func (p *CoordinationPlanner) ExtractCapabilities(task string) []string {
	return p.classifier.Classify(task)
}

// CoordinateAgents selects one agent per required capability. An empty
// required list is derived from the task. If any capability has no eligible
// agent the whole call fails with NO_ELIGIBLE_AGENTS; no partial plan is returned.
func (p *CoordinationPlanner) CoordinateAgents(ctx context.Context, task string, required []string, taskContext map[string]any) (*CoordinationPlan, error) {
	_, span := tracer().Start(ctx, "coordination.plan")
	defer span.End()

	capabilities := normalizeCapabilities(required)
	if len(capabilities) == 0 {
		capabilities = p.ExtractCapabilities(task)
	}
	span.SetAttributes(attribute.StringSlice("capabilities", capabilities))

	plan := &CoordinationPlan{
		PlanID:               uuid.New().String(),
		Task:                 task,
		RequiredCapabilities: capabilities,
		ExecutionOrder:       make([]PlanStep, 0, len(capabilities)),
		Context:              copyContext(taskContext),
		CreatedAt:            p.now(),
	}

	var missing []string
	var qualitySum float64
	for i, capability := range capabilities {
		agent, ok := p.selectAgent(capability)
		if !ok {
			missing = append(missing, capability)
			continue
		}
		plan.ExecutionOrder = append(plan.ExecutionOrder, PlanStep{
			Step:        i + 1,
			AgentID:     agent.AgentID,
			AgentType:   agent.AgentType,
			Capability:  capability,
			Description: stepDescription(agent, capability, task),
			Quality:     agent.QualityScore,
		})
		qualitySum += agent.QualityScore
	}

	if len(missing) > 0 {
		err := types.NewNoEligibleAgentsError(fmt.Sprintf(
			"no agent at quality >= %.0f for: %s", p.config.QualityThreshold, strings.Join(missing, ", ")))
		span.RecordError(err)
		span.SetStatus(codes.Error, "no eligible agents")
		p.logger.Warn("planning failed",
			zap.Strings("missing", missing),
			zap.Float64("quality_threshold", p.config.QualityThreshold),
		)
		return nil, err
	}

	plan.EstimatedQuality = qualitySum / float64(len(plan.ExecutionOrder))
	p.logger.Info("plan created",
		zap.String("plan_id", plan.PlanID),
		zap.Strings("capabilities", capabilities),
		zap.Strings("agents", plan.AgentIDs()),
	)
	return plan, nil
}

// Eligible returns the agents able to serve capability, best first.
func (p *CoordinationPlanner) Eligible(capability string) []discovery.AgentRegistration {
	candidates := p.registry.Filter(func(r discovery.AgentRegistration) bool {
		if r.Status != discovery.AgentStatusOnline {
			return false
		}
		descriptor, ok := r.Capability(capability)
		if !ok {
			return false
		}
		return r.QualityScore >= p.config.QualityThreshold && r.QualityScore >= descriptor.QualityThreshold
	})
	sortByPreference(candidates)
	return candidates
}

func (p *CoordinationPlanner) selectAgent(capability string) (discovery.AgentRegistration, bool) {
	candidates := p.Eligible(capability)
	if len(candidates) == 0 {
		return discovery.AgentRegistration{}, false
	}
	return candidates[0], true
}

// QueryCapabilities searches agents by capability, independent of a task.
// The query matches capability names and descriptions and the agent type,
// case-insensitively; an empty query matches every agent.
func (p *CoordinationPlanner) QueryCapabilities(ctx context.Context, query string, filters QueryFilters) *CapabilityQueryResult {
	_, span := tracer().Start(ctx, "coordination.query")
	defer span.End()

	q := strings.ToLower(strings.TrimSpace(query))
	matches := p.registry.Filter(func(r discovery.AgentRegistration) bool {
		if filters.StatusFilter != "" && r.Status != filters.StatusFilter {
			return false
		}
		if filters.QualityFilter && r.QualityScore < p.config.QualityThreshold {
			return false
		}
		return matchesQuery(r, q)
	})
	sortByPreference(matches)

	result := &CapabilityQueryResult{
		Agents:     make([]discovery.AgentSummary, 0, len(matches)),
		TotalFound: len(matches),
	}

	var sum float64
	for i := range matches {
		sum += matches[i].QualityScore
		if matches[i].QualityScore >= p.config.QualityThreshold {
			result.QualityStats.AboveThreshold++
		}
	}
	if len(matches) > 0 {
		result.QualityStats.AverageQuality = sum / float64(len(matches))
	}

	if filters.MaxResults > 0 && len(matches) > filters.MaxResults {
		matches = matches[:filters.MaxResults]
	}
	for i := range matches {
		result.Agents = append(result.Agents, matches[i].Summary())
	}

	span.SetAttributes(attribute.Int("total_found", result.TotalFound))
	return result
}

func matchesQuery(r discovery.AgentRegistration, q string) bool {
	if q == "" || strings.Contains(strings.ToLower(r.AgentType), q) {
		return true
	}
	for _, c := range r.Capabilities {
		if c.Name == "" {
			continue
		}
		name := strings.ToLower(c.Name)
		spaced := strings.ReplaceAll(name, "_", " ")
		if strings.Contains(name, q) || strings.Contains(q, name) || strings.Contains(q, spaced) {
			return true
		}
		if c.Description != "" && strings.Contains(strings.ToLower(c.Description), q) {
			return true
		}
	}
	return false
}

// sortByPreference orders by quality descending, then load ascending, then id.
func sortByPreference(agents []discovery.AgentRegistration) {
	sort.SliceStable(agents, func(i, j int) bool {
		if agents[i].QualityScore != agents[j].QualityScore {
			return agents[i].QualityScore > agents[j].QualityScore
		}
		if agents[i].LoadLevel != agents[j].LoadLevel {
			return agents[i].LoadLevel < agents[j].LoadLevel
		}
		return agents[i].AgentID < agents[j].AgentID
	})
}

func normalizeCapabilities(required []string) []string {
	var tags tagSet
	tags.add(required...)
	return tags.order
}

func stepDescription(agent discovery.AgentRegistration, capability, task string) string {
	if descriptor, ok := agent.Capability(capability); ok && descriptor.Description != "" {
		return fmt.Sprintf("%s (%s): %s", capability, descriptor.Description, task)
	}
	return fmt.Sprintf("%s: %s", capability, task)
}

func copyContext(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
