package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/BaSui01/agentmesh/agent/discovery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AgentHealth is the health report of an agent execution layer.
type AgentHealth struct {
	// Status is "healthy", "degraded" or "unhealthy".
	Status string `json:"status"`
	// ErrorRate is the recent failure share, 0.0-1.0.
	ErrorRate float64       `json:"error_rate"`
	Uptime    time.Duration `json:"uptime"`
}

// Agent health states reported by executors.
const (
	AgentHealthHealthy   = "healthy"
	AgentHealthDegraded  = "degraded"
	AgentHealthUnhealthy = "unhealthy"
)

// AgentAction is one action an execution layer can perform. Each action
// becomes a capability of the agent.
type AgentAction struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// AgentExecutor is the execution layer behind an agent.
type AgentExecutor interface {
	GetHealthStatus(ctx context.Context) (AgentHealth, error)
	GetAvailableActions(ctx context.Context) ([]AgentAction, error)
}

// ScoringWeights tunes how a registration's quality and load are synthesized
// from executor health. Quality falls with the error rate and rises with
// uptime and action count; load rises with the error rate and degradation.
type ScoringWeights struct {
	BaseQuality      float64       `json:"base_quality" yaml:"base_quality"`
	ErrorRatePenalty float64       `json:"error_rate_penalty" yaml:"error_rate_penalty"`
	UptimeBonus      float64       `json:"uptime_bonus" yaml:"uptime_bonus"`
	UptimeSaturation time.Duration `json:"uptime_saturation" yaml:"uptime_saturation"`
	ActionBonus      float64       `json:"action_bonus" yaml:"action_bonus"`
	MaxActionBonus   float64       `json:"max_action_bonus" yaml:"max_action_bonus"`

	BaseLoad      float64 `json:"base_load" yaml:"base_load"`
	ErrorRateLoad float64 `json:"error_rate_load" yaml:"error_rate_load"`
	DegradedLoad  float64 `json:"degraded_load" yaml:"degraded_load"`
	UnhealthyLoad float64 `json:"unhealthy_load" yaml:"unhealthy_load"`
}

// DefaultScoringWeights returns placeholder weights; tune them per deployment.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		BaseQuality:      70,
		ErrorRatePenalty: 40,
		UptimeBonus:      15,
		UptimeSaturation: 24 * time.Hour,
		ActionBonus:      2,
		MaxActionBonus:   15,
		BaseLoad:         0.1,
		ErrorRateLoad:    0.5,
		DegradedLoad:     0.2,
		UnhealthyLoad:    0.4,
	}
}

// Quality returns a 0-100 score.
func (w ScoringWeights) Quality(health AgentHealth, actions int) float64 {
	score := w.BaseQuality - clamp(health.ErrorRate, 0, 1)*w.ErrorRatePenalty
	if w.UptimeSaturation > 0 {
		score += math.Min(float64(health.Uptime)/float64(w.UptimeSaturation), 1) * w.UptimeBonus
	}
	score += math.Min(float64(actions)*w.ActionBonus, w.MaxActionBonus)
	return clamp(score, 0, 100)
}

// Load returns a 0-1 load level.
func (w ScoringWeights) Load(health AgentHealth) float64 {
	load := w.BaseLoad + clamp(health.ErrorRate, 0, 1)*w.ErrorRateLoad
	switch health.Status {
	case AgentHealthDegraded:
		load += w.DegradedLoad
	case AgentHealthUnhealthy:
		load += w.UnhealthyLoad
	}
	return clamp(load, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// BootstrapSpec names an agent to register from its execution layer.
type BootstrapSpec struct {
	AgentID   string
	AgentType string
	Endpoint  string
	Executor  AgentExecutor
	// Handler, when set, answers agent messages addressed to the agent.
	Handler AgentHandler
}

// Bootstrap queries every executor concurrently, synthesizes registrations
// with Config.Scoring, registers them, answers discovery on their behalf and
// starts their heartbeats. Nothing is registered if any executor fails; a
// failure while registering rolls back the agents registered so far.
func (o *Orchestrator) Bootstrap(ctx context.Context, specs []BootstrapSpec) ([]discovery.AgentRegistration, error) {
	ctx, span := tracer().Start(ctx, "orchestrator.bootstrap")
	defer span.End()
	span.SetAttributes(attribute.Int("agents", len(specs)))

	fail := func(err error) ([]discovery.AgentRegistration, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bootstrap failed")
		return nil, err
	}

	weights := o.config.Scoring
	regs := make([]discovery.AgentRegistration, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, spec := range specs {
		g.Go(func() error {
			reg, err := o.synthesize(gctx, weights, spec)
			if err != nil {
				return fmt.Errorf("bootstrap %s: %w", spec.AgentID, err)
			}
			regs[i] = reg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	var (
		registered []string
		served     []string
	)
	rollback := func() {
		for _, id := range served {
			o.StopServing(id)
		}
		for _, agentID := range registered {
			o.discovery.StopResponding(agentID)
			o.registry.Unregister(agentID)
		}
	}

	for i, reg := range regs {
		if err := o.registry.Register(reg); err != nil {
			rollback()
			return fail(fmt.Errorf("register %s: %w", reg.AgentID, err))
		}
		registered = append(registered, reg.AgentID)
		if err := o.discovery.RespondToDiscovery(ctx, reg); err != nil {
			rollback()
			return fail(fmt.Errorf("respond to discovery for %s: %w", reg.AgentID, err))
		}
		if specs[i].Handler != nil {
			served = append(served, o.ServeAgent(reg.AgentID, specs[i].Handler))
		}
	}

	for _, reg := range regs {
		o.logger.Info("agent bootstrapped",
			zap.String("agent_id", reg.AgentID),
			zap.String("agent_type", reg.AgentType),
			zap.Float64("quality_score", reg.QualityScore),
			zap.Float64("load_level", reg.LoadLevel),
			zap.Strings("capabilities", reg.CapabilityNames()),
		)
	}
	return regs, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, weights ScoringWeights, spec BootstrapSpec) (discovery.AgentRegistration, error) {
	if spec.Executor == nil {
		return discovery.AgentRegistration{}, errors.New("no executor")
	}
	health, err := spec.Executor.GetHealthStatus(ctx)
	if err != nil {
		return discovery.AgentRegistration{}, fmt.Errorf("health status: %w", err)
	}
	actions, err := spec.Executor.GetAvailableActions(ctx)
	if err != nil {
		return discovery.AgentRegistration{}, fmt.Errorf("available actions: %w", err)
	}

	caps := make([]discovery.CapabilityDescriptor, 0, len(actions))
	for _, action := range actions {
		caps = append(caps, discovery.CapabilityDescriptor{
			Name:                    action.Type,
			Description:             action.Description,
			Version:                 "1.0.0",
			QualityThreshold:        o.config.QualityThreshold,
			ConstitutionalCompliant: true,
			Parameters:              action.Parameters,
		})
	}

	status := discovery.AgentStatusOnline
	if health.Status == AgentHealthUnhealthy {
		status = discovery.AgentStatusOffline
	}
	return discovery.AgentRegistration{
		AgentID:      spec.AgentID,
		AgentType:    spec.AgentType,
		Capabilities: caps,
		Endpoint:     spec.Endpoint,
		Status:       status,
		LoadLevel:    weights.Load(health),
		QualityScore: weights.Quality(health, len(actions)),
	}, nil
}
