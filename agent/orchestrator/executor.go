package orchestrator

import (
	"context"
	"time"

	"github.com/BaSui01/agentmesh/agent/coordination"
	"github.com/BaSui01/agentmesh/agent/protocol/a2a"
)

// StepRequest is one plan step handed to a StepExecutor.
type StepRequest struct {
	SessionID string
	Task      string
	Step      coordination.PlanStep
	Context   map[string]any
}

// StepResult is the outcome of one executed plan step.
type StepResult struct {
	Step       int           `json:"step"`
	AgentID    string        `json:"agent_id"`
	Capability string        `json:"capability"`
	Response   string        `json:"response"`
	Quality    float64       `json:"quality"`
	Confidence float64       `json:"confidence"`
	Duration   time.Duration `json:"duration"`

	// Messages is the exchange to record in the session activity log.
	Messages []*a2a.Message `json:"-"`
}

// StepExecutor runs a single plan step against its assigned agent.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, req StepRequest) (*StepResult, error)
}

// StepExecutorFunc adapts a function to StepExecutor.
type StepExecutorFunc func(ctx context.Context, req StepRequest) (*StepResult, error)

// ExecuteStep implements StepExecutor.
func (f StepExecutorFunc) ExecuteStep(ctx context.Context, req StepRequest) (*StepResult, error) {
	return f(ctx, req)
}

// channelExecutor delegates each step as a task_delegation message over the
// broadcast channel and waits for the agent's reply.
type channelExecutor struct {
	messenger *messenger
	source    string
	timeout   time.Duration
}

var _ StepExecutor = (*channelExecutor)(nil)

func (e *channelExecutor) ExecuteStep(ctx context.Context, req StepRequest) (*StepResult, error) {
	msg := a2a.NewTaskDelegation(e.source, req.Step.AgentID, req.Step.Description, req.SessionID)
	msg.Context = req.Context

	reply, rtt, err := e.messenger.request(ctx, msg, e.timeout)
	result := &StepResult{
		Step:       req.Step.Step,
		AgentID:    req.Step.AgentID,
		Capability: req.Step.Capability,
		Duration:   rtt,
		Messages:   []*a2a.Message{msg},
	}
	if reply != nil {
		result.Messages = append(result.Messages, reply)
	}
	if err != nil {
		return result, err
	}

	result.Response = reply.Content
	result.Quality = reply.Metadata.QualityScore
	if result.Quality <= 0 {
		result.Quality = req.Step.Quality
	}
	result.Confidence = reply.Metadata.ConfidenceLevel
	if result.Confidence <= 0 {
		result.Confidence = result.Quality / 100
	}
	return result, nil
}
