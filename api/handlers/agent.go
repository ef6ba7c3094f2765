package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/agentmesh/agent/discovery"
	"github.com/BaSui01/agentmesh/agent/orchestrator"
	"github.com/BaSui01/agentmesh/types"
	"go.uber.org/zap"
)

// =============================================================================
// Agent Registry Handler
// =============================================================================

// AgentHandler exposes the agent registry over HTTP.
type AgentHandler struct {
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger
}

// RegisterAgentRequest is the body of POST /api/v1/agents.
type RegisterAgentRequest struct {
	AgentID      string                           `json:"agent_id"`
	AgentType    string                           `json:"agent_type"`
	Capabilities []discovery.CapabilityDescriptor `json:"capabilities"`
	Endpoint     string                           `json:"endpoint,omitempty"`
	Status       discovery.AgentStatus            `json:"status,omitempty"`
	LoadLevel    float64                          `json:"load_level"`
	QualityScore float64                          `json:"quality_score"`
	// Announce broadcasts one agent_available message after registering. The
	// agent must keep itself alive via POST /api/v1/agents/{id}/heartbeat.
	Announce bool `json:"announce,omitempty"`
}

func (req *RegisterAgentRequest) validate() *types.Error {
	switch {
	case strings.TrimSpace(req.AgentID) == "":
		return types.NewInvalidRegistrationError("agent_id is required")
	case strings.TrimSpace(req.AgentType) == "":
		return types.NewInvalidRegistrationError("agent_type is required")
	case req.QualityScore < 0 || req.QualityScore > 100:
		return types.NewInvalidRegistrationError("quality_score must be between 0 and 100")
	case req.LoadLevel < 0 || req.LoadLevel > 1:
		return types.NewInvalidRegistrationError("load_level must be between 0 and 1")
	}
	if req.Status != "" && req.Status != discovery.AgentStatusOnline && req.Status != discovery.AgentStatusOffline {
		return types.NewInvalidRegistrationError("status must be online or offline")
	}
	for _, c := range req.Capabilities {
		if strings.TrimSpace(c.Name) == "" {
			return types.NewInvalidRegistrationError("capability name is required")
		}
	}
	return nil
}

func (req *RegisterAgentRequest) registration() discovery.AgentRegistration {
	return discovery.AgentRegistration{
		AgentID:      req.AgentID,
		AgentType:    req.AgentType,
		Capabilities: req.Capabilities,
		Endpoint:     req.Endpoint,
		Status:       req.Status,
		LoadLevel:    req.LoadLevel,
		QualityScore: req.QualityScore,
	}
}

// HeartbeatResponse is returned by POST /api/v1/agents/{id}/heartbeat.
type HeartbeatResponse struct {
	AgentID  string    `json:"agent_id"`
	LastSeen time.Time `json:"last_seen"`
}

// NewAgentHandler creates an agent handler.
func NewAgentHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{
		orchestrator: orch,
		logger:       logger.With(zap.String("handler", "agents")),
	}
}

// =============================================================================
// HTTP Handlers
// =============================================================================

// HandleListAgents lists registered agents, optionally filtered by type and status.
// @Router /api/v1/agents [get]
func (h *AgentHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	agentType := r.URL.Query().Get("type")
	status := discovery.AgentStatus(r.URL.Query().Get("status"))

	agents := h.orchestrator.Registry().Filter(func(reg discovery.AgentRegistration) bool {
		if agentType != "" && reg.AgentType != agentType {
			return false
		}
		return status == "" || reg.Status == status
	})
	WriteSuccess(w, agents)
}

// HandleRegisterAgent registers or replaces an agent.
// @Router /api/v1/agents [post]
func (h *AgentHandler) HandleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req RegisterAgentRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if apiErr := req.validate(); apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	reg := req.registration()
	if err := h.orchestrator.RegisterAgent(reg); err != nil {
		h.writeErr(w, err)
		return
	}
	if req.Announce {
		if err := h.orchestrator.Discovery().Announce(r.Context(), reg); err != nil {
			h.logger.Warn("announce failed", zap.String("agent_id", reg.AgentID), zap.Error(err))
		}
	}

	stored, _ := h.orchestrator.Registry().Get(reg.AgentID)
	WriteJSON(w, http.StatusCreated, Response{
		Success:   true,
		Data:      stored,
		Timestamp: time.Now(),
	})
}

// HandleGetAgent returns one agent.
// @Router /api/v1/agents/{id} [get]
func (h *AgentHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}
	reg, found := h.orchestrator.Registry().Get(agentID)
	if !found {
		WriteError(w, types.NewAgentNotFoundError(agentID), h.logger)
		return
	}
	WriteSuccess(w, reg)
}

// HandleDeleteAgent unregisters an agent.
// @Router /api/v1/agents/{id} [delete]
func (h *AgentHandler) HandleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}
	if !h.orchestrator.UnregisterAgent(r.Context(), agentID) {
		WriteError(w, types.NewAgentNotFoundError(agentID), h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHeartbeat refreshes an agent's lastSeen.
// @Router /api/v1/agents/{id}/heartbeat [post]
func (h *AgentHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}
	if !h.orchestrator.Liveness().Touch(agentID) {
		WriteError(w, types.NewAgentNotFoundError(agentID), h.logger)
		return
	}
	reg, _ := h.orchestrator.Registry().Get(agentID)
	WriteSuccess(w, HeartbeatResponse{AgentID: agentID, LastSeen: reg.LastSeen})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *AgentHandler) agentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewInvalidRequestError("agent ID is required"), h.logger)
		return "", false
	}
	return id, true
}

func (h *AgentHandler) writeErr(w http.ResponseWriter, err error) {
	if apiErr, ok := types.AsError(err); ok {
		WriteError(w, apiErr, h.logger)
		return
	}
	WriteError(w, types.NewInternalError("internal error").WithCause(err), h.logger)
}
