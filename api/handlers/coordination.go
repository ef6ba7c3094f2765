package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/BaSui01/agentmesh/agent/coordination"
	"github.com/BaSui01/agentmesh/agent/discovery"
	"github.com/BaSui01/agentmesh/agent/orchestrator"
	"github.com/BaSui01/agentmesh/agent/protocol/a2a"
	"github.com/BaSui01/agentmesh/types"
	"go.uber.org/zap"
)

// =============================================================================
// Coordination Handler
// =============================================================================

// CoordinationHandler exposes capability queries, task coordination,
// agent messaging, network health and sessions.
type CoordinationHandler struct {
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger
}

// CoordinateRequest is the body of POST /api/v1/coordinate.
type CoordinateRequest struct {
	Task                 string         `json:"task"`
	Context              map[string]any `json:"context,omitempty"`
	RequiredCapabilities []string       `json:"required_capabilities,omitempty"`
	TargetQuality        float64        `json:"target_quality,omitempty"`
}

// NewCoordinationHandler creates a coordination handler.
func NewCoordinationHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *CoordinationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoordinationHandler{
		orchestrator: orch,
		logger:       logger.With(zap.String("handler", "coordination")),
	}
}

// HandleQueryCapabilities searches agents by capability.
// Query parameters: q, quality (bool), status (online|offline), max (int).
// @Router /api/v1/capabilities [get]
func (h *CoordinationHandler) HandleQueryCapabilities(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	var filters coordination.QueryFilters

	if v := params.Get("quality"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			WriteError(w, types.NewInvalidRequestError("quality must be a boolean"), h.logger)
			return
		}
		filters.QualityFilter = b
	}
	if v := params.Get("status"); v != "" {
		status := discovery.AgentStatus(strings.ToLower(v))
		if status != discovery.AgentStatusOnline && status != discovery.AgentStatusOffline {
			WriteError(w, types.NewInvalidRequestError("status must be online or offline"), h.logger)
			return
		}
		filters.StatusFilter = status
	}
	if v := params.Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, types.NewInvalidRequestError("max must be a non-negative integer"), h.logger)
			return
		}
		filters.MaxResults = n
	}

	WriteSuccess(w, h.orchestrator.QueryCapabilities(r.Context(), params.Get("q"), filters))
}

// HandleCoordinate plans and executes a task across agents.
// A failed coordination is returned with the error code's status and the
// full result as data.
// @Router /api/v1/coordinate [post]
func (h *CoordinationHandler) HandleCoordinate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req CoordinateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		WriteError(w, types.NewInvalidRequestError("task is required"), h.logger)
		return
	}
	if req.TargetQuality < 0 || req.TargetQuality > 100 {
		WriteError(w, types.NewInvalidRequestError("target_quality must be between 0 and 100"), h.logger)
		return
	}

	result := h.orchestrator.CoordinateAgentsForTask(r.Context(), req.Task, req.Context, orchestrator.CoordinationOptions{
		RequiredCapabilities: req.RequiredCapabilities,
		TargetQuality:        req.TargetQuality,
	})
	if result.ErrorCode != "" {
		WriteFailure(w, result.ErrorCode, result.Result, result, h.logger)
		return
	}
	WriteSuccess(w, result)
}

// HandleSendMessage delivers a message between two agent types.
// @Router /api/v1/messages [post]
func (h *CoordinationHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req orchestrator.MessageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	switch {
	case req.SourceType == "" || req.TargetType == "":
		WriteError(w, types.NewInvalidRequestError("source_type and target_type are required"), h.logger)
		return
	case req.Content == "":
		WriteError(w, types.NewInvalidRequestError("content is required"), h.logger)
		return
	case req.Kind != "" && !req.Kind.IsValid():
		WriteError(w, types.NewInvalidRequestError("unknown message kind: "+string(req.Kind)), h.logger)
		return
	}
	if req.Kind == "" {
		req.Kind = a2a.KindCoordinationRequest
	}

	result := h.orchestrator.SendAgentMessage(r.Context(), req)
	if result.ErrorCode != "" {
		WriteFailure(w, result.ErrorCode, result.Response, result, h.logger)
		return
	}
	WriteSuccess(w, result)
}

// HandleNetworkHealth reports the mesh health.
// @Router /api/v1/network/health [get]
func (h *CoordinationHandler) HandleNetworkHealth(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.orchestrator.GetNetworkHealth())
}

// HandleListSessions lists collaboration sessions, optionally filtered by status.
// @Router /api/v1/sessions [get]
func (h *CoordinationHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	status := orchestrator.SessionStatus(r.URL.Query().Get("status"))
	sessions := h.orchestrator.Sessions().List()
	if status == "" {
		WriteSuccess(w, sessions)
		return
	}

	filtered := make([]*orchestrator.CollaborationSession, 0, len(sessions))
	for _, s := range sessions {
		if s.Status == status {
			filtered = append(filtered, s)
		}
	}
	WriteSuccess(w, filtered)
}

// HandleGetSession returns one session with its activity log.
// @Router /api/v1/sessions/{id} [get]
func (h *CoordinationHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, ok := h.orchestrator.Sessions().Get(id)
	if !ok {
		WriteError(w, sessionNotFound(id), h.logger)
		return
	}
	WriteSuccess(w, session)
}

// HandleDeleteSession removes a session.
// @Router /api/v1/sessions/{id} [delete]
func (h *CoordinationHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.orchestrator.Sessions().Cleanup(id) {
		WriteError(w, sessionNotFound(id), h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionNotFound(id string) *types.Error {
	return types.NewError(types.ErrSessionNotFound, "Session not found: "+id).WithHTTPStatus(http.StatusNotFound)
}
