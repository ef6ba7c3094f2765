package api

import (
	"net/http"

	"github.com/BaSui01/agentmesh/api/handlers"
)

// VersionInfo is reported by GET /version.
type VersionInfo struct {
	Version   string
	BuildTime string
	GitCommit string
}

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Health       *handlers.HealthHandler
	Agents       *handlers.AgentHandler
	Discovery    *handlers.DiscoveryHandler
	Coordination *handlers.CoordinationHandler
	Version      VersionInfo
}

// NewRouter mounts the health checks and the /api/v1 surface on a new mux.
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /health", h.Health.HandleLive)
	mux.HandleFunc("GET /healthz", h.Health.HandleLive)
	mux.HandleFunc("GET /ready", h.Health.HandleReady)
	mux.HandleFunc("GET /readyz", h.Health.HandleReady)
	mux.HandleFunc("GET /version", handlers.VersionHandler(h.Version.Version, h.Version.BuildTime, h.Version.GitCommit))

	// Registry
	mux.HandleFunc("GET /api/v1/agents", h.Agents.HandleListAgents)
	mux.HandleFunc("POST /api/v1/agents", h.Agents.HandleRegisterAgent)
	mux.HandleFunc("GET /api/v1/agents/{id}", h.Agents.HandleGetAgent)
	mux.HandleFunc("DELETE /api/v1/agents/{id}", h.Agents.HandleDeleteAgent)
	mux.HandleFunc("POST /api/v1/agents/{id}/heartbeat", h.Agents.HandleHeartbeat)

	// Discovery
	mux.HandleFunc("GET /api/v1/discovery", h.Discovery.HandleDiscover)
	mux.HandleFunc("GET /api/v1/discovery/stream", h.Discovery.HandleStream)

	// Coordination
	mux.HandleFunc("GET /api/v1/capabilities", h.Coordination.HandleQueryCapabilities)
	mux.HandleFunc("POST /api/v1/coordinate", h.Coordination.HandleCoordinate)
	mux.HandleFunc("POST /api/v1/messages", h.Coordination.HandleSendMessage)
	mux.HandleFunc("GET /api/v1/network/health", h.Coordination.HandleNetworkHealth)
	mux.HandleFunc("GET /api/v1/sessions", h.Coordination.HandleListSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", h.Coordination.HandleGetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.Coordination.HandleDeleteSession)

	return mux
}
