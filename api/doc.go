// Copyright (c) AgentMesh Authors.
// Licensed under the MIT License.

/*
Package api mounts the AgentMesh HTTP surface.

NewRouter wires the handlers from api/handlers onto a net/http ServeMux
using method-qualified patterns:

	GET    /health, /healthz, /ready, /readyz, /version
	GET    /api/v1/agents
	POST   /api/v1/agents
	GET    /api/v1/agents/{id}
	DELETE /api/v1/agents/{id}
	POST   /api/v1/agents/{id}/heartbeat
	GET    /api/v1/discovery
	GET    /api/v1/discovery/stream        (WebSocket)
	GET    /api/v1/capabilities?q=&quality=&status=&max=
	POST   /api/v1/coordinate
	POST   /api/v1/messages
	GET    /api/v1/network/health
	GET    /api/v1/sessions
	GET    /api/v1/sessions/{id}
	DELETE /api/v1/sessions/{id}

Every JSON response uses the handlers.Response envelope. Metrics are served
on a separate port by the binary.
*/
package api
