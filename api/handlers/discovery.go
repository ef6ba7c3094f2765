package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/agentmesh/agent/discovery"
	"github.com/BaSui01/agentmesh/agent/orchestrator"
	"github.com/BaSui01/agentmesh/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// =============================================================================
// Discovery Handler
// =============================================================================

// StreamConfig tunes the discovery WebSocket stream.
type StreamConfig struct {
	// BufferSize is the per-client queue; a lagging client loses messages.
	BufferSize int `json:"buffer_size"`
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration `json:"write_timeout"`
	// OriginPatterns are passed to websocket.AcceptOptions.
	OriginPatterns []string `json:"origin_patterns,omitempty"`
}

// DefaultStreamConfig returns the default stream settings.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		BufferSize:   64,
		WriteTimeout: 5 * time.Second,
	}
}

// DiscoveryHandler serves discovery snapshots and the live discovery stream.
type DiscoveryHandler struct {
	orchestrator *orchestrator.Orchestrator
	config       StreamConfig
	logger       *zap.Logger

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	streams sync.WaitGroup
}

// NewDiscoveryHandler creates a discovery handler.
func NewDiscoveryHandler(orch *orchestrator.Orchestrator, config StreamConfig, logger *zap.Logger) *DiscoveryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultStreamConfig().BufferSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultStreamConfig().WriteTimeout
	}
	return &DiscoveryHandler{
		orchestrator: orch,
		config:       config,
		logger:       logger.With(zap.String("handler", "discovery")),
		done:         make(chan struct{}),
	}
}

// HandleDiscover returns the agents known to the mesh, excluding the core agent.
// @Router /api/v1/discovery [get]
func (h *DiscoveryHandler) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.orchestrator.DiscoverAgents(r.Context()))
}

// HandleStream upgrades to WebSocket and forwards every discovery message
// seen on the broadcast channel as a JSON text frame.
// @Router /api/v1/discovery/stream [get]
func (h *DiscoveryHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "discovery stream is shutting down", h.logger)
		return
	}
	h.streams.Add(1)
	h.mu.Unlock()
	defer h.streams.Done()

	// The server's write timeout must not cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.config.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// Clients never send; CloseRead ends ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	queue := make(chan *discovery.Message, h.config.BufferSize)
	channel := h.orchestrator.Channel()
	subID := channel.Subscribe(
		func(msg *discovery.Message) bool { return msg.Type.IsDiscovery() },
		func(msg *discovery.Message) {
			select {
			case queue <- msg:
			default:
				h.logger.Debug("stream client lagging, message dropped", zap.String("message_id", msg.ID))
			}
		},
	)
	defer channel.Unsubscribe(subID)

	h.logger.Debug("discovery stream opened", zap.String("remote_addr", r.RemoteAddr))

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case msg := <-queue:
			writeCtx, cancel := context.WithTimeout(ctx, h.config.WriteTimeout)
			err := wsjson.Write(writeCtx, conn, msg)
			cancel()
			if err != nil {
				h.logger.Debug("discovery stream write failed", zap.Error(err))
				return
			}
		}
	}
}

// Close ends every open stream and rejects new ones.
func (h *DiscoveryHandler) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
	h.mu.Unlock()
	h.streams.Wait()
}
