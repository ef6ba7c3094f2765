package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/agentmesh/agent/discovery"
	"github.com/BaSui01/agentmesh/agent/protocol/a2a"
	"github.com/BaSui01/agentmesh/types"
	"go.uber.org/zap"
)

// ErrReplyFailed is returned when the target agent answered with an error.
var ErrReplyFailed = errors.New("orchestrator: agent reply reported failure")

// AgentHandler answers an agent message addressed to a served agent. The
// returned message is sent back as the reply; a nil reply with a nil error
// sends an empty reply.
type AgentHandler func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error)

// messenger carries A2A request/reply exchanges over the broadcast channel.
// Requests travel as agent_message envelopes and are matched to agent_reply
// envelopes by correlation id.
type messenger struct {
	channel discovery.BroadcastChannel
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]chan *discovery.Message
	subID   string
}

func newMessenger(channel discovery.BroadcastChannel, logger *zap.Logger) *messenger {
	return &messenger{
		channel: channel,
		logger:  logger.With(zap.String("component", "messenger")),
		pending: make(map[string]chan *discovery.Message),
	}
}

func (m *messenger) start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subID != "" {
		return
	}
	m.subID = m.channel.Subscribe(discovery.ByType(discovery.MessageTypeAgentReply), m.handleReply)
}

func (m *messenger) stop() {
	m.mu.Lock()
	subID := m.subID
	m.subID = ""
	m.mu.Unlock()
	if subID != "" {
		m.channel.Unsubscribe(subID)
	}
}

func (m *messenger) handleReply(env *discovery.Message) {
	m.mu.Lock()
	ch, ok := m.pending[env.CorrelationID]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- env:
	default:
	}
}

// request sends msg and waits up to timeout for the reply.
func (m *messenger) request(ctx context.Context, msg *a2a.Message, timeout time.Duration) (*a2a.Message, time.Duration, error) {
	body, err := msg.Encode()
	if err != nil {
		return nil, 0, err
	}
	env := discovery.NewAgentMessage(msg.SourceAgent, msg.TargetAgent, body)

	ch := make(chan *discovery.Message, 1)
	m.mu.Lock()
	m.pending[env.ID] = ch
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, env.ID)
		m.mu.Unlock()
	}()

	start := time.Now()
	if err := m.channel.Broadcast(ctx, env); err != nil {
		return nil, 0, fmt.Errorf("send agent message: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case replyEnv := <-ch:
		rtt := time.Since(start)
		reply, err := a2a.Decode(replyEnv.Body)
		if err != nil {
			return nil, rtt, err
		}
		if reply.Error != "" {
			return reply, rtt, fmt.Errorf("%w: %s", ErrReplyFailed, reply.Error)
		}
		return reply, rtt, nil
	case <-timer.C:
		return nil, time.Since(start), types.NewError(types.ErrTimeout,
			fmt.Sprintf("no reply from %s within %s", msg.TargetAgent, timeout)).WithRetryable(true)
	case <-ctx.Done():
		return nil, time.Since(start), ctx.Err()
	}
}

// handlerTracker admits in-flight handlers. begin reports false once the
// owner is stopping; the envelope is then dropped.
type handlerTracker interface {
	begin() bool
	done()
}

// serve answers agent_message envelopes addressed to agentID with handler.
// Handlers run on their own goroutine admitted by tracker.
func (m *messenger) serve(ctx context.Context, agentID string, handler AgentHandler, timeout time.Duration, tracker handlerTracker) string {
	return m.channel.Subscribe(
		func(env *discovery.Message) bool {
			return env.Type == discovery.MessageTypeAgentMessage && env.TargetAgent == agentID
		},
		func(env *discovery.Message) {
			if !tracker.begin() {
				m.logger.Debug("dropping agent message after stop",
					zap.String("agent_id", agentID),
					zap.String("envelope_id", env.ID),
				)
				return
			}
			go func() {
				defer tracker.done()
				m.answer(ctx, agentID, env, handler, timeout)
			}()
		},
	)
}

func (m *messenger) answer(ctx context.Context, agentID string, env *discovery.Message, handler AgentHandler, timeout time.Duration) {
	msg, err := a2a.Decode(env.Body)
	if err != nil {
		m.logger.Warn("dropping malformed agent message",
			zap.String("agent_id", agentID),
			zap.String("envelope_id", env.ID),
			zap.Error(err),
		)
		return
	}

	handlerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if msg.SessionID != "" {
		handlerCtx = types.WithSessionID(handlerCtx, msg.SessionID)
	}
	handlerCtx = types.WithAgentID(handlerCtx, agentID)

	reply, err := handler(handlerCtx, msg)
	switch {
	case err != nil:
		m.logger.Warn("agent handler failed",
			zap.String("agent_id", agentID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		reply = msg.NewErrorReply(err)
	case reply == nil:
		reply = msg.NewReply("", a2a.DefaultMetadata())
	}

	body, err := reply.Encode()
	if err != nil {
		body, _ = msg.NewErrorReply(err).Encode()
	}
	if err := m.channel.Broadcast(ctx, discovery.NewAgentReply(agentID, env, body)); err != nil {
		m.logger.Warn("agent reply not sent", zap.String("agent_id", agentID), zap.Error(err))
	}
}
