package discovery

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CapabilityDescriptor describes one skill an agent exposes.
// Descriptors are compared by Name when matching.
type CapabilityDescriptor struct {
	Name                    string         `json:"name"`
	Description             string         `json:"description,omitempty"`
	Version                 string         `json:"version,omitempty"`
	QualityThreshold        float64        `json:"quality_threshold"`
	ConstitutionalCompliant bool           `json:"constitutional_compliant"`
	Parameters              map[string]any `json:"parameters,omitempty"`
}

// AgentStatus represents the registration status of an agent.
type AgentStatus string

const (
	AgentStatusOnline  AgentStatus = "online"
	AgentStatusOffline AgentStatus = "offline"
)

// AgentRegistration is the registry record for one agent.
type AgentRegistration struct {
	AgentID      string                 `json:"agent_id"`
	AgentType    string                 `json:"agent_type"`
	Capabilities []CapabilityDescriptor `json:"capabilities"`
	Endpoint     string                 `json:"endpoint,omitempty"`
	Status       AgentStatus            `json:"status"`
	LoadLevel    float64                `json:"load_level"`
	QualityScore float64                `json:"quality_score"`
	LastSeen     time.Time              `json:"last_seen"`
}

// HasCapability reports whether the agent exposes a capability with the given name.
func (r *AgentRegistration) HasCapability(name string) bool {
	_, ok := r.Capability(name)
	return ok
}

// Capability returns the descriptor with the given name, matched case-insensitively.
func (r *AgentRegistration) Capability(name string) (CapabilityDescriptor, bool) {
	for _, c := range r.Capabilities {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return CapabilityDescriptor{}, false
}

// CapabilityNames returns the capability names in registration order.
func (r *AgentRegistration) CapabilityNames() []string {
	names := make([]string, len(r.Capabilities))
	for i, c := range r.Capabilities {
		names[i] = c.Name
	}
	return names
}

// Clone returns a deep copy that shares no mutable state with r.
func (r *AgentRegistration) Clone() AgentRegistration {
	out := *r
	if r.Capabilities != nil {
		out.Capabilities = make([]CapabilityDescriptor, len(r.Capabilities))
		for i, c := range r.Capabilities {
			if c.Parameters != nil {
				params := make(map[string]any, len(c.Parameters))
				for k, v := range c.Parameters {
					params[k] = v
				}
				c.Parameters = params
			}
			out.Capabilities[i] = c
		}
	}
	return out
}

// Summary maps the registration to the shape returned by discovery.
func (r *AgentRegistration) Summary() AgentSummary {
	clone := r.Clone()
	return AgentSummary{
		AgentID:      clone.AgentID,
		AgentType:    clone.AgentType,
		Capabilities: clone.Capabilities,
		Endpoint:     clone.Endpoint,
		QualityScore: clone.QualityScore,
		Status:       clone.Status,
	}
}

// AgentSummary is what DiscoverAgents returns for each known agent.
type AgentSummary struct {
	AgentID      string                 `json:"agent_id"`
	AgentType    string                 `json:"agent_type"`
	Capabilities []CapabilityDescriptor `json:"capabilities"`
	Endpoint     string                 `json:"endpoint,omitempty"`
	QualityScore float64                `json:"quality_score"`
	Status       AgentStatus            `json:"status"`
}

// MessageType tags the variants carried by a Message.
type MessageType string

const (
	MessageTypeDiscoverRequest MessageType = "discover_request"
	MessageTypeAgentAvailable  MessageType = "agent_available"
	MessageTypeHeartbeat       MessageType = "heartbeat"
	MessageTypeShutdown        MessageType = "shutdown"

	// Agent-to-agent traffic shares the channel with discovery.
	MessageTypeAgentMessage MessageType = "agent_message"
	MessageTypeAgentReply   MessageType = "agent_reply"

	// MessageTypeEcho checks channel delivery. It carries no liveness.
	MessageTypeEcho MessageType = "echo"
)

// IsDiscovery reports whether t is one of the four discovery variants.
func (t MessageType) IsDiscovery() bool {
	switch t {
	case MessageTypeDiscoverRequest, MessageTypeAgentAvailable, MessageTypeHeartbeat, MessageTypeShutdown:
		return true
	}
	return false
}

// Message is the envelope published on a BroadcastChannel.
// Messages are immutable once published.
type Message struct {
	ID          string      `json:"id"`
	Type        MessageType `json:"type"`
	SourceAgent string      `json:"source_agent"`
	Timestamp   time.Time   `json:"timestamp"`

	// RespondingTo names the requester an agent_available or agent_reply answers.
	RespondingTo string `json:"responding_to,omitempty"`
	// CorrelationID is the ID of the message being answered.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload is set on agent_available.
	Payload *AgentRegistration `json:"payload,omitempty"`

	// TargetAgent and Body are set on agent_message and agent_reply.
	TargetAgent string          `json:"target_agent,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	out := *m
	if m.Payload != nil {
		p := m.Payload.Clone()
		out.Payload = &p
	}
	if m.Body != nil {
		out.Body = append(json.RawMessage(nil), m.Body...)
	}
	return &out
}

func newMessage(t MessageType, source string, now time.Time) *Message {
	return &Message{
		ID:          uuid.New().String(),
		Type:        t,
		SourceAgent: source,
		Timestamp:   now.UTC(),
	}
}

// NewDiscoverRequest creates a discover_request from source.
func NewDiscoverRequest(source string) *Message {
	return newMessage(MessageTypeDiscoverRequest, source, time.Now())
}

// NewAgentAvailable creates the agent_available answer to request.
func NewAgentAvailable(self AgentRegistration, request *Message) *Message {
	msg := newMessage(MessageTypeAgentAvailable, self.AgentID, time.Now())
	msg.Payload = &self
	if request != nil {
		msg.RespondingTo = request.SourceAgent
		msg.CorrelationID = request.ID
	}
	return msg
}

// NewHeartbeat creates a heartbeat from source.
func NewHeartbeat(source string) *Message {
	return newMessage(MessageTypeHeartbeat, source, time.Now())
}

// NewEcho creates a delivery check message from source.
func NewEcho(source string) *Message {
	return newMessage(MessageTypeEcho, source, time.Now())
}

// NewShutdown creates a shutdown notice from source.
func NewShutdown(source string) *Message {
	return newMessage(MessageTypeShutdown, source, time.Now())
}

// NewAgentMessage wraps an encoded agent-to-agent message addressed to target.
func NewAgentMessage(source, target string, body json.RawMessage) *Message {
	msg := newMessage(MessageTypeAgentMessage, source, time.Now())
	msg.TargetAgent = target
	msg.Body = body
	return msg
}

// NewAgentReply answers an agent_message.
func NewAgentReply(source string, request *Message, body json.RawMessage) *Message {
	msg := newMessage(MessageTypeAgentReply, source, time.Now())
	msg.TargetAgent = request.SourceAgent
	msg.RespondingTo = request.SourceAgent
	msg.CorrelationID = request.ID
	msg.Body = body
	return msg
}

// RegistryEventType represents the type of a registry event.
type RegistryEventType string

const (
	RegistryEventRegistered   RegistryEventType = "registered"
	RegistryEventUnregistered RegistryEventType = "unregistered"
	RegistryEventEvicted      RegistryEventType = "evicted"
)

// RegistryEvent is emitted when the registry membership changes.
type RegistryEvent struct {
	Type      RegistryEventType `json:"type"`
	AgentID   string            `json:"agent_id"`
	Reason    string            `json:"reason,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// RegistryEventHandler handles registry events.
type RegistryEventHandler func(event *RegistryEvent)

// Eviction reasons.
const (
	EvictionReasonStale    = "stale"
	EvictionReasonShutdown = "shutdown"
)
