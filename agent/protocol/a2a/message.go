package a2a

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageKind 表示 Agent 间消息的意图。
type MessageKind string

const (
	KindCoordinationRequest MessageKind = "coordination_request"
	KindCapabilityQuery     MessageKind = "capability_query"
	KindTaskDelegation      MessageKind = "task_delegation"
	KindStatusUpdate        MessageKind = "status_update"
)

// IsValid 检查消息类型是否有效。
func (k MessageKind) IsValid() bool {
	switch k {
	case KindCoordinationRequest, KindCapabilityQuery, KindTaskDelegation, KindStatusUpdate:
		return true
	default:
		return false
	}
}

func (k MessageKind) String() string {
	return string(k)
}

// Priority 消息优先级。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid 检查优先级是否有效。
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Metadata 随消息携带的质量与路由信息。
type Metadata struct {
	Priority         Priority `json:"priority"`
	RequiresResponse bool     `json:"requires_response"`
	// ConfidenceLevel 取值 0.0-1.0。
	ConfidenceLevel float64 `json:"confidence_level"`
	// QualityScore 取值 0-100。
	QualityScore float64 `json:"quality_score"`
}

// DefaultMetadata 返回普通优先级、需要回复的元数据。
func DefaultMetadata() Metadata {
	return Metadata{
		Priority:         PriorityNormal,
		RequiresResponse: true,
	}
}

// Message 表示一条 Agent 间消息。消息按调用创建，
// 除协作会话的活动日志外不在回复周期之后保留。
type Message struct {
	ID          string      `json:"id"`
	Kind        MessageKind `json:"kind"`
	SourceAgent string      `json:"source_agent"`
	TargetAgent string      `json:"target_agent"`
	Content     string      `json:"content"`
	Metadata    Metadata    `json:"metadata"`
	Timestamp   time.Time   `json:"timestamp"`
	SessionID   string      `json:"session_id,omitempty"`
	// ReplyTo 是被回复消息的 ID（可选）。
	ReplyTo string `json:"reply_to,omitempty"`
	// Context 随请求携带的任务上下文（可选）。
	Context map[string]any `json:"context,omitempty"`
	// Error 在回复中携带处理方的失败原因。
	Error string `json:"error,omitempty"`
}

// NewMessage 创建带有生成 ID 与当前时间戳的消息。
func NewMessage(kind MessageKind, source, target, content string) *Message {
	return &Message{
		ID:          uuid.New().String(),
		Kind:        kind,
		SourceAgent: source,
		TargetAgent: target,
		Content:     content,
		Metadata:    DefaultMetadata(),
		Timestamp:   time.Now().UTC(),
	}
}

// NewTaskDelegation 创建任务委派消息。
func NewTaskDelegation(source, target, content, sessionID string) *Message {
	msg := NewMessage(KindTaskDelegation, source, target, content)
	msg.SessionID = sessionID
	return msg
}

// NewReply 创建对 m 的回复，源与目标互换，沿用 m 的类型与会话。
func (m *Message) NewReply(content string, metadata Metadata) *Message {
	reply := NewMessage(m.Kind, m.TargetAgent, m.SourceAgent, content)
	reply.Metadata = metadata
	reply.Metadata.RequiresResponse = false
	reply.SessionID = m.SessionID
	reply.ReplyTo = m.ID
	return reply
}

// Validate 检查消息是否包含所有必需字段且取值在范围内。
func (m *Message) Validate() error {
	if m.ID == "" {
		return ErrMessageMissingID
	}
	if !m.Kind.IsValid() {
		return ErrMessageInvalidKind
	}
	if m.SourceAgent == "" {
		return ErrMessageMissingSource
	}
	if m.TargetAgent == "" {
		return ErrMessageMissingTarget
	}
	if m.Timestamp.IsZero() {
		return ErrMessageMissingTimestamp
	}
	if m.Metadata.Priority != "" && !m.Metadata.Priority.IsValid() {
		return ErrMessageInvalidPriority
	}
	if m.Metadata.ConfidenceLevel < 0 || m.Metadata.ConfidenceLevel > 1 {
		return ErrMessageConfidenceRange
	}
	if m.Metadata.QualityScore < 0 || m.Metadata.QualityScore > 100 {
		return ErrMessageQualityRange
	}
	return nil
}

// NewErrorReply 创建携带失败原因的回复，质量与置信度均为 0。
func (m *Message) NewErrorReply(err error) *Message {
	reply := m.NewReply("", Metadata{Priority: m.Metadata.Priority})
	reply.Error = err.Error()
	return reply
}

// IsReply 检查此消息是否为回复。
func (m *Message) IsReply() bool {
	return m.ReplyTo != ""
}

// Encode 校验并序列化消息。
func (m *Message) Encode() (json.RawMessage, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return json.Marshal(m)
}

// Decode 反序列化并校验消息。
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return &m, nil
}
