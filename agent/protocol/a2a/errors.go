package a2a

import "errors"

// A2A 协议错误。
var (
	// ErrInvalidMessage 表示信件格式无效。
	ErrInvalidMessage = errors.New("a2a: invalid message format")
	// ErrNoResponse 表示在超时内未收到回复。
	ErrNoResponse = errors.New("a2a: no response")
)

// A2A 信件验证错误。
var (
	ErrMessageMissingID        = errors.New("a2a message: missing id")
	ErrMessageInvalidKind      = errors.New("a2a message: invalid kind")
	ErrMessageMissingSource    = errors.New("a2a message: missing source agent")
	ErrMessageMissingTarget    = errors.New("a2a message: missing target agent")
	ErrMessageMissingTimestamp = errors.New("a2a message: missing timestamp")
	ErrMessageInvalidPriority  = errors.New("a2a message: invalid priority")
	ErrMessageConfidenceRange  = errors.New("a2a message: confidence level out of range")
	ErrMessageQualityRange     = errors.New("a2a message: quality score out of range")
)
