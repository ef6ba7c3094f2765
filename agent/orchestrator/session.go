package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/agentmesh/agent/protocol/a2a"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionStatus is the execution state of a collaboration session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// CollaborationSession tracks the execution of one coordination request.
// Agents are referenced by id only; removing an agent from the registry does
// not invalidate past sessions.
type CollaborationSession struct {
	SessionID           string         `json:"session_id"`
	ParticipatingAgents []string       `json:"participating_agents"`
	TaskContext         string         `json:"task_context"`
	Status              SessionStatus  `json:"status"`
	StartTime           time.Time      `json:"start_time"`
	LastActivity        time.Time      `json:"last_activity"`
	QualityScore        float64        `json:"quality_score"`
	Activity            []*a2a.Message `json:"activity,omitempty"`
}

func (s *CollaborationSession) clone() *CollaborationSession {
	out := *s
	out.ParticipatingAgents = append([]string(nil), s.ParticipatingAgents...)
	out.Activity = append([]*a2a.Message(nil), s.Activity...)
	return &out
}

// SessionManager owns the active-session map. Sessions are removed only by
// Cleanup; this package never expires them.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*CollaborationSession
	now      func() time.Time
	onChange func(active int)
	logger   *zap.Logger
}

// NewSessionManager creates an empty session manager.
func NewSessionManager(now func() time.Time, logger *zap.Logger) *SessionManager {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		sessions: make(map[string]*CollaborationSession),
		now:      now,
		logger:   logger.With(zap.String("component", "session_manager")),
	}
}

// Create opens a session for task.
func (m *SessionManager) Create(task string) *CollaborationSession {
	now := m.now()
	session := &CollaborationSession{
		SessionID:           uuid.New().String(),
		ParticipatingAgents: []string{},
		TaskContext:         task,
		Status:              SessionStatusActive,
		StartTime:           now,
		LastActivity:        now,
	}

	m.mu.Lock()
	m.sessions[session.SessionID] = session
	count := len(m.sessions)
	m.mu.Unlock()

	m.logger.Debug("session created", zap.String("session_id", session.SessionID))
	m.notify(count)
	return session.clone()
}

// Get returns a copy of the session.
func (m *SessionManager) Get(sessionID string) (*CollaborationSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return session.clone(), true
}

// List returns copies of every session, oldest first.
func (m *SessionManager) List() []*CollaborationSession {
	m.mu.RLock()
	out := make([]*CollaborationSession, 0, len(m.sessions))
	for _, session := range m.sessions {
		out = append(out, session.clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Active returns the number of sessions not yet cleaned up.
func (m *SessionManager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Join adds agents to the session's participants and refreshes LastActivity.
func (m *SessionManager) Join(sessionID string, agentIDs ...string) bool {
	return m.update(sessionID, func(s *CollaborationSession) {
		for _, id := range agentIDs {
			if !containsString(s.ParticipatingAgents, id) {
				s.ParticipatingAgents = append(s.ParticipatingAgents, id)
			}
		}
	})
}

// Touch refreshes LastActivity.
func (m *SessionManager) Touch(sessionID string) bool {
	return m.update(sessionID, func(*CollaborationSession) {})
}

// Record appends messages to the activity log and refreshes LastActivity.
func (m *SessionManager) Record(sessionID string, messages ...*a2a.Message) bool {
	return m.update(sessionID, func(s *CollaborationSession) {
		for _, msg := range messages {
			if msg != nil {
				s.Activity = append(s.Activity, msg)
			}
		}
	})
}

// Finish stores the final quality and status of the session.
func (m *SessionManager) Finish(sessionID string, quality float64, success bool) bool {
	return m.update(sessionID, func(s *CollaborationSession) {
		s.QualityScore = quality
		s.Status = SessionStatusCompleted
		if !success {
			s.Status = SessionStatusFailed
		}
	})
}

// Cleanup removes the session. It returns false if the session is unknown.
func (m *SessionManager) Cleanup(sessionID string) bool {
	m.mu.Lock()
	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	count := len(m.sessions)
	m.mu.Unlock()

	if ok {
		m.logger.Debug("session cleaned up", zap.String("session_id", sessionID))
		m.notify(count)
	}
	return ok
}

func (m *SessionManager) update(sessionID string, fn func(*CollaborationSession)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	fn(session)
	session.LastActivity = m.now()
	return true
}

func (m *SessionManager) notify(active int) {
	if m.onChange != nil {
		m.onChange(active)
	}
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
