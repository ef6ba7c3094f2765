package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/agentmesh/agent/discovery"
	"go.uber.org/zap"
)

// =============================================================================
// 🪞 注册表镜像
// =============================================================================

// DefaultMirrorPrefix 镜像键前缀
const DefaultMirrorPrefix = "agentmesh:agent:"

// RegistryMirror 把本地注册表的成员变更写入 Redis，
// 供其他进程或运维工具查看当前网格成员。
type RegistryMirror struct {
	cache    *Manager
	registry *discovery.AgentRegistry
	prefix   string
	ttl      time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	subID string

	// 串行化读注册表与写 Redis，避免并发事件写回已删除的键
	writeMu sync.Mutex
}

// NewRegistryMirror 创建镜像。ttl <= 0 表示键不过期。
func NewRegistryMirror(cache *Manager, registry *discovery.AgentRegistry, prefix string, ttl time.Duration, logger *zap.Logger) *RegistryMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultMirrorPrefix
	}
	return &RegistryMirror{
		cache:    cache,
		registry: registry,
		prefix:   prefix,
		ttl:      ttl,
		timeout:  5 * time.Second,
		logger:   logger.With(zap.String("component", "registry_mirror")),
	}
}

// Start 写入当前快照并订阅后续变更
func (m *RegistryMirror) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subID != "" {
		return nil
	}

	for _, reg := range m.registry.All() {
		if err := m.cache.SetJSON(ctx, m.key(reg.AgentID), reg, m.ttl); err != nil {
			return err
		}
	}
	m.subID = m.registry.Subscribe(m.handleEvent)
	m.logger.Info("registry mirror started", zap.String("prefix", m.prefix))
	return nil
}

// Stop 取消订阅，已写入的键保留
func (m *RegistryMirror) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subID == "" {
		return
	}
	m.registry.Unsubscribe(m.subID)
	m.subID = ""
}

// Load 读取镜像中的单个记录
func (m *RegistryMirror) Load(ctx context.Context, agentID string) (discovery.AgentRegistration, error) {
	var reg discovery.AgentRegistration
	err := m.cache.GetJSON(ctx, m.key(agentID), &reg)
	return reg, err
}

// AgentIDs 返回镜像中的全部 agent id，按字典序排列
func (m *RegistryMirror) AgentIDs(ctx context.Context) ([]string, error) {
	keys, err := m.cache.Keys(ctx, m.prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k[len(m.prefix):])
	}
	sort.Strings(ids)
	return ids, nil
}

// handleEvent 以注册表当前状态为准，事件乱序到达时结果仍一致
func (m *RegistryMirror) handleEvent(event *discovery.RegistryEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	var err error
	if reg, ok := m.registry.Get(event.AgentID); ok {
		err = m.cache.SetJSON(ctx, m.key(reg.AgentID), reg, m.ttl)
	} else {
		err = m.cache.Delete(ctx, m.key(event.AgentID))
	}
	if err != nil {
		m.logger.Warn("mirror update failed",
			zap.String("agent_id", event.AgentID),
			zap.String("event", string(event.Type)),
			zap.Error(err),
		)
	}
}

func (m *RegistryMirror) key(agentID string) string {
	return m.prefix + agentID
}
