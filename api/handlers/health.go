package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/agentmesh/agent/discovery"
	"github.com/BaSui01/agentmesh/agent/orchestrator"
	"go.uber.org/zap"
)

// =============================================================================
// 🏥 存活与就绪检查
// =============================================================================

// 就绪状态
const (
	ReadyStatusHealthy   = "healthy"
	ReadyStatusDegraded  = "degraded"
	ReadyStatusUnhealthy = "unhealthy"
)

// CheckFunc 单项就绪检查，返回 nil 表示通过
type CheckFunc func(ctx context.Context) error

// HealthStatus 健康检查响应
type HealthStatus struct {
	Status    string                      `json:"status"`
	Timestamp time.Time                   `json:"timestamp"`
	Network   *orchestrator.NetworkHealth `json:"network,omitempty"`
	Checks    map[string]CheckResult      `json:"checks,omitempty"`
}

// CheckResult 单项检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type namedCheck struct {
	name  string
	check CheckFunc
}

// HealthHandler 网格节点的健康检查。
// 就绪要求存活扫描在运行且广播通道能投递；网络中没有在线 Agent 只算 degraded，
// 节点仍需接收注册流量。
type HealthHandler struct {
	orchestrator *orchestrator.Orchestrator
	timeout      time.Duration
	logger       *zap.Logger

	mu     sync.RWMutex
	checks []namedCheck
}

// NewHealthHandler 创建健康检查处理器。orch 非空时自动注册 liveness 与 broadcast 检查。
func NewHealthHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HealthHandler{
		orchestrator: orch,
		timeout:      2 * time.Second,
		logger:       logger.With(zap.String("handler", "health")),
	}
	if orch != nil {
		h.RegisterCheck("liveness", LivenessCheck(orch.Liveness()))
		h.RegisterCheck("broadcast", BroadcastCheck(orch.Channel(), orch.Config().CoreAgentID))
	}
	return h
}

// RegisterCheck 追加就绪检查，同名检查会被替换
func (h *HealthHandler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.checks {
		if h.checks[i].name == name {
			h.checks[i].check = check
			return
		}
	}
	h.checks = append(h.checks, namedCheck{name: name, check: check})
}

// HandleLive 存活检查，只说明进程在响应
// @Router /healthz [get]
func (h *HealthHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{Status: ReadyStatusHealthy, Timestamp: time.Now()})
}

// HandleReady 就绪检查：任一检查失败返回 503，
// 检查全部通过但网络不健康时返回 200 + degraded
// @Router /readyz [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    ReadyStatusHealthy,
		Timestamp: time.Now(),
		Checks:    h.runChecks(r.Context()),
	}

	for _, result := range status.Checks {
		if result.Status != "pass" {
			status.Status = ReadyStatusUnhealthy
		}
	}
	if h.orchestrator != nil {
		status.Network = h.orchestrator.GetNetworkHealth()
		if status.Status == ReadyStatusHealthy && status.Network.Status != orchestrator.HealthStatusHealthy {
			status.Status = ReadyStatusDegraded
		}
	}

	code := http.StatusOK
	if status.Status == ReadyStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

// runChecks 并发执行全部检查，每项受 h.timeout 约束
func (h *HealthHandler) runChecks(ctx context.Context) map[string]CheckResult {
	h.mu.RLock()
	checks := make([]namedCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]CheckResult, len(checks))
	)
	for _, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := c.check(checkCtx)
			result := CheckResult{Status: "pass", Latency: time.Since(start).String()}
			if err != nil {
				result.Status = "fail"
				result.Message = err.Error()
				h.logger.Warn("readiness check failed", zap.String("check", c.name), zap.Error(err))
			}

			mu.Lock()
			results[c.name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// CheckNames 返回已注册检查名，按字典序
func (h *HealthHandler) CheckNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checks))
	for _, c := range h.checks {
		names = append(names, c.name)
	}
	sort.Strings(names)
	return names
}

// VersionHandler 返回构建信息
// @Router /version [get]
func VersionHandler(version, buildTime, gitCommit string) http.HandlerFunc {
	info := map[string]string{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, info)
	}
}

// =============================================================================
// 🔧 内置检查
// =============================================================================

// ErrLivenessStopped 存活扫描未运行，过期 Agent 不会被驱逐
var ErrLivenessStopped = errors.New("liveness tracker is not running")

// LivenessCheck 检查存活扫描是否在运行
func LivenessCheck(tracker *discovery.LivenessTracker) CheckFunc {
	return func(context.Context) error {
		if !tracker.Running() {
			return ErrLivenessStopped
		}
		return nil
	}
}

// BroadcastCheck 经通道回环一条 echo 消息。
// echo 不刷新任何 Agent 的 lastSeen，也不进入发现流。
func BroadcastCheck(channel discovery.BroadcastChannel, source string) CheckFunc {
	return func(ctx context.Context) error {
		echo := discovery.NewEcho(source)
		delivered := make(chan struct{}, 1)
		subID := channel.Subscribe(
			func(msg *discovery.Message) bool {
				return msg.Type == discovery.MessageTypeEcho && msg.ID == echo.ID
			},
			func(*discovery.Message) {
				select {
				case delivered <- struct{}{}:
				default:
				}
			},
		)
		defer channel.Unsubscribe(subID)

		if err := channel.Broadcast(ctx, echo); err != nil {
			return fmt.Errorf("publish echo: %w", err)
		}
		select {
		case <-delivered:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("echo not delivered: %w", ctx.Err())
		}
	}
}
