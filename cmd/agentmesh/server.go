package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentmesh/agent/coordination"
	"github.com/BaSui01/agentmesh/agent/discovery"
	"github.com/BaSui01/agentmesh/agent/orchestrator"
	"github.com/BaSui01/agentmesh/api"
	"github.com/BaSui01/agentmesh/api/handlers"
	"github.com/BaSui01/agentmesh/config"
	"github.com/BaSui01/agentmesh/internal/cache"
	"github.com/BaSui01/agentmesh/internal/metrics"
	"github.com/BaSui01/agentmesh/internal/pool"
	"github.com/BaSui01/agentmesh/internal/server"
	"github.com/BaSui01/agentmesh/internal/tlsutil"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 AgentMesh 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 协作核心
	redis        *cache.Manager
	mirror       *cache.RegistryMirror
	channel      discovery.BroadcastChannel
	orchestrator *orchestrator.Orchestrator

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler    *handlers.HealthHandler
	discoveryHandler *handlers.DiscoveryHandler

	// 指标收集器
	metricsNamespace string
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:              cfg,
		logger:           logger,
		metricsNamespace: "agentmesh",
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务，失败时调用方负责 Shutdown 已启动的部分
func (s *Server) Start(ctx context.Context) error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector(s.metricsNamespace, s.logger)

	// 2. 初始化广播通道、注册表与编排器
	if err := s.initMesh(ctx); err != nil {
		return fmt.Errorf("failed to init mesh: %w", err)
	}

	// 3. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 4. 启动 Metrics 服务器
	if s.cfg.Server.MetricsPort > 0 {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("broadcast_driver", s.cfg.Broadcast.Driver),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initMesh 按配置组装广播通道、注册表、编排器和 Redis 镜像
func (s *Server) initMesh(ctx context.Context) error {
	classifier, err := coordination.NewClassifier(coordination.ClassifierKind(s.cfg.Coordinator.Classifier))
	if err != nil {
		return err
	}

	poolCfg := pool.DefaultGoroutinePoolConfig()
	poolCfg.MaxWorkers = s.cfg.Broadcast.Workers
	poolCfg.QueueSize = s.cfg.Broadcast.QueueSize
	poolCfg.PanicHandler = func(r any) {
		s.logger.Error("broadcast handler panic", zap.Any("panic", r))
	}

	switch s.cfg.Broadcast.Driver {
	case config.BroadcastDriverRedis:
		s.redis, err = cache.NewManager(ctx, s.redisConfig(), s.logger)
		if err != nil {
			return err
		}
		channel, err := discovery.NewRedisChannel(ctx, s.redis.Client(), discovery.RedisChannelConfig{
			Channel: s.cfg.Broadcast.Channel,
			Pool:    poolCfg,
		}, s.logger)
		if err != nil {
			return err
		}
		s.channel = channel
	default:
		s.channel = discovery.NewInMemoryChannel(poolCfg, s.logger)
	}

	registry := discovery.NewAgentRegistry(s.logger)
	s.orchestrator = orchestrator.New(
		s.cfg.Coordinator.OrchestratorConfig(),
		registry,
		s.channel,
		orchestrator.WithLogger(s.logger),
		orchestrator.WithClassifier(classifier),
		orchestrator.WithMetrics(s.metricsCollector),
	)
	if err := s.orchestrator.Start(ctx); err != nil {
		return err
	}

	if s.redis != nil {
		s.mirror = cache.NewRegistryMirror(s.redis, registry, cache.DefaultMirrorPrefix, 0, s.logger)
		if err := s.mirror.Start(ctx); err != nil {
			return fmt.Errorf("failed to start registry mirror: %w", err)
		}
	}

	s.logger.Info("Mesh initialized",
		zap.String("core_agent_id", s.cfg.Coordinator.CoreAgentID),
		zap.String("classifier", s.cfg.Coordinator.Classifier),
	)
	return nil
}

func (s *Server) redisConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Addr = s.cfg.Redis.Addr
	cfg.Password = s.cfg.Redis.Password
	cfg.DB = s.cfg.Redis.DB
	if s.cfg.Redis.PoolSize > 0 {
		cfg.PoolSize = s.cfg.Redis.PoolSize
	}
	cfg.MinIdleConns = s.cfg.Redis.MinIdleConns
	if s.cfg.Redis.TLS {
		cfg.TLS = tlsutil.ClientConfig(s.cfg.Redis.Addr)
	}
	return cfg
}

// initHandlers 初始化 handlers 并注册健康检查
func (s *Server) initHandlers() api.Handlers {
	s.healthHandler = handlers.NewHealthHandler(s.orchestrator, s.logger)
	if s.redis != nil {
		s.healthHandler.RegisterCheck("redis", s.redis.Ping)
	}

	s.discoveryHandler = handlers.NewDiscoveryHandler(s.orchestrator, handlers.DefaultStreamConfig(), s.logger)

	return api.Handlers{
		Health:       s.healthHandler,
		Agents:       handlers.NewAgentHandler(s.orchestrator, s.logger),
		Discovery:    s.discoveryHandler,
		Coordination: handlers.NewCoordinationHandler(s.orchestrator, s.logger),
		Version: api.VersionInfo{
			Version:   Version,
			BuildTime: BuildTime,
			GitCommit: GitCommit,
		},
	}
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 API 服务器
func (s *Server) startHTTPServer() error {
	mux := api.NewRouter(s.initHandlers())

	// ========================================
	// 构建中间件链
	// ========================================
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	if s.cfg.Server.TLSCertFile != "" {
		tlsConfig, err := tlsutil.ServerConfig(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
		if err != nil {
			return err
		}
		serverConfig.TLSConfig = tlsConfig
	}

	s.httpManager = server.NewManager("api", handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager("metrics", mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.Addr()))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞直到 ctx 结束或任一服务器异常退出
func (s *Server) Wait(ctx context.Context) error {
	var metricsErrs <-chan error
	if s.metricsManager != nil {
		metricsErrs = s.metricsManager.Errors()
	}

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
		return nil
	case err := <-s.httpManager.Errors():
		return fmt.Errorf("api server: %w", err)
	case err := <-metricsErrs:
		return fmt.Errorf("metrics server: %w", err)
	}
}

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 停止接收新请求
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭发现事件流（已被劫持的连接不受 http.Server.Shutdown 管理）
	if s.discoveryHandler != nil {
		s.discoveryHandler.Close()
	}

	// 3. 停止镜像、编排器和广播通道
	if s.mirror != nil {
		s.mirror.Stop()
	}
	if s.orchestrator != nil {
		s.orchestrator.Stop()
	}
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			s.logger.Error("Broadcast channel close error", zap.Error(err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Redis close error", zap.Error(err))
		}
	}

	// 4. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.Server.ShutdownTimeout > 0 {
		return s.cfg.Server.ShutdownTimeout
	}
	return 30 * time.Second
}
