// =============================================================================
// 📦 AgentMesh 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/agentmesh/agent/coordination"
	"github.com/BaSui01/agentmesh/agent/discovery"
	"github.com/BaSui01/agentmesh/agent/orchestrator"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Coordinator: DefaultCoordinatorConfig(),
		Broadcast:   DefaultBroadcastConfig(),
		Redis:       DefaultRedisConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultCoordinatorConfig 返回默认协作配置
func DefaultCoordinatorConfig() CoordinatorConfig {
	o := orchestrator.DefaultConfig()
	return CoordinatorConfig{
		CoreAgentID:       o.CoreAgentID,
		HeartbeatInterval: o.HeartbeatInterval,
		DiscoveryTimeout:  o.DiscoveryTimeout,
		QualityThreshold:  o.QualityThreshold,
		TargetQuality:     o.TargetQuality,
		MessageTimeout:    o.MessageTimeout,
		Classifier:        string(coordination.ClassifierKeyword),
		Scoring:           orchestrator.DefaultScoringWeights(),
	}
}

// DefaultBroadcastConfig 返回默认广播配置
func DefaultBroadcastConfig() BroadcastConfig {
	return BroadcastConfig{
		Driver:    BroadcastDriverMemory,
		Channel:   discovery.DefaultRedisChannelName,
		Workers:   32,
		QueueSize: 1024,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentmesh",
		SampleRate:   0.1,
	}
}
