package config

import (
	"fmt"
	"strings"

	"github.com/BaSui01/agentmesh/agent/coordination"
)

// 广播驱动
const (
	BroadcastDriverMemory = "memory"
	BroadcastDriverRedis  = "redis"
)

// Validate 验证配置，一次性返回所有问题
func (c *Config) Validate() error {
	var errs []string

	// 服务器
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "server.http_port must be between 1 and 65535")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "server.metrics_port must be between 0 and 65535")
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, "server.rate_limit_rps must not be negative")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		errs = append(errs, "server.rate_limit_burst must be positive when rate limiting is enabled")
	}

	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "server.tls_cert_file and server.tls_key_file must be set together")
	}

	// 协作
	co := c.Coordinator
	if strings.TrimSpace(co.CoreAgentID) == "" {
		errs = append(errs, "coordinator.core_agent_id is required")
	}
	if co.HeartbeatInterval <= 0 {
		errs = append(errs, "coordinator.heartbeat_interval must be positive")
	}
	if co.DiscoveryTimeout <= 0 {
		errs = append(errs, "coordinator.discovery_timeout must be positive")
	}
	if co.MessageTimeout <= 0 {
		errs = append(errs, "coordinator.message_timeout must be positive")
	}
	if co.QualityThreshold < 0 || co.QualityThreshold > 100 {
		errs = append(errs, "coordinator.quality_threshold must be between 0 and 100")
	}
	if co.TargetQuality < 0 || co.TargetQuality > 100 {
		errs = append(errs, "coordinator.target_quality must be between 0 and 100")
	}
	switch coordination.ClassifierKind(co.Classifier) {
	case coordination.ClassifierKeyword, coordination.ClassifierRules:
	default:
		errs = append(errs, fmt.Sprintf("coordinator.classifier %q is not supported", co.Classifier))
	}

	// 广播
	switch c.Broadcast.Driver {
	case BroadcastDriverMemory:
	case BroadcastDriverRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, "redis.addr is required for the redis broadcast driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("broadcast.driver %q is not supported", c.Broadcast.Driver))
	}
	if c.Broadcast.Workers < 0 || c.Broadcast.QueueSize < 0 {
		errs = append(errs, "broadcast.workers and broadcast.queue_size must not be negative")
	}

	// 日志与遥测
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not supported", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Sprintf("log.format %q is not supported", c.Log.Format))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
