// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "core", cfg.Coordinator.CoreAgentID)
	assert.Equal(t, 30*time.Second, cfg.Coordinator.HeartbeatInterval)
	assert.Equal(t, 5*time.Second, cfg.Coordinator.DiscoveryTimeout)
	assert.Equal(t, 80.0, cfg.Coordinator.QualityThreshold)
	assert.Equal(t, "keyword", cfg.Coordinator.Classifier)
	assert.Equal(t, 70.0, cfg.Coordinator.Scoring.BaseQuality)

	assert.Equal(t, BroadcastDriverMemory, cfg.Broadcast.Driver)
	assert.Equal(t, "agentmesh:discovery", cfg.Broadcast.Channel)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	require.NoError(t, cfg.Validate())
}

func TestCoordinatorConfig_OrchestratorConfig(t *testing.T) {
	co := DefaultCoordinatorConfig()
	co.CoreAgentID = "hub"
	co.TargetQuality = 75
	co.Scoring.BaseQuality = 55

	oc := co.OrchestratorConfig()
	assert.Equal(t, "hub", oc.CoreAgentID)
	assert.Equal(t, 75.0, oc.TargetQuality)
	assert.Equal(t, co.MessageTimeout, oc.MessageTimeout)
	assert.Equal(t, co.HeartbeatInterval, oc.LivenessConfig().HeartbeatInterval)
	assert.Equal(t, 55.0, oc.Scoring.BaseQuality)
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "core", cfg.Coordinator.CoreAgentID)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "agentmesh.yaml")
	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

coordinator:
  core_agent_id: "hub"
  heartbeat_interval: 10s
  quality_threshold: 70
  classifier: rules
  scoring:
    base_quality: 60
    uptime_saturation: 12h

broadcast:
  driver: redis
  channel: "mesh:test"

redis:
  addr: "redis:6379"

log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o600))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout, "unset fields keep defaults")
	assert.Equal(t, "hub", cfg.Coordinator.CoreAgentID)
	assert.Equal(t, 10*time.Second, cfg.Coordinator.HeartbeatInterval)
	assert.Equal(t, 70.0, cfg.Coordinator.QualityThreshold)
	assert.Equal(t, "rules", cfg.Coordinator.Classifier)
	assert.Equal(t, 60.0, cfg.Coordinator.Scoring.BaseQuality)
	assert.Equal(t, 12*time.Hour, cfg.Coordinator.Scoring.UptimeSaturation)
	assert.Equal(t, 40.0, cfg.Coordinator.Scoring.ErrorRatePenalty)
	assert.Equal(t, BroadcastDriverRedis, cfg.Broadcast.Driver)
	assert.Equal(t, "mesh:test", cfg.Broadcast.Channel)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unclosed"), 0o600))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("AGENTMESH_SERVER_HTTP_PORT", "9000")
	t.Setenv("AGENTMESH_COORDINATOR_DISCOVERY_TIMEOUT", "750ms")
	t.Setenv("AGENTMESH_COORDINATOR_QUALITY_THRESHOLD", "85.5")
	t.Setenv("AGENTMESH_LOG_OUTPUT_PATHS", "stdout, /tmp/mesh.log")
	t.Setenv("AGENTMESH_TELEMETRY_ENABLED", "true")
	t.Setenv("AGENTMESH_REDIS_TLS", "true")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 750*time.Millisecond, cfg.Coordinator.DiscoveryTimeout)
	assert.Equal(t, 85.5, cfg.Coordinator.QualityThreshold)
	assert.Equal(t, []string{"stdout", "/tmp/mesh.log"}, cfg.Log.OutputPaths)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.True(t, cfg.Redis.TLS)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "agentmesh.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("coordinator:\n  core_agent_id: file\n"), 0o600))
	t.Setenv("MESH_COORDINATOR_CORE_AGENT_ID", "env")

	cfg, err := NewLoader().WithConfigPath(configPath).WithEnvPrefix("MESH").Load()
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.Coordinator.CoreAgentID)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("AGENTMESH_COORDINATOR_HEARTBEAT_INTERVAL", "soon")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENTMESH_COORDINATOR_HEARTBEAT_INTERVAL")
}

func TestLoader_CustomValidator(t *testing.T) {
	called := false
	_, err := NewLoader().WithValidator(func(c *Config) error {
		called = true
		if c.Coordinator.CoreAgentID == "core" {
			return assert.AnError
		}
		return nil
	}).Load()

	assert.True(t, called)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestMustLoad_Panics(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("coordinator:\n  classifier: magic\n"), 0o600))

	assert.Panics(t, func() { MustLoad(configPath) })
}
