package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 Redis 连接管理器
// =============================================================================

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = errors.New("cache miss")

// ErrClosed 管理器已关闭
var ErrClosed = errors.New("cache manager is closed")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Config Redis 连接配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// TLS 配置，nil 表示明文连接
	TLS *tls.Config `yaml:"-" json:"-"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 健康检查间隔，0 表示不做后台检查
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认连接配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Manager 持有共享的 Redis 客户端。
// 广播通道与注册表镜像共用同一个连接池。
type Manager struct {
	client  *redis.Client
	config  Config
	logger  *zap.Logger
	healthy atomic.Bool

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewManager 创建管理器并验证连通性
func NewManager(ctx context.Context, config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		TLSConfig:    config.TLS,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		done:   make(chan struct{}),
	}
	m.healthy.Store(true)

	if config.HealthCheckInterval > 0 {
		m.wg.Add(1)
		go m.healthCheckLoop()
	}

	m.logger.Info("redis connection initialized",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
	)
	return m, nil
}

// Client 返回底层客户端，所有权仍归 Manager
func (m *Manager) Client() redis.UniversalClient {
	return m.client
}

// Healthy 返回最近一次健康检查结果
func (m *Manager) Healthy() bool {
	return m.healthy.Load()
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// GetJSON 读取 JSON 值
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	val, err := m.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache get failed: %w", err)
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// SetJSON 写入 JSON 值，ttl <= 0 表示不过期
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := m.client.Set(ctx, key, data, ttl).Err(); err != nil {
		m.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Delete 删除键
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		m.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// Keys 按前缀扫描键
func (m *Manager) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	var keys []string
	iter := m.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache scan failed: %w", err)
	}
	return keys, nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.client.Ping(ctx).Err()
}

// Close 停止健康检查并关闭连接
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()
	m.healthy.Store(false)
	m.logger.Info("closing redis connection")
	return m.client.Close()
}

func (m *Manager) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// 健康探测超时
const healthPingTimeout = time.Second

func (m *Manager) healthCheckLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			err := m.checkHealth()
			wasHealthy := m.healthy.Swap(err == nil)
			switch {
			case err != nil && wasHealthy:
				m.logger.Error("redis health check failed", zap.Error(err))
			case err == nil && !wasHealthy:
				m.logger.Info("redis health check recovered")
			default:
				m.logger.Debug("redis health check", zap.Bool("healthy", err == nil))
			}
		}
	}
}

// checkHealth 健康时走共享连接池；不健康时用一次性连接探测恢复，
// 避免连接池的拨号退避拖慢恢复判断
func (m *Manager) checkHealth() error {
	ctx, cancel := context.WithTimeout(context.Background(), healthPingTimeout)
	defer cancel()

	if m.healthy.Load() {
		return m.client.Ping(ctx).Err()
	}

	client := redis.NewClient(&redis.Options{
		Addr:          m.config.Addr,
		Password:      m.config.Password,
		DB:            m.config.DB,
		TLSConfig:     m.config.TLS,
		PoolSize:      1,
		MaxRetries:    -1,
		DialerRetries: 1,
		DialTimeout:   healthPingTimeout,
	})
	defer client.Close()
	return client.Ping(ctx).Err()
}
