package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/BaSui01/agentmesh/internal/pool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisChannelName is the Redis Pub/Sub channel used when none is configured.
const DefaultRedisChannelName = "agentmesh:discovery"

// RedisChannelConfig configures a RedisChannel.
type RedisChannelConfig struct {
	Channel string                   `json:"channel" yaml:"channel"`
	Pool    pool.GoroutinePoolConfig `json:"pool" yaml:"pool"`
}

// RedisChannel is a BroadcastChannel over Redis Pub/Sub. Each process holds one
// Redis subscription and fans messages out to its local subscribers, so every
// process sharing the Redis channel sees every broadcast, including its own.
type RedisChannel struct {
	client  redis.UniversalClient
	channel string
	pubsub  *redis.PubSub

	dispatcher *dispatcher
	closed     atomic.Bool
	wg         sync.WaitGroup
	logger     *zap.Logger
}

var _ BroadcastChannel = (*RedisChannel)(nil)

// NewRedisChannel subscribes to the configured channel and starts the receive loop.
// The client stays owned by the caller.
func NewRedisChannel(ctx context.Context, client redis.UniversalClient, cfg RedisChannelConfig, logger *zap.Logger) (*RedisChannel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultRedisChannelName
	}
	logger = logger.With(zap.String("component", "redis_channel"), zap.String("channel", cfg.Channel))

	pubsub := client.Subscribe(ctx, cfg.Channel)
	// Wait for the subscription to be confirmed so no early publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", cfg.Channel, err)
	}

	c := &RedisChannel{
		client:     client,
		channel:    cfg.Channel,
		pubsub:     pubsub,
		dispatcher: newDispatcher("redis-sub", cfg.Pool, logger),
		logger:     logger,
	}

	c.wg.Add(1)
	go c.receiveLoop()

	logger.Info("redis broadcast channel subscribed")
	return c, nil
}

func (c *RedisChannel) receiveLoop() {
	defer c.wg.Done()

	for payload := range c.pubsub.Channel() {
		var msg Message
		if err := json.Unmarshal([]byte(payload.Payload), &msg); err != nil {
			c.logger.Warn("discarding malformed message", zap.Error(err))
			continue
		}
		c.dispatcher.dispatch(&msg)
	}
}

// Broadcast publishes msg as JSON on the Redis channel.
func (c *RedisChannel) Broadcast(ctx context.Context, msg *Message) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.client.Publish(ctx, c.channel, data).Err(); err != nil {
		c.logger.Error("publish failed", zap.String("type", string(msg.Type)), zap.Error(err))
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe registers a local handler.
func (c *RedisChannel) Subscribe(filter MessageFilter, handler MessageHandler) string {
	return c.dispatcher.subscribe(filter, handler)
}

// Unsubscribe removes a local handler.
func (c *RedisChannel) Unsubscribe(subscriptionID string) {
	c.dispatcher.unsubscribe(subscriptionID)
}

// Close drops the Redis subscription and waits for local delivery to drain.
func (c *RedisChannel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	err := c.pubsub.Close()
	c.wg.Wait()
	c.dispatcher.close()
	c.logger.Info("redis broadcast channel closed")
	return err
}
