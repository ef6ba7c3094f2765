package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/BaSui01/agentmesh/internal/pool"
	"go.uber.org/zap"
)

// ErrChannelClosed is returned by Broadcast after Close.
var ErrChannelClosed = errors.New("discovery: broadcast channel closed")

// MessageFilter selects the messages a subscriber wants. A nil filter accepts all.
type MessageFilter func(msg *Message) bool

// MessageHandler receives a message. Handlers must treat msg as read-only.
type MessageHandler func(msg *Message)

// BroadcastChannel is a fire-and-forget publish/subscribe primitive.
// Delivery is asynchronous, best effort and at most once; ordering across
// subscribers is unspecified.
type BroadcastChannel interface {
	// Broadcast publishes msg to every current subscriber.
	Broadcast(ctx context.Context, msg *Message) error

	// Subscribe registers handler for messages accepted by filter and returns a subscription ID.
	Subscribe(filter MessageFilter, handler MessageHandler) string

	// Unsubscribe removes a subscription. Unknown IDs are ignored.
	Unsubscribe(subscriptionID string)

	// Close releases the channel.
	Close() error
}

// ByType returns a filter accepting the given message types.
func ByType(types ...MessageType) MessageFilter {
	return func(msg *Message) bool {
		for _, t := range types {
			if msg.Type == t {
				return true
			}
		}
		return false
	}
}

type subscription struct {
	filter  MessageFilter
	handler MessageHandler
}

// dispatcher fans a message out to local subscribers on a worker pool.
// It is shared by every BroadcastChannel implementation.
type dispatcher struct {
	mu      sync.RWMutex
	subs    map[string]subscription
	counter atomic.Int64
	prefix  string

	workers *pool.GoroutinePool
	logger  *zap.Logger
}

func newDispatcher(prefix string, cfg pool.GoroutinePoolConfig, logger *zap.Logger) *dispatcher {
	d := &dispatcher{
		subs:   make(map[string]subscription),
		prefix: prefix,
		logger: logger,
	}
	cfg.PanicHandler = func(r any) {
		d.logger.Error("subscriber panicked", zap.Any("panic", r))
	}
	d.workers = pool.NewGoroutinePool(cfg)
	return d
}

func (d *dispatcher) subscribe(filter MessageFilter, handler MessageHandler) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := fmt.Sprintf("%s-%d", d.prefix, d.counter.Add(1))
	d.subs[id] = subscription{filter: filter, handler: handler}
	return id
}

func (d *dispatcher) unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, id)
}

// dispatch hands each matching subscriber its own copy of msg.
func (d *dispatcher) dispatch(msg *Message) {
	d.mu.RLock()
	targets := make([]subscription, 0, len(d.subs))
	for _, s := range d.subs {
		targets = append(targets, s)
	}
	d.mu.RUnlock()

	for _, s := range targets {
		delivered := msg.Clone()
		err := d.workers.Submit(context.Background(), func(ctx context.Context) error {
			if s.filter != nil && !s.filter(delivered) {
				return nil
			}
			s.handler(delivered)
			return nil
		})
		if err != nil {
			d.logger.Warn("message dropped",
				zap.String("message_id", msg.ID),
				zap.String("type", string(msg.Type)),
				zap.Error(err),
			)
		}
	}
}

func (d *dispatcher) close() {
	d.workers.Close()
}

// InMemoryChannel is an in-process BroadcastChannel.
type InMemoryChannel struct {
	dispatcher *dispatcher
	closed     atomic.Bool
	logger     *zap.Logger
}

var _ BroadcastChannel = (*InMemoryChannel)(nil)

// NewInMemoryChannel creates an in-process channel delivering on a worker pool.
func NewInMemoryChannel(cfg pool.GoroutinePoolConfig, logger *zap.Logger) *InMemoryChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "inmemory_channel"))
	return &InMemoryChannel{
		dispatcher: newDispatcher("mem-sub", cfg, logger),
		logger:     logger,
	}
}

// Broadcast publishes msg to every current subscriber.
func (c *InMemoryChannel) Broadcast(ctx context.Context, msg *Message) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.logger.Debug("broadcast",
		zap.String("type", string(msg.Type)),
		zap.String("source", msg.SourceAgent),
	)
	c.dispatcher.dispatch(msg)
	return nil
}

// Subscribe registers a handler.
func (c *InMemoryChannel) Subscribe(filter MessageFilter, handler MessageHandler) string {
	return c.dispatcher.subscribe(filter, handler)
}

// Unsubscribe removes a handler.
func (c *InMemoryChannel) Unsubscribe(subscriptionID string) {
	c.dispatcher.unsubscribe(subscriptionID)
}

// Close stops delivery and waits for in-flight handlers.
func (c *InMemoryChannel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.dispatcher.close()
	return nil
}
