package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []*Message
}

func (r *recorder) handle(msg *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorder) first() *Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[0]
}

func TestInMemoryChannel_FanOutAndFilter(t *testing.T) {
	c := NewInMemoryChannel(testPoolConfig(), nil)
	defer c.Close()

	var all, heartbeats recorder
	c.Subscribe(nil, all.handle)
	c.Subscribe(ByType(MessageTypeHeartbeat), heartbeats.handle)

	ctx := context.Background()
	require.NoError(t, c.Broadcast(ctx, NewHeartbeat("a")))
	require.NoError(t, c.Broadcast(ctx, NewDiscoverRequest("core")))

	assert.Eventually(t, func() bool { return all.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return heartbeats.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, MessageTypeHeartbeat, heartbeats.first().Type)
}

func TestInMemoryChannel_SubscribersGetOwnCopy(t *testing.T) {
	c := NewInMemoryChannel(testPoolConfig(), nil)
	defer c.Close()

	var mutated atomic.Bool
	var observed recorder
	c.Subscribe(nil, func(msg *Message) {
		msg.Payload.QualityScore = 0
		mutated.Store(true)
	})

	reg := testAgent("a", "dev", 90, "code_analysis")
	msg := NewAgentAvailable(reg, NewDiscoverRequest("core"))
	require.NoError(t, c.Broadcast(context.Background(), msg))
	assert.Eventually(t, mutated.Load, time.Second, 5*time.Millisecond)

	c.Subscribe(nil, observed.handle)
	require.NoError(t, c.Broadcast(context.Background(), msg))
	assert.Eventually(t, func() bool { return observed.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 90.0, observed.first().Payload.QualityScore)
	assert.Equal(t, 90.0, msg.Payload.QualityScore)
}

func TestInMemoryChannel_UnsubscribeAndClose(t *testing.T) {
	c := NewInMemoryChannel(testPoolConfig(), nil)

	var rec recorder
	id := c.Subscribe(nil, rec.handle)
	c.Unsubscribe(id)
	c.Unsubscribe("unknown")

	require.NoError(t, c.Broadcast(context.Background(), NewHeartbeat("a")))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rec.count())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Broadcast(context.Background(), NewHeartbeat("a")), ErrChannelClosed)
}

func TestInMemoryChannel_HandlerPanicIsContained(t *testing.T) {
	c := NewInMemoryChannel(testPoolConfig(), nil)
	defer c.Close()

	var rec recorder
	c.Subscribe(nil, func(msg *Message) { panic("bad subscriber") })
	c.Subscribe(nil, rec.handle)

	require.NoError(t, c.Broadcast(context.Background(), NewHeartbeat("a")))
	require.NoError(t, c.Broadcast(context.Background(), NewHeartbeat("b")))
	assert.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
}

func setupRedisChannel(t *testing.T) (*miniredis.Miniredis, *redis.Client, *RedisChannel) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c, err := NewRedisChannel(context.Background(), client, RedisChannelConfig{Pool: testPoolConfig()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return mr, client, c
}

func TestRedisChannel_RoundTrip(t *testing.T) {
	_, _, c := setupRedisChannel(t)

	var rec recorder
	c.Subscribe(ByType(MessageTypeAgentAvailable), rec.handle)

	request := NewDiscoverRequest("core")
	reply := NewAgentAvailable(testAgent("a", "dev", 90, "code_analysis"), request)
	require.NoError(t, c.Broadcast(context.Background(), request))
	require.NoError(t, c.Broadcast(context.Background(), reply))

	assert.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	got := rec.first()
	assert.Equal(t, reply.ID, got.ID)
	assert.Equal(t, "core", got.RespondingTo)
	assert.Equal(t, request.ID, got.CorrelationID)
	require.NotNil(t, got.Payload)
	assert.Equal(t, "code_analysis", got.Payload.Capabilities[0].Name)
}

func TestRedisChannel_SharedAcrossProcesses(t *testing.T) {
	mr, _, first := setupRedisChannel(t)

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer other.Close()
	second, err := NewRedisChannel(context.Background(), other, RedisChannelConfig{Pool: testPoolConfig()}, nil)
	require.NoError(t, err)
	defer second.Close()

	var rec recorder
	second.Subscribe(nil, rec.handle)

	require.NoError(t, first.Broadcast(context.Background(), NewHeartbeat("a")))
	assert.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "a", rec.first().SourceAgent)
}

func TestRedisChannel_ClosedChannel(t *testing.T) {
	_, _, c := setupRedisChannel(t)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Broadcast(context.Background(), NewHeartbeat("a")), ErrChannelClosed)
}
