package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/agentmesh/agent/discovery"
	"github.com/BaSui01/agentmesh/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryMirror_SnapshotOnStart(t *testing.T) {
	_, manager := setupTestRedis(t, 0)
	registry := discovery.NewAgentRegistry(zap.NewNop())
	require.NoError(t, registry.Register(fixtures.CodeAgent()))

	mirror := NewRegistryMirror(manager, registry, "", 0, nil)
	require.NoError(t, mirror.Start(context.Background()))
	t.Cleanup(mirror.Stop)

	reg, err := mirror.Load(context.Background(), "agent-a")
	require.NoError(t, err)
	assert.Equal(t, "dev", reg.AgentType)
	assert.Equal(t, 90.0, reg.QualityScore)
	assert.Equal(t, []string{"code_analysis"}, reg.CapabilityNames())
}

func TestRegistryMirror_FollowsMembership(t *testing.T) {
	_, manager := setupTestRedis(t, 0)
	registry := discovery.NewAgentRegistry(zap.NewNop())

	mirror := NewRegistryMirror(manager, registry, "test:agent:", 0, nil)
	require.NoError(t, mirror.Start(context.Background()))
	t.Cleanup(mirror.Stop)

	ctx := context.Background()
	require.NoError(t, registry.Register(fixtures.CodeAgent()))
	require.NoError(t, registry.Register(fixtures.DocumentAgent()))

	assert.Eventually(t, func() bool {
		ids, err := mirror.AgentIDs(ctx)
		return err == nil && assert.ObjectsAreEqual([]string{"agent-a", "agent-b"}, ids)
	}, 2*time.Second, 10*time.Millisecond)

	registry.Unregister("agent-a")

	assert.Eventually(t, func() bool {
		_, err := mirror.Load(ctx, "agent-a")
		return IsCacheMiss(err)
	}, 2*time.Second, 10*time.Millisecond)

	_, err := mirror.Load(ctx, "agent-b")
	assert.NoError(t, err)
}

func TestRegistryMirror_StopKeepsKeys(t *testing.T) {
	_, manager := setupTestRedis(t, 0)
	registry := discovery.NewAgentRegistry(zap.NewNop())
	require.NoError(t, registry.Register(fixtures.CodeAgent()))

	mirror := NewRegistryMirror(manager, registry, "", 0, nil)
	require.NoError(t, mirror.Start(context.Background()))
	mirror.Stop()
	mirror.Stop()

	require.NoError(t, registry.Register(fixtures.DocumentAgent()))
	time.Sleep(50 * time.Millisecond)

	ids, err := mirror.AgentIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"agent-a"}, ids)
}

func TestRegistryMirror_ConcurrentChurnConverges(t *testing.T) {
	_, manager := setupTestRedis(t, 0)
	registry := discovery.NewAgentRegistry(zap.NewNop())

	mirror := NewRegistryMirror(manager, registry, "churn:agent:", 0, nil)
	require.NoError(t, mirror.Start(context.Background()))
	t.Cleanup(mirror.Stop)

	var wg sync.WaitGroup
	for g := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("agent-%02d", g%4)
			for i := range 50 {
				if i%2 == 0 {
					_ = registry.Register(fixtures.Agent(id, "dev", 90, "code_analysis"))
				} else {
					registry.Unregister(id)
				}
			}
		}()
	}
	wg.Wait()

	want := make([]string, 0, 4)
	for _, reg := range registry.All() {
		want = append(want, reg.AgentID)
	}
	assert.Eventually(t, func() bool {
		ids, err := mirror.AgentIDs(context.Background())
		return err == nil && assert.ObjectsAreEqual(want, ids)
	}, 3*time.Second, 20*time.Millisecond)
}
