package discovery

import (
	"sync"
	"time"

	"github.com/BaSui01/agentmesh/internal/pool"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testPoolConfig() pool.GoroutinePoolConfig {
	return pool.GoroutinePoolConfig{MaxWorkers: 8, QueueSize: 256}
}

func testAgent(id, agentType string, quality float64, caps ...string) AgentRegistration {
	descriptors := make([]CapabilityDescriptor, len(caps))
	for i, name := range caps {
		descriptors[i] = CapabilityDescriptor{Name: name, Version: "1.0.0", ConstitutionalCompliant: true}
	}
	return AgentRegistration{
		AgentID:      id,
		AgentType:    agentType,
		Capabilities: descriptors,
		Endpoint:     "inproc://" + id,
		QualityScore: quality,
	}
}
