// Package discovery tracks which agents exist, proves they are alive and
// answers "who is available".
//
// # Components
//
//   - AgentRegistry: authoritative agentId -> AgentRegistration map. Readers get copies.
//   - LivenessTracker: refreshes LastSeen from heartbeat traffic and evicts agents
//     silent for more than three heartbeat intervals.
//   - BroadcastChannel: fire-and-forget pub/sub. InMemoryChannel serves a single
//     process; RedisChannel spans processes over Redis Pub/Sub.
//   - DiscoveryService: reads the registry when one is attached, otherwise runs a
//     bounded broadcast-and-collect round.
//
// # Basic Usage
//
//	registry := discovery.NewAgentRegistry(logger)
//	channel := discovery.NewInMemoryChannel(pool.DefaultGoroutinePoolConfig(), logger)
//	tracker := discovery.NewLivenessTracker(registry, channel, discovery.DefaultLivenessConfig(), logger)
//	_ = tracker.Start(ctx)
//
//	svc := discovery.NewDiscoveryService(discovery.DefaultDiscoveryConfig(), channel, registry, logger,
//	    discovery.WithLivenessTracker(tracker))
//	agents := svc.DiscoverAgents(ctx)
//
// # Lifecycle
//
// An agent is online from Register until the sweep finds it silent past the
// threshold, or until it publishes a shutdown. Eviction is final; the agent has
// to register again.
package discovery
