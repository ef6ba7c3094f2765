// Copyright (c) AgentMesh Authors.
// Licensed under the MIT License.

/*
Package orchestrator is the facade over the agent mesh. It wires an injected
AgentRegistry, a LivenessTracker, the DiscoveryService and the
CoordinationPlanner around one BroadcastChannel.

CoordinateAgentsForTask opens a CollaborationSession, plans the task and runs
each step through a StepExecutor. The default executor delegates a step as a
task_delegation message and waits for the assigned agent's reply. Failures
come back as a CoordinationResult with Success false and a zero quality score.

SendAgentMessage resolves two agent types to registered agents and relays one
request/reply exchange. Agents answer through ServeAgent.

Bootstrap synthesizes registrations from AgentExecutor health reports using
the ScoringWeights carried in Config.Scoring.
*/
package orchestrator
