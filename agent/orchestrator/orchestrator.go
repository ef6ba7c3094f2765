package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/agentmesh/agent/coordination"
	"github.com/BaSui01/agentmesh/agent/discovery"
	"github.com/BaSui01/agentmesh/agent/protocol/a2a"
	"github.com/BaSui01/agentmesh/internal/pool"
	"github.com/BaSui01/agentmesh/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/BaSui01/agentmesh/agent/orchestrator"

// tracer reads the current global provider on each call.
func tracer() trace.Tracer { return otel.Tracer(tracerName) }

// Recorder receives orchestrator measurements. *metrics.Collector satisfies it.
type Recorder interface {
	SetAgentCounts(online, offline int)
	RecordRegistryEvent(eventType, reason string)
	RecordCoordination(success bool, quality float64, duration time.Duration)
	SetActiveSessions(n int)
	RecordMessage(kind string, success bool, roundTrip time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) SetAgentCounts(int, int) {}
func (noopRecorder) RecordRegistryEvent(string, string) {}
func (noopRecorder) RecordCoordination(bool, float64, time.Duration) {}
func (noopRecorder) SetActiveSessions(int) {}
func (noopRecorder) RecordMessage(string, bool, time.Duration) {}

type options struct {
	logger     *zap.Logger
	classifier coordination.TaskClassifier
	executor   StepExecutor
	recorder   Recorder
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClassifier replaces the keyword task classifier.
func WithClassifier(classifier coordination.TaskClassifier) Option {
	return func(o *options) { o.classifier = classifier }
}

// WithStepExecutor replaces the channel-based step executor.
func WithStepExecutor(executor StepExecutor) Option {
	return func(o *options) { o.executor = executor }
}

// WithMetrics attaches a measurement recorder. If it also implements
// discovery.Observer it receives discovery and heartbeat measurements.
func WithMetrics(recorder Recorder) Option {
	return func(o *options) { o.recorder = recorder }
}

// WithClock sets the clock used for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Orchestrator wires the registry, liveness tracking, discovery and planning
// together, runs coordination plans and relays messages between agents.
type Orchestrator struct {
	config    Config
	registry  *discovery.AgentRegistry
	channel   discovery.BroadcastChannel
	liveness  *discovery.LivenessTracker
	discovery *discovery.DiscoveryService
	planner   *coordination.CoordinationPlanner
	sessions  *SessionManager
	executor  StepExecutor
	messenger *messenger
	recorder  Recorder
	logger    *zap.Logger

	ownsChannel bool

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	started     bool
	registrySub string
	countsMu    sync.Mutex
	served      map[string]string

	handlersMu     sync.Mutex
	handlersClosed bool
	handlers       sync.WaitGroup
}

// New creates an orchestrator. A nil registry creates an empty one; a nil
// channel creates an in-memory channel owned by the orchestrator.
func New(config Config, registry *discovery.AgentRegistry, channel discovery.BroadcastChannel, opts ...Option) *Orchestrator {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.recorder == nil {
		o.recorder = noopRecorder{}
	}
	config = config.withDefaults()

	orch := &Orchestrator{
		config:   config,
		registry: registry,
		channel:  channel,
		recorder: o.recorder,
		served:   make(map[string]string),
		logger:   o.logger.With(zap.String("component", "orchestrator")),
	}
	if orch.registry == nil {
		orch.registry = discovery.NewAgentRegistry(o.logger)
	}
	if orch.channel == nil {
		orch.channel = discovery.NewInMemoryChannel(pool.DefaultGoroutinePoolConfig(), o.logger)
		orch.ownsChannel = true
	}
	orch.ctx, orch.cancel = context.WithCancel(context.Background())

	orch.liveness = discovery.NewLivenessTracker(orch.registry, orch.channel, config.LivenessConfig(), o.logger)
	serviceOpts := []discovery.ServiceOption{discovery.WithLivenessTracker(orch.liveness)}
	if observer, ok := o.recorder.(discovery.Observer); ok {
		serviceOpts = append(serviceOpts, discovery.WithObserver(observer))
	}
	orch.discovery = discovery.NewDiscoveryService(config.DiscoveryConfig(), orch.channel, orch.registry, o.logger, serviceOpts...)
	orch.planner = coordination.NewCoordinationPlanner(orch.registry, o.classifier, config.PlannerConfig(), o.logger)

	orch.sessions = NewSessionManager(o.now, o.logger)
	orch.sessions.onChange = orch.recorder.SetActiveSessions

	orch.messenger = newMessenger(orch.channel, orch.logger)
	orch.executor = o.executor
	if orch.executor == nil {
		orch.executor = &channelExecutor{
			messenger: orch.messenger,
			source:    config.CoreAgentID,
			timeout:   config.MessageTimeout,
		}
	}
	return orch
}

// Start starts liveness tracking, reply routing and registry metrics.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return errors.New("orchestrator already started")
	}
	if err := o.liveness.Start(ctx); err != nil {
		return fmt.Errorf("start liveness tracker: %w", err)
	}
	o.handlersMu.Lock()
	o.handlersClosed = false
	o.handlersMu.Unlock()
	o.messenger.start()
	o.registrySub = o.registry.Subscribe(o.handleRegistryEvent)
	o.refreshAgentCounts()
	o.started = true

	o.logger.Info("orchestrator started",
		zap.String("core_agent_id", o.config.CoreAgentID),
		zap.Float64("quality_threshold", o.config.QualityThreshold),
	)
	return nil
}

// Stop stops heartbeats, liveness tracking and served agents, then waits for
// in-flight handlers.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	served := make([]string, 0, len(o.served))
	for subID := range o.served {
		served = append(served, subID)
		delete(o.served, subID)
	}
	registrySub := o.registrySub
	o.registrySub = ""
	o.started = false
	o.mu.Unlock()

	for _, subID := range served {
		o.channel.Unsubscribe(subID)
	}
	if registrySub != "" {
		o.registry.Unsubscribe(registrySub)
	}
	o.discovery.Close()
	o.liveness.Stop()
	o.messenger.stop()
	o.cancel()

	o.handlersMu.Lock()
	o.handlersClosed = true
	o.handlersMu.Unlock()
	o.handlers.Wait()

	if o.ownsChannel {
		if err := o.channel.Close(); err != nil {
			o.logger.Warn("channel close failed", zap.Error(err))
		}
	}
	o.logger.Info("orchestrator stopped")
}

// Config returns the orchestrator configuration.
func (o *Orchestrator) Config() Config { return o.config }

// Registry returns the injected agent registry.
func (o *Orchestrator) Registry() *discovery.AgentRegistry { return o.registry }

// Channel returns the broadcast channel.
func (o *Orchestrator) Channel() discovery.BroadcastChannel { return o.channel }

// Liveness returns the liveness tracker.
func (o *Orchestrator) Liveness() *discovery.LivenessTracker { return o.liveness }

// Discovery returns the discovery service.
func (o *Orchestrator) Discovery() *discovery.DiscoveryService { return o.discovery }

// Planner returns the coordination planner.
func (o *Orchestrator) Planner() *coordination.CoordinationPlanner { return o.planner }

// Sessions returns the session manager.
func (o *Orchestrator) Sessions() *SessionManager { return o.sessions }

// RegisterAgent adds or replaces an agent registration.
func (o *Orchestrator) RegisterAgent(reg discovery.AgentRegistration) error {
	return o.registry.Register(reg)
}

// UnregisterAgent removes an agent and stops its heartbeat.
func (o *Orchestrator) UnregisterAgent(ctx context.Context, agentID string) bool {
	if !o.registry.Unregister(agentID) {
		return false
	}
	if o.discovery.HeartbeatRunning(agentID) {
		if err := o.discovery.Shutdown(ctx, agentID); err != nil {
			o.logger.Warn("shutdown notice not sent", zap.String("agent_id", agentID), zap.Error(err))
		}
	}
	return true
}

// DiscoverAgents lists every known agent except the core agent.
func (o *Orchestrator) DiscoverAgents(ctx context.Context) []discovery.AgentSummary {
	return o.discovery.DiscoverAgents(ctx)
}

// QueryCapabilities searches registered agents by capability.
func (o *Orchestrator) QueryCapabilities(ctx context.Context, query string, filters coordination.QueryFilters) *coordination.CapabilityQueryResult {
	return o.planner.QueryCapabilities(ctx, query, filters)
}

// ServeAgent answers agent messages addressed to agentID with handler until
// StopServing or Stop. It returns the serving id.
func (o *Orchestrator) ServeAgent(agentID string, handler AgentHandler) string {
	subID := o.messenger.serve(o.ctx, agentID, handler, o.config.MessageTimeout, (*handlerGate)(o))

	o.mu.Lock()
	o.served[subID] = agentID
	o.mu.Unlock()

	o.logger.Debug("serving agent", zap.String("agent_id", agentID))
	return subID
}

// handlerGate tracks served handlers on the orchestrator's wait group.
type handlerGate Orchestrator

func (g *handlerGate) begin() bool {
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()
	if g.handlersClosed {
		return false
	}
	g.handlers.Add(1)
	return true
}

func (g *handlerGate) done() { g.handlers.Done() }

// StopServing stops a handler installed by ServeAgent.
func (o *Orchestrator) StopServing(servingID string) {
	o.mu.Lock()
	_, ok := o.served[servingID]
	delete(o.served, servingID)
	o.mu.Unlock()
	if ok {
		o.channel.Unsubscribe(servingID)
	}
}

// =============================================================================
// Coordination
// =============================================================================

// CoordinationOptions tunes a single coordination request.
type CoordinationOptions struct {
	// RequiredCapabilities overrides classification of the task when set.
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	// TargetQuality overrides Config.TargetQuality when positive.
	TargetQuality float64 `json:"target_quality,omitempty"`
}

// CoordinationResult is the outcome of CoordinateAgentsForTask.
type CoordinationResult struct {
	SessionID           string                         `json:"session_id"`
	Success             bool                           `json:"success"`
	ParticipatingAgents []string                       `json:"participating_agents"`
	QualityScore        float64                        `json:"quality_score"`
	ExecutionTimeMs     int64                          `json:"execution_time_ms"`
	Result              string                         `json:"result"`
	ErrorCode           types.ErrorCode                `json:"error_code,omitempty"`
	Plan                *coordination.CoordinationPlan `json:"plan,omitempty"`
	Steps               []StepResult                   `json:"steps,omitempty"`
}

// CoordinateAgentsForTask plans and executes task in a new collaboration
// session. Planning and execution failures are reported in the result with
// a zero quality score; they are never returned as errors.
func (o *Orchestrator) CoordinateAgentsForTask(ctx context.Context, task string, taskContext map[string]any, opts CoordinationOptions) *CoordinationResult {
	start := time.Now()
	ctx, span := tracer().Start(ctx, "orchestrator.coordinate")
	defer span.End()

	session := o.sessions.Create(task)
	ctx = types.WithSessionID(ctx, session.SessionID)
	span.SetAttributes(attribute.String("session_id", session.SessionID))

	result := &CoordinationResult{
		SessionID:           session.SessionID,
		ParticipatingAgents: []string{},
	}
	target := opts.TargetQuality
	if target <= 0 {
		target = o.config.TargetQuality
	}

	plan, err := o.planner.CoordinateAgents(ctx, task, opts.RequiredCapabilities, taskContext)
	if err != nil {
		return o.fail(span, result, start, err)
	}
	result.Plan = plan
	result.ParticipatingAgents = plan.AgentIDs()
	o.sessions.Join(session.SessionID, result.ParticipatingAgents...)

	responses := make([]string, 0, len(plan.ExecutionOrder))
	var qualitySum float64
	for _, step := range plan.ExecutionOrder {
		if err := ctx.Err(); err != nil {
			return o.fail(span, result, start, types.NewError(types.ErrCoordinationExecutionFailure,
				fmt.Sprintf("cancelled before step %d", step.Step)).WithCause(err))
		}

		res, err := o.executor.ExecuteStep(ctx, StepRequest{
			SessionID: session.SessionID,
			Task:      task,
			Step:      step,
			Context:   plan.Context,
		})
		if res != nil {
			o.sessions.Record(session.SessionID, res.Messages...)
		} else {
			o.sessions.Touch(session.SessionID)
		}
		if err != nil {
			o.logger.Warn("plan step failed",
				zap.String("session_id", session.SessionID),
				zap.Int("step", step.Step),
				zap.String("agent_id", step.AgentID),
				zap.Error(err),
			)
			o.recorder.RecordMessage(string(a2a.KindTaskDelegation), false, stepDuration(res))
			return o.fail(span, result, start, types.NewError(types.ErrCoordinationExecutionFailure,
				fmt.Sprintf("step %d (%s) failed on %s", step.Step, step.Capability, step.AgentID)).WithCause(err))
		}
		if res == nil {
			res = &StepResult{Step: step.Step, AgentID: step.AgentID, Capability: step.Capability, Quality: step.Quality}
		}
		o.recorder.RecordMessage(string(a2a.KindTaskDelegation), true, res.Duration)

		result.Steps = append(result.Steps, *res)
		qualitySum += res.Quality
		if res.Response != "" {
			responses = append(responses, res.Response)
		}
	}

	if n := len(result.Steps); n > 0 {
		result.QualityScore = qualitySum / float64(n)
	}
	result.Success = result.QualityScore >= target
	result.Result = strings.Join(responses, "\n\n")
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	o.sessions.Finish(session.SessionID, result.QualityScore, result.Success)
	o.recorder.RecordCoordination(result.Success, result.QualityScore, time.Since(start))

	span.SetAttributes(
		attribute.Float64("quality_score", result.QualityScore),
		attribute.Bool("success", result.Success),
	)
	o.logger.Info("coordination finished",
		zap.String("session_id", session.SessionID),
		zap.Strings("agents", result.ParticipatingAgents),
		zap.Float64("quality_score", result.QualityScore),
		zap.Bool("success", result.Success),
		zap.Int64("execution_time_ms", result.ExecutionTimeMs),
	)
	return result
}

func (o *Orchestrator) fail(span trace.Span, result *CoordinationResult, start time.Time, err error) *CoordinationResult {
	reason := failureReason(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)

	result.Success = false
	result.QualityScore = 0
	result.Result = "Coordination failed: " + reason
	result.ErrorCode = types.GetErrorCode(err)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	o.sessions.Finish(result.SessionID, 0, false)
	o.recorder.RecordCoordination(false, 0, time.Since(start))
	o.logger.Warn("coordination failed",
		zap.String("session_id", result.SessionID),
		zap.String("reason", reason),
	)
	return result
}

func failureReason(err error) string {
	if e, ok := types.AsError(err); ok {
		if e.Cause != nil {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
	return err.Error()
}

func stepDuration(res *StepResult) time.Duration {
	if res == nil {
		return 0
	}
	return res.Duration
}

// =============================================================================
// Agent messaging
// =============================================================================

// MessageRequest addresses a message between two agent types.
type MessageRequest struct {
	SourceType string          `json:"source_type"`
	TargetType string          `json:"target_type"`
	Content    string          `json:"content"`
	Context    map[string]any  `json:"context,omitempty"`
	Kind       a2a.MessageKind `json:"kind,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
}

// MessageResult is the outcome of SendAgentMessage.
type MessageResult struct {
	Success         bool            `json:"success"`
	Response        string          `json:"response"`
	MessageID       string          `json:"message_id,omitempty"`
	SourceAgent     string          `json:"source_agent,omitempty"`
	TargetAgent     string          `json:"target_agent,omitempty"`
	RoundTripMs     int64           `json:"round_trip_ms"`
	QualityScore    float64         `json:"quality_score"`
	ConfidenceLevel float64         `json:"confidence_level"`
	ErrorCode       types.ErrorCode `json:"error_code,omitempty"`
}

// SendAgentMessage resolves both agent types to the first registered agent of
// that type, delivers the message and waits for the reply. A missing agent
// fails fast with "Agent not found: <type>", checking the source first.
func (o *Orchestrator) SendAgentMessage(ctx context.Context, req MessageRequest) *MessageResult {
	ctx, span := tracer().Start(ctx, "orchestrator.message")
	defer span.End()

	kind := req.Kind
	if kind == "" {
		kind = a2a.KindCoordinationRequest
	}
	span.SetAttributes(
		attribute.String("source_type", req.SourceType),
		attribute.String("target_type", req.TargetType),
		attribute.String("kind", string(kind)),
	)

	source, ok := o.findByType(req.SourceType)
	if !ok {
		return o.messageFailed(span, types.NewAgentNotFoundError(req.SourceType), kind)
	}
	target, ok := o.findByType(req.TargetType)
	if !ok {
		return o.messageFailed(span, types.NewAgentNotFoundError(req.TargetType), kind)
	}

	msg := a2a.NewMessage(kind, source.AgentID, target.AgentID, req.Content)
	msg.SessionID = req.SessionID
	msg.Context = req.Context
	msg.Metadata.QualityScore = source.QualityScore

	reply, rtt, err := o.messenger.request(ctx, msg, o.config.MessageTimeout)
	if req.SessionID != "" {
		o.sessions.Record(req.SessionID, msg, reply)
	}
	if err != nil {
		result := o.messageFailed(span, err, kind)
		result.MessageID = msg.ID
		result.SourceAgent = source.AgentID
		result.TargetAgent = target.AgentID
		result.RoundTripMs = rtt.Milliseconds()
		return result
	}

	quality := reply.Metadata.QualityScore
	if quality <= 0 {
		quality = target.QualityScore
	}
	confidence := reply.Metadata.ConfidenceLevel
	if confidence <= 0 {
		confidence = quality / 100
	}
	o.recorder.RecordMessage(string(kind), true, rtt)

	o.logger.Debug("agent message answered",
		zap.String("message_id", msg.ID),
		zap.String("source", source.AgentID),
		zap.String("target", target.AgentID),
		zap.Duration("round_trip", rtt),
	)
	return &MessageResult{
		Success:         true,
		Response:        reply.Content,
		MessageID:       msg.ID,
		SourceAgent:     source.AgentID,
		TargetAgent:     target.AgentID,
		RoundTripMs:     rtt.Milliseconds(),
		QualityScore:    quality,
		ConfidenceLevel: confidence,
	}
}

func (o *Orchestrator) messageFailed(span trace.Span, err error, kind a2a.MessageKind) *MessageResult {
	reason := failureReason(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	o.recorder.RecordMessage(string(kind), false, 0)
	o.logger.Warn("agent message failed", zap.String("reason", reason))

	return &MessageResult{
		Success:   false,
		Response:  reason,
		ErrorCode: types.GetErrorCode(err),
	}
}

// findByType returns the first registered agent of agentType in id order.
func (o *Orchestrator) findByType(agentType string) (discovery.AgentRegistration, bool) {
	matches := o.registry.Filter(func(r discovery.AgentRegistration) bool {
		return r.AgentType == agentType
	})
	if len(matches) == 0 {
		return discovery.AgentRegistration{}, false
	}
	return matches[0], true
}

// =============================================================================
// Registry metrics
// =============================================================================

func (o *Orchestrator) handleRegistryEvent(event *discovery.RegistryEvent) {
	o.recorder.RecordRegistryEvent(string(event.Type), event.Reason)
	o.refreshAgentCounts()
}

func (o *Orchestrator) refreshAgentCounts() {
	o.countsMu.Lock()
	defer o.countsMu.Unlock()

	online, offline := 0, 0
	for _, reg := range o.registry.All() {
		if reg.Status == discovery.AgentStatusOnline {
			online++
		} else {
			offline++
		}
	}
	o.recorder.SetAgentCounts(online, offline)
}
