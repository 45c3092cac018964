package runtime

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/nexus/internal/coordinator"
	"github.com/haasonsaas/nexus/internal/domain"
	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/internal/eventstore"
	"github.com/haasonsaas/nexus/internal/missions"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/queue"
	ctxpack "github.com/haasonsaas/nexus/internal/runtime/context"
	"github.com/haasonsaas/nexus/internal/scheduler"
	"github.com/haasonsaas/nexus/internal/stall"
)

// DefaultMaxIterations is the max_iterations default from spec §6.
const DefaultMaxIterations = 50

// Config configures the Runtime.
type Config struct {
	MaxIterations int
	DefaultModel  string
	SystemPrompt  string
	MaxTokens     int
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	return c
}

// Runtime is the Agent Loop Runtime (spec §4.5): one logical worker per
// running mission, driving dequeue -> invoke model -> emit deltas/tool
// calls -> await tool results -> emit assistant message -> next turn or
// idle.
type Runtime struct {
	store    eventstore.Store
	bus      *eventbus.Bus
	registry *missions.Registry
	queue    *queue.Queue
	coord    *coordinator.Coordinator
	sched    *scheduler.Scheduler
	stalls   *stall.Detector
	provider LLMProvider
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	cfg      Config

	packer *ctxpack.Packer

	mu       sync.Mutex
	workers  map[string]*worker
	starters map[string]scheduler.Starter
	history  map[string][]*Message
}

type worker struct {
	missionID string
	wake      chan struct{}
	cancel    chan string
	done      chan struct{}

	mu          sync.Mutex
	currentTool string // name of the tool_call currently awaiting a result, if any
}

func (w *worker) setCurrentTool(name string) {
	w.mu.Lock()
	w.currentTool = name
	w.mu.Unlock()
}

func (w *worker) getCurrentTool() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentTool
}

// New constructs a Runtime wired to every other core component.
func New(
	store eventstore.Store,
	bus *eventbus.Bus,
	registry *missions.Registry,
	q *queue.Queue,
	coord *coordinator.Coordinator,
	sched *scheduler.Scheduler,
	stalls *stall.Detector,
	provider LLMProvider,
	cfg Config,
	logger *observability.Logger,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
) *Runtime {
	return &Runtime{
		store:    store,
		bus:      bus,
		registry: registry,
		queue:    q,
		coord:    coord,
		sched:    sched,
		stalls:   stalls,
		provider: provider,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		packer:   ctxpack.NewPacker(ctxpack.DefaultPackOptions()),
		workers:  make(map[string]*worker),
		starters: make(map[string]scheduler.Starter),
		history:  make(map[string][]*Message),
	}
}

// PostMessage enqueues content for missionID and, per spec §6, ensures the
// mission's worker is running or scheduled. Returns the QueuedMessage.
func (rt *Runtime) PostMessage(ctx context.Context, missionID, content, agent string) (domain.QueuedMessage, error) {
	if strings.TrimSpace(content) == "" {
		return domain.QueuedMessage{}, domain.NewError(domain.ErrProtocol, "message content must not be empty")
	}
	if _, err := rt.registry.Get(missionID); err != nil {
		return domain.QueuedMessage{}, err
	}
	msg := rt.queue.Enqueue(missionID, content, agent)
	rt.ensureDriven(ctx, missionID)
	return msg, nil
}

// Resume transitions missionID back to active via the Mission Registry (spec
// §4.3 resume). Unless skipMessage is set, and only when the transition
// actually happened (not a no-op on an already-active mission), it enqueues a
// synthetic "MISSION RESUMED" message via the Message Queue so the worker's
// next TakeNext picks it up and runTurn emits/publishes the user_message
// itself — the same append-then-publish path every other message takes
// (spec §4.2's commit contract, §4.3's "so the agent loop has a turn
// trigger"). It then ensures the worker is running or scheduled.
func (rt *Runtime) Resume(ctx context.Context, missionID string, skipMessage bool) (domain.Mission, error) {
	m, transitioned, err := rt.registry.Resume(ctx, missionID)
	if err != nil {
		return domain.Mission{}, err
	}
	if transitioned && !skipMessage {
		rt.queue.Enqueue(missionID, "MISSION RESUMED", "")
	}
	rt.ensureDriven(ctx, missionID)
	return m, nil
}

// PostToolResult releases the Tool-Call Coordinator waiter for toolCallID
// (spec §6 "Post tool result" / §4.6). The tool_result event itself is
// appended by the Agent Loop worker that was suspended on this waiter, not
// here; if no waiter is registered (e.g. a duplicate POST), this returns
// domain.ErrNotFound and nothing is appended, preserving the "at most one
// tool_result per tool_call" invariant (spec §8 invariant 2).
func (rt *Runtime) PostToolResult(toolCallID, toolName, content string, isError bool) error {
	return rt.coord.Resolve(toolCallID, coordinator.Result{Content: content, IsError: isError})
}

// ensureDriven makes sure missionID has a worker running or queued with the
// Parallel Scheduler (spec §4.7), and wakes an already-running worker.
func (rt *Runtime) ensureDriven(ctx context.Context, missionID string) {
	rt.mu.Lock()
	w, running := rt.workers[missionID]
	rt.mu.Unlock()
	if running {
		select {
		case w.wake <- struct{}{}:
		default:
		}
		return
	}

	start := func(startCtx context.Context, id string) {
		rt.launch(startCtx, id)
	}
	rt.mu.Lock()
	rt.starters[missionID] = start
	rt.mu.Unlock()

	if rt.sched.Admit(ctx, missionID, start) {
		rt.launch(ctx, missionID)
	}
}

func (rt *Runtime) launch(ctx context.Context, missionID string) {
	rt.mu.Lock()
	if _, ok := rt.workers[missionID]; ok {
		rt.mu.Unlock()
		return
	}
	w := &worker{
		missionID: missionID,
		wake:      make(chan struct{}, 1),
		cancel:    make(chan string, 1),
		done:      make(chan struct{}),
	}
	rt.workers[missionID] = w
	rt.mu.Unlock()

	rt.sched.SetWorkerState(missionID, scheduler.StateRunning)
	if rt.stalls != nil {
		rt.stalls.Track(missionID)
	}
	go rt.run(context.Background(), w)
}

// Cancel interrupts missionID's in-flight turn (if any), resolves every
// outstanding Tool Call Waiter as cancelled, and transitions the mission to
// interrupted, per spec §4.5 and §5.
func (rt *Runtime) Cancel(ctx context.Context, missionID string) error {
	m, err := rt.registry.Get(missionID)
	if err != nil {
		return err
	}
	if m.Status != domain.MissionActive {
		return nil // cancel of an already-terminal mission is a no-op (spec §8)
	}

	rt.mu.Lock()
	w, running := rt.workers[missionID]
	rt.mu.Unlock()
	if running {
		select {
		case w.cancel <- "user cancel":
		default:
		}
		<-w.done
	} else {
		rt.coord.CancelAllFor(ctx, missionID, "user cancel")
		if _, err := rt.registry.SetStatus(ctx, missionID, domain.MissionInterrupted, "user cancel"); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) release(missionID string) {
	rt.mu.Lock()
	delete(rt.workers, missionID)
	starters := make(map[string]scheduler.Starter, len(rt.starters))
	for k, v := range rt.starters {
		starters[k] = v
	}
	delete(rt.starters, missionID)
	rt.mu.Unlock()

	if rt.stalls != nil {
		rt.stalls.Untrack(missionID)
	}
	rt.sched.Release(context.Background(), missionID, starters)
}

// run is the per-mission worker loop: Idle -> RunningTurn -> ... -> Idle,
// per the state machine in spec §4.5, until the mission leaves active
// status or is cancelled.
func (rt *Runtime) run(ctx context.Context, w *worker) {
	defer close(w.done)
	defer rt.release(w.missionID)

	for {
		m, err := rt.registry.Get(w.missionID)
		if err != nil || m.Status != domain.MissionActive {
			return
		}

		msg, ok := rt.queue.TakeNext(w.missionID)
		if !ok {
			select {
			case <-w.wake:
				continue
			case reason := <-w.cancel:
				rt.handleCancel(ctx, w.missionID, reason)
				return
			case <-ctx.Done():
				rt.handleCancel(ctx, w.missionID, "shutdown")
				return
			}
		}

		rt.runTurn(ctx, w, msg)
	}
}

func (rt *Runtime) handleCancel(ctx context.Context, missionID, reason string) {
	rt.coord.CancelAllFor(ctx, missionID, reason)
	rt.registry.SetStatus(ctx, missionID, domain.MissionInterrupted, reason)
}

func (rt *Runtime) appendAndPublish(ctx context.Context, missionID string, draft domain.EventDraft) (domain.StoredEvent, error) {
	if draft.EventID == "" {
		draft.EventID = uuid.NewString()
	}
	stored, err := rt.store.Append(ctx, missionID, draft)
	if err != nil {
		return domain.StoredEvent{}, domain.WrapError(domain.ErrStorage, "append "+string(draft.EventType), err)
	}
	if rt.bus != nil {
		rt.bus.Publish(stored)
	}
	if rt.stalls != nil {
		rt.stalls.RecordEvent(missionID, stored.Timestamp)
	}
	if rt.metrics != nil {
		rt.metrics.EventAppendCounter.WithLabelValues(string(draft.EventType)).Inc()
		rt.metrics.EventSequenceHighWater.WithLabelValues(missionID).Set(float64(stored.Sequence))
	}
	return stored, nil
}

// runTurn drives one full turn: user_message -> model invocation(s),
// interleaved tool calls -> assistant_message, per spec §4.5 steps 2-6.
func (rt *Runtime) runTurn(ctx context.Context, w *worker, msg domain.QueuedMessage) {
	missionID := w.missionID

	if rt.tracer != nil {
		var span trace.Span
		ctx, span = rt.tracer.TraceMissionTurn(ctx, missionID, len(rt.historyAsCompletion(missionID)))
		defer span.End()
	}

	if _, err := rt.appendAndPublish(ctx, missionID, domain.EventDraft{
		EventType: domain.EventUserMessage,
		Content:   msg.Content,
		Metadata:  map[string]any{"queued_message_id": msg.ID, "agent": msg.Agent},
	}); err != nil {
		rt.fail(ctx, missionID, "storage", err)
		return
	}
	rt.appendHistory(missionID, &Message{MissionID: missionID, Role: RoleUser, Content: msg.Content})

	var thought strings.Builder
	thoughtOpen := false

	finalizeThought := func() {
		if thoughtOpen {
			rt.appendAndPublish(ctx, missionID, domain.EventDraft{
				EventType: domain.EventThinking,
				Content:   thought.String(),
				Metadata:  map[string]any{"done": true},
			})
			thought.Reset()
			thoughtOpen = false
		}
	}

	for iteration := 0; ; iteration++ {
		if iteration >= rt.cfg.MaxIterations {
			finalizeThought()
			rt.appendAndPublish(ctx, missionID, domain.EventDraft{
				EventType: domain.EventAssistantMessage,
				Content:   "iteration limit",
				Metadata:  map[string]any{"success": false},
			})
			rt.registry.SetStatus(ctx, missionID, domain.MissionBlocked, "iteration limit")
			return
		}

		req := &CompletionRequest{
			Model:     rt.modelFor(missionID),
			System:    rt.cfg.SystemPrompt,
			Messages:  rt.historyAsCompletion(missionID),
			MaxTokens: rt.cfg.MaxTokens,
		}

		var modelSpan trace.Span
		completionCtx := ctx
		if rt.tracer != nil {
			completionCtx, modelSpan = rt.tracer.TraceModelCompletion(ctx, rt.provider.Name(), req.Model)
		}
		chunks, err := rt.provider.Complete(completionCtx, req)
		if err != nil {
			if modelSpan != nil {
				rt.tracer.RecordError(modelSpan, err)
				modelSpan.End()
			}
			finalizeThought()
			rt.fail(ctx, missionID, "provider", err)
			return
		}

		var toolCall *ToolCall
		var assistantText strings.Builder
		var usage *Usage
		success := true

	consume:
		for {
			select {
			case reason := <-w.cancel:
				if modelSpan != nil {
					modelSpan.End()
				}
				finalizeThought()
				rt.cancelMidTurn(ctx, missionID, reason)
				return
			case chunk, ok := <-chunks:
				if !ok {
					break consume
				}
				if chunk.Error != nil {
					success = false
					rt.appendAndPublish(ctx, missionID, domain.EventDraft{
						EventType: domain.EventError,
						Content:   chunk.Error.Error(),
						Metadata:  map[string]any{"resumable": true},
					})
					break consume
				}
				if chunk.Thinking != "" {
					merged, restart := mergeDelta(thought.String(), chunk.Thinking)
					if restart {
						finalizeThought()
						thought.Reset()
					}
					thought.WriteString(merged[len(thought.String()):])
					thoughtOpen = true
					rt.appendAndPublish(ctx, missionID, domain.EventDraft{
						EventType: domain.EventThinking,
						Content:   thought.String(),
						Metadata:  map[string]any{"done": false},
					})
				}
				if chunk.Text != "" {
					assistantText.WriteString(chunk.Text)
					rt.appendAndPublish(ctx, missionID, domain.EventDraft{
						EventType: domain.EventTextDelta,
						Content:   assistantText.String(),
					})
				}
				if chunk.ToolCall != nil {
					toolCall = chunk.ToolCall
				}
				if chunk.Usage != nil {
					usage = chunk.Usage
				}
				if chunk.Done {
					break consume
				}
			case <-ctx.Done():
				if modelSpan != nil {
					modelSpan.End()
				}
				finalizeThought()
				rt.cancelMidTurn(ctx, missionID, "shutdown")
				return
			}
		}
		if modelSpan != nil {
			modelSpan.End()
		}

		if toolCall != nil {
			finalizeThought()
			if !rt.runToolCall(ctx, w, missionID, toolCall) {
				return // cancelled mid-tool
			}
			continue
		}

		finalizeThought()
		rt.appendAndPublish(ctx, missionID, domain.EventDraft{
			EventType: domain.EventAssistantMessage,
			Content:   assistantText.String(),
			Metadata:  costMetadata(usage, success, req.Model),
		})
		rt.appendHistory(missionID, &Message{MissionID: missionID, Role: RoleAssistant, Content: assistantText.String()})
		if !success {
			rt.registry.SetStatus(ctx, missionID, domain.MissionFailed, "model error")
		}
		return
	}
}

// runToolCall emits tool_call, suspends on the Tool-Call Coordinator until a
// result or cancellation arrives, and emits tool_result. Returns false if
// the turn was cancelled mid-tool-call.
func (rt *Runtime) runToolCall(ctx context.Context, w *worker, missionID string, tc *ToolCall) bool {
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	waiter := rt.coord.Register(tc.ID, missionID)
	rt.appendAndPublish(ctx, missionID, domain.EventDraft{
		EventType:  domain.EventToolCall,
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Content:    string(tc.Input),
	})

	var toolSpan trace.Span
	if rt.tracer != nil {
		_, toolSpan = rt.tracer.TraceToolCall(ctx, tc.ID, tc.Name)
	}
	endSpan := func(err error) {
		if toolSpan == nil {
			return
		}
		if err != nil {
			rt.tracer.RecordError(toolSpan, err)
		}
		toolSpan.End()
	}

	rt.sched.SetWorkerState(missionID, scheduler.StateWaitingForTool)
	w.setCurrentTool(tc.Name)
	defer rt.sched.SetWorkerState(missionID, scheduler.StateRunning)
	defer w.setCurrentTool("")

	select {
	case result := <-waiter.Done():
		if result.Cancelled {
			rt.appendAndPublish(ctx, missionID, domain.EventDraft{
				EventType:  domain.EventToolResult,
				ToolCallID: tc.ID,
				Metadata:   map[string]any{"status": "cancelled"},
			})
			rt.registry.SetStatus(ctx, missionID, domain.MissionInterrupted, result.Reason)
			endSpan(domain.NewError(domain.ErrCancelled, result.Reason))
			return false
		}
		rt.appendAndPublish(ctx, missionID, domain.EventDraft{
			EventType:  domain.EventToolResult,
			ToolCallID: tc.ID,
			Content:    result.Content,
			Metadata:   map[string]any{"is_error": result.IsError},
		})
		rt.appendHistory(missionID, &Message{
			MissionID:   missionID,
			Role:        RoleTool,
			ToolResults: []ToolResult{{ToolCallID: tc.ID, Content: result.Content, IsError: result.IsError}},
		})
		endSpan(nil)
		return true
	case reason := <-w.cancel:
		rt.coord.Cancel(tc.ID, reason)
		rt.appendAndPublish(ctx, missionID, domain.EventDraft{
			EventType:  domain.EventToolResult,
			ToolCallID: tc.ID,
			Metadata:   map[string]any{"status": "cancelled"},
		})
		rt.registry.SetStatus(ctx, missionID, domain.MissionInterrupted, reason)
		endSpan(domain.NewError(domain.ErrCancelled, reason))
		return false
	case <-ctx.Done():
		rt.coord.Cancel(tc.ID, "shutdown")
		rt.appendAndPublish(ctx, missionID, domain.EventDraft{
			EventType:  domain.EventToolResult,
			ToolCallID: tc.ID,
			Metadata:   map[string]any{"status": "cancelled"},
		})
		rt.registry.SetStatus(ctx, missionID, domain.MissionInterrupted, "shutdown")
		endSpan(ctx.Err())
		return false
	}
}

func (rt *Runtime) cancelMidTurn(ctx context.Context, missionID, reason string) {
	rt.coord.CancelAllFor(ctx, missionID, reason)
	rt.appendAndPublish(ctx, missionID, domain.EventDraft{
		EventType: domain.EventAssistantMessage,
		Content:   "cancelled",
		Metadata:  map[string]any{"success": false},
	})
	rt.registry.SetStatus(ctx, missionID, domain.MissionInterrupted, reason)
}

func (rt *Runtime) fail(ctx context.Context, missionID, reason string, err error) {
	rt.appendAndPublish(ctx, missionID, domain.EventDraft{
		EventType: domain.EventError,
		Content:   err.Error(),
		Metadata:  map[string]any{"resumable": true, "reason": reason},
	})
	rt.registry.SetStatus(ctx, missionID, domain.MissionFailed, reason)
}

func (rt *Runtime) modelFor(missionID string) string {
	m, err := rt.registry.Get(missionID)
	if err == nil && m.ModelOverride != "" {
		return m.ModelOverride
	}
	return rt.cfg.DefaultModel
}

func (rt *Runtime) appendHistory(missionID string, msg *Message) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.history[missionID] = append(rt.history[missionID], msg)
}

func (rt *Runtime) historyAsCompletion(missionID string) []CompletionMessage {
	rt.mu.Lock()
	hist := append([]*Message(nil), rt.history[missionID]...)
	rt.mu.Unlock()

	packed, err := rt.packer.Pack(hist, nil, nil)
	if err != nil {
		packed = hist
	}

	out := make([]CompletionMessage, 0, len(packed))
	for _, m := range packed {
		out = append(out, CompletionMessage{
			Role:        string(m.Role),
			Content:     m.Content,
			ToolResults: m.ToolResults,
		})
	}
	return out
}

// mergeDelta implements the thinking-delta merging rule from spec §4.5: a
// new delta extends the current thought if one is a prefix of the other;
// otherwise the current thought must be finalized and a new one begun.
func mergeDelta(current, next string) (merged string, restart bool) {
	if current == "" {
		return next, false
	}
	if strings.HasPrefix(next, current) {
		return next, false
	}
	if strings.HasPrefix(current, next) {
		return current, false
	}
	return next, true
}

// costMetadata builds the assistant_message metadata bag described in spec
// §4.5: model name, cost_cents and cost_source (actual/estimated/unknown).
// Providers in this core do not report billed cost, so cost_source is always
// "unknown" per spec §9 open question 1 (cost-source assignment is a
// provider-capability detail, not a core contract).
func costMetadata(usage *Usage, success bool, model string) map[string]any {
	meta := map[string]any{
		"success":     success,
		"cost_cents":  0,
		"cost_source": "unknown",
		"model":       model,
	}
	if usage != nil {
		meta["prompt_tokens"] = usage.PromptTokens
		meta["completion_tokens"] = usage.CompletionTokens
	}
	return meta
}

// Snapshot reports the Parallel Scheduler view of missionID for
// running_snapshot (spec §4.7).
func (rt *Runtime) Snapshot(missionID string) (scheduler.Snapshot, bool) {
	state, ok := rt.sched.State(missionID)
	if !ok {
		return scheduler.Snapshot{}, false
	}
	m, err := rt.registry.Get(missionID)
	if err != nil {
		return scheduler.Snapshot{}, false
	}
	seconds := float64(0)
	if rt.stalls != nil {
		seconds = rt.stalls.SecondsSinceActivity(missionID)
	}

	rt.mu.Lock()
	historyLen := len(rt.history[missionID])
	w, hasWorker := rt.workers[missionID]
	rt.mu.Unlock()

	var currentActivity string
	if hasWorker && state == scheduler.StateWaitingForTool {
		currentActivity = "waiting_for_tool:" + w.getCurrentTool()
	}

	return scheduler.Snapshot{
		MissionID:            missionID,
		State:                state,
		QueueLen:             rt.queue.Len(missionID),
		HistoryLen:           historyLen,
		SecondsSinceActivity: seconds,
		CurrentActivity:      currentActivity,
		Title:                m.Title,
	}, true
}

// RunningSnapshot reports the Parallel Scheduler view across every mission
// the registry knows about (spec §4.7 running_snapshot).
func (rt *Runtime) RunningSnapshot() []scheduler.Snapshot {
	var out []scheduler.Snapshot
	for _, m := range rt.registry.List() {
		if snap, ok := rt.Snapshot(m.ID); ok {
			out = append(out, snap)
		}
	}
	return out
}

// Shutdown quiesces every running worker, interrupting its mission. It
// blocks until every worker has exited; it does not flush the Event Store.
func (rt *Runtime) Shutdown(ctx context.Context) {
	rt.mu.Lock()
	ws := make([]*worker, 0, len(rt.workers))
	for _, w := range rt.workers {
		ws = append(ws, w)
	}
	rt.mu.Unlock()

	for _, w := range ws {
		select {
		case w.cancel <- "shutdown":
		default:
		}
	}
	for _, w := range ws {
		select {
		case <-w.done:
		case <-ctx.Done():
			return
		}
	}
}

