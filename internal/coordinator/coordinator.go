// Package coordinator implements the Tool-Call Coordinator (spec §4.6): it
// correlates outbound tool_call events with inbound tool_result submissions
// by id, and exposes the suspend/resume primitive the Agent Loop Runtime
// blocks on while a tool executes.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/internal/domain"
	"github.com/haasonsaas/nexus/internal/observability"
)

// Result is the outcome delivered to a waiting caller: either a tool result
// payload or a cancellation.
type Result struct {
	Content   string
	IsError   bool
	Cancelled bool
	Reason    string
}

// Waiter is the in-memory rendezvous created on tool_call emission and
// resolved on tool_result submission (or cancellation).
type Waiter struct {
	ToolCallID string
	MissionID  string
	CreatedAt  time.Time

	done   chan Result
	once   sync.Once
}

// Done returns the channel the Agent Loop Runtime blocks on.
func (w *Waiter) Done() <-chan Result { return w.done }

// Coordinator correlates tool_call_id -> Waiter. resolve and cancel are
// mutually exclusive: whichever fires first wins (spec §4.6 guarantee).
type Coordinator struct {
	logger  *observability.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	waiters map[string]*Waiter
}

// New constructs an empty Coordinator. logger/metrics may be nil.
func New(logger *observability.Logger, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		logger:  logger,
		metrics: metrics,
		waiters: make(map[string]*Waiter),
	}
}

// Register creates a Waiter for toolCallID. Callers must call this before
// the tool_call event is observable, so a result can never race ahead of the
// waiter existing.
func (c *Coordinator) Register(toolCallID, missionID string) *Waiter {
	w := &Waiter{
		ToolCallID: toolCallID,
		MissionID:  missionID,
		CreatedAt:  time.Now().UTC(),
		done:       make(chan Result, 1),
	}
	c.mu.Lock()
	c.waiters[toolCallID] = w
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.ToolCallOutstanding.Inc()
	}
	return w
}

// Resolve delivers result to the waiter registered for toolCallID. Returns
// domain.ErrNotFound if no waiter is registered (e.g. a duplicate POST); in
// that case Runtime.PostToolResult appends no tool_result event.
func (c *Coordinator) Resolve(toolCallID string, result Result) error {
	w := c.take(toolCallID)
	if w == nil {
		return domain.NewError(domain.ErrNotFound, "no waiter registered for tool_call "+toolCallID)
	}
	w.once.Do(func() {
		w.done <- result
		close(w.done)
	})
	if c.metrics != nil {
		c.metrics.ToolCallOutstanding.Dec()
		c.metrics.ToolCallDuration.WithLabelValues("resolved").Observe(time.Since(w.CreatedAt).Seconds())
	}
	return nil
}

// Cancel resolves toolCallID's waiter (if any) with a cancelled Result. A
// no-op if already resolved or unregistered.
func (c *Coordinator) Cancel(toolCallID, reason string) {
	w := c.take(toolCallID)
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.done <- Result{Cancelled: true, Reason: reason}
		close(w.done)
	})
	if c.metrics != nil {
		c.metrics.ToolCallOutstanding.Dec()
	}
}

// CancelAllFor cancels every outstanding waiter belonging to missionID, used
// when a mission is cancelled or moves to a terminal status mid-tool-call.
func (c *Coordinator) CancelAllFor(ctx context.Context, missionID, reason string) []string {
	c.mu.Lock()
	var ids []string
	for id, w := range c.waiters {
		if w.MissionID == missionID {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Cancel(id, reason)
	}
	if c.logger != nil && len(ids) > 0 {
		c.logger.Info(ctx, "cancelled outstanding tool waiters", "mission_id", missionID, "count", len(ids), "reason", reason)
	}
	return ids
}

func (c *Coordinator) take(toolCallID string) *Waiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.waiters[toolCallID]
	if !ok {
		return nil
	}
	delete(c.waiters, toolCallID)
	return w
}
