// Package scheduler implements the Parallel Scheduler (spec §4.7): it
// admits at most max_parallel_missions Agent Loop workers into a non-idle
// state simultaneously, queuing the rest in FIFO order of request.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/internal/observability"
)

// WorkerState mirrors the state values running_snapshot reports (spec §4.7).
type WorkerState string

const (
	StateQueued         WorkerState = "queued"
	StateRunning        WorkerState = "running"
	StateWaitingForTool WorkerState = "waiting_for_tool"
)

// Starter is invoked by the scheduler when a slot frees for a previously
// queued mission. Implementations (the Agent Loop Runtime) start the
// mission's worker; the scheduler does not drive the turn itself.
type Starter func(ctx context.Context, missionID string)

// Snapshot is one entry of running_snapshot (spec §4.7).
type Snapshot struct {
	MissionID            string      `json:"mission_id"`
	State                WorkerState `json:"state"`
	QueueLen             int         `json:"queue_len"`
	HistoryLen           int         `json:"history_len,omitempty"`
	SecondsSinceActivity float64     `json:"seconds_since_activity"`
	CurrentActivity      string      `json:"current_activity,omitempty"`
	Title                string      `json:"title,omitempty"`
	ExpectedDeliverables string      `json:"expected_deliverables,omitempty"`
}

type slot struct {
	state     WorkerState
	queuedAt  time.Time
	startedAt time.Time
}

// Scheduler bounds Agent Loop worker concurrency per spec §4.7.
type Scheduler struct {
	maxParallel int
	metrics     *observability.Metrics
	logger      *observability.Logger

	mu      sync.Mutex
	slots   map[string]*slot
	fifo    []string // mission ids waiting for a slot, in request order
	running int
}

// New constructs a Scheduler admitting at most maxParallel concurrent
// non-idle workers. maxParallel <= 0 means unbounded.
func New(maxParallel int, logger *observability.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		maxParallel: maxParallel,
		logger:      logger,
		metrics:     metrics,
		slots:       make(map[string]*slot),
	}
}

// Admit requests a slot for missionID. If capacity allows, it returns true
// and the caller should start the worker immediately. Otherwise the mission
// is recorded as queued, in FIFO order of request. start is not stored:
// when Release frees a slot it starts the next queued mission with the
// Starter that Release's own caller supplies for it.
func (s *Scheduler) Admit(ctx context.Context, missionID string, start Starter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[missionID]; ok {
		return false // already admitted or queued
	}

	if s.maxParallel <= 0 || s.running < s.maxParallel {
		s.running++
		s.slots[missionID] = &slot{state: StateRunning, startedAt: time.Now().UTC()}
		s.updateMetricsLocked()
		return true
	}

	s.slots[missionID] = &slot{state: StateQueued, queuedAt: time.Now().UTC()}
	s.fifo = append(s.fifo, missionID)
	s.updateMetricsLocked()
	return false
}

// Release frees missionID's slot. If another mission is queued, it is
// admitted and started via its registered Starter.
func (s *Scheduler) Release(ctx context.Context, missionID string, starters map[string]Starter) {
	s.mu.Lock()
	if sl, ok := s.slots[missionID]; ok && sl.state != StateQueued {
		s.running--
	}
	delete(s.slots, missionID)

	var next string
	for len(s.fifo) > 0 {
		candidate := s.fifo[0]
		s.fifo = s.fifo[1:]
		if _, ok := s.slots[candidate]; ok {
			next = candidate
			break
		}
	}
	if next != "" {
		s.running++
		s.slots[next] = &slot{state: StateRunning, startedAt: time.Now().UTC()}
	}
	s.updateMetricsLocked()
	s.mu.Unlock()

	if next != "" {
		if start, ok := starters[next]; ok && start != nil {
			start(ctx, next)
		}
	}
}

// SetWorkerState updates the reported state of an admitted mission's worker
// (e.g. running <-> waiting_for_tool).
func (s *Scheduler) SetWorkerState(missionID string, state WorkerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[missionID]; ok && sl.state != StateQueued {
		sl.state = state
	}
}

// State reports the current scheduler-level state of missionID, and whether
// it has a slot at all.
func (s *Scheduler) State(missionID string) (WorkerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[missionID]
	if !ok {
		return "", false
	}
	return sl.state, true
}

// RunningCount reports how many missions currently hold a running slot.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) updateMetricsLocked() {
	if s.metrics == nil {
		return
	}
	s.metrics.SchedulerRunning.Set(float64(s.running))
	s.metrics.SchedulerQueued.Set(float64(len(s.fifo)))
}
