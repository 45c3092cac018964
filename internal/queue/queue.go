// Package queue implements the per-mission FIFO message queue (spec §4.4):
// enqueue, remove, clear, list, and atomic take-on-turn-start.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/internal/domain"
	"github.com/haasonsaas/nexus/internal/observability"
)

// Queue is the shared Message Queue, one writer lock per mission per spec §5.
type Queue struct {
	metrics *observability.Metrics

	mu        sync.Mutex
	byMission map[string][]*domain.QueuedMessage
	byID      map[string]*domain.QueuedMessage
	locks     map[string]*sync.Mutex
}

// New constructs an empty Queue. metrics may be nil.
func New(metrics *observability.Metrics) *Queue {
	return &Queue{
		metrics:   metrics,
		byMission: make(map[string][]*domain.QueuedMessage),
		byID:      make(map[string]*domain.QueuedMessage),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (q *Queue) lockFor(missionID string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.locks[missionID]
	if !ok {
		l = &sync.Mutex{}
		q.locks[missionID] = l
	}
	return l
}

// Enqueue appends a new message to missionID's queue.
func (q *Queue) Enqueue(missionID, content, agent string) domain.QueuedMessage {
	l := q.lockFor(missionID)
	l.Lock()
	defer l.Unlock()

	msg := &domain.QueuedMessage{
		ID:         uuid.NewString(),
		MissionID:  missionID,
		Content:    content,
		Agent:      agent,
		EnqueuedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	q.byMission[missionID] = append(q.byMission[missionID], msg)
	q.byID[msg.ID] = msg
	depth := len(q.byMission[missionID])
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.QueueDepth.WithLabelValues(missionID).Set(float64(depth))
	}
	return *msg
}

// Remove deletes a single queued message by id, if it has not already been
// dequeued. Returns domain.ErrNotFound if msgID is unknown.
func (q *Queue) Remove(msgID string) error {
	q.mu.Lock()
	msg, ok := q.byID[msgID]
	q.mu.Unlock()
	if !ok {
		return domain.NewError(domain.ErrNotFound, "queued message "+msgID+" not found")
	}

	l := q.lockFor(msg.MissionID)
	l.Lock()
	defer l.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[msgID]; !ok {
		return domain.NewError(domain.ErrNotFound, "queued message "+msgID+" not found")
	}
	pending := q.byMission[msg.MissionID]
	for i, m := range pending {
		if m.ID == msgID {
			q.byMission[msg.MissionID] = append(pending[:i], pending[i+1:]...)
			break
		}
	}
	delete(q.byID, msgID)
	if q.metrics != nil {
		q.metrics.QueueDepth.WithLabelValues(msg.MissionID).Set(float64(len(q.byMission[msg.MissionID])))
	}
	return nil
}

// Clear empties missionID's queue and returns the count removed.
func (q *Queue) Clear(missionID string) int {
	l := q.lockFor(missionID)
	l.Lock()
	defer l.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.byMission[missionID]
	for _, m := range pending {
		delete(q.byID, m.ID)
	}
	delete(q.byMission, missionID)
	if q.metrics != nil {
		q.metrics.QueueDepth.WithLabelValues(missionID).Set(0)
	}
	return len(pending)
}

// List returns the pending messages for missionID in FIFO order, oldest
// first. If missionID is empty, it returns every pending message across all
// missions.
func (q *Queue) List(missionID string) []domain.QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	if missionID != "" {
		pending := q.byMission[missionID]
		out := make([]domain.QueuedMessage, len(pending))
		for i, m := range pending {
			out[i] = *m
		}
		return out
	}

	var out []domain.QueuedMessage
	for _, pending := range q.byMission {
		for _, m := range pending {
			out = append(out, *m)
		}
	}
	return out
}

// TakeNext atomically dequeues and removes the oldest pending message for
// missionID, or reports ok=false if the queue is empty. Only the mission's
// Agent Loop worker may call this (spec §4.4 single-consumer guarantee).
func (q *Queue) TakeNext(missionID string) (domain.QueuedMessage, bool) {
	l := q.lockFor(missionID)
	l.Lock()
	defer l.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.byMission[missionID]
	if len(pending) == 0 {
		return domain.QueuedMessage{}, false
	}
	msg := pending[0]
	q.byMission[missionID] = pending[1:]
	delete(q.byID, msg.ID)
	if q.metrics != nil {
		q.metrics.QueueDepth.WithLabelValues(missionID).Set(float64(len(q.byMission[missionID])))
	}
	return *msg, true
}

// Len reports the current depth of missionID's queue.
func (q *Queue) Len(missionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byMission[missionID])
}
