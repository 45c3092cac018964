// Package eventbus implements the in-process pub/sub fan-out described in
// spec §4.2: producers publish (mission_id, event) pairs after they have
// been committed to the Event Store, and subscribers receive a filtered,
// ordered, bounded-buffer stream with lag detection.
package eventbus

import (
	"sync"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/internal/domain"
	"github.com/haasonsaas/nexus/internal/observability"
)

// DefaultBufferSize is the subscription_buffer default from spec §6.
const DefaultBufferSize = 256

// Subscription is a live handle a caller reads events from. Filter is either
// a mission id or "all".
type Subscription struct {
	ID     string
	Filter string

	events  chan domain.StoredEvent
	lagged  chan struct{}
	closeMu sync.Mutex
	closed  bool

	bus *Bus
}

// Events returns the channel new events are delivered on. It is closed when
// the subscription is closed.
func (s *Subscription) Events() <-chan domain.StoredEvent { return s.events }

// Lagged returns a channel that is signalled (non-blockingly) whenever this
// subscription's buffer overflows and events were dropped. The Subscription
// Server (§4.9) reads this to trigger a replay-based catch-up.
func (s *Subscription) Lagged() <-chan struct{} { return s.lagged }

// Close releases the subscription. It is safe to call multiple times.
func (s *Subscription) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.bus.remove(s)
	close(s.events)
}

func (s *Subscription) matches(missionID string) bool {
	return s.Filter == "all" || s.Filter == missionID
}

func (s *Subscription) deliver(ev domain.StoredEvent, metrics *observability.Metrics) {
	select {
	case s.events <- ev:
	default:
		// Buffer full: drain the oldest pending event to make room, mark lag.
		select {
		case <-s.events:
		default:
		}
		select {
		case s.events <- ev:
		default:
		}
		select {
		case s.lagged <- struct{}{}:
		default:
		}
		if metrics != nil {
			metrics.BusDroppedEvents.WithLabelValues(s.Filter).Inc()
		}
	}
}

// Bus is the lock-light, fan-out-only in-process Event Bus. Subscriber
// buffers are per-subscription (spec §5 shared resource policy); the bus
// itself holds only the subscriber set under a short mutex on the publish
// fast path.
type Bus struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	bufferSize int
	metrics    *observability.Metrics
}

// New constructs a Bus. bufferSize <= 0 uses DefaultBufferSize. metrics may
// be nil.
func New(bufferSize int, metrics *observability.Metrics) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		subs:       make(map[string]*Subscription),
		bufferSize: bufferSize,
		metrics:    metrics,
	}
}

// Publish delivers ev to every subscription whose filter matches
// ev.MissionID. Callers must only publish after the event store append that
// produced ev has returned (spec §4.2 commit contract).
func (b *Bus) Publish(ev domain.StoredEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.matches(ev.MissionID) {
			s.deliver(ev, b.metrics)
		}
	}
	if b.metrics != nil {
		b.metrics.BusPublishCounter.Inc()
	}
}

// Subscribe creates a new Subscription for filter ("all" or a mission id).
func (b *Bus) Subscribe(filter string) *Subscription {
	s := &Subscription{
		ID:     uuid.NewString(),
		Filter: filter,
		events: make(chan domain.StoredEvent, b.bufferSize),
		lagged: make(chan struct{}, 1),
		bus:    b,
	}
	b.mu.Lock()
	b.subs[s.ID] = s
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.BusSubscriberGauge.Inc()
	}
	return s
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s.ID)
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.BusSubscriberGauge.Dec()
	}
}
