// Package subscription implements the Subscription Server (spec §4.9): a
// single-session tail of the Event Bus for one client, with store-backed
// replay on open and on bus lag, and a low-rate keepalive when quiet.
package subscription

import (
	"context"
	"time"

	"github.com/haasonsaas/nexus/internal/domain"
	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/internal/eventstore"
	"github.com/haasonsaas/nexus/internal/observability"
)

// DefaultKeepaliveInterval is the keepalive_seconds default from spec §6.
const DefaultKeepaliveInterval = 15 * time.Second

// DefaultReplayPageSize is the page size the server reads the Event Store
// in while catching up, per spec §4.9 step 2.
const DefaultReplayPageSize = 1000

// Message is one item the Session emits: either a StoredEvent, or a
// zero-value Keepalive signal when the stream has been quiet.
type Message struct {
	Event     domain.StoredEvent `json:"event,omitempty"`
	Keepalive bool               `json:"keepalive,omitempty"`
}

// Session drives one subscriber's replay-then-tail lifecycle transport-
// agnostically; callers (a WebSocket handler, a CLI tail command) read Out()
// until it closes and forward messages to the client.
type Session struct {
	filter        string
	sinceSequence *int64
	store         eventstore.Store
	bus           *eventbus.Bus
	sub           *eventbus.Subscription
	keepalive     time.Duration
	replayPage    int
	logger        *observability.Logger
	metrics       *observability.Metrics

	out    chan Message
	done   chan struct{}
	cancel context.CancelFunc
}

// Config configures Open.
type Config struct {
	Filter        string // one mission id, or "all"
	SinceSequence *int64
	KeepaliveEvery time.Duration
	ReplayPageSize int
}

// Open starts a new subscription Session: it replays from SinceSequence (if
// set, and only for a single-mission filter; an "all" subscription is not
// replayed and starts at the live tail) via the Event Store, then
// atomically switches to tailing the Event
// Bus such that the next live event is exactly last_replayed.sequence + 1
// for each mission in scope (spec §4.9 step 2).
func Open(ctx context.Context, store eventstore.Store, bus *eventbus.Bus, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Session {
	if cfg.KeepaliveEvery <= 0 {
		cfg.KeepaliveEvery = DefaultKeepaliveInterval
	}
	if cfg.ReplayPageSize <= 0 {
		cfg.ReplayPageSize = DefaultReplayPageSize
	}

	sessCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		filter:        cfg.Filter,
		sinceSequence: cfg.SinceSequence,
		store:         store,
		bus:           bus,
		keepalive:     cfg.KeepaliveEvery,
		replayPage:    cfg.ReplayPageSize,
		logger:        logger,
		metrics:       metrics,
		out:           make(chan Message, 64),
		done:          make(chan struct{}),
		cancel:        cancel,
	}
	if metrics != nil {
		metrics.SubscriptionSessionsActive.Inc()
	}
	go s.run(sessCtx)
	return s
}

// Out returns the channel messages are delivered on. It closes when the
// session ends (client disconnect via Close, or ctx cancellation).
func (s *Session) Out() <-chan Message { return s.out }

// Close frees the subscription; no state is retained (spec §4.9 step 5).
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) run(ctx context.Context) {
	defer close(s.out)
	defer close(s.done)
	defer func() {
		if s.sub != nil {
			s.sub.Close()
		}
		if s.metrics != nil {
			s.metrics.SubscriptionSessionsActive.Dec()
		}
	}()

	s.sub = s.bus.Subscribe(s.filter)

	last, ok := s.catchup(ctx)
	if !ok {
		return
	}

	s.tail(ctx, last)
}

// catchup replays stored events from sinceSequence (if set) up to the
// current tail, in pages, per spec §4.9 step 2. It returns the last
// sequence replayed. With no sinceSequence, or with the "all" filter, it
// replays nothing and returns 0 (missions are independent per spec §5).
func (s *Session) catchup(ctx context.Context) (int64, bool) {
	if s.sinceSequence == nil || s.filter == "all" {
		return 0, true
	}

	missionID := s.filter
	offset := int(*s.sinceSequence)
	var last int64

	for {
		events, err := s.store.ReadRange(ctx, missionID, eventstore.ReadRangeOptions{Limit: s.replayPage, Offset: offset})
		if err != nil {
			if s.logger != nil {
				s.logger.Error(ctx, "subscription replay failed", "mission_id", missionID, "error", err)
			}
			return 0, false
		}
		if len(events) == 0 {
			break
		}
		for _, ev := range events {
			select {
			case s.out <- Message{Event: ev}:
				last = ev.Sequence
			case <-ctx.Done():
				return 0, false
			}
		}
		if s.metrics != nil {
			s.metrics.SubscriptionCatchupEvents.Add(float64(len(events)))
		}
		offset += len(events)
		if len(events) < s.replayPage {
			break
		}
	}
	return last, true
}

// tail delivers live bus events, skipping any that duplicate the replay
// (sequence <= lastDelivered for this mission), re-invoking catchup on lag,
// and emitting keepalives when quiet (spec §4.9 steps 3-4).
func (s *Session) tail(ctx context.Context, lastDelivered int64) {
	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.sub.Lagged():
			if s.metrics != nil {
				s.metrics.SubscriptionRecatchups.Inc()
			}
			resumeFrom := lastDelivered
			s.sinceSequence = &resumeFrom
			newLast, ok := s.catchup(ctx)
			if !ok {
				return
			}
			if newLast > lastDelivered {
				lastDelivered = newLast
			}
		case ev, ok := <-s.sub.Events():
			if !ok {
				return
			}
			if s.filter != "all" && ev.Sequence <= lastDelivered {
				continue // already delivered by replay or a prior lag catch-up
			}
			select {
			case s.out <- Message{Event: ev}:
				if ev.Sequence > lastDelivered {
					lastDelivered = ev.Sequence
				}
				ticker.Reset(s.keepalive)
			case <-ctx.Done():
				return
			}
		case <-ticker.C:
			select {
			case s.out <- Message{Keepalive: true}:
			case <-ctx.Done():
				return
			}
		}
	}
}
