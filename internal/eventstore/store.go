// Package eventstore implements the append-only, per-mission, gap-free
// event log described in spec §4.1. Store is the interface every backend
// (in-memory, SQL) satisfies; components depend only on this interface.
package eventstore

import (
	"context"

	"github.com/haasonsaas/nexus/internal/domain"
)

// ReadRangeOptions filters and paginates Store.ReadRange.
type ReadRangeOptions struct {
	Types  []domain.EventType
	Limit  int
	Offset int
}

const (
	// DefaultPageLimit is the default event_page_limit from spec §6.
	DefaultPageLimit = 1000
	// MaxPageLimit caps ReadRange regardless of requested Limit.
	MaxPageLimit = 5000
)

// Normalize clamps Limit to (0, MaxPageLimit], defaulting to DefaultPageLimit.
func (o ReadRangeOptions) Normalize() ReadRangeOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultPageLimit
	}
	if o.Limit > MaxPageLimit {
		o.Limit = MaxPageLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Store is the durable event log contract. Implementations must guarantee
// per-mission sequence contiguity (spec §4.1 invariant 1) and linearizable
// appends within a mission.
type Store interface {
	// Append assigns ID, Sequence, and Timestamp, persists the event, and
	// returns the stored record. Returns a *domain.Error{Kind: MissionUnknown}
	// if missionID is not a mission this store (or its caller) knows about.
	Append(ctx context.Context, missionID string, draft domain.EventDraft) (domain.StoredEvent, error)

	// ReadRange returns events ordered by (sequence asc, id asc), filtered by
	// opts.Types if non-empty, paginated by opts.Limit/opts.Offset.
	ReadRange(ctx context.Context, missionID string, opts ReadRangeOptions) ([]domain.StoredEvent, error)

	// LastSequence returns the highest assigned sequence for missionID, or 0
	// if the mission has no events yet.
	LastSequence(ctx context.Context, missionID string) (int64, error)

	// RegisterMission tells the store that missionID is a valid append
	// target. Backends that leave validity to the caller (SQL) may treat
	// this as a no-op; the in-memory backend uses it to implement the
	// MissionUnknown failure mode from spec §4.1.
	RegisterMission(ctx context.Context, missionID string) error
}
