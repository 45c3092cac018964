package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/internal/domain"
)

// MemoryStore is an in-process Store backed by per-mission slices, guarded
// by one writer lock per mission (spec §5 shared-resource policy). It is the
// default backend for tests and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	missions map[string]*missionLog
}

type missionLog struct {
	mu     sync.Mutex
	events []domain.StoredEvent
	nextID int64
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{missions: make(map[string]*missionLog)}
}

func (s *MemoryStore) logFor(missionID string) (*missionLog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.missions[missionID]
	return l, ok
}

// RegisterMission makes missionID a valid append target.
func (s *MemoryStore) RegisterMission(ctx context.Context, missionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.missions[missionID]; !ok {
		s.missions[missionID] = &missionLog{}
	}
	return nil
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, missionID string, draft domain.EventDraft) (domain.StoredEvent, error) {
	l, ok := s.logFor(missionID)
	if !ok {
		return domain.StoredEvent{}, domain.NewError(domain.ErrMissionUnknown, "mission "+missionID+" is not registered")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	seq := int64(len(l.events)) + 1
	eventID := draft.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	stored := domain.StoredEvent{
		ID:         l.nextID,
		MissionID:  missionID,
		Sequence:   seq,
		Timestamp:  time.Now().UTC(),
		EventType:  draft.EventType,
		EventID:    eventID,
		ToolCallID: draft.ToolCallID,
		ToolName:   draft.ToolName,
		Content:    draft.Content,
		Metadata:   draft.Metadata,
	}
	l.events = append(l.events, stored)
	return stored, nil
}

// ReadRange implements Store.
func (s *MemoryStore) ReadRange(ctx context.Context, missionID string, opts ReadRangeOptions) ([]domain.StoredEvent, error) {
	opts = opts.Normalize()
	l, ok := s.logFor(missionID)
	if !ok {
		return nil, nil
	}

	l.mu.Lock()
	all := make([]domain.StoredEvent, len(l.events))
	copy(all, l.events)
	l.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Sequence != all[j].Sequence {
			return all[i].Sequence < all[j].Sequence
		}
		return all[i].ID < all[j].ID
	})

	var filtered []domain.StoredEvent
	if len(opts.Types) == 0 {
		filtered = all
	} else {
		allowed := make(map[domain.EventType]bool, len(opts.Types))
		for _, t := range opts.Types {
			allowed[t] = true
		}
		for _, e := range all {
			if allowed[e.EventType] {
				filtered = append(filtered, e)
			}
		}
	}

	if opts.Offset >= len(filtered) {
		return nil, nil
	}
	filtered = filtered[opts.Offset:]
	if len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}
	return filtered, nil
}

// LastSequence implements Store.
func (s *MemoryStore) LastSequence(ctx context.Context, missionID string) (int64, error) {
	l, ok := s.logFor(missionID)
	if !ok {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.events)), nil
}
