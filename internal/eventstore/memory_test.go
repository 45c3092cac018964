package eventstore

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus/internal/domain"
)

func TestMemoryStoreAppendAssignsContiguousSequence(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.RegisterMission(ctx, "m1"); err != nil {
		t.Fatalf("RegisterMission: %v", err)
	}

	for i := 1; i <= 3; i++ {
		ev, err := s.Append(ctx, "m1", domain.EventDraft{EventType: domain.EventTextDelta, Content: "x"})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if ev.Sequence != int64(i) {
			t.Errorf("Sequence = %d, want %d", ev.Sequence, i)
		}
	}

	last, err := s.LastSequence(ctx, "m1")
	if err != nil {
		t.Fatalf("LastSequence: %v", err)
	}
	if last != 3 {
		t.Errorf("LastSequence = %d, want 3", last)
	}
}

func TestMemoryStoreAppendUnknownMission(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Append(ctx, "ghost", domain.EventDraft{EventType: domain.EventTextDelta})
	if !domain.Is(err, domain.ErrMissionUnknown) {
		t.Fatalf("expected ErrMissionUnknown, got %v", err)
	}
}

func TestMemoryStoreReadRangeFilterAndPaging(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.RegisterMission(ctx, "m1")

	s.Append(ctx, "m1", domain.EventDraft{EventType: domain.EventUserMessage, Content: "hi"})
	s.Append(ctx, "m1", domain.EventDraft{EventType: domain.EventTextDelta, Content: "a"})
	s.Append(ctx, "m1", domain.EventDraft{EventType: domain.EventTextDelta, Content: "b"})
	s.Append(ctx, "m1", domain.EventDraft{EventType: domain.EventAssistantMessage, Content: "done"})

	all, err := s.ReadRange(ctx, "m1", ReadRangeOptions{})
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("got %d events, want 4", len(all))
	}

	deltas, err := s.ReadRange(ctx, "m1", ReadRangeOptions{Types: []domain.EventType{domain.EventTextDelta}})
	if err != nil {
		t.Fatalf("ReadRange filtered: %v", err)
	}
	if len(deltas) != 2 {
		t.Fatalf("got %d deltas, want 2", len(deltas))
	}

	beyond, err := s.ReadRange(ctx, "m1", ReadRangeOptions{Offset: 100})
	if err != nil {
		t.Fatalf("ReadRange beyond: %v", err)
	}
	if len(beyond) != 0 {
		t.Errorf("expected empty result beyond last_sequence, got %d", len(beyond))
	}
}

func TestMemoryStoreLastSequenceUnregisteredMission(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	last, err := s.LastSequence(ctx, "ghost")
	if err != nil {
		t.Fatalf("LastSequence: %v", err)
	}
	if last != 0 {
		t.Errorf("LastSequence = %d, want 0", last)
	}
}
