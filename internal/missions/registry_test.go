package missions

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus/internal/domain"
	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/internal/eventstore"
)

func newTestRegistry() (*Registry, eventstore.Store, *eventbus.Bus) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.New(16, nil)
	return New(store, bus, nil, nil), store, bus
}

func TestRegistryCreateEmitsActiveStatusChange(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestRegistry()

	m, err := r.Create(ctx, domain.CreateMissionParams{WorkspaceID: "ws1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.Status != domain.MissionActive {
		t.Fatalf("status = %s, want active", m.Status)
	}

	events, err := store.ReadRange(ctx, m.ID, eventstore.ReadRangeOptions{})
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(events) != 1 || events[0].EventType != domain.EventMissionStatus {
		t.Fatalf("expected single mission_status_changed event, got %+v", events)
	}
	if events[0].Metadata["to"] != string(domain.MissionActive) {
		t.Errorf("metadata.to = %v, want active", events[0].Metadata["to"])
	}
}

func TestRegistryInvalidTransitionRejected(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry()
	m, _ := r.Create(ctx, domain.CreateMissionParams{})

	if _, err := r.SetStatus(ctx, m.ID, domain.MissionCompleted, ""); err != nil {
		t.Fatalf("active->completed should be allowed: %v", err)
	}
	if _, err := r.SetStatus(ctx, m.ID, domain.MissionBlocked, ""); !domain.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("completed->blocked should be InvalidTransition, got %v", err)
	}
}

func TestRegistryResumeReportsTransitioned(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestRegistry()
	m, _ := r.Create(ctx, domain.CreateMissionParams{})
	if _, err := r.SetStatus(ctx, m.ID, domain.MissionInterrupted, "user cancel"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	resumed, transitioned, err := r.Resume(ctx, m.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !transitioned {
		t.Fatalf("expected transitioned=true resuming an interrupted mission")
	}
	if resumed.Status != domain.MissionActive {
		t.Fatalf("status = %s, want active", resumed.Status)
	}

	// The Registry itself only emits the status-change event; enqueuing the
	// synthetic turn-trigger message is the caller's job (internal/runtime),
	// since the Registry has no Message Queue reference.
	events, _ := store.ReadRange(ctx, m.ID, eventstore.ReadRangeOptions{})
	last := events[len(events)-1]
	if last.EventType != domain.EventMissionStatus || last.Metadata["to"] != string(domain.MissionActive) {
		t.Fatalf("expected mission_status_changed{to:active}, got %+v", last)
	}
}

func TestRegistryResumeAlreadyActiveIsNoop(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestRegistry()
	m, _ := r.Create(ctx, domain.CreateMissionParams{})

	before, _ := store.ReadRange(ctx, m.ID, eventstore.ReadRangeOptions{})
	_, transitioned, err := r.Resume(ctx, m.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if transitioned {
		t.Fatalf("expected transitioned=false resuming an already-active mission")
	}
	after, _ := store.ReadRange(ctx, m.ID, eventstore.ReadRangeOptions{})
	if len(after) != len(before) {
		t.Fatalf("expected no new events resuming an already-active mission, got %d -> %d", len(before), len(after))
	}
}

func TestRegistryListOrderedByUpdatedAtDesc(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry()
	a, _ := r.Create(ctx, domain.CreateMissionParams{Title: "a"})
	b, _ := r.Create(ctx, domain.CreateMissionParams{Title: "b"})
	r.SetStatus(ctx, a.ID, domain.MissionCompleted, "")

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != a.ID {
		t.Fatalf("expected most recently updated mission (%s) first, got %s (%s vs %s)", a.ID, list[0].ID, b.ID, a.ID)
	}
}
