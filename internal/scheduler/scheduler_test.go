package scheduler

import (
	"context"
	"testing"
)

func TestSchedulerAdmitsUpToCapThenQueues(t *testing.T) {
	s := New(2, nil, nil)
	ctx := context.Background()

	if ok := s.Admit(ctx, "m1", nil); !ok {
		t.Fatal("m1 should be admitted immediately")
	}
	if ok := s.Admit(ctx, "m2", nil); !ok {
		t.Fatal("m2 should be admitted immediately")
	}
	if ok := s.Admit(ctx, "m3", nil); ok {
		t.Fatal("m3 should be queued, not admitted")
	}

	state, ok := s.State("m3")
	if !ok || state != StateQueued {
		t.Fatalf("m3 state = %v, ok=%v, want queued", state, ok)
	}
	if s.RunningCount() != 2 {
		t.Fatalf("RunningCount = %d, want 2", s.RunningCount())
	}
}

func TestSchedulerReleaseStartsQueuedMissionFIFO(t *testing.T) {
	s := New(1, nil, nil)
	ctx := context.Background()

	s.Admit(ctx, "m1", nil)
	s.Admit(ctx, "m2", nil)
	s.Admit(ctx, "m3", nil)

	var started []string
	starters := map[string]Starter{
		"m2": func(ctx context.Context, id string) { started = append(started, id) },
		"m3": func(ctx context.Context, id string) { started = append(started, id) },
	}

	s.Release(ctx, "m1", starters)
	if len(started) != 1 || started[0] != "m2" {
		t.Fatalf("started = %v, want [m2]", started)
	}

	state, _ := s.State("m2")
	if state != StateRunning {
		t.Fatalf("m2 state = %v, want running", state)
	}

	s.Release(ctx, "m2", starters)
	if len(started) != 2 || started[1] != "m3" {
		t.Fatalf("started = %v, want [m2 m3]", started)
	}
}

func TestSchedulerSetWorkerStateWaitingForTool(t *testing.T) {
	s := New(1, nil, nil)
	ctx := context.Background()
	s.Admit(ctx, "m1", nil)

	s.SetWorkerState("m1", StateWaitingForTool)
	state, _ := s.State("m1")
	if state != StateWaitingForTool {
		t.Fatalf("state = %v, want waiting_for_tool", state)
	}
}

func TestSchedulerUnboundedWhenMaxParallelNonPositive(t *testing.T) {
	s := New(0, nil, nil)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if ok := s.Admit(ctx, string(rune('a'+i)), nil); !ok {
			t.Fatalf("mission %d should be admitted immediately with unbounded cap", i)
		}
	}
}
