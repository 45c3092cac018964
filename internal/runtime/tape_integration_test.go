package runtime

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus/internal/domain"
	"github.com/haasonsaas/nexus/internal/eventstore"
	"github.com/haasonsaas/nexus/internal/runtime/tape"
)

// TestTapeRecordThenReplayProducesSameTranscript records a scripted turn
// through a tape.Recorder, then drives a fresh mission through a
// tape.Replayer built from the recording and checks the two transcripts
// match. This is the pattern used to pin a real Anthropic conversation to
// disk once and replay it in CI without network access.
func TestTapeRecordThenReplayProducesSameTranscript(t *testing.T) {
	scripted := &scriptedProvider{turns: [][]*CompletionChunk{
		{
			{Text: "Hi"},
			{Text: " there"},
			{Done: true},
		},
	}}
	recorder := tape.NewRecorder(scripted).WithModel("claude-test").WithSystemPrompt("be terse")

	rt, registry, store, _ := newHarness(t, recorder, Config{})
	ctx := context.Background()
	m, err := registry.Create(ctx, domain.CreateMissionParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := rt.PostMessage(ctx, m.ID, "hello", ""); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	waitFor(t, func() bool {
		events, _ := store.ReadRange(ctx, m.ID, eventstore.ReadRangeOptions{})
		return len(events) > 0 && events[len(events)-1].EventType == domain.EventAssistantMessage
	})

	recorded := recorder.Tape()
	if len(recorded.Turns) != 1 {
		t.Fatalf("recorded turns = %d, want 1", len(recorded.Turns))
	}

	replayer := tape.NewReplayer(recorded)
	rt2, registry2, store2, _ := newHarness(t, replayer, Config{})
	m2, err := registry2.Create(ctx, domain.CreateMissionParams{})
	if err != nil {
		t.Fatalf("Create (replay): %v", err)
	}
	if _, err := rt2.PostMessage(ctx, m2.ID, "hello", ""); err != nil {
		t.Fatalf("PostMessage (replay): %v", err)
	}
	waitFor(t, func() bool {
		events, _ := store2.ReadRange(ctx, m2.ID, eventstore.ReadRangeOptions{})
		return len(events) > 0 && events[len(events)-1].EventType == domain.EventAssistantMessage
	})

	events, _ := store2.ReadRange(ctx, m2.ID, eventstore.ReadRangeOptions{})
	last := events[len(events)-1]
	if last.Content != "Hi there" {
		t.Errorf("replayed assistant_message content = %q, want %q", last.Content, "Hi there")
	}
	if len(replayer.Mismatches()) != 0 {
		t.Errorf("unexpected request mismatches: %+v", replayer.Mismatches())
	}
}
