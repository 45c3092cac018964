package context

import (
	"strings"
	"testing"

	rt "github.com/haasonsaas/nexus/internal/runtime"
)

func msg(role rt.Role, content string) *rt.Message {
	return &rt.Message{Role: role, Content: content}
}

func TestPackIncludesIncomingAndSummary(t *testing.T) {
	p := NewPacker(DefaultPackOptions())

	history := []*rt.Message{
		msg(rt.RoleUser, "earlier question"),
		msg(rt.RoleAssistant, "earlier answer"),
	}
	summary := CreateSummaryMessage("mission-1", "condensed history", "msg-7")
	incoming := msg(rt.RoleUser, "what's next")

	packed, err := p.Pack(history, incoming, summary)
	if err != nil {
		t.Fatalf("Pack returned error: %v", err)
	}
	if len(packed) != 4 {
		t.Fatalf("expected 4 packed messages, got %d", len(packed))
	}
	if packed[0] != summary {
		t.Errorf("expected summary message first")
	}
	if packed[len(packed)-1] != incoming {
		t.Errorf("expected incoming message last")
	}
}

func TestPackFiltersSummaryMessagesFromHistory(t *testing.T) {
	p := NewPacker(DefaultPackOptions())

	stale := CreateSummaryMessage("mission-1", "stale summary", "msg-3")
	history := []*rt.Message{
		stale,
		msg(rt.RoleUser, "hello"),
	}

	packed, err := p.Pack(history, nil, nil)
	if err != nil {
		t.Fatalf("Pack returned error: %v", err)
	}
	for _, m := range packed {
		if m == stale {
			t.Errorf("expected stale summary message to be filtered out of history")
		}
	}
}

func TestPackRespectsMaxMessages(t *testing.T) {
	opts := DefaultPackOptions()
	opts.MaxMessages = 2
	p := NewPacker(opts)

	history := []*rt.Message{
		msg(rt.RoleUser, "one"),
		msg(rt.RoleAssistant, "two"),
		msg(rt.RoleUser, "three"),
	}
	incoming := msg(rt.RoleUser, "four")

	packed, err := p.Pack(history, incoming, nil)
	if err != nil {
		t.Fatalf("Pack returned error: %v", err)
	}
	if len(packed) > 2 {
		t.Fatalf("expected at most 2 packed messages, got %d", len(packed))
	}
	if packed[len(packed)-1].Content != "four" {
		t.Errorf("expected incoming message to survive truncation")
	}
}

func TestPackRespectsMaxChars(t *testing.T) {
	opts := DefaultPackOptions()
	opts.MaxMessages = 10
	opts.MaxChars = 5
	p := NewPacker(opts)

	history := []*rt.Message{msg(rt.RoleUser, "this message is far too long for the budget")}
	packed, err := p.Pack(history, nil, nil)
	if err != nil {
		t.Fatalf("Pack returned error: %v", err)
	}
	if len(packed) != 0 {
		t.Errorf("expected oversized history message to be dropped, got %d messages", len(packed))
	}
}

func TestPackTruncatesToolResults(t *testing.T) {
	opts := DefaultPackOptions()
	opts.MaxToolResultChars = 10
	p := NewPacker(opts)

	long := strings.Repeat("x", 100)
	history := []*rt.Message{
		{
			Role:        rt.RoleTool,
			ToolResults: []rt.ToolResult{{ToolCallID: "call-1", Content: long}},
		},
	}

	packed, err := p.Pack(history, nil, nil)
	if err != nil {
		t.Fatalf("Pack returned error: %v", err)
	}
	if len(packed) != 1 {
		t.Fatalf("expected 1 packed message, got %d", len(packed))
	}
	got := packed[0].ToolResults[0].Content
	if len(got) >= len(long) {
		t.Errorf("expected tool result content to be truncated, got length %d", len(got))
	}
	if !strings.HasSuffix(got, "[truncated]") {
		t.Errorf("expected truncation marker, got %q", got)
	}
}
