package domain

import "time"

// EventType is the tag distinguishing what a StoredEvent represents.
type EventType string

const (
	EventUserMessage      EventType = "user_message"
	EventAssistantMessage EventType = "assistant_message"
	EventToolCall         EventType = "tool_call"
	EventToolResult       EventType = "tool_result"
	EventTextDelta        EventType = "text_delta"
	EventThinking         EventType = "thinking"
	EventAgentPhase       EventType = "agent_phase"
	EventProgress         EventType = "progress"
	EventMissionStatus    EventType = "mission_status_changed"
	EventError            EventType = "error"
)

// EventDraft is the input to Event Store.Append: everything about an event
// except the fields the store itself assigns (ID, Sequence, Timestamp).
type EventDraft struct {
	MissionID  string         `json:"mission_id,omitempty"`
	EventType  EventType      `json:"event_type"`
	EventID    string         `json:"event_id,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// StoredEvent is a durable, sequence-numbered record in a mission's event
// log, as returned by Event Store.Append and Event Store.ReadRange.
type StoredEvent struct {
	ID         int64          `json:"id"`
	MissionID  string         `json:"mission_id"`
	Sequence   int64          `json:"sequence"`
	Timestamp  time.Time      `json:"timestamp"`
	EventType  EventType      `json:"event_type"`
	EventID    string         `json:"event_id"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// QueuedMessage is a pending user message waiting for the mission's Agent
// Loop worker to start a turn.
type QueuedMessage struct {
	ID         string    `json:"id"`
	MissionID  string    `json:"mission_id"`
	Content    string    `json:"content"`
	Agent      string    `json:"agent,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
