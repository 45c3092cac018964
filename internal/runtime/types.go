// Package runtime drives the Agent Loop Runtime: one logical worker per
// running mission, dequeuing messages, invoking a pluggable model provider,
// and emitting the event stream the rest of the core consumes.
package runtime

import "context"

// Tool is the capability contract a model-callable tool must satisfy.
// Concrete tool executors are pluggable and live outside the core.
type Tool interface {
	Name() string
	Description() string
	Schema() []byte
}

// ComputerUseConfigProvider is implemented by tools that configure a
// provider's built-in computer-use mode (e.g. Anthropic's beta tool).
type ComputerUseConfigProvider interface {
	ComputerUseConfig() *ComputerUseConfig
}

// ComputerUseConfig describes the virtual display a computer-use tool
// operates against.
type ComputerUseConfig struct {
	DisplayWidthPx  int
	DisplayHeightPx int
}

// CompletionMessage is one turn of conversation in the wire format a
// provider's Complete call expects.
type CompletionMessage struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
	Attachments []Attachment
}

// CompletionRequest is the input to a provider completion call.
type CompletionRequest struct {
	Model                string
	System               string
	Messages             []CompletionMessage
	Tools                []Tool
	MaxTokens            int
	EnableThinking       bool
	ThinkingBudgetTokens int
}

// CompletionChunk is one unit of a streamed provider response. Exactly one
// of Text, Thinking, ToolCall, Error is meaningful per chunk; Done marks the
// end of the stream.
type CompletionChunk struct {
	Text          string
	Thinking      string
	ThinkingStart bool
	ThinkingEnd   bool
	ToolCall      *ToolCall
	Usage         *Usage
	StopReason    string
	Error         error
	Done          bool
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Model describes a model a provider exposes.
type Model struct {
	ID             string
	Name           string
	MaxTokens      int
	ContextSize    int
	SupportsTools  bool
	SupportsVision bool
}

// LLMProvider is the pluggable model capability the Agent Loop Runtime
// consumes. The core never implements a provider; it only drives this
// interface.
type LLMProvider interface {
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
	Name() string
	Models() []Model
	SupportsTools() bool
}
