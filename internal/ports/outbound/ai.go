package outbound

import (
	"context"
	"encoding/json"
)

// AIProvider presents one interface over backends with incompatible wire
// formats. Implementations own retry/backoff and model-name normalization;
// no call site is aware of which backend is active.
type AIProvider interface {
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string

	// Complete performs one buffered completion round trip.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// Stream performs a streamed completion. Text deltas are emitted in
	// arrival order; tool calls are emitted once, fully assembled, when
	// their content block closes. The channel is closed after the terminal
	// done or error event. Cancelling ctx closes the upstream connection.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}

// Role tags a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged message of the conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolDef declares a tool/function schema the model may call. Parameters is
// a JSON Schema object.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a fully assembled tool invocation from the model. Arguments is
// the complete JSON payload; streaming adapters only construct a ToolCall
// after the content block carrying it has closed.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CompletionRequest is the provider-neutral request shape.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDef
	Temperature float64
	MaxTokens   int
}

// Usage tracks token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// CompletionResult is a buffered completion: any free text plus any tool
// calls the model emitted.
type CompletionResult struct {
	Text       string     `json:"text"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
}

// StreamEventKind identifies a streaming event.
type StreamEventKind string

const (
	// StreamText is an incremental text delta, forwarded immediately.
	StreamText StreamEventKind = "text"
	// StreamToolCall is a complete tool call, emitted on block close.
	StreamToolCall StreamEventKind = "tool_call"
	// StreamDone terminates a successful stream.
	StreamDone StreamEventKind = "done"
	// StreamError terminates a failed stream.
	StreamError StreamEventKind = "error"
)

// StreamEvent is one event of a streamed completion.
type StreamEvent struct {
	Kind     StreamEventKind
	Text     string
	ToolCall *ToolCall
	Usage    *Usage
	Err      error
}
