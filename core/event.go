package core

// EventType discriminates the StreamEvent union.
type EventType string

const (
	// EventToolStart is emitted before a tool invocation begins.
	EventToolStart EventType = "tool_start"
	// EventToolEnd is emitted when a tool invocation completes, carrying
	// either the (truncated) result or an error-shaped result.
	EventToolEnd EventType = "tool_end"
	// EventLLMChunk carries one incremental text fragment from the model.
	EventLLMChunk EventType = "llm_chunk"
	// EventError terminates a turn's event sequence on failure.
	EventError EventType = "error"
	// EventInfo carries non-terminal diagnostics (e.g. latency budget overruns).
	EventInfo EventType = "info"
	// EventFinalResponse terminates a turn's event sequence on success.
	EventFinalResponse EventType = "final_response"
)

// StreamEvent is one unit of the typed progress protocol emitted while a turn
// is processed. Events are independently serializable; `type` is mandatory and
// the remaining fields are type-specific. Exactly one final_response or one
// error terminates a turn's sequence; all other kinds may repeat before it.
// Emission order is significant and must be preserved by transports.
type StreamEvent struct {
	Type    EventType `json:"type"`
	Name    string    `json:"name,omitempty"`
	Input   string    `json:"input,omitempty"`
	Result  string    `json:"result,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Content string    `json:"content,omitempty"`
}

// ToolStartEvent announces a tool invocation with its serialized input.
func ToolStartEvent(name, input string) StreamEvent {
	return StreamEvent{Type: EventToolStart, Name: name, Input: input}
}

// ToolEndEvent reports a completed tool invocation. Result is either the
// truncated success payload or an error-shaped description.
func ToolEndEvent(name, result string) StreamEvent {
	return StreamEvent{Type: EventToolEnd, Name: name, Result: result}
}

// ChunkEvent carries one incremental model text delta.
func ChunkEvent(delta string) StreamEvent {
	return StreamEvent{Type: EventLLMChunk, Content: delta}
}

// InfoEvent carries a non-terminal diagnostic message.
func InfoEvent(detail string) StreamEvent {
	return StreamEvent{Type: EventInfo, Detail: detail}
}

// ErrorEvent terminates the turn with a failure description.
func ErrorEvent(detail string) StreamEvent {
	return StreamEvent{Type: EventError, Detail: detail}
}

// FinalEvent terminates the turn with the assistant's answer.
func FinalEvent(content string) StreamEvent {
	return StreamEvent{Type: EventFinalResponse, Content: content}
}

// IsTerminal reports whether the event ends a turn's sequence.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventFinalResponse || e.Type == EventError
}
