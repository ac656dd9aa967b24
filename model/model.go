package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aidenhq/aiden/core"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"` // JSON string of arguments
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by the agent loop.
// Turns carry the conversation context including the new user turn and any
// tool-result turns from the current run.
type Request struct {
	Instructions string           `json:"instructions"`
	Turns        []core.Turn      `json:"turns"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// Response is a (partial or final) chunk emitted by a model.
//
// For streaming calls, partial responses carry TextDelta fragments; exactly
// one final response follows with the accumulated Text, any pending ToolCalls
// and the FinishReason. Complete returns only the final form.
type Response struct {
	Partial      bool       `json:"partial"`
	TextDelta    string     `json:"text_delta,omitempty"`
	Text         string     `json:"text,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls", etc.
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation.
//
// Stream must preserve the ordering of text fragments; implementations
// suppress empty fragments. Both calls respect context cancellation.
type Model interface {
	// Complete performs one blocking generation returning the final response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream performs an incremental generation. The response channel is
	// closed after the final (non-partial) response; at most one error is
	// sent on the error channel.
	Stream(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ProviderError wraps a provider fault with the classification the failover
// policy needs: connection errors carry Status 0, HTTP faults the status code.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s provider error (status %d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the fault is a connection, authentication or
// rate-limit signal, i.e. one that warrants a retry and provider failover.
func (e *ProviderError) Retryable() bool {
	switch e.Status {
	case 0, 401, 403, 408, 429, 500, 502, 503, 529:
		return true
	}
	msg := strings.ToLower(e.Err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota")
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
type MockModel struct {
	info      Info
	responses map[string]string
	toolCalls map[string][]ToolCall
	err       error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider, SupportsTools: true},
		responses: make(map[string]string),
		toolCalls: make(map[string][]ToolCall),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// AddToolCall registers a tool call to be issued once for an input prompt.
// The canned response for the same prompt is returned on the following call.
func (m *MockModel) AddToolCall(prompt string, calls ...ToolCall) { m.toolCalls[prompt] = calls }

// Fail makes every subsequent call return err.
func (m *MockModel) Fail(err error) { m.err = err }

func (m *MockModel) lastUserText(req Request) string {
	for i := len(req.Turns) - 1; i >= 0; i-- {
		if req.Turns[i].Role == core.RoleUser {
			return req.Turns[i].Content
		}
	}
	return ""
}

// respond resolves the canned behavior for the request. Tool calls are
// consumed once so the follow-up call yields the text response.
func (m *MockModel) respond(req Request) Response {
	input := m.lastUserText(req)
	if calls, ok := m.toolCalls[input]; ok {
		delete(m.toolCalls, input)
		return Response{ToolCalls: calls, FinishReason: "tool_calls"}
	}
	full := m.responses[input]
	if full == "" {
		full = fmt.Sprintf("Mock response to: %s", input)
	}
	return Response{Text: full, FinishReason: "stop"}
}

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (*Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(req.Turns) == 0 {
		return nil, fmt.Errorf("no turns provided")
	}
	resp := m.respond(req)
	return &resp, nil
}

// Stream implements Model; emits per-rune text chunks then the final response.
func (m *MockModel) Stream(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if m.err != nil {
			errCh <- m.err
			return
		}
		if len(req.Turns) == 0 {
			errCh <- fmt.Errorf("no turns provided")
			return
		}
		final := m.respond(req)
		for _, r := range final.Text {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case respCh <- Response{Partial: true, TextDelta: string(r)}:
			}
		}
		respCh <- final
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
