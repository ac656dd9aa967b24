package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidenhq/aiden/core"
	"github.com/aidenhq/aiden/logging"
	"github.com/aidenhq/aiden/memory"
	"github.com/aidenhq/aiden/model"
	"github.com/aidenhq/aiden/tool"
)

func newTestLoop(m model.Model, optFns ...func(o *Options)) (*Loop, *memory.InMemoryStore, *tool.Registry) {
	store := memory.NewInMemoryStore()
	registry := tool.NewRegistry(func(o *tool.RegistryOptions) {
		o.Logger = logging.NoOpLogger{}
	})
	fns := append([]func(o *Options){func(o *Options) {
		o.Logger = logging.NoOpLogger{}
	}}, optFns...)
	return NewLoop(m, store, registry, fns...), store, registry
}

func collect(t *testing.T, events <-chan core.StreamEvent) []core.StreamEvent {
	t.Helper()
	var out []core.StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func terminalCount(events []core.StreamEvent) int {
	n := 0
	for _, ev := range events {
		if ev.IsTerminal() {
			n++
		}
	}
	return n
}

func calculatorTool() tool.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}
	return tool.NewFunctionTool("calculate_sum", "Add two numbers", params, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

func TestLoop_SimpleResponse(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.AddResponse("hello", "Hi! How can I help?")
	loop, store, _ := newTestLoop(m)

	events, err := loop.Run(context.Background(), "s1", "hello")
	require.NoError(t, err)

	all := collect(t, events)
	require.NotEmpty(t, all)

	// Chunks stream before the final event, which carries the full text.
	last := all[len(all)-1]
	assert.Equal(t, core.EventFinalResponse, last.Type)
	assert.Equal(t, "Hi! How can I help?", last.Content)
	assert.Equal(t, 1, terminalCount(all))

	var streamed string
	for _, ev := range all {
		if ev.Type == core.EventLLMChunk {
			streamed += ev.Content
		}
	}
	assert.Equal(t, "Hi! How can I help?", streamed)

	// User and assistant turns persisted in order.
	history, err := store.History("s1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, core.RoleUser, history[0].Role)
	assert.Equal(t, core.RoleAssistant, history[1].Role)
	assert.False(t, history[1].Incomplete)
}

func TestLoop_ToolRound(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.AddToolCall("what is 2+2?", model.ToolCall{
		ID:        "call1",
		Name:      "calculate_sum",
		Arguments: json.RawMessage(`{"a": 2, "b": 2}`),
	})
	m.AddResponse("what is 2+2?", "2+2 is 4.")

	loop, store, registry := newTestLoop(m)
	registry.MustRegister(calculatorTool())

	events, err := loop.Run(context.Background(), "s1", "what is 2+2?")
	require.NoError(t, err)
	all := collect(t, events)

	var types []core.EventType
	for _, ev := range all {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, core.EventToolStart)
	assert.Contains(t, types, core.EventToolEnd)
	assert.Equal(t, core.EventFinalResponse, all[len(all)-1].Type)
	assert.Equal(t, "2+2 is 4.", all[len(all)-1].Content)
	assert.Equal(t, 1, terminalCount(all))

	// tool_start precedes tool_end for the same tool.
	var startIdx, endIdx int
	for i, ev := range all {
		switch ev.Type {
		case core.EventToolStart:
			startIdx = i
			assert.Equal(t, "calculate_sum", ev.Name)
		case core.EventToolEnd:
			endIdx = i
			assert.Equal(t, "4", ev.Result)
		}
	}
	assert.Less(t, startIdx, endIdx)

	// History: user, tool result, assistant.
	history, err := store.History("s1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, core.RoleTool, history[1].Role)
	assert.Equal(t, "calculate_sum", history[1].ToolName)
	assert.Equal(t, "4", history[1].Content)
}

func TestLoop_ToolFailureIsNotFatal(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.AddToolCall("check", model.ToolCall{
		ID:        "call1",
		Name:      "broken",
		Arguments: json.RawMessage(`{}`),
	})
	m.AddResponse("check", "The tool is unavailable right now.")

	loop, _, registry := newTestLoop(m)
	registry.MustRegister(tool.NewFunctionTool("broken", "Always fails", map[string]any{"type": "object"}, func(_ context.Context, _ map[string]any) (any, error) {
		return nil, errors.New("backend offline")
	}))

	events, err := loop.Run(context.Background(), "s1", "check")
	require.NoError(t, err)
	all := collect(t, events)

	// The run still ends with a final response; the failure travels as an
	// error-shaped tool result.
	last := all[len(all)-1]
	assert.Equal(t, core.EventFinalResponse, last.Type)
	assert.Equal(t, 1, terminalCount(all))

	var toolEnd core.StreamEvent
	for _, ev := range all {
		if ev.Type == core.EventToolEnd {
			toolEnd = ev
		}
	}
	assert.Contains(t, toolEnd.Result, "EXECUTION_ERROR")
	assert.Contains(t, toolEnd.Result, "backend offline")
}

func TestLoop_UnknownToolIsNotFatal(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.AddToolCall("check", model.ToolCall{
		ID:        "call1",
		Name:      "no_such_tool",
		Arguments: json.RawMessage(`{}`),
	})
	m.AddResponse("check", "Sorry, I cannot do that.")

	loop, _, _ := newTestLoop(m)

	events, err := loop.Run(context.Background(), "s1", "check")
	require.NoError(t, err)
	all := collect(t, events)

	assert.Equal(t, core.EventFinalResponse, all[len(all)-1].Type)
	var toolEnd core.StreamEvent
	for _, ev := range all {
		if ev.Type == core.EventToolEnd {
			toolEnd = ev
		}
	}
	assert.Contains(t, toolEnd.Result, "NOT_FOUND")
}

// loopingModel requests the same tool call on every round, never settling on
// a final answer.
type loopingModel struct{}

func (loopingModel) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	return &model.Response{
		ToolCalls:    []model.ToolCall{{ID: "c", Name: "calculate_sum", Arguments: json.RawMessage(`{"a": 1, "b": 1}`)}},
		FinishReason: "tool_calls",
	}, nil
}

func (m loopingModel) Stream(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	resp, _ := m.Complete(ctx, req)
	respCh <- *resp
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (loopingModel) Info() model.Info {
	return model.Info{Name: "looping", Provider: "mock", SupportsTools: true}
}

func TestLoop_ToolCallLimit(t *testing.T) {
	loop, _, registry := newTestLoop(loopingModel{}, func(o *Options) {
		o.MaxToolCalls = 3
	})
	registry.MustRegister(calculatorTool())

	events, err := loop.Run(context.Background(), "s1", "loop forever")
	require.NoError(t, err)
	all := collect(t, events)

	last := all[len(all)-1]
	assert.Equal(t, core.EventError, last.Type)
	assert.Contains(t, last.Detail, "tool call limit")
	assert.Equal(t, 1, terminalCount(all))

	starts := 0
	for _, ev := range all {
		if ev.Type == core.EventToolStart {
			starts++
		}
	}
	assert.Equal(t, 3, starts)
}

func TestLoop_ModelFailure(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.Fail(errors.New("provider exploded"))
	loop, _, _ := newTestLoop(m)

	events, err := loop.Run(context.Background(), "s1", "hello")
	require.NoError(t, err)
	all := collect(t, events)

	require.NotEmpty(t, all)
	last := all[len(all)-1]
	assert.Equal(t, core.EventError, last.Type)
	assert.Contains(t, last.Detail, "provider exploded")
	assert.Equal(t, 1, terminalCount(all))
}

func TestLoop_MalformedRequest(t *testing.T) {
	loop, _, _ := newTestLoop(model.NewMockModel("mock", "mock"))

	_, err := loop.Run(context.Background(), "", "hello")
	assert.ErrorIs(t, err, core.ErrMalformedRequest)

	_, err = loop.Run(context.Background(), "s1", "   ")
	assert.ErrorIs(t, err, core.ErrMalformedRequest)
}

// blockingModel holds the stream open until released, so a test can observe
// an in-flight run.
type blockingModel struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (m *blockingModel) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	return &model.Response{Text: "done", FinishReason: "stop"}, nil
}

func (m *blockingModel) Stream(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(respCh)
		defer close(errCh)
		m.once.Do(func() { close(m.started) })
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case <-m.release:
			respCh <- model.Response{Text: "done", FinishReason: "stop"}
		}
	}()
	return respCh, errCh
}

func (m *blockingModel) Info() model.Info {
	return model.Info{Name: "blocking", Provider: "mock", SupportsTools: true}
}

func TestLoop_SessionBusy(t *testing.T) {
	m := &blockingModel{started: make(chan struct{}), release: make(chan struct{})}
	loop, _, _ := newTestLoop(m)

	events, err := loop.Run(context.Background(), "s1", "first")
	require.NoError(t, err)
	<-m.started

	_, err = loop.Run(context.Background(), "s1", "second")
	assert.ErrorIs(t, err, core.ErrSessionBusy)

	close(m.release)
	all := collect(t, events)
	assert.Equal(t, core.EventFinalResponse, all[len(all)-1].Type)

	// The session frees up once the first run completes.
	events, err = loop.Run(context.Background(), "s1", "third")
	require.NoError(t, err)
	collect(t, events)
}

func TestLoop_ConcurrentSessions(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	loop, store, _ := newTestLoop(m)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("session-%d", i)
			events, err := loop.Run(context.Background(), sessionID, "hello")
			if err != nil {
				t.Errorf("run %d: %v", i, err)
				return
			}
			for range events {
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		history, err := store.History(fmt.Sprintf("session-%d", i), 0)
		require.NoError(t, err)
		assert.Len(t, history, 2)
	}
}

// trickleModel streams text slowly so a test can cancel mid-stream.
type trickleModel struct {
	firstChunk chan struct{}
	once       sync.Once
}

func (m *trickleModel) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	return nil, errors.New("not used")
}

func (m *trickleModel) Stream(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response)
	errCh := make(chan error, 1)
	go func() {
		defer close(respCh)
		defer close(errCh)
		for i := 0; ; i++ {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case respCh <- model.Response{Partial: true, TextDelta: "word "}:
				m.once.Do(func() { close(m.firstChunk) })
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
	return respCh, errCh
}

func (m *trickleModel) Info() model.Info {
	return model.Info{Name: "trickle", Provider: "mock", SupportsTools: true}
}

func TestLoop_CancelPersistsPartialTurn(t *testing.T) {
	m := &trickleModel{firstChunk: make(chan struct{})}
	loop, store, _ := newTestLoop(m)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := loop.Run(ctx, "s1", "tell me a story")
	require.NoError(t, err)

	<-m.firstChunk
	// Let a few more chunks through before disconnecting.
	time.Sleep(20 * time.Millisecond)
	cancel()

	all := collect(t, events)
	// A cancelled run never emits a terminal event.
	assert.Equal(t, 0, terminalCount(all))

	history, err := store.History("s1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, core.RoleAssistant, history[1].Role)
	assert.True(t, history[1].Incomplete)
	assert.Contains(t, history[1].Content, "word")
}

func TestLoop_HistoryWindow(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	loop, store, _ := newTestLoop(m, func(o *Options) {
		o.MaxHistoryTurns = 4
	})

	for i := 0; i < 5; i++ {
		events, err := loop.Run(context.Background(), "s1", fmt.Sprintf("message %d", i))
		require.NoError(t, err)
		collect(t, events)
	}

	// The full history is persisted even though only a window is sent.
	history, err := store.History("s1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 10)
}
