package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aidenhq/aiden/core"
	"github.com/aidenhq/aiden/logging"
	"github.com/aidenhq/aiden/model"
	"github.com/aidenhq/aiden/tool"
)

// Defaults applied by NewLoop when the corresponding option is unset.
const (
	DefaultMaxToolCalls    = 8
	DefaultMaxHistoryTurns = 10
	DefaultToolResultCap   = 2000
)

// Options configures a Loop.
type Options struct {
	// Instructions is the system prompt prepended to every model request.
	Instructions string

	// MaxToolCalls bounds the total number of tool invocations in one run.
	// Exceeding it aborts the run with a terminal error event.
	MaxToolCalls int

	// MaxHistoryTurns bounds how many trailing turns of session history are
	// sent to the model. <= 0 sends the full history.
	MaxHistoryTurns int

	// ToolResultCap truncates tool results to this many bytes before they
	// are persisted and fed back to the model.
	ToolResultCap int

	// Logger receives run lifecycle logs.
	Logger logging.Logger
}

// Loop drives a single assistant conversation turn end to end: it loads
// session history, streams the model, executes requested tools, feeds results
// back, and persists every turn along the way. Progress surfaces on an
// ordered event channel; each run ends with exactly one final_response or
// error event unless the caller cancels first.
type Loop struct {
	model    model.Model
	store    core.MemoryStore
	registry *tool.Registry
	gate     *SessionGate
	opts     Options
}

// NewLoop wires a Loop from its collaborators.
func NewLoop(m model.Model, store core.MemoryStore, registry *tool.Registry, optFns ...func(o *Options)) *Loop {
	opts := Options{
		MaxToolCalls:    DefaultMaxToolCalls,
		MaxHistoryTurns: DefaultMaxHistoryTurns,
		ToolResultCap:   DefaultToolResultCap,
		Logger:          logging.NewDefaultSlogLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Loop{
		model:    m,
		store:    store,
		registry: registry,
		gate:     NewSessionGate(),
		opts:     opts,
	}
}

// Run processes one user message in the given session. Validation and
// admission failures are returned synchronously (core.ErrMalformedRequest,
// core.ErrSessionBusy); after that the returned channel carries the ordered
// event sequence and is closed when the run ends.
//
// Cancelling ctx stops the run cooperatively at the next suspension point.
// Whatever assistant text had streamed by then is persisted as an incomplete
// turn so the session history never silently loses work.
func (l *Loop) Run(ctx context.Context, sessionID, message string) (<-chan core.StreamEvent, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: empty session id", core.ErrMalformedRequest)
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: empty message", core.ErrMalformedRequest)
	}

	if !l.gate.Acquire(sessionID) {
		return nil, fmt.Errorf("%w: session %s has an active run", core.ErrSessionBusy, sessionID)
	}

	// The user turn lands before any model work so it survives whatever
	// happens downstream.
	if err := l.store.AppendTurn(sessionID, core.NewUserTurn(message)); err != nil {
		l.gate.Release(sessionID)
		return nil, fmt.Errorf("failed to persist user turn: %w", err)
	}

	events := make(chan core.StreamEvent, 64)

	go func() {
		defer close(events)
		defer l.gate.Release(sessionID)
		l.run(ctx, sessionID, events)
	}()

	return events, nil
}

// run executes the model/tool rounds. It owns the event channel for the
// duration and is the only writer.
func (l *Loop) run(ctx context.Context, sessionID string, events chan<- core.StreamEvent) {
	logger := l.opts.Logger

	emit := func(ev core.StreamEvent) bool {
		select {
		case <-ctx.Done():
			return false
		case events <- ev:
			return true
		}
	}

	// partial accumulates streamed assistant text of the current round so a
	// cancelled run can persist what the user already saw.
	var partial strings.Builder

	persistPartial := func() {
		if partial.Len() == 0 {
			return
		}
		if err := l.store.AppendTurn(sessionID, core.NewAssistantTurn(partial.String(), true)); err != nil {
			logger.Error("agent.run.persist_partial.failed", "session_id", sessionID, "error", err.Error())
		}
	}

	toolCalls := 0

	for {
		if ctx.Err() != nil {
			persistPartial()
			return
		}

		history, err := l.store.History(sessionID, l.opts.MaxHistoryTurns)
		if err != nil {
			logger.Error("agent.run.history.failed", "session_id", sessionID, "error", err.Error())
			emit(core.ErrorEvent(fmt.Sprintf("failed to load session history: %v", err)))
			return
		}

		req := model.Request{
			Instructions: l.opts.Instructions,
			Turns:        history,
			Tools:        l.registry.Definitions(),
		}

		final, ok := l.streamModel(ctx, req, &partial, emit)
		if !ok {
			persistPartial()
			return
		}

		// Plain answer, no tool use: persist and finish.
		if len(final.ToolCalls) == 0 {
			text := final.Text
			if text == "" {
				text = partial.String()
			}
			if err := l.store.AppendTurn(sessionID, core.NewAssistantTurn(text, false)); err != nil {
				logger.Error("agent.run.persist.failed", "session_id", sessionID, "error", err.Error())
				emit(core.ErrorEvent(fmt.Sprintf("failed to persist assistant turn: %v", err)))
				return
			}
			partial.Reset()
			emit(core.FinalEvent(text))
			return
		}

		for _, call := range final.ToolCalls {
			toolCalls++
			if toolCalls > l.opts.MaxToolCalls {
				logger.Warn("agent.run.tool_limit", "session_id", sessionID, "limit", l.opts.MaxToolCalls)
				persistPartial()
				emit(core.ErrorEvent(fmt.Sprintf("tool call limit of %d exceeded", l.opts.MaxToolCalls)))
				return
			}

			if !emit(core.ToolStartEvent(call.Name, string(call.Arguments))) {
				persistPartial()
				return
			}

			resultText := l.invokeTool(ctx, call)
			if ctx.Err() != nil {
				persistPartial()
				return
			}

			if !emit(core.ToolEndEvent(call.Name, resultText)) {
				persistPartial()
				return
			}

			if err := l.store.AppendTurn(sessionID, core.NewToolTurn(call.Name, resultText)); err != nil {
				logger.Error("agent.run.persist_tool.failed", "session_id", sessionID, "tool", call.Name, "error", err.Error())
				emit(core.ErrorEvent(fmt.Sprintf("failed to persist tool turn: %v", err)))
				return
			}
		}

		// Text that streamed alongside tool calls belongs to this round only;
		// the next round starts a fresh accumulation.
		partial.Reset()
	}
}

// streamModel relays one model round: chunk events for each text delta, then
// the final response. A false return means the run is over (cancelled, or a
// terminal error event was already emitted).
func (l *Loop) streamModel(ctx context.Context, req model.Request, partial *strings.Builder, emit func(core.StreamEvent) bool) (*model.Response, bool) {
	respCh, errCh := l.model.Stream(ctx, req)

	var final *model.Response
	for respCh != nil || errCh != nil {
		select {
		case resp, open := <-respCh:
			if !open {
				respCh = nil
				continue
			}
			if resp.Partial {
				if resp.TextDelta == "" {
					continue
				}
				partial.WriteString(resp.TextDelta)
				if !emit(core.ChunkEvent(resp.TextDelta)) {
					return nil, false
				}
				continue
			}
			r := resp
			final = &r
		case err, open := <-errCh:
			if !open {
				errCh = nil
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil, false
				}
				l.opts.Logger.Error("agent.run.model.failed", "error", err.Error())
				emit(core.ErrorEvent(fmt.Sprintf("model request failed: %v", err)))
				return nil, false
			}
		}
	}

	if final == nil {
		emit(core.ErrorEvent("model stream ended without a response"))
		return nil, false
	}
	return final, true
}

// invokeTool executes one tool call and renders the outcome as text. Tool
// failures never abort the run; they come back error-shaped so the model can
// react to them.
func (l *Loop) invokeTool(ctx context.Context, call model.ToolCall) string {
	result, err := l.registry.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		if ctx.Err() != nil {
			return ""
		}
		return l.truncate(renderToolError(call.Name, err))
	}
	return l.truncate(renderToolResult(result))
}

// truncate caps a tool result so a single oversized payload cannot blow up
// history or the model context.
func (l *Loop) truncate(s string) string {
	if l.opts.ToolResultCap <= 0 || len(s) <= l.opts.ToolResultCap {
		return s
	}
	return s[:l.opts.ToolResultCap] + " [truncated]"
}

func renderToolResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func renderToolError(name string, err error) string {
	if toolErr, ok := err.(*tool.ToolError); ok {
		data, merr := json.Marshal(toolErr)
		if merr == nil {
			return string(data)
		}
	}
	return fmt.Sprintf(`{"tool":%q,"message":%q,"code":"EXECUTION_ERROR"}`, name, err.Error())
}
