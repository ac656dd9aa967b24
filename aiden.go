// Package aiden provides a high-level façade over the agent loop and its
// collaborators (model providers, tools, memory, voice) enabling rapid
// construction of assistant applications. Most applications interact with
// this package by:
//  1. Creating an Assistant via New() (optionally overriding the defaults)
//  2. Registering tools
//  3. Submitting turns asynchronously (ChatStream) or synchronously (Chat)
//
// The façade delegates orchestration to agent.Loop while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply durable stores and real
// model providers.
package aiden

import (
	"context"
	"fmt"

	"github.com/aidenhq/aiden/agent"
	"github.com/aidenhq/aiden/core"
	"github.com/aidenhq/aiden/logging"
	"github.com/aidenhq/aiden/memory"
	"github.com/aidenhq/aiden/model"
	"github.com/aidenhq/aiden/tool"
)

// Options configures the Assistant instance.
type Options struct {
	// Model generates completions. Required for real use; defaults to a
	// MockModel so the façade is constructible in tests without credentials.
	Model model.Model

	// MemoryStore persists conversation history (defaults to in-memory).
	MemoryStore core.MemoryStore

	// Registry holds the tools exposed to the model (defaults to empty).
	Registry *tool.Registry

	// Instructions is the assistant's system prompt.
	Instructions string

	// MaxToolCalls bounds tool invocations per turn.
	MaxToolCalls int

	// MaxHistoryTurns bounds how much history is sent to the model.
	MaxHistoryTurns int

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Assistant is the high-level façade aggregating the loop and its services.
type Assistant struct {
	opts Options
	loop *agent.Loop
}

// New creates an Assistant with optional overrides. Any unset service is
// initialized with an in-memory or inert implementation.
func New(optFns ...func(o *Options)) *Assistant {
	opts := Options{
		Model:           model.NewMockModel("mock", "mock"),
		MemoryStore:     memory.NewInMemoryStore(),
		Registry:        tool.NewRegistry(),
		MaxToolCalls:    agent.DefaultMaxToolCalls,
		MaxHistoryTurns: agent.DefaultMaxHistoryTurns,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	loop := agent.NewLoop(opts.Model, opts.MemoryStore, opts.Registry, func(o *agent.Options) {
		o.Instructions = opts.Instructions
		o.MaxToolCalls = opts.MaxToolCalls
		o.MaxHistoryTurns = opts.MaxHistoryTurns
		o.Logger = opts.Logger
	})

	return &Assistant{opts: opts, loop: loop}
}

// RegisterTool adds a tool to the underlying registry.
func (a *Assistant) RegisterTool(t tool.Tool) error {
	return a.opts.Registry.Register(t)
}

// Loop exposes the underlying agent loop, e.g. for wiring into a server.
func (a *Assistant) Loop() *agent.Loop { return a.loop }

// ChatStream starts an asynchronous turn returning the ordered event channel.
func (a *Assistant) ChatStream(ctx context.Context, sessionID, message string) (<-chan core.StreamEvent, error) {
	return a.loop.Run(ctx, sessionID, message)
}

// Chat is a synchronous helper that drains the event channel and returns the
// final response text.
func (a *Assistant) Chat(ctx context.Context, sessionID, message string) (string, error) {
	events, err := a.loop.Run(ctx, sessionID, message)
	if err != nil {
		return "", err
	}

	var final core.StreamEvent
	for ev := range events {
		if ev.IsTerminal() {
			final = ev
		}
	}

	switch final.Type {
	case core.EventFinalResponse:
		return final.Content, nil
	case core.EventError:
		return "", fmt.Errorf("turn failed: %s", final.Detail)
	default:
		return "", ctx.Err()
	}
}
