package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aidenhq/aiden/core"
	"github.com/aidenhq/aiden/logging"
	"github.com/aidenhq/aiden/model"
)

// DefaultTimeout bounds a single tool invocation unless overridden.
const DefaultTimeout = 10 * time.Second

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Timeout is the per-invocation deadline applied by Invoke.
	Timeout time.Duration

	// Logger receives invocation lifecycle logs.
	Logger logging.Logger
}

// Registry holds the set of tools available to the assistant and executes
// them on behalf of the agent loop. Execution is bounded by a per-invocation
// timeout, and panics inside tool code are recovered and converted into
// *ToolError so a misbehaving tool can never take down a turn.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	opts  RegistryOptions
}

// NewRegistry creates an empty tool registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Timeout: DefaultTimeout,
		Logger:  logging.NewDefaultSlogLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		tools: make(map[string]Tool),
		opts:  opts,
	}
}

// Register adds a tool to the registry. Registering a name twice is an error.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	r.tools[name] = t
	return nil
}

// MustRegister is Register that panics on error, for static wiring at startup.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Definitions returns function declarations for every registered tool,
// ready to attach to a model request.
func (r *Registry) Definitions() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]model.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Invoke executes the named tool with raw JSON arguments under the registry's
// per-invocation timeout. All failure modes come back as *ToolError: unknown
// tool (NOT_FOUND), malformed arguments (VALIDATION_ERROR), deadline
// (TIMEOUT, wrapping core.ErrToolTimeout), and recovered panics (PANIC).
func (r *Registry) Invoke(ctx context.Context, name string, rawArgs json.RawMessage) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, NewToolError(name, "tool not found", CodeNotFound)
	}

	var args map[string]any
	if len(rawArgs) == 0 {
		args = map[string]any{}
	} else if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, &ToolError{
			Tool:    name,
			Message: fmt.Sprintf("failed to unmarshal arguments: %v", err),
			Code:    CodeValidation,
		}
	}

	invokeCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	start := time.Now()
	r.opts.Logger.Debug("tool.invoke.start", "tool", name)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.opts.Logger.Error("tool.invoke.panic", "tool", name, "recover", rec, "stack", string(debug.Stack()))
				done <- outcome{err: &ToolError{
					Tool:    name,
					Message: fmt.Sprintf("panic recovered: %v", rec),
					Code:    CodePanic,
				}}
			}
		}()
		result, err := t.Execute(invokeCtx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-invokeCtx.Done():
		if ctx.Err() != nil {
			// Caller cancelled the whole turn; propagate as-is.
			return nil, ctx.Err()
		}
		r.opts.Logger.Warn("tool.invoke.timeout", "tool", name, "timeout", r.opts.Timeout)
		return nil, &ToolError{
			Tool:    name,
			Message: fmt.Sprintf("%v: execution exceeded %s", core.ErrToolTimeout, r.opts.Timeout),
			Code:    CodeTimeout,
		}
	case out := <-done:
		r.opts.Logger.Info("tool.invoke.done",
			"tool", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", out.err != nil,
		)
		if out.err != nil {
			if toolErr, ok := out.err.(*ToolError); ok {
				return nil, toolErr
			}
			return nil, &ToolError{
				Tool:    name,
				Message: out.err.Error(),
				Code:    CodeExecution,
			}
		}
		return out.result, nil
	}
}
