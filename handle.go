package strand

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// RunState represents the execution state of a spawned prompt run.
type RunState int32

const (
	// StatePending indicates the run has been spawned but has not started.
	StatePending RunState = iota
	// StateRunning indicates generation is in progress.
	StateRunning
	// StateCompleted indicates the run finished successfully.
	StateCompleted
	// StateFailed indicates the run returned an error.
	StateFailed
	// StateCancelled indicates the run was cancelled via Cancel() or parent context.
	StateCancelled
)

// String returns the state name.
func (s RunState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state is a final state
// (completed, failed, or cancelled).
func (s RunState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// SpawnOption configures a Spawn call.
type SpawnOption func(*spawnConfig)

type spawnConfig struct {
	logger *slog.Logger
	opts   []GenerateOption
}

// SpawnLogger sets the structured logger for spawn lifecycle events.
// When set, Spawn logs run start, completion, failure, cancellation,
// and panic recovery.
func SpawnLogger(l *slog.Logger) SpawnOption {
	return func(c *spawnConfig) { c.logger = l }
}

// SpawnGenerateOptions forwards generation options to the background run.
func SpawnGenerateOptions(opts ...GenerateOption) SpawnOption {
	return func(c *spawnConfig) { c.opts = append(c.opts, opts...) }
}

// RunHandle tracks a background prompt execution.
// All methods are safe for concurrent use.
type RunHandle struct {
	id     string
	prompt *ExecutablePrompt
	state  atomic.Int32
	result *ModelResponse
	err    error
	done   chan struct{}
	cancel context.CancelFunc
}

// Spawn launches prompt.Execute(ctx, input) in a background goroutine.
// Returns immediately with a handle for tracking, awaiting, and cancelling.
// The parent ctx controls the run's lifetime; cancelling it cancels the run.
func Spawn(ctx context.Context, prompt *ExecutablePrompt, input any, opts ...SpawnOption) *RunHandle {
	var cfg spawnConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = nopLogger
	}
	logger := cfg.logger

	ctx, cancel := context.WithCancel(ctx)
	h := &RunHandle{
		id:     NewID(),
		prompt: prompt,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	h.state.Store(int32(StatePending))

	logger.Info("run spawned", "prompt", prompt.Name(), "handle_id", h.id)

	go func() {
		defer cancel() // release context resources on completion
		defer func() {
			if p := recover(); p != nil {
				logger.Error("spawned run panic", "prompt", prompt.Name(), "handle_id", h.id, "panic", fmt.Sprintf("%v", p))
				h.result = nil
				h.err = fmt.Errorf("run panic: %v", p)
				h.state.Store(int32(StateFailed))
				close(h.done)
			}
		}()
		h.state.Store(int32(StateRunning))
		start := time.Now()
		result, err := prompt.Execute(ctx, input, cfg.opts...)

		// Write result/err before close(done). The channel close is the
		// happens-before barrier: all readers (<-h.done in Await, State,
		// Result) are guaranteed to see these writes after the close.
		h.result = result
		h.err = err
		if ctx.Err() != nil && err != nil {
			h.state.Store(int32(StateCancelled))
			logger.Info("spawned run cancelled", "prompt", prompt.Name(), "handle_id", h.id, "duration", time.Since(start))
		} else if err != nil {
			h.state.Store(int32(StateFailed))
			logger.Error("spawned run failed", "prompt", prompt.Name(), "handle_id", h.id, "error", err, "duration", time.Since(start))
		} else {
			h.state.Store(int32(StateCompleted))
			logger.Info("spawned run completed", "prompt", prompt.Name(), "handle_id", h.id,
				"duration", time.Since(start),
				"tokens.input", result.Usage.InputTokens,
				"tokens.output", result.Usage.OutputTokens)
		}
		close(h.done)
	}()

	return h
}

// ID returns the unique execution identifier (UUIDv7, time-sortable).
func (h *RunHandle) ID() string { return h.id }

// Prompt returns the prompt being executed.
func (h *RunHandle) Prompt() *ExecutablePrompt { return h.prompt }

// State returns the current execution state.
// If the state is terminal, State blocks until Done() is closed (nanoseconds)
// to guarantee that Result() returns valid data when State().IsTerminal() is true.
func (h *RunHandle) State() RunState {
	s := RunState(h.state.Load())
	if s.IsTerminal() {
		<-h.done
	}
	return s
}

// Done returns a channel closed when execution finishes (any terminal state).
// Composable with select for multiplexing multiple handles.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Await blocks until the run completes or ctx is cancelled.
// Returns the run's response and error on completion.
// Returns a nil response and ctx.Err() if ctx is cancelled before completion.
func (h *RunHandle) Await(ctx context.Context) (*ModelResponse, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the response and error. Only meaningful after Done() is
// closed. Before completion, returns nil and nil.
func (h *RunHandle) Result() (*ModelResponse, error) {
	select {
	case <-h.done:
		return h.result, h.err
	default:
		return nil, nil
	}
}

// Cancel requests cancellation. Non-blocking.
// The run receives a cancelled context. State transitions to StateCancelled
// once generation returns.
func (h *RunHandle) Cancel() { h.cancel() }
