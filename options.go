package toolbridge

import (
	"context"
	"log/slog"
	"time"
)

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorOptions)

type executorOptions struct {
	timeout        time.Duration
	maxConcurrency int
	recoverPanics  bool
	logger         *slog.Logger
	onBefore       func(context.Context, ToolCall)
	onAfter        func(context.Context, ToolCall, ExecutionSummary, time.Duration)
}

// WithDefaultTimeout sets the default execution timeout for tools. A tool's
// own Timeout overrides it. A timed-out execution is reported as an
// execution_error result, never as a failure of the whole request.
func WithDefaultTimeout(d time.Duration) ExecutorOption {
	return func(o *executorOptions) {
		o.timeout = d
	}
}

// WithMaxConcurrency limits concurrent tool executions (semaphore).
// Pass 0 or negative to disable the limit.
func WithMaxConcurrency(n int) ExecutorOption {
	return func(o *executorOptions) {
		o.maxConcurrency = n
	}
}

// WithRecoverPanics enables panic recovery in handler dispatch (on by
// default); a recovered panic becomes an execution_error result.
func WithRecoverPanics(enable bool) ExecutorOption {
	return func(o *executorOptions) {
		o.recoverPanics = enable
	}
}

// WithLogger sets the slog logger used to record each execution's start,
// end, duration, and error.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(o *executorOptions) {
		o.logger = logger
	}
}

// WithOnBeforeExecute sets a hook called before each tool execution.
func WithOnBeforeExecute(fn func(context.Context, ToolCall)) ExecutorOption {
	return func(o *executorOptions) {
		o.onBefore = fn
	}
}

// WithOnAfterExecute sets a hook called after each tool execution finishes,
// success or error.
func WithOnAfterExecute(fn func(context.Context, ToolCall, ExecutionSummary, time.Duration)) ExecutorOption {
	return func(o *executorOptions) {
		o.onAfter = fn
	}
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*orchestratorOptions)

type orchestratorOptions struct {
	maxRounds      int
	maxToolRetries int
	parallelTools  bool
}

// WithMaxRounds bounds the number of model calls in one run. When the
// budget runs out the last model content is returned as-is; the loop
// never continues past it.
func WithMaxRounds(n int) OrchestratorOption {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithMaxToolRetries caps failed execution attempts per invocation id
// before the run ends with a *RetryLimitError.
func WithMaxToolRetries(n int) OrchestratorOption {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.maxToolRetries = n
		}
	}
}

// WithParallelTools controls whether the independent invocations within
// one round are dispatched concurrently (on by default). The round itself
// stays sequential either way.
func WithParallelTools(enable bool) OrchestratorOption {
	return func(o *orchestratorOptions) {
		o.parallelTools = enable
	}
}
