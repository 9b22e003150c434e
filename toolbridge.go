package toolbridge

import (
	"context"
	"encoding/json"
)

// KindFunction is the invocation kind used by current model backends.
// The field is carried verbatim so new kinds can pass through untouched.
const KindFunction = "function"

// ToolCall is a single complete invocation requested by the model:
// either delivered whole in a non-streaming response, or reconstructed
// from fragments by a CallBuffer.
type ToolCall struct {
	ID   string
	Name string
	Kind string
	Args json.RawMessage // JSON payload of arguments
}

// ErrorKind classifies a failed tool execution. Every failure path of the
// Executor maps to exactly one kind; the kind is embedded in the message
// sent back to the model so it can self-correct.
type ErrorKind string

const (
	ErrKindMissingParameter ErrorKind = "missing_parameter"
	ErrKindInvalidType      ErrorKind = "invalid_type"
	ErrKindInvalidValue     ErrorKind = "invalid_value"
	ErrKindInvalidArguments ErrorKind = "invalid_arguments"
	ErrKindAuthentication   ErrorKind = "authentication_error"
	ErrKindRateLimited      ErrorKind = "rate_limit_exceeded"
	ErrKindExecution        ErrorKind = "execution_error"
)

// ToolResult is the outcome of executing one invocation. Produced by
// Executor.ExecuteCall, consumed immediately by the orchestrator to build
// the next tool turn; not retained beyond that turn.
type ToolResult struct {
	CallID   string
	ToolName string
	Kind     ErrorKind       // empty on success
	Result   json.RawMessage // success payload
	// ResultsCount is the element count when the payload is a list
	// (e.g. search hits); zero otherwise.
	ResultsCount int
	// Message is the LLM-facing detail for failures: the offending
	// parameter, a corrected usage example, and a retry instruction.
	Message string
	// Err is the underlying Go error, kept for callers and hooks.
	// It is never rendered to the model for system-class failures.
	Err error
}

// IsError reports whether the result is a structured error.
func (r ToolResult) IsError() bool { return r.Kind != "" }

// ExecutionSummary is passed to the after-execution hook (WithOnAfterExecute)
// when a tool execution finishes, success or error.
type ExecutionSummary struct {
	CallID   string
	ToolName string
	Kind     ErrorKind
	Err      error
}

// contextKey is a private type for context keys to prevent collisions.
type contextKey string

const userContextKey contextKey = "user"

// ContextWithUser returns a context carrying the per-request user identifier.
// The orchestrator sets it once per run; tool handlers read it to scope
// side effects (e.g. which account's documents a search may touch).
func ContextWithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext extracts the user identifier, or "" if none was set.
func UserFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userContextKey).(string); ok {
		return v
	}
	return ""
}
