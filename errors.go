package toolbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for toolbridge. Use errors.Is to check.
var (
	ErrToolNotFound = errors.New("tool not found")
	ErrTimeout      = errors.New("tool execution timeout")
	ErrValidation   = errors.New("validation failed")
	ErrShutdown     = errors.New("executor is shutting down")

	// Buffer-misuse errors. These indicate the caller drove the CallBuffer
	// API out of order (a programming error), not bad model output.
	ErrUnknownInvocation  = errors.New("unknown invocation id")
	ErrMalformedArguments = errors.New("arguments are not valid JSON")
)

// ClientError is an error that should be sent back to the LLM for
// self-correction (bad arguments, schema violation, invalid value).
// Do not expose stack traces or internal details to the LLM.
type ClientError struct {
	Kind   ErrorKind
	Reason string
	Err    error // wrapped sentinel for errors.Is/errors.As
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("invalid tool input: %s", e.Reason)
}

// Unwrap supports errors.Is/errors.As on wrapped chains.
func (e *ClientError) Unwrap() error { return e.Err }

// SystemError represents an internal failure (backend down, panic, etc.).
// The LLM should not see the underlying error message or stack.
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	return "internal system error during tool execution"
}

func (e *SystemError) Unwrap() error { return e.Err }

// IsClientError returns true if err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsSystemError returns true if err is or wraps a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}

// AuthError marks a tool failure caused by rejected credentials.
// Tool handlers should return it (wrapping the provider error) so
// classification does not depend on message text.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError marks a tool failure caused by provider throttling.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// RetryLimitError is returned by the orchestrator when one invocation keeps
// failing past the configured retry cap. It surfaces the last structured
// error kind so the caller can report a diagnosable failure to the client.
type RetryLimitError struct {
	CallID   string
	ToolName string
	Kind     ErrorKind
	Attempts int
}

func (e *RetryLimitError) Error() string {
	return fmt.Sprintf("tool %q (call %s) failed %d times, last error kind: %s",
		e.ToolName, e.CallID, e.Attempts, e.Kind)
}

// classifyError maps a handler error to an ErrorKind. Typed errors win;
// matching keywords in opaque error text is a best-effort fallback and
// must not be treated as authoritative.
func classifyError(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ErrKindAuthentication
	}
	var re *RateLimitError
	if errors.As(err, &re) {
		return ErrKindRateLimited
	}
	var ce *ClientError
	if errors.As(err, &ce) && ce.Kind != "" {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return ErrKindExecution
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "api key"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "401"):
		return ErrKindAuthentication
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"):
		return ErrKindRateLimited
	}
	return ErrKindExecution
}

// wrapJSONParseError returns a ClientError for JSON unmarshal failures so
// parse errors read consistently wherever they surface.
func wrapJSONParseError(err error) error {
	return &ClientError{
		Kind:   ErrKindInvalidArguments,
		Reason: "json parse error: " + err.Error(),
		Err:    ErrMalformedArguments,
	}
}
