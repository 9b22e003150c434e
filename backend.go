package toolbridge

import "context"

// Role identifies a conversation turn's author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one conversation entry. Turns are appended in strict
// chronological order; the orchestrator never reorders them.
type Turn struct {
	Role    Role
	Content string
	// ToolCalls holds the invocations an assistant turn requested.
	ToolCalls []ToolCall
	// ToolCallID names the invocation a tool turn answers.
	ToolCallID string
	ToolName   string
	// IsError marks a tool turn that carries a structured error.
	IsError bool
}

// SystemTurn, UserTurn, and AssistantTurn build plain text turns.
func SystemTurn(text string) Turn    { return Turn{Role: RoleSystem, Content: text} }
func UserTurn(text string) Turn      { return Turn{Role: RoleUser, Content: text} }
func AssistantTurn(text string) Turn { return Turn{Role: RoleAssistant, Content: text} }

// assistantCallTurn builds the assistant turn recording a round's text and
// the invocations it requested.
func assistantCallTurn(text string, calls []ToolCall) Turn {
	return Turn{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// toolTurn builds the tool turn answering one invocation with its
// LLM-rendered result.
func toolTurn(res ToolResult, content string) Turn {
	return Turn{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: res.CallID,
		ToolName:   res.ToolName,
		IsError:    res.IsError(),
	}
}

// FinishReason is the backend's terminal signal for one model turn.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// Response is a complete, non-streamed model reply.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason FinishReason
}

// Delta is one incremental piece of a tool invocation inside a streamed
// fragment. ID addresses the invocation; Name and Kind may arrive on a
// later fragment than the id; Arguments carries the next slice of argument
// text; Finished signals end-of-turn for this invocation alone.
type Delta struct {
	ID        string
	Name      string
	Kind      string
	Arguments string
	Finished  bool
}

// Fragment is one incremental piece of a streamed model response. A
// fragment may carry conversational text, tool-invocation deltas, and/or a
// finish reason; a finish reason applies to every buffered invocation at
// once (the whole-batch end-of-turn signal).
type Fragment struct {
	Content      string
	Deltas       []Delta
	FinishReason FinishReason
}

// FragmentStream yields fragments in arrival order until io.EOF. It is a
// single-consumer, ordered pull: argument reconstruction is an
// order-dependent concatenation, so fragments must not be reordered.
type FragmentStream interface {
	Recv() (Fragment, error)
	Close() error
}

// Request is one outbound model call assembled by the orchestrator. Tools
// always come from Executor.Definitions, so what is advertised matches
// what can be validated and executed.
type Request struct {
	Conversation []Turn
	Tools        []Definition
}

// Backend is the model client contract this core requires. Connectivity
// failures propagate to the orchestrator's caller unchanged; this core
// does not retry them.
type Backend interface {
	// Complete issues a single blocking call and returns the full
	// response, including any tool invocations and a finish reason.
	Complete(ctx context.Context, req Request) (*Response, error)
	// Stream issues a streamed call yielding ordered fragments.
	Stream(ctx context.Context, req Request) (FragmentStream, error)
}
