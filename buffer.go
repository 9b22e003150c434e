package toolbridge

import (
	"encoding/json"
	"strings"
)

// emptyArgs is what ParseArguments yields for an invocation whose arguments
// never arrived. Models routinely call zero-parameter tools that way.
var emptyArgs = json.RawMessage("{}")

// invocation is the buffered state of one tool call under reconstruction.
// Argument text grows only by concatenation; a structured value is kept
// as-is until a later fragment forces coercion back to text.
type invocation struct {
	id         string
	name       string
	kind       string
	args       strings.Builder
	structured json.RawMessage // set when arguments arrived whole
	finished   bool
}

// argsText returns the textual form of the accumulated arguments.
func (inv *invocation) argsText() string {
	if inv.structured != nil {
		return string(inv.structured)
	}
	return inv.args.String()
}

// CallBuffer accumulates tool-invocation identity and argument fragments
// across a streamed model response, keyed by invocation id. One buffer is
// owned by exactly one orchestration run, so no locking is needed.
//
// Completeness is purely a function of the argument text's parseability;
// finished-ness is purely a function of explicit backend signaling. An
// invocation is executable only when both hold: a premature finish signal
// must never cause execution on partially-typed argument text.
type CallBuffer struct {
	byID  map[string]*invocation
	order []string // insertion order, preserved for deterministic execution
}

// NewCallBuffer creates an empty buffer.
func NewCallBuffer() *CallBuffer {
	return &CallBuffer{byID: make(map[string]*invocation)}
}

// AddInvocation upserts the invocation identity carried by a fragment.
// For a known id, previously seen name and arguments are kept unless the
// fragment supplies a non-empty value. Argument text passed here replaces
// the accumulated value; use AppendArguments for incremental fragments.
func (b *CallBuffer) AddInvocation(id, name, args, kind string) {
	inv, ok := b.byID[id]
	if !ok {
		inv = &invocation{id: id, kind: KindFunction}
		b.byID[id] = inv
		b.order = append(b.order, id)
	}
	if name != "" && inv.name == "" {
		inv.name = name
	}
	if kind != "" {
		inv.kind = kind
	}
	if args != "" {
		inv.structured = nil
		inv.args.Reset()
		inv.args.WriteString(args)
	}
}

// AddCall buffers a whole invocation from a non-streaming response: the
// already-structured arguments are stored as-is.
func (b *CallBuffer) AddCall(call ToolCall) {
	inv, ok := b.byID[call.ID]
	if !ok {
		inv = &invocation{id: call.ID, kind: KindFunction}
		b.byID[call.ID] = inv
		b.order = append(b.order, call.ID)
	}
	if call.Name != "" && inv.name == "" {
		inv.name = call.Name
	}
	if call.Kind != "" {
		inv.kind = call.Kind
	}
	if len(call.Args) > 0 {
		inv.args.Reset()
		inv.structured = append(json.RawMessage(nil), call.Args...)
	}
}

// AppendArguments concatenates an argument fragment onto the invocation's
// accumulated text. A previously structured value is coerced to its textual
// form first. The id must already be present: fragments arrive in order, so
// an argument delta before any identity delta is a caller bug.
func (b *CallBuffer) AppendArguments(id, fragment string) error {
	inv, ok := b.byID[id]
	if !ok {
		return ErrUnknownInvocation
	}
	if inv.structured != nil {
		inv.args.Reset()
		inv.args.WriteString(string(inv.structured))
		inv.structured = nil
	}
	inv.args.WriteString(fragment)
	return nil
}

// Contains reports whether the id has been buffered.
func (b *CallBuffer) Contains(id string) bool {
	_, ok := b.byID[id]
	return ok
}

// Len returns the number of buffered invocations.
func (b *CallBuffer) Len() int { return len(b.order) }

// MarkFinished records the backend's end-of-turn signal for one invocation.
// An unknown id is ignored: a finish signal never fabricates state.
func (b *CallBuffer) MarkFinished(id string) {
	if inv, ok := b.byID[id]; ok {
		inv.finished = true
	}
}

// MarkAllFinished records an end-of-turn signal that applies to every
// currently buffered invocation, the way backends that finish the whole
// batch at once report it.
func (b *CallBuffer) MarkAllFinished() {
	for _, inv := range b.byID {
		inv.finished = true
	}
}

// IsComplete reports whether the invocation's arguments are empty, already
// structured, or parse as valid JSON. Unknown ids are not complete.
func (b *CallBuffer) IsComplete(id string) bool {
	inv, ok := b.byID[id]
	if !ok {
		return false
	}
	return argsParseable(inv)
}

// IsFinished reports whether the backend has signaled end-of-turn for the
// invocation. Unknown ids are not finished.
func (b *CallBuffer) IsFinished(id string) bool {
	inv, ok := b.byID[id]
	return ok && inv.finished
}

// ParseArguments returns the invocation's arguments as structured JSON.
// Empty or absent arguments yield an empty object, never an error; text
// that does not parse fails with ErrMalformedArguments.
func (b *CallBuffer) ParseArguments(id string) (json.RawMessage, error) {
	inv, ok := b.byID[id]
	if !ok {
		return emptyArgs, nil
	}
	if inv.structured != nil {
		return inv.structured, nil
	}
	text := inv.args.String()
	if strings.TrimSpace(text) == "" {
		return emptyArgs, nil
	}
	if !json.Valid([]byte(text)) {
		return nil, ErrMalformedArguments
	}
	return json.RawMessage(text), nil
}

// FinishedAndReady returns, in arrival order, every invocation that is both
// complete and finished: the only set eligible for execution.
func (b *CallBuffer) FinishedAndReady() []ToolCall {
	var calls []ToolCall
	for _, id := range b.order {
		inv := b.byID[id]
		if !inv.finished || !argsParseable(inv) {
			continue
		}
		args, err := b.ParseArguments(id)
		if err != nil {
			continue
		}
		calls = append(calls, ToolCall{ID: inv.id, Name: inv.name, Kind: inv.kind, Args: args})
	}
	return calls
}

// FinishedMalformed returns finished invocations whose argument text does
// not parse. They cannot be executed, but the orchestrator still owes the
// model a structured invalid_arguments answer for each; the raw text is
// carried through so the executor can report the parse failure.
func (b *CallBuffer) FinishedMalformed() []ToolCall {
	var calls []ToolCall
	for _, id := range b.order {
		inv := b.byID[id]
		if !inv.finished || argsParseable(inv) {
			continue
		}
		calls = append(calls, ToolCall{
			ID:   inv.id,
			Name: inv.name,
			Kind: inv.kind,
			Args: json.RawMessage(inv.args.String()),
		})
	}
	return calls
}

func argsParseable(inv *invocation) bool {
	if inv.structured != nil {
		return true
	}
	text := inv.args.String()
	if strings.TrimSpace(text) == "" {
		return true
	}
	return json.Valid([]byte(text))
}
