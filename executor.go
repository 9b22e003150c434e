package toolbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"
)

// Executor holds registered tools and runs model-requested invocations with
// validation, timeout, bounded concurrency, and panic recovery. It is safe
// for concurrent use and may be shared across orchestration runs; all
// per-run state lives in the CallBuffer and RetryTracker.
type Executor struct {
	mu      sync.Mutex
	tools   map[string]*registeredTool
	sem     chan struct{}
	opts    executorOptions
	done    chan struct{}
	running sync.WaitGroup
}

// NewExecutor creates an Executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	o := executorOptions{
		timeout:        30 * time.Second,
		maxConcurrency: 10,
		recoverPanics:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	var sem chan struct{}
	if o.maxConcurrency > 0 {
		sem = make(chan struct{}, o.maxConcurrency)
	}
	return &Executor{
		tools: make(map[string]*registeredTool),
		sem:   sem,
		opts:  o,
		done:  make(chan struct{}),
	}
}

// Register compiles and adds a tool declaration. A tool with the same name
// is replaced. Safe for concurrent use with ExecuteCall.
func (e *Executor) Register(def ToolDef) error {
	rt, err := compileTool(def)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tools[def.Name] = rt
	return nil
}

// Definitions returns the schema descriptors for all registered tools,
// sorted by name for deterministic order. This is the single surface the
// outbound request builder advertises to the model; it is derived from the
// same compiled declarations ExecuteCall validates against.
func (e *Executor) Definitions() []Definition {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		rt := e.tools[name]
		defs = append(defs, Definition{
			Name:        name,
			Description: rt.def.Description,
			Schema:      rt.schema,
		})
	}
	return defs
}

// ExecuteCall runs one invocation through the validation pipeline and the
// tool handler. It never fails with a Go error: every failure path yields a
// ToolResult carrying a taxonomy kind and an LLM-facing message.
func (e *Executor) ExecuteCall(ctx context.Context, call ToolCall) ToolResult {
	e.mu.Lock()
	select {
	case <-e.done:
		e.mu.Unlock()
		return errorResult(call, ErrKindExecution, "the tool executor is shutting down", ErrShutdown)
	default:
	}
	rt, ok := e.tools[call.Name]
	if !ok {
		names := e.toolNames()
		e.mu.Unlock()
		msg := fmt.Sprintf("unknown tool %q, available tools: %s", call.Name, strings.Join(names, ", "))
		return errorResult(call, ErrKindExecution, msg, ErrToolNotFound)
	}
	e.running.Add(1)
	e.mu.Unlock()
	defer e.running.Done()

	if err := e.acquireSemaphore(ctx); err != nil {
		return errorResult(call, ErrKindExecution, "tool execution was cancelled before it started", err)
	}
	defer e.releaseSemaphore()

	start := time.Now()
	if e.opts.onBefore != nil {
		e.opts.onBefore(ctx, call)
	}
	if e.opts.logger != nil {
		e.opts.logger.Info("tool start", "tool", call.Name, "call_id", call.ID)
	}

	res := e.executeValidated(ctx, rt, call)

	dur := time.Since(start)
	if e.opts.logger != nil {
		if res.IsError() {
			e.opts.logger.Error("tool error", "tool", call.Name, "call_id", call.ID,
				"kind", string(res.Kind), "duration", dur, "error", res.Err)
		} else {
			e.opts.logger.Info("tool end", "tool", call.Name, "call_id", call.ID, "duration", dur)
		}
	}
	if e.opts.onAfter != nil {
		e.opts.onAfter(ctx, call, ExecutionSummary{
			CallID:   call.ID,
			ToolName: call.Name,
			Kind:     res.Kind,
			Err:      res.Err,
		}, dur)
	}
	return res
}

// executeValidated runs decode, alias folding, declared-parameter checks,
// the compiled-schema guard, and finally the handler.
func (e *Executor) executeValidated(ctx context.Context, rt *registeredTool, call ToolCall) ToolResult {
	args, err := decodeArguments(call.Args)
	if err != nil {
		msg := fmt.Sprintf("arguments are not valid JSON (%v), example: %s", err, rt.example)
		return errorResult(call, ErrKindInvalidArguments, msg, wrapJSONParseError(err))
	}
	canonicalizeAliases(args, rt.aliases)

	for _, p := range rt.def.Params {
		val, present := args[p.Name]
		if !present {
			if !p.Required {
				continue
			}
			return errorResult(call, ErrKindMissingParameter, missingParamMessage(p, rt.example), ErrValidation)
		}
		if actual := jsonTypeName(val); !typeMatches(p.Type, val) {
			msg := fmt.Sprintf("parameter %q must be of type %s, got %s, example: %s",
				p.Name, p.Type, actual, rt.example)
			return errorResult(call, ErrKindInvalidType, msg, ErrValidation)
		}
		if err := checkValue(p, val); err != nil {
			return errorResult(call, ErrKindInvalidValue, err.Error()+", example: "+rt.example, ErrValidation)
		}
	}

	// Guard against anything the declared checks cannot express (unknown
	// keys, nested shapes). Violations are still self-correctable.
	if err := validateAgainstSchema(rt.resolved, args); err != nil {
		var ce *ClientError
		if errors.As(err, &ce) {
			return errorResult(call, ce.Kind, ce.Reason+", example: "+rt.example, err)
		}
		return errorResult(call, ErrKindInvalidArguments, err.Error(), err)
	}

	return e.dispatch(ctx, rt, call, args)
}

// dispatch runs the handler with the effective timeout and panic recovery,
// then classifies any failure into the error taxonomy.
func (e *Executor) dispatch(ctx context.Context, rt *registeredTool, call ToolCall, args map[string]any) (res ToolResult) {
	timeout := e.opts.timeout
	if rt.def.Timeout > 0 {
		timeout = rt.def.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if e.opts.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				err := &SystemError{Err: fmt.Errorf("panic: %v", p)}
				res = errorResult(call, ErrKindExecution, "the tool failed unexpectedly", err)
			}
		}()
	}

	out, err := rt.def.Handler(ctx, args)
	if err != nil {
		return errorResult(call, classifyError(err), handlerErrorMessage(err), err)
	}
	if ctx.Err() != nil {
		return errorResult(call, ErrKindExecution, "tool execution timed out", ErrTimeout)
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return errorResult(call, ErrKindExecution, "the tool produced an unserializable result", &SystemError{Err: err})
	}
	result := ToolResult{
		CallID:   call.ID,
		ToolName: call.Name,
		Result:   payload,
	}
	if n, ok := listLen(out); ok {
		result.ResultsCount = n
	}
	return result
}

// FormatResultForLLM renders a result as the text fed back to the model.
// Successful results pass the payload through; failures name the error
// kind and detail, and instruct the model to retry with corrected
// arguments instead of surfacing a user-facing failure.
func (e *Executor) FormatResultForLLM(res ToolResult) string {
	if !res.IsError() {
		return string(res.Result)
	}
	return fmt.Sprintf("Tool %q failed (%s): %s. Fix the arguments and call the tool again.",
		res.ToolName, res.Kind, res.Message)
}

// Shutdown closes the executor for new calls and waits for in-flight
// executions or ctx to cancel.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	select {
	case <-e.done:
		e.mu.Unlock()
		return nil
	default:
		close(e.done)
	}
	e.mu.Unlock()
	finished := make(chan struct{})
	go func() {
		e.running.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// toolNames returns registered names sorted; caller must hold e.mu.
func (e *Executor) toolNames() []string {
	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (e *Executor) acquireSemaphore(ctx context.Context) error {
	if e.sem == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) releaseSemaphore() {
	if e.sem != nil {
		<-e.sem
	}
}

func errorResult(call ToolCall, kind ErrorKind, msg string, err error) ToolResult {
	return ToolResult{
		CallID:   call.ID,
		ToolName: call.Name,
		Kind:     kind,
		Message:  msg,
		Err:      err,
	}
}

// decodeArguments parses the raw argument payload; empty input means an
// empty argument object.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// canonicalizeAliases folds accepted alias keys onto their canonical
// parameter names. When both alias and canonical key are present, the
// canonical value wins and the alias is dropped.
func canonicalizeAliases(args map[string]any, aliases map[string]string) {
	for key, val := range args {
		canonical, ok := aliases[key]
		if !ok {
			continue
		}
		if _, exists := args[canonical]; !exists {
			args[canonical] = val
		}
		delete(args, key)
	}
}

func missingParamMessage(p Param, example string) string {
	names := p.Name
	if len(p.Aliases) > 0 {
		names = p.Name + " (also accepted: " + strings.Join(p.Aliases, ", ") + ")"
	}
	return fmt.Sprintf("missing required parameter %s, example: %s", names, example)
}

// checkValue enforces value-level validity that the schema's type system
// cannot: non-blank strings and enum membership.
func checkValue(p Param, val any) error {
	if s, ok := val.(string); ok {
		if p.Required && strings.TrimSpace(s) == "" {
			return fmt.Errorf("parameter %q must not be empty", p.Name)
		}
		if len(p.Enum) > 0 && !slices.Contains(p.Enum, s) {
			return fmt.Errorf("parameter %q must be one of: %s", p.Name, strings.Join(p.Enum, ", "))
		}
	}
	return nil
}

// typeMatches checks a decoded JSON value against a declared schema type.
// JSON numbers decode to float64, so "integer" accepts integral floats.
func typeMatches(declared string, val any) bool {
	switch declared {
	case "string":
		_, ok := val.(string)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "number":
		_, ok := val.(float64)
		return ok
	case "integer":
		f, ok := val.(float64)
		return ok && f == float64(int64(f))
	case "array":
		_, ok := val.([]any)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	default:
		return true
	}
}

func jsonTypeName(val any) string {
	switch val.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", val)
	}
}

// handlerErrorMessage keeps system internals out of the model-visible text
// while passing through messages the model can act on.
func handlerErrorMessage(err error) string {
	if IsSystemError(err) {
		return "internal system error during tool execution"
	}
	return err.Error()
}

// listLen reports the element count when a handler output is a slice of
// any element type, for ResultsCount.
func listLen(out any) (int, bool) {
	if out == nil {
		return 0, false
	}
	v := reflect.ValueOf(out)
	if v.Kind() == reflect.Slice {
		return v.Len(), true
	}
	return 0, false
}
