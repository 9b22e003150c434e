package toolbridge

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
)

// Orchestrator drives the model/tool round trip: issue a model call,
// reconstruct tool invocations from the response, execute the ready ones,
// append the results as tool turns, and call the model again, bounded by
// the configured round and retry limits. One Complete or Stream call is
// one orchestration run; the CallBuffer and RetryTracker it creates are
// owned by that run alone and discarded at its end.
type Orchestrator struct {
	backend  Backend
	executor *Executor
	opts     orchestratorOptions
}

// NewOrchestrator wires a model backend to a tool executor.
func NewOrchestrator(backend Backend, executor *Executor, opts ...OrchestratorOption) *Orchestrator {
	o := orchestratorOptions{
		maxRounds:      10,
		maxToolRetries: 3,
		parallelTools:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Orchestrator{backend: backend, executor: executor, opts: o}
}

// Complete runs the non-streaming round loop and returns the model's final
// response. Tool invocations in a complete response arrive whole, so they
// are treated as complete and finished and go straight to the executor.
// When the round budget runs out the last model response is returned as-is
// rather than looping further. Backend connectivity errors propagate
// unchanged; an invocation failing past the retry cap returns a
// *RetryLimitError.
func (o *Orchestrator) Complete(ctx context.Context, conversation []Turn) (*Response, error) {
	conv := slices.Clone(conversation)
	tracker := NewRetryTracker()
	defs := o.executor.Definitions()

	var last *Response
	for round := 0; round < o.opts.maxRounds; round++ {
		resp, err := o.backend.Complete(ctx, Request{Conversation: conv, Tools: defs})
		if err != nil {
			return nil, fmt.Errorf("model call (round %d): %w", round+1, err)
		}
		last = resp

		calls := normalizeCalls(resp.ToolCalls)
		if len(calls) == 0 {
			return resp, nil
		}
		if round == o.opts.maxRounds-1 {
			break
		}

		results := o.executeRound(ctx, calls)
		conv = append(conv, assistantCallTurn(resp.Content, calls))
		if err := o.appendResults(&conv, results, tracker); err != nil {
			return nil, err
		}
	}
	return last, nil
}

// Stream runs the streaming round loop. Content fragments are forwarded to
// the returned stream as they arrive; tool-call deltas are consumed
// internally and never forwarded. Errors, including *RetryLimitError,
// surface through Recv. Closing the stream cancels the run: no further
// model calls or tool dispatches are issued.
func (o *Orchestrator) Stream(ctx context.Context, conversation []Turn) FragmentStream {
	conv := slices.Clone(conversation)
	return newFragmentStream(ctx, func(ctx context.Context, emit func(Fragment) error) error {
		return o.streamRounds(ctx, conv, emit)
	})
}

func (o *Orchestrator) streamRounds(ctx context.Context, conv []Turn, emit func(Fragment) error) error {
	tracker := NewRetryTracker()
	defs := o.executor.Definitions()

	for round := 0; round < o.opts.maxRounds; round++ {
		fs, err := o.backend.Stream(ctx, Request{Conversation: conv, Tools: defs})
		if err != nil {
			return fmt.Errorf("model call (round %d): %w", round+1, err)
		}
		content, buf, err := consumeModelTurn(fs, emit)
		if err != nil {
			return err
		}

		ready := buf.FinishedAndReady()
		malformed := buf.FinishedMalformed()
		if len(ready) == 0 && len(malformed) == 0 {
			return nil
		}
		if round == o.opts.maxRounds-1 {
			return nil
		}

		// Malformed invocations are not executable, but the model is
		// still owed an answer for each: the executor turns their raw
		// text into an invalid_arguments result.
		calls := normalizeCalls(append(ready, malformed...))
		results := o.executeRound(ctx, calls)
		conv = append(conv, assistantCallTurn(content, calls))
		if err := o.appendResults(&conv, results, tracker); err != nil {
			return err
		}
	}
	return nil
}

// consumeModelTurn pulls one model turn's fragments in arrival order,
// forwarding content through emit and feeding tool-call deltas into a
// fresh buffer. A fragment-level finish reason is the whole-batch
// end-of-turn signal and finishes every buffered invocation.
func consumeModelTurn(fs FragmentStream, emit func(Fragment) error) (string, *CallBuffer, error) {
	defer fs.Close()
	buf := NewCallBuffer()
	var content strings.Builder
	var lastID string
	for {
		frag, err := fs.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, err
		}
		if frag.Content != "" {
			content.WriteString(frag.Content)
			if err := emit(Fragment{Content: frag.Content}); err != nil {
				return "", nil, err
			}
		}
		for _, d := range frag.Deltas {
			// A delta without an id continues the most recently
			// addressed invocation, the way argument-only deltas
			// arrive on some backends.
			id := d.ID
			if id == "" {
				id = lastID
			}
			if id == "" {
				continue
			}
			lastID = id
			applyDelta(buf, id, d)
		}
		if frag.FinishReason != "" {
			buf.MarkAllFinished()
		}
	}
	return content.String(), buf, nil
}

// applyDelta routes one delta into the buffer: identity via AddInvocation,
// argument text via the order-dependent AppendArguments.
func applyDelta(buf *CallBuffer, id string, d Delta) {
	if !buf.Contains(id) {
		buf.AddInvocation(id, d.Name, d.Arguments, d.Kind)
	} else {
		if d.Name != "" || d.Kind != "" {
			buf.AddInvocation(id, d.Name, "", d.Kind)
		}
		if d.Arguments != "" {
			_ = buf.AppendArguments(id, d.Arguments) // id is present, cannot fail
		}
	}
	if d.Finished {
		buf.MarkFinished(id)
	}
}

// executeRound dispatches a round's invocations. They are independent, so
// they may run concurrently against each other, but the round itself is
// strictly sequential: results come back in call order and the next model
// call starts only after every result is in.
func (o *Orchestrator) executeRound(ctx context.Context, calls []ToolCall) []ToolResult {
	if len(calls) == 1 || !o.opts.parallelTools {
		results := make([]ToolResult, 0, len(calls))
		for _, call := range calls {
			results = append(results, o.executor.ExecuteCall(ctx, call))
		}
		return results
	}
	results := make([]ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()
			results[i] = o.executor.ExecuteCall(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// appendResults appends one tool turn per result, in call order, doing the
// retry bookkeeping. A tool turn is appended only after its invocation is
// fully executed; an invocation failing past the retry cap ends the run
// with a *RetryLimitError after its turn is recorded.
func (o *Orchestrator) appendResults(conv *[]Turn, results []ToolResult, tracker *RetryTracker) error {
	for _, res := range results {
		*conv = append(*conv, toolTurn(res, o.executor.FormatResultForLLM(res)))
		if !res.IsError() {
			continue
		}
		tracker.RecordError(res.CallID, res.Kind)
		attempts := tracker.IncrementRetryCount(res.CallID)
		if !tracker.ShouldRetry(res.CallID, o.opts.maxToolRetries) {
			return &RetryLimitError{
				CallID:   res.CallID,
				ToolName: res.ToolName,
				Kind:     res.Kind,
				Attempts: attempts,
			}
		}
	}
	return nil
}

// normalizeCalls synthesizes ids for backends that omit them and drops
// repeated ids, keeping first occurrence order.
func normalizeCalls(calls []ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(calls))
	seen := make(map[string]struct{}, len(calls))
	for i, call := range calls {
		if strings.TrimSpace(call.ID) == "" {
			call.ID = fmt.Sprintf("toolcall-%d", i+1)
		}
		if _, dup := seen[call.ID]; dup {
			continue
		}
		seen[call.ID] = struct{}{}
		if call.Kind == "" {
			call.Kind = KindFunction
		}
		out = append(out, call)
	}
	return out
}
