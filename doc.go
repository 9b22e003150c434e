// Package toolbridge sits between a chat client and an LLM backend and
// drives tool calling: the model asks for a named tool, the tool runs with
// validated arguments, the result is fed back as a conversation turn, and
// the model continues, possibly across several rounds, while the client
// sees either one consolidated response or a live token stream.
//
// # Overview
//
// Streamed responses deliver tool invocations as interleaved partial
// fragments. CallBuffer reconstructs them: identity and argument text
// accumulate per invocation id, and an invocation becomes executable only
// when its arguments parse (complete) and the backend has signaled
// end-of-turn for it (finished). Conflating the two would execute a tool
// on arguments still being typed out.
//
// Pipeline: Backend response → CallBuffer → Executor (decode, alias
// folding, declared-parameter checks, schema guard, dispatch, error
// classification) → ToolResult → tool turn → next model call.
//
// # Key concepts
//
//   - Single source of truth: each ToolDef's parameter declaration drives
//     both the schema advertised to the model and the validation of
//     incoming arguments, so the two cannot drift.
//   - Self-correction: every failed execution becomes a structured result
//     whose message names the error kind, the offending parameter, and a
//     corrected example; RetryTracker caps how often the model may try
//     again before the run fails for the caller.
//   - One run, one arena: CallBuffer and RetryTracker belong to a single
//     orchestration run. Nothing is shared across concurrent requests, so
//     they need no locks.
//
// See CallBuffer, Executor, and Orchestrator for the core types, and
// NewExecutor / NewOrchestrator for setup.
//
// # Example
//
//	exec := toolbridge.NewExecutor()
//	err := exec.Register(toolbridge.ToolDef{
//	    Name:        "search",
//	    Description: "Search the document store",
//	    Params: []toolbridge.Param{
//	        {Name: "query", Type: "string", Required: true, Example: "golang"},
//	    },
//	    Handler: func(ctx context.Context, args map[string]any) (any, error) {
//	        return store.Search(ctx, args["query"].(string))
//	    },
//	})
//	if err != nil { ... }
//	orch := toolbridge.NewOrchestrator(backend, exec, toolbridge.WithMaxRounds(5))
//	resp, err := orch.Complete(ctx, []toolbridge.Turn{toolbridge.UserTurn("find async docs")})
package toolbridge
