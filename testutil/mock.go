// Package testutil provides test helpers for toolbridge: a scriptable
// model backend and ready-made tool declarations.
package testutil

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/skosovsky/toolbridge"
)

// ErrScriptExhausted is returned when the backend is asked for more model
// turns than were scripted.
var ErrScriptExhausted = errors.New("mock backend: no scripted response left")

// MockBackend replays scripted model turns in order. Each turn serves one
// Complete call, or one Stream call fragment by fragment. Requests are
// recorded for assertions. Safe for concurrent use.
type MockBackend struct {
	mu       sync.Mutex
	turns    [][]toolbridge.Fragment
	next     int
	Requests []toolbridge.Request
	// StreamErr, when set, makes the next Stream call fail outright.
	StreamErr error
	// CompleteErr, when set, makes the next Complete call fail outright.
	CompleteErr error
}

// NewMockBackend creates an empty backend; script turns with AddTextTurn,
// AddToolCallTurn, or AddFragmentTurn.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// AddTextTurn scripts a turn that produces only text and a stop finish.
func (m *MockBackend) AddTextTurn(text string) *MockBackend {
	return m.AddFragmentTurn(
		toolbridge.Fragment{Content: text},
		toolbridge.Fragment{FinishReason: toolbridge.FinishStop},
	)
}

// AddToolCallTurn scripts a turn that requests one whole tool call.
func (m *MockBackend) AddToolCallTurn(id, name, argsJSON string) *MockBackend {
	return m.AddFragmentTurn(
		toolbridge.Fragment{Deltas: []toolbridge.Delta{{
			ID:        id,
			Name:      name,
			Kind:      toolbridge.KindFunction,
			Arguments: argsJSON,
		}}},
		toolbridge.Fragment{FinishReason: toolbridge.FinishToolCalls},
	)
}

// AddFragmentTurn scripts a turn from raw fragments, exactly as a backend
// would stream them.
func (m *MockBackend) AddFragmentTurn(fragments ...toolbridge.Fragment) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, fragments)
	return m
}

// Complete serves the next scripted turn as a whole response, assembling
// content, tool calls, and the finish reason from its fragments.
func (m *MockBackend) Complete(ctx context.Context, req toolbridge.Request) (*toolbridge.Response, error) {
	fragments, err := m.take(req, m.CompleteErr)
	if err != nil {
		return nil, err
	}
	resp := &toolbridge.Response{FinishReason: toolbridge.FinishStop}
	byID := make(map[string]int)
	for _, f := range fragments {
		resp.Content += f.Content
		for _, d := range f.Deltas {
			if i, ok := byID[d.ID]; ok {
				resp.ToolCalls[i].Args = append(resp.ToolCalls[i].Args, d.Arguments...)
				continue
			}
			byID[d.ID] = len(resp.ToolCalls)
			resp.ToolCalls = append(resp.ToolCalls, toolbridge.ToolCall{
				ID:   d.ID,
				Name: d.Name,
				Kind: d.Kind,
				Args: []byte(d.Arguments),
			})
		}
		if f.FinishReason != "" {
			resp.FinishReason = f.FinishReason
		}
	}
	return resp, nil
}

// Stream serves the next scripted turn fragment by fragment.
func (m *MockBackend) Stream(ctx context.Context, req toolbridge.Request) (toolbridge.FragmentStream, error) {
	fragments, err := m.take(req, m.StreamErr)
	if err != nil {
		return nil, err
	}
	return &scriptedStream{ctx: ctx, fragments: fragments}, nil
}

func (m *MockBackend) take(req toolbridge.Request, forced error) ([]toolbridge.Fragment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if forced != nil {
		return nil, forced
	}
	if m.next >= len(m.turns) {
		return nil, ErrScriptExhausted
	}
	fragments := m.turns[m.next]
	m.next++
	return fragments, nil
}

// Calls returns how many model calls the backend has served.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// scriptedStream replays one turn's fragments, honoring cancellation.
type scriptedStream struct {
	ctx       context.Context
	fragments []toolbridge.Fragment
	pos       int
}

func (s *scriptedStream) Recv() (toolbridge.Fragment, error) {
	if err := s.ctx.Err(); err != nil {
		return toolbridge.Fragment{}, err
	}
	if s.pos >= len(s.fragments) {
		return toolbridge.Fragment{}, io.EOF
	}
	f := s.fragments[s.pos]
	s.pos++
	return f, nil
}

func (s *scriptedStream) Close() error { return nil }

// EchoTool returns a tool declaration whose handler reports back the
// arguments it received, for wiring tests.
func EchoTool(name string, params ...toolbridge.Param) toolbridge.ToolDef {
	return toolbridge.ToolDef{
		Name:        name,
		Description: "Echoes its arguments",
		Params:      params,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return args, nil
		},
	}
}

// FailingTool returns a tool declaration whose handler always returns err.
func FailingTool(name string, err error, params ...toolbridge.Param) toolbridge.ToolDef {
	return toolbridge.ToolDef{
		Name:        name,
		Description: "Always fails",
		Params:      params,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, err
		},
	}
}
