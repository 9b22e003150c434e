package toolbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallBuffer_FinishedRequiresExplicitSignal(t *testing.T) {
	buf := NewCallBuffer()
	buf.AddInvocation("t1", "search", `{"query":"golang"}`, KindFunction)
	// Arguments parse, but no finish signal has arrived.
	assert.True(t, buf.IsComplete("t1"))
	assert.False(t, buf.IsFinished("t1"))
	assert.Empty(t, buf.FinishedAndReady())

	buf.MarkFinished("t1")
	assert.True(t, buf.IsFinished("t1"))
	ready := buf.FinishedAndReady()
	require.Len(t, ready, 1)
	assert.Equal(t, "t1", ready[0].ID)
	assert.Equal(t, "search", ready[0].Name)
}

func TestCallBuffer_PrematureFinishOfOtherInvocation(t *testing.T) {
	buf := NewCallBuffer()
	buf.AddInvocation("t1", "search", "", KindFunction)
	require.NoError(t, buf.AppendArguments("t1", `{"query":"as`)) // mid-typing
	buf.AddInvocation("t2", "get_document", `{"id":"doc-1"}`, KindFunction)
	buf.MarkFinished("t2")

	// t2 is ready; t1's partial text must never become executable.
	ready := buf.FinishedAndReady()
	require.Len(t, ready, 1)
	assert.Equal(t, "t2", ready[0].ID)
	assert.False(t, buf.IsComplete("t1"))
}

func TestCallBuffer_MarkFinishedUnknownIsNoOp(t *testing.T) {
	buf := NewCallBuffer()
	buf.MarkFinished("ghost")
	assert.False(t, buf.IsFinished("ghost"))
	assert.Equal(t, 0, buf.Len())
}

func TestCallBuffer_MarkAllFinished(t *testing.T) {
	buf := NewCallBuffer()
	buf.AddInvocation("a", "search", "{}", KindFunction)
	buf.AddInvocation("b", "search", "{}", KindFunction)
	buf.MarkAllFinished()
	assert.True(t, buf.IsFinished("a"))
	assert.True(t, buf.IsFinished("b"))
	assert.Len(t, buf.FinishedAndReady(), 2)
}

func TestCallBuffer_AppendArguments(t *testing.T) {
	t.Run("unknown id fails", func(t *testing.T) {
		buf := NewCallBuffer()
		err := buf.AppendArguments("nope", "{}")
		assert.ErrorIs(t, err, ErrUnknownInvocation)
	})

	t.Run("fragments concatenate in order", func(t *testing.T) {
		fragments := []string{`{"qu`, `ery":`, `"async"`, `}`}
		split := NewCallBuffer()
		split.AddInvocation("t1", "search", "", KindFunction)
		for _, f := range fragments {
			require.NoError(t, split.AppendArguments("t1", f))
		}
		whole := NewCallBuffer()
		whole.AddInvocation("t1", "search", "", KindFunction)
		require.NoError(t, whole.AppendArguments("t1", `{"query":"async"}`))

		a, err := split.ParseArguments("t1")
		require.NoError(t, err)
		b, err := whole.ParseArguments("t1")
		require.NoError(t, err)
		assert.JSONEq(t, string(b), string(a))
	})

	t.Run("structured value is coerced to text first", func(t *testing.T) {
		buf := NewCallBuffer()
		buf.AddCall(ToolCall{ID: "t1", Name: "search", Args: []byte(`{"query":"go"`)})
		require.NoError(t, buf.AppendArguments("t1", `}`))
		args, err := buf.ParseArguments("t1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"query":"go"}`, string(args))
	})
}

func TestCallBuffer_AddInvocationUpsert(t *testing.T) {
	buf := NewCallBuffer()
	buf.AddInvocation("t1", "", "", "")
	// Name arrives on a later fragment and sticks.
	buf.AddInvocation("t1", "search", "", KindFunction)
	buf.AddInvocation("t1", "other", "", "")
	buf.MarkFinished("t1")
	ready := buf.FinishedAndReady()
	require.Len(t, ready, 1)
	assert.Equal(t, "search", ready[0].Name)
	assert.Equal(t, KindFunction, ready[0].Kind)
	assert.Equal(t, 1, buf.Len())
}

func TestCallBuffer_ParseArguments(t *testing.T) {
	tests := []struct {
		name string
		args string
		want string
	}{
		{"empty text", "", "{}"},
		{"whitespace only", "   ", "{}"},
		{"valid object", `{"k":1}`, `{"k":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewCallBuffer()
			buf.AddInvocation("t1", "search", tt.args, KindFunction)
			got, err := buf.ParseArguments("t1")
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}

	t.Run("absent id yields empty object", func(t *testing.T) {
		buf := NewCallBuffer()
		got, err := buf.ParseArguments("missing")
		require.NoError(t, err)
		assert.JSONEq(t, "{}", string(got))
	})

	t.Run("non-JSON text fails", func(t *testing.T) {
		buf := NewCallBuffer()
		buf.AddInvocation("t1", "search", `{"query":`, KindFunction)
		_, err := buf.ParseArguments("t1")
		assert.ErrorIs(t, err, ErrMalformedArguments)
	})
}

func TestCallBuffer_FinishedAndReadyExcludesMalformed(t *testing.T) {
	buf := NewCallBuffer()
	buf.AddInvocation("good", "search", `{"query":"x"}`, KindFunction)
	buf.AddInvocation("bad", "search", `{"query":`, KindFunction)
	buf.MarkAllFinished()

	ready := buf.FinishedAndReady()
	require.Len(t, ready, 1)
	assert.Equal(t, "good", ready[0].ID)

	malformed := buf.FinishedMalformed()
	require.Len(t, malformed, 1)
	assert.Equal(t, "bad", malformed[0].ID)
	assert.Equal(t, `{"query":`, string(malformed[0].Args))
}

// Three streamed fragments: identity, argument text, then a bare finish
// signal. After the third, exactly t1 is ready with the assembled args.
func TestCallBuffer_StreamedFragmentScenario(t *testing.T) {
	buf := NewCallBuffer()
	buf.AddInvocation("t1", "search", "", KindFunction)
	require.NoError(t, buf.AppendArguments("t1", `{"query":"async"}`))
	assert.Empty(t, buf.FinishedAndReady())

	buf.MarkAllFinished()
	ready := buf.FinishedAndReady()
	require.Len(t, ready, 1)
	assert.Equal(t, "t1", ready[0].ID)
	assert.JSONEq(t, `{"query":"async"}`, string(ready[0].Args))
}
