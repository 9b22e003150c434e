package toolbridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestToolResult_IsError(t *testing.T) {
	ok := ToolResult{CallID: "c1", ToolName: "search", Result: []byte(`{"hits":1}`)}
	assert.False(t, ok.IsError())
	bad := ToolResult{CallID: "c2", ToolName: "search", Kind: ErrKindMissingParameter}
	assert.True(t, bad.IsError())
}

func TestContextUser(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", UserFromContext(ctx))
	ctx = ContextWithUser(ctx, "acct-42")
	assert.Equal(t, "acct-42", UserFromContext(ctx))
}
