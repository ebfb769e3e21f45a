package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()

	_, ok := RequestID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	got, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", got)

	_, ok = RequestID(WithRequestID(context.Background(), ""))
	assert.False(t, ok)
}

func TestExecutionID(t *testing.T) {
	ctx := WithExecutionID(context.Background(), "exec-1")

	got, ok := ExecutionID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "exec-1", got)

	_, ok = ExecutionID(context.Background())
	assert.False(t, ok)
}
