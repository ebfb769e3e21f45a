package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	executionIDKey contextKey = "execution_id"
)

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithExecutionID 设置执行 ID
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, executionIDKey, executionID)
}

// ExecutionID 获取执行 ID
func ExecutionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(executionIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
