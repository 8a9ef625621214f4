package middleware

import "context"

const (
	// TraceIDKey Context 中 trace_id 的键
	TraceIDKey = "trace_id"
	// TraceIDHeader HTTP header 中 trace_id 的键
	TraceIDHeader = "X-Trace-ID"
)

// GetTraceID 从 Context 中获取 TraceID，没有则返回空串
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}
