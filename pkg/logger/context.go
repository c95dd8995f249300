package logger

import (
	"context"
	"log/slog"
)

type requestIDKey struct{}

// WithRequestID stores a correlation id in ctx. Loggers created by New and the
// audit logger (via RequestIDFromContext) pick it up automatically.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

func requestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	if id, ok := RequestIDFromContext(ctx); ok {
		return RequestID(id), true
	}
	return slog.Attr{}, false
}
