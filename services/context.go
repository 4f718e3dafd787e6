package services

import "context"

type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID сохраняет ID запроса в контексте
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext возвращает ID запроса или пустую строку
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
