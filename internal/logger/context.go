package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

var requestIDKey = contextKey{}

// WithRequestID stores a request ID in the context. The RequestID
// middleware sets it from the X-Request-ID header, generating one when
// the client sent none.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID stored in the context, or an empty
// string. The HTTP request logger stamps it onto its access lines.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
