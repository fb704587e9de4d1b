package types

import "context"

// SuccessEnvelope wraps every 2xx JSON payload.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// ItemsEnvelope is the data shape for unpaginated collections.
type ItemsEnvelope[T any] struct {
	Items []T `json:"items"`
}

// Items never renders a nil slice as null.
func Items[T any](items []T) ItemsEnvelope[T] {
	if items == nil {
		items = []T{}
	}
	return ItemsEnvelope[T]{Items: items}
}

type requestIDKey struct{}

// WithRequestID stores the request correlation id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stored by WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
