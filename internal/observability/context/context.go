// Package context carries request-scoped identifiers used by logs and traces.
package context

import (
	"context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	correlationIDKey
	eventKey
)

type eventInfo struct {
	id  string
	typ string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, strings.TrimSpace(correlationID))
}

func CorrelationIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

// WithEvent tags ctx with the billing event being processed.
func WithEvent(ctx context.Context, eventID, eventType string) context.Context {
	return context.WithValue(ctx, eventKey, eventInfo{id: strings.TrimSpace(eventID), typ: strings.TrimSpace(eventType)})
}

func EventFromContext(ctx context.Context) (eventID, eventType string) {
	v, _ := ctx.Value(eventKey).(eventInfo)
	return v.id, v.typ
}
