package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const ctxClientID contextKey = "client_id"

// ClientIDFromContext returns the authenticated tenant id, or uuid.Nil when
// the request is unauthenticated.
func ClientIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxClientID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// WithClientID injects the tenant identifier for downstream handlers.
func WithClientID(ctx context.Context, clientID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxClientID, clientID)
}
