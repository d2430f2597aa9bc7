// Package correlation carries the id of the HTTP request that caused a piece
// of work. The gateway puts it on the request context, the event producer
// copies it into a Kafka header, and the delivery workers restore it before
// handling the message, so one id ties gateway, ledger and worker logs
// together.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying the id in both directions.
const Header = "X-Correlation-ID"

type ctxKey struct{}

// NewID returns a fresh random id.
func NewID() string {
	return uuid.NewString()
}

// WithID returns ctx carrying id. An empty id leaves ctx unchanged.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// ID returns the id on ctx, or "".
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
