// Package runid identifies one loader run across the processing log, the
// stderr log stream and the file mapping.
package runid

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

func New() string {
	return uuid.NewString()
}

func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the run ID stored in ctx, or "" when there is none.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
