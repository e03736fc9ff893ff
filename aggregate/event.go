package aggregate

import (
	"context"
	"time"
)

// Event wraps a domain event with its envelope data
type Event struct {
	ID         string
	E          any
	OccurredOn time.Time
	Meta       map[string]string
}

type metaKey struct{}

// CtxWithMeta returns a context carrying meta data which the store attaches
// to every event appended during the command (eg acting user, request id)
func CtxWithMeta(ctx context.Context, meta map[string]string) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFromCtx returns meta data carried by the context, or nil
func MetaFromCtx(ctx context.Context) map[string]string {
	meta, ok := ctx.Value(metaKey{}).(map[string]string)
	if !ok {
		return nil
	}

	return meta
}
