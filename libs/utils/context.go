package utils

import "context"

// Detach keeps ctx values, like the active span, but drops ctx cancellation once ctx is done so
// that work recorded after a canceled operation, such as metrics, is not lost.
func Detach(ctx context.Context) context.Context {
	if ctx.Err() == nil {
		return ctx
	}
	return context.WithoutCancel(ctx)
}
