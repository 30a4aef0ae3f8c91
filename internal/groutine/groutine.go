// Package groutine starts named goroutines. The name shows up as a pprof label
// so stack dumps of the transport's dispatch goroutines stay attributable.
package groutine

import (
	"context"
	"runtime/pprof"
)

// Go starts a goroutine with a name and an optional parent context.
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, fn)
}
