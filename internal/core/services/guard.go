package services

import (
	"context"
)

type busyKey struct{}

// markBusy tags a context as belonging to an in-flight mutating operation.
// Every vault call an operation makes carries the tagged context, so external
// code reached through a value release inherits it; a mutating entry point
// invoked with a tagged context is a reentrant call and is rejected before it
// can touch the lock.
func markBusy(ctx context.Context) context.Context {
	return context.WithValue(ctx, busyKey{}, true)
}

func isBusy(ctx context.Context) bool {
	busy, _ := ctx.Value(busyKey{}).(bool)
	return busy
}
