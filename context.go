package cortos

import (
	"context"
)

// threadContextKey is the context key under which a thread stores
// itself for the function it runs.
type threadContextKey struct{}

func withThreadContext(ctx context.Context, t *Thread) context.Context {
	return context.WithValue(ctx, threadContextKey{}, t)
}

// ThreadFromContext returns the thread whose function received ctx.
func ThreadFromContext(ctx context.Context) (*Thread, bool) {
	val, ok := ctx.Value(threadContextKey{}).(*Thread)
	return val, ok
}

// KernelFromContext returns the kernel running the thread whose
// function received ctx.
func KernelFromContext(ctx context.Context) (*Kernel, bool) {
	if t, ok := ThreadFromContext(ctx); ok {
		return t.k, true
	}
	return nil, false
}

// MustThreadFromContext is ThreadFromContext for callers that only
// ever run on a thread. It panics when ctx carries none.
func MustThreadFromContext(ctx context.Context) *Thread {
	t, ok := ThreadFromContext(ctx)
	if !ok {
		panic("cortos: thread not found in context")
	}
	return t
}
