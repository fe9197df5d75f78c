package cortos

import "context"

// ErrGroup runs a group of threads and collects the first error one
// of them returns.
type ErrGroup interface {
	// Go starts fn on a new thread of the group.
	Go(name string, priority Priority, fn func(context.Context) error) *Thread
	// Wait blocks the calling thread until every thread of the group
	// has finished and returns the first error encountered.
	Wait() error
}

// errGroup implements ErrGroup. Its context is cancelled with the
// first error so the remaining threads can stop early.
type errGroup struct {
	owner  *Thread                 // Thread that created the group
	ctx    context.Context         // Context shared by the group's threads
	cancel context.CancelCauseFunc // Cancels ctx with the first error
	wg     WaitGroup               // Tracks running threads
	err    error                   // First error returned
}

// Group creates an ErrGroup whose threads run on t's kernel.
func (t *Thread) Group() ErrGroup {
	ctx, cancel := context.WithCancelCause(t.ctx)
	return &errGroup{owner: t, ctx: ctx, cancel: cancel}
}

// Go starts fn on a new thread counted by the group.
func (g *errGroup) Go(name string, priority Priority, fn func(context.Context) error) *Thread {
	g.wg.Add(1)
	return g.owner.k.Go(name, priority, func(_ context.Context, t *Thread) {
		defer g.wg.Done()
		if err := fn(withThreadContext(g.ctx, t)); err != nil && g.err == nil {
			g.err = err
			g.cancel(err)
		}
	})
}

// Wait blocks until the group's threads finish and cancels the
// group context.
func (g *errGroup) Wait() error {
	g.wg.Wait(g.owner.k.thread("ErrGroup wait"))
	g.cancel(g.err)
	return g.err
}
