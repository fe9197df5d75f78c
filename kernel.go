package cortos

import (
	"context"
	"fmt"
	"runtime/trace"
	"strings"
)

const (
	kernelTraceTaskType   = "cortos-kernel"
	threadTraceRegionType = "cortos-thread"
	traceCategory         = "cortos"

	// IRQQueueDepth is the number of interrupt requests that may be
	// raised by goroutines before the kernel loop picks them up.
	IRQQueueDepth = 128
)

// Kernel is a single-core, priority-preemptive scheduler instance. It
// owns the tick clock, the ready list and every thread started on it.
// Mutexes, semaphores and threads are bound to one Kernel at
// construction; separate kernels share nothing.
type Kernel struct {
	noCopy noCopy

	name     string
	tickHook func(Tick)
	ctx      context.Context

	now    Tick
	seq    uint64
	nextID uint32

	current  *Thread
	ready    waitQueue
	sleeping waitQueue
	timers   timerList
	threads  []*Thread
	alive    int

	mask    int
	isr     int
	irqs    chan *IRQ
	armed   int
	running bool
	closing bool
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithName sets the name used in trace output and stall reports.
func WithName(name string) Option {
	return func(k *Kernel) { k.name = name }
}

// WithTickHook installs a function called from the tick interrupt
// each time the clock advances.
func WithTickHook(fn func(Tick)) Option {
	return func(k *Kernel) { k.tickHook = fn }
}

// New creates an idle kernel at tick zero.
func New(opts ...Option) *Kernel {
	k := &Kernel{
		name: "cortos",
		irqs: make(chan *IRQ, IRQQueueDepth),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Run executes started threads until all of them have terminated.
// It returns ErrStalled, wrapped with the names of the blocked
// threads, when none of them can ever become runnable again, and the
// context's error when ctx is cancelled while waiting for interrupts.
// Run may be called again after it returns to continue execution.
// Threads still blocked when Run gives up stay parked until Close.
func (k *Kernel) Run(ctx context.Context) error {
	if k.running {
		panic("cortos: kernel already running")
	}
	k.running = true
	defer func() { k.running = false }()

	var tracer *trace.Task

	ctx, tracer = trace.NewTask(ctx, kernelTraceTaskType)
	defer tracer.End()
	k.ctx = ctx

	trace.Logf(ctx, traceCategory, "%s RUN", k.name)

	for {
		if t := k.ready.front(); t != nil {
			k.dispatch(t)
			continue
		}

		if k.alive == 0 {
			trace.Logf(ctx, traceCategory, "%s DONE", k.name)
			return nil
		}

		if k.serviceInterrupts() > 0 {
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if k.armed > 0 {
			trace.Log(ctx, traceCategory, "IRQ WAIT")
			select {
			case irq := <-k.irqs:
				k.interrupt(irq)
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if t := k.timers.front(); t != nil {
			k.advance(t.deadline)
			continue
		}

		return k.stalled()
	}
}

// dispatch runs t until it blocks, yields, is preempted or returns.
func (k *Kernel) dispatch(t *Thread) {
	if t.resume == nil {
		t.spawn(k.ctx)
	}

	k.current = t
	k.mask = t.mask
	t.state = ThreadRunning

	_, ok := t.resume(struct{}{})

	t.mask = k.mask
	k.mask = 0
	k.current = nil

	if !ok {
		k.terminate(t)
		return
	}

	if t.state == ThreadRunning {
		t.state = ThreadRunnable
	}
}

func (k *Kernel) terminate(t *Thread) {
	if len(t.held) > 0 {
		panic(fmt.Sprintf("cortos: thread %s terminated holding %d mutexes", t.name, len(t.held)))
	}

	k.ready.remove(t)
	t.state = ThreadTerminated
	t.mask = 0
	k.alive--
	t.cancel()

	k.logf("TERMINATE %s", t.name)

	for w := t.joiners.front(); w != nil; w = t.joiners.front() {
		k.wake(w, WakeUnblocked)
	}
}

// Current returns the running thread, or nil in interrupt context
// and outside Run.
func (k *Kernel) Current() *Thread {
	if k.isr > 0 {
		return nil
	}
	return k.current
}

// Yield moves the calling thread behind the other runnable threads of
// its priority.
func (k *Kernel) Yield() {
	defer k.MaskInterrupts()()

	t := k.thread("yield")
	k.ready.remove(t)
	k.ready.insert(t)
}

// thread returns the calling thread and enforces thread context.
func (k *Kernel) thread(op string) *Thread {
	if k.isr > 0 {
		panic("cortos: " + op + " called from interrupt context")
	}
	if k.current == nil {
		panic("cortos: " + op + " called outside of a thread")
	}
	return k.current
}

// block parks the calling thread on q until it is woken or deadline
// passes. The caller holds the interrupt mask; it is saved with the
// thread across the switch.
func (k *Kernel) block(q *waitQueue, state ThreadState, deadline Tick, b blocker) WakeReason {
	t := k.thread("blocking call")

	k.ready.remove(t)
	t.state = state
	t.blocker = b
	q.insert(t)
	if deadline != Forever {
		t.deadline = deadline
		k.timers.insert(t)
	}
	if b != nil {
		b.blocked(t)
	}

	t.Logf("BLOCK %s until %d", state, deadline)
	t.suspend()
	t.Logf("WAKE %d", t.reason)

	return t.reason
}

// wake makes a blocked thread runnable with the given reason.
func (k *Kernel) wake(t *Thread, reason WakeReason) {
	if !t.state.blocked() || t.queue == nil {
		panic("cortos: wake of thread " + t.name + " that is not blocked")
	}

	t.queue.remove(t)
	k.timers.remove(t)
	t.blocker = nil
	t.reason = reason
	t.state = ThreadRunnable
	k.ready.insert(t)
}

// reschedule switches away from the calling thread when another
// runnable thread precedes it.
func (k *Kernel) reschedule() {
	t := k.current
	if t == nil || k.ready.front() == t {
		return
	}
	t.Log("PREEMPT")
	t.suspend()
}

// setEffectivePriority changes t's effective priority and keeps every
// queue it is on ordered. A running thread that drops in priority
// stays ahead of the threads already waiting at its new level.
func (k *Kernel) setEffectivePriority(t *Thread, p Priority) {
	lowered := p < t.effective
	t.effective = p

	q := t.queue
	if q == nil {
		return
	}
	if q == &k.ready && lowered && t == k.current {
		q.remove(t)
		q.placeAhead(t)
		return
	}
	q.reposition(t)
}

// Close terminates every thread that has not finished, unwinding the
// coroutines of those left blocked by a stall or a cancelled Run.
// Deferred calls in the unwound threads run in their thread's context
// but never switch threads; they must not block.
func (k *Kernel) Close() {
	if k.running {
		panic("cortos: close of running kernel")
	}

	var parked []*Thread
	for _, t := range k.threads {
		if t.state == ThreadTerminated {
			continue
		}
		if t.queue != nil {
			t.queue.remove(t)
		}
		k.timers.remove(t)
		t.blocker = nil
		t.state = ThreadTerminated
		k.alive--
		if t.resume != nil {
			parked = append(parked, t)
		}
	}

	k.closing = true
	defer func() { k.closing = false }()

	for _, t := range parked {
		k.current, k.mask = t, t.mask
		t.cancel()
		k.current, k.mask = nil, 0
		t.mask = 0
		k.logf("CLOSE %s", t.name)
	}
}

func (k *Kernel) stalled() error {
	var names []string
	for _, t := range k.threads {
		if t.state != ThreadTerminated {
			names = append(names, t.name+"("+t.state.String()+")")
		}
	}
	return fmt.Errorf("%w: %s", ErrStalled, strings.Join(names, ", "))
}

func (k *Kernel) logf(format string, args ...any) {
	if trace.IsEnabled() && k.ctx != nil {
		trace.Logf(k.ctx, traceCategory, k.name+" "+format, args...)
	}
}
