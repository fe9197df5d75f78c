package cortos

import (
	"context"
	"fmt"
	"runtime/trace"
	"slices"
	"strings"

	"github.com/webriots/coro"
)

// Priority is a thread's scheduling priority. Higher values preempt
// lower ones.
type Priority uint8

// ThreadState is the scheduling state of a thread.
type ThreadState uint8

const (
	ThreadNew ThreadState = iota
	ThreadRunnable
	ThreadRunning
	ThreadBlockedOnMutex
	ThreadBlockedOnSemaphore
	ThreadBlockedOnJoin
	ThreadSleeping
	ThreadTerminated
)

var threadStateNames = [...]string{
	ThreadNew:                "new",
	ThreadRunnable:           "runnable",
	ThreadRunning:            "running",
	ThreadBlockedOnMutex:     "blocked-on-mutex",
	ThreadBlockedOnSemaphore: "blocked-on-semaphore",
	ThreadBlockedOnJoin:      "blocked-on-join",
	ThreadSleeping:           "sleeping",
	ThreadTerminated:         "terminated",
}

// String returns the state's name.
func (s ThreadState) String() string {
	if int(s) < len(threadStateNames) {
		return threadStateNames[s]
	}
	return fmt.Sprintf("ThreadState(%d)", s)
}

func (s ThreadState) blocked() bool {
	switch s {
	case ThreadBlockedOnMutex, ThreadBlockedOnSemaphore, ThreadBlockedOnJoin, ThreadSleeping:
		return true
	}
	return false
}

// WakeReason tells a blocked thread why it was made runnable again.
type WakeReason uint8

const (
	WakeUnblocked WakeReason = iota
	WakeTimeout
)

// blocker is the primitive a thread is blocked on. blocked runs
// after the thread was queued and before it is switched out;
// unblocked runs in the tick interrupt when its wait timed out.
type blocker interface {
	blocked(t *Thread)
	unblocked(t *Thread, reason WakeReason)
}

// Thread is a coroutine scheduled by a Kernel. All fields are owned
// by the kernel and only change inside a critical section.
type Thread struct {
	noCopy noCopy

	k    *Kernel
	id   uint32
	name string
	fn   func(context.Context, *Thread)
	ctx  context.Context

	base      Priority
	effective Priority
	state     ThreadState
	held      []*Mutex

	blocker  blocker
	queue    *waitQueue
	seq      uint64
	deadline Tick
	timed    bool
	reason   WakeReason
	mask     int

	joiners waitQueue

	resume  func(struct{}) (struct{}, bool)
	suspend func() struct{}
	cancel  func()
}

// NewThread creates a thread that will run fn once started.
func (k *Kernel) NewThread(name string, priority Priority, fn func(context.Context, *Thread)) *Thread {
	k.nextID++
	return &Thread{
		k:         k,
		id:        k.nextID,
		name:      name,
		fn:        fn,
		base:      priority,
		effective: priority,
	}
}

// Go creates and starts a thread.
func (k *Kernel) Go(name string, priority Priority, fn func(context.Context, *Thread)) *Thread {
	t := k.NewThread(name, priority, fn)
	t.Start()
	return t
}

// Start makes the thread runnable. Started from another thread, a
// new thread with a higher priority preempts the caller at once.
func (t *Thread) Start() {
	defer t.k.MaskInterrupts()()

	if t.state != ThreadNew {
		panic("cortos: thread " + t.name + " started twice")
	}
	t.state = ThreadRunnable
	t.k.threads = append(t.k.threads, t)
	t.k.alive++
	t.k.ready.insert(t)
	t.k.logf("START %s prio %d", t.name, t.base)
}

// Join blocks the calling thread until t terminates. Joining the
// calling thread itself returns EDEADLK.
func (t *Thread) Join() error {
	defer t.k.MaskInterrupts()()

	self := t.k.thread("join")
	if self == t {
		return EDEADLK
	}
	if t.state == ThreadTerminated {
		return nil
	}
	t.k.block(&t.joiners, ThreadBlockedOnJoin, Forever, nil)
	return nil
}

// ID returns the thread's kernel-unique identifier.
func (t *Thread) ID() uint32 {
	return t.id
}

// Name returns the name given at creation.
func (t *Thread) Name() string {
	return t.name
}

// Priority returns the base priority assigned by the application.
func (t *Thread) Priority() Priority {
	return t.base
}

// EffectivePriority returns the priority the scheduler currently
// uses, including boosts from held mutexes.
func (t *Thread) EffectivePriority() Priority {
	return t.effective
}

// SetPriority changes the base priority. The effective priority is
// recomputed from the mutexes t holds and the change propagates along
// priority inheritance chains.
func (t *Thread) SetPriority(p Priority) {
	defer t.k.MaskInterrupts()()

	t.base = p
	t.k.recomputePriority(t)
}

// State returns the thread's scheduling state.
func (t *Thread) State() ThreadState {
	return t.state
}

// HeldMutexes returns the mutexes t owns in acquisition order.
func (t *Thread) HeldMutexes() []*Mutex {
	return slices.Clone(t.held)
}

// Context returns the context passed to the thread's function, nil
// before the thread first runs.
func (t *Thread) Context() context.Context {
	return t.ctx
}

// String returns the thread's name.
func (t *Thread) String() string {
	return t.name
}

func (t *Thread) spawn(ctx context.Context) {
	t.ctx = withThreadContext(ctx, t)

	t.resume, t.cancel = coro.New(
		func(_ func(struct{}) struct{}, suspend func() struct{}) (z struct{}) {
			region := trace.StartRegion(t.ctx, threadTraceRegionType)
			defer region.End()

			t.suspend = suspend
			t.Log("RUN")
			t.fn(t.ctx, t)
			t.Log("EXIT")
			return
		},
	)
}

// Log writes msg to the execution trace when tracing is enabled.
func (t *Thread) Log(msg string) {
	if trace.IsEnabled() && t.ctx != nil {
		var sb strings.Builder
		threadpath(&sb, t)
		sb.WriteRune(' ')
		sb.WriteString(msg)
		trace.Log(t.ctx, traceCategory, sb.String())
	}
}

// Logf is Log with formatting.
func (t *Thread) Logf(format string, args ...any) {
	if trace.IsEnabled() && t.ctx != nil {
		var sb strings.Builder
		threadpath(&sb, t)
		sb.WriteRune(' ')
		fmt.Fprintf(&sb, format, args...)
		trace.Log(t.ctx, traceCategory, sb.String())
	}
}

func threadpath(sb *strings.Builder, t *Thread) {
	fmt.Fprintf(sb, "%s|%s#%d@%d", t.k.name, t.name, t.id, t.effective)
}
