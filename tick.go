package cortos

// Tick is a point on the kernel's tick clock.
type Tick uint64

// Duration is a number of ticks.
type Duration uint64

// Forever is the deadline of a wait that never times out.
const Forever = ^Tick(0)

// Now returns the current tick. The clock starts at zero and only
// moves forward while every thread is blocked or sleeping.
func (k *Kernel) Now() Tick {
	return k.now
}

// deadlineAfter converts a relative wait into an absolute deadline.
// The tick that is already in progress does not count, so a wait of
// d ticks expires at Now()+d+1.
func (k *Kernel) deadlineAfter(d Duration) Tick {
	at := k.now + Tick(d) + 1
	if at <= k.now || at == Forever {
		return Forever - 1
	}
	return at
}

// SleepFor suspends the calling thread for at least d whole ticks.
func (k *Kernel) SleepFor(d Duration) {
	k.SleepUntil(k.deadlineAfter(d))
}

// SleepUntil suspends the calling thread until tick t. It returns
// immediately when t has already been reached.
func (k *Kernel) SleepUntil(t Tick) {
	defer k.MaskInterrupts()()

	k.thread("sleep")
	if t <= k.now {
		return
	}
	k.block(&k.sleeping, ThreadSleeping, t, nil)
}

// advance moves the clock to t and runs the tick interrupt: every
// timer whose deadline has been reached fires in deadline order.
func (k *Kernel) advance(t Tick) {
	k.now = t
	k.logf("TICK %d", t)

	k.isr++
	defer func() { k.isr-- }()

	for th := k.timers.front(); th != nil && th.deadline <= k.now; th = k.timers.front() {
		b := th.blocker
		k.wake(th, WakeTimeout)
		if b != nil {
			b.unblocked(th, WakeTimeout)
		}
	}

	if k.tickHook != nil {
		k.tickHook(t)
	}
}
