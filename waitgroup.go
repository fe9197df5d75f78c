package cortos

// WaitGroup waits for a collection of threads to finish. Threads
// call Add(1) before they start and Done when they finish; another
// thread calls Wait to block until the counter drops to zero. The
// zero value is ready to use.
type WaitGroup struct {
	noCopy  noCopy    // Prevents copying of the WaitGroup
	k       *Kernel   // Kernel of the threads that wait, set by Wait
	v       int32     // Counter of unfinished work
	waiters waitQueue // Threads blocked in Wait
}

// Add adds delta to the counter. When it reaches zero every waiting
// thread is released. A negative counter panics.
func (wg *WaitGroup) Add(delta int) {
	if wg.k != nil {
		defer wg.k.MaskInterrupts()()
	}

	wg.v += int32(delta)

	if wg.v < 0 {
		panic("cortos: negative WaitGroup counter")
	}

	if wg.v > 0 {
		return
	}

	for w := wg.waiters.front(); w != nil; w = wg.waiters.front() {
		wg.k.wake(w, WakeUnblocked)
	}
}

// Done decrements the counter by one.
func (wg *WaitGroup) Done() {
	wg.Add(-1)
}

// Wait blocks t, which must be the calling thread, until the counter
// is zero. All waiters of a WaitGroup must share one kernel.
func (wg *WaitGroup) Wait(t *Thread) {
	defer t.k.MaskInterrupts()()

	if t.k.thread("WaitGroup wait") != t {
		panic("cortos: WaitGroup.Wait called for another thread")
	}
	if wg.k != nil && wg.k != t.k {
		panic("cortos: WaitGroup shared between kernels")
	}
	wg.k = t.k

	if wg.v == 0 {
		return
	}
	t.k.block(&wg.waiters, ThreadBlockedOnJoin, Forever, nil)
}
