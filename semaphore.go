package cortos

import "math"

// Semaphore is a counting semaphore. A Post while threads are waiting
// hands the unit directly to the highest-priority waiter, so the
// value only counts units nobody has asked for yet.
type Semaphore struct {
	noCopy  noCopy
	k       *Kernel
	value   uint32
	max     uint32
	waiters waitQueue
	dead    bool
}

// NewSemaphore creates a semaphore holding value units that may grow
// up to limit. A limit of zero means math.MaxUint32.
func NewSemaphore(k *Kernel, value, limit uint32) *Semaphore {
	if limit == 0 {
		limit = math.MaxUint32
	}
	if value > limit {
		panic("cortos: semaphore value above its maximum")
	}
	return &Semaphore{k: k, value: value, max: limit}
}

// Wait takes one unit, blocking until one is available.
func (s *Semaphore) Wait() error {
	return s.wait(acquireBlock, Forever)
}

// TryWait takes one unit if one is available and returns EAGAIN
// otherwise. It may be called from interrupt handlers.
func (s *Semaphore) TryWait() error {
	return s.wait(acquireTry, 0)
}

// TryWaitFor waits at most d ticks for a unit, returning ETIMEDOUT
// d+1 ticks after the call when none arrived.
func (s *Semaphore) TryWaitFor(d Duration) error {
	return s.wait(acquireTimed, s.k.deadlineAfter(d))
}

// TryWaitUntil waits until tick t for a unit.
func (s *Semaphore) TryWaitUntil(t Tick) error {
	return s.wait(acquireTimed, t)
}

func (s *Semaphore) wait(mode acquireMode, deadline Tick) error {
	defer s.k.MaskInterrupts()()

	s.check()
	if mode != acquireTry {
		s.k.thread("semaphore wait")
	}

	if s.value > 0 {
		s.value--
		return nil
	}

	switch mode {
	case acquireTry:
		return EAGAIN
	case acquireTimed:
		if deadline <= s.k.now {
			return ETIMEDOUT
		}
	}

	if s.k.block(&s.waiters, ThreadBlockedOnSemaphore, deadline, s) == WakeTimeout {
		return ETIMEDOUT
	}
	return nil
}

// Post releases one unit. Posting to a semaphore already holding its
// maximum is a fatal error. Post never blocks and may be called from
// interrupt handlers.
func (s *Semaphore) Post() {
	defer s.k.MaskInterrupts()()

	s.check()
	if w := s.waiters.front(); w != nil {
		s.k.wake(w, WakeUnblocked)
		return
	}
	if s.value == s.max {
		panic("cortos: semaphore value overflow")
	}
	s.value++
}

func (s *Semaphore) blocked(*Thread) {}

func (s *Semaphore) unblocked(*Thread, WakeReason) {}

// Value returns the number of available units.
func (s *Semaphore) Value() uint32 {
	return s.value
}

// Max returns the largest value the semaphore may hold.
func (s *Semaphore) Max() uint32 {
	return s.max
}

// WaitCount returns the number of threads waiting for a unit.
func (s *Semaphore) WaitCount() int {
	return s.waiters.len()
}

// Destroy retires the semaphore. Destroying it while threads wait is
// a fatal error, as is any use after Destroy.
func (s *Semaphore) Destroy() {
	defer s.k.MaskInterrupts()()

	s.check()
	if s.waiters.len() > 0 {
		panic("cortos: destroy of semaphore with waiters")
	}
	s.dead = true
}

func (s *Semaphore) check() {
	if s.dead {
		panic("cortos: use of destroyed semaphore")
	}
}
