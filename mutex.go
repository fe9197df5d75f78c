package cortos

import (
	"fmt"
	"slices"
)

// MaxRecursiveLocks is the deepest a Recursive mutex may be locked by
// its owner.
const MaxRecursiveLocks = 65535

// MutexType selects how a mutex treats its owner locking it again.
type MutexType uint8

const (
	// Normal mutexes do no owner checks. Relocking blocks the owner
	// for good.
	Normal MutexType = iota
	// ErrorChecking mutexes refuse relocking with EDEADLK and unlocking
	// by another thread with EPERM.
	ErrorChecking
	// Recursive mutexes count nested locks by their owner.
	Recursive
)

// String returns the type's name.
func (t MutexType) String() string {
	switch t {
	case Normal:
		return "normal"
	case ErrorChecking:
		return "error-checking"
	case Recursive:
		return "recursive"
	}
	return "MutexType(?)"
}

// MutexConfig is the immutable configuration of a Mutex. Ceiling is
// only used with PriorityProtect.
type MutexConfig struct {
	Type     MutexType
	Protocol Protocol
	Ceiling  Priority
}

// String formats the configuration as type/protocol, with the
// ceiling for PriorityProtect.
func (c MutexConfig) String() string {
	if c.Protocol == PriorityProtect {
		return fmt.Sprintf("%s/%s(%d)", c.Type, c.Protocol, c.Ceiling)
	}
	return fmt.Sprintf("%s/%s", c.Type, c.Protocol)
}

// Mutex provides mutual exclusion between threads of one Kernel.
// Waiting threads queue by priority and the owner hands the mutex
// directly to the first of them on unlock.
type Mutex struct {
	noCopy  noCopy
	k       *Kernel
	cfg     MutexConfig
	owner   *Thread
	count   int
	waiters waitQueue
	dead    bool
}

// NewMutex creates an unlocked mutex on k.
func NewMutex(k *Kernel, cfg MutexConfig) *Mutex {
	if cfg.Type > Recursive || cfg.Protocol > PriorityInheritance {
		panic("cortos: invalid mutex config " + cfg.String())
	}
	return &Mutex{k: k, cfg: cfg}
}

type acquireMode uint8

const (
	acquireTry acquireMode = iota
	acquireTimed
	acquireBlock
)

// Lock blocks until the mutex is acquired. It returns EDEADLK when an
// ErrorChecking mutex is already owned by the caller, EAGAIN when a
// Recursive mutex is at MaxRecursiveLocks and EINVAL when the caller's
// priority is above a PriorityProtect ceiling.
func (m *Mutex) Lock() error {
	return m.acquire(acquireBlock, Forever)
}

// TryLock acquires the mutex only if that needs no waiting. It
// returns EBUSY otherwise.
func (m *Mutex) TryLock() error {
	return m.acquire(acquireTry, 0)
}

// TryLockFor waits at most d ticks for the mutex and returns
// ETIMEDOUT when that is exceeded. Because the current tick does not
// count, a timeout is reported d+1 ticks after the call.
func (m *Mutex) TryLockFor(d Duration) error {
	return m.acquire(acquireTimed, m.k.deadlineAfter(d))
}

// TryLockUntil waits until tick t for the mutex and returns ETIMEDOUT
// at exactly t if it could not be acquired.
func (m *Mutex) TryLockUntil(t Tick) error {
	return m.acquire(acquireTimed, t)
}

func (m *Mutex) acquire(mode acquireMode, deadline Tick) error {
	defer m.k.MaskInterrupts()()

	t := m.k.thread("mutex lock")
	m.check()

	if m.cfg.Protocol == PriorityProtect && t.base > m.cfg.Ceiling {
		return EINVAL
	}

	switch {
	case m.owner == nil:
		m.take(t)
		return nil

	case m.owner == t:
		switch m.cfg.Type {
		case Recursive:
			if m.count >= MaxRecursiveLocks {
				return EAGAIN
			}
			m.count++
			return nil
		case ErrorChecking:
			return EDEADLK
		}
	}

	switch mode {
	case acquireTry:
		return EBUSY
	case acquireTimed:
		if deadline <= m.k.now {
			return ETIMEDOUT
		}
	}

	if m.k.block(&m.waiters, ThreadBlockedOnMutex, deadline, m) == WakeTimeout {
		return ETIMEDOUT
	}
	return nil
}

// Unlock releases the mutex, handing it to the highest-priority
// waiter if there is one. ErrorChecking and Recursive mutexes return
// EPERM when the caller is not the owner.
func (m *Mutex) Unlock() error {
	defer m.k.MaskInterrupts()()

	t := m.k.thread("mutex unlock")
	m.check()

	if m.owner != t {
		if m.cfg.Type != Normal {
			return EPERM
		}
		if m.owner == nil {
			panic("cortos: unlock of unlocked mutex")
		}
	}

	if m.cfg.Type == Recursive && m.count > 1 {
		m.count--
		return nil
	}

	m.release()
	return nil
}

// take makes t the owner. For a hand-off t has already been removed
// from the queue, so the head that remains is what t inherits.
func (m *Mutex) take(t *Thread) {
	m.owner = t
	m.count = 1
	t.held = append(t.held, m)
	m.k.recomputePriority(t)
}

func (m *Mutex) release() {
	prev := m.owner
	prev.held = slices.DeleteFunc(prev.held, func(h *Mutex) bool { return h == m })
	m.owner = nil
	m.count = 0

	if w := m.waiters.front(); w != nil {
		m.k.wake(w, WakeUnblocked)
		m.take(w)
		w.Log("MUTEX HANDOFF")
	}

	m.k.recomputePriority(prev)
}

// blocked lends the new waiter's priority to the owner chain.
func (m *Mutex) blocked(_ *Thread) {
	if m.cfg.Protocol == PriorityInheritance {
		m.k.recomputePriority(m.owner)
	}
}

// unblocked retracts what a timed-out waiter lent the owner chain.
func (m *Mutex) unblocked(_ *Thread, reason WakeReason) {
	if reason == WakeTimeout && m.cfg.Protocol == PriorityInheritance {
		m.k.recomputePriority(m.owner)
	}
}

// Owner returns the owning thread, nil when unlocked.
func (m *Mutex) Owner() *Thread {
	return m.owner
}

// RecursionCount returns how many times the owner holds the mutex.
func (m *Mutex) RecursionCount() int {
	return m.count
}

// WaitCount returns the number of threads waiting for the mutex.
func (m *Mutex) WaitCount() int {
	return m.waiters.len()
}

// Config returns the configuration the mutex was created with.
func (m *Mutex) Config() MutexConfig {
	return m.cfg
}

// Destroy retires the mutex. Destroying a mutex that is owned or has
// waiters is a fatal error, as is any use after Destroy.
func (m *Mutex) Destroy() {
	defer m.k.MaskInterrupts()()

	m.check()
	if m.owner != nil || m.waiters.len() > 0 {
		panic("cortos: destroy of mutex in use")
	}
	m.dead = true
}

func (m *Mutex) check() {
	if m.dead {
		panic("cortos: use of destroyed mutex")
	}
}
