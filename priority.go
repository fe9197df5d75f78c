package cortos

// Protocol selects how a mutex influences its owner's priority.
type Protocol uint8

const (
	// ProtocolNone leaves the owner's priority alone.
	ProtocolNone Protocol = iota
	// PriorityProtect raises the owner to the mutex's ceiling for as
	// long as it holds the mutex.
	PriorityProtect
	// PriorityInheritance raises the owner to the highest effective
	// priority among the threads waiting for the mutex.
	PriorityInheritance
)

// String returns the protocol's name.
func (p Protocol) String() string {
	switch p {
	case ProtocolNone:
		return "none"
	case PriorityProtect:
		return "priority-protect"
	case PriorityInheritance:
		return "priority-inheritance"
	}
	return "Protocol(?)"
}

// contribution is the priority m lends its owner.
func (m *Mutex) contribution() Priority {
	switch m.cfg.Protocol {
	case PriorityProtect:
		return m.cfg.Ceiling
	case PriorityInheritance:
		if w := m.waiters.front(); w != nil {
			return w.effective
		}
	}
	return 0
}

// inheritedPriority is the priority t must run at: its base priority
// or the largest contribution of the mutexes it holds.
func (t *Thread) inheritedPriority() Priority {
	p := t.base
	for _, m := range t.held {
		p = max(p, m.contribution())
	}
	return p
}

// recomputePriority brings t's effective priority in line with the
// mutexes it holds and follows the chain of priority inheritance
// mutexes the affected threads are blocked on. Each step only moves a
// priority toward a fixed point, so the walk ends even when Normal
// mutexes have been locked into a cycle.
func (k *Kernel) recomputePriority(t *Thread) {
	for t != nil {
		p := t.inheritedPriority()
		if p == t.effective {
			return
		}

		t.Logf("PRIORITY %d -> %d", t.effective, p)
		k.setEffectivePriority(t, p)

		m, ok := t.blocker.(*Mutex)
		if !ok || m.cfg.Protocol != PriorityInheritance {
			return
		}
		t = m.owner
	}
}
