package cortos

// MaskInterrupts enters a critical section and returns the function
// that leaves it. Sections nest; interrupt handlers never run while
// any section is open. The returned function may be called more than
// once, only the first call has an effect, so the usual form is
//
//	defer k.MaskInterrupts()()
//
// Leaving the outermost section from thread context services pending
// interrupts and lets a higher-priority runnable thread preempt the
// caller.
func (k *Kernel) MaskInterrupts() (unmask func()) {
	k.mask++
	done := false
	return func() {
		if done {
			return
		}
		done = true
		k.unmask()
	}
}

func (k *Kernel) unmask() {
	if k.mask <= 0 {
		panic("cortos: interrupt mask underflow")
	}

	k.mask--
	if k.mask > 0 || k.isr > 0 || k.current == nil || k.closing {
		return
	}

	k.serviceInterrupts()
	k.reschedule()
}

// InInterrupt reports whether the caller runs inside an interrupt
// handler, including the tick interrupt.
func (k *Kernel) InInterrupt() bool {
	return k.isr > 0
}
