package cortos

// IRQ is an interrupt line. Goroutines outside the kernel, typically
// device models completing a transfer, raise it with Trigger; the
// kernel runs its handler in interrupt context, either from the idle
// loop or when the running thread leaves its outermost critical
// section.
//
// Handlers must not block: Semaphore.Post, Semaphore.TryWait and the
// Try variants of MessageQueue are the operations meant for them.
type IRQ struct {
	noCopy  noCopy
	k       *Kernel
	name    string
	handler func()
	armed   int
	count   uint64
}

// NewIRQ registers an interrupt line.
func (k *Kernel) NewIRQ(name string, handler func()) *IRQ {
	return &IRQ{k: k, name: name, handler: handler}
}

// Arm announces one future Trigger. While any line is armed, an idle
// kernel waits for interrupts instead of advancing the clock or
// reporting a stall.
func (q *IRQ) Arm() {
	defer q.k.MaskInterrupts()()

	q.armed++
	q.k.armed++
}

// Trigger raises the line. It is safe to call from any goroutine.
func (q *IRQ) Trigger() {
	q.k.irqs <- q
}

// Count returns the number of times the handler has run.
func (q *IRQ) Count() uint64 {
	return q.count
}

// Name returns the line's name.
func (q *IRQ) Name() string {
	return q.name
}

// serviceInterrupts runs the handlers of every interrupt raised so
// far without waiting for more.
func (k *Kernel) serviceInterrupts() (n int) {
	for {
		select {
		case q := <-k.irqs:
			k.interrupt(q)
			n++
		default:
			return n
		}
	}
}

func (k *Kernel) interrupt(q *IRQ) {
	k.isr++
	defer func() { k.isr-- }()

	if q.armed > 0 {
		q.armed--
		k.armed--
	}
	q.count++

	k.logf("IRQ %s", q.name)
	q.handler()
}
