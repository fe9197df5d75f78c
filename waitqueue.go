package cortos

import "github.com/gammazero/deque"

// waitQueue orders threads by effective priority, highest first, and
// by arrival among equal priorities. A thread is on at most one
// waitQueue at a time: the ready list, the sleep list, or the queue
// of the primitive blocking it.
type waitQueue struct {
	noCopy noCopy
	q      deque.Deque[*Thread]
}

func (q *waitQueue) len() int {
	return q.q.Len()
}

func (q *waitQueue) front() *Thread {
	if q.q.Len() == 0 {
		return nil
	}
	return q.q.Front()
}

// insert appends t behind every thread of equal or higher priority.
func (q *waitQueue) insert(t *Thread) {
	if t.queue != nil {
		panic("cortos: thread " + t.name + " is already queued")
	}
	t.k.seq++
	t.seq = t.k.seq
	q.place(t)
}

func (q *waitQueue) place(t *Thread) {
	i := q.q.Index(func(o *Thread) bool {
		return o.effective < t.effective || (o.effective == t.effective && o.seq > t.seq)
	})
	if i < 0 {
		q.q.PushBack(t)
	} else {
		q.q.Insert(i, t)
	}
	t.queue = q
}

// placeAhead puts t in front of the threads that share its priority.
func (q *waitQueue) placeAhead(t *Thread) {
	i := q.q.Index(func(o *Thread) bool {
		return o.effective <= t.effective
	})
	if i < 0 {
		q.q.PushBack(t)
	} else {
		q.q.Insert(i, t)
	}
	t.queue = q
}

func (q *waitQueue) remove(t *Thread) bool {
	if t.queue != q {
		return false
	}
	i := q.q.Index(func(o *Thread) bool { return o == t })
	if i < 0 {
		panic("cortos: wait queue lost thread " + t.name)
	}
	q.q.Remove(i)
	t.queue = nil
	return true
}

// reposition restores ordering after t's effective priority changed.
// The arrival sequence is kept, so equal-priority waiters stay FIFO.
func (q *waitQueue) reposition(t *Thread) {
	if q.remove(t) {
		q.place(t)
	}
}

func (q *waitQueue) each(fn func(*Thread)) {
	for i := 0; i < q.q.Len(); i++ {
		fn(q.q.At(i))
	}
}

// timerList orders timed waiters by deadline, then by arrival.
type timerList struct {
	noCopy noCopy
	q      deque.Deque[*Thread]
}

func (l *timerList) front() *Thread {
	if l.q.Len() == 0 {
		return nil
	}
	return l.q.Front()
}

func (l *timerList) insert(t *Thread) {
	i := l.q.Index(func(o *Thread) bool {
		return o.deadline > t.deadline
	})
	if i < 0 {
		l.q.PushBack(t)
	} else {
		l.q.Insert(i, t)
	}
	t.timed = true
}

func (l *timerList) remove(t *Thread) {
	if !t.timed {
		return
	}
	if i := l.q.Index(func(o *Thread) bool { return o == t }); i >= 0 {
		l.q.Remove(i)
	}
	t.timed = false
}
