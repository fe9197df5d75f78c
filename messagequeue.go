package cortos

import "github.com/gammazero/deque"

type message[T any] struct {
	priority uint8
	value    T
}

// MessageQueue is a bounded queue of prioritized messages. Pop returns
// the message with the highest priority, the oldest one among equal
// priorities. Two semaphores count the stored messages and the free
// slots, so blocking, timeouts and waiter ordering are exactly those
// of Semaphore.
type MessageQueue[T any] struct {
	noCopy noCopy
	k      *Kernel
	stored *Semaphore
	free   *Semaphore
	msgs   deque.Deque[message[T]]
}

// NewMessageQueue creates an empty queue holding up to capacity
// messages.
func NewMessageQueue[T any](k *Kernel, capacity uint32) *MessageQueue[T] {
	if capacity == 0 {
		panic("cortos: message queue capacity must be positive")
	}
	return &MessageQueue[T]{
		k:      k,
		stored: NewSemaphore(k, 0, capacity),
		free:   NewSemaphore(k, capacity, capacity),
	}
}

// Push adds a message, blocking while the queue is full.
func (q *MessageQueue[T]) Push(priority uint8, v T) error {
	return q.push(q.free.Wait, priority, v)
}

// TryPush adds a message if there is room and returns EAGAIN
// otherwise. It may be called from interrupt handlers.
func (q *MessageQueue[T]) TryPush(priority uint8, v T) error {
	return q.push(q.free.TryWait, priority, v)
}

// TryPushFor waits at most d ticks for room.
func (q *MessageQueue[T]) TryPushFor(d Duration, priority uint8, v T) error {
	deadline := q.k.deadlineAfter(d)
	return q.push(func() error { return q.free.TryWaitUntil(deadline) }, priority, v)
}

// TryPushUntil waits until tick t for room.
func (q *MessageQueue[T]) TryPushUntil(t Tick, priority uint8, v T) error {
	return q.push(func() error { return q.free.TryWaitUntil(t) }, priority, v)
}

// Pop removes the first message, blocking while the queue is empty.
func (q *MessageQueue[T]) Pop() (uint8, T, error) {
	return q.pop(q.stored.Wait)
}

// TryPop removes the first message if there is one and returns EAGAIN
// otherwise. It may be called from interrupt handlers.
func (q *MessageQueue[T]) TryPop() (uint8, T, error) {
	return q.pop(q.stored.TryWait)
}

// TryPopFor waits at most d ticks for a message.
func (q *MessageQueue[T]) TryPopFor(d Duration) (uint8, T, error) {
	deadline := q.k.deadlineAfter(d)
	return q.pop(func() error { return q.stored.TryWaitUntil(deadline) })
}

// TryPopUntil waits until tick t for a message.
func (q *MessageQueue[T]) TryPopUntil(t Tick) (uint8, T, error) {
	return q.pop(func() error { return q.stored.TryWaitUntil(t) })
}

// Len returns the number of stored messages.
func (q *MessageQueue[T]) Len() int {
	return q.msgs.Len()
}

func (q *MessageQueue[T]) push(reserve func() error, priority uint8, v T) error {
	if err := reserve(); err != nil {
		return err
	}

	unmask := q.k.MaskInterrupts()
	i := q.msgs.Index(func(m message[T]) bool { return m.priority < priority })
	if i < 0 {
		q.msgs.PushBack(message[T]{priority: priority, value: v})
	} else {
		q.msgs.Insert(i, message[T]{priority: priority, value: v})
	}
	q.stored.Post()
	unmask()

	return nil
}

func (q *MessageQueue[T]) pop(reserve func() error) (uint8, T, error) {
	if err := reserve(); err != nil {
		var z T
		return 0, z, err
	}

	unmask := q.k.MaskInterrupts()
	m := q.msgs.PopFront()
	q.free.Post()
	unmask()

	return m.priority, m.value, nil
}
