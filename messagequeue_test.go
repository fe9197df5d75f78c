package cortos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageQueueOrder(t *testing.T) {
	r := require.New(t)

	var got []string
	k := New()
	q := NewMessageQueue[string](k, 8)
	k.Go("main", 1, func(_ context.Context, _ *Thread) {
		for _, m := range []struct {
			prio uint8
			v    string
		}{{1, "a"}, {3, "b"}, {1, "c"}, {3, "d"}, {2, "e"}} {
			r.NoError(q.Push(m.prio, m.v))
		}
		r.Equal(5, q.Len())

		for q.Len() > 0 {
			_, v, err := q.TryPop()
			r.NoError(err)
			got = append(got, v)
		}
	})

	r.NoError(k.Run(context.Background()))
	r.Equal([]string{"b", "d", "e", "a", "c"}, got)
}

func TestMessageQueueBounds(t *testing.T) {
	r := require.New(t)

	var (
		fullErr, pushForErr, popErr, popForErr, popUntilErr error
		pushElapsed, popElapsed                             Tick
	)
	k := New()
	q := NewMessageQueue[int](k, 2)
	k.Go("main", 1, func(_ context.Context, _ *Thread) {
		r.NoError(q.TryPush(0, 1))
		r.NoError(q.TryPush(0, 2))
		fullErr = q.TryPush(0, 3)

		start := k.Now()
		pushForErr = q.TryPushFor(2, 0, 3)
		pushElapsed = k.Now() - start

		for i := 0; i < 2; i++ {
			_, _, err := q.Pop()
			r.NoError(err)
		}
		_, _, popErr = q.TryPop()

		start = k.Now()
		_, _, popForErr = q.TryPopFor(1)
		popElapsed = k.Now() - start

		_, _, popUntilErr = q.TryPopUntil(k.Now())
	})

	r.NoError(k.Run(context.Background()))
	r.ErrorIs(fullErr, EAGAIN)
	r.ErrorIs(pushForErr, ETIMEDOUT)
	r.Equal(Tick(3), pushElapsed)
	r.ErrorIs(popErr, EAGAIN)
	r.ErrorIs(popForErr, ETIMEDOUT)
	r.Equal(Tick(2), popElapsed)
	r.ErrorIs(popUntilErr, ETIMEDOUT)
	r.Zero(q.Len())
}

func TestMessageQueueProducerConsumer(t *testing.T) {
	r := require.New(t)

	var (
		got     []int
		maxLen  int
		prodEnd Tick
	)
	k := New()
	q := NewMessageQueue[int](k, 2)
	k.Go("producer", 5, func(_ context.Context, _ *Thread) {
		for i := 0; i < 10; i++ {
			r.NoError(q.Push(7, i))
			maxLen = max(maxLen, q.Len())
		}
		prodEnd = k.Now()
	})
	k.Go("consumer", 1, func(_ context.Context, _ *Thread) {
		for i := 0; i < 10; i++ {
			k.SleepFor(0)
			p, v, err := q.Pop()
			r.NoError(err)
			r.Equal(uint8(7), p)
			got = append(got, v)
		}
	})

	r.NoError(k.Run(context.Background()))
	r.Equal([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	r.Equal(2, maxLen)
	r.Equal(Tick(8), prodEnd)
}

func TestMessageQueueTimedPopReceives(t *testing.T) {
	r := require.New(t)

	var (
		v   string
		err error
		at  Tick
	)
	k := New()
	q := NewMessageQueue[string](k, 1)
	k.Go("reader", 2, func(_ context.Context, _ *Thread) {
		_, v, err = q.TryPopFor(10)
		at = k.Now()
	})
	k.Go("writer", 1, func(_ context.Context, _ *Thread) {
		k.SleepUntil(4)
		r.NoError(q.Push(0, "hello"))
	})

	r.NoError(k.Run(context.Background()))
	r.NoError(err)
	r.Equal("hello", v)
	r.Equal(Tick(4), at)
}

func TestMessageQueueZeroCapacityPanics(t *testing.T) {
	require.Panics(t, func() { NewMessageQueue[int](New(), 0) })
}
