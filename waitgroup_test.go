package cortos

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWaitGroup(t *testing.T) {
	r := require.New(t)

	var (
		order []string
		wg    WaitGroup
	)
	k := New()
	k.Go("main", 10, func(_ context.Context, self *Thread) {
		for i, name := range []string{"a", "b", "c"} {
			wg.Add(1)
			k.Go(name, 1, func(_ context.Context, _ *Thread) {
				defer wg.Done()
				k.SleepFor(Duration(3 - i))
				order = append(order, name)
			})
		}
		wg.Wait(self)
		order = append(order, "main")

		wg.Wait(self)
	})

	r.NoError(k.Run(context.Background()))
	r.Equal([]string{"c", "b", "a", "main"}, order)
}

func TestWaitGroupMisuse(t *testing.T) {
	r := require.New(t)

	var wg WaitGroup
	r.Panics(func() { wg.Done() })

	k := New()
	other := k.NewThread("other", 1, nil)
	k.Go("main", 1, func(_ context.Context, _ *Thread) {
		var wg WaitGroup
		wg.Add(1)
		r.Panics(func() { wg.Wait(other) })
		wg.Done()
	})
	r.NoError(k.Run(context.Background()))
}

func TestErrGroup(t *testing.T) {
	r := require.New(t)

	boom := errors.New("boom")
	var (
		err       error
		cancelled error
		finished  []string
	)
	k := New()
	k.Go("main", 10, func(_ context.Context, self *Thread) {
		g := self.Group()
		g.Go("ok", 1, func(ctx context.Context) error {
			k.SleepFor(1)
			finished = append(finished, MustThreadFromContext(ctx).Name())
			return nil
		})
		g.Go("fail", 2, func(context.Context) error {
			return boom
		})
		g.Go("late", 1, func(ctx context.Context) error {
			k.SleepFor(5)
			cancelled = context.Cause(ctx)
			finished = append(finished, "late")
			return ctx.Err()
		})
		err = g.Wait()
	})

	r.NoError(k.Run(context.Background()))
	r.ErrorIs(err, boom)
	r.ErrorIs(cancelled, boom)
	r.Equal([]string{"ok", "late"}, finished)
}

func TestErrGroupNoError(t *testing.T) {
	r := require.New(t)

	var (
		err error
		n   int
	)
	k := New()
	k.Go("main", 1, func(_ context.Context, self *Thread) {
		g := self.Group()
		for i := 0; i < 4; i++ {
			g.Go("worker", Priority(i+1), func(context.Context) error {
				n++
				return nil
			})
		}
		err = g.Wait()
	})

	r.NoError(k.Run(context.Background()))
	r.NoError(err)
	r.Equal(4, n)
}

func TestWaitGroupDoneFromInterrupt(t *testing.T) {
	r := require.New(t)

	var (
		wg       WaitGroup
		order    []string
		isrCount int32
	)
	k := New()
	irq := k.NewIRQ("dma", func() {
		wg.Done()
		isrCount = wg.v
		order = append(order, "isr")
	})
	k.Go("main", 1, func(_ context.Context, self *Thread) {
		wg.Add(2)
		for i := 0; i < 2; i++ {
			irq.Arm()
			go irq.Trigger()
		}
		wg.Wait(self)
		order = append(order, "main")
	})

	r.NoError(k.Run(context.Background()))
	r.Equal([]string{"isr", "isr", "main"}, order)
	r.Zero(isrCount)
	r.Equal(uint64(2), irq.Count())
}

func TestWaitGroupSharedBetweenKernelsPanics(t *testing.T) {
	var wg WaitGroup
	wg.Add(1)

	a := New(WithName("a"))
	a.Go("main", 1, func(_ context.Context, self *Thread) {
		wg.Done()
		wg.Wait(self)
	})
	require.NoError(t, a.Run(context.Background()))

	b := New(WithName("b"))
	b.Go("main", 1, func(_ context.Context, self *Thread) {
		wg.Wait(self)
	})
	require.Panics(t, func() { _ = b.Run(context.Background()) })
}
