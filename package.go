// Package cortos is the synchronization core of a single-core,
// priority-preemptive real-time scheduler, run as a deterministic
// simulation in which every thread is a coroutine.
//
// Key components:
//
//   - Kernel: the scheduler instance. It owns the tick clock, the
//     ready list and the timers, and is passed explicitly to every
//     primitive built on it. Run executes threads until they all
//     terminate.
//
//   - Thread: a coroutine with a base and an effective priority. The
//     runnable thread with the highest effective priority always runs;
//     equal priorities are served in arrival order.
//
//   - Mutex: Normal, ErrorChecking or Recursive, combined with no
//     priority protocol, priority protect (ceiling) or priority
//     inheritance. Unlock hands the mutex directly to the first
//     waiter.
//
//   - Semaphore: a bounded counting semaphore whose Post hands units
//     directly to waiters and may be called from interrupt handlers.
//
//   - IRQ: interrupt lines raised by goroutines outside the kernel and
//     serviced while no critical section is open.
//
//   - MessageQueue, WaitGroup and ErrGroup: collaborators built on the
//     primitives above.
//
// Time is counted in ticks. The clock only advances while no thread
// can run, so a thread never observes time passing between two of its
// own statements unless it blocks.
package cortos
