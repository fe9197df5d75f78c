// Package serial models a UART driver on top of cortos primitives.
// Reads and writes are serialized by priority inheritance mutexes and
// each transfer waits on a semaphore that the port's interrupt
// handlers post when the device model, running on ordinary
// goroutines, completes.
package serial

import (
	"errors"
	"io"
	"slices"
	"time"

	"github.com/gammazero/deque"
	"github.com/webriots/cortos"
)

const lineQueueDepth = 64

// Config describes the device model.
type Config struct {
	// Name labels the port's interrupt lines.
	Name string
	// Wire receives every transmitted byte. Nil discards them.
	Wire io.Writer
	// ByteTime is how long the device takes per byte, in real time.
	ByteTime time.Duration
	// RxBuffer is the receive buffer size; bytes arriving while it is
	// full are dropped and counted as overruns. Zero means 256.
	RxBuffer int
	// TxBuffer bounds the bytes a non-blocking Write may leave queued
	// for the device. Zero means 256.
	TxBuffer int
}

// frame is one Write handed to the device model. done is posted from
// the transmit interrupt once the frame is on the wire.
type frame struct {
	data []byte
	done *cortos.Semaphore
}

// Port is one serial port bound to a kernel.
type Port struct {
	k   *cortos.Kernel
	cfg Config

	readMu  *cortos.Mutex
	writeMu *cortos.Mutex
	rxIRQ   *cortos.IRQ
	txIRQ   *cortos.IRQ

	line     chan []byte
	incoming chan []byte
	tx       chan frame
	sent     chan frame

	rx        deque.Deque[byte]
	reader    *cortos.Semaphore
	want      int
	txPending int
	overruns  int
}

// Open creates a port and starts its receive line.
func Open(k *cortos.Kernel, cfg Config) *Port {
	if cfg.Name == "" {
		cfg.Name = "uart"
	}
	if cfg.Wire == nil {
		cfg.Wire = io.Discard
	}
	if cfg.RxBuffer <= 0 {
		cfg.RxBuffer = 256
	}
	if cfg.TxBuffer <= 0 {
		cfg.TxBuffer = 256
	}

	mu := cortos.MutexConfig{Type: cortos.ErrorChecking, Protocol: cortos.PriorityInheritance}
	p := &Port{
		k:        k,
		cfg:      cfg,
		readMu:   cortos.NewMutex(k, mu),
		writeMu:  cortos.NewMutex(k, mu),
		line:     make(chan []byte, lineQueueDepth),
		incoming: make(chan []byte, lineQueueDepth),
		tx:       make(chan frame, cfg.TxBuffer+1),
		sent:     make(chan frame, cfg.TxBuffer+1),
	}
	p.rxIRQ = k.NewIRQ(cfg.Name+"-rx", p.receiveInterrupt)
	p.txIRQ = k.NewIRQ(cfg.Name+"-tx", p.transmitInterrupt)

	go p.receiveLine()
	go p.transmitLine()
	return p
}

// Close stops the device model. Bytes already injected or written are
// still delivered.
func (p *Port) Close() {
	close(p.line)
	close(p.tx)
}

// Write transmits b. With atLeast above zero it blocks the calling
// thread until the device has sent every byte of b. With atLeast zero
// it never blocks: it queues as much of b as the transmit buffer has
// room for and returns that count, or EAGAIN when nothing could be
// queued or another thread is writing.
func (p *Port) Write(b []byte, atLeast int) (int, error) {
	if len(b) == 0 {
		return 0, cortos.EINVAL
	}
	atLeast = max(0, min(atLeast, len(b)))

	if err := p.lock(p.writeMu, atLeast, cortos.Forever); err != nil {
		return 0, err
	}
	defer p.writeMu.Unlock()

	if atLeast == 0 {
		unmask := p.k.MaskInterrupts()
		defer unmask()

		n := min(len(b), p.cfg.TxBuffer-p.txPending)
		if n <= 0 {
			return 0, cortos.EAGAIN
		}
		p.transmit(frame{data: slices.Clone(b[:n])})
		return n, nil
	}

	done := cortos.NewSemaphore(p.k, 0, 1)
	unmask := p.k.MaskInterrupts()
	p.transmit(frame{data: slices.Clone(b), done: done})
	unmask()

	if err := done.Wait(); err != nil {
		return 0, err
	}
	return len(b), nil
}

// transmit queues f for the device. The caller holds the mask.
func (p *Port) transmit(f frame) {
	p.txPending += len(f.data)
	p.txIRQ.Arm()
	p.tx <- f
}

// Read blocks until at least atLeast bytes (capped at len(b)) are
// available and returns as many as fit in b. With atLeast zero it
// never blocks, not even for the read lock, and returns EAGAIN when
// nothing was received or another thread is reading.
func (p *Port) Read(b []byte, atLeast int) (int, error) {
	return p.read(b, atLeast, cortos.Forever)
}

// TryReadUntil is Read with a deadline. On timeout it returns the
// bytes received so far together with ETIMEDOUT.
func (p *Port) TryReadUntil(b []byte, atLeast int, t cortos.Tick) (int, error) {
	return p.read(b, atLeast, t)
}

// lock takes mu the way a transfer of atLeast bytes waits: not at all
// for zero, where a busy lock reads as EAGAIN.
func (p *Port) lock(mu *cortos.Mutex, atLeast int, deadline cortos.Tick) error {
	var err error
	switch {
	case atLeast == 0:
		err = mu.TryLock()
	case deadline == cortos.Forever:
		err = mu.Lock()
	default:
		err = mu.TryLockUntil(deadline)
	}
	if errors.Is(err, cortos.EBUSY) {
		return cortos.EAGAIN
	}
	return err
}

func (p *Port) read(b []byte, atLeast int, deadline cortos.Tick) (int, error) {
	if len(b) == 0 {
		return 0, cortos.EINVAL
	}
	atLeast = max(0, min(atLeast, len(b)))

	if err := p.lock(p.readMu, atLeast, deadline); err != nil {
		return 0, err
	}
	defer p.readMu.Unlock()

	var err error
	unmask := p.k.MaskInterrupts()
	if p.rx.Len() < atLeast {
		ready := cortos.NewSemaphore(p.k, 0, 1)
		p.reader, p.want = ready, atLeast
		unmask()

		if deadline == cortos.Forever {
			err = ready.Wait()
		} else {
			err = ready.TryWaitUntil(deadline)
		}

		unmask = p.k.MaskInterrupts()
		p.reader = nil
	}

	n := 0
	for n < len(b) && p.rx.Len() > 0 {
		b[n] = p.rx.PopFront()
		n++
	}
	unmask()

	if err == nil && n == 0 {
		err = cortos.EAGAIN
	}
	return n, err
}

// Inject delivers b to the port as if it arrived on the line. It is
// called from thread context; the bytes arrive asynchronously, in
// Inject order, ByteTime per byte later.
func (p *Port) Inject(b []byte) {
	if len(b) == 0 {
		return
	}
	p.rxIRQ.Arm()
	p.line <- slices.Clone(b)
}

// Buffered returns the number of received bytes not read yet.
func (p *Port) Buffered() int {
	return p.rx.Len()
}

// Overruns returns the number of bytes dropped on a full buffer.
func (p *Port) Overruns() int {
	return p.overruns
}

func (p *Port) receiveLine() {
	for data := range p.line {
		time.Sleep(p.cfg.ByteTime * time.Duration(len(data)))
		p.incoming <- data
		p.rxIRQ.Trigger()
	}
}

func (p *Port) receiveInterrupt() {
	data := <-p.incoming
	for _, c := range data {
		if p.rx.Len() >= p.cfg.RxBuffer {
			p.overruns++
			continue
		}
		p.rx.PushBack(c)
	}

	if p.reader != nil && p.rx.Len() >= p.want {
		p.reader.Post()
		p.reader = nil
	}
}

func (p *Port) transmitLine() {
	for f := range p.tx {
		time.Sleep(p.cfg.ByteTime * time.Duration(len(f.data)))
		_, _ = p.cfg.Wire.Write(f.data)
		p.sent <- f
		p.txIRQ.Trigger()
	}
}

func (p *Port) transmitInterrupt() {
	f := <-p.sent
	p.txPending -= len(f.data)
	if f.done != nil {
		f.done.Post()
	}
}
