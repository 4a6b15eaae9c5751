// Package pipe implements the circular-buffer IPC backing syscall 59 (spec
// §6), grounded on the teacher's circbuf.Circbuf_t head/tail index style
// (circbuf/circbuf.go) but with real blocking on a sync.Cond in place of
// circbuf's lazy, caller-retried Copyin/Copyout — this hosted simulator has
// no trap loop to re-drive a retry from, so the wait has to happen in place.
package pipe

import "sync"

const ringSize = 32

type ringBuffer struct {
	mu         sync.Mutex
	notEmpty   *sync.Cond
	notFull    *sync.Cond
	buf        [ringSize]byte
	head, tail int
	full       bool
	writers    int
}

func newRingBuffer() *ringBuffer {
	rb := &ringBuffer{}
	rb.notEmpty = sync.NewCond(&rb.mu)
	rb.notFull = sync.NewCond(&rb.mu)
	return rb
}

func (rb *ringBuffer) availableRead() int {
	if rb.head == rb.tail && !rb.full {
		return 0
	}
	if rb.tail > rb.head {
		return rb.tail - rb.head
	}
	return rb.tail + ringSize - rb.head
}

func (rb *ringBuffer) availableWrite() int { return ringSize - rb.availableRead() }

// Pipe is one end (read or write) of a pipe sharing a ringBuffer (spec §4
// fd/file NEW component).
type Pipe struct {
	readable bool
	writable bool
	rb       *ringBuffer
}

/// MakePipe creates a connected (readEnd, writeEnd) pair (spec §6 pipe(2)).
func MakePipe() (*Pipe, *Pipe) {
	rb := newRingBuffer()
	rb.writers = 1
	r := &Pipe{readable: true, rb: rb}
	w := &Pipe{writable: true, rb: rb}
	return r, w
}

/// Readable reports whether this end may be read.
func (p *Pipe) Readable() bool { return p.readable }

/// Writable reports whether this end may be written.
func (p *Pipe) Writable() bool { return p.writable }

// AddWriter registers one more independent open descriptor sharing this
// write end (dup or fork duplicating the fd), mirroring
// original_source/os/src/fs/pipe.rs's Arc<Pipe> strong-count bump on
// clone. Close decrements the count back down exactly once per
// descriptor, so the writers count reaches zero (end-of-pipe for Read) only
// once every duplicate is actually closed, not on the first one. A no-op on a read end.
func (p *Pipe) AddWriter() {
	if !p.writable {
		return
	}
	rb := p.rb
	rb.mu.Lock()
	rb.writers++
	rb.mu.Unlock()
}

// Read blocks while the buffer is empty and at least one write end remains
// open; it returns fewer bytes than len(buf) only at end-of-pipe (every
// writer closed).
func (p *Pipe) Read(buf []byte) int {
	if !p.readable {
		panic("pipe: read of a write-only end")
	}
	rb := p.rb
	rb.mu.Lock()
	defer rb.mu.Unlock()
	n := 0
	for n < len(buf) {
		for rb.availableRead() == 0 {
			if rb.writers == 0 {
				return n
			}
			rb.notEmpty.Wait()
		}
		for rb.availableRead() > 0 && n < len(buf) {
			buf[n] = rb.buf[rb.head]
			rb.head = (rb.head + 1) % ringSize
			rb.full = false
			n++
		}
		rb.notFull.Signal()
	}
	return n
}

/// Write blocks while the buffer is full and returns once all of buf is
/// written. Readers are not counted, so a write with no reader left blocks
/// once the buffer fills; it does not panic or fail.
func (p *Pipe) Write(buf []byte) int {
	if !p.writable {
		panic("pipe: write of a read-only end")
	}
	rb := p.rb
	rb.mu.Lock()
	defer rb.mu.Unlock()
	n := 0
	for n < len(buf) {
		for rb.availableWrite() == 0 {
			rb.notFull.Wait()
		}
		for rb.availableWrite() > 0 && n < len(buf) {
			rb.buf[rb.tail] = buf[n]
			rb.tail = (rb.tail + 1) % ringSize
			if rb.tail == rb.head {
				rb.full = true
			}
			n++
		}
		rb.notEmpty.Signal()
	}
	return n
}

// Close releases this end. Closing the last write end wakes any blocked
// readers so they observe end-of-pipe instead of waiting forever.
func (p *Pipe) Close() {
	if !p.writable {
		return
	}
	rb := p.rb
	rb.mu.Lock()
	rb.writers--
	rb.mu.Unlock()
	rb.notEmpty.Broadcast()
}
