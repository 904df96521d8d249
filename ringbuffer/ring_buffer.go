// Package ringbuffer implements a fixed-capacity ring of fixed-size slots
// with a single writer and any number of independent readers.
//
// Every operation is a non-blocking attempt: retrying, backing off or
// waiting is left to the caller. A reader that is caught up can park in
// [Reader.Wait] until the writer produces a new frame or closes the buffer.
package ringbuffer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

var (
	// ErrWaitingForReader is returned by TryWrite when the slowest reader
	// has not yet freed the slot the writer needs.
	ErrWaitingForReader = errors.New("ring buffer: waiting for reader")
	// ErrWaitingForWriter is returned by a read when the reader is caught up
	// and the writer is still open.
	ErrWaitingForWriter = errors.New("ring buffer: waiting for writer")
	// ErrWriterFinished is returned by a read when the reader is caught up
	// and the writer has closed the buffer.
	ErrWriterFinished = errors.New("ring buffer: writer finished")
	// ErrClosed is returned when writing to a closed buffer, registering a reader
	// after close, or reading from a detached reader.
	ErrClosed = errors.New("ring buffer: buffer is closed")
	// ErrFrameSize is returned when a frame does not match the slot size.
	ErrFrameSize = errors.New("ring buffer: frame size does not match slot size")
	// ErrInvalidSize is returned by New for non positive dimensions.
	ErrInvalidSize = errors.New("ring buffer: slot bytes and slot count must be positive")
)

// RingBuffer is a single-writer, multi-reader ring of fixed-size slots.
//
// Only one goroutine may call TryWrite and Close. Readers are created with
// NewReader and each one may be used by a single goroutine.
type RingBuffer struct {
	// writeIdx is the number of frames written since creation.
	// It is published after the slot has been copied.
	writeIdx atomic.Uint64

	// used to avoid false sharing
	_ cpu.CacheLinePad

	// closed states whether the writer has finished.
	closed atomic.Bool

	_ cpu.CacheLinePad

	// waiters is the number of readers parked in Wait.
	waiters atomic.Int32

	_ cpu.CacheLinePad

	// readers is a copy-on-write snapshot of the attached readers,
	// so the writer can compute backpressure without locking.
	readers atomic.Pointer[[]*Reader]

	slotBytes int
	slotCount uint64

	storage []byte

	// mux guards reader registration and notifyCh
	mux      *sync.Mutex
	notifyCh chan struct{}
	nextID   int
}

// New creates a [RingBuffer] with slotCount slots of slotBytes bytes each.
// The capacity is exact, it is not rounded.
func New(slotBytes, slotCount int) (*RingBuffer, error) {
	if slotBytes <= 0 || slotCount <= 0 {
		return nil, fmt.Errorf("%w: slot_bytes=%d slot_count=%d", ErrInvalidSize, slotBytes, slotCount)
	}

	rb := &RingBuffer{
		slotBytes: slotBytes,
		slotCount: uint64(slotCount),

		storage: make([]byte, slotBytes*slotCount),

		mux:      &sync.Mutex{},
		notifyCh: make(chan struct{}),
	}

	readers := make([]*Reader, 0)
	rb.readers.Store(&readers)

	return rb, nil
}

func (rb *RingBuffer) slot(idx uint64) []byte {
	offset := int(idx%rb.slotCount) * rb.slotBytes
	return rb.storage[offset : offset+rb.slotBytes]
}

// NewReader registers a reader whose cursor starts at the current write position,
// so it observes every frame written from now on.
//
// Returns [ErrClosed] if the writer has already closed the buffer.
func (rb *RingBuffer) NewReader() (*Reader, error) {
	rb.mux.Lock()
	defer rb.mux.Unlock()

	if rb.closed.Load() {
		return nil, ErrClosed
	}

	r := &Reader{
		rb:  rb,
		id:  rb.nextID,
		mux: &sync.Mutex{},
	}
	rb.nextID++

	// Until the final cursor is stored, this one can only be behind it,
	// which at worst holds back the writer
	r.readIdx.Store(rb.writeIdx.Load())

	curr := *rb.readers.Load()
	next := make([]*Reader, 0, len(curr)+1)
	next = append(next, curr...)
	next = append(next, r)
	rb.readers.Store(&next)

	// Any write that missed the new snapshot has an index not greater than
	// this one, so it cannot overwrite a frame the reader still needs
	r.readIdx.Store(rb.writeIdx.Load())

	return r, nil
}

func (rb *RingBuffer) detach(r *Reader) {
	rb.mux.Lock()
	defer rb.mux.Unlock()

	curr := *rb.readers.Load()
	next := make([]*Reader, 0, len(curr))
	for _, other := range curr {
		if other != r {
			next = append(next, other)
		}
	}
	rb.readers.Store(&next)
}

// slowestReadIdx returns the smallest read cursor among the attached readers,
// or writeIdx when there are none.
func (rb *RingBuffer) slowestReadIdx(writeIdx uint64) uint64 {
	slowest := writeIdx
	for _, r := range *rb.readers.Load() {
		if readIdx := r.readIdx.Load(); readIdx < slowest {
			slowest = readIdx
		}
	}
	return slowest
}

// TryWrite copies frame into the next slot without blocking.
//
// Returns [ErrWaitingForReader] if the slot still holds a frame unread by at
// least one reader: the frame is not stored and it is up to the caller
// to decide whether to retry. Returns [ErrClosed] after Close and
// [ErrFrameSize] if len(frame) differs from the slot size.
func (rb *RingBuffer) TryWrite(frame []byte) error {
	if rb.closed.Load() {
		return ErrClosed
	}

	if len(frame) != rb.slotBytes {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(frame), rb.slotBytes)
	}

	writeIdx := rb.writeIdx.Load()

	// Check if the slowest reader still needs the slot
	if writeIdx-rb.slowestReadIdx(writeIdx) >= rb.slotCount {
		return ErrWaitingForReader
	}

	copy(rb.slot(writeIdx), frame)

	// Publish the frame
	rb.writeIdx.Store(writeIdx + 1)

	rb.signal()

	return nil
}

// signal wakes the readers parked in Wait.
func (rb *RingBuffer) signal() {
	if rb.waiters.Load() == 0 {
		return
	}

	rb.mux.Lock()
	close(rb.notifyCh)
	rb.notifyCh = make(chan struct{})
	rb.mux.Unlock()
}

func (rb *RingBuffer) loadNotifyCh() <-chan struct{} {
	rb.mux.Lock()
	defer rb.mux.Unlock()

	return rb.notifyCh
}

// Close marks the [RingBuffer] as finished. No further writes are accepted,
// readers drain the remaining frames and then get [ErrWriterFinished].
// Calling Close more than once has no effect.
func (rb *RingBuffer) Close() {
	if !rb.closed.CompareAndSwap(false, true) {
		return
	}

	rb.signal()
}

// IsClosed reports whether Close has been called.
func (rb *RingBuffer) IsClosed() bool {
	return rb.closed.Load()
}

// SlotBytes returns the size of a slot.
func (rb *RingBuffer) SlotBytes() int {
	return rb.slotBytes
}

// SlotCount returns the number of slots.
func (rb *RingBuffer) SlotCount() int {
	return int(rb.slotCount)
}

// Written returns the number of frames written so far.
func (rb *RingBuffer) Written() uint64 {
	return rb.writeIdx.Load()
}

// Readers returns the number of attached readers.
func (rb *RingBuffer) Readers() int {
	return len(*rb.readers.Load())
}

// Len returns the number of frames not yet read by the slowest reader.
func (rb *RingBuffer) Len() uint64 {
	writeIdx := rb.writeIdx.Load()
	return writeIdx - rb.slowestReadIdx(writeIdx)
}
