package ringbuffer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Reader is an independent cursor into a [RingBuffer].
// Reads and waits must come from a single goroutine,
// Detach may be called from any goroutine.
type Reader struct {
	// readIdx is the index of the next frame to read.
	// It is published after the slot has been copied, so the writer
	// never reuses a slot that is being read.
	readIdx atomic.Uint64

	_ cpu.CacheLinePad

	detached atomic.Bool

	// mux serializes a read with Detach, so the slot being copied
	// stays protected until the cursor is published
	mux *sync.Mutex

	rb *RingBuffer
	id int
}

// ID returns the registration order of the reader.
func (r *Reader) ID() int {
	return r.id
}

// Lag returns the number of frames written but not yet read.
func (r *Reader) Lag() uint64 {
	return r.rb.writeIdx.Load() - r.readIdx.Load()
}

// next returns the index of the next readable frame.
func (r *Reader) next() (uint64, error) {
	if r.detached.Load() {
		return 0, ErrClosed
	}

	readIdx := r.readIdx.Load()
	if readIdx < r.rb.writeIdx.Load() {
		return readIdx, nil
	}

	if !r.rb.closed.Load() {
		return 0, ErrWaitingForWriter
	}

	// The writer may have published a last frame between the two loads
	if readIdx < r.rb.writeIdx.Load() {
		return readIdx, nil
	}

	return 0, ErrWriterFinished
}

// TryReadInto copies the next frame into dst without blocking.
//
// Returns [ErrWaitingForWriter] if no frame is available yet and
// [ErrWriterFinished] if the buffer is closed and fully drained.
func (r *Reader) TryReadInto(dst []byte) error {
	if len(dst) < r.rb.slotBytes {
		return fmt.Errorf("%w: destination has %d bytes, want %d", ErrFrameSize, len(dst), r.rb.slotBytes)
	}

	r.mux.Lock()
	defer r.mux.Unlock()

	readIdx, err := r.next()
	if err != nil {
		return err
	}

	copy(dst, r.rb.slot(readIdx))

	// Release the slot to the writer
	r.readIdx.Store(readIdx + 1)

	return nil
}

// TryRead returns a copy of the next frame without blocking.
// See [Reader.TryReadInto] for the returned errors.
func (r *Reader) TryRead() ([]byte, error) {
	frame := make([]byte, r.rb.slotBytes)
	if err := r.TryReadInto(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (r *Reader) ready() bool {
	return r.detached.Load() || r.readIdx.Load() < r.rb.writeIdx.Load() || r.rb.closed.Load()
}

// Wait blocks until a frame is available for the reader, the buffer is
// closed, or ctx is done. It does not consume anything: the caller
// follows up with a read.
func (r *Reader) Wait(ctx context.Context) error {
	rb := r.rb

	// Register as waiter before checking, so a concurrent write
	// either is observed here or signals the channel
	rb.waiters.Add(1)
	defer rb.waiters.Add(-1)

	for {
		notifyCh := rb.loadNotifyCh()

		if r.ready() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-notifyCh:
		}
	}
}

// Detach unregisters the reader, so it no longer holds back the writer.
// A read in progress completes before the reader is unregistered.
// Reads after Detach return [ErrClosed].
func (r *Reader) Detach() {
	r.mux.Lock()
	if !r.detached.CompareAndSwap(false, true) {
		r.mux.Unlock()
		return
	}
	r.rb.detach(r)
	r.mux.Unlock()

	// Wake the reader if it is parked in Wait
	r.rb.signal()
}
