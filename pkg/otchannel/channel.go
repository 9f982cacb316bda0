// Package otchannel implements the bounded FIFO channel primitive:
// a multi-producer/multi-consumer queue with a fixed capacity, explicit
// end-of-stream signaling, and backpressure as its sole coordination
// mechanism. No internal unbounded buffering is permitted anywhere in
// the core, so Channel never grows past capacity.
package otchannel

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Send once the channel's receiving end has been
// dropped, or once the sender has closed its own send side.
var ErrClosed = errors.New("otchannel: closed")

// ErrEndOfStream is returned by Recv once the sender has closed the channel
// and the buffer has drained. It is not a fatal error: it is the normal
// termination signal for a worker's input.
var ErrEndOfStream = errors.New("otchannel: end of stream")

// Channel is a bounded FIFO carrying one element type, used for both the
// Batch legs between compute stages and the Row legs inside Batcher/
// Unbatcher adapters. Capacity is fixed at construction and is at least 1.
//
// The default wiring is single-producer/single-consumer. Send may be called
// from several goroutines, but CloseSend must not run concurrently with any
// Send: call it only after the last Send has returned. Recv and Drop may be
// called concurrently with Send.
type Channel[T any] struct {
	buf chan T

	sendOnce   sync.Once
	sendClosed atomic.Bool
	dropOnce   sync.Once
	// gone is closed by Drop to signal the receiving end has stopped
	// reading, waking any Send blocked on a full buffer.
	gone chan struct{}
}

// New creates a Channel with the given capacity. Capacity must be >= 1.
func New[T any](capacity int) *Channel[T] {
	if capacity < 1 {
		panic("otchannel: capacity must be >= 1")
	}
	return &Channel[T]{
		buf:  make(chan T, capacity),
		gone: make(chan struct{}),
	}
}

// Send blocks while the queue is full. It returns ErrClosed if the
// receiving end has been dropped (via Drop) or if this channel's send side
// has already been closed (via CloseSend).
func (c *Channel[T]) Send(item T) error {
	if c.sendClosed.Load() {
		return ErrClosed
	}
	select {
	case <-c.gone:
		return ErrClosed
	default:
	}
	select {
	case c.buf <- item:
		return nil
	case <-c.gone:
		return ErrClosed
	}
}

// Recv blocks while the queue is empty. It returns ErrEndOfStream once
// CloseSend has been called and every buffered item has been drained.
func (c *Channel[T]) Recv() (T, error) {
	item, ok := <-c.buf
	if !ok {
		var zero T
		return zero, ErrEndOfStream
	}
	return item, nil
}

// CloseSend is idempotent. It signals that no further items will be sent;
// once called, Send always fails with ErrClosed and any blocked Recv
// unblocks once the buffer has drained, returning ErrEndOfStream.
func (c *Channel[T]) CloseSend() {
	c.sendOnce.Do(func() {
		c.sendClosed.Store(true)
		close(c.buf)
	})
}

// Drop signals that the receiving end has stopped reading (e.g. because its
// worker failed and is tearing down). It wakes any Send currently blocked
// on a full buffer, and causes future Sends to fail with ErrClosed. Drop is
// idempotent and safe to call even after a normal CloseSend/drain.
func (c *Channel[T]) Drop() {
	c.dropOnce.Do(func() {
		close(c.gone)
	})
}
