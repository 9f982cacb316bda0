// Package rowconv implements the row/batch conversion boundary: a Batcher
// accumulates rows produced by an external row source into columnar
// Batches, an Unbatcher is its inverse at the sink edge, and the custom
// row-level stage sandwiches a user row→row function between an Unbatcher
// and a Batcher.
package rowconv

import (
	"context"
	"time"

	"github.com/otterstream/otters/pkg/otbatch"
)

// RowSource produces rows, one at a time, until it reports io.EOF-style
// exhaustion via the bool return. It is the generic external contract a
// connector (Kafka, generator, file reader) implements at the pipeline edge.
type RowSource interface {
	// Next returns the next row, or ok=false when the source is exhausted.
	Next() (row otbatch.Row, ok bool, err error)
}

// RowSink consumes rows one at a time and releases any external handles
// on Close (a network client, an open file descriptor, ...).
type RowSink interface {
	WriteRow(row otbatch.Row) error
	Close() error
}

// flushableRowSink is implemented by row sinks that buffer writes and
// need an explicit flush — e.g. waiting for broker acks — before Close
// drops the underlying connection. Unbatcher checks for it so sinks
// without buffering (most of them) don't need a no-op Flush.
type flushableRowSink interface {
	Flush(ctx context.Context) error
}

// clock abstracts time.Now for the Batcher's time-based flush so tests can
// supply a deterministic source; defaults to the real wall clock.
type clock func() time.Time
