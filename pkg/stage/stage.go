// Package stage defines the Stage/Source/Sink interfaces that every pipeline
// node implements, and the Context each stage runs with. The lifecycle is
// Open -> ProcessBatch* -> Close.
package stage

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/otchannel"
)

// Source produces batches until its generator is exhausted or it observes
// shutdown. It has no input channel. On exhaustion it closes its output.
type Source interface {
	Open(ctx *Context) error
	// Run produces batches onto out, closing out (CloseSend) when the
	// source is exhausted or ctx.Done() fires.
	Run(ctx *Context, out *otchannel.Channel[otbatch.Batch]) error
	Close() error
}

// Sink drains its input until end-of-stream, then flushes and releases any
// external handle. It has no output.
type Sink interface {
	Open(ctx *Context) error
	WriteBatch(batch otbatch.Batch) error
	Close() error
}

// Stage is a transform: one input, one output. It receives a batch,
// computes, and returns zero or more output batches. A stage returning
// fewer rows than it received is filtering; filtering is limited to
// row-level custom stages — builtin signal kernels never filter and must
// always return exactly one batch of the same row count they received.
type Stage interface {
	Open(ctx *Context) error
	ProcessBatch(batch otbatch.Batch) ([]otbatch.Batch, error)
	Close() error
}
