package stage

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Metrics tracks basic per-stage counters, mirrored into Prometheus by
// pkg/metrics when a pipeline is wired with instrumentation.
type Metrics struct {
	BatchesProcessed atomic.Int64
	RowsProcessed    atomic.Int64
	Errors           atomic.Int64
}

// Context is the execution environment a stage runs with.
type Context struct {
	// Ctx is cancelled on external shutdown, cascading through channel
	// closure down the pipeline.
	Ctx context.Context

	// Logger is scoped to this stage.
	Logger *slog.Logger

	// Metrics for this stage instance.
	Metrics *Metrics

	// Alloc is the Arrow memory allocator output batches are built with.
	Alloc memory.Allocator

	// StageID is the unique identifier for this stage in the pipeline.
	StageID string

	// StageName is the human-readable stage name.
	StageName string

	// Parallelism is the number of parallel instances of this stage.
	// Reserved for a future k-worker extension; builtin
	// signal kernels always run with Parallelism == 1 because their
	// state is a function of global stream order.
	Parallelism int

	// InstanceIndex is this instance's 0-based index among Parallelism.
	InstanceIndex int
}

// NewContext creates a Context with single-instance defaults.
func NewContext(ctx context.Context, alloc memory.Allocator, stageID, stageName string) *Context {
	return &Context{
		Ctx:         ctx,
		Logger:      slog.Default().With("stage", stageID, "name", stageName),
		Metrics:     &Metrics{},
		Alloc:       alloc,
		StageID:     stageID,
		StageName:   stageName,
		Parallelism: 1,
	}
}

// Done returns the context's Done channel for shutdown signaling.
func (c *Context) Done() <-chan struct{} {
	return c.Ctx.Done()
}
