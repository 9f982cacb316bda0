package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/otterstream/otters/pkg/metrics"
	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/otchannel"
	"github.com/otterstream/otters/pkg/stage"
)

// Driver runs a validated pipeline: one worker goroutine per stage, wired by
// one otchannel.Channel per edge, all sharing a single allocator. Run
// blocks until every worker has observed end-of-stream, or until the first
// fatal error tears the rest down by channel closure. For every compute
// stage and the sink, the Driver records rows, batches, errors and
// per-batch latency in the Prometheus vectors in pkg/metrics, labeled by
// stage ID; for the source it records only errors, and row and batch counts
// are left to the source itself.
type Driver struct {
	config   Config
	source   stage.Source
	sourceID string
	stages   []stageSpec
	sink     stage.Sink
	sinkID   string
}

// Run executes the pipeline to completion, returning the first non-Closed
// fatal error observed by any worker, or nil on a normal end-of-stream run.
func (d *Driver) Run(ctx context.Context, alloc memory.Allocator) error {
	n := len(d.stages)
	channels := make([]*otchannel.Channel[otbatch.Batch], n+1)
	for i := range channels {
		channels[i] = otchannel.New[otbatch.Batch](d.config.ChannelCapacity)
	}

	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error
	setErr := func(err error) {
		if err == nil {
			return
		}
		once.Do(func() { firstErr = err })
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		out := channels[0]
		defer out.CloseSend()

		sctx := stage.NewContext(ctx, alloc, d.sourceID, d.sourceID)
		if err := d.source.Open(sctx); err != nil {
			metrics.Errors.WithLabelValues(d.sourceID, d.sourceID).Inc()
			setErr(wrapSourceErr(d.sourceID, err))
			return
		}
		defer d.source.Close()

		if err := d.source.Run(sctx, out); err != nil {
			metrics.Errors.WithLabelValues(d.sourceID, d.sourceID).Inc()
			setErr(wrapSourceErr(d.sourceID, err))
		}
	}()

	for i := range d.stages {
		wg.Add(1)
		go d.runStage(ctx, alloc, i, channels[i], channels[i+1], &wg, setErr)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		in := channels[n]
		defer in.Drop()

		sctx := stage.NewContext(ctx, alloc, d.sinkID, d.sinkID)
		if err := d.sink.Open(sctx); err != nil {
			metrics.Errors.WithLabelValues(d.sinkID, d.sinkID).Inc()
			setErr(&SinkError{StageID: d.sinkID, Err: err})
			return
		}
		defer d.sink.Close()

		for {
			batch, err := in.Recv()
			if err != nil {
				if !errors.Is(err, otchannel.ErrEndOfStream) {
					metrics.Errors.WithLabelValues(d.sinkID, d.sinkID).Inc()
					setErr(&SinkError{StageID: d.sinkID, Err: err})
				}
				return
			}
			start := time.Now()
			writeErr := d.sink.WriteBatch(batch)
			metrics.BatchLatency.WithLabelValues(d.sinkID, d.sinkID).Observe(time.Since(start).Seconds())
			sctx.Metrics.BatchesProcessed.Add(1)
			sctx.Metrics.RowsProcessed.Add(batch.NumRows())
			metrics.BatchesProcessed.WithLabelValues(d.sinkID, d.sinkID).Inc()
			metrics.RowsProcessed.WithLabelValues(d.sinkID, d.sinkID).Add(float64(batch.NumRows()))
			batch.Release()
			if writeErr != nil {
				metrics.Errors.WithLabelValues(d.sinkID, d.sinkID).Inc()
				setErr(&SinkError{StageID: d.sinkID, Err: writeErr})
				return
			}
		}
	}()

	wg.Wait()
	return firstErr
}

// wrapSourceErr preserves a *SchemaDriftError raised by a source as-is,
// rather than burying the distinct drift taxonomy under a generic
// SourceError.
func wrapSourceErr(stageID string, err error) error {
	var drift *SchemaDriftError
	if errors.As(err, &drift) {
		return drift
	}
	return &SourceError{StageID: stageID, Err: err}
}

// wrapComputeErr preserves a *SchemaDriftError raised by a stage as-is,
// rather than burying the distinct drift taxonomy under a generic
// ComputeError.
func wrapComputeErr(stageID string, err error) error {
	var drift *SchemaDriftError
	if errors.As(err, &drift) {
		return drift
	}
	return &ComputeError{StageID: stageID, Err: err}
}

func (d *Driver) runStage(ctx context.Context, alloc memory.Allocator, i int, in, out *otchannel.Channel[otbatch.Batch], wg *sync.WaitGroup, setErr func(error)) {
	defer wg.Done()
	defer out.CloseSend()
	defer in.Drop()

	spec := d.stages[i]
	sctx := stage.NewContext(ctx, alloc, spec.id, spec.id)
	if err := spec.stage.Open(sctx); err != nil {
		metrics.Errors.WithLabelValues(spec.id, spec.id).Inc()
		setErr(wrapComputeErr(spec.id, err))
		return
	}
	defer spec.stage.Close()

	for {
		batch, err := in.Recv()
		if err != nil {
			if !errors.Is(err, otchannel.ErrEndOfStream) {
				metrics.Errors.WithLabelValues(spec.id, spec.id).Inc()
				setErr(err)
			}
			return
		}

		start := time.Now()
		outs, err := spec.stage.ProcessBatch(batch)
		metrics.BatchLatency.WithLabelValues(spec.id, spec.id).Observe(time.Since(start).Seconds())
		rows := batch.NumRows()
		batch.Release()
		if err != nil {
			metrics.Errors.WithLabelValues(spec.id, spec.id).Inc()
			setErr(wrapComputeErr(spec.id, err))
			return
		}
		sctx.Metrics.BatchesProcessed.Add(1)
		sctx.Metrics.RowsProcessed.Add(rows)
		metrics.BatchesProcessed.WithLabelValues(spec.id, spec.id).Inc()
		metrics.RowsProcessed.WithLabelValues(spec.id, spec.id).Add(float64(rows))

		for j, ob := range outs {
			if sendErr := out.Send(ob); sendErr != nil {
				for _, rest := range outs[j:] {
					rest.Release()
				}
				return
			}
		}
	}
}
