package rowconv

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/otterstream/otters/pkg/metrics"
	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/otchannel"
	"github.com/otterstream/otters/pkg/pipeline"
	"github.com/otterstream/otters/pkg/stage"
)

// Batcher wraps a RowSource and accumulates rows into columnar Batches. It
// flushes when the buffered row count reaches batchSize, or when
// flushInterval has elapsed since the last flush and at least one row is
// pending — the latter is a low-latency flush trigger drawn from the
// original implementation's flush_ms. It also flushes any trailing partial
// buffer on end-of-stream. The interval is checked only right after a row
// arrives: rows pending while Next is blocked stay buffered until the next
// row or end-of-stream.
//
// A schema column absent from a row is filled with null for that row. A
// row key not declared in the schema is a fatal schema drift.
type Batcher struct {
	source        RowSource
	schema        *otbatch.Schema
	batchSize     int
	flushInterval time.Duration
	now           clock

	builders  []*otbatch.ColumnBuilder
	pending   int
	lastFlush time.Time
	stageID   string
}

// NewBatcher creates a Batcher. batchSize must be >= 1; flushInterval <= 0
// disables the time-based trigger (only size and end-of-stream flush).
func NewBatcher(source RowSource, schema *otbatch.Schema, batchSize int, flushInterval time.Duration) (*Batcher, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("rowconv: batch_size must be >= 1, got %d", batchSize)
	}
	return &Batcher{
		source:        source,
		schema:        schema,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		now:           time.Now,
	}, nil
}

func (b *Batcher) Open(ctx *stage.Context) error {
	fields := b.schema.Arrow().Fields()
	b.builders = make([]*otbatch.ColumnBuilder, len(fields))
	for i, f := range fields {
		b.builders[i] = otbatch.NewColumnBuilder(ctx.Alloc, f)
	}
	b.lastFlush = b.now()
	b.stageID = ctx.StageID
	return nil
}

func (b *Batcher) Run(ctx *stage.Context, out *otchannel.Channel[otbatch.Batch]) error {
	for {
		select {
		case <-ctx.Done():
			out.CloseSend()
			return nil
		default:
		}

		row, ok, err := b.source.Next()
		if err != nil {
			return fmt.Errorf("rowconv: row source: %w", err)
		}
		if !ok {
			batch, flushErr := b.flush()
			if flushErr != nil {
				return flushErr
			}
			if batch != nil {
				if err := out.Send(batch); err != nil {
					batch.Release()
					return nil
				}
				ctx.Metrics.BatchesProcessed.Add(1)
				ctx.Metrics.RowsProcessed.Add(batch.NumRows())
				metrics.BatchesProcessed.WithLabelValues(ctx.StageID, ctx.StageName).Inc()
				metrics.RowsProcessed.WithLabelValues(ctx.StageID, ctx.StageName).Add(float64(batch.NumRows()))
			}
			out.CloseSend()
			return nil
		}

		if err := b.push(row); err != nil {
			return err
		}

		shouldFlush := b.pending >= b.batchSize
		if !shouldFlush && b.flushInterval > 0 && b.pending > 0 {
			shouldFlush = b.now().Sub(b.lastFlush) >= b.flushInterval
		}
		if !shouldFlush {
			continue
		}

		batch, err := b.flush()
		if err != nil {
			return err
		}
		if batch == nil {
			continue
		}
		if err := out.Send(batch); err != nil {
			batch.Release()
			return nil
		}
		ctx.Metrics.BatchesProcessed.Add(1)
		ctx.Metrics.RowsProcessed.Add(batch.NumRows())
		metrics.BatchesProcessed.WithLabelValues(ctx.StageID, ctx.StageName).Inc()
		metrics.RowsProcessed.WithLabelValues(ctx.StageID, ctx.StageName).Add(float64(batch.NumRows()))
	}
}

func (b *Batcher) Close() error {
	for _, bldr := range b.builders {
		bldr.Release()
	}
	return nil
}

func (b *Batcher) push(row otbatch.Row) error {
	fields := b.schema.Arrow().Fields()
	seen := make(map[string]bool, len(row))
	for i, f := range fields {
		v, exists := row[f.Name]
		seen[f.Name] = true
		if !exists {
			v = nil
		}
		if err := b.builders[i].Append(v); err != nil {
			return fmt.Errorf("rowconv: column %q: %w", f.Name, err)
		}
	}
	for key := range row {
		if !seen[key] {
			return &pipeline.SchemaDriftError{StageID: b.stageID, Reason: fmt.Sprintf("unexpected row key %q", key)}
		}
	}
	b.pending++
	return nil
}

func (b *Batcher) flush() (otbatch.Batch, error) {
	if b.pending == 0 {
		return nil, nil
	}
	arrays := make([]arrow.Array, len(b.builders))
	for i, bldr := range b.builders {
		arrays[i] = bldr.NewArray()
	}
	rec := array.NewRecord(b.schema.Arrow(), arrays, int64(b.pending))
	for _, a := range arrays {
		a.Release()
	}
	b.pending = 0
	b.lastFlush = b.now()
	return rec, nil
}
