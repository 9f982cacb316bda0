package rowconv

import (
	"context"
	"fmt"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/stage"
)

// Unbatcher is the inverse of Batcher: it wraps a RowSink and,
// for each incoming Batch, emits one row per batch row in batch order,
// preserving nulls as nil scalars. Close flushes the wrapped sink, if it
// buffers writes, then closes it — mirroring how the Batcher leg's Close
// releases its column builders.
type Unbatcher struct {
	sink  RowSink
	names []string
}

// NewUnbatcher creates an Unbatcher writing to sink.
func NewUnbatcher(sink RowSink) *Unbatcher {
	return &Unbatcher{sink: sink}
}

func (u *Unbatcher) Open(ctx *stage.Context) error { return nil }

func (u *Unbatcher) WriteBatch(batch otbatch.Batch) error {
	schema := batch.Schema()
	fields := schema.Fields()
	if u.names == nil {
		u.names = make([]string, len(fields))
		for i, f := range fields {
			u.names[i] = f.Name
		}
	}

	n := int(batch.NumRows())
	for r := 0; r < n; r++ {
		row := make(otbatch.Row, len(fields))
		for i, name := range u.names {
			row[name] = otbatch.ExtractScalar(batch.Column(i), r)
		}
		if err := u.sink.WriteRow(row); err != nil {
			return fmt.Errorf("rowconv: write row: %w", err)
		}
	}
	return nil
}

func (u *Unbatcher) Close() error {
	if f, ok := u.sink.(flushableRowSink); ok {
		if err := f.Flush(context.Background()); err != nil {
			return fmt.Errorf("rowconv: flush sink: %w", err)
		}
	}
	return u.sink.Close()
}
