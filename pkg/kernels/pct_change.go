package kernels

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/stage"
)

// PctChange computes (x_i - x_{i-1}) / x_{i-1} against the immediately
// preceding row of the whole stream; it is not a windowed rolling kernel.
// Row 0 of the stream is always null. Output is also null when either
// value is null or the previous value is zero.
type PctChange struct {
	column  string
	prev    float64
	hasPrev bool
	prevOK  bool
	out     string
	alloc   memory.Allocator
}

// NewPctChange creates a pct_change kernel.
func NewPctChange(column string) *PctChange {
	return &PctChange{
		column: column,
		out:    fmt.Sprintf("%s_pct_change", column),
	}
}

func (k *PctChange) OutputColumn() string { return k.out }

func (k *PctChange) Open(ctx *stage.Context) error {
	k.alloc = ctx.Alloc
	return nil
}

func (k *PctChange) ProcessBatch(batch otbatch.Batch) ([]otbatch.Batch, error) {
	col, err := otbatch.Float64Column(batch, k.column)
	if err != nil {
		return nil, fmt.Errorf("pct_change: %w", err)
	}

	n := int(batch.NumRows())
	values := make([]float64, n)
	valid := make([]bool, n)

	for i := 0; i < n; i++ {
		ok := !col.IsNull(i)
		var v float64
		if ok {
			v = col.Value(i)
		}

		if k.hasPrev && k.prevOK && ok && k.prev != 0 {
			values[i] = (v - k.prev) / k.prev
			valid[i] = true
		}

		k.prev, k.prevOK, k.hasPrev = v, ok, true
	}

	out, err := otbatch.AppendFloat64Column(k.alloc, batch, k.out, values, valid)
	if err != nil {
		return nil, err
	}
	return []otbatch.Batch{out}, nil
}

func (k *PctChange) Close() error { return nil }
