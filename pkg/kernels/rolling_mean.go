package kernels

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/stage"
)

// RollingMean computes the arithmetic mean of the last `window` values of
// column, position-wise over the whole stream. The first
// window-1 outputs of the stream are null; any null inside the window
// makes that position's output null too.
type RollingMean struct {
	column string
	window int
	ring   *floatRing
	out    string
	alloc  memory.Allocator
}

// NewRollingMean creates a rolling_mean kernel. window must be >= 1.
func NewRollingMean(column string, window int) *RollingMean {
	return &RollingMean{
		column: column,
		window: window,
		out:    fmt.Sprintf("%s_rolling_mean_%d", column, window),
	}
}

// OutputColumn returns the deterministic output column name.
func (k *RollingMean) OutputColumn() string { return k.out }

func (k *RollingMean) Open(ctx *stage.Context) error {
	if k.window < 1 {
		return fmt.Errorf("rolling_mean(%s): window must be >= 1, got %d", k.column, k.window)
	}
	k.ring = newFloatRing(k.window)
	k.alloc = ctx.Alloc
	return nil
}

func (k *RollingMean) ProcessBatch(batch otbatch.Batch) ([]otbatch.Batch, error) {
	col, err := otbatch.Float64Column(batch, k.column)
	if err != nil {
		return nil, fmt.Errorf("rolling_mean: %w", err)
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
		k.ring.push(v, ok)

		if k.ring.full() && k.ring.allValid() {
			values[i] = k.ring.mean()
			valid[i] = true
		}
	}

	out, err := otbatch.AppendFloat64Column(k.alloc, batch, k.out, values, valid)
	if err != nil {
		return nil, err
	}
	return []otbatch.Batch{out}, nil
}

func (k *RollingMean) Close() error { return nil }
