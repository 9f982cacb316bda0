package kernels

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/stage"
)

// RollingStd computes the sample standard deviation of the last `window`
// values of column, position-wise over the whole stream. When window <= 1
// the sample variance is undefined and every output is null.
type RollingStd struct {
	column string
	window int
	ring   *floatRing
	out    string
	alloc  memory.Allocator
}

// NewRollingStd creates a rolling_std kernel.
func NewRollingStd(column string, window int) *RollingStd {
	return &RollingStd{
		column: column,
		window: window,
		out:    fmt.Sprintf("%s_rolling_std_%d", column, window),
	}
}

func (k *RollingStd) OutputColumn() string { return k.out }

func (k *RollingStd) Open(ctx *stage.Context) error {
	if k.window < 1 {
		return fmt.Errorf("rolling_std(%s): window must be >= 1, got %d", k.column, k.window)
	}
	k.ring = newFloatRing(k.window)
	k.alloc = ctx.Alloc
	return nil
}

func (k *RollingStd) ProcessBatch(batch otbatch.Batch) ([]otbatch.Batch, error) {
	col, err := otbatch.Float64Column(batch, k.column)
	if err != nil {
		return nil, fmt.Errorf("rolling_std: %w", err)
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

		if k.window > 1 && k.ring.full() && k.ring.allValid() {
			values[i] = math.Sqrt(k.ring.sampleVariance())
			valid[i] = true
		}
	}

	out, err := otbatch.AppendFloat64Column(k.alloc, batch, k.out, values, valid)
	if err != nil {
		return nil, err
	}
	return []otbatch.Batch{out}, nil
}

func (k *RollingStd) Close() error { return nil }
