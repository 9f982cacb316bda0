package kernels

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/stage"
)

// ZScore computes (x_i - mean_i) / std_i over the rolling window of the
// last lookback values including row i. Output is null when the window
// is not yet fully populated, when lookback <= 1 (sample std is undefined
// with fewer than two samples), or when the resulting std is zero —
// never ±Inf.
type ZScore struct {
	column   string
	lookback int
	ring     *floatRing
	out      string
	alloc    memory.Allocator
}

// NewZScore creates a zscore kernel.
func NewZScore(column string, lookback int) *ZScore {
	return &ZScore{
		column:   column,
		lookback: lookback,
		out:      fmt.Sprintf("%s_zscore_%d", column, lookback),
	}
}

func (k *ZScore) OutputColumn() string { return k.out }

func (k *ZScore) Open(ctx *stage.Context) error {
	if k.lookback < 1 {
		return fmt.Errorf("zscore(%s): lookback must be >= 1, got %d", k.column, k.lookback)
	}
	k.ring = newFloatRing(k.lookback)
	k.alloc = ctx.Alloc
	return nil
}

func (k *ZScore) ProcessBatch(batch otbatch.Batch) ([]otbatch.Batch, error) {
	col, err := otbatch.Float64Column(batch, k.column)
	if err != nil {
		return nil, fmt.Errorf("zscore: %w", err)
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

		if k.lookback > 1 && k.ring.full() && k.ring.allValid() {
			std := math.Sqrt(k.ring.sampleVariance())
			if std != 0 {
				values[i] = (v - k.ring.mean()) / std
				valid[i] = true
			}
		}
	}

	out, err := otbatch.AppendFloat64Column(k.alloc, batch, k.out, values, valid)
	if err != nil {
		return nil, err
	}
	return []otbatch.Batch{out}, nil
}

func (k *ZScore) Close() error { return nil }
