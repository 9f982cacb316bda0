package kernels

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/stage"
)

// EMA computes an exponentially weighted moving average with smoothing
// factor alpha = 2/(span+1). The first non-null value seeds the average;
// a null input leaves the running average unchanged and its own output
// is null.
type EMA struct {
	column  string
	span    int
	alpha   float64
	current float64
	seeded  bool
	out     string
	alloc   memory.Allocator
}

// NewEMA creates an ema kernel.
func NewEMA(column string, span int) *EMA {
	return &EMA{
		column: column,
		span:   span,
		alpha:  2.0 / (float64(span) + 1.0),
		out:    fmt.Sprintf("%s_ema_%d", column, span),
	}
}

func (k *EMA) OutputColumn() string { return k.out }

func (k *EMA) Open(ctx *stage.Context) error {
	if k.span < 1 {
		return fmt.Errorf("ema(%s): span must be >= 1, got %d", k.column, k.span)
	}
	k.alloc = ctx.Alloc
	return nil
}

func (k *EMA) ProcessBatch(batch otbatch.Batch) ([]otbatch.Batch, error) {
	col, err := otbatch.Float64Column(batch, k.column)
	if err != nil {
		return nil, fmt.Errorf("ema: %w", err)
	}

	n := int(batch.NumRows())
	values := make([]float64, n)
	valid := make([]bool, n)

	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		v := col.Value(i)
		if !k.seeded {
			k.current = v
			k.seeded = true
		} else {
			k.current = k.alpha*v + (1-k.alpha)*k.current
		}
		values[i] = k.current
		valid[i] = true
	}

	out, err := otbatch.AppendFloat64Column(k.alloc, batch, k.out, values, valid)
	if err != nil {
		return nil, err
	}
	return []otbatch.Batch{out}, nil
}

func (k *EMA) Close() error { return nil }
