package kernels

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/stage"
)

// Lag outputs row i-periods at row i. The first periods rows of the
// whole stream are null. State is a delay line of the last `periods` raw
// (value, validity) pairs seen, ahead of the current row.
type Lag struct {
	column  string
	periods int
	delay   []lagEntry
	head    int
	size    int
	out     string
	alloc   memory.Allocator
}

type lagEntry struct {
	value float64
	valid bool
}

// NewLag creates a lag kernel. periods must be >= 0.
func NewLag(column string, periods int) *Lag {
	return &Lag{
		column:  column,
		periods: periods,
		out:     fmt.Sprintf("%s_lag_%d", column, periods),
	}
}

func (k *Lag) OutputColumn() string { return k.out }

func (k *Lag) Open(ctx *stage.Context) error {
	if k.periods < 0 {
		return fmt.Errorf("lag(%s): periods must be >= 0, got %d", k.column, k.periods)
	}
	if k.periods > 0 {
		k.delay = make([]lagEntry, k.periods)
	}
	k.alloc = ctx.Alloc
	return nil
}

func (k *Lag) ProcessBatch(batch otbatch.Batch) ([]otbatch.Batch, error) {
	col, err := otbatch.Float64Column(batch, k.column)
	if err != nil {
		return nil, fmt.Errorf("lag: %w", err)
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

		if k.periods == 0 {
			values[i], valid[i] = v, ok
		} else if k.size == k.periods {
			oldest := k.delay[k.head]
			values[i], valid[i] = oldest.value, oldest.valid
			k.delay[k.head] = lagEntry{value: v, valid: ok}
			k.head = (k.head + 1) % k.periods
		} else {
			// not enough history yet: output null, still record this
			// value into the delay line.
			k.delay[k.head] = lagEntry{value: v, valid: ok}
			k.head = (k.head + 1) % k.periods
			k.size++
		}
	}

	out, err := otbatch.AppendFloat64Column(k.alloc, batch, k.out, values, valid)
	if err != nil {
		return nil, err
	}
	return []otbatch.Batch{out}, nil
}

func (k *Lag) Close() error { return nil }
