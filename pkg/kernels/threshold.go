package kernels

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/stage"
)

// Threshold is a stateless per-row comparison: column > above. A null
// input propagates to a null output; there is no cross-batch state.
type Threshold struct {
	column string
	above  float64
	out    string
	alloc  memory.Allocator
}

// NewThreshold creates a threshold kernel. flagAs names the boolean column
// it appends.
func NewThreshold(column string, above float64, flagAs string) *Threshold {
	return &Threshold{
		column: column,
		above:  above,
		out:    flagAs,
	}
}

func (k *Threshold) OutputColumn() string { return k.out }

func (k *Threshold) Open(ctx *stage.Context) error {
	k.alloc = ctx.Alloc
	return nil
}

func (k *Threshold) ProcessBatch(batch otbatch.Batch) ([]otbatch.Batch, error) {
	col, err := otbatch.Float64Column(batch, k.column)
	if err != nil {
		return nil, fmt.Errorf("threshold: %w", err)
	}

	n := int(batch.NumRows())
	values := make([]bool, n)
	valid := make([]bool, n)

	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		values[i] = col.Value(i) > k.above
		valid[i] = true
	}

	out, err := otbatch.AppendBoolColumn(k.alloc, batch, k.out, values, valid)
	if err != nil {
		return nil, err
	}
	return []otbatch.Batch{out}, nil
}

func (k *Threshold) Close() error { return nil }
