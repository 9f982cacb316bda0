package kernels

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/stage"
)

// VWAP computes the volume-weighted average price over the last window
// rows: Σ(p·v)/Σ(v). A null price or volume at row i excludes that row's
// contribution from the running sums and forces row i's own output to
// null; if Σ(v) within the window is zero the output is null rather than
// ±Inf.
type VWAP struct {
	priceCol  string
	volumeCol string
	window    int
	ring      *pvRing
	out       string
	alloc     memory.Allocator
}

// NewVWAP creates a vwap kernel.
func NewVWAP(priceCol, volumeCol string, window int) *VWAP {
	return &VWAP{
		priceCol:  priceCol,
		volumeCol: volumeCol,
		window:    window,
		out:       fmt.Sprintf("vwap_%d", window),
	}
}

func (k *VWAP) OutputColumn() string { return k.out }

func (k *VWAP) Open(ctx *stage.Context) error {
	if k.window < 1 {
		return fmt.Errorf("vwap(%s,%s): window must be >= 1, got %d", k.priceCol, k.volumeCol, k.window)
	}
	k.ring = newPVRing(k.window)
	k.alloc = ctx.Alloc
	return nil
}

func (k *VWAP) ProcessBatch(batch otbatch.Batch) ([]otbatch.Batch, error) {
	prices, err := otbatch.Float64Column(batch, k.priceCol)
	if err != nil {
		return nil, fmt.Errorf("vwap: %w", err)
	}
	volumes, err := otbatch.Float64Column(batch, k.volumeCol)
	if err != nil {
		return nil, fmt.Errorf("vwap: %w", err)
	}

	n := int(batch.NumRows())
	values := make([]float64, n)
	valid := make([]bool, n)

	for i := 0; i < n; i++ {
		rowOK := !prices.IsNull(i) && !volumes.IsNull(i)
		var pv, v float64
		if rowOK {
			p := prices.Value(i)
			v = volumes.Value(i)
			pv = p * v
		}
		k.ring.push(pv, v)

		if rowOK && k.ring.full() && k.ring.sumV != 0 {
			values[i] = k.ring.sumPV / k.ring.sumV
			valid[i] = true
		}
	}

	out, err := otbatch.AppendFloat64Column(k.alloc, batch, k.out, values, valid)
	if err != nil {
		return nil, err
	}
	return []otbatch.Batch{out}, nil
}

func (k *VWAP) Close() error { return nil }
