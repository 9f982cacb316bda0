// Package connectors implements source and sink connectors at the edges of
// an Otters pipeline: synthetic data generation, console output, and
// row-oriented external systems (Kafka) wired through pkg/rowconv.
package connectors

import (
	"math"
	"math/rand"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/otterstream/otters/pkg/metrics"
	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/otchannel"
	"github.com/otterstream/otters/pkg/stage"
)

const defaultBatchSize = 1024

// TickSchema is the fixed schema a Generator emits: a symbol, price, and
// volume per synthetic tick.
var TickSchema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "price", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}, nil)

// Generator produces synthetic tick Batches at a configurable rate: price
// follows a random walk around startPrice. rowsPerSecond <= 0 defaults to
// 1000; maxRows <= 0 runs until the context is cancelled.
type Generator struct {
	symbol        string
	startPrice    float64
	rowsPerSecond int64
	maxRows       int64
	alloc         memory.Allocator
	rng           *rand.Rand
	price         float64
}

// NewGenerator creates a tick Generator source.
func NewGenerator(symbol string, startPrice float64, rowsPerSecond, maxRows int64) *Generator {
	return &Generator{
		symbol:        symbol,
		startPrice:    startPrice,
		rowsPerSecond: rowsPerSecond,
		maxRows:       maxRows,
	}
}

func (g *Generator) Open(ctx *stage.Context) error {
	g.alloc = ctx.Alloc
	g.rng = rand.New(rand.NewSource(1))
	g.price = g.startPrice
	return nil
}

func (g *Generator) Run(ctx *stage.Context, out *otchannel.Channel[otbatch.Batch]) error {
	defer out.CloseSend()

	rps := g.rowsPerSecond
	if rps <= 0 {
		rps = 1000
	}

	batchSize := defaultBatchSize
	if int64(batchSize) > rps {
		batchSize = int(rps)
	}

	interval := time.Duration(float64(time.Second) * float64(batchSize) / float64(rps))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var totalEmitted int64

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			remaining := int64(batchSize)
			if g.maxRows > 0 {
				left := g.maxRows - totalEmitted
				if left <= 0 {
					return nil
				}
				if remaining > left {
					remaining = left
				}
			}

			batch := g.generateBatch(int(remaining))
			if err := out.Send(batch); err != nil {
				batch.Release()
				return nil
			}
			totalEmitted += remaining
			ctx.Metrics.BatchesProcessed.Add(1)
			ctx.Metrics.RowsProcessed.Add(remaining)
			metrics.BatchesProcessed.WithLabelValues(ctx.StageID, ctx.StageName).Inc()
			metrics.RowsProcessed.WithLabelValues(ctx.StageID, ctx.StageName).Add(float64(remaining))

			if g.maxRows > 0 && totalEmitted >= g.maxRows {
				return nil
			}
		}
	}
}

func (g *Generator) Close() error { return nil }

func (g *Generator) generateBatch(numRows int) otbatch.Batch {
	symBldr := array.NewStringBuilder(g.alloc)
	priceBldr := array.NewFloat64Builder(g.alloc)
	volBldr := array.NewFloat64Builder(g.alloc)
	defer symBldr.Release()
	defer priceBldr.Release()
	defer volBldr.Release()

	for i := 0; i < numRows; i++ {
		g.price += g.rng.NormFloat64() * 0.05
		g.price = math.Max(g.price, 0.01)

		symBldr.Append(g.symbol)
		priceBldr.Append(g.price)
		volBldr.Append(math.Round(g.rng.Float64()*100) + 1)
	}

	arrays := []arrow.Array{symBldr.NewArray(), priceBldr.NewArray(), volBldr.NewArray()}
	defer func() {
		for _, a := range arrays {
			a.Release()
		}
	}()
	return array.NewRecord(TickSchema, arrays, int64(numRows))
}
