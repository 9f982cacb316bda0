// Command otters runs a demo pipeline: a synthetic tick Generator feeds a
// chain of signal kernels whose output is printed to the console.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/otterstream/otters/pkg/connectors"
	"github.com/otterstream/otters/pkg/kernels"
	"github.com/otterstream/otters/pkg/metrics"
	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/pipeline"
)

func main() {
	symbol := flag.String("symbol", "ACME", "ticker symbol to generate")
	startPrice := flag.Float64("start-price", 100.0, "starting price for the random walk")
	rowsPerSecond := flag.Int64("rows-per-second", 500, "synthetic tick generation rate")
	maxRows := flag.Int64("max-rows", 5000, "stop after this many rows (0 = unbounded)")
	batchSize := flag.Int("batch-size", 128, "pipeline batch_size setting (validated only; the generator sizes its own batches)")
	channelCapacity := flag.Int("channel-capacity", 4, "inter-stage channel capacity")
	maxPrintRows := flag.Int("max-print-rows", 20, "console sink row cap per batch (0 = all)")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus /metrics listen address")
	flag.Parse()

	metricsServer := metrics.ServeMetrics(*metricsAddr)
	defer metricsServer.Close()

	schema := otbatch.FromArrow(connectors.TickSchema)

	cfg := pipeline.Config{BatchSize: *batchSize, ChannelCapacity: *channelCapacity}
	builder := pipeline.NewBuilder(cfg, schema)

	builder.WithSource("generator", connectors.NewGenerator(*symbol, *startPrice, *rowsPerSecond, *maxRows))

	rollingMean := kernels.NewRollingMean("price", 20)
	builder.AddStage("rolling_mean_price_20", rollingMean, []string{"price"}, rollingMean.OutputColumn())

	rollingStd := kernels.NewRollingStd("price", 20)
	builder.AddStage("rolling_std_price_20", rollingStd, []string{"price"}, rollingStd.OutputColumn())

	zscore := kernels.NewZScore("price", 20)
	builder.AddStage("zscore_price_20", zscore, []string{"price"}, zscore.OutputColumn())

	ema := kernels.NewEMA("price", 12)
	builder.AddStage("ema_price_12", ema, []string{"price"}, ema.OutputColumn())

	vwap := kernels.NewVWAP("price", "volume", 20)
	builder.AddStage("vwap_20", vwap, []string{"price", "volume"}, vwap.OutputColumn())

	threshold := kernels.NewThreshold("price", *startPrice, "price_above_start")
	builder.AddStage("threshold_price", threshold, []string{"price"}, threshold.OutputColumn())

	builder.WithSink("console", connectors.NewConsole(int32(*maxPrintRows)))

	driver, err := builder.Build()
	if err != nil {
		slog.Error("pipeline validation failed", "error", err)
		os.Exit(1)
	}

	alloc := memory.DefaultAllocator
	if err := pipeline.RunWithGracefulShutdown(context.Background(), driver, alloc, 30*time.Second); err != nil {
		slog.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
}
