package rowconv

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/otchannel"
	"github.com/otterstream/otters/pkg/pipeline"
	"github.com/otterstream/otters/pkg/stage"
)

func newCtx(alloc memory.Allocator) *stage.Context {
	return stage.NewContext(context.Background(), alloc, "test-rowconv", "test")
}

// sliceRowSource replays a fixed slice of rows then reports exhaustion.
type sliceRowSource struct {
	rows []otbatch.Row
	pos  int
}

func (s *sliceRowSource) Next() (otbatch.Row, bool, error) {
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}

func testSchema() *otbatch.Schema {
	schema, err := otbatch.NewSchema([]arrow.Field{
		{Name: "price", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "qty", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	})
	if err != nil {
		panic(err)
	}
	return schema
}

func TestBatcherFlushesOnBatchSize(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	src := &sliceRowSource{rows: []otbatch.Row{
		{"price": 1.0, "qty": int64(1)},
		{"price": 2.0, "qty": int64(2)},
	}}

	b, err := NewBatcher(src, testSchema(), 2, 0)
	if err != nil {
		t.Fatalf("new batcher: %v", err)
	}
	if err := b.Open(newCtx(alloc)); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	out := otchannel.New[otbatch.Batch](4)
	if err := b.Run(newCtx(alloc), out); err != nil {
		t.Fatalf("run: %v", err)
	}

	batch, err := out.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	defer batch.Release()

	if batch.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", batch.NumRows())
	}

	if _, err := out.Recv(); err != otchannel.ErrEndOfStream {
		t.Errorf("expected a single batch then end of stream, got %v", err)
	}
}

func TestBatcherFlushesPendingOnEndOfStream(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	src := &sliceRowSource{rows: []otbatch.Row{
		{"price": 1.0, "qty": int64(1)},
	}}

	b, err := NewBatcher(src, testSchema(), 10, 0)
	if err != nil {
		t.Fatalf("new batcher: %v", err)
	}
	if err := b.Open(newCtx(alloc)); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	out := otchannel.New[otbatch.Batch](4)
	if err := b.Run(newCtx(alloc), out); err != nil {
		t.Fatalf("run: %v", err)
	}

	batch, err := out.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	defer batch.Release()

	if batch.NumRows() != 1 {
		t.Fatalf("expected 1 pending row flushed at end of stream, got %d", batch.NumRows())
	}
}

func TestBatcherFillsMissingKeysWithNull(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	src := &sliceRowSource{rows: []otbatch.Row{
		{"price": 1.0},
	}}

	b, err := NewBatcher(src, testSchema(), 1, 0)
	if err != nil {
		t.Fatalf("new batcher: %v", err)
	}
	if err := b.Open(newCtx(alloc)); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	out := otchannel.New[otbatch.Batch](4)
	if err := b.Run(newCtx(alloc), out); err != nil {
		t.Fatalf("run: %v", err)
	}

	batch, err := out.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	defer batch.Release()

	qty, err := otbatch.Column(batch, "qty")
	if err != nil {
		t.Fatalf("column: %v", err)
	}
	if !qty.IsNull(0) {
		t.Error("expected qty to be null for a row that omitted it")
	}
}

func TestBatcherRejectsUnexpectedKey(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	src := &sliceRowSource{rows: []otbatch.Row{
		{"price": 1.0, "qty": int64(1), "unexpected": "x"},
	}}

	b, err := NewBatcher(src, testSchema(), 1, 0)
	if err != nil {
		t.Fatalf("new batcher: %v", err)
	}
	if err := b.Open(newCtx(alloc)); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	out := otchannel.New[otbatch.Batch](4)
	err = b.Run(newCtx(alloc), out)
	if err == nil || !strings.Contains(err.Error(), "schema drift") {
		t.Errorf("expected schema drift error, got %v", err)
	}
	var drift *pipeline.SchemaDriftError
	if !errors.As(err, &drift) {
		t.Errorf("expected *pipeline.SchemaDriftError, got %T", err)
	}
}

func TestBatcherTimeBasedFlush(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	src := &sliceRowSource{rows: []otbatch.Row{
		{"price": 1.0, "qty": int64(1)},
	}}

	b, err := NewBatcher(src, testSchema(), 1000, time.Millisecond)
	if err != nil {
		t.Fatalf("new batcher: %v", err)
	}
	if err := b.Open(newCtx(alloc)); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	b.lastFlush = time.Now().Add(-time.Hour)

	out := otchannel.New[otbatch.Batch](4)
	if err := b.Run(newCtx(alloc), out); err != nil {
		t.Fatalf("run: %v", err)
	}

	batch, err := out.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	defer batch.Release()

	if batch.NumRows() != 1 {
		t.Fatalf("expected the single row flushed by the time trigger, got %d rows", batch.NumRows())
	}
}

// collectingRowSink records every row written to it.
type collectingRowSink struct {
	rows   []otbatch.Row
	closed bool
}

func (s *collectingRowSink) WriteRow(row otbatch.Row) error {
	s.rows = append(s.rows, row)
	return nil
}

func (s *collectingRowSink) Close() error {
	s.closed = true
	return nil
}

// flushingRowSink additionally records whether Flush ran before Close,
// modeling a sink that buffers writes (e.g. a Kafka producer) and needs
// to drain them before its handle is dropped.
type flushingRowSink struct {
	collectingRowSink
	flushed bool
}

func (s *flushingRowSink) Flush(_ context.Context) error {
	s.flushed = true
	return nil
}

func TestUnbatcherRoundTrip(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	src := &sliceRowSource{rows: []otbatch.Row{
		{"price": 1.0, "qty": int64(1)},
		{"price": 2.0},
	}}
	b, err := NewBatcher(src, testSchema(), 10, 0)
	if err != nil {
		t.Fatalf("new batcher: %v", err)
	}
	if err := b.Open(newCtx(alloc)); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	out := otchannel.New[otbatch.Batch](4)
	if err := b.Run(newCtx(alloc), out); err != nil {
		t.Fatalf("run: %v", err)
	}
	batch, err := out.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	defer batch.Release()

	sink := &collectingRowSink{}
	u := NewUnbatcher(sink)
	if err := u.Open(newCtx(alloc)); err != nil {
		t.Fatalf("open unbatcher: %v", err)
	}
	defer u.Close()

	if err := u.WriteBatch(batch); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	if len(sink.rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(sink.rows))
	}
	if sink.rows[0]["price"] != 1.0 || sink.rows[0]["qty"] != int64(1) {
		t.Errorf("row 0 mismatch: %v", sink.rows[0])
	}
	if sink.rows[1]["price"] != 2.0 || sink.rows[1]["qty"] != nil {
		t.Errorf("row 1 mismatch: %v", sink.rows[1])
	}
}

func TestUnbatcherCloseFlushesAndClosesSink(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	sink := &flushingRowSink{}
	u := NewUnbatcher(sink)
	if err := u.Open(newCtx(alloc)); err != nil {
		t.Fatalf("open unbatcher: %v", err)
	}
	if err := u.Close(); err != nil {
		t.Fatalf("close unbatcher: %v", err)
	}
	if !sink.flushed {
		t.Error("expected Unbatcher.Close to flush a sink that buffers writes")
	}
	if !sink.closed {
		t.Error("expected Unbatcher.Close to close the wrapped sink")
	}
}

func TestUnbatcherCloseClosesNonFlushingSink(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	sink := &collectingRowSink{}
	u := NewUnbatcher(sink)
	if err := u.Open(newCtx(alloc)); err != nil {
		t.Fatalf("open unbatcher: %v", err)
	}
	if err := u.Close(); err != nil {
		t.Fatalf("close unbatcher: %v", err)
	}
	if !sink.closed {
		t.Error("expected Unbatcher.Close to close a sink with no Flush method")
	}
}

func TestCustomRowStageDropsRows(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	fn := func(row otbatch.Row) (otbatch.Row, bool) {
		price, _ := row["price"].(float64)
		if price < 1.5 {
			return nil, false
		}
		return otbatch.Row{"s": price * 2}, true
	}

	stg := NewCustomRowStage(fn)
	if err := stg.Open(newCtx(alloc)); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer stg.Close()

	src := &sliceRowSource{rows: []otbatch.Row{
		{"price": 1.0, "qty": int64(1)},
		{"price": 2.0, "qty": int64(2)},
	}}
	b, err := NewBatcher(src, testSchema(), 10, 0)
	if err != nil {
		t.Fatalf("new batcher: %v", err)
	}
	if err := b.Open(newCtx(alloc)); err != nil {
		t.Fatalf("open batcher: %v", err)
	}
	defer b.Close()

	ch := otchannel.New[otbatch.Batch](4)
	if err := b.Run(newCtx(alloc), ch); err != nil {
		t.Fatalf("run: %v", err)
	}
	in, err := ch.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	defer in.Release()

	outs, err := stg.ProcessBatch(in)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("expected 1 output batch, got %d", len(outs))
	}
	defer outs[0].Release()

	if outs[0].NumRows() != 1 {
		t.Fatalf("expected the low-price row to be dropped, leaving 1 row, got %d", outs[0].NumRows())
	}

	col, err := otbatch.Column(outs[0], "s")
	if err != nil {
		t.Fatalf("column s: %v", err)
	}
	if otbatch.ExtractScalar(col, 0) != 4.0 {
		t.Errorf("expected s=4.0, got %v", otbatch.ExtractScalar(col, 0))
	}
}

func TestCustomRowStageSchemaDrift(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	first := true
	fn := func(row otbatch.Row) (otbatch.Row, bool) {
		if first {
			first = false
			return otbatch.Row{"s": 1.0}, true
		}
		return otbatch.Row{"s": 1.0, "extra": 2.0}, true
	}

	stg := NewCustomRowStage(fn)
	if err := stg.Open(newCtx(alloc)); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer stg.Close()

	src := &sliceRowSource{rows: []otbatch.Row{
		{"price": 1.0, "qty": int64(1)},
		{"price": 2.0, "qty": int64(2)},
	}}
	b, err := NewBatcher(src, testSchema(), 10, 0)
	if err != nil {
		t.Fatalf("new batcher: %v", err)
	}
	if err := b.Open(newCtx(alloc)); err != nil {
		t.Fatalf("open batcher: %v", err)
	}
	defer b.Close()

	ch := otchannel.New[otbatch.Batch](4)
	if err := b.Run(newCtx(alloc), ch); err != nil {
		t.Fatalf("run: %v", err)
	}
	in, err := ch.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	defer in.Release()

	_, err = stg.ProcessBatch(in)
	if err == nil {
		t.Fatal("expected schema drift error for a row with a different key set")
	}
	var drift *pipeline.SchemaDriftError
	if !errors.As(err, &drift) {
		t.Errorf("expected *pipeline.SchemaDriftError, got %T: %v", err, err)
	}
}
