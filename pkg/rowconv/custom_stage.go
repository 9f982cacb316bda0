package rowconv

import (
	"fmt"
	"sort"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/pipeline"
	"github.com/otterstream/otters/pkg/stage"
)

// RowFunc transforms a single row, or drops it by returning ok=false.
type RowFunc func(row otbatch.Row) (out otbatch.Row, ok bool)

// CustomRowStage sandwiches fn between an implicit Unbatcher and Batcher:
// every incoming Batch is expanded to rows, fn runs row by row, and
// surviving rows are rebuilt into an output Batch. The output schema is
// inferred from the first row fn emits and frozen from then on; any later
// row with a different key set is a fatal schema drift.
type CustomRowStage struct {
	fn RowFunc

	names    []string
	builders []*otbatch.ColumnBuilder
	alloc    memory.Allocator
	stageID  string
}

// NewCustomRowStage creates a custom row-level stage wrapping fn.
func NewCustomRowStage(fn RowFunc) *CustomRowStage {
	return &CustomRowStage{fn: fn}
}

func (s *CustomRowStage) Open(ctx *stage.Context) error {
	s.alloc = ctx.Alloc
	s.stageID = ctx.StageID
	return nil
}

func (s *CustomRowStage) ProcessBatch(batch otbatch.Batch) ([]otbatch.Batch, error) {
	fields := batch.Schema().Fields()
	inNames := make([]string, len(fields))
	for i, f := range fields {
		inNames[i] = f.Name
	}

	n := int(batch.NumRows())
	for r := 0; r < n; r++ {
		row := make(otbatch.Row, len(fields))
		for i, name := range inNames {
			row[name] = otbatch.ExtractScalar(batch.Column(i), r)
		}

		out, ok := s.fn(row)
		if !ok {
			continue
		}
		if err := s.appendRow(out); err != nil {
			return nil, err
		}
	}

	built, err := s.flush()
	if err != nil {
		return nil, err
	}
	if built == nil {
		return nil, nil
	}
	return []otbatch.Batch{built}, nil
}

func (s *CustomRowStage) Close() error {
	for _, bldr := range s.builders {
		bldr.Release()
	}
	return nil
}

func (s *CustomRowStage) appendRow(row otbatch.Row) error {
	if s.names == nil {
		names := make([]string, 0, len(row))
		for k := range row {
			names = append(names, k)
		}
		sort.Strings(names)
		s.names = names

		fields := make([]arrow.Field, len(names))
		for i, name := range names {
			fields[i] = arrow.Field{Name: name, Type: arrowTypeOf(row[name]), Nullable: true}
		}
		s.builders = make([]*otbatch.ColumnBuilder, len(fields))
		for i, f := range fields {
			s.builders[i] = otbatch.NewColumnBuilder(s.alloc, f)
		}
	}

	if len(row) != len(s.names) {
		return &pipeline.SchemaDriftError{StageID: s.stageID, Reason: fmt.Sprintf("row has %d keys, expected %d", len(row), len(s.names))}
	}
	for i, name := range s.names {
		v, exists := row[name]
		if !exists {
			return &pipeline.SchemaDriftError{StageID: s.stageID, Reason: fmt.Sprintf("unexpected row key set, missing %q", name)}
		}
		if err := s.builders[i].Append(v); err != nil {
			return fmt.Errorf("rowconv: column %q: %w", name, err)
		}
	}
	return nil
}

func (s *CustomRowStage) flush() (otbatch.Batch, error) {
	if len(s.builders) == 0 || s.builders[0].Len() == 0 {
		return nil, nil
	}
	fields := make([]arrow.Field, len(s.names))
	arrays := make([]arrow.Array, len(s.builders))
	numRows := int64(s.builders[0].Len())
	for i, bldr := range s.builders {
		arrays[i] = bldr.NewArray()
		fields[i] = arrow.Field{Name: s.names[i], Type: arrays[i].DataType(), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(schema, arrays, numRows)
	for _, a := range arrays {
		a.Release()
	}
	return rec, nil
}

// arrowTypeOf picks the Arrow column type matching the Go type a custom
// stage's emitted scalar arrives as.
func arrowTypeOf(val interface{}) arrow.DataType {
	switch val.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case int, int8, int16, int32, int64:
		return arrow.PrimitiveTypes.Int64
	case uint, uint8, uint16, uint32, uint64:
		return arrow.PrimitiveTypes.Uint64
	case float32, float64:
		return arrow.PrimitiveTypes.Float64
	case string:
		return arrow.BinaryTypes.String
	case time.Time:
		return arrow.FixedWidthTypes.Timestamp_ns
	case nil:
		return arrow.BinaryTypes.String
	default:
		return arrow.BinaryTypes.String
	}
}
