package otbatch

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Row is a mapping from column name to a single scalar value of the
// declared logical type, or nil for null. Rows are used only at
// source/sink edges; everything downstream of a Batcher is columnar.
type Row map[string]interface{}

// ColumnBuilder accumulates Row values into a typed Arrow column,
// tracking the validity mask in lockstep with the value buffer. It
// dispatches on the field's declared Arrow type to a typed column
// builder rather than branching dynamically per call.
type ColumnBuilder struct {
	name  string
	field arrow.Field
	bldr  array.Builder
}

// NewColumnBuilder creates a builder for one schema field.
func NewColumnBuilder(alloc memory.Allocator, field arrow.Field) *ColumnBuilder {
	return &ColumnBuilder{name: field.Name, field: field, bldr: array.NewBuilder(alloc, field.Type)}
}

// Append appends val (or null if val is nil) to the column being built.
func (cb *ColumnBuilder) Append(val interface{}) error {
	if val == nil {
		cb.bldr.AppendNull()
		return nil
	}
	return appendScalar(cb.bldr, cb.field.Type, val)
}

// Len reports the number of rows buffered so far.
func (cb *ColumnBuilder) Len() int { return cb.bldr.Len() }

// NewArray finalizes the column, resetting the builder for reuse.
func (cb *ColumnBuilder) NewArray() arrow.Array { return cb.bldr.NewArray() }

// Release releases the underlying builder's memory.
func (cb *ColumnBuilder) Release() { cb.bldr.Release() }

// appendScalar dispatches a single scalar value to the builder matching its
// declared Arrow type. Numeric values commonly arrive as float64 (decoded
// JSON) or an already-typed Go numeric. Integer and timestamp columns accept
// int, int32, int64 and float64; float columns accept float32, float64, int
// and int64. Any other Go numeric type (int8, int16, the unsigned types) is
// rejected with an error.
func appendScalar(bldr array.Builder, dt arrow.DataType, val interface{}) error {
	switch b := bldr.(type) {
	case *array.BooleanBuilder:
		v, ok := val.(bool)
		if !ok {
			return fmt.Errorf("otbatch: expected bool, got %T", val)
		}
		b.Append(v)

	case *array.Int8Builder:
		v, err := toInt64(val)
		if err != nil {
			return err
		}
		b.Append(int8(v))
	case *array.Int16Builder:
		v, err := toInt64(val)
		if err != nil {
			return err
		}
		b.Append(int16(v))
	case *array.Int32Builder:
		v, err := toInt64(val)
		if err != nil {
			return err
		}
		b.Append(int32(v))
	case *array.Int64Builder:
		v, err := toInt64(val)
		if err != nil {
			return err
		}
		b.Append(v)

	case *array.Uint8Builder:
		v, err := toInt64(val)
		if err != nil {
			return err
		}
		b.Append(uint8(v))
	case *array.Uint16Builder:
		v, err := toInt64(val)
		if err != nil {
			return err
		}
		b.Append(uint16(v))
	case *array.Uint32Builder:
		v, err := toInt64(val)
		if err != nil {
			return err
		}
		b.Append(uint32(v))
	case *array.Uint64Builder:
		v, err := toInt64(val)
		if err != nil {
			return err
		}
		b.Append(uint64(v))

	case *array.Float32Builder:
		v, err := toFloat64(val)
		if err != nil {
			return err
		}
		b.Append(float32(v))
	case *array.Float64Builder:
		v, err := toFloat64(val)
		if err != nil {
			return err
		}
		b.Append(v)

	case *array.StringBuilder:
		v, ok := val.(string)
		if !ok {
			return fmt.Errorf("otbatch: expected string, got %T", val)
		}
		b.Append(v)

	case *array.TimestampBuilder:
		v, err := toInt64(val)
		if err != nil {
			return err
		}
		b.Append(arrow.Timestamp(v))

	default:
		return fmt.Errorf("otbatch: unsupported column type %s", dt)
	}
	return nil
}

func toInt64(val interface{}) (int64, error) {
	switch v := val.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("otbatch: cannot convert %T to integer", val)
	}
}

func toFloat64(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("otbatch: cannot convert %T to float", val)
	}
}

// ExtractScalar reads the row-i value of col as a Go scalar, or nil if null.
func ExtractScalar(col arrow.Array, row int) interface{} {
	if col.IsNull(row) {
		return nil
	}
	switch a := col.(type) {
	case *array.Boolean:
		return a.Value(row)
	case *array.Int8:
		return a.Value(row)
	case *array.Int16:
		return a.Value(row)
	case *array.Int32:
		return a.Value(row)
	case *array.Int64:
		return a.Value(row)
	case *array.Uint8:
		return a.Value(row)
	case *array.Uint16:
		return a.Value(row)
	case *array.Uint32:
		return a.Value(row)
	case *array.Uint64:
		return a.Value(row)
	case *array.Float32:
		return a.Value(row)
	case *array.Float64:
		return a.Value(row)
	case *array.String:
		return a.Value(row)
	case *array.Timestamp:
		return a.Value(row)
	default:
		return nil
	}
}
