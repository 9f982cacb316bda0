package otbatch

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Batch is the columnar carrier: a mapping from column name to Column,
// where every column shares the batch's row count.
type Batch = arrow.Record

// Column returns the named column from a Batch, or an error if not found.
func Column(batch Batch, name string) (arrow.Array, error) {
	idx := ColumnIndex(batch, name)
	if idx < 0 {
		return nil, fmt.Errorf("otbatch: column %q not found in schema", name)
	}
	return batch.Column(idx), nil
}

// Float64Column returns the named column as a *array.Float64, or a
// ComputeError-flavored error if the column is absent or not float64.
func Float64Column(batch Batch, name string) (*array.Float64, error) {
	col, err := Column(batch, name)
	if err != nil {
		return nil, err
	}
	f, ok := col.(*array.Float64)
	if !ok {
		return nil, fmt.Errorf("otbatch: column %q is %s, not float64", name, col.DataType())
	}
	return f, nil
}

// ColumnIndex returns the index of a named column, or -1 if not found.
func ColumnIndex(batch Batch, name string) int {
	idx := batch.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return -1
	}
	return idx[0]
}

// ColumnNames returns the column names of batch in schema order.
func ColumnNames(batch Batch) []string {
	schema := batch.Schema()
	names := make([]string, schema.NumFields())
	for i := 0; i < schema.NumFields(); i++ {
		names[i] = schema.Field(i).Name
	}
	return names
}

// AppendFloat64Column returns a new Batch with a float64 column named name
// appended, built from values/valid (valid[i]==false means a null cell).
// The input batch is not released; callers still own it.
func AppendFloat64Column(alloc memory.Allocator, batch Batch, name string, values []float64, valid []bool) (Batch, error) {
	bldr := array.NewFloat64Builder(alloc)
	defer bldr.Release()
	for i, v := range values {
		if !valid[i] {
			bldr.AppendNull()
			continue
		}
		bldr.Append(v)
	}
	arr := bldr.NewArray()
	defer arr.Release()
	return appendColumn(batch, name, arr)
}

// AppendBoolColumn returns a new Batch with a boolean column named name
// appended, honoring nulls the same way AppendFloat64Column does.
func AppendBoolColumn(alloc memory.Allocator, batch Batch, name string, values []bool, valid []bool) (Batch, error) {
	bldr := array.NewBooleanBuilder(alloc)
	defer bldr.Release()
	for i, v := range values {
		if !valid[i] {
			bldr.AppendNull()
			continue
		}
		bldr.Append(v)
	}
	arr := bldr.NewArray()
	defer arr.Release()
	return appendColumn(batch, name, arr)
}

func appendColumn(batch Batch, name string, col arrow.Array) (Batch, error) {
	schema := batch.Schema()
	if len(schema.FieldIndices(name)) > 0 {
		return nil, fmt.Errorf("otbatch: output column %q collides with an existing column", name)
	}

	fields := append(append([]arrow.Field{}, schema.Fields()...), arrow.Field{Name: name, Type: col.DataType(), Nullable: true})
	arrays := make([]arrow.Array, 0, len(fields))
	for i := 0; i < batch.NumCols(); i++ {
		arrays = append(arrays, batch.Column(i))
	}
	arrays = append(arrays, col)

	newSchema := arrow.NewSchema(fields, nil)
	return array.NewRecord(newSchema, arrays, batch.NumRows()), nil
}

// Filter applies a boolean mask to a Batch, returning only rows where mask
// is true. The caller owns the returned Batch.
func Filter(ctx context.Context, batch Batch, mask arrow.Array) (Batch, error) {
	result, err := compute.FilterRecordBatch(ctx, batch, mask, compute.DefaultFilterOptions())
	if err != nil {
		return nil, fmt.Errorf("otbatch: filter: %w", err)
	}
	return result, nil
}

// Project creates a new Batch with only the named columns, in the order
// given. The caller owns the returned Batch.
func Project(batch Batch, cols ...string) (Batch, error) {
	fields := make([]arrow.Field, 0, len(cols))
	arrays := make([]arrow.Array, 0, len(cols))

	for _, name := range cols {
		idx := ColumnIndex(batch, name)
		if idx < 0 {
			return nil, fmt.Errorf("otbatch: column %q not found for projection", name)
		}
		fields = append(fields, batch.Schema().Field(idx))
		arrays = append(arrays, batch.Column(idx))
	}

	schema := arrow.NewSchema(fields, nil)
	return array.NewRecord(schema, arrays, batch.NumRows()), nil
}
