// Package otbatch implements the Otters columnar data model directly on top
// of Apache Arrow: a Batch is an arrow.Record, a Column is an arrow.Array
// with its validity bitmap, and a Schema is an ordered, name-unique sequence
// of (name, type) pairs backed by an arrow.Schema.
package otbatch

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// Schema is an ordered sequence of (name, logical type) pairs. Names are
// unique. Stages may append columns but never remove or retype declared
// ones — Append, which returns an extended copy, is the only way to add a
// column and it rejects name collisions.
type Schema struct {
	arrow *arrow.Schema
}

// NewSchema builds a Schema from fields, rejecting duplicate names.
func NewSchema(fields []arrow.Field) (*Schema, error) {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name] {
			return nil, fmt.Errorf("otbatch: duplicate column name %q", f.Name)
		}
		seen[f.Name] = true
	}
	return &Schema{arrow: arrow.NewSchema(fields, nil)}, nil
}

// FromArrow wraps an existing arrow.Schema.
func FromArrow(s *arrow.Schema) *Schema {
	return &Schema{arrow: s}
}

// Arrow returns the underlying arrow.Schema.
func (s *Schema) Arrow() *arrow.Schema { return s.arrow }

// HasColumn reports whether name is declared in the schema.
func (s *Schema) HasColumn(name string) bool {
	return len(s.arrow.FieldIndices(name)) > 0
}

// ColumnType returns the declared type of name, or false if not present.
func (s *Schema) ColumnType(name string) (arrow.DataType, bool) {
	idx := s.arrow.FieldIndices(name)
	if len(idx) == 0 {
		return nil, false
	}
	return s.arrow.Field(idx[0]).Type, true
}

// Names returns the column names in declaration order.
func (s *Schema) Names() []string {
	fields := s.arrow.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// Append returns a new Schema with field appended, or an error if its name
// collides with an existing column. The receiver is not mutated.
func (s *Schema) Append(field arrow.Field) (*Schema, error) {
	if s.HasColumn(field.Name) {
		return nil, fmt.Errorf("otbatch: column %q already declared", field.Name)
	}
	fields := append(append([]arrow.Field{}, s.arrow.Fields()...), field)
	return NewSchema(fields)
}
