//go:build !fileformats

// File-format source/sink connectors (Parquet, CSV, PostgreSQL) are outside
// the scope of this module. Without the "fileformats" build tag, constructing
// one returns ErrFileFormatNotAvailable rather than silently omitting the
// symbol. The module has no implementation behind that tag: building with
// it removes these stubs and nothing replaces them.
package connectors

import (
	"errors"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/stage"
)

// ErrFileFormatNotAvailable is returned by the stub file-format connector
// constructors and methods.
var ErrFileFormatNotAvailable = errors.New("file-format connectors are not available in this build")

// ParquetRowSource is a stub; file-format sources are out of scope.
type ParquetRowSource struct{}

// NewParquetRowSource always returns ErrFileFormatNotAvailable.
func NewParquetRowSource(_ string) (*ParquetRowSource, error) {
	return nil, ErrFileFormatNotAvailable
}

func (p *ParquetRowSource) Open(_ *stage.Context) error { return ErrFileFormatNotAvailable }
func (p *ParquetRowSource) Next() (otbatch.Row, bool, error) {
	return nil, false, ErrFileFormatNotAvailable
}
func (p *ParquetRowSource) Close() error { return nil }

// CSVRowSink is a stub; file-format sinks are out of scope.
type CSVRowSink struct{}

// NewCSVRowSink always returns ErrFileFormatNotAvailable.
func NewCSVRowSink(_ string) (*CSVRowSink, error) {
	return nil, ErrFileFormatNotAvailable
}

func (c *CSVRowSink) Open(_ *stage.Context) error { return ErrFileFormatNotAvailable }
func (c *CSVRowSink) WriteRow(_ otbatch.Row) error { return ErrFileFormatNotAvailable }
func (c *CSVRowSink) Close() error                 { return nil }
