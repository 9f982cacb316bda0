package pipeline

import (
	"fmt"

	"github.com/otterstream/otters/pkg/otbatch"
	"github.com/otterstream/otters/pkg/stage"
)

// Config holds pipeline-wide runtime knobs.
type Config struct {
	// BatchSize is the pipeline's batch_size setting. Must be >= 1; Build
	// rejects smaller values. The Driver does not pass it to any stage: a
	// Batcher flushes at the batch size given to NewBatcher.
	BatchSize int
	// ChannelCapacity bounds every inter-stage channel. Defaults to 4 if
	// left at zero.
	ChannelCapacity int
}

const defaultChannelCapacity = 4

// stageSpec pairs a builtin compute stage with the symbolic column metadata
// the Builder needs to validate it without runtime introspection: the
// column names it reads and, if it adds one, the name it appends to the
// schema. A custom row-level stage declares neither (its schema is opaque
// until rows start flowing) and is validated only structurally.
type stageSpec struct {
	id     string
	stage  stage.Stage
	inputs []string
	output string
}

// Builder collects, in declaration order, exactly one source, zero or more
// stages, and exactly one sink. It performs all structural
// validation at construction time so a misconfigured pipeline never starts.
type Builder struct {
	config   Config
	source   stage.Source
	sourceID string
	stages   []stageSpec
	sink     stage.Sink
	sinkID   string
	columns  map[string]bool
	err      error
}

// NewBuilder creates a Builder seeded with schema as the source's declared
// output columns.
func NewBuilder(config Config, schema *otbatch.Schema) *Builder {
	if config.ChannelCapacity <= 0 {
		config.ChannelCapacity = defaultChannelCapacity
	}
	columns := make(map[string]bool)
	for _, name := range schema.Names() {
		columns[name] = true
	}
	return &Builder{config: config, columns: columns}
}

// WithSource registers the pipeline's single source.
func (b *Builder) WithSource(id string, src stage.Source) *Builder {
	if b.source != nil {
		b.fail("source already set (%s), cannot add %s", b.sourceID, id)
		return b
	}
	b.source, b.sourceID = src, id
	return b
}

// AddStage registers a compute stage. inputs names the columns it reads
// (validated against the current symbol table); output, if non-empty, is
// the column it adds (validated for collisions and then added to the
// symbol table for subsequent stages). A custom row-level stage — whose
// output schema isn't known until rows flow — passes inputs=nil, output="".
func (b *Builder) AddStage(id string, s stage.Stage, inputs []string, output string) *Builder {
	for _, col := range inputs {
		if !b.columns[col] {
			b.fail("stage %s: input column %q not present in schema", id, col)
			return b
		}
	}
	if output != "" {
		if b.columns[output] {
			b.fail("stage %s: output column %q collides with an existing column", id, output)
			return b
		}
		b.columns[output] = true
	}
	b.stages = append(b.stages, stageSpec{id: id, stage: s, inputs: inputs, output: output})
	return b
}

// WithSink registers the pipeline's single sink.
func (b *Builder) WithSink(id string, sink stage.Sink) *Builder {
	if b.sink != nil {
		b.fail("sink already set (%s), cannot add %s", b.sinkID, id)
		return b
	}
	b.sink, b.sinkID = sink, id
	return b
}

func (b *Builder) fail(format string, args ...interface{}) {
	if b.err == nil {
		b.err = &ConfigError{Reason: fmt.Sprintf(format, args...)}
	}
}

// Build validates and returns a Driver ready to run the pipeline.
func (b *Builder) Build() (*Driver, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.config.BatchSize < 1 {
		return nil, &ConfigError{Reason: fmt.Sprintf("batch_size must be >= 1, got %d", b.config.BatchSize)}
	}
	if b.source == nil {
		return nil, &ConfigError{Reason: "pipeline has no source"}
	}
	if b.sink == nil {
		return nil, &ConfigError{Reason: "pipeline has no sink"}
	}

	return &Driver{
		config:   b.config,
		source:   b.source,
		sourceID: b.sourceID,
		stages:   b.stages,
		sink:     b.sink,
		sinkID:   b.sinkID,
	}, nil
}
