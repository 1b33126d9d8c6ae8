package plugin

import (
	"context"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/record"
)

// Emitter receives the records a plugin produces. A plugin may emit any mix
// of output records, error records, and alerts in a single invocation.
type Emitter interface {
	Emit(rec any)
	EmitError(err *record.ErrorRecord)
	EmitAlert(alert *record.Alert)
}

// MultiEmitter is the splitter flavor of Emitter: output records go to a
// named port.
type MultiEmitter interface {
	EmitPort(port string, rec any)
	EmitError(err *record.ErrorRecord)
	EmitAlert(alert *record.Alert)
}

// RuntimeContext carries the per-stage information handed to plugins that
// implement Initializable. The engine fills in StageName, InputSchemas and
// OutputSchema; Arguments is left nil.
type RuntimeContext struct {
	StageName    string
	InputSchemas map[string]*plan.Schema
	OutputSchema *plan.Schema
	Arguments    map[string]string
}

// Initializable is implemented by plugins that need per-run setup before the
// engine uses them. The engine calls Initialize once per stage, and only on
// explicit Joiner plugins, before planning the join; plugins of other kinds
// are not initialized.
type Initializable interface {
	Initialize(ctx RuntimeContext) error
}

// Source produces the records entering a pipeline.
type Source interface {
	Read(ctx context.Context, emitter Emitter) error
}

// Transform maps each input record to zero or more outputs.
type Transform interface {
	Transform(ctx context.Context, rec any, emitter Emitter) error
}

// SplitterTransform routes each input record to named output ports.
type SplitterTransform interface {
	Transform(ctx context.Context, rec any, emitter MultiEmitter) error
}

// ErrorTransform consumes the error records of upstream stages.
type ErrorTransform interface {
	Transform(ctx context.Context, errRec *record.ErrorRecord, emitter Emitter) error
}

// Compute operates on a whole materialized dataset at once.
type Compute interface {
	Compute(ctx context.Context, records []any) ([]any, error)
}

// Sink stores one partition of records into external storage.
type Sink interface {
	Write(ctx context.Context, records []any) error
}

// ComputeSink runs an arbitrary terminal job over the whole dataset.
type ComputeSink interface {
	Run(ctx context.Context, records []any) error
}

// Aggregator groups records by key and folds each group.
type Aggregator interface {
	// GroupKeys returns the group keys a record belongs to; a record may be
	// counted in several groups.
	GroupKeys(rec any) ([]any, error)
	// Aggregate folds one group into output records.
	Aggregate(key any, records []any, emitter Emitter) error
}

// ReducibleAggregator is the mergeable flavor of Aggregator: groups reduce
// pairwise inside partitions and across them, so a backend need not hold a
// whole group in memory.
type ReducibleAggregator interface {
	GroupKeys(rec any) ([]any, error)
	InitializeValue(rec any) (any, error)
	MergeValue(agg any, rec any) (any, error)
	MergePartitions(a any, b any) (any, error)
	Finalize(key any, agg any, emitter Emitter) error
}

// JoinElement pairs a joined record with the stage it came from.
type JoinElement struct {
	StageName string
	Record    any
}

// Joiner is the explicit join API: the plugin names its required inputs,
// keys each record, and merges the per-key element lists.
type Joiner interface {
	// JoinOn extracts the join key of a record from the named input stage.
	JoinOn(stageName string, rec any) (any, error)
	// RequiredInputs lists the stages with inner-join semantics, in order.
	RequiredInputs() []string
	// Merge combines the elements sharing one key into output records.
	Merge(key any, elements []JoinElement, emitter Emitter) error
}

// AutoJoiner is the declarative join API: the plugin describes the join and
// the engine plans it.
type AutoJoiner interface {
	Define(ctx AutoJoinerContext) (*JoinDefinition, error)
}

// Windower slices a batch into sliding windows, both sizes in records.
type Windower interface {
	Width() int
	Slide() int
}

// AlertPublisher delivers the alerts of upstream stages.
type AlertPublisher interface {
	Publish(ctx context.Context, alerts []*record.Alert) error
}
