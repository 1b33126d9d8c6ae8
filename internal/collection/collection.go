// Package collection defines the distributed-collection capability the
// engine consumes. Collections are lazy handles: building an operator chain
// never moves data. Data moves when a store task runs, when alerts publish,
// or when a backend materializes a join.
package collection

import (
	"context"

	"github.com/alexisbeaulieu97/conveyor/internal/metrics"
	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

// FlatMapFunc maps one element to zero or more elements. The context is the
// materialization context of the terminal action that forced evaluation.
type FlatMapFunc func(ctx context.Context, element any) ([]any, error)

// MapValuesFunc maps a pair value, keeping its key.
type MapValuesFunc func(value any) (any, error)

// SinkFunc stores one partition of records into a target.
type SinkFunc func(ctx context.Context, records []any) error

// SinkTask is a deferred sink action. Running it materializes the upstream
// collection and writes it out.
type SinkTask func(ctx context.Context) error

// Collection is a lazy, immutable distributed dataset. Handles are cheap to
// hold and must be safe to read concurrently from sink workers.
type Collection interface {
	// Transform applies a record transform, producing the stage's combined
	// tagged-record stream.
	Transform(spec *plan.StageSpec, t plugin.Transform, collector metrics.Collector) Collection

	// MultiOutputTransform applies a splitter transform; outputs carry port
	// tags.
	MultiOutputTransform(spec *plan.StageSpec, t plugin.SplitterTransform, collector metrics.Collector) Collection

	// FlatMap applies fn to every element.
	FlatMap(spec *plan.StageSpec, fn FlatMapFunc) Collection

	// Compute hands the whole dataset to a compute plugin.
	Compute(spec *plan.StageSpec, c plugin.Compute, collector metrics.Collector) Collection

	// Window slices the dataset into sliding windows.
	Window(spec *plan.StageSpec, w plugin.Windower) Collection

	// Aggregate groups and folds records. partitions <= 0 lets the backend
	// choose.
	Aggregate(spec *plan.StageSpec, agg plugin.Aggregator, partitions int, collector metrics.Collector) Collection

	// ReduceAggregate groups and reduces records pairwise.
	ReduceAggregate(spec *plan.StageSpec, agg plugin.ReducibleAggregator, partitions int, collector metrics.Collector) Collection

	// PublishAlerts materializes the collection of alerts and delivers them.
	PublishAlerts(ctx context.Context, spec *plan.StageSpec, pub plugin.AlertPublisher, collector metrics.Collector) error

	// Union concatenates two collections.
	Union(other Collection) Collection

	// Cache memoizes the collection so downstream consumers do not recompute
	// it. Caching twice is equivalent to caching once.
	Cache() Collection

	// Join executes a planned n-way join.
	Join(req *JoinRequest) Collection

	// CreateStoreTask defers materialization of this collection into the
	// given sink.
	CreateStoreTask(spec *plan.StageSpec, fn SinkFunc) SinkTask
}

// Pair is one element of a PairCollection.
type Pair struct {
	Key   any
	Value any
}

// Joined is the value produced by joining two pair collections on a key.
// Absent sides (outer joins) have their Has flag false.
type Joined struct {
	Left     any
	Right    any
	HasLeft  bool
	HasRight bool
}

// PairCollection is a lazy keyed dataset used by the explicit join planner.
type PairCollection interface {
	// MapValues transforms values, keeping keys.
	MapValues(fn MapValuesFunc) PairCollection

	// Join inner-joins with another pair collection. partitions <= 0 lets
	// the backend choose. Joined values are Joined structs.
	Join(other PairCollection, partitions int) PairCollection

	// LeftOuterJoin keeps every left key.
	LeftOuterJoin(other PairCollection, partitions int) PairCollection

	// FullOuterJoin keeps every key from either side.
	FullOuterJoin(other PairCollection, partitions int) PairCollection
}

// Backend is the compute backend's engine-facing surface: it creates source
// collections and implements the keyed halves of the explicit join.
type Backend interface {
	// GetSource builds the combined tagged-record stream of a source stage.
	GetSource(spec *plan.StageSpec, src plugin.Source, collector metrics.Collector) (Collection, error)

	// AddJoinKey keys an input collection with the joiner's join key.
	AddJoinKey(spec *plan.StageSpec, joiner plugin.Joiner, inputStage string, input Collection, collector metrics.Collector) (PairCollection, error)

	// MergeJoinResults merges the fully joined per-key element lists into
	// the joiner's output records.
	MergeJoinResults(spec *plan.StageSpec, joiner plugin.Joiner, joined PairCollection, collector metrics.Collector) (Collection, error)
}
