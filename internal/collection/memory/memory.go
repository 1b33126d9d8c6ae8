// Package memory is the in-process implementation of the collection
// contracts. Datasets are lazy operator chains over slices; evaluation runs
// when a store task, publish, or join forces it. It exists for local runs
// and as the reference backend for engine tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alexisbeaulieu97/conveyor/internal/collection"
	"github.com/alexisbeaulieu97/conveyor/internal/metrics"
	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/record"
)

// Backend implements collection.Backend over in-process slices.
type Backend struct {
	// Partitions is the chunk count used by store tasks. Values below one
	// mean a single partition.
	Partitions int
}

// New creates a Backend with a single store partition.
func New() *Backend {
	return &Backend{Partitions: 1}
}

type cacheCell struct {
	once    sync.Once
	records []any
	err     error
}

// Dataset is a lazy in-memory collection.
type Dataset struct {
	backend *Backend
	eval    func(ctx context.Context) ([]any, error)
	cached  *cacheCell
}

// FromRecords wraps a fixed slice as a Dataset.
func (b *Backend) FromRecords(records []any) *Dataset {
	return &Dataset{backend: b, eval: func(context.Context) ([]any, error) {
		return records, nil
	}}
}

func (b *Backend) derive(eval func(ctx context.Context) ([]any, error)) *Dataset {
	return &Dataset{backend: b, eval: eval}
}

// Collect materializes the dataset.
func (d *Dataset) Collect(ctx context.Context) ([]any, error) {
	if d.cached != nil {
		d.cached.once.Do(func() {
			d.cached.records, d.cached.err = d.eval(ctx)
		})
		return d.cached.records, d.cached.err
	}
	return d.eval(ctx)
}

// Cache memoizes the dataset. Caching an already-cached dataset returns the
// same handle.
func (d *Dataset) Cache() collection.Collection {
	if d.cached != nil {
		return d
	}
	return &Dataset{backend: d.backend, eval: d.eval, cached: &cacheCell{}}
}

// Union concatenates two datasets.
func (d *Dataset) Union(other collection.Collection) collection.Collection {
	o := other.(*Dataset)
	return d.backend.derive(func(ctx context.Context) ([]any, error) {
		left, err := d.Collect(ctx)
		if err != nil {
			return nil, err
		}
		right, err := o.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(left)+len(right))
		out = append(out, left...)
		return append(out, right...), nil
	})
}

// FlatMap applies fn to every element.
func (d *Dataset) FlatMap(_ *plan.StageSpec, fn collection.FlatMapFunc) collection.Collection {
	return d.backend.derive(func(ctx context.Context) ([]any, error) {
		records, err := d.Collect(ctx)
		if err != nil {
			return nil, err
		}
		var out []any
		for _, rec := range records {
			mapped, err := fn(ctx, rec)
			if err != nil {
				return nil, err
			}
			out = append(out, mapped...)
		}
		return out, nil
	})
}

// Transform runs a record transform over the dataset, producing the stage's
// combined tagged-record stream.
func (d *Dataset) Transform(spec *plan.StageSpec, t plugin.Transform, collector metrics.Collector) collection.Collection {
	return d.backend.derive(func(ctx context.Context) ([]any, error) {
		records, err := d.Collect(ctx)
		if err != nil {
			return nil, err
		}
		emitter := plugin.NewRecordEmitter(spec.Name)
		for _, rec := range records {
			collector.IncrementInputCount(1)
			if err := t.Transform(ctx, rec, emitter); err != nil {
				return nil, fmt.Errorf("stage %s: %w", spec.Name, err)
			}
		}
		return countAndBox(emitter.Records(), collector), nil
	})
}

// MultiOutputTransform runs a splitter transform; outputs carry port tags.
func (d *Dataset) MultiOutputTransform(spec *plan.StageSpec, t plugin.SplitterTransform, collector metrics.Collector) collection.Collection {
	return d.backend.derive(func(ctx context.Context) ([]any, error) {
		records, err := d.Collect(ctx)
		if err != nil {
			return nil, err
		}
		emitter := plugin.NewRecordEmitter(spec.Name)
		for _, rec := range records {
			collector.IncrementInputCount(1)
			if err := t.Transform(ctx, rec, emitter); err != nil {
				return nil, fmt.Errorf("stage %s: %w", spec.Name, err)
			}
		}
		return countAndBox(emitter.Records(), collector), nil
	})
}

// Compute hands the whole dataset to a compute plugin. Output is untagged.
func (d *Dataset) Compute(spec *plan.StageSpec, c plugin.Compute, collector metrics.Collector) collection.Collection {
	return d.backend.derive(func(ctx context.Context) ([]any, error) {
		records, err := d.Collect(ctx)
		if err != nil {
			return nil, err
		}
		collector.IncrementInputCount(int64(len(records)))
		out, err := c.Compute(ctx, records)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", spec.Name, err)
		}
		collector.IncrementOutputCount(int64(len(out)))
		return out, nil
	})
}

// Window slices the dataset into sliding windows; each window is emitted as
// one []any element.
func (d *Dataset) Window(spec *plan.StageSpec, w plugin.Windower) collection.Collection {
	return d.backend.derive(func(ctx context.Context) ([]any, error) {
		records, err := d.Collect(ctx)
		if err != nil {
			return nil, err
		}
		width := w.Width()
		slide := w.Slide()
		if width <= 0 {
			return []any{append([]any(nil), records...)}, nil
		}
		if slide <= 0 {
			slide = width
		}
		var out []any
		for i := 0; i < len(records); i += slide {
			end := i + width
			if end > len(records) {
				end = len(records)
			}
			out = append(out, append([]any(nil), records[i:end]...))
		}
		return out, nil
	})
}

// Aggregate groups records by key and folds each group. The partition hint is
// ignored: in-process grouping is single-pass.
func (d *Dataset) Aggregate(spec *plan.StageSpec, agg plugin.Aggregator, _ int, collector metrics.Collector) collection.Collection {
	return d.backend.derive(func(ctx context.Context) ([]any, error) {
		records, err := d.Collect(ctx)
		if err != nil {
			return nil, err
		}
		groups := make(map[any][]any)
		var keyOrder []any
		for _, rec := range records {
			collector.IncrementInputCount(1)
			keys, err := agg.GroupKeys(rec)
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", spec.Name, err)
			}
			for _, key := range keys {
				if _, seen := groups[key]; !seen {
					keyOrder = append(keyOrder, key)
				}
				groups[key] = append(groups[key], rec)
			}
		}
		emitter := plugin.NewRecordEmitter(spec.Name)
		for _, key := range keyOrder {
			if err := agg.Aggregate(key, groups[key], emitter); err != nil {
				return nil, fmt.Errorf("stage %s: %w", spec.Name, err)
			}
		}
		return countAndBox(emitter.Records(), collector), nil
	})
}

// ReduceAggregate groups records and reduces each group pairwise. With a
// partition hint above one, groups reduce per chunk and merge across chunks.
func (d *Dataset) ReduceAggregate(spec *plan.StageSpec, agg plugin.ReducibleAggregator, partitions int, collector metrics.Collector) collection.Collection {
	return d.backend.derive(func(ctx context.Context) ([]any, error) {
		records, err := d.Collect(ctx)
		if err != nil {
			return nil, err
		}
		groups := make(map[any][]any)
		var keyOrder []any
		for _, rec := range records {
			collector.IncrementInputCount(1)
			keys, err := agg.GroupKeys(rec)
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", spec.Name, err)
			}
			for _, key := range keys {
				if _, seen := groups[key]; !seen {
					keyOrder = append(keyOrder, key)
				}
				groups[key] = append(groups[key], rec)
			}
		}

		emitter := plugin.NewRecordEmitter(spec.Name)
		for _, key := range keyOrder {
			reduced, err := reduceGroup(agg, groups[key], partitions)
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", spec.Name, err)
			}
			if err := agg.Finalize(key, reduced, emitter); err != nil {
				return nil, fmt.Errorf("stage %s: %w", spec.Name, err)
			}
		}
		return countAndBox(emitter.Records(), collector), nil
	})
}

func reduceGroup(agg plugin.ReducibleAggregator, records []any, partitions int) (any, error) {
	if partitions < 1 {
		partitions = 1
	}
	chunks := chunk(records, partitions)

	var merged any
	haveMerged := false
	for _, part := range chunks {
		value, err := agg.InitializeValue(part[0])
		if err != nil {
			return nil, err
		}
		for _, rec := range part[1:] {
			value, err = agg.MergeValue(value, rec)
			if err != nil {
				return nil, err
			}
		}
		if !haveMerged {
			merged = value
			haveMerged = true
			continue
		}
		merged, err = agg.MergePartitions(merged, value)
		if err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// PublishAlerts materializes the alerts and delivers them.
func (d *Dataset) PublishAlerts(ctx context.Context, spec *plan.StageSpec, pub plugin.AlertPublisher, collector metrics.Collector) error {
	records, err := d.Collect(ctx)
	if err != nil {
		return err
	}
	alerts := make([]*record.Alert, 0, len(records))
	for _, rec := range records {
		alert, ok := rec.(*record.Alert)
		if !ok {
			return fmt.Errorf("stage %s: element %T is not an alert", spec.Name, rec)
		}
		alerts = append(alerts, alert)
	}
	collector.IncrementInputCount(int64(len(alerts)))
	return pub.Publish(ctx, alerts)
}

// CreateStoreTask defers materialization into the sink. Partitions write
// concurrently; the first failure cancels the rest.
func (d *Dataset) CreateStoreTask(spec *plan.StageSpec, fn collection.SinkFunc) collection.SinkTask {
	return func(ctx context.Context) error {
		records, err := d.Collect(ctx)
		if err != nil {
			return fmt.Errorf("stage %s: %w", spec.Name, err)
		}

		parts := d.backend.Partitions
		if parts < 1 {
			parts = 1
		}
		group, groupCtx := errgroup.WithContext(ctx)
		for _, part := range chunk(records, parts) {
			group.Go(func() error {
				return fn(groupCtx, part)
			})
		}
		return group.Wait()
	}
}

// chunk splits records into at most n non-empty slices.
func chunk(records []any, n int) [][]any {
	if len(records) == 0 {
		return nil
	}
	if n > len(records) {
		n = len(records)
	}
	size := (len(records) + n - 1) / n
	var parts [][]any
	for i := 0; i < len(records); i += size {
		end := i + size
		if end > len(records) {
			end = len(records)
		}
		parts = append(parts, records[i:end])
	}
	return parts
}

// countAndBox counts emitted records per tag and boxes them as elements.
func countAndBox(infos []record.Info, collector metrics.Collector) []any {
	out := make([]any, 0, len(infos))
	for _, info := range infos {
		switch info.Kind() {
		case record.KindError:
			collector.IncrementErrorCount(1)
		case record.KindOutput, record.KindPortOutput:
			collector.IncrementOutputCount(1)
		}
		out = append(out, info)
	}
	return out
}
