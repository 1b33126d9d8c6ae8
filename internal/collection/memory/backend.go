package memory

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/conveyor/internal/collection"
	"github.com/alexisbeaulieu97/conveyor/internal/metrics"
	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/record"
)

// GetSource builds the combined tagged-record stream of a source stage.
func (b *Backend) GetSource(spec *plan.StageSpec, src plugin.Source, collector metrics.Collector) (collection.Collection, error) {
	return b.derive(func(ctx context.Context) ([]any, error) {
		emitter := plugin.NewRecordEmitter(spec.Name)
		if err := src.Read(ctx, emitter); err != nil {
			return nil, fmt.Errorf("stage %s: %w", spec.Name, err)
		}
		return countAndBox(emitter.Records(), collector), nil
	}), nil
}

// AddJoinKey keys an input collection with the joiner's join key.
func (b *Backend) AddJoinKey(spec *plan.StageSpec, joiner plugin.Joiner, inputStage string, input collection.Collection, collector metrics.Collector) (collection.PairCollection, error) {
	in := input.(*Dataset)
	return b.derivePairs(func(ctx context.Context) ([]collection.Pair, error) {
		records, err := in.Collect(ctx)
		if err != nil {
			return nil, err
		}
		pairs := make([]collection.Pair, 0, len(records))
		for _, rec := range records {
			collector.IncrementInputCount(1)
			key, err := joiner.JoinOn(inputStage, rec)
			if err != nil {
				return nil, fmt.Errorf("stage %s input %s: %w", spec.Name, inputStage, err)
			}
			pairs = append(pairs, collection.Pair{Key: key, Value: rec})
		}
		return pairs, nil
	}), nil
}

// MergeJoinResults merges the fully joined per-key element lists into the
// joiner's output records. Join output is normal records only.
func (b *Backend) MergeJoinResults(spec *plan.StageSpec, joiner plugin.Joiner, joined collection.PairCollection, collector metrics.Collector) (collection.Collection, error) {
	in := joined.(*PairDataset)
	return b.derive(func(ctx context.Context) ([]any, error) {
		pairs, err := in.CollectPairs(ctx)
		if err != nil {
			return nil, err
		}
		emitter := plugin.NewRecordEmitter(spec.Name)
		for _, pair := range pairs {
			elements, ok := pair.Value.([]plugin.JoinElement)
			if !ok {
				return nil, fmt.Errorf("stage %s: joined value %T is not a join element list", spec.Name, pair.Value)
			}
			if err := joiner.Merge(pair.Key, elements, emitter); err != nil {
				return nil, fmt.Errorf("stage %s: %w", spec.Name, err)
			}
		}
		var out []any
		for _, info := range emitter.Records() {
			if info.Kind() != record.KindOutput {
				continue
			}
			collector.IncrementOutputCount(1)
			out = append(out, info.Value())
		}
		return out, nil
	}), nil
}
