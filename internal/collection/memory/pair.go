package memory

import (
	"context"

	"github.com/alexisbeaulieu97/conveyor/internal/collection"
)

// PairDataset is a lazy in-memory keyed collection.
type PairDataset struct {
	backend *Backend
	eval    func(ctx context.Context) ([]collection.Pair, error)
}

func (b *Backend) derivePairs(eval func(ctx context.Context) ([]collection.Pair, error)) *PairDataset {
	return &PairDataset{backend: b, eval: eval}
}

// CollectPairs materializes the keyed dataset.
func (p *PairDataset) CollectPairs(ctx context.Context) ([]collection.Pair, error) {
	return p.eval(ctx)
}

// MapValues transforms values, keeping keys.
func (p *PairDataset) MapValues(fn collection.MapValuesFunc) collection.PairCollection {
	return p.backend.derivePairs(func(ctx context.Context) ([]collection.Pair, error) {
		pairs, err := p.eval(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]collection.Pair, 0, len(pairs))
		for _, pair := range pairs {
			value, err := fn(pair.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, collection.Pair{Key: pair.Key, Value: value})
		}
		return out, nil
	})
}

// Join inner-joins on key equality. The partition hint is ignored in-process.
func (p *PairDataset) Join(other collection.PairCollection, _ int) collection.PairCollection {
	return p.join(other, false, false)
}

// LeftOuterJoin keeps every left key.
func (p *PairDataset) LeftOuterJoin(other collection.PairCollection, _ int) collection.PairCollection {
	return p.join(other, true, false)
}

// FullOuterJoin keeps every key from either side.
func (p *PairDataset) FullOuterJoin(other collection.PairCollection, _ int) collection.PairCollection {
	return p.join(other, true, true)
}

func (p *PairDataset) join(other collection.PairCollection, keepLeft, keepRight bool) collection.PairCollection {
	o := other.(*PairDataset)
	return p.backend.derivePairs(func(ctx context.Context) ([]collection.Pair, error) {
		left, err := p.eval(ctx)
		if err != nil {
			return nil, err
		}
		right, err := o.eval(ctx)
		if err != nil {
			return nil, err
		}

		rightGroups := make(map[any][]any, len(right))
		var rightOrder []any
		for _, pair := range right {
			if _, seen := rightGroups[pair.Key]; !seen {
				rightOrder = append(rightOrder, pair.Key)
			}
			rightGroups[pair.Key] = append(rightGroups[pair.Key], pair.Value)
		}

		var out []collection.Pair
		matchedRight := make(map[any]bool)
		for _, pair := range left {
			values, ok := rightGroups[pair.Key]
			if !ok {
				if keepLeft {
					out = append(out, collection.Pair{
						Key:   pair.Key,
						Value: collection.Joined{Left: pair.Value, HasLeft: true},
					})
				}
				continue
			}
			matchedRight[pair.Key] = true
			for _, value := range values {
				out = append(out, collection.Pair{
					Key:   pair.Key,
					Value: collection.Joined{Left: pair.Value, Right: value, HasLeft: true, HasRight: true},
				})
			}
		}

		if keepRight {
			for _, key := range rightOrder {
				if matchedRight[key] {
					continue
				}
				for _, value := range rightGroups[key] {
					out = append(out, collection.Pair{
						Key:   key,
						Value: collection.Joined{Right: value, HasRight: true},
					})
				}
			}
		}
		return out, nil
	})
}
