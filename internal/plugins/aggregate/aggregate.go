// Package aggregate provides the builtin group aggregators: a counting
// aggregator and a mergeable sum.
package aggregate

import (
	"fmt"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

// GroupCount counts rows per value of the configured field.
type GroupCount struct {
	field string
}

// NewGroupCount builds a GroupCount from the "field" property.
func NewGroupCount(props map[string]string) (any, error) {
	field := props["field"]
	if field == "" {
		return nil, fmt.Errorf("groupcount requires a field property")
	}
	return &GroupCount{field: field}, nil
}

// GroupKeys keys a row by its field value.
func (a *GroupCount) GroupKeys(rec any) ([]any, error) {
	row, ok := rec.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record %T is not a row", rec)
	}
	return []any{fmt.Sprintf("%v", row[a.field])}, nil
}

// Aggregate emits one count row per group.
func (a *GroupCount) Aggregate(key any, records []any, emitter plugin.Emitter) error {
	emitter.Emit(map[string]any{a.field: key, "count": len(records)})
	return nil
}

// GroupSum sums a numeric field per group key, reducing pairwise so
// partitions can merge.
type GroupSum struct {
	keyField string
	sumField string
}

// NewGroupSum builds a GroupSum from the "key" and "sum" properties.
func NewGroupSum(props map[string]string) (any, error) {
	keyField := props["key"]
	sumField := props["sum"]
	if keyField == "" || sumField == "" {
		return nil, fmt.Errorf("groupsum requires key and sum properties")
	}
	return &GroupSum{keyField: keyField, sumField: sumField}, nil
}

// GroupKeys keys a row by its key field value.
func (a *GroupSum) GroupKeys(rec any) ([]any, error) {
	row, ok := rec.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record %T is not a row", rec)
	}
	return []any{fmt.Sprintf("%v", row[a.keyField])}, nil
}

// InitializeValue seeds the running sum from one row.
func (a *GroupSum) InitializeValue(rec any) (any, error) {
	return a.value(rec)
}

// MergeValue folds one more row into the running sum.
func (a *GroupSum) MergeValue(agg any, rec any) (any, error) {
	value, err := a.value(rec)
	if err != nil {
		return nil, err
	}
	return agg.(float64) + value, nil
}

// MergePartitions combines two partial sums.
func (a *GroupSum) MergePartitions(left any, right any) (any, error) {
	return left.(float64) + right.(float64), nil
}

// Finalize emits the group's total.
func (a *GroupSum) Finalize(key any, agg any, emitter plugin.Emitter) error {
	emitter.Emit(map[string]any{a.keyField: key, "sum": agg.(float64)})
	return nil
}

func (a *GroupSum) value(rec any) (float64, error) {
	row, ok := rec.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("record %T is not a row", rec)
	}
	switch n := row[a.sumField].(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("field %s of %v is not numeric", a.sumField, row)
	}
}

var _ plugin.Aggregator = (*GroupCount)(nil)
var _ plugin.ReducibleAggregator = (*GroupSum)(nil)

// Register adds the plugins to a registry.
func Register(reg *plugin.Registry) error {
	if err := reg.Register(plan.KindAggregator, "groupcount", NewGroupCount); err != nil {
		return err
	}
	return reg.Register(plan.KindAggregator, "groupsum", NewGroupSum)
}
