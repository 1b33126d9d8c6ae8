// Package dedupe provides a compute plugin that drops duplicate rows by a
// key field, keeping the first occurrence.
package dedupe

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

// Compute deduplicates the dataset on the configured field.
type Compute struct {
	field string
}

// New builds a Compute from the "field" property.
func New(props map[string]string) (any, error) {
	field := props["field"]
	if field == "" {
		return nil, fmt.Errorf("dedupe requires a field property")
	}
	return &Compute{field: field}, nil
}

// Compute keeps the first row per key.
func (c *Compute) Compute(_ context.Context, records []any) ([]any, error) {
	seen := make(map[string]bool, len(records))
	out := make([]any, 0, len(records))
	for _, rec := range records {
		row, ok := rec.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %T is not a row", rec)
		}
		key := fmt.Sprintf("%v", row[c.field])
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rec)
	}
	return out, nil
}

var _ plugin.Compute = (*Compute)(nil)

// Register adds the plugin to a registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plan.KindCompute, "dedupe", New)
}
