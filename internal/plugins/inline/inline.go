// Package inline provides a source whose records are embedded in the stage
// configuration, mostly useful for smoke-testing pipelines.
package inline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

// Source emits the rows configured in the "records" property.
type Source struct {
	records []map[string]any
}

// New builds a Source from its properties. "records" holds a JSON array of
// row objects.
func New(props map[string]string) (any, error) {
	raw, ok := props["records"]
	if !ok {
		return nil, fmt.Errorf("inline source requires a records property")
	}
	var records []map[string]any
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	return &Source{records: records}, nil
}

// Read emits every configured row.
func (s *Source) Read(_ context.Context, emitter plugin.Emitter) error {
	for _, rec := range s.records {
		emitter.Emit(rec)
	}
	return nil
}

// Register adds the plugin to a registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plan.KindSource, "inline", New)
}
