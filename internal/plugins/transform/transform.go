// Package transform provides the builtin record transforms: projection,
// required-field filtering with error routing, and threshold alerts.
package transform

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/record"
)

// Projection keeps the configured fields, optionally renaming them.
type Projection struct {
	fields  []string
	renames map[string]string
}

// NewProjection builds a Projection. "fields" is a comma-separated list;
// each entry is "name" or "name:alias".
func NewProjection(props map[string]string) (any, error) {
	raw := props["fields"]
	if raw == "" {
		return nil, fmt.Errorf("projection requires a fields property")
	}
	p := &Projection{renames: make(map[string]string)}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		name, alias, found := strings.Cut(entry, ":")
		p.fields = append(p.fields, name)
		if found {
			p.renames[name] = alias
		}
	}
	return p, nil
}

// Transform projects one row.
func (p *Projection) Transform(_ context.Context, rec any, emitter plugin.Emitter) error {
	row, ok := rec.(map[string]any)
	if !ok {
		emitter.EmitError(&record.ErrorRecord{Record: rec, Message: fmt.Sprintf("record %T is not a row", rec)})
		return nil
	}
	out := make(map[string]any, len(p.fields))
	for _, field := range p.fields {
		name := field
		if alias, ok := p.renames[field]; ok {
			name = alias
		}
		out[name] = row[field]
	}
	emitter.Emit(out)
	return nil
}

// RequireFields drops rows missing any of the configured fields, routing
// them as error records.
type RequireFields struct {
	fields []string
}

// NewRequireFields builds a RequireFields from the comma-separated "fields"
// property.
func NewRequireFields(props map[string]string) (any, error) {
	raw := props["fields"]
	if raw == "" {
		return nil, fmt.Errorf("require requires a fields property")
	}
	fields := strings.Split(raw, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return &RequireFields{fields: fields}, nil
}

// Transform passes complete rows and rejects the rest.
func (t *RequireFields) Transform(_ context.Context, rec any, emitter plugin.Emitter) error {
	row, ok := rec.(map[string]any)
	if !ok {
		emitter.EmitError(&record.ErrorRecord{Record: rec, Message: fmt.Sprintf("record %T is not a row", rec)})
		return nil
	}
	for _, field := range t.fields {
		if row[field] == nil {
			emitter.EmitError(&record.ErrorRecord{
				Record:  rec,
				Message: fmt.Sprintf("missing required field %s", field),
			})
			return nil
		}
	}
	emitter.Emit(rec)
	return nil
}

// Threshold passes every row through and raises an alert when a numeric
// field crosses the configured bound.
type Threshold struct {
	field string
	above float64
}

// NewThreshold builds a Threshold from the "field" and "above" properties.
func NewThreshold(props map[string]string) (any, error) {
	field := props["field"]
	if field == "" {
		return nil, fmt.Errorf("threshold requires a field property")
	}
	above, err := strconv.ParseFloat(props["above"], 64)
	if err != nil {
		return nil, fmt.Errorf("threshold requires a numeric above property: %w", err)
	}
	return &Threshold{field: field, above: above}, nil
}

// Transform emits the row and possibly an alert.
func (t *Threshold) Transform(_ context.Context, rec any, emitter plugin.Emitter) error {
	emitter.Emit(rec)
	row, ok := rec.(map[string]any)
	if !ok {
		return nil
	}
	value, ok := toFloat(row[t.field])
	if !ok || value <= t.above {
		return nil
	}
	emitter.EmitAlert(&record.Alert{Payload: map[string]string{
		"field":     t.field,
		"value":     strconv.FormatFloat(value, 'f', -1, 64),
		"threshold": strconv.FormatFloat(t.above, 'f', -1, 64),
	}})
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// Register adds the plugins to a registry.
func Register(reg *plugin.Registry) error {
	if err := reg.Register(plan.KindTransform, "projection", NewProjection); err != nil {
		return err
	}
	if err := reg.Register(plan.KindTransform, "require", NewRequireFields); err != nil {
		return err
	}
	return reg.Register(plan.KindTransform, "threshold", NewThreshold)
}
