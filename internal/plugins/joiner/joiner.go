// Package joiner provides the builtin join plugins: an explicit field joiner
// and a declarative auto joiner.
package joiner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

// parseStageFields parses "stage=field,stage=field" properties.
func parseStageFields(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		stage, field, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || stage == "" || field == "" {
			return nil, fmt.Errorf("invalid key mapping %q", pair)
		}
		out[stage] = field
	}
	return out, nil
}

// FieldJoiner joins inputs on one key field per stage and merges matching
// rows into a single row.
type FieldJoiner struct {
	keys     map[string]string
	required []string
}

// NewFieldJoiner builds a FieldJoiner. "keys" maps input stages to key
// fields; "required" is a comma-separated list of inner-join inputs.
func NewFieldJoiner(props map[string]string) (any, error) {
	raw := props["keys"]
	if raw == "" {
		return nil, fmt.Errorf("fieldjoin requires a keys property")
	}
	keys, err := parseStageFields(raw)
	if err != nil {
		return nil, err
	}
	var required []string
	if r := props["required"]; r != "" {
		for _, stage := range strings.Split(r, ",") {
			required = append(required, strings.TrimSpace(stage))
		}
	}
	return &FieldJoiner{keys: keys, required: required}, nil
}

// JoinOn extracts the key field of an input stage's row.
func (j *FieldJoiner) JoinOn(stageName string, rec any) (any, error) {
	field, ok := j.keys[stageName]
	if !ok {
		return nil, fmt.Errorf("no join key configured for input %s", stageName)
	}
	row, ok := rec.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record %T is not a row", rec)
	}
	return fmt.Sprintf("%v", row[field]), nil
}

// RequiredInputs lists the inner-join inputs in configured order.
func (j *FieldJoiner) RequiredInputs() []string {
	return j.required
}

// Merge flattens the per-key elements into one row. Fields merge in stage
// name order so collisions resolve deterministically.
func (j *FieldJoiner) Merge(_ any, elements []plugin.JoinElement, emitter plugin.Emitter) error {
	sorted := append([]plugin.JoinElement(nil), elements...)
	sort.SliceStable(sorted, func(i, k int) bool {
		return sorted[i].StageName < sorted[k].StageName
	})
	merged := make(map[string]any)
	for _, element := range sorted {
		row, ok := element.Record.(map[string]any)
		if !ok {
			return fmt.Errorf("record %T is not a row", element.Record)
		}
		for field, value := range row {
			merged[field] = value
		}
	}
	emitter.Emit(merged)
	return nil
}

// AutoFieldJoiner is the declarative flavor: it emits a JoinDefinition from
// its configuration and lets the engine plan the join.
type AutoFieldJoiner struct {
	keys      map[string]string
	required  map[string]bool
	broadcast map[string]bool
	selected  []plugin.JoinField
}

// NewAutoFieldJoiner builds an AutoFieldJoiner. "keys" maps stages to key
// fields; "required" and "broadcast" are comma-separated stage lists;
// "select" lists output fields as "stage.field" or "stage.field:alias".
func NewAutoFieldJoiner(props map[string]string) (any, error) {
	raw := props["keys"]
	if raw == "" {
		return nil, fmt.Errorf("autofieldjoin requires a keys property")
	}
	keys, err := parseStageFields(raw)
	if err != nil {
		return nil, err
	}

	toSet := func(prop string) map[string]bool {
		out := make(map[string]bool)
		if props[prop] == "" {
			return out
		}
		for _, stage := range strings.Split(props[prop], ",") {
			out[strings.TrimSpace(stage)] = true
		}
		return out
	}

	var selected []plugin.JoinField
	if raw := props["select"]; raw != "" {
		for _, entry := range strings.Split(raw, ",") {
			entry = strings.TrimSpace(entry)
			ref, alias, _ := strings.Cut(entry, ":")
			stage, field, found := strings.Cut(ref, ".")
			if !found || stage == "" || field == "" {
				return nil, fmt.Errorf("invalid select entry %q", entry)
			}
			selected = append(selected, plugin.JoinField{StageName: stage, FieldName: field, Alias: alias})
		}
	}

	return &AutoFieldJoiner{
		keys:      keys,
		required:  toSet("required"),
		broadcast: toSet("broadcast"),
		selected:  selected,
	}, nil
}

// Define builds the JoinDefinition over the context's input stages, in
// stage-name order for determinism.
func (j *AutoFieldJoiner) Define(ctx plugin.AutoJoinerContext) (*plugin.JoinDefinition, error) {
	names := make([]string, 0, len(ctx.InputStages))
	for name := range ctx.InputStages {
		names = append(names, name)
	}
	sort.Strings(names)

	stages := make([]plugin.JoinStage, 0, len(names))
	joinKeys := make([]plugin.JoinKey, 0, len(names))
	for _, name := range names {
		field, ok := j.keys[name]
		if !ok {
			return nil, fmt.Errorf("no join key configured for input %s", name)
		}
		stage := ctx.InputStages[name]
		stage.Required = j.required[name]
		stage.Broadcast = j.broadcast[name]
		stages = append(stages, stage)
		joinKeys = append(joinKeys, plugin.JoinKey{StageName: name, Fields: []string{field}})
	}

	return &plugin.JoinDefinition{
		Stages:         stages,
		Condition:      plugin.JoinCondition{Op: plugin.OpKeyEquality, Keys: joinKeys},
		SelectedFields: j.selected,
	}, nil
}

var _ plugin.Joiner = (*FieldJoiner)(nil)
var _ plugin.AutoJoiner = (*AutoFieldJoiner)(nil)

// Register adds the plugins to a registry.
func Register(reg *plugin.Registry) error {
	if err := reg.Register(plan.KindJoiner, "fieldjoin", NewFieldJoiner); err != nil {
		return err
	}
	return reg.Register(plan.KindJoiner, "autofieldjoin", NewAutoFieldJoiner)
}
