package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// Pipeline is a parsed pipeline file: the frozen plan plus the per-stage
// partition hints.
type Pipeline struct {
	Name       string
	Plan       *plan.Plan
	Partitions map[string]int
}

// ParseFile loads a pipeline file from disk, validates it, and compiles the
// plan.
func ParseFile(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, conveyorerrors.NewParseError(path, 0, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, conveyorerrors.NewParseError(path, extractLine(err), err)
	}

	if err := ValidateDocument(&doc); err != nil {
		return nil, err
	}

	return Compile(&doc)
}

// Compile turns a validated document into the engine's plan form.
func Compile(doc *Document) (*Pipeline, error) {
	stages := make([]*plan.StageSpec, 0, len(doc.Stages))
	partitions := make(map[string]int)
	specs := make(map[string]*plan.StageSpec, len(doc.Stages))
	for _, stage := range doc.Stages {
		kind, err := plan.ParseKind(stage.Type)
		if err != nil {
			return nil, conveyorerrors.NewValidationError("stages", err.Error(), err)
		}
		spec := &plan.StageSpec{
			Name:         stage.Name,
			PluginType:   kind,
			PluginName:   stage.Plugin,
			Properties:   stage.Properties,
			OutputSchema: compileSchema(stage.Name, stage.Schema),
		}
		stages = append(stages, spec)
		specs[stage.Name] = spec
		if stage.Partitions > 0 {
			partitions[stage.Name] = stage.Partitions
		}
	}

	// wire the declared input schemas off the connections
	for _, conn := range doc.Connections {
		from, ok := specs[conn.From]
		if !ok {
			continue
		}
		to, ok := specs[conn.To]
		if !ok || from.OutputSchema == nil {
			continue
		}
		if to.InputSchemas == nil {
			to.InputSchemas = make(map[string]*plan.Schema)
		}
		to.InputSchemas[conn.From] = from.OutputSchema
	}

	connections := make([]plan.Connection, 0, len(doc.Connections))
	for _, conn := range doc.Connections {
		connections = append(connections, plan.Connection{From: conn.From, To: conn.To, Port: conn.Port})
	}

	p, err := plan.New(stages, connections)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Name: doc.Name, Plan: p, Partitions: partitions}, nil
}

func compileSchema(stage string, schema *Schema) *plan.Schema {
	if schema == nil {
		return nil
	}
	name := schema.Name
	if name == "" {
		name = stage
	}
	fields := make([]plan.Field, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		fields = append(fields, plan.Field{Name: field.Name, Type: field.Type})
	}
	return &plan.Schema{Name: name, Fields: fields}
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
