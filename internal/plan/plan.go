package plan

import (
	"fmt"

	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

// Kind identifies a stage's plugin type. The set is closed; the dispatcher
// matches exhaustively over it.
type Kind string

const (
	KindSource         Kind = "batchsource"
	KindSink           Kind = "batchsink"
	KindTransform      Kind = "transform"
	KindSplitter       Kind = "splittertransform"
	KindErrorTransform Kind = "errortransform"
	KindCompute        Kind = "compute"
	KindComputeSink    Kind = "computesink"
	KindAggregator     Kind = "batchaggregator"
	KindJoiner         Kind = "batchjoiner"
	KindWindower       Kind = "windower"
	KindAlertPublisher Kind = "alertpublisher"
	KindConnector      Kind = "connector"
)

// Kinds lists every valid plugin kind.
func Kinds() []Kind {
	return []Kind{
		KindSource, KindSink, KindTransform, KindSplitter, KindErrorTransform,
		KindCompute, KindComputeSink, KindAggregator, KindJoiner, KindWindower,
		KindAlertPublisher, KindConnector,
	}
}

// ParseKind validates a plugin type tag.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown plugin type %q", s)
}

// Field describes one column of a record schema.
type Field struct {
	Name string
	Type string
}

// Schema names the shape of records flowing along an edge. The engine never
// validates records against it; it is threaded through to plugins and the
// join planner.
type Schema struct {
	Name   string
	Fields []Field
}

// FieldNames returns the schema's field names in declaration order.
func (s *Schema) FieldNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Port names a splitter output channel.
type Port struct {
	Name string
}

// StageSpec is the frozen per-stage contract inside a validated plan.
type StageSpec struct {
	Name         string
	PluginType   Kind
	PluginName   string
	Properties   map[string]string
	InputSchemas map[string]*Schema
	OutputSchema *Schema

	// OutputPorts maps a downstream stage name to the port it subscribes to.
	// Only splitter stages have entries.
	OutputPorts map[string]Port
}

// Connection is one directed edge of the pipeline DAG. Port is set when the
// upstream stage routes records to the downstream through a named port.
type Connection struct {
	From string
	To   string
	Port string
}

// Plan is a frozen, validated pipeline phase: stages plus an acyclic DAG with
// a precomputed, stable topological order.
type Plan struct {
	stages map[string]*StageSpec
	dag    *DAG
	// crossPhaseInputs lists inputs whose producing stage lives in another
	// plan phase, e.g. an action. Keyed by consuming stage.
	crossPhaseInputs map[string][]string
	sources          map[string]bool
	sinks            map[string]bool
}

// New assembles a Plan from stage specs and connections. Stage names must be
// unique and every connection target must name a known stage; a connection
// from an unknown stage is treated as a cross-phase input. Sources and sinks
// are derived from edge degrees.
func New(stages []*StageSpec, connections []Connection) (*Plan, error) {
	byName := make(map[string]*StageSpec, len(stages))
	dag := NewDAG()
	for _, spec := range stages {
		if spec == nil || spec.Name == "" {
			return nil, conveyorerrors.NewMalformedPipelineError("stage with empty name")
		}
		if _, exists := byName[spec.Name]; exists {
			return nil, conveyorerrors.NewMalformedPipelineError("duplicate stage name %q", spec.Name)
		}
		byName[spec.Name] = spec
		if err := dag.AddNode(spec.Name); err != nil {
			return nil, err
		}
	}

	crossPhaseInputs := make(map[string][]string)
	for _, conn := range connections {
		if _, ok := byName[conn.To]; !ok {
			return nil, conveyorerrors.NewMalformedPipelineError("connection to unknown stage %q", conn.To)
		}
		if _, ok := byName[conn.From]; !ok {
			// the producing stage belongs to a different phase; record the
			// input so the driver can skip it
			crossPhaseInputs[conn.To] = append(crossPhaseInputs[conn.To], conn.From)
			continue
		}
		if err := dag.AddEdge(conn.From, conn.To); err != nil {
			return nil, err
		}
		if conn.Port != "" {
			from := byName[conn.From]
			if from.OutputPorts == nil {
				from.OutputPorts = make(map[string]Port)
			}
			from.OutputPorts[conn.To] = Port{Name: conn.Port}
		}
	}

	if err := dag.Sort(); err != nil {
		return nil, err
	}

	sources := make(map[string]bool)
	sinks := make(map[string]bool)
	for name := range byName {
		if len(dag.Inputs(name)) == 0 {
			sources[name] = true
		}
		if len(dag.Outputs(name)) == 0 {
			sinks[name] = true
		}
	}
	if len(sources) == 0 {
		return nil, conveyorerrors.NewMalformedPipelineError("pipeline has no source stage")
	}

	return &Plan{stages: byName, dag: dag, crossPhaseInputs: crossPhaseInputs, sources: sources, sinks: sinks}, nil
}

// Stage looks up a stage spec by name; nil when the stage belongs to another
// plan phase.
func (p *Plan) Stage(name string) *StageSpec {
	return p.stages[name]
}

// DAG exposes the plan's dependency graph.
func (p *Plan) DAG() *DAG {
	return p.dag
}

// StageInputs lists the upstream stage names of the given stage in edge
// declaration order. Cross-phase inputs come last; Stage returns nil for
// them.
func (p *Plan) StageInputs(name string) []string {
	if p.dag == nil {
		return nil
	}
	inputs := p.dag.Inputs(name)
	if phantom := p.crossPhaseInputs[name]; len(phantom) > 0 {
		merged := make([]string, 0, len(inputs)+len(phantom))
		merged = append(merged, inputs...)
		return append(merged, phantom...)
	}
	return inputs
}

// StageOutputs lists the downstream stage names of the given stage in edge
// declaration order.
func (p *Plan) StageOutputs(name string) []string {
	if p.dag == nil {
		return nil
	}
	return p.dag.Outputs(name)
}

// IsSource reports whether the stage has no inbound edges.
func (p *Plan) IsSource(name string) bool {
	return p.sources[name]
}

// IsSink reports whether the stage has no outbound edges.
func (p *Plan) IsSink(name string) bool {
	return p.sinks[name]
}

// StageNames returns every stage name in topological order.
func (p *Plan) StageNames() []string {
	if p.dag == nil {
		return nil
	}
	return p.dag.TopologicalOrder()
}
