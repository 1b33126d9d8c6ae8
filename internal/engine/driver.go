package engine

import (
	"context"

	"github.com/alexisbeaulieu97/conveyor/internal/collection"
	"github.com/alexisbeaulieu97/conveyor/internal/logger"
	"github.com/alexisbeaulieu97/conveyor/internal/metrics"
	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

// Runner executes batch pipeline phases against a collection backend.
type Runner struct {
	backend collection.Backend
	log     *logger.Logger
}

// NewRunner creates a Runner. A nil logger discards engine logging.
func NewRunner(backend collection.Backend, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Discard()
	}
	return &Runner{backend: backend, log: log}
}

// stageInputs holds a stage's input collections in deterministic order: the
// plan's edge declaration order.
type stageInputs struct {
	names       []string
	collections map[string]collection.Collection
}

func (s *stageInputs) add(name string, c collection.Collection) {
	if s.collections == nil {
		s.collections = make(map[string]collection.Collection)
	}
	s.names = append(s.names, name)
	s.collections[name] = c
}

func (s *stageInputs) empty() bool {
	return len(s.names) == 0
}

// RunPipeline executes the plan: stages dispatch in topological order, sink
// actions are deferred, and the sink queue flushes last. The first error
// aborts the run; completed side effects are not reverted.
func (r *Runner) RunPipeline(ctx context.Context, p *plan.Plan, sourceKind plan.Kind,
	runCtx *RunContext, stagePartitions map[string]int, plugins plugin.Context,
	collectors map[string]metrics.Collector) error {

	if p.DAG() == nil || len(p.DAG().TopologicalOrder()) == 0 {
		return conveyorerrors.NewMalformedPipelineError("pipeline phase has no dag or no stages")
	}

	eval := runCtx.MacroEvaluator()
	registry := newRecordsRegistry()
	var sinks []sinkRunnable

	for _, stageName := range p.DAG().TopologicalOrder() {
		spec := p.Stage(stageName)
		pluginType := spec.PluginType

		// stages that can emit errors or alerts only pay for the extra
		// filters when something downstream consumes them
		hasErrorOutput := false
		hasAlertOutput := false
		for _, output := range p.StageOutputs(stageName) {
			switch p.Stage(output).PluginType {
			case plan.KindErrorTransform:
				hasErrorOutput = true
			case plan.KindAlertPublisher:
				hasAlertOutput = true
			}
		}

		inputs := &stageInputs{}
		for _, inputStageName := range p.StageInputs(stageName) {
			inputStageSpec := p.Stage(inputStageName)
			if inputStageSpec == nil {
				// the input lives in a separate phase, e.g. an action
				continue
			}
			// connectors always emit normal output, never port records
			port := ""
			if inputStageSpec.PluginType != plan.KindConnector && pluginType != plan.KindConnector {
				port = inputStageSpec.OutputPorts[stageName].Name
			}
			emitted := registry.get(inputStageName)
			if port == "" {
				inputs.add(inputStageName, emitted.Output)
			} else {
				inputs.add(inputStageName, emitted.OutputPorts[port])
			}
		}

		// a multi-input stage that is not a joiner or error transform sees
		// the union of its inputs
		var stageData collection.Collection
		if !inputs.empty() {
			stageData = inputs.collections[inputs.names[0]]
			if pluginType != plan.KindJoiner && pluginType != plan.KindErrorTransform {
				for _, name := range inputs.names[1:] {
					stageData = stageData.Union(inputs.collections[name])
				}
			}
		}

		isConnectorSource := pluginType == plan.KindConnector && p.IsSource(stageName)
		isConnectorSink := pluginType == plan.KindConnector && p.IsSink(stageName)

		collector := collectors[stageName]
		if collector == nil {
			collector = metrics.Noop{}
		}

		r.log.WithStage(stageName).Debug("dispatching stage")

		builder, sink, err := r.dispatchStage(ctx, p, dispatchArgs{
			spec:              spec,
			sourceKind:        sourceKind,
			stageData:         stageData,
			inputs:            inputs,
			isConnectorSource: isConnectorSource,
			isConnectorSink:   isConnectorSink,
			partitions:        stagePartitions[stageName],
			registry:          registry,
			plugins:           plugins,
			eval:              eval,
			collector:         collector,
			hasErrorOutput:    hasErrorOutput,
			hasAlertOutput:    hasAlertOutput,
		})
		if err != nil {
			return err
		}
		if sink != nil {
			sinks = append(sinks, *sink)
		}

		if err := registry.put(stageName, builder.build()); err != nil {
			return err
		}
	}

	return r.runSinks(ctx, sinks, runCtx.ParallelSinksEnabled())
}
