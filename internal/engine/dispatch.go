package engine

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/conveyor/internal/collection"
	"github.com/alexisbeaulieu97/conveyor/internal/macros"
	"github.com/alexisbeaulieu97/conveyor/internal/metrics"
	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/record"
	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

type dispatchArgs struct {
	spec              *plan.StageSpec
	sourceKind        plan.Kind
	stageData         collection.Collection
	inputs            *stageInputs
	isConnectorSource bool
	isConnectorSink   bool
	partitions        int
	registry          *recordsRegistry
	plugins           plugin.Context
	eval              *macros.Evaluator
	collector         metrics.Collector
	hasErrorOutput    bool
	hasAlertOutput    bool
}

// dispatchStage matches on the stage's plugin kind, invokes the backend
// operation, and routes the output into an emitted-records builder. Sinks
// return a deferred runnable instead of registry output.
func (r *Runner) dispatchStage(ctx context.Context, p *plan.Plan, args dispatchArgs) (*emittedBuilder, *sinkRunnable, error) {
	spec := args.spec
	stageName := spec.Name
	pluginType := spec.PluginType
	builder := newEmittedBuilder()

	if args.stageData == nil {
		if pluginType != args.sourceKind && !args.isConnectorSource {
			return nil, nil, conveyorerrors.NewMissingInputError(stageName)
		}
		src, err := instantiate[plugin.Source](args, stageName)
		if err != nil {
			return nil, nil, err
		}
		combined, err := r.backend.GetSource(spec, src, args.collector)
		if err != nil {
			return nil, nil, err
		}
		return addEmitted(builder, p, spec, combined, args.hasErrorOutput, args.hasAlertOutput), nil, nil
	}

	switch {
	case pluginType == plan.KindSink || args.isConnectorSink:
		sink, err := instantiate[plugin.Sink](args, stageName)
		if err != nil {
			return nil, nil, err
		}
		task := args.stageData.CreateStoreTask(spec, sink.Write)
		return builder, &sinkRunnable{stage: stageName, task: task}, nil

	case pluginType == plan.KindTransform:
		transform, err := instantiate[plugin.Transform](args, stageName)
		if err != nil {
			return nil, nil, err
		}
		combined := args.stageData.Transform(spec, transform, args.collector)
		return addEmitted(builder, p, spec, combined, args.hasErrorOutput, args.hasAlertOutput), nil, nil

	case pluginType == plan.KindSplitter:
		splitter, err := instantiate[plugin.SplitterTransform](args, stageName)
		if err != nil {
			return nil, nil, err
		}
		combined := args.stageData.MultiOutputTransform(spec, splitter, args.collector)
		return addEmitted(builder, p, spec, combined, args.hasErrorOutput, args.hasAlertOutput), nil, nil

	case pluginType == plan.KindErrorTransform:
		// union the error collections of every input stage; inputs that
		// emitted no errors are skipped
		var inputErrors collection.Collection
		for _, inputStage := range args.inputs.names {
			fromStage := args.registry.get(inputStage).Errors
			if fromStage == nil {
				continue
			}
			if inputErrors == nil {
				inputErrors = fromStage
			} else {
				inputErrors = inputErrors.Union(fromStage)
			}
		}
		if inputErrors == nil {
			return builder, nil, nil
		}
		transform, err := instantiate[plugin.ErrorTransform](args, stageName)
		if err != nil {
			return nil, nil, err
		}
		combined := inputErrors.FlatMap(spec, errorTransformFunc(spec, transform, args.collector))
		return addEmitted(builder, p, spec, combined, args.hasErrorOutput, args.hasAlertOutput), nil, nil

	case pluginType == plan.KindCompute:
		compute, err := instantiate[plugin.Compute](args, stageName)
		if err != nil {
			return nil, nil, err
		}
		return builder.setOutput(args.stageData.Compute(spec, compute, args.collector)), nil, nil

	case pluginType == plan.KindComputeSink:
		computeSink, err := instantiate[plugin.ComputeSink](args, stageName)
		if err != nil {
			return nil, nil, err
		}
		task := args.stageData.CreateStoreTask(spec, computeSink.Run)
		return builder, &sinkRunnable{stage: stageName, task: task}, nil

	case pluginType == plan.KindAggregator:
		instance, err := args.plugins.NewPluginInstance(stageName, args.eval)
		if err != nil {
			return nil, nil, err
		}
		var combined collection.Collection
		switch agg := instance.(type) {
		case plugin.ReducibleAggregator:
			combined = args.stageData.ReduceAggregate(spec, agg, args.partitions, args.collector)
		case plugin.Aggregator:
			combined = args.stageData.Aggregate(spec, agg, args.partitions, args.collector)
		default:
			return nil, nil, conveyorerrors.NewPluginError(spec.PluginName,
				fmt.Errorf("plugin %T is not an aggregator", instance))
		}
		return addEmitted(builder, p, spec, combined, args.hasErrorOutput, args.hasAlertOutput), nil, nil

	case pluginType == plan.KindJoiner:
		instance, err := args.plugins.NewPluginInstance(stageName, args.eval)
		if err != nil {
			return nil, nil, err
		}
		joined, err := r.handleJoin(p, spec, instance, args.inputs, args.partitions, args.collector)
		if err != nil {
			return nil, nil, err
		}
		return builder.setOutput(joined), nil, nil

	case pluginType == plan.KindWindower:
		windower, err := instantiate[plugin.Windower](args, stageName)
		if err != nil {
			return nil, nil, err
		}
		return builder.setOutput(args.stageData.Window(spec, windower)), nil, nil

	case pluginType == plan.KindAlertPublisher:
		// union the alert collections of every input stage
		var inputAlerts collection.Collection
		for _, inputStage := range args.inputs.names {
			fromStage := args.registry.get(inputStage).Alerts
			if fromStage == nil {
				continue
			}
			if inputAlerts == nil {
				inputAlerts = fromStage
			} else {
				inputAlerts = inputAlerts.Union(fromStage)
			}
		}
		if inputAlerts == nil {
			return builder, nil, nil
		}
		publisher, err := instantiate[plugin.AlertPublisher](args, stageName)
		if err != nil {
			return nil, nil, err
		}
		if err := inputAlerts.PublishAlerts(ctx, spec, publisher, args.collector); err != nil {
			return nil, nil, err
		}
		return builder, nil, nil

	default:
		return nil, nil, conveyorerrors.NewUnsupportedPluginError(stageName, string(pluginType))
	}
}

// instantiate materializes a stage's plugin and asserts its interface.
func instantiate[T any](args dispatchArgs, stageName string) (T, error) {
	var zero T
	instance, err := args.plugins.NewPluginInstance(stageName, args.eval)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, conveyorerrors.NewPluginError(args.spec.PluginName,
			fmt.Errorf("plugin %T does not implement the %s contract", instance, args.spec.PluginType))
	}
	return typed, nil
}

// errorTransformFunc adapts an error transform plugin to a flat map over the
// upstream error records.
func errorTransformFunc(spec *plan.StageSpec, t plugin.ErrorTransform, collector metrics.Collector) collection.FlatMapFunc {
	return func(ctx context.Context, element any) ([]any, error) {
		errRec, ok := element.(*record.ErrorRecord)
		if !ok {
			return nil, fmt.Errorf("stage %s: element %T is not an error record", spec.Name, element)
		}
		collector.IncrementInputCount(1)
		emitter := plugin.NewRecordEmitter(spec.Name)
		if err := t.Transform(ctx, errRec, emitter); err != nil {
			return nil, fmt.Errorf("stage %s: %w", spec.Name, err)
		}
		out := make([]any, 0, len(emitter.Records()))
		for _, info := range emitter.Records() {
			if info.Kind() == record.KindError {
				collector.IncrementErrorCount(1)
			} else {
				collector.IncrementOutputCount(1)
			}
			out = append(out, info)
		}
		return out, nil
	}
}
