package engine

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/conveyor/internal/collection"
	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/record"
)

// addEmitted splits a stage's combined tagged-record stream into the per-kind
// sub-collections. When more than one sub-stream will be derived, the
// combined stream is cached first so each filter does not recompute the
// stage. Sub-collections are additionally cached per the cache policy.
func addEmitted(builder *emittedBuilder, p *plan.Plan, spec *plan.StageSpec,
	stageData collection.Collection, hasErrors, hasAlerts bool) *emittedBuilder {

	if hasErrors || hasAlerts || len(spec.OutputPorts) > 1 {
		stageData = stageData.Cache()
	}

	cache := shouldCache(p, spec)

	if hasErrors {
		errors := stageData.FlatMap(spec, errorPassFilter)
		if cache {
			errors = errors.Cache()
		}
		builder.setErrors(errors)
	}
	if hasAlerts {
		alerts := stageData.FlatMap(spec, alertPassFilter)
		if cache {
			alerts = alerts.Cache()
		}
		builder.setAlerts(alerts)
	}

	if spec.PluginType == plan.KindSplitter {
		seen := make(map[string]bool)
		for _, portSpec := range spec.OutputPorts {
			if seen[portSpec.Name] {
				continue
			}
			seen[portSpec.Name] = true
			portData := stageData.FlatMap(spec, portPassFilter(portSpec.Name))
			if cache {
				portData = portData.Cache()
			}
			builder.addPort(portSpec.Name, portData)
		}
	} else {
		outputs := stageData.FlatMap(spec, outputPassFilter)
		if cache {
			outputs = outputs.Cache()
		}
		builder.setOutput(outputs)
	}

	return builder
}

func taggedRecord(element any) (record.Info, error) {
	info, ok := element.(record.Info)
	if !ok {
		return record.Info{}, fmt.Errorf("element %T is not a tagged record", element)
	}
	return info, nil
}

// outputPassFilter keeps normal output records, unwrapped.
func outputPassFilter(_ context.Context, element any) ([]any, error) {
	info, err := taggedRecord(element)
	if err != nil {
		return nil, err
	}
	if info.Kind() != record.KindOutput {
		return nil, nil
	}
	return []any{info.Value()}, nil
}

// portPassFilter keeps the records routed to one port, unwrapped.
func portPassFilter(port string) collection.FlatMapFunc {
	return func(_ context.Context, element any) ([]any, error) {
		info, err := taggedRecord(element)
		if err != nil {
			return nil, err
		}
		if info.Kind() != record.KindPortOutput || info.Port() != port {
			return nil, nil
		}
		return []any{info.Value()}, nil
	}
}

// errorPassFilter keeps error records.
func errorPassFilter(_ context.Context, element any) ([]any, error) {
	info, err := taggedRecord(element)
	if err != nil {
		return nil, err
	}
	if info.Kind() != record.KindError {
		return nil, nil
	}
	return []any{info.Error()}, nil
}

// alertPassFilter keeps alerts.
func alertPassFilter(_ context.Context, element any) ([]any, error) {
	info, err := taggedRecord(element)
	if err != nil {
		return nil, err
	}
	if info.Kind() != record.KindAlert {
		return nil, nil
	}
	return []any{info.Alert()}, nil
}
