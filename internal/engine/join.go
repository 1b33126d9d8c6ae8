package engine

import (
	"fmt"
	"sort"

	"github.com/alexisbeaulieu97/conveyor/internal/collection"
	"github.com/alexisbeaulieu97/conveyor/internal/metrics"
	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

// handleJoin plans a join stage. Explicit joiners run through the keyed-pair
// planner and the result is cached; auto joiners are translated into a single
// JoinRequest for the backend.
func (r *Runner) handleJoin(p *plan.Plan, spec *plan.StageSpec, instance any,
	inputs *stageInputs, partitions int, collector metrics.Collector) (collection.Collection, error) {

	stageName := spec.Name
	switch joiner := instance.(type) {
	case plugin.Joiner:
		if init, ok := instance.(plugin.Initializable); ok {
			err := init.Initialize(plugin.RuntimeContext{
				StageName:    stageName,
				InputSchemas: spec.InputSchemas,
				OutputSchema: spec.OutputSchema,
			})
			if err != nil {
				return nil, conveyorerrors.NewPluginError(spec.PluginName, err)
			}
		}
		joined, err := r.handleExplicitJoin(spec, joiner, inputs, partitions, collector)
		if err != nil {
			return nil, err
		}
		return joined.Cache(), nil

	case plugin.AutoJoiner:
		inputStages := make(map[string]plugin.JoinStage, len(inputs.names))
		for _, inputStageName := range p.StageInputs(stageName) {
			inputStageSpec := p.Stage(inputStageName)
			if inputStageSpec == nil {
				continue
			}
			inputStages[inputStageName] = plugin.JoinStage{
				StageName: inputStageName,
				Schema:    inputStageSpec.OutputSchema,
			}
		}
		definition, err := joiner.Define(plugin.AutoJoinerContext{InputStages: inputStages})
		if err != nil {
			return nil, conveyorerrors.NewPluginError(spec.PluginName, err)
		}
		return handleAutoJoin(stageName, definition, inputs, partitions)

	default:
		return nil, conveyorerrors.NewUnknownJoinerTypeError(stageName, fmt.Sprintf("%T", instance))
	}
}

// handleExplicitJoin keys every input, inner-joins the required inputs in
// declared order, then outer-joins the rest: full-outer when there were no
// required inputs, left-outer otherwise.
func (r *Runner) handleExplicitJoin(spec *plan.StageSpec, joiner plugin.Joiner,
	inputs *stageInputs, partitions int, collector metrics.Collector) (collection.Collection, error) {

	preJoin := make(map[string]collection.PairCollection, len(inputs.names))
	for _, inputStage := range inputs.names {
		keyed, err := r.backend.AddJoinKey(spec, joiner, inputStage, inputs.collections[inputStage], collector)
		if err != nil {
			return nil, err
		}
		preJoin[inputStage] = keyed
	}

	remaining := make(map[string]bool, len(inputs.names))
	for _, name := range inputs.names {
		remaining[name] = true
	}

	var joined collection.PairCollection
	for _, inputStage := range joiner.RequiredInputs() {
		pre, ok := preJoin[inputStage]
		if !ok {
			return nil, conveyorerrors.NewMalformedPipelineError(
				"join stage %s requires input %s which is not connected", spec.Name, inputStage)
		}
		if joined == nil {
			joined = pre.MapValues(initialJoin(inputStage))
		} else {
			joined = joined.Join(pre, partitions).MapValues(joinFlatten(inputStage))
		}
		delete(remaining, inputStage)
	}

	isFullOuter := joined == nil
	for _, inputStage := range inputs.names {
		if !remaining[inputStage] {
			continue
		}
		pre := preJoin[inputStage]
		if joined == nil {
			joined = pre.MapValues(initialJoin(inputStage))
			continue
		}
		if isFullOuter {
			joined = joined.FullOuterJoin(pre, partitions).MapValues(outerJoinFlatten(inputStage))
		} else {
			joined = joined.LeftOuterJoin(pre, partitions).MapValues(leftJoinFlatten(inputStage))
		}
	}

	if joined == nil {
		return nil, conveyorerrors.NewMissingInputError(spec.Name)
	}

	return r.backend.MergeJoinResults(spec, joiner, joined, collector)
}

// handleAutoJoin gathers the collection, schema, key list, and flags of every
// stage in the definition into a JoinRequest.
func handleAutoJoin(stageName string, definition *plugin.JoinDefinition,
	inputs *stageInputs, partitions int) (collection.Collection, error) {

	// broadcast sides go last: the left of the join is broadcast only when
	// every stage is, and non-broadcast left sides shuffle less
	joinOrder := append([]plugin.JoinStage(nil), definition.Stages...)
	sort.SliceStable(joinOrder, func(i, j int) bool {
		return !joinOrder[i].Broadcast && joinOrder[j].Broadcast
	})

	if len(joinOrder) == 0 {
		return nil, conveyorerrors.NewMissingInputError(stageName)
	}

	condition := definition.Condition
	if condition.Op != plugin.OpKeyEquality {
		return nil, conveyorerrors.NewUnsupportedJoinConditionError(stageName, string(condition.Op))
	}

	// a join on A.x = B.y and A.k = B.k yields A -> [x, k], B -> [y, k]
	stageKeys := make(map[string][]string, len(condition.Keys))
	for _, key := range condition.Keys {
		stageKeys[key.StageName] = key.Fields
	}

	left := joinOrder[0]
	leftCollection := inputs.collections[left.StageName]
	if leftCollection == nil {
		return nil, conveyorerrors.NewMalformedPipelineError(
			"join stage %s has no input collection for %s", stageName, left.StageName)
	}

	toJoin := make([]collection.JoinCollection, 0, len(joinOrder)-1)
	for _, right := range joinOrder[1:] {
		data := inputs.collections[right.StageName]
		if data == nil {
			return nil, conveyorerrors.NewMalformedPipelineError(
				"join stage %s has no input collection for %s", stageName, right.StageName)
		}
		toJoin = append(toJoin, collection.JoinCollection{
			StageName: right.StageName,
			Data:      data,
			Schema:    right.Schema,
			Keys:      stageKeys[right.StageName],
			Required:  right.Required,
			Broadcast: right.Broadcast,
		})
	}

	request := &collection.JoinRequest{
		LeftStage:      left.StageName,
		LeftKeys:       stageKeys[left.StageName],
		LeftSchema:     left.Schema,
		LeftRequired:   left.Required,
		NullSafe:       condition.NullSafe,
		SelectedFields: definition.SelectedFields,
		OutputSchema:   definition.OutputSchema,
		ToJoin:         toJoin,
		Partitions:     partitions,
	}
	return leftCollection.Join(request), nil
}

// initialJoin seeds the joined value with a one-element list.
func initialJoin(stageName string) collection.MapValuesFunc {
	return func(value any) (any, error) {
		return []plugin.JoinElement{{StageName: stageName, Record: value}}, nil
	}
}

// joinFlatten appends an inner-joined record to the accumulated elements.
func joinFlatten(stageName string) collection.MapValuesFunc {
	return func(value any) (any, error) {
		joined, ok := value.(collection.Joined)
		if !ok {
			return nil, fmt.Errorf("joined value %T is not a pair", value)
		}
		elements, ok := joined.Left.([]plugin.JoinElement)
		if !ok {
			return nil, fmt.Errorf("join accumulator %T is not an element list", joined.Left)
		}
		out := make([]plugin.JoinElement, 0, len(elements)+1)
		out = append(out, elements...)
		return append(out, plugin.JoinElement{StageName: stageName, Record: joined.Right}), nil
	}
}

// leftJoinFlatten appends the right record when present.
func leftJoinFlatten(stageName string) collection.MapValuesFunc {
	return func(value any) (any, error) {
		joined, ok := value.(collection.Joined)
		if !ok {
			return nil, fmt.Errorf("joined value %T is not a pair", value)
		}
		elements, ok := joined.Left.([]plugin.JoinElement)
		if !ok {
			return nil, fmt.Errorf("join accumulator %T is not an element list", joined.Left)
		}
		if !joined.HasRight {
			return elements, nil
		}
		out := make([]plugin.JoinElement, 0, len(elements)+1)
		out = append(out, elements...)
		return append(out, plugin.JoinElement{StageName: stageName, Record: joined.Right}), nil
	}
}

// outerJoinFlatten handles full-outer pairs where either side may be absent.
func outerJoinFlatten(stageName string) collection.MapValuesFunc {
	return func(value any) (any, error) {
		joined, ok := value.(collection.Joined)
		if !ok {
			return nil, fmt.Errorf("joined value %T is not a pair", value)
		}
		var elements []plugin.JoinElement
		if joined.HasLeft {
			existing, ok := joined.Left.([]plugin.JoinElement)
			if !ok {
				return nil, fmt.Errorf("join accumulator %T is not an element list", joined.Left)
			}
			elements = existing
		}
		if !joined.HasRight {
			return elements, nil
		}
		out := make([]plugin.JoinElement, 0, len(elements)+1)
		out = append(out, elements...)
		return append(out, plugin.JoinElement{StageName: stageName, Record: joined.Right}), nil
	}
}
