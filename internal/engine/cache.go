package engine

import "github.com/alexisbeaulieu97/conveyor/internal/plan"

// shouldCache reports whether a stage's sub-collections should be memoized.
// A stage with several downstream edges would otherwise recompute once per
// consumer, and a downstream union over several inputs would recompute this
// stage once per union operand. Stage cost is not considered.
func shouldCache(p *plan.Plan, spec *plan.StageSpec) bool {
	outputs := p.StageOutputs(spec.Name)
	if len(outputs) > 1 {
		return true
	}

	for _, downstream := range outputs {
		if len(p.StageInputs(downstream)) > 1 {
			return true
		}
	}

	return false
}
