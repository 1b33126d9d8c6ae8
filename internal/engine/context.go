package engine

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/conveyor/internal/macros"
)

// parallelSinksKey is the one runtime argument the engine consumes.
const parallelSinksKey = "pipeline.spark.parallel.sinks.enabled"

// RunContext carries the per-run execution state: identity, logical time,
// namespace, and the caller-supplied runtime arguments.
type RunContext struct {
	RunID            string
	LogicalStartTime time.Time
	Namespace        string
	RuntimeArguments map[string]string
}

// NewRunContext creates a RunContext with a fresh run ID and the current time
// as logical start.
func NewRunContext(namespace string, args map[string]string) *RunContext {
	return &RunContext{
		RunID:            uuid.NewString(),
		LogicalStartTime: time.Now(),
		Namespace:        namespace,
		RuntimeArguments: args,
	}
}

// MacroEvaluator builds the evaluator used to expand plugin properties.
func (c *RunContext) MacroEvaluator() *macros.Evaluator {
	return macros.NewEvaluator(c.RuntimeArguments, c.Namespace, c.LogicalStartTime)
}

// ParallelSinksEnabled reports whether sinks run on a worker pool. Anything
// other than a parseable true is false.
func (c *RunContext) ParallelSinksEnabled() bool {
	enabled, err := strconv.ParseBool(c.RuntimeArguments[parallelSinksKey])
	return err == nil && enabled
}
