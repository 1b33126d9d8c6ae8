package plugin

import "github.com/alexisbeaulieu97/conveyor/internal/plan"

// JoinConditionOp enumerates declarative join condition operators. Key
// equality is the only operator the planner supports.
type JoinConditionOp string

const (
	// OpKeyEquality joins rows whose key fields are equal across stages.
	OpKeyEquality JoinConditionOp = "KEY_EQUALITY"
	// OpExpression is reserved for expression-based conditions.
	OpExpression JoinConditionOp = "EXPRESSION"
)

// JoinKey names the key fields of one stage participating in a join.
type JoinKey struct {
	StageName string
	Fields    []string
}

// JoinCondition describes how joined stages relate. For OpKeyEquality, Keys
// holds one entry per stage; a join on A.x = B.y and A.k = B.k yields
// A -> [x, k] and B -> [y, k].
type JoinCondition struct {
	Op       JoinConditionOp
	Keys     []JoinKey
	NullSafe bool
}

// JoinStage is one participant of a declarative join.
type JoinStage struct {
	StageName string
	Schema    *plan.Schema
	Required  bool
	Broadcast bool
}

// JoinField selects one output column of a join: a field of a participating
// stage, optionally renamed.
type JoinField struct {
	StageName string
	FieldName string
	Alias     string
}

// JoinDefinition is the full declarative join description returned by an
// AutoJoiner.
type JoinDefinition struct {
	Stages         []JoinStage
	Condition      JoinCondition
	SelectedFields []JoinField
	OutputSchema   *plan.Schema
}

// AutoJoinerContext hands an AutoJoiner the schema of each input stage so it
// can build a JoinDefinition.
type AutoJoinerContext struct {
	InputStages map[string]JoinStage
}
