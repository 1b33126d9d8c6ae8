package collection

import (
	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

// JoinCollection is one non-left participant of a planned n-way join.
type JoinCollection struct {
	StageName string
	Data      Collection
	Schema    *plan.Schema
	Keys      []string
	Required  bool
	Broadcast bool
}

// JoinRequest is the fully planned form of a declarative join: the left side
// plus one or more stages to join to it. The planner orders broadcast stages
// last, so the left side is a broadcast stage only when every stage of the
// join is marked broadcast; that case is not rejected.
type JoinRequest struct {
	LeftStage      string
	LeftKeys       []string
	LeftSchema     *plan.Schema
	LeftRequired   bool
	NullSafe       bool
	SelectedFields []plugin.JoinField
	OutputSchema   *plan.Schema
	ToJoin         []JoinCollection

	// Partitions <= 0 lets the backend choose.
	Partitions int
}
