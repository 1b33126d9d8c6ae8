package plan

import (
	"sort"

	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

// node is a vertex of the dependency graph. Input and output slices keep edge
// declaration order so iteration over neighbors is deterministic.
type node struct {
	name    string
	inputs  []string
	outputs []string
}

// DAG holds the pipeline dependency graph and its precomputed topological
// order. The order is stable for a given plan: ties inside a level are broken
// by stage name.
type DAG struct {
	nodes map[string]*node
	order []string
}

// NewDAG creates an empty graph.
func NewDAG() *DAG {
	return &DAG{nodes: make(map[string]*node)}
}

// AddNode inserts a vertex.
func (d *DAG) AddNode(name string) error {
	if _, exists := d.nodes[name]; exists {
		return conveyorerrors.NewMalformedPipelineError("duplicate stage %q in dag", name)
	}
	d.nodes[name] = &node{name: name}
	return nil
}

// AddEdge connects from → to. Parallel edges collapse to one.
func (d *DAG) AddEdge(from, to string) error {
	src, ok := d.nodes[from]
	if !ok {
		return conveyorerrors.NewMalformedPipelineError("edge from unknown stage %q", from)
	}
	dst, ok := d.nodes[to]
	if !ok {
		return conveyorerrors.NewMalformedPipelineError("edge to unknown stage %q", to)
	}

	for _, existing := range src.outputs {
		if existing == to {
			return nil
		}
	}
	src.outputs = append(src.outputs, to)
	dst.inputs = append(dst.inputs, from)
	return nil
}

// Inputs returns the upstream neighbors of a stage in declaration order.
func (d *DAG) Inputs(name string) []string {
	n, ok := d.nodes[name]
	if !ok {
		return nil
	}
	return n.inputs
}

// Outputs returns the downstream neighbors of a stage in declaration order.
func (d *DAG) Outputs(name string) []string {
	n, ok := d.nodes[name]
	if !ok {
		return nil
	}
	return n.outputs
}

// Sort computes the topological order using Kahn's algorithm, sorting each
// level by stage name so the order is stable for a given plan.
func (d *DAG) Sort() error {
	indegree := make(map[string]int, len(d.nodes))
	for name, n := range d.nodes {
		indegree[name] = len(n.inputs)
	}

	var queue []string
	for name, degree := range indegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(d.nodes))
	for len(queue) > 0 {
		current := queue
		var next []string
		for _, name := range current {
			order = append(order, name)
			for _, out := range d.nodes[name].outputs {
				indegree[out]--
				if indegree[out] == 0 {
					next = append(next, out)
				}
			}
		}
		sort.Strings(next)
		queue = next
	}

	if len(order) != len(d.nodes) {
		return conveyorerrors.NewMalformedPipelineError("cycle detected in pipeline dag")
	}

	d.order = order
	return nil
}

// TopologicalOrder returns the precomputed stage order. Sort must have run.
func (d *DAG) TopologicalOrder() []string {
	return d.order
}
