package engine

import (
	"github.com/mvidal/trellis/pkg/schema"
)

// Sequence computes a linear execution order for the given nodes using Kahn's
// algorithm, or reports the subset of nodes that cannot be ordered.
//
// In-degree of a node is the count of its own declared dependencies, so a node
// depending on an identifier absent from the workflow keeps a nonzero in-degree
// forever and lands in the cycle set together with true cycles. Ready nodes are
// drained FIFO in declaration order, which makes the output deterministic when
// several orderings are valid.
func Sequence(nodes []schema.WorkflowNode) (order []*schema.WorkflowNode, cycle []string) {
	inDegree := make(map[string]int, len(nodes))
	for i := range nodes {
		inDegree[nodes[i].ID] = len(nodes[i].DependsOn)
	}

	// dependents[id] lists the indices of nodes that declare id as a
	// dependency, in declaration order.
	dependents := make(map[string][]int, len(nodes))
	for i := range nodes {
		for _, dep := range nodes[i].DependsOn {
			dependents[dep] = append(dependents[dep], i)
		}
	}

	queue := make([]*schema.WorkflowNode, 0, len(nodes))
	for i := range nodes {
		if inDegree[nodes[i].ID] == 0 {
			queue = append(queue, &nodes[i])
		}
	}

	order = make([]*schema.WorkflowNode, 0, len(nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, idx := range dependents[node.ID] {
			inDegree[nodes[idx].ID]--
			if inDegree[nodes[idx].ID] == 0 {
				queue = append(queue, &nodes[idx])
			}
		}
	}

	if len(order) == len(nodes) {
		return order, nil
	}

	for i := range nodes {
		if inDegree[nodes[i].ID] > 0 {
			cycle = append(cycle, nodes[i].ID)
		}
	}
	return nil, cycle
}
