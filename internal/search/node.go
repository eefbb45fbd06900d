// Package search drives branch-and-bound over parameter boxes using a
// single relaxation oracle whose box is walked from node to node.
package search

import (
	"math"

	"github.com/GoSim-25-26J-441/gridsearch/internal/bounds"
	"github.com/GoSim-25-26J-441/gridsearch/internal/lp"
)

// Node is one box of the search tree, stored as the deltas that turn its
// parent's box into its own.
type Node struct {
	ID     int
	Parent *Node
	Deltas bounds.DeltaList
	Depth  int
	// Bound is the best objective any point of the box can reach: the
	// parent's relaxed bound until the node itself is solved.
	Bound float64
	warm  *lp.Basis
}

func newRoot() *Node {
	return &Node{ID: 0, Bound: math.Inf(1)}
}

func (n *Node) child(id int, deltas bounds.DeltaList, warm *lp.Basis) *Node {
	return &Node{
		ID:     id,
		Parent: n,
		Deltas: deltas,
		Depth:  n.Depth + 1,
		Bound:  n.Bound,
		warm:   warm,
	}
}

// path returns the nodes whose deltas must be undone, deepest first, and
// the nodes whose deltas must be applied, shallowest first, to move a box
// from node from to node to. The walk meets at their lowest common
// ancestor.
func path(from, to *Node) (up, down []*Node) {
	a, b := from, to
	for a.Depth > b.Depth {
		up = append(up, a)
		a = a.Parent
	}
	for b.Depth > a.Depth {
		down = append(down, b)
		b = b.Parent
	}
	for a != b {
		up = append(up, a)
		a = a.Parent
		down = append(down, b)
		b = b.Parent
	}
	for i, j := 0, len(down)-1; i < j; i, j = i+1, j-1 {
		down[i], down[j] = down[j], down[i]
	}
	return up, down
}
