package search

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/gridsearch/pkg/config"
)

// Frontier is the priority queue of pending nodes. The ordering policy
// affects how fast the search prunes, never what it proves.
type Frontier struct {
	nodes []*Node
	less  func(a, b *Node) bool
}

// NewFrontier returns an empty frontier ordered by the named policy.
func NewFrontier(order string) (*Frontier, error) {
	f := &Frontier{}
	switch order {
	case config.OrderBestFirst, "":
		f.less = func(a, b *Node) bool {
			if a.Bound != b.Bound {
				return a.Bound > b.Bound
			}
			return a.ID < b.ID
		}
	case config.OrderBreadthFirst:
		f.less = func(a, b *Node) bool {
			if a.Depth != b.Depth {
				return a.Depth < b.Depth
			}
			return a.ID < b.ID
		}
	case config.OrderDepthFirst:
		f.less = func(a, b *Node) bool {
			if a.Depth != b.Depth {
				return a.Depth > b.Depth
			}
			return a.ID > b.ID
		}
	default:
		return nil, fmt.Errorf("unknown node order %q", order)
	}
	heap.Init(f)
	return f, nil
}

// Len, Less, Swap, Push and Pop implement heap.Interface.
func (f *Frontier) Len() int           { return len(f.nodes) }
func (f *Frontier) Less(i, j int) bool { return f.less(f.nodes[i], f.nodes[j]) }
func (f *Frontier) Swap(i, j int)      { f.nodes[i], f.nodes[j] = f.nodes[j], f.nodes[i] }

func (f *Frontier) Push(x any) {
	f.nodes = append(f.nodes, x.(*Node))
}

func (f *Frontier) Pop() any {
	old := f.nodes
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	f.nodes = old[:n-1]
	return node
}

// AddRoot enqueues the root regardless of any incumbent.
func (f *Frontier) AddRoot(n *Node) {
	heap.Push(f, n)
}

// Add enqueues n unless its bound cannot beat the incumbent.
func (f *Frontier) Add(n *Node, incumbent float64) bool {
	if n.Bound <= incumbent {
		return false
	}
	heap.Push(f, n)
	return true
}

// AddChildren enqueues the children of a resolved node and reports how
// many were kept.
func (f *Frontier) AddChildren(children []*Node, incumbent float64) int {
	kept := 0
	for _, c := range children {
		if f.Add(c, incumbent) {
			kept++
		}
	}
	return kept
}

// Next pops the next node whose bound can still beat the incumbent, or nil
// once none is left. Stale nodes are dropped and counted.
func (f *Frontier) Next(incumbent float64) (*Node, int) {
	dropped := 0
	for f.Len() > 0 {
		n := heap.Pop(f).(*Node)
		if n.Bound > incumbent {
			return n, dropped
		}
		dropped++
	}
	return nil, dropped
}

// BestBound is the largest bound among pending nodes, -Inf when empty.
func (f *Frontier) BestBound() float64 {
	best := math.Inf(-1)
	for _, n := range f.nodes {
		best = math.Max(best, n.Bound)
	}
	return best
}
