package bounds

import (
	"fmt"
	"strings"

	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
)

// Delta adds Amount to one bound of one parameter.
type Delta struct {
	Index  models.Index
	Side   Side
	Amount float64
}

// Reverse returns the delta that undoes d.
func (d Delta) Reverse() Delta {
	return Delta{Index: d.Index, Side: d.Side, Amount: -d.Amount}
}

func (d Delta) String() string {
	return fmt.Sprintf("%s.%s%+g", d.Index, d.Side, d.Amount)
}

// DeltaList is an ordered group of deltas applied as one unit.
type DeltaList []Delta

// Reverse returns the list that undoes l: reverse order, each delta negated.
func (l DeltaList) Reverse() DeltaList {
	out := make(DeltaList, len(l))
	for i, d := range l {
		out[len(l)-1-i] = d.Reverse()
	}
	return out
}

// ApplyAll applies every delta in order.
func (l DeltaList) ApplyAll(s *Store) {
	for _, d := range l {
		s.Apply(d)
	}
}

// ReverseAll undoes l on s.
func (l DeltaList) ReverseAll(s *Store) {
	l.Reverse().ApplyAll(s)
}

func (l DeltaList) String() string {
	parts := make([]string, len(l))
	for i, d := range l {
		parts[i] = d.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
