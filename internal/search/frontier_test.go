package search

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/gridsearch/pkg/config"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
)

func drain(f *Frontier, incumbent float64) []int {
	var ids []int
	for {
		n, _ := f.Next(incumbent)
		if n == nil {
			return ids
		}
		ids = append(ids, n.ID)
	}
}

func TestFrontierOrders(t *testing.T) {
	nodes := func() []*Node {
		return []*Node{
			{ID: 1, Depth: 1, Bound: -3},
			{ID: 2, Depth: 1, Bound: -1},
			{ID: 3, Depth: 2, Bound: -2},
			{ID: 4, Depth: 2, Bound: -1},
			{ID: 5, Depth: 3, Bound: -5},
		}
	}
	tests := []struct {
		order string
		want  []int
	}{
		{config.OrderBestFirst, []int{2, 4, 3, 1, 5}},
		{config.OrderBreadthFirst, []int{1, 2, 3, 4, 5}},
		{config.OrderDepthFirst, []int{5, 4, 3, 2, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.order, func(t *testing.T) {
			f, err := NewFrontier(tt.order)
			require.NoError(t, err)
			for _, n := range nodes() {
				require.True(t, f.Add(n, math.Inf(-1)))
			}
			assert.Equal(t, -1.0, f.BestBound())
			assert.Equal(t, tt.want, drain(f, math.Inf(-1)))
			assert.True(t, math.IsInf(f.BestBound(), -1))
		})
	}

	_, err := NewFrontier("random")
	assert.Error(t, err)
}

func TestFrontierDropsDominatedNodes(t *testing.T) {
	f, err := NewFrontier(config.OrderBreadthFirst)
	require.NoError(t, err)

	assert.False(t, f.Add(&Node{ID: 1, Bound: -2}, -2), "bound equal to incumbent is rejected")
	kept := f.AddChildren([]*Node{
		{ID: 2, Depth: 1, Bound: -1},
		{ID: 3, Depth: 1, Bound: -3},
		{ID: 4, Depth: 2, Bound: 0},
	}, -2.5)
	assert.Equal(t, 2, kept)

	// The incumbent improved since node 2 was queued.
	n, dropped := f.Next(-0.5)
	require.NotNil(t, n)
	assert.Equal(t, 4, n.ID)
	assert.Equal(t, 1, dropped)

	n, dropped = f.Next(-0.5)
	assert.Nil(t, n)
	assert.Zero(t, dropped)
}

func TestFrontierAcceptsRootWithoutBound(t *testing.T) {
	f, err := NewFrontier(config.OrderBestFirst)
	require.NoError(t, err)
	root := newRoot()
	f.AddRoot(root)
	n, _ := f.Next(0)
	assert.Same(t, root, n)
}

func TestIncumbentOfferKeepsBest(t *testing.T) {
	inc := NewIncumbent()
	assert.True(t, math.IsInf(inc.Objective(), -1))
	_, err := inc.Get()
	assert.ErrorIs(t, err, ErrNoIncumbent)

	assert.False(t, inc.Offer(nil))
	assert.False(t, inc.Offer(&models.Incumbent{Objective: math.NaN()}))
	assert.False(t, inc.Offer(&models.Incumbent{Objective: math.Inf(-1)}))

	assert.True(t, inc.Offer(&models.Incumbent{Objective: -4}))
	assert.False(t, inc.Offer(&models.Incumbent{Objective: -4}))
	assert.False(t, inc.Offer(&models.Incumbent{Objective: -5}))
	assert.True(t, inc.Offer(&models.Incumbent{Objective: -1.5}))

	got, err := inc.Get()
	require.NoError(t, err)
	assert.Equal(t, -1.5, got.Objective)
	assert.Equal(t, 2, inc.Updates())
}

func TestIncumbentConcurrentOffers(t *testing.T) {
	inc := NewIncumbent()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				inc.Offer(&models.Incumbent{Objective: -float64(w*100 + k)})
				_ = inc.Objective()
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 0.0, inc.Objective())
}
