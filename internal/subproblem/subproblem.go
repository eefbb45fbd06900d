// Package subproblem prices discrete structures for the relaxations.
package subproblem

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
)

// ErrNoStructure is returned when a sentence has no candidate structure.
var ErrNoStructure = errors.New("no structure for sentence")

// Solver returns, for one sentence, the structure maximising Σ f·w under
// per-parameter weights. Results must be deterministic for equal weights.
type Solver interface {
	NumSentences() int
	Solve(ctx context.Context, sentence int, weights [][]float64) (models.Structure, float64, error)
}

// FeatureBounder reports the largest count any structure of a sentence can
// place on each parameter.
type FeatureBounder interface {
	MaxCounts(sentence int) map[models.Index]float64
}

// Enumerator lists every structure of a sentence.
type Enumerator interface {
	Candidates(sentence int) []models.Structure
}

// Table is a Solver over an explicit list of candidate structures per
// sentence. Ties go to the earliest candidate.
type Table struct {
	candidates [][]models.Structure
	maxCounts  []map[models.Index]float64
}

var (
	_ Solver         = (*Table)(nil)
	_ FeatureBounder = (*Table)(nil)
	_ Enumerator     = (*Table)(nil)
)

// NewTable builds a table solver. Every sentence needs at least one
// candidate.
func NewTable(candidates [][]models.Structure) (*Table, error) {
	t := &Table{
		candidates: candidates,
		maxCounts:  make([]map[models.Index]float64, len(candidates)),
	}
	for s, list := range candidates {
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: %d", ErrNoStructure, s)
		}
		t.maxCounts[s] = make(map[models.Index]float64)
		for _, st := range list {
			for idx, v := range st.Counts() {
				if v > t.maxCounts[s][idx] {
					t.maxCounts[s][idx] = v
				}
			}
		}
	}
	return t, nil
}

// NewTableFromInstance builds a table solver from a compiled problem.
func NewTableFromInstance(in *models.Instance) (*Table, error) {
	return NewTable(in.Candidates)
}

func (t *Table) NumSentences() int {
	return len(t.candidates)
}

func (t *Table) Solve(ctx context.Context, sentence int, weights [][]float64) (models.Structure, float64, error) {
	if err := ctx.Err(); err != nil {
		return models.Structure{}, 0, err
	}
	if sentence < 0 || sentence >= len(t.candidates) {
		return models.Structure{}, 0, fmt.Errorf("%w: %d", ErrNoStructure, sentence)
	}
	best, bestScore := -1, math.Inf(-1)
	for k, st := range t.candidates[sentence] {
		if score := st.Score(weights); best < 0 || score > bestScore {
			best, bestScore = k, score
		}
	}
	return t.candidates[sentence][best], bestScore, nil
}

func (t *Table) MaxCounts(sentence int) map[models.Index]float64 {
	return t.maxCounts[sentence]
}

func (t *Table) Candidates(sentence int) []models.Structure {
	return t.candidates[sentence]
}

// TotalMaxCounts sums the per-sentence maxima: an upper bound on the total
// count of each parameter over the whole corpus.
func TotalMaxCounts(fb FeatureBounder, numSentences int) map[models.Index]float64 {
	out := make(map[models.Index]float64)
	for s := 0; s < numSentences; s++ {
		for idx, v := range fb.MaxCounts(s) {
			out[idx] += v
		}
	}
	return out
}
