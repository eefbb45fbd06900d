package config

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/utils"
)

// Compile resolves names to indices and builds the root box. Lower bounds
// and zero-probability upper bounds are floored at minLogProb.
func (p *Problem) Compile(minLogProb float64) (*models.Instance, error) {
	in := &models.Instance{
		Name:           p.Name,
		ConditionNames: make([]string, len(p.Conditions)),
		OutcomeNames:   make([][]string, len(p.Conditions)),
	}
	lookup := make(map[string]map[string]models.Index, len(p.Conditions))
	for c, cond := range p.Conditions {
		in.ConditionNames[c] = cond.Name
		in.OutcomeNames[c] = append([]string(nil), cond.Outcomes...)
		lookup[cond.Name] = make(map[string]models.Index, len(cond.Outcomes))
		for m, o := range cond.Outcomes {
			lookup[cond.Name][o] = models.Index{C: c, M: m}
		}
	}
	resolve := func(cond, outcome string) (models.Index, error) {
		outcomes, ok := lookup[cond]
		if !ok {
			return models.Index{}, fmt.Errorf("unknown condition %q", cond)
		}
		idx, ok := outcomes[outcome]
		if !ok {
			return models.Index{}, fmt.Errorf("condition %s: unknown outcome %q", cond, outcome)
		}
		return idx, nil
	}

	in.Candidates = make([][]models.Structure, len(p.Sentences))
	for s, sent := range p.Sentences {
		for _, spec := range sent.Structures {
			st := models.Structure{Sentence: s, Name: spec.Name}
			for _, f := range spec.Features {
				idx, err := resolve(f.Condition, f.Outcome)
				if err != nil {
					return nil, fmt.Errorf("sentence %s, structure %s: %w", sent.Name, spec.Name, err)
				}
				st.Features = append(st.Features, models.FeatureCount{Index: idx, Count: f.Count})
			}
			in.Candidates[s] = append(in.Candidates[s], st)
		}
	}

	in.RootLb = make([][]float64, len(p.Conditions))
	in.RootUb = make([][]float64, len(p.Conditions))
	for c, cond := range p.Conditions {
		in.RootLb[c] = make([]float64, len(cond.Outcomes))
		in.RootUb[c] = make([]float64, len(cond.Outcomes))
		for m := range cond.Outcomes {
			in.RootLb[c][m] = minLogProb
			in.RootUb[c][m] = 0
		}
	}
	floor := func(p float64) float64 {
		return math.Max(utils.SafeLog(p), minLogProb)
	}
	for _, b := range p.Bounds {
		idx, err := resolve(b.Condition, b.Outcome)
		if err != nil {
			return nil, fmt.Errorf("bounds: %w", err)
		}
		if b.Min != nil {
			in.RootLb[idx.C][idx.M] = floor(*b.Min)
		}
		if b.Max != nil {
			in.RootUb[idx.C][idx.M] = floor(*b.Max)
		}
		if in.RootLb[idx.C][idx.M] > in.RootUb[idx.C][idx.M] {
			return nil, fmt.Errorf("bounds: %s/%s has min above max", b.Condition, b.Outcome)
		}
	}

	if p.Initial != nil {
		inc, err := p.compileInitial(in, floor)
		if err != nil {
			return nil, fmt.Errorf("initial: %w", err)
		}
		in.Initial = inc
	}
	return in, nil
}

func (p *Problem) compileInitial(in *models.Instance, floor func(float64) float64) (*models.Incumbent, error) {
	inc := &models.Incumbent{
		Structures: make([]models.Structure, len(p.Sentences)),
		LogProbs:   make([][]float64, len(p.Conditions)),
	}
	for s, k := range p.Initial.Structures {
		inc.Structures[s] = in.Candidates[s][k]
	}
	for c, cond := range p.Conditions {
		probs, ok := p.Initial.Probabilities[cond.Name]
		inc.LogProbs[c] = make([]float64, len(cond.Outcomes))
		for m := range cond.Outcomes {
			if ok {
				inc.LogProbs[c][m] = floor(probs[m])
			} else {
				inc.LogProbs[c][m] = -math.Log(float64(len(cond.Outcomes)))
			}
		}
	}
	inc.Objective = models.Objective(inc.Structures, inc.LogProbs)
	return inc, nil
}
