// Package forest implements a bagged regression-tree ensemble.
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// ErrDegenerate marks training input a forest cannot be fitted on.
var ErrDegenerate = errors.New("forest: degenerate training data")

// Params are the ensemble hyperparameters. Zero values select the defaults.
type Params struct {
	Trees           int
	MaxDepth        int // 0 grows until leaves are pure or too small
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 uses floor(sqrt(p))
}

// DefaultParams mirrors the usual library defaults for a random forest regressor.
func DefaultParams() Params {
	return Params{
		Trees:           10,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Trees <= 0 {
		p.Trees = d.Trees
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = d.MinSamplesSplit
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = d.MinSamplesLeaf
	}
	if p.MaxDepth < 0 {
		p.MaxDepth = 0
	}
	return p
}

// Regressor is a fitted forest.
type Regressor struct {
	trees    []tree
	features int
}

// Fit grows Params.Trees trees, each on a bootstrap sample of the rows.
func Fit(x [][]float64, y []float64, params Params, rng *rand.Rand) (*Regressor, error) {
	if err := validate(x, y); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("forest: nil random source")
	}
	params = params.withDefaults()

	nFeatures := len(x[0])
	mtry := params.MaxFeatures
	if mtry <= 0 {
		mtry = int(math.Floor(math.Sqrt(float64(nFeatures))))
	}
	if mtry < 1 {
		mtry = 1
	}
	if mtry > nFeatures {
		mtry = nFeatures
	}

	builder := &treeBuilder{x: x, y: y, params: params, mtry: mtry, rng: rng}
	reg := &Regressor{trees: make([]tree, params.Trees), features: nFeatures}
	for t := range reg.trees {
		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = rng.IntN(len(x))
		}
		reg.trees[t] = tree{root: builder.build(sample, 0)}
	}
	return reg, nil
}

// Predict averages the trees for every row.
func (r *Regressor) Predict(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != r.features {
			return nil, fmt.Errorf("forest: row %d has %d features, model expects %d", i, len(row), r.features)
		}
		var sum float64
		for _, t := range r.trees {
			sum += t.predict(row)
		}
		out[i] = sum / float64(len(r.trees))
	}
	return out, nil
}

// Features reports the number of columns the model was trained on.
func (r *Regressor) Features() int { return r.features }

func validate(x [][]float64, y []float64) error {
	if len(x) != len(y) {
		return fmt.Errorf("%w: %d rows but %d labels", ErrDegenerate, len(x), len(y))
	}
	if len(x) < 2 {
		return fmt.Errorf("%w: need at least 2 rows, got %d", ErrDegenerate, len(x))
	}
	width := len(x[0])
	if width == 0 {
		return fmt.Errorf("%w: zero feature columns", ErrDegenerate)
	}
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d columns, expected %d", ErrDegenerate, i, len(row), width)
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return fmt.Errorf("%w: label %d is not finite", ErrDegenerate, i)
		}
	}
	if distinctRows(x, y) < 2 {
		return fmt.Errorf("%w: fewer than 2 distinct examples", ErrDegenerate)
	}
	return nil
}

func distinctRows(x [][]float64, y []float64) int {
	seen := make(map[string]struct{}, len(x))
	for i, row := range x {
		key := fmt.Sprint(row, y[i])
		seen[key] = struct{}{}
		if len(seen) >= 2 {
			return len(seen)
		}
	}
	return len(seen)
}
