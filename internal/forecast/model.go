package forecast

import (
	"errors"
	"math/rand/v2"

	"ohlc-forecast/internal/forest"
)

// DefaultTestRatio is the share of examples held out for validation.
const DefaultTestRatio = 0.2

// Validation summarises the held-out evaluation of a fitted model.
type Validation struct {
	R2        float64
	TrainRows int
	TestRows  int
}

// Model fits a random forest on a shuffled train split and predicts the next close.
// Fits are reproducible only when the injected random source is seeded.
type Model struct {
	params    forest.Params
	testRatio float64
	rng       *rand.Rand

	reg *forest.Regressor
}

// NewModel builds an unfitted model drawing all randomness from rng.
func NewModel(params forest.Params, testRatio float64, rng *rand.Rand) *Model {
	if testRatio < 0 || testRatio >= 1 {
		testRatio = DefaultTestRatio
	}
	return &Model{params: params, testRatio: testRatio, rng: rng}
}

// FitAndValidate fits on the train partition and scores R² on the test partition.
// R² is NaN when the test partition has fewer than two rows.
func (m *Model) FitAndValidate(examples []Example) (Validation, error) {
	trainIdx, testIdx := forest.TrainTestSplit(len(examples), m.testRatio, m.rng)

	trainX, trainY := Matrix(pick(examples, trainIdx))
	reg, err := forest.Fit(trainX, trainY, m.params, m.rng)
	if err != nil {
		if errors.Is(err, forest.ErrDegenerate) {
			return Validation{}, &ModelFitError{Reason: err.Error()}
		}
		return Validation{}, err
	}
	m.reg = reg

	v := Validation{TrainRows: len(trainIdx), TestRows: len(testIdx)}
	testX, testY := Matrix(pick(examples, testIdx))
	predicted, err := m.Predict(testX)
	if err != nil {
		return Validation{}, err
	}
	v.R2 = forest.R2(testY, predicted)
	return v, nil
}

// Predict returns one value per row. A single inference vector is a one-row batch.
func (m *Model) Predict(rows [][]float64) ([]float64, error) {
	if m.reg == nil {
		return nil, &ModelFitError{Reason: "model has not been fitted"}
	}
	return m.reg.Predict(rows)
}

// PredictOne predicts a single feature vector.
func (m *Model) PredictOne(vec []float64) (float64, error) {
	out, err := m.Predict([][]float64{vec})
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

func pick(examples []Example, idx []int) []Example {
	out := make([]Example, len(idx))
	for i, j := range idx {
		out[i] = examples[j]
	}
	return out
}
