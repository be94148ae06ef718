package forest

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func stepData() ([][]float64, []float64) {
	var x [][]float64
	var y []float64
	for i := 0; i < 40; i++ {
		x = append(x, []float64{float64(i), 5})
		if i < 20 {
			y = append(y, 10)
		} else {
			y = append(y, 50)
		}
	}
	return x, y
}

func TestFitLearnsStepFunction(t *testing.T) {
	x, y := stepData()
	reg, err := Fit(x, y, DefaultParams(), newRand())
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Features())

	got, err := reg.Predict([][]float64{{2, 5}, {35, 5}, {-100, 5}, {1000, 5}})
	require.NoError(t, err)
	assert.InDelta(t, 10, got[0], 1e-9)
	assert.InDelta(t, 50, got[1], 1e-9)
	assert.InDelta(t, 10, got[2], 1e-9)
	assert.InDelta(t, 50, got[3], 1e-9)
}

func TestFitIsDeterministicForSeed(t *testing.T) {
	x := make([][]float64, 30)
	y := make([]float64, 30)
	for i := range x {
		x[i] = []float64{float64(i), math.Sin(float64(i)), float64(i % 3)}
		y[i] = float64(i) + math.Cos(float64(i))
	}
	a, err := Fit(x, y, DefaultParams(), newRand())
	require.NoError(t, err)
	b, err := Fit(x, y, DefaultParams(), newRand())
	require.NoError(t, err)

	pa, err := a.Predict(x)
	require.NoError(t, err)
	pb, err := b.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestPredictStaysWithinLabelRange(t *testing.T) {
	x := make([][]float64, 25)
	y := make([]float64, 25)
	for i := range x {
		x[i] = []float64{float64(i)}
		y[i] = float64(i * i)
	}
	reg, err := Fit(x, y, Params{Trees: 5, MaxDepth: 3}, newRand())
	require.NoError(t, err)

	got, err := reg.Predict([][]float64{{-10}, {12}, {1e9}})
	require.NoError(t, err)
	for _, v := range got {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 576.0)
	}
}

func TestFitRejectsDegenerateInput(t *testing.T) {
	cases := map[string]struct {
		x [][]float64
		y []float64
	}{
		"length mismatch": {x: [][]float64{{1}, {2}}, y: []float64{1}},
		"single row":      {x: [][]float64{{1}}, y: []float64{1}},
		"no columns":      {x: [][]float64{{}, {}}, y: []float64{1, 2}},
		"ragged":          {x: [][]float64{{1, 2}, {3}}, y: []float64{1, 2}},
		"nan label":       {x: [][]float64{{1}, {2}}, y: []float64{1, math.NaN()}},
		"identical rows":  {x: [][]float64{{1, 1}, {1, 1}, {1, 1}}, y: []float64{3, 3, 3}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Fit(tc.x, tc.y, DefaultParams(), newRand())
			assert.ErrorIs(t, err, ErrDegenerate)
		})
	}
}

func TestFitToleratesInfiniteFeatures(t *testing.T) {
	x := [][]float64{{math.Inf(1)}, {1}, {2}, {3}, {math.Inf(-1)}}
	y := []float64{9, 1, 2, 3, 0}
	reg, err := Fit(x, y, DefaultParams(), newRand())
	require.NoError(t, err)

	got, err := reg.Predict([][]float64{{math.Inf(1)}})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(got[0]))
}

func TestPredictChecksWidth(t *testing.T) {
	x, y := stepData()
	reg, err := Fit(x, y, DefaultParams(), newRand())
	require.NoError(t, err)

	_, err = reg.Predict([][]float64{{1}})
	assert.Error(t, err)
}

func TestFitRequiresRandomSource(t *testing.T) {
	x, y := stepData()
	_, err := Fit(x, y, DefaultParams(), nil)
	assert.Error(t, err)
}

func TestTrainTestSplit(t *testing.T) {
	train, test := TrainTestSplit(58, 0.2, newRand())
	assert.Len(t, test, 11)
	assert.Len(t, train, 47)

	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, train...), test...) {
		assert.False(t, seen[i], "index %d repeated", i)
		seen[i] = true
	}
	assert.Len(t, seen, 58)

	train, test = TrainTestSplit(4, 0.2, newRand())
	assert.Empty(t, test)
	assert.Len(t, train, 4)
}

func TestR2(t *testing.T) {
	assert.InDelta(t, 1.0, R2([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-12)
	assert.InDelta(t, 0.0, R2([]float64{1, 2, 3}, []float64{2, 2, 2}), 1e-12)
	assert.True(t, math.IsNaN(R2([]float64{1}, []float64{1})))
	assert.True(t, math.IsNaN(R2(nil, nil)))
}
