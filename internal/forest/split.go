package forest

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
)

// TrainTestSplit shuffles row indices and holds out floor(n*testRatio) of them.
func TrainTestSplit(n int, testRatio float64, rng *rand.Rand) (train, test []int) {
	perm := rng.Perm(n)
	nTest := int(float64(n) * testRatio)
	if nTest < 0 {
		nTest = 0
	}
	if nTest > n {
		nTest = n
	}
	return perm[nTest:], perm[:nTest]
}

// R2 is the coefficient of determination of predicted against observed.
// It is NaN for fewer than two observations.
func R2(observed, predicted []float64) float64 {
	if len(observed) < 2 || len(observed) != len(predicted) {
		return math.NaN()
	}
	return stat.RSquaredFrom(predicted, observed, nil)
}
