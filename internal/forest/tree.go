package forest

import (
	"math"
	"math/rand/v2"
	"sort"
)

type node struct {
	feature   int
	threshold float64
	value     float64
	left      *node
	right     *node
}

func (n *node) leaf() bool { return n.left == nil }

// tree is a CART regression tree split on squared error.
type tree struct {
	root *node
}

type treeBuilder struct {
	x      [][]float64
	y      []float64
	params Params
	mtry   int
	rng    *rand.Rand
}

func (b *treeBuilder) build(idx []int, depth int) *node {
	mean := meanOf(b.y, idx)
	n := &node{value: mean}

	if len(idx) < b.params.MinSamplesSplit || len(idx) < 2*b.params.MinSamplesLeaf {
		return n
	}
	if b.params.MaxDepth > 0 && depth >= b.params.MaxDepth {
		return n
	}
	if pureLabels(b.y, idx) {
		return n
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return n
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return n
	}

	n.feature = feature
	n.threshold = threshold
	n.left = b.build(left, depth+1)
	n.right = b.build(right, depth+1)
	return n
}

// bestSplit scans features in random order and returns the split with the
// largest reduction in summed squared error. Features constant within the node
// do not count towards mtry.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	nFeatures := len(b.x[idx[0]])
	features := b.rng.Perm(nFeatures)
	visited := 0

	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	total, totalSq := sums(b.y, idx)
	count := float64(len(idx))
	parentSSE := totalSq - total*total/count

	order := make([]int, len(idx))
	for _, f := range features {
		if visited == b.mtry {
			break
		}
		copy(order, idx)
		sort.SliceStable(order, func(i, j int) bool {
			return b.x[order[i]][f] < b.x[order[j]][f]
		})
		if b.x[order[0]][f] == b.x[order[len(order)-1]][f] {
			continue
		}
		visited++

		var leftSum, leftSq float64
		for k := 0; k < len(order)-1; k++ {
			yk := b.y[order[k]]
			leftSum += yk
			leftSq += yk * yk

			cur := b.x[order[k]][f]
			next := b.x[order[k+1]][f]
			if cur == next {
				continue
			}
			nLeft := k + 1
			nRight := len(order) - nLeft
			if nLeft < b.params.MinSamplesLeaf || nRight < b.params.MinSamplesLeaf {
				continue
			}

			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nLeft)) + (rightSq - rightSum*rightSum/float64(nRight))
			gain := parentSSE - sse
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
				if math.IsInf(bestThreshold, 0) || math.IsNaN(bestThreshold) {
					bestThreshold = cur
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func (t *tree) predict(row []float64) float64 {
	n := t.root
	for !n.leaf() {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

func meanOf(y []float64, idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func sums(y []float64, idx []int) (sum, sq float64) {
	for _, i := range idx {
		sum += y[i]
		sq += y[i] * y[i]
	}
	return sum, sq
}

func pureLabels(y []float64, idx []int) bool {
	first := y[idx[0]]
	for _, i := range idx[1:] {
		if y[i] != first {
			return false
		}
	}
	return true
}
