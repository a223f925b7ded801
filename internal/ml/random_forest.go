package ml

import (
	"fmt"
	"math/rand"
	"sort"
)

// Regressor predicts a single continuous target from a feature row.
type Regressor interface {
	Predict(x []float64) (float64, error)
}

// RandomForestRegressor averages bootstrapped regression trees grown with
// squared-error splits over every feature.
type RandomForestRegressor struct {
	NEstimators     int // default 100
	MaxDepth        int // 0 means unbounded
	MinSamplesSplit int // default 2
	Seed            int64

	trees []regressionTree
	width int
}

type regressionNode struct {
	feature     int
	threshold   float64
	left, right int
	value       float64
	leaf        bool
}

type regressionTree struct {
	nodes []regressionNode
}

// Fit grows the forest on X and targets y.
func (f *RandomForestRegressor) Fit(X [][]float64, y []float64) error {
	width, err := checkMatrix(X)
	if err != nil {
		return err
	}
	if len(y) != len(X) {
		return fmt.Errorf("%w: %d rows but %d targets", ErrShapeMismatch, len(X), len(y))
	}
	if _, err := checkMatrix([][]float64{y}); err != nil {
		return err
	}

	estimators := f.NEstimators
	if estimators <= 0 {
		estimators = 100
	}
	minSplit := f.MinSamplesSplit
	if minSplit < 2 {
		minSplit = 2
	}

	rng := rand.New(rand.NewSource(f.Seed))
	n := len(X)
	f.trees = make([]regressionTree, estimators)
	for t := range f.trees {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		tree := regressionTree{}
		tree.grow(X, y, sample, 0, f.MaxDepth, minSplit, width)
		f.trees[t] = tree
	}
	f.width = width
	return nil
}

func (t *regressionTree) grow(X [][]float64, y []float64, idx []int, depth, maxDepth, minSplit, width int) int {
	node := len(t.nodes)
	t.nodes = append(t.nodes, regressionNode{value: meanOf(y, idx), leaf: true})
	if len(idx) < minSplit || (maxDepth > 0 && depth >= maxDepth) {
		return node
	}

	feature, threshold, ok := bestSplit(X, y, idx, width)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := t.grow(X, y, left, depth+1, maxDepth, minSplit, width)
	r := t.grow(X, y, right, depth+1, maxDepth, minSplit, width)
	t.nodes[node] = regressionNode{feature: feature, threshold: threshold, left: l, right: r, value: t.nodes[node].value}
	return node
}

// bestSplit finds the threshold with the largest reduction in squared error.
// It reports false when no split improves on the parent.
func bestSplit(X [][]float64, y []float64, idx []int, width int) (int, float64, bool) {
	n := float64(len(idx))
	var total, totalSq float64
	for _, i := range idx {
		total += y[i]
		totalSq += y[i] * y[i]
	}
	parentSSE := totalSq - total*total/n
	if parentSSE <= 1e-12*(1+totalSq) {
		return 0, 0, false
	}

	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0
	order := append([]int(nil), idx...)
	for feature := 0; feature < width; feature++ {
		sort.SliceStable(order, func(a, b int) bool {
			return X[order[a]][feature] < X[order[b]][feature]
		})

		var leftSum, leftSq float64
		for k := 0; k < len(order)-1; k++ {
			yi := y[order[k]]
			leftSum += yi
			leftSq += yi * yi

			cur, next := X[order[k]][feature], X[order[k+1]][feature]
			if cur == next {
				continue
			}
			nl := float64(k + 1)
			nr := n - nl
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if gain := parentSSE - sse; gain > bestGain {
				bestGain = gain
				bestFeature = feature
				bestThreshold = cur + (next-cur)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func meanOf(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func (t *regressionTree) predict(x []float64) float64 {
	node := 0
	for !t.nodes[node].leaf {
		n := t.nodes[node]
		if x[n.feature] <= n.threshold {
			node = n.left
		} else {
			node = n.right
		}
	}
	return t.nodes[node].value
}

// Predict averages the trees' predictions for x.
func (f *RandomForestRegressor) Predict(x []float64) (float64, error) {
	if f.trees == nil {
		return 0, ErrNotFitted
	}
	if len(x) != f.width {
		return 0, fmt.Errorf("%w: got %d features, forest fitted on %d", ErrShapeMismatch, len(x), f.width)
	}
	if _, err := checkMatrix([][]float64{x}); err != nil {
		return 0, err
	}

	sum := 0.0
	for t := range f.trees {
		sum += f.trees[t].predict(x)
	}
	return sum / float64(len(f.trees)), nil
}
