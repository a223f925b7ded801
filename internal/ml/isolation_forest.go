package ml

import (
	"fmt"
	"math"
	"math/rand"
)

const eulerGamma = 0.5772156649

// IsolationForest scores outliers by how quickly random axis-aligned splits
// isolate them. Fitting does not depend on Contamination, which only moves
// the decision offset; for a fixed seed, raising Contamination can only add
// outliers.
type IsolationForest struct {
	NEstimators   int     // default 100
	MaxSamples    int     // 0 means min(256, n)
	Contamination float64 // expected outlier fraction, (0, 0.5]
	Seed          int64

	trees      []isolationTree
	psi        int
	offset     float64
	normalizer float64
}

type isolationNode struct {
	feature     int
	threshold   float64
	left, right int
	size        int
	leaf        bool
}

type isolationTree struct {
	nodes []isolationNode
}

// Fit grows the ensemble on X and calibrates the decision offset.
func (f *IsolationForest) Fit(X [][]float64) error {
	width, err := checkMatrix(X)
	if err != nil {
		return err
	}
	if f.Contamination <= 0 || f.Contamination > 0.5 {
		return fmt.Errorf("ml: contamination %.4f out of range (0, 0.5]", f.Contamination)
	}

	n := len(X)
	estimators := f.NEstimators
	if estimators <= 0 {
		estimators = 100
	}
	psi := f.MaxSamples
	if psi <= 0 || psi > n {
		psi = min(256, n)
	}
	heightLimit := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))

	rng := rand.New(rand.NewSource(f.Seed))
	f.trees = make([]isolationTree, estimators)
	for t := range f.trees {
		treeRng := rand.New(rand.NewSource(rng.Int63()))
		sample := treeRng.Perm(n)[:psi]
		tree := isolationTree{}
		tree.grow(X, sample, 0, heightLimit, width, treeRng)
		f.trees[t] = tree
	}
	f.psi = psi
	f.normalizer = averagePathLength(psi)

	scores := f.scoreSamples(X)
	f.offset = Percentile(scores, 100*f.Contamination)
	return nil
}

// grow appends the subtree for idx and returns its node index.
func (t *isolationTree) grow(X [][]float64, idx []int, depth, limit, width int, rng *rand.Rand) int {
	node := len(t.nodes)
	t.nodes = append(t.nodes, isolationNode{size: len(idx), leaf: true})
	if depth >= limit || len(idx) <= 1 {
		return node
	}

	// Draw features without replacement until one is not constant on this node.
	for _, feature := range rng.Perm(width) {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			v := X[i][feature]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if hi <= lo {
			continue
		}

		threshold := lo + rng.Float64()*(hi-lo)
		var left, right []int
		for _, i := range idx {
			if X[i][feature] <= threshold {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}

		l := t.grow(X, left, depth+1, limit, width, rng)
		r := t.grow(X, right, depth+1, limit, width, rng)
		t.nodes[node] = isolationNode{feature: feature, threshold: threshold, left: l, right: r, size: len(idx)}
		return node
	}
	return node
}

func (t *isolationTree) pathLength(x []float64) float64 {
	node := 0
	depth := 0.0
	for !t.nodes[node].leaf {
		n := t.nodes[node]
		if x[n.feature] <= n.threshold {
			node = n.left
		} else {
			node = n.right
		}
		depth++
	}
	return depth + averagePathLength(t.nodes[node].size)
}

// averagePathLength is the expected path length of an unsuccessful BST search over n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

func (f *IsolationForest) scoreSamples(X [][]float64) []float64 {
	scores := make([]float64, len(X))
	for i, x := range X {
		total := 0.0
		for t := range f.trees {
			total += f.trees[t].pathLength(x)
		}
		mean := total / float64(len(f.trees))
		scores[i] = -math.Pow(2, -mean/f.normalizer)
	}
	return scores
}

// ScoreSamples returns the opposite of the anomaly score: lower is more abnormal,
// in [-1, 0].
func (f *IsolationForest) ScoreSamples(X [][]float64) ([]float64, error) {
	if f.trees == nil {
		return nil, ErrNotFitted
	}
	if _, err := checkMatrix(X); err != nil {
		return nil, err
	}
	return f.scoreSamples(X), nil
}

// DecisionFunction returns ScoreSamples shifted by the fitted offset; negative values are outliers.
func (f *IsolationForest) DecisionFunction(X [][]float64) ([]float64, error) {
	scores, err := f.ScoreSamples(X)
	if err != nil {
		return nil, err
	}
	for i := range scores {
		scores[i] -= f.offset
	}
	return scores, nil
}

// Predict labels each row -1 for outliers and 1 for inliers.
func (f *IsolationForest) Predict(X [][]float64) ([]int, error) {
	decision, err := f.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(decision))
	for i, d := range decision {
		labels[i] = 1
		if d < 0 {
			labels[i] = -1
		}
	}
	return labels, nil
}

// Offset is the score percentile that separates inliers from outliers.
func (f *IsolationForest) Offset() float64 {
	return f.offset
}
