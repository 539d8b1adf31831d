package forest

import (
	"math/rand/v2"
	"sort"
)

// node is either a split (left/right set) or a leaf (proba set)
type node struct {
	feature   int
	threshold float64
	left      int32
	right     int32
	proba     []float64
}

func (n *node) leaf() bool { return n.proba != nil }

// tree is a CART classifier stored as a flat node slice; nodes[0] is the root
type tree struct {
	nodes []node
	depth int
}

func (t *tree) predict(x []float64) []float64 {
	i := int32(0)
	for {
		n := &t.nodes[i]
		if n.leaf() {
			return n.proba
		}
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

type builder struct {
	x           [][]float64
	y           []int
	classes     int
	maxFeatures int
	cfg         Config
	rng         *rand.Rand
	t           *tree
}

func (b *builder) counts(idx []int) []int {
	c := make([]int, b.classes)
	for _, i := range idx {
		c[b.y[i]]++
	}
	return c
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		sum += p * p
	}
	return 1 - sum
}

func pure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func (b *builder) makeLeaf(id int, counts []int, n int) {
	proba := make([]float64, b.classes)
	for k, c := range counts {
		proba[k] = float64(c) / float64(n)
	}
	b.t.nodes[id] = node{proba: proba}
}

func (b *builder) build(idx []int, depth int) int32 {
	id := len(b.t.nodes)
	b.t.nodes = append(b.t.nodes, node{})
	if depth > b.t.depth {
		b.t.depth = depth
	}

	counts := b.counts(idx)
	if pure(counts) || len(idx) < b.cfg.MinSamplesSplit || (b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth) {
		b.makeLeaf(id, counts, len(idx))
		return int32(id)
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		b.makeLeaf(id, counts, len(idx))
		return int32(id)
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.t.nodes[id] = node{feature: feature, threshold: threshold, left: l, right: r}
	return int32(id)
}

// bestSplit visits features in random order until maxFeatures non-constant
// ones have been scored, and returns the lowest weighted Gini split.
func (b *builder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	sorted := make([]int, n)
	leftCounts := make([]int, b.classes)
	rightCounts := make([]int, b.classes)

	bestFeature, bestThreshold, bestScore := -1, 0.0, 0.0
	scored := 0

	for _, f := range b.rng.Perm(len(b.x[0])) {
		if scored >= b.maxFeatures {
			break
		}

		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })
		if b.x[sorted[0]][f] == b.x[sorted[n-1]][f] {
			continue
		}
		scored++

		for k := range leftCounts {
			leftCounts[k] = 0
			rightCounts[k] = 0
		}
		for _, i := range sorted {
			rightCounts[b.y[i]]++
		}

		for k := 0; k < n-1; k++ {
			c := b.y[sorted[k]]
			leftCounts[c]++
			rightCounts[c]--

			lo, hi := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if lo == hi {
				continue
			}

			nl, nr := k+1, n-k-1
			score := (float64(nl)*gini(leftCounts, nl) + float64(nr)*gini(rightCounts, nr)) / float64(n)
			if bestFeature < 0 || score < bestScore {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				bestFeature, bestThreshold, bestScore = f, threshold, score
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}
