package forest

import (
	"math/rand/v2"
	"sort"
)

// featureThreshold is the smallest gap between adjacent feature values that
// can separate two samples.
const featureThreshold = 1e-7

type node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
	Samples   int     `json:"n"`
}

func (n node) leaf() bool {
	return n.Left < 0
}

// Tree is a CART regression tree stored as a flat node slice rooted at 0.
type Tree struct {
	Nodes []node `json:"nodes"`
}

func (t *Tree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.leaf() {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth is the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.leaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

type treeBuilder struct {
	x         [][]float64
	y         []float64
	params    Params
	nFeatures int
	rng       *rand.Rand
	nodes     []node
	scratch   []int
}

type split struct {
	feature   int
	threshold float64
	score     float64
}

func fitTree(x [][]float64, y []float64, params Params, seed uint64) *Tree {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	n := len(y)
	idx := make([]int, n)
	if params.Bootstrap {
		for i := range idx {
			idx[i] = rng.IntN(n)
		}
	} else {
		for i := range idx {
			idx[i] = i
		}
	}
	b := &treeBuilder{
		x:         x,
		y:         y,
		params:    params,
		nFeatures: params.maxFeatureCount(len(x[0])),
		rng:       rng,
		scratch:   make([]int, n),
	}
	b.build(idx, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) build(idx []int, depth int) int {
	var sum, sumSq float64
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	n := len(idx)
	mean := sum / float64(n)

	id := len(b.nodes)
	b.nodes = append(b.nodes, node{Feature: -1, Left: -1, Right: -1, Value: mean, Samples: n})

	if b.params.MaxDepth > 0 && depth >= b.params.MaxDepth {
		return id
	}
	if n < b.params.MinSamplesSplit || n < 2*b.params.MinSamplesLeaf {
		return id
	}
	if sumSq/float64(n)-mean*mean <= 1e-12 {
		return id
	}

	s, ok := b.bestSplit(idx, sum)
	if !ok {
		return id
	}
	left := make([]int, 0, n)
	right := make([]int, 0, n)
	for _, i := range idx {
		if b.x[i][s.feature] <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id].Feature = s.feature
	b.nodes[id].Threshold = s.threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

// bestSplit maximizes sumL²/nL + sumR²/nR, which is equivalent to minimizing
// the weighted squared error of the children.
func (b *treeBuilder) bestSplit(idx []int, total float64) (split, bool) {
	n := len(idx)
	minLeaf := b.params.MinSamplesLeaf
	best := split{feature: -1, score: total * total / float64(n)}
	sorted := b.scratch[:n]

	features := b.rng.Perm(len(b.x[0]))[:b.nFeatures]
	for _, f := range features {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.x[sorted[a]][f] < b.x[sorted[c]][f] })

		var leftSum float64
		for i := 0; i < n-1; i++ {
			leftSum += b.y[sorted[i]]
			nl, nr := i+1, n-i-1
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			cur, next := b.x[sorted[i]][f], b.x[sorted[i+1]][f]
			if next <= cur+featureThreshold {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr)
			if score > best.score+1e-12 {
				threshold := cur/2 + next/2
				if threshold >= next {
					threshold = cur
				}
				best = split{feature: f, threshold: threshold, score: score}
			}
		}
	}
	return best, best.feature >= 0
}
