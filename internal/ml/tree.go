package ml

import (
	"math/rand"
	"sort"

	"clinical-ensemble/internal/dataset"
)

const minSplitGain = 1e-10

// node is a binary tree node. Rows with x[feature] <= threshold go left.
// Leaves carry a value: a positive-class probability for classification trees,
// a raw score for boosting trees.
type node struct {
	feature     int
	threshold   float64
	left, right *node
	value       float64
}

func (n *node) eval(x dataset.FeatureRecord) float64 {
	for n.left != nil {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

func (n *node) depth() int {
	if n.left == nil {
		return 0
	}
	return 1 + max(n.left.depth(), n.right.depth())
}

// criterion scores a node from two per-row sums. Classification trees sum
// (weight*label, weight); boosting trees sum (gradient, hessian).
type criterion interface {
	score(s1, s2 float64) float64
	leaf(s1, s2 float64) float64
}

// giniCriterion scores by negative weighted gini impurity.
type giniCriterion struct{}

func (giniCriterion) score(pos, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return -2 * pos * (total - pos) / total
}

func (giniCriterion) leaf(pos, total float64) float64 {
	if total <= 0 {
		return 0.5
	}
	return pos / total
}

// newtonCriterion is the second-order logistic-loss objective with L2 on leaf values.
type newtonCriterion struct{ lambda float64 }

func (c newtonCriterion) score(g, h float64) float64 { return g * g / (h + c.lambda) }

func (c newtonCriterion) leaf(g, h float64) float64 { return -g / (h + c.lambda) }

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// grower builds one tree over a subset of rows. importance accumulates the
// criterion gain of every accepted split per feature.
type grower struct {
	records         []dataset.FeatureRecord
	s1, s2          []float64
	crit            criterion
	maxDepth        int
	maxFeatures     int
	minSamplesSplit int
	rnd             *rand.Rand
	importance      []float64
}

func newGrower(records []dataset.FeatureRecord, crit criterion, maxDepth, maxFeatures int, rnd *rand.Rand) *grower {
	dim := 0
	if len(records) > 0 {
		dim = len(records[0])
	}
	return &grower{
		records:         records,
		s1:              make([]float64, len(records)),
		s2:              make([]float64, len(records)),
		crit:            crit,
		maxDepth:        maxDepth,
		maxFeatures:     maxFeatures,
		minSamplesSplit: 2,
		rnd:             rnd,
		importance:      make([]float64, dim),
	}
}

func (g *grower) grow(idx []int, depth int) *node {
	var sum1, sum2 float64
	for _, i := range idx {
		sum1 += g.s1[i]
		sum2 += g.s2[i]
	}

	n := &node{value: g.crit.leaf(sum1, sum2)}
	if depth >= g.maxDepth || len(idx) < g.minSamplesSplit {
		return n
	}

	best, ok := g.bestSplit(idx, sum1, sum2)
	if !ok {
		return n
	}
	g.importance[best.feature] += best.gain

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if g.records[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	n.feature, n.threshold = best.feature, best.threshold
	n.left = g.grow(left, depth+1)
	n.right = g.grow(right, depth+1)
	return n
}

func (g *grower) bestSplit(idx []int, sum1, sum2 float64) (split, bool) {
	parent := g.crit.score(sum1, sum2)
	best := split{gain: minSplitGain}
	found := false

	order := make([]int, len(idx))
	for _, f := range g.candidateFeatures() {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return g.records[order[a]][f] < g.records[order[b]][f] })

		var l1, l2 float64
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			l1 += g.s1[i]
			l2 += g.s2[i]

			lo, hi := g.records[i][f], g.records[order[k+1]][f]
			if lo == hi {
				continue
			}

			gain := g.crit.score(l1, l2) + g.crit.score(sum1-l1, sum2-l2) - parent
			if gain > best.gain {
				thr := lo + (hi-lo)/2
				if thr >= hi {
					thr = lo
				}
				best = split{feature: f, threshold: thr, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

// candidateFeatures draws maxFeatures distinct features, or all of them when
// maxFeatures is unset.
func (g *grower) candidateFeatures() []int {
	p := len(g.importance)
	if g.maxFeatures <= 0 || g.maxFeatures >= p {
		all := make([]int, p)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return g.rnd.Perm(p)[:g.maxFeatures]
}
