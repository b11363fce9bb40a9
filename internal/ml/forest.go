package ml

import (
	"context"
	"math"
	"math/rand"
	"runtime"

	"clinical-ensemble/internal/dataset"
	"clinical-ensemble/internal/imbalance"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Forest is the bagged-tree variant. Each tree is grown on a bootstrap resample
// with sqrt(p) features considered per split, and splits minimise gini impurity
// weighted by class weight times bootstrap multiplicity.
type Forest struct {
	trees       []*node
	importances []float64
}

func fitForest(ctx context.Context, set *dataset.Dataset, weights imbalance.ClassWeights, p Params, seed int64) (*Forest, error) {
	n, dim := set.Len(), set.Dim()
	maxFeatures := max(1, int(math.Sqrt(float64(dim))))

	trees := make([]*node, p.EnsembleSize)
	perTree := make([][]float64, p.EnsembleSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := 0; t < p.EnsembleSize; t++ {
		t := t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rnd := rand.New(rand.NewSource(seed + int64(t)))
			gr := newGrower(set.Records, giniCriterion{}, p.MaxDepth, maxFeatures, rnd)

			counts := make([]int, n)
			for j := 0; j < n; j++ {
				counts[rnd.Intn(n)]++
			}
			idx := make([]int, 0, n)
			for i, c := range counts {
				if c == 0 {
					continue
				}
				w := float64(c) * weights.Of(set.Labels[i])
				gr.s2[i] = w
				gr.s1[i] = w * float64(set.Labels[i])
				idx = append(idx, i)
			}

			trees[t] = gr.grow(idx, 0)
			perTree[t] = gr.importance
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	imp := averageImportances(perTree, dim)

	log.Debug().
		Int("trees", len(trees)).
		Int("max_features", maxFeatures).
		Int("first_tree_depth", trees[0].depth()).
		Msg("Forest grown")

	return &Forest{trees: trees, importances: imp}, nil
}

// averageImportances averages the per-tree normalised gains. Trees that never
// split carry no gain and are left out; if no tree split at all the result is uniform.
func averageImportances(perTree [][]float64, dim int) []float64 {
	imp := make([]float64, dim)
	for _, gain := range perTree {
		var total float64
		for _, v := range gain {
			total += v
		}
		if total <= 0 {
			continue
		}
		for f, v := range gain {
			imp[f] += v / total
		}
	}
	return normalize(imp)
}

func (f *Forest) Variant() Variant { return VariantBagged }

// PredictProbability averages the leaf probabilities of every tree.
func (f *Forest) PredictProbability(r dataset.FeatureRecord) float64 {
	var sum float64
	for _, t := range f.trees {
		sum += t.eval(r)
	}
	return sum / float64(len(f.trees))
}

func (f *Forest) Predict(r dataset.FeatureRecord) dataset.Label {
	return labelFor(f.PredictProbability(r))
}

func (f *Forest) FeatureImportances() []float64 {
	out := make([]float64, len(f.importances))
	copy(out, f.importances)
	return out
}

// Size is the number of trees.
func (f *Forest) Size() int { return len(f.trees) }
