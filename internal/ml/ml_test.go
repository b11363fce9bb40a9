package ml

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"clinical-ensemble/internal/dataset"
	"clinical-ensemble/internal/imbalance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// synthetic returns rows whose first feature separates the classes, the second
// is weakly informative and the third is noise.
func synthetic(t *testing.T, neg, pos int, seed int64) *dataset.Dataset {
	t.Helper()
	rnd := rand.New(rand.NewSource(seed))
	ds := dataset.New([]string{"signal", "weak", "noise"})
	add := func(l dataset.Label, shift float64) {
		r := dataset.FeatureRecord{
			rnd.NormFloat64() + 2.5*shift,
			rnd.NormFloat64() + 0.5*shift,
			rnd.NormFloat64(),
		}
		require.NoError(t, ds.Add(r, l))
	}
	for i := 0; i < neg; i++ {
		add(dataset.Negative, 0)
	}
	for i := 0; i < pos; i++ {
		add(dataset.Positive, 1)
	}
	return ds
}

func smallParams() Params {
	return Params{EnsembleSize: 25, MaxDepth: 4, LearningRate: 0.1, Subsample: 1}
}

func weightsFor(t *testing.T, ds *dataset.Dataset) imbalance.ClassWeights {
	t.Helper()
	w, err := imbalance.EstimateWeights(ds.Labels)
	require.NoError(t, err)
	return w
}

func accuracy(c Classifier, ds *dataset.Dataset) float64 {
	correct := 0
	for i, r := range ds.Records {
		if c.Predict(r) == ds.Labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(ds.Len())
}

func TestTrainer_BothVariants(t *testing.T) {
	train := synthetic(t, 150, 150, 1)
	test := synthetic(t, 100, 100, 2)
	metrics := &MockMetrics{}
	trainer := NewTrainer(smallParams(), metrics)

	for _, v := range []Variant{VariantBagged, VariantBoosted} {
		t.Run(string(v), func(t *testing.T) {
			model, err := trainer.Train(context.Background(), train, weightsFor(t, train), v, 42)
			require.NoError(t, err)
			assert.Equal(t, v, model.Variant())

			for _, p := range PredictAll(model, test) {
				assert.GreaterOrEqual(t, p, 0.0)
				assert.LessOrEqual(t, p, 1.0)
			}
			assert.Greater(t, accuracy(model, test), 0.8)

			imp := model.FeatureImportances()
			require.Len(t, imp, 3)
			var sum float64
			for _, x := range imp {
				assert.GreaterOrEqual(t, x, 0.0)
				sum += x
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
			assert.Greater(t, imp[0], imp[2], "signal should outrank noise")
		})
	}

	assert.Equal(t, 1, metrics.Trained(string(VariantBagged)))
	assert.Equal(t, 1, metrics.Trained(string(VariantBoosted)))
}

func TestTrainer_Deterministic(t *testing.T) {
	train := synthetic(t, 200, 50, 3)
	probe := synthetic(t, 30, 30, 4)
	w := weightsFor(t, train)
	params := smallParams()
	params.Subsample = 0.7

	for _, v := range []Variant{VariantBagged, VariantBoosted} {
		t.Run(string(v), func(t *testing.T) {
			a, err := NewTrainer(params, nil).Train(context.Background(), train, w, v, 9)
			require.NoError(t, err)
			b, err := NewTrainer(params, nil).Train(context.Background(), train, w, v, 9)
			require.NoError(t, err)

			assert.Equal(t, PredictAll(a, probe), PredictAll(b, probe))
			assert.Equal(t, a.FeatureImportances(), b.FeatureImportances())
		})
	}
}

func TestTrainer_Preconditions(t *testing.T) {
	metrics := &MockMetrics{}
	trainer := NewTrainer(Params{EnsembleSize: 50, MaxDepth: 3, LearningRate: 0.1, Subsample: 1}, metrics)
	ctx := context.Background()

	small := synthetic(t, 20, 10, 5)
	_, err := trainer.Train(ctx, small, weightsFor(t, small), VariantBagged, 1)
	assert.ErrorIs(t, err, ErrTrainingSetTooSmall)

	single := synthetic(t, 80, 0, 5)
	_, err = trainer.Train(ctx, single, imbalance.ClassWeights{dataset.Negative: 1}, VariantBoosted, 1)
	assert.ErrorIs(t, err, ErrDegenerateLabelSet)

	ok := synthetic(t, 60, 20, 5)
	_, err = trainer.Train(ctx, ok, weightsFor(t, ok), Variant("svm"), 1)
	assert.ErrorIs(t, err, ErrUnknownVariant)

	assert.Equal(t, 1, metrics.Failures(string(VariantBagged)))
	assert.Equal(t, 1, metrics.Failures(string(VariantBoosted)))
	assert.Equal(t, 0, metrics.Trained(string(VariantBagged)))
}

func TestTrainer_Cancelled(t *testing.T) {
	train := synthetic(t, 80, 40, 6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, v := range []Variant{VariantBagged, VariantBoosted} {
		_, err := NewTrainer(smallParams(), nil).Train(ctx, train, weightsFor(t, train), v, 1)
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant(" Boosted ")
	require.NoError(t, err)
	assert.Equal(t, VariantBoosted, v)

	_, err = ParseVariant("linear")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestBooster_PositiveWeightShiftsBase(t *testing.T) {
	train := synthetic(t, 240, 60, 7)
	params := Params{EnsembleSize: 1, MaxDepth: 1, LearningRate: 0.1, Subsample: 1}

	plain, err := fitBooster(context.Background(), train, 1, params, 1)
	require.NoError(t, err)
	weighted, err := fitBooster(context.Background(), train, 4, params, 1)
	require.NoError(t, err)

	assert.InDelta(t, math.Log(60.0/240.0), plain.base, 1e-12)
	assert.InDelta(t, 0, weighted.base, 1e-12)
}

func TestGrower_SplitsOnSeparatingFeature(t *testing.T) {
	records := []dataset.FeatureRecord{{0, 5}, {1, 3}, {2, 5}, {10, 3}, {11, 5}, {12, 3}}
	labels := []float64{0, 0, 0, 1, 1, 1}

	g := newGrower(records, giniCriterion{}, 3, 0, rand.New(rand.NewSource(1)))
	for i, y := range labels {
		g.s2[i] = 1
		g.s1[i] = y
	}
	root := g.grow([]int{0, 1, 2, 3, 4, 5}, 0)

	assert.Equal(t, 0, root.feature)
	assert.InDelta(t, 6.0, root.threshold, 1e-12)
	assert.Equal(t, 1, root.depth())
	assert.Equal(t, 0.0, root.eval(dataset.FeatureRecord{-4, 0}))
	assert.Equal(t, 1.0, root.eval(dataset.FeatureRecord{40, 0}))
	assert.Equal(t, 0.0, g.importance[1])
}

func TestGrower_RespectsMaxDepth(t *testing.T) {
	ds := synthetic(t, 100, 100, 8)
	g := newGrower(ds.Records, giniCriterion{}, 2, 0, rand.New(rand.NewSource(1)))
	idx := make([]int, ds.Len())
	for i, l := range ds.Labels {
		g.s2[i] = 1
		g.s1[i] = float64(l)
		idx[i] = i
	}

	assert.LessOrEqual(t, g.grow(idx, 0).depth(), 2)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []float64{0.25, 0.75}, normalize([]float64{1, 3}))
	assert.Equal(t, []float64{0.5, 0.5}, normalize([]float64{0, 0}))
}

func TestAverageImportances_SkipsTreesWithoutSplits(t *testing.T) {
	testCases := []struct {
		name    string
		perTree [][]float64
		want    []float64
	}{
		{"stump ignored", [][]float64{{0, 0, 0}, {3, 1, 0}}, []float64{0.75, 0.25, 0}},
		{"per-tree normalised", [][]float64{{2, 0, 0}, {0, 0, 10}}, []float64{0.5, 0, 0.5}},
		{"no tree split", [][]float64{{0, 0, 0}, {0, 0, 0}}, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := averageImportances(tc.perTree, 3)
			require.Len(t, got, 3)
			for i := range got {
				assert.InDelta(t, tc.want[i], got[i], 1e-12)
			}
		})
	}
}

func TestTrainer_CheckSet(t *testing.T) {
	trainer := NewTrainer(Params{EnsembleSize: 50, MaxDepth: 3, LearningRate: 0.1, Subsample: 1}, nil)

	assert.NoError(t, trainer.CheckSet(synthetic(t, 30, 30, 1)))
	assert.ErrorIs(t, trainer.CheckSet(synthetic(t, 20, 20, 1)), ErrTrainingSetTooSmall)
	assert.ErrorIs(t, trainer.CheckSet(synthetic(t, 60, 0, 1)), ErrDegenerateLabelSet)
}
