package pipeline

import (
	"context"
	"testing"

	"clinical-ensemble/internal/cohort"
	"clinical-ensemble/internal/common"
	"clinical-ensemble/internal/dataset"
	"clinical-ensemble/internal/imbalance"
	"clinical-ensemble/internal/metrics"
	"clinical-ensemble/internal/ml"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodedCohort(t *testing.T, n int, prevalence float64, seed int64) *dataset.Dataset {
	t.Helper()
	rows, err := cohort.Generate(n, prevalence, seed)
	require.NoError(t, err)
	enc, err := dataset.NewEncoder(cohort.Schema())
	require.NoError(t, err)
	ds, err := enc.Encode(rows)
	require.NoError(t, err)
	return ds
}

func testConfig(mode string, params ml.Params) Config {
	return Config{
		NeighborCount: 5,
		Params:        params,
		MinStackRows:  20,
		TestRatio:     0.2,
		StackRatio:    0.2,
		Seed:          42,
		SplitMode:     mode,
	}
}

func TestRun_ObservedEndToEnd(t *testing.T) {
	ds := encodedCohort(t, 1000, 0.15, 42)
	neg, pos := ds.ClassCounts()
	require.Equal(t, 850, neg)
	require.Equal(t, 150, pos)

	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(registry)

	res, err := New(testConfig(common.SplitModeObserved, ml.DefaultParams()), m).Run(context.Background(), ds)
	require.NoError(t, err)

	rep := res.Report
	assert.Equal(t, 1000, rep.Partition.Input)
	assert.Equal(t, 700, rep.Partition.Synthetic)
	assert.Equal(t, 1360, rep.Partition.Balanced)
	assert.Equal(t, 340, rep.Partition.Test)
	assert.Equal(t, 340, rep.Partition.Stack)
	assert.Contains(t, rep.Warnings, LeakageWarning)

	require.Len(t, rep.Predictions, 340)
	for _, p := range rep.Predictions {
		for _, v := range []float64{p.Bagged, p.Boosted, p.Stacked} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}

	for _, name := range []string{ModelBagged, ModelBoosted, ModelStacked} {
		scored, ok := rep.Model(name)
		require.True(t, ok, name)
		assert.Equal(t, 340, scored.Rows)
		assert.Greater(t, scored.AUC, 0.7, name)
	}
	assert.GreaterOrEqual(t, res.Ensemble.WeightA, 0.0)
	assert.GreaterOrEqual(t, res.Ensemble.WeightB, 0.0)
	assert.InDelta(t, 1.0, res.Weights.PositiveClassWeight(), 1e-12)

	assert.Len(t, rep.Importances[ModelBagged], ds.Dim())
	assert.Len(t, rep.Importances[ModelBoosted], ds.Dim())

	assert.Equal(t, 700.0, testutil.ToFloat64(m.SyntheticSamples))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelsTrained.WithLabelValues(ModelBagged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelsTrained.WithLabelValues(ModelBoosted)))
	assert.Equal(t, 340.0, testutil.ToFloat64(m.StackingRows))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PipelineFailures))
}

func TestRun_Reproducible(t *testing.T) {
	ds := encodedCohort(t, 1000, 0.15, 42)
	params := ml.Params{EnsembleSize: 60, MaxDepth: 5, LearningRate: 0.1, Subsample: 0.8}

	for _, mode := range []string{common.SplitModeObserved, common.SplitModeHoldout} {
		t.Run(mode, func(t *testing.T) {
			a, err := New(testConfig(mode, params), nil).Run(context.Background(), ds)
			require.NoError(t, err)
			b, err := New(testConfig(mode, params), nil).Run(context.Background(), ds)
			require.NoError(t, err)

			assert.NotEqual(t, a.Report.RunID, b.Report.RunID)
			assert.Equal(t, a.Report.Models, b.Report.Models)
			assert.Equal(t, a.Report.Predictions, b.Report.Predictions)
			assert.Equal(t, a.Report.Ensemble, b.Report.Ensemble)
		})
	}
}

func TestRun_HoldoutPartitionsDisjoint(t *testing.T) {
	ds := encodedCohort(t, 1000, 0.15, 7)
	params := ml.Params{EnsembleSize: 30, MaxDepth: 4, LearningRate: 0.1, Subsample: 1}

	p := New(testConfig(common.SplitModeHoldout, params), nil)
	parts, err := p.holdout(ds)
	require.NoError(t, err)

	assert.Equal(t, 200, parts.test.Len())
	assert.Equal(t, 200, parts.stack.Len())
	assert.Equal(t, 600, parts.train.Len())
	assert.Equal(t, 1020, parts.balanced.Len())
	assert.Equal(t, 420, parts.synthetic)

	seen := make(map[*float64]string)
	for name, set := range map[string]*dataset.Dataset{"train": parts.train, "stack": parts.stack, "test": parts.test} {
		for _, r := range set.Records {
			key := &r[0]
			prev, dup := seen[key]
			assert.False(t, dup, "row in both %s and %s", prev, name)
			seen[key] = name
		}
	}
	for _, r := range parts.balanced.Records {
		assert.NotEqual(t, "test", seen[&r[0]])
		assert.NotEqual(t, "stack", seen[&r[0]])
	}

	res, err := p.Run(context.Background(), ds)
	require.NoError(t, err)
	assert.Empty(t, res.Report.Warnings)
	assert.Equal(t, common.SplitModeHoldout, res.Report.SplitMode)
	require.Len(t, res.Report.Predictions, 200)
}

func TestRun_Failures(t *testing.T) {
	params := ml.Params{EnsembleSize: 5, MaxDepth: 3, LearningRate: 0.1, Subsample: 1}

	t.Run("no positives", func(t *testing.T) {
		ds := encodedCohort(t, 200, 0.2, 1)
		for i := range ds.Labels {
			ds.Labels[i] = dataset.Negative
		}
		registry := prometheus.NewRegistry()
		m := metrics.NewWithRegistry(registry)

		_, err := New(testConfig(common.SplitModeHoldout, params), m).Run(context.Background(), ds)
		assert.ErrorIs(t, err, imbalance.ErrEmptyMinorityClass)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineFailures))
	})

	for _, mode := range []string{common.SplitModeHoldout, common.SplitModeObserved} {
		t.Run("stacking set too small/"+mode, func(t *testing.T) {
			ds := encodedCohort(t, 60, 0.3, 2)
			registry := prometheus.NewRegistry()
			m := metrics.NewWithRegistry(registry)

			res, err := New(testConfig(mode, params), m).Run(context.Background(), ds)
			assert.ErrorIs(t, err, ml.ErrInsufficientStackingData)
			assert.Nil(t, res)
			assert.Equal(t, 0.0, testutil.ToFloat64(m.ModelsTrained.WithLabelValues(ModelBagged)))
			assert.Equal(t, 0.0, testutil.ToFloat64(m.ModelsTrained.WithLabelValues(ModelBoosted)))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineFailures))
		})
	}

	t.Run("stacking set checked before oversampling", func(t *testing.T) {
		ds := encodedCohort(t, 60, 0.3, 2)
		registry := prometheus.NewRegistry()
		m := metrics.NewWithRegistry(registry)

		_, err := New(testConfig(common.SplitModeHoldout, params), m).Run(context.Background(), ds)
		assert.ErrorIs(t, err, ml.ErrInsufficientStackingData)
		assert.Equal(t, 0.0, testutil.ToFloat64(m.SyntheticSamples))
	})

	t.Run("training set too small", func(t *testing.T) {
		ds := encodedCohort(t, 200, 0.2, 3)
		big := ml.Params{EnsembleSize: 1000, MaxDepth: 3, LearningRate: 0.1, Subsample: 1}
		registry := prometheus.NewRegistry()
		m := metrics.NewWithRegistry(registry)

		_, err := New(testConfig(common.SplitModeHoldout, big), m).Run(context.Background(), ds)
		assert.ErrorIs(t, err, ml.ErrTrainingSetTooSmall)
		assert.Equal(t, 0.0, testutil.ToFloat64(m.ModelsTrained.WithLabelValues(ModelBagged)))
		assert.Equal(t, 0.0, testutil.ToFloat64(m.TrainingFailures.WithLabelValues(ModelBagged)))
	})

	t.Run("unknown split mode", func(t *testing.T) {
		ds := encodedCohort(t, 100, 0.2, 4)
		_, err := New(testConfig("random", params), nil).Run(context.Background(), ds)
		assert.ErrorIs(t, err, ErrUnknownSplitMode)
	})

	t.Run("empty dataset", func(t *testing.T) {
		_, err := New(testConfig(common.SplitModeHoldout, params), nil).Run(context.Background(), dataset.New([]string{"a"}))
		assert.ErrorIs(t, err, dataset.ErrEmptyDataset)
	})
}
