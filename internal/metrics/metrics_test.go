package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)

	m.RunsInc()
	m.RunsInc()
	m.RunFailuresInc()
	m.SyntheticSamplesAdd(700)
	m.SyntheticSamplesAdd(5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PipelineRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineFailures))
	assert.Equal(t, 705.0, testutil.ToFloat64(m.SyntheticSamples))
}

func TestMetrics_PerVariant(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)

	m.ModelTrainedInc("bagged")
	m.ModelTrainedInc("boosted")
	m.ModelTrainedInc("boosted")
	m.TrainingFailuresInc("bagged")
	m.TrainingDurationObserve("bagged", 1.5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelsTrained.WithLabelValues("bagged")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ModelsTrained.WithLabelValues("boosted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrainingFailures.WithLabelValues("bagged")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TrainingDuration))
	assert.InDelta(t, 0.25, TrainingFailureRate(registry), 1e-12)
}

func TestMetrics_Evaluation(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.EvaluationSet("stacked", 0.91, 0.95)
	m.EvaluationSet("stacked", 0.92, 0.96)
	m.StackingRowsSet(340)
	m.StageObserve("balance", 0.02)

	assert.Equal(t, 0.92, testutil.ToFloat64(m.ModelAccuracy.WithLabelValues("stacked")))
	assert.Equal(t, 0.96, testutil.ToFloat64(m.ModelAUC.WithLabelValues("stacked")))
	assert.Equal(t, 340.0, testutil.ToFloat64(m.StackingRows))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
}

func TestTrainingFailureRate_Empty(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWithRegistry(registry)
	assert.Equal(t, 0.0, TrainingFailureRate(registry))
}

func TestWriteTextfile(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	m.SyntheticSamplesAdd(3)

	path := filepath.Join(t.TempDir(), "clinistack.prom")
	require.NoError(t, WriteTextfile(registry, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "synthetic_samples_total 3"))
}

func TestNewWithRegistry_DuplicatePanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWithRegistry(registry)
	assert.Panics(t, func() { NewWithRegistry(registry) })
}
