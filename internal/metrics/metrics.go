// Package metrics provides Prometheus instrumentation for the clinical ensemble pipeline.
// It tracks oversampling volume, base-learner training, stage latency and the
// evaluation scores of every model, and can dump a registry to a textfile for the
// node exporter when running as a batch job.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Pipeline metrics
	PipelineRuns     prometheus.Counter       // Total number of pipeline runs started
	PipelineFailures prometheus.Counter       // Total number of pipeline runs that failed
	StageDuration    *prometheus.HistogramVec // Duration of each pipeline stage

	// Data metrics
	SyntheticSamples prometheus.Counter // Total number of synthetic minority rows generated
	StackingRows     prometheus.Gauge   // Rows used for the last meta-learner fit

	// Model metrics
	ModelsTrained    *prometheus.CounterVec   // Base learners trained, by variant
	TrainingFailures *prometheus.CounterVec   // Base learner training failures, by variant
	TrainingDuration *prometheus.HistogramVec // Base learner training time, by variant
	ModelAccuracy    *prometheus.GaugeVec     // Accuracy of the last evaluation, by model
	ModelAUC         *prometheus.GaugeVec     // ROC AUC of the last evaluation, by model
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PipelineRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total number of pipeline runs started",
		}),
		PipelineFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_failures_total",
			Help: "Total number of pipeline runs that failed",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"stage"}),
		SyntheticSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "synthetic_samples_total",
			Help: "Total number of synthetic minority rows generated",
		}),
		StackingRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stacking_rows",
			Help: "Rows used for the last meta-learner fit",
		}),
		ModelsTrained: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "models_trained_total",
			Help: "Total number of base learners trained",
		}, []string{"variant"}),
		TrainingFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "training_failures_total",
			Help: "Total number of base learner training failures",
		}, []string{"variant"}),
		TrainingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Base learner training time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"variant"}),
		ModelAccuracy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "model_accuracy",
			Help: "Accuracy of the most recent evaluation",
		}, []string{"model"}),
		ModelAUC: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "model_auc",
			Help: "ROC AUC of the most recent evaluation",
		}, []string{"model"}),
	}
}

func (m *Metrics) RunsInc()        { m.PipelineRuns.Inc() }
func (m *Metrics) RunFailuresInc() { m.PipelineFailures.Inc() }

func (m *Metrics) StageObserve(stage string, seconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) SyntheticSamplesAdd(n float64) { m.SyntheticSamples.Add(n) }

func (m *Metrics) StackingRowsSet(n float64) { m.StackingRows.Set(n) }

func (m *Metrics) ModelTrainedInc(variant string) {
	m.ModelsTrained.WithLabelValues(variant).Inc()
}

func (m *Metrics) TrainingFailuresInc(variant string) {
	m.TrainingFailures.WithLabelValues(variant).Inc()
}

func (m *Metrics) TrainingDurationObserve(variant string, seconds float64) {
	m.TrainingDuration.WithLabelValues(variant).Observe(seconds)
}

// EvaluationSet records the latest scores of one model.
func (m *Metrics) EvaluationSet(model string, accuracy, auc float64) {
	m.ModelAccuracy.WithLabelValues(model).Set(accuracy)
	m.ModelAUC.WithLabelValues(model).Set(auc)
}

// TrainingFailureRate returns failures / (failures + successes) across all
// variants as seen by gatherer, or 0 when nothing has been trained.
func TrainingFailureRate(gatherer prometheus.Gatherer) float64 {
	var trained, failed float64

	metricFamilies, err := gatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "models_trained_total":
			for _, m := range mf.Metric {
				trained += m.GetCounter().GetValue()
			}
		case "training_failures_total":
			for _, m := range mf.Metric {
				failed += m.GetCounter().GetValue()
			}
		}
	}

	if trained+failed == 0 {
		return 0
	}
	return failed / (trained + failed)
}

// WriteTextfile dumps gatherer in the text exposition format for the node
// exporter's textfile collector.
func WriteTextfile(gatherer prometheus.Gatherer, path string) error {
	return prometheus.WriteToTextfile(path, gatherer)
}
