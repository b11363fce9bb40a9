package evaluate

import (
	"time"

	"clinical-ensemble/internal/dataset"
	"clinical-ensemble/internal/ml"
)

// Prediction is the per-row output of every model on the test partition.
type Prediction struct {
	Row     int           `json:"row"`
	Label   dataset.Label `json:"label"`
	Bagged  float64       `json:"bagged"`
	Boosted float64       `json:"boosted"`
	Stacked float64       `json:"stacked"`
}

// PartitionSummary records how many rows each stage saw.
type PartitionSummary struct {
	Input     int `json:"input"`
	Train     int `json:"train"`
	Balanced  int `json:"balanced"`
	Synthetic int `json:"synthetic"`
	Stack     int `json:"stack"`
	Test      int `json:"test"`
}

// StackCoefficients are the fitted meta-learner parameters.
type StackCoefficients struct {
	Bias    float64 `json:"bias"`
	WeightA float64 `json:"weight_bagged"`
	WeightB float64 `json:"weight_boosted"`
}

// Report is everything one pipeline run produced.
type Report struct {
	RunID       string                            `json:"run_id"`
	SplitMode   string                            `json:"split_mode"`
	Seed        int64                             `json:"seed"`
	StartedAt   time.Time                         `json:"started_at"`
	FinishedAt  time.Time                         `json:"finished_at"`
	Partition   PartitionSummary                  `json:"partition"`
	Models      []Metrics                         `json:"models"`
	Ensemble    StackCoefficients                 `json:"ensemble"`
	Importances map[string][]ml.FeatureImportance `json:"importances"`
	Predictions []Prediction                      `json:"predictions"`
	Warnings    []string                          `json:"warnings,omitempty"`
}

// Model returns the metrics recorded under name.
func (r *Report) Model(name string) (Metrics, bool) {
	for _, m := range r.Models {
		if m.Model == name {
			return m, true
		}
	}
	return Metrics{}, false
}
