// Package evaluate scores trained classifiers on labelled data and writes reports.
package evaluate

import (
	"errors"
	"fmt"
	"math"

	"clinical-ensemble/internal/dataset"
	"clinical-ensemble/internal/ml"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrLengthMismatch   = errors.New("evaluate: probabilities and labels differ in length")
	ErrProbabilityRange = errors.New("evaluate: probability outside [0, 1]")
)

// Metrics are the scores of one model on one labelled set.
type Metrics struct {
	Model     string  `json:"model"`
	Rows      int     `json:"rows"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	AUC       float64 `json:"auc"`
	Brier     float64 `json:"brier"`

	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalseNegatives int `json:"false_negatives"`

	Probability ProbabilitySummary `json:"probability"`
}

// ProbabilitySummary describes the distribution of predicted probabilities.
type ProbabilitySummary struct {
	Min    float64 `json:"min"`
	P25    float64 `json:"p25"`
	Median float64 `json:"median"`
	P75    float64 `json:"p75"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Evaluator labels a row positive when its probability reaches Threshold.
type Evaluator struct {
	Threshold float64
}

func New() *Evaluator {
	return &Evaluator{Threshold: 0.5}
}

// Evaluate scores c on every row of set.
func (e *Evaluator) Evaluate(name string, c ml.Classifier, set *dataset.Dataset) (Metrics, error) {
	return e.Score(name, ml.PredictAll(c, set), set.Labels)
}

// Score computes metrics from precomputed probabilities.
func (e *Evaluator) Score(name string, probs []float64, labels []dataset.Label) (Metrics, error) {
	if len(probs) != len(labels) {
		return Metrics{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(probs), len(labels))
	}
	if len(probs) == 0 {
		return Metrics{}, dataset.ErrEmptyDataset
	}
	if !inUnitInterval(probs) {
		return Metrics{}, fmt.Errorf("%w: model %s", ErrProbabilityRange, name)
	}

	m := Metrics{Model: name, Rows: len(probs)}
	var brier float64
	for i, p := range probs {
		y := float64(labels[i])
		brier += (p - y) * (p - y)

		predicted := p >= e.Threshold
		switch {
		case predicted && labels[i] == dataset.Positive:
			m.TruePositives++
		case predicted:
			m.FalsePositives++
		case labels[i] == dataset.Positive:
			m.FalseNegatives++
		default:
			m.TrueNegatives++
		}
	}

	m.Brier = brier / float64(len(probs))
	m.Accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(len(probs))
	m.Precision = ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	m.Recall = ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.AUC = AUC(probs, labels)

	summary, err := Summarize(probs)
	if err != nil {
		return Metrics{}, err
	}
	m.Probability = summary
	return m, nil
}

// AUC is the area under the ROC curve. With a single class present the curve is
// undefined and 0.5 is returned.
func AUC(probs []float64, labels []dataset.Label) float64 {
	y := make([]float64, len(probs))
	classes := make([]bool, len(probs))
	var pos int
	for i, p := range probs {
		y[i] = p
		classes[i] = labels[i] == dataset.Positive
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(probs) {
		return 0.5
	}

	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// Summarize reports quartiles, mean and standard deviation of probs.
func Summarize(probs []float64) (ProbabilitySummary, error) {
	data := stats.Float64Data(probs)

	var (
		s   ProbabilitySummary
		err error
	)
	if s.Min, err = data.Min(); err != nil {
		return s, fmt.Errorf("probability summary: %w", err)
	}
	if s.Max, err = data.Max(); err != nil {
		return s, fmt.Errorf("probability summary: %w", err)
	}
	if s.Median, err = data.Median(); err != nil {
		return s, fmt.Errorf("probability summary: %w", err)
	}
	if s.Mean, err = data.Mean(); err != nil {
		return s, fmt.Errorf("probability summary: %w", err)
	}
	if s.StdDev, err = data.StandardDeviation(); err != nil {
		return s, fmt.Errorf("probability summary: %w", err)
	}
	if s.P25, err = data.Percentile(25); err != nil {
		return s, fmt.Errorf("probability summary: %w", err)
	}
	if s.P75, err = data.Percentile(75); err != nil {
		return s, fmt.Errorf("probability summary: %w", err)
	}
	return s, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// inUnitInterval reports whether every probability is a finite value in [0, 1].
func inUnitInterval(probs []float64) bool {
	for _, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return false
		}
	}
	return true
}
