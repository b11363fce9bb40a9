package imbalance

import (
	"errors"
	"fmt"

	"clinical-ensemble/internal/dataset"
)

var (
	ErrEmptyLabelSet      = errors.New("imbalance: empty label set")
	ErrSingleClassDataset = errors.New("imbalance: only one class present")
)

// ClassWeights maps each label to its frequency-balancing weight.
type ClassWeights map[dataset.Label]float64

// EstimateWeights assigns weight(c) = N / (classes * count(c)), so that
// weight(c)*count(c) is the same for every class.
func EstimateWeights(labels []dataset.Label) (ClassWeights, error) {
	if len(labels) == 0 {
		return nil, ErrEmptyLabelSet
	}

	counts := make(map[dataset.Label]int, 2)
	for _, l := range labels {
		counts[l]++
	}
	if len(counts) < 2 {
		return nil, fmt.Errorf("%w: %d rows", ErrSingleClassDataset, len(labels))
	}

	total := float64(len(labels))
	classes := float64(len(counts))
	w := make(ClassWeights, len(counts))
	for l, c := range counts {
		w[l] = total / (classes * float64(c))
	}
	return w, nil
}

// Of returns the weight for l, or 1 when the label was never seen.
func (w ClassWeights) Of(l dataset.Label) float64 {
	if v, ok := w[l]; ok {
		return v
	}
	return 1
}

// PositiveClassWeight is weight(negative)/weight(positive), the single scalar the
// boosted learner scales positive-class errors by.
func (w ClassWeights) PositiveClassWeight() float64 {
	return w.Of(dataset.Negative) / w.Of(dataset.Positive)
}
