// Package ml trains the base learners and the stacked meta-learner.
//
// Two tree ensembles share the ModelArtifact capability set: a bagged forest of
// class-weighted CART trees and a Newton-boosted ensemble of regression trees on the
// logistic loss. MetaEnsembler combines their probabilities with an L2-regularised
// logistic model whose coefficients are constrained to be non-negative.
package ml

import (
	"fmt"
	"strings"

	"clinical-ensemble/internal/dataset"
)

// Variant selects the base learner family.
type Variant string

const (
	VariantBagged  Variant = "bagged"
	VariantBoosted Variant = "boosted"
)

// ParseVariant accepts a variant name case-insensitively.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case VariantBagged, VariantBoosted:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
}

// Classifier is the capability both base learners and the stacked ensemble expose.
type Classifier interface {
	// Predict returns Positive when the positive-class probability is at least 0.5.
	Predict(r dataset.FeatureRecord) dataset.Label
	// PredictProbability returns the positive-class probability in [0, 1].
	PredictProbability(r dataset.FeatureRecord) float64
}

// ModelArtifact is a trained base learner.
type ModelArtifact interface {
	Classifier
	Variant() Variant
	// FeatureImportances has one non-negative entry per feature and sums to 1.
	FeatureImportances() []float64
}

// PredictAll scores every record of ds.
func PredictAll(c Classifier, ds *dataset.Dataset) []float64 {
	out := make([]float64, ds.Len())
	for i, r := range ds.Records {
		out[i] = c.PredictProbability(r)
	}
	return out
}

func labelFor(p float64) dataset.Label {
	if p >= 0.5 {
		return dataset.Positive
	}
	return dataset.Negative
}

// normalize scales v to sum 1 in place. An all-zero vector becomes uniform.
func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		for i := range v {
			v[i] = 1 / float64(len(v))
		}
		return v
	}
	for i := range v {
		v[i] /= sum
	}
	return v
}
