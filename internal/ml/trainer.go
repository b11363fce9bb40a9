package ml

import (
	"context"
	"fmt"
	"time"

	"clinical-ensemble/internal/dataset"
	"clinical-ensemble/internal/imbalance"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines the metrics the trainer reports.
type MetricsInterface interface {
	ModelTrainedInc(variant string)
	TrainingFailuresInc(variant string)
	TrainingDurationObserve(variant string, seconds float64)
}

// Params are the hyperparameters shared by both base learners.
type Params struct {
	EnsembleSize int
	MaxDepth     int
	LearningRate float64 // boosting only
	Subsample    float64 // boosting only; fraction of rows per round
}

func DefaultParams() Params {
	return Params{
		EnsembleSize: 200,
		MaxDepth:     7,
		LearningRate: 0.1,
		Subsample:    1.0,
	}
}

type Trainer struct {
	params  Params
	metrics MetricsInterface
}

// NewTrainer returns a trainer. metrics may be nil.
func NewTrainer(params Params, metrics MetricsInterface) *Trainer {
	return &Trainer{params: params, metrics: metrics}
}

func (t *Trainer) Params() Params { return t.params }

// Train fits one base learner on set. All randomness derives from seed, so equal
// inputs give artifacts with identical predictions.
func (t *Trainer) Train(ctx context.Context, set *dataset.Dataset, weights imbalance.ClassWeights, variant Variant, seed int64) (ModelArtifact, error) {
	if err := t.check(set, variant); err != nil {
		t.failed(variant)
		return nil, err
	}

	start := time.Now()
	var (
		model ModelArtifact
		err   error
	)
	switch variant {
	case VariantBagged:
		model, err = fitForest(ctx, set, weights, t.params, seed)
	case VariantBoosted:
		model, err = fitBooster(ctx, set, weights.PositiveClassWeight(), t.params, seed)
	}
	if err != nil {
		t.failed(variant)
		return nil, fmt.Errorf("train %s: %w", variant, err)
	}
	elapsed := time.Since(start)

	if t.metrics != nil {
		t.metrics.ModelTrainedInc(string(variant))
		t.metrics.TrainingDurationObserve(string(variant), elapsed.Seconds())
	}

	log.Info().
		Str("variant", string(variant)).
		Int("rows", set.Len()).
		Int("members", t.params.EnsembleSize).
		Int("max_depth", t.params.MaxDepth).
		Dur("duration", elapsed).
		Msg("Base learner trained")

	return model, nil
}

func (t *Trainer) check(set *dataset.Dataset, variant Variant) error {
	if variant != VariantBagged && variant != VariantBoosted {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
	return t.CheckSet(set)
}

// CheckSet reports whether set satisfies the training preconditions shared by
// both variants, without fitting anything.
func (t *Trainer) CheckSet(set *dataset.Dataset) error {
	if t.params.EnsembleSize < 1 {
		return fmt.Errorf("ml: ensemble size must be positive, got %d", t.params.EnsembleSize)
	}
	if set.Len() < t.params.EnsembleSize || set.Len() == 0 {
		return fmt.Errorf("%w: %d rows for %d members", ErrTrainingSetTooSmall, set.Len(), t.params.EnsembleSize)
	}
	if neg, pos := set.ClassCounts(); neg == 0 || pos == 0 {
		return fmt.Errorf("%w: %d negative, %d positive", ErrDegenerateLabelSet, neg, pos)
	}
	return nil
}

func (t *Trainer) failed(variant Variant) {
	if t.metrics != nil {
		t.metrics.TrainingFailuresInc(string(variant))
	}
}
