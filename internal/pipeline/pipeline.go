// Package pipeline runs the full imbalance-correction and stacking flow on an
// encoded dataset and collects an evaluation report.
//
// Two partition orders are supported. Holdout (the default) splits raw rows into
// train, stacking and test partitions before oversampling, so no synthetic row or
// meta-learner input ever touches the rows it is scored on. Observed oversamples the
// whole dataset, splits it once and fits and evaluates the meta-learner on the same
// split. It leaks and is kept only to reproduce historical numbers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"clinical-ensemble/internal/cfg"
	"clinical-ensemble/internal/common"
	"clinical-ensemble/internal/dataset"
	"clinical-ensemble/internal/evaluate"
	"clinical-ensemble/internal/imbalance"
	"clinical-ensemble/internal/ml"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Model names used in reports and metrics.
const (
	ModelBagged  = string(ml.VariantBagged)
	ModelBoosted = string(ml.VariantBoosted)
	ModelStacked = "stacked"
)

// LeakageWarning is attached to reports produced in observed mode.
const LeakageWarning = "observed split order: synthetic rows may straddle train and test, and the meta-learner is fitted and scored on the same rows"

var ErrUnknownSplitMode = errors.New("pipeline: unknown split mode")

// MetricsInterface is everything the pipeline and its stages report.
type MetricsInterface interface {
	imbalance.MetricsInterface
	ml.MetricsInterface
	RunsInc()
	RunFailuresInc()
	StageObserve(stage string, seconds float64)
	StackingRowsSet(n float64)
	EvaluationSet(model string, accuracy, auc float64)
}

// Config holds the fixed per-run constants.
type Config struct {
	NeighborCount int
	Params        ml.Params
	MinStackRows  int
	TestRatio     float64
	StackRatio    float64
	Seed          int64
	SplitMode     string
}

// ConfigFromSettings maps loaded settings onto a pipeline config.
func ConfigFromSettings(s *cfg.Settings) Config {
	return Config{
		NeighborCount: s.NeighborCount,
		Params: ml.Params{
			EnsembleSize: s.EnsembleSize,
			MaxDepth:     s.MaxDepth,
			LearningRate: s.LearningRate,
			Subsample:    s.Subsample,
		},
		MinStackRows: s.MinStackRows,
		TestRatio:    s.TestRatio,
		StackRatio:   s.StackRatio,
		Seed:         s.Seed,
		SplitMode:    s.SplitMode,
	}
}

// Result holds the trained artifacts next to the report.
type Result struct {
	Report   *evaluate.Report
	Bagged   ml.ModelArtifact
	Boosted  ml.ModelArtifact
	Ensemble *ml.Ensemble
	Weights  imbalance.ClassWeights
}

type Pipeline struct {
	cfg       Config
	metrics   MetricsInterface
	evaluator *evaluate.Evaluator
}

// New returns a pipeline. metrics may be nil.
func New(c Config, metrics MetricsInterface) *Pipeline {
	return &Pipeline{cfg: c, metrics: metrics, evaluator: evaluate.New()}
}

// partitions are the datasets each stage consumes.
type partitions struct {
	train     *dataset.Dataset // before oversampling
	balanced  *dataset.Dataset // what the base learners fit
	stack     *dataset.Dataset
	test      *dataset.Dataset
	synthetic int
}

// Run executes the pipeline on an encoded dataset. Every source of randomness is
// derived from the configured seed.
func (p *Pipeline) Run(ctx context.Context, ds *dataset.Dataset) (*Result, error) {
	if p.metrics != nil {
		p.metrics.RunsInc()
	}
	res, err := p.run(ctx, ds)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RunFailuresInc()
		}
		log.Error().Err(err).Str("split_mode", p.cfg.SplitMode).Msg("Pipeline run failed")
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, ds *dataset.Dataset) (*Result, error) {
	started := time.Now().UTC()
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if ds.Len() == 0 {
		return nil, dataset.ErrEmptyDataset
	}

	report := &evaluate.Report{
		RunID:     uuid.New().String(),
		SplitMode: p.cfg.SplitMode,
		Seed:      p.cfg.Seed,
		StartedAt: started,
	}

	var (
		parts partitions
		err   error
	)
	switch p.cfg.SplitMode {
	case common.SplitModeHoldout, "":
		report.SplitMode = common.SplitModeHoldout
		parts, err = p.holdout(ds)
	case common.SplitModeObserved:
		log.Warn().Msg("Observed split order requested; evaluation metrics will be optimistic")
		report.Warnings = append(report.Warnings, LeakageWarning)
		parts, err = p.observed(ds)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSplitMode, p.cfg.SplitMode)
	}
	if err != nil {
		return nil, err
	}

	report.Partition = evaluate.PartitionSummary{
		Input:     ds.Len(),
		Train:     parts.train.Len(),
		Balanced:  parts.balanced.Len(),
		Synthetic: parts.synthetic,
		Stack:     parts.stack.Len(),
		Test:      parts.test.Len(),
	}

	log.Info().
		Str("split_mode", report.SplitMode).
		Int("input", ds.Len()).
		Int("train", parts.train.Len()).
		Int("balanced", parts.balanced.Len()).
		Int("stack", parts.stack.Len()).
		Int("test", parts.test.Len()).
		Msg("Partitions ready")

	trainer := ml.NewTrainer(p.cfg.Params, p.metrics)
	if err := trainer.CheckSet(parts.balanced); err != nil {
		return nil, err
	}

	var weights imbalance.ClassWeights
	if err := p.stage("weights", func() error {
		weights, err = imbalance.EstimateWeights(parts.balanced.Labels)
		return err
	}); err != nil {
		return nil, err
	}

	bagged, boosted, err := p.trainBaseLearners(ctx, trainer, parts.balanced, weights)
	if err != nil {
		return nil, err
	}

	var ensemble *ml.Ensemble
	if err := p.stage("stack", func() error {
		ensemble, err = p.ensembler().Stack(bagged, boosted, parts.stack)
		return err
	}); err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.StackingRowsSet(float64(parts.stack.Len()))
	}
	report.Ensemble = evaluate.StackCoefficients{Bias: ensemble.Bias, WeightA: ensemble.WeightA, WeightB: ensemble.WeightB}

	if err := p.stage("evaluate", func() error {
		return p.evaluate(report, parts.test, ds.FeatureNames, bagged, boosted, ensemble)
	}); err != nil {
		return nil, err
	}

	report.FinishedAt = time.Now().UTC()
	return &Result{Report: report, Bagged: bagged, Boosted: boosted, Ensemble: ensemble, Weights: weights}, nil
}

func (p *Pipeline) ensembler() *ml.MetaEnsembler {
	return ml.NewMetaEnsembler(p.cfg.MinStackRows)
}

// holdout splits raw rows into train, stack and test, then balances train only.
// The stacking partition is checked before any oversampling.
func (p *Pipeline) holdout(ds *dataset.Dataset) (partitions, error) {
	var parts partitions
	rnd := rand.New(rand.NewSource(p.cfg.Seed))

	rest, test, err := ds.StratifiedSplit(rnd, p.cfg.TestRatio)
	if err != nil {
		return parts, fmt.Errorf("test split: %w", err)
	}
	train, stack, err := rest.StratifiedSplit(rnd, p.cfg.StackRatio/(1-p.cfg.TestRatio))
	if err != nil {
		return parts, fmt.Errorf("stacking split: %w", err)
	}
	if err := p.ensembler().CheckSet(stack); err != nil {
		return parts, err
	}

	balanced, err := p.balance(train)
	if err != nil {
		return parts, err
	}
	return partitions{train: train, balanced: balanced, stack: stack, test: test, synthetic: balanced.Len() - train.Len()}, nil
}

// observed balances everything first, then splits once. Stack and test are the same rows.
func (p *Pipeline) observed(ds *dataset.Dataset) (partitions, error) {
	var parts partitions
	balanced, err := p.balance(ds)
	if err != nil {
		return parts, err
	}

	rnd := rand.New(rand.NewSource(p.cfg.Seed))
	train, test, err := balanced.StratifiedSplit(rnd, p.cfg.TestRatio)
	if err != nil {
		return parts, fmt.Errorf("test split: %w", err)
	}
	if err := p.ensembler().CheckSet(test); err != nil {
		return parts, err
	}
	return partitions{train: train, balanced: train, stack: test, test: test, synthetic: balanced.Len() - ds.Len()}, nil
}

func (p *Pipeline) balance(ds *dataset.Dataset) (*dataset.Dataset, error) {
	var out *dataset.Dataset
	err := p.stage("balance", func() error {
		corrector := imbalance.NewCorrector(p.cfg.NeighborCount, rand.New(rand.NewSource(p.cfg.Seed+1))).
			WithMetrics(p.metrics)
		var err error
		out, err = corrector.Balance(ds)
		return err
	})
	return out, err
}

// trainBaseLearners fits both variants concurrently on the same read-only inputs.
func (p *Pipeline) trainBaseLearners(ctx context.Context, trainer *ml.Trainer, train *dataset.Dataset, weights imbalance.ClassWeights) (ml.ModelArtifact, ml.ModelArtifact, error) {
	var bagged, boosted ml.ModelArtifact
	err := p.stage("train", func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			bagged, err = trainer.Train(gctx, train, weights, ml.VariantBagged, p.cfg.Seed+2)
			return err
		})
		g.Go(func() error {
			var err error
			boosted, err = trainer.Train(gctx, train, weights, ml.VariantBoosted, p.cfg.Seed+3)
			return err
		})
		return g.Wait()
	})
	return bagged, boosted, err
}

func (p *Pipeline) evaluate(report *evaluate.Report, test *dataset.Dataset, names []string, bagged, boosted ml.ModelArtifact, ensemble *ml.Ensemble) error {
	pa := ml.PredictAll(bagged, test)
	pb := ml.PredictAll(boosted, test)
	ps := make([]float64, test.Len())
	report.Predictions = make([]evaluate.Prediction, test.Len())
	for i := range ps {
		ps[i] = ensemble.Combine(pa[i], pb[i])
		report.Predictions[i] = evaluate.Prediction{Row: i, Label: test.Labels[i], Bagged: pa[i], Boosted: pb[i], Stacked: ps[i]}
	}

	for _, m := range []struct {
		name  string
		probs []float64
	}{{ModelBagged, pa}, {ModelBoosted, pb}, {ModelStacked, ps}} {
		scored, err := p.evaluator.Score(m.name, m.probs, test.Labels)
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", m.name, err)
		}
		report.Models = append(report.Models, scored)
		if p.metrics != nil {
			p.metrics.EvaluationSet(m.name, scored.Accuracy, scored.AUC)
		}
		log.Info().
			Str("model", m.name).
			Float64("accuracy", scored.Accuracy).
			Float64("auc", scored.AUC).
			Float64("f1", scored.F1).
			Msg("Model evaluated")
	}

	report.Importances = make(map[string][]ml.FeatureImportance, 2)
	for _, m := range []ml.ModelArtifact{bagged, boosted} {
		ranked, err := ml.RankImportances(names, m.FeatureImportances())
		if err != nil {
			return err
		}
		report.Importances[string(m.Variant())] = ranked
	}
	return nil
}

func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	if p.metrics != nil {
		p.metrics.StageObserve(name, elapsed.Seconds())
	}
	log.Debug().Str("stage", name).Dur("duration", elapsed).Err(err).Msg("Stage finished")
	return err
}
