package ml

import (
	"context"
	"math"
	"math/rand"

	"clinical-ensemble/internal/dataset"

	"github.com/rs/zerolog/log"
)

const (
	boostLambda  = 1.0
	minSubsample = 2
)

// Booster is the boosted-tree variant: an additive logistic model where each
// stage is a regression tree fitted by one Newton step on the weighted log loss.
// Positive rows carry positiveWeight, negatives weight 1.
type Booster struct {
	base         float64
	learningRate float64
	trees        []*node
	importances  []float64
}

func fitBooster(ctx context.Context, set *dataset.Dataset, positiveWeight float64, p Params, seed int64) (*Booster, error) {
	n := set.Len()
	y := set.LabelsAsFloat()

	w := make([]float64, n)
	var wPos, wNeg float64
	for i, v := range y {
		if v == 1 {
			w[i] = positiveWeight
			wPos += w[i]
		} else {
			w[i] = 1
			wNeg += w[i]
		}
	}

	b := &Booster{
		base:         math.Log(wPos / wNeg),
		learningRate: p.LearningRate,
		trees:        make([]*node, 0, p.EnsembleSize),
	}

	score := make([]float64, n)
	for i := range score {
		score[i] = b.base
	}

	rnd := rand.New(rand.NewSource(seed))
	gain := make([]float64, set.Dim())
	for round := 0; round < p.EnsembleSize; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		gr := newGrower(set.Records, newtonCriterion{lambda: boostLambda}, p.MaxDepth, 0, rnd)
		for i := range y {
			prob := sigmoid(score[i])
			gr.s1[i] = w[i] * (prob - y[i])
			gr.s2[i] = w[i] * prob * (1 - prob)
		}

		tree := gr.grow(subsample(rnd, n, p.Subsample), 0)
		for i, r := range set.Records {
			score[i] += b.learningRate * tree.eval(r)
		}
		for f, v := range gr.importance {
			gain[f] += v
		}
		b.trees = append(b.trees, tree)
	}
	b.importances = normalize(gain)

	log.Debug().
		Int("rounds", len(b.trees)).
		Float64("base_score", b.base).
		Float64("positive_weight", positiveWeight).
		Msg("Booster fitted")

	return b, nil
}

// subsample returns the row indices for one boosting round.
func subsample(rnd *rand.Rand, n int, fraction float64) []int {
	idx := make([]int, 0, n)
	if fraction >= 1 {
		for i := 0; i < n; i++ {
			idx = append(idx, i)
		}
		return idx
	}
	for i := 0; i < n; i++ {
		if rnd.Float64() < fraction {
			idx = append(idx, i)
		}
	}
	if len(idx) < minSubsample {
		return subsample(rnd, n, 1)
	}
	return idx
}

func (b *Booster) Variant() Variant { return VariantBoosted }

// Margin is the raw additive score before the logistic link.
func (b *Booster) Margin(r dataset.FeatureRecord) float64 {
	m := b.base
	for _, t := range b.trees {
		m += b.learningRate * t.eval(r)
	}
	return m
}

func (b *Booster) PredictProbability(r dataset.FeatureRecord) float64 {
	return sigmoid(b.Margin(r))
}

func (b *Booster) Predict(r dataset.FeatureRecord) dataset.Label {
	return labelFor(b.PredictProbability(r))
}

func (b *Booster) FeatureImportances() []float64 {
	out := make([]float64, len(b.importances))
	copy(out, b.importances)
	return out
}

// Size is the number of boosting rounds.
func (b *Booster) Size() int { return len(b.trees) }

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
