package ml

import (
	"errors"
	"fmt"
	"math"

	"clinical-ensemble/internal/dataset"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// DefaultMinStackRows is the smallest evaluation set a two-input logistic fit accepts.
const DefaultMinStackRows = 20

// StackedFeature pairs the two base probabilities of one row with its true label.
type StackedFeature struct {
	A, B  float64
	Label dataset.Label
}

// BuildStackedFeatures scores every row of set with both base learners.
func BuildStackedFeatures(a, b Classifier, set *dataset.Dataset) []StackedFeature {
	out := make([]StackedFeature, set.Len())
	for i, r := range set.Records {
		out[i] = StackedFeature{A: a.PredictProbability(r), B: b.PredictProbability(r), Label: set.Labels[i]}
	}
	return out
}

// MetaEnsembler fits the second-stage logistic model. Coefficients on the base
// probabilities carry an L2 penalty of 1/C and are constrained to be non-negative,
// which keeps the stacked probability monotone in both inputs. The bias is free.
type MetaEnsembler struct {
	MinRows int
	C       float64
	MaxIter int
	Tol     float64
}

func NewMetaEnsembler(minRows int) *MetaEnsembler {
	if minRows <= 0 {
		minRows = DefaultMinStackRows
	}
	return &MetaEnsembler{MinRows: minRows, C: 1, MaxIter: 100, Tol: 1e-8}
}

// Stack fits the meta-learner on the base probabilities over evalSet. evalSet
// must be disjoint from the rows a and b were trained on.
func (m *MetaEnsembler) Stack(a, b Classifier, evalSet *dataset.Dataset) (*Ensemble, error) {
	if err := m.CheckSet(evalSet); err != nil {
		return nil, err
	}

	coef, err := m.fit(BuildStackedFeatures(a, b, evalSet))
	if err != nil {
		return nil, err
	}

	e := &Ensemble{Bias: coef[0], WeightA: coef[1], WeightB: coef[2], a: a, b: b}
	log.Info().
		Int("rows", evalSet.Len()).
		Float64("bias", e.Bias).
		Float64("weight_a", e.WeightA).
		Float64("weight_b", e.WeightB).
		Msg("Meta-learner fitted")
	return e, nil
}

// CheckSet reports whether evalSet can be stacked on: at least MinRows rows
// and both classes present.
func (m *MetaEnsembler) CheckSet(evalSet *dataset.Dataset) error {
	if evalSet.Len() < m.MinRows {
		return fmt.Errorf("%w: %d rows, need %d", ErrInsufficientStackingData, evalSet.Len(), m.MinRows)
	}
	if neg, pos := evalSet.ClassCounts(); neg == 0 || pos == 0 {
		return fmt.Errorf("%w: stacking set has %d negative, %d positive", ErrDegenerateLabelSet, neg, pos)
	}
	return nil
}

// fit returns (bias, wA, wB). A coefficient that comes out negative is pinned
// to zero and the rest refitted.
func (m *MetaEnsembler) fit(rows []StackedFeature) ([3]float64, error) {
	free := [3]bool{true, true, true}
	for {
		coef, err := m.newton(rows, free)
		if err != nil {
			return coef, err
		}
		pinned := false
		for j := 1; j < 3; j++ {
			if free[j] && coef[j] < 0 {
				free[j] = false
				pinned = true
			}
		}
		if !pinned {
			return coef, nil
		}
	}
}

// newton minimises the penalised log loss over the free coefficients by damped
// Newton steps.
func (m *MetaEnsembler) newton(rows []StackedFeature, free [3]bool) ([3]float64, error) {
	var active []int
	for j, ok := range free {
		if ok {
			active = append(active, j)
		}
	}
	k := len(active)
	lambda := 1 / m.C

	var coef [3]float64
	x := func(s StackedFeature) [3]float64 { return [3]float64{1, s.A, s.B} }

	loss := func(c [3]float64) float64 {
		var l float64
		for _, s := range rows {
			xi := x(s)
			z := c[0]*xi[0] + c[1]*xi[1] + c[2]*xi[2]
			l += logLoss(z, float64(s.Label))
		}
		return l + 0.5*lambda*(c[1]*c[1]+c[2]*c[2])
	}

	current := loss(coef)
	for iter := 0; iter < m.MaxIter; iter++ {
		grad := mat.NewVecDense(k, nil)
		hess := mat.NewSymDense(k, nil)
		for _, s := range rows {
			xi := x(s)
			p := sigmoid(coef[0] + coef[1]*xi[1] + coef[2]*xi[2])
			r, h := p-float64(s.Label), p*(1-p)
			for a, ja := range active {
				grad.SetVec(a, grad.AtVec(a)+r*xi[ja])
				for b := a; b < k; b++ {
					hess.SetSym(a, b, hess.At(a, b)+h*xi[ja]*xi[active[b]])
				}
			}
		}
		for a, ja := range active {
			if ja == 0 {
				continue
			}
			grad.SetVec(a, grad.AtVec(a)+lambda*coef[ja])
			hess.SetSym(a, a, hess.At(a, a)+lambda)
		}

		var step mat.VecDense
		if err := step.SolveVec(hess, grad); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return coef, fmt.Errorf("%w: %v", ErrStackingFitFailed, err)
			}
		}

		accepted := false
		for t := 1.0; t > 1e-10; t /= 2 {
			next := coef
			for a, ja := range active {
				next[ja] = coef[ja] - t*step.AtVec(a)
			}
			if l := loss(next); l <= current {
				coef, current = next, l
				accepted = true
				break
			}
		}

		if math.IsNaN(current) || math.IsInf(current, 0) {
			return coef, fmt.Errorf("%w: loss is %v", ErrStackingFitFailed, current)
		}
		if !accepted || mat.Norm(&step, math.Inf(1)) < m.Tol {
			return coef, nil
		}
	}
	return coef, fmt.Errorf("%w: no convergence after %d iterations", ErrStackingFitFailed, m.MaxIter)
}

// logLoss is the negative log likelihood of label y under logit z.
func logLoss(z, y float64) float64 {
	// log(1+e^z) - y*z, computed without overflow.
	if z > 0 {
		return z + math.Log1p(math.Exp(-z)) - y*z
	}
	return math.Log1p(math.Exp(z)) - y*z
}

// Ensemble is the stacked model. Its probability is
// sigmoid(Bias + WeightA*pA + WeightB*pB) with WeightA, WeightB >= 0.
type Ensemble struct {
	Bias    float64 `json:"bias"`
	WeightA float64 `json:"weight_a"`
	WeightB float64 `json:"weight_b"`

	a, b Classifier
}

// Combine maps a pair of base probabilities to the stacked probability.
func (e *Ensemble) Combine(pA, pB float64) float64 {
	return sigmoid(e.Bias + e.WeightA*pA + e.WeightB*pB)
}

func (e *Ensemble) PredictProbability(r dataset.FeatureRecord) float64 {
	return e.Combine(e.a.PredictProbability(r), e.b.PredictProbability(r))
}

func (e *Ensemble) Predict(r dataset.FeatureRecord) dataset.Label {
	return labelFor(e.PredictProbability(r))
}
