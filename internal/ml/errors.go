package ml

import "errors"

var (
	ErrTrainingSetTooSmall      = errors.New("ml: training set smaller than ensemble size")
	ErrDegenerateLabelSet       = errors.New("ml: training set has a single label value")
	ErrInsufficientStackingData = errors.New("ml: not enough rows to fit the meta-learner")
	ErrStackingFitFailed        = errors.New("ml: meta-learner fit did not converge")
	ErrUnknownVariant           = errors.New("ml: unknown model variant")
)
