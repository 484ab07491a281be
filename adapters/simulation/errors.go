package simulation

import (
	apperrors "abtest/internal/errors"
)

// Precondition failures. All are terminal for the run that raised them.
var (
	ErrInvalidSampleSize  = apperrors.New(apperrors.CodeInvalidSampleSize, "sample size must be positive")
	ErrInvalidProbability = apperrors.New(apperrors.CodeInvalidProbability, "probability must be in [0, 1]")
	ErrInvalidTrialCount  = apperrors.New(apperrors.CodeInvalidTrialCount, "trial count must be positive")
	ErrEmptyDistribution  = apperrors.New(apperrors.CodeEmptyDistribution, "null distribution is empty")
	ErrInvalidAlternative = apperrors.New(apperrors.CodeInvalidAlternative, "alternative must be greater or less")
)
