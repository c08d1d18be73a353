package services

import (
	"fmt"

	"github.com/flipscan/arbcheck/internal/domain/entities"
	apperrors "github.com/flipscan/arbcheck/pkg/errors"
)

// modeThresholds maps each named mode to its pass criteria.
var modeThresholds = map[entities.Mode]entities.Thresholds{
	entities.ModeConservative: {MinNetProfit: 20.0, MinNetROI: 0.25, MinCompCount: 5},
	entities.ModeHighTicket:   {MinNetProfit: 12.0, MinNetROI: 0.10, MinCompCount: 6},
}

// EvaluationService turns comps-derived economics into a pass/fail
// verdict. The evaluator itself is mode-agnostic; mode resolution
// happens in ThresholdsForMode at the caller's request.
type EvaluationService struct{}

// NewEvaluationService creates an evaluation service.
func NewEvaluationService() *EvaluationService {
	return &EvaluationService{}
}

// ThresholdsForMode resolves a named mode to its threshold triple.
func (s *EvaluationService) ThresholdsForMode(mode entities.Mode) (entities.Thresholds, error) {
	th, ok := modeThresholds[mode]
	if !ok {
		return entities.Thresholds{}, apperrors.NewValidationError(fmt.Sprintf("unknown evaluation mode %q", mode))
	}
	return th, nil
}

// Evaluate nets fees and shipping out of the expected sale price and
// checks the result against the thresholds. A deal passes only when all
// three conditions hold; every unmet condition is retained as a
// distinct fail reason.
func (s *EvaluationService) Evaluate(
	buyPrice, expectedSalePrice float64,
	compCount int,
	fees entities.FeeModel,
	th entities.Thresholds,
) entities.EvaluationResult {
	grossProfit := expectedSalePrice - buyPrice
	feesTotal := expectedSalePrice * (fees.MarketplaceFeePct + fees.PaymentFeePct)
	netProfit := grossProfit - feesTotal - fees.FlatShipping

	netROI := 0.0
	if buyPrice > 0 {
		netROI = netProfit / buyPrice
	}

	var failReasons []entities.FailReason
	if netProfit < th.MinNetProfit {
		failReasons = append(failReasons, entities.FailReason{
			Dimension: entities.FailNetProfit,
			Measured:  netProfit,
			Required:  th.MinNetProfit,
			Message:   fmt.Sprintf("net profit below minimum: $%.2f vs $%.2f", netProfit, th.MinNetProfit),
		})
	}
	if netROI < th.MinNetROI {
		failReasons = append(failReasons, entities.FailReason{
			Dimension: entities.FailNetROI,
			Measured:  netROI,
			Required:  th.MinNetROI,
			Message:   fmt.Sprintf("net ROI below minimum: %.1f%% vs %.1f%%", netROI*100, th.MinNetROI*100),
		})
	}
	if compCount < th.MinCompCount {
		failReasons = append(failReasons, entities.FailReason{
			Dimension: entities.FailCompCount,
			Measured:  float64(compCount),
			Required:  float64(th.MinCompCount),
			Message:   fmt.Sprintf("comp count below minimum: %d vs %d", compCount, th.MinCompCount),
		})
	}

	passed := len(failReasons) == 0
	status := entities.EvaluationFailed
	if passed {
		status = entities.EvaluationPassed
	}

	return entities.EvaluationResult{
		GrossProfit: grossProfit,
		Fees:        feesTotal,
		NetProfit:   netProfit,
		NetROI:      netROI,
		Passed:      passed,
		Status:      status,
		FailReasons: failReasons,
	}
}

// IsNearMiss reports whether a failed deal came within the margins on
// any one of its failed dimensions. Passed results are never near
// misses.
func (s *EvaluationService) IsNearMiss(result entities.EvaluationResult, margins entities.NearMissMargins) bool {
	if result.Passed {
		return false
	}
	for _, reason := range result.FailReasons {
		shortfall := reason.Required - reason.Measured
		switch reason.Dimension {
		case entities.FailNetProfit:
			if shortfall <= margins.Profit {
				return true
			}
		case entities.FailNetROI:
			if shortfall <= margins.ROI {
				return true
			}
		case entities.FailCompCount:
			if shortfall <= float64(margins.CompCount) {
				return true
			}
		}
	}
	return false
}
