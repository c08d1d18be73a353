package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/flipscan/arbcheck/internal/domain/entities"
	"github.com/flipscan/arbcheck/internal/domain/repositories"
)

// nonFlippableMarkers disqualify a deal outright: listings in these
// conditions or formats do not resell at comp prices.
var nonFlippableMarkers = []string{
	"refurbished", "refurb", "open box", "open-box",
	"parts only", "for parts", "parts/repair",
	"broken", "damaged", "not working",
	"accessories only", "accessory",
	"bundle", "lot of", "multi pack", "pack of", "set of",
}

// ScanConfig holds the gating knobs of the deal pipeline.
type ScanConfig struct {
	Mode                entities.Mode
	MinBuyPrice         float64
	LowConfidenceCeil   float64
	CategoryDenylist    []string
	StopBatchOnThrottle bool
	Fees                entities.FeeModel
	Margins             entities.NearMissMargins
}

// ScanSummary aggregates the outcome of one batch.
type ScanSummary struct {
	Scanned       int
	Passed        int
	Failed        int
	Skipped       int
	Pending       int
	NearMisses    int
	CallsMade     int
	CacheHits     int
	CacheMisses   int
	CompsStatuses map[entities.CompsStatus]int
}

// ScanService runs candidate deals through the full pipeline: cheap
// gates first, then the comps lookup, then economic evaluation. Deals
// interrupted by throttling or budget exhaustion come out pending so a
// later resume pass can finish them.
type ScanService struct {
	comps      *CompsService
	confidence *ConfidenceService
	eval       *EvaluationService
	repo       repositories.DealRepository
	cfg        ScanConfig
}

// NewScanService creates a scan service. repo may be nil when
// persistence is disabled.
func NewScanService(
	comps *CompsService,
	confidence *ConfidenceService,
	eval *EvaluationService,
	repo repositories.DealRepository,
	cfg ScanConfig,
) *ScanService {
	return &ScanService{
		comps:      comps,
		confidence: confidence,
		eval:       eval,
		repo:       repo,
		cfg:        cfg,
	}
}

// Scan evaluates a batch of deals sequentially. When throttling stops
// the batch, the remaining deals are reported pending untouched.
func (s *ScanService) Scan(ctx context.Context, deals []entities.Deal) ([]*entities.DealReport, ScanSummary, error) {
	return s.scanBatch(ctx, deals, nil)
}

// scanBatch runs the pipeline over a batch. ids, when non-nil, assigns
// each deal's report the given id so a resumed deal replaces its
// pending row instead of inserting a duplicate.
func (s *ScanService) scanBatch(ctx context.Context, deals []entities.Deal, ids []string) ([]*entities.DealReport, ScanSummary, error) {
	thresholds, err := s.eval.ThresholdsForMode(s.cfg.Mode)
	if err != nil {
		return nil, ScanSummary{}, err
	}

	s.comps.ResetRun()

	reports := make([]*entities.DealReport, 0, len(deals))
	summary := ScanSummary{CompsStatuses: map[entities.CompsStatus]int{}}
	stopped := false

	for i, deal := range deals {
		var report *entities.DealReport
		if stopped {
			report = s.newReport(deal, entities.DealPending, "batch stopped after throttling")
		} else {
			var stopBatch bool
			report, stopBatch = s.scanOne(ctx, deal, thresholds)
			if stopBatch {
				stopped = true
			}
		}
		if ids != nil && ids[i] != "" {
			report.ID = ids[i]
		}
		reports = append(reports, report)

		switch report.Status {
		case entities.DealPassed:
			summary.Passed++
		case entities.DealFailed:
			summary.Failed++
		case entities.DealSkipped:
			summary.Skipped++
		case entities.DealPending:
			summary.Pending++
		}
		if report.NearMiss {
			summary.NearMisses++
		}
		if report.Comps != nil {
			summary.CompsStatuses[report.Comps.Status]++
		}
	}

	summary.Scanned = len(reports)
	summary.CallsMade = s.comps.CallsMade()
	summary.CacheHits = s.comps.CacheHits()
	summary.CacheMisses = s.comps.CacheMisses()

	s.persist(ctx, reports)

	log.Info().
		Int("scanned", summary.Scanned).
		Int("passed", summary.Passed).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("pending", summary.Pending).
		Int("near_misses", summary.NearMisses).
		Int("calls_made", summary.CallsMade).
		Int("cache_hits", summary.CacheHits).
		Int("cache_misses", summary.CacheMisses).
		Interface("comps_statuses", summary.CompsStatuses).
		Msg("scan complete")

	return reports, summary, nil
}

// Resume re-scans deals that a previous run left pending.
func (s *ScanService) Resume(ctx context.Context) ([]*entities.DealReport, ScanSummary, error) {
	if s.repo == nil {
		return nil, ScanSummary{}, nil
	}
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, ScanSummary{}, err
	}

	deals := make([]entities.Deal, 0, len(pending))
	ids := make([]string, 0, len(pending))
	for _, r := range pending {
		deals = append(deals, entities.Deal{
			Title:     r.Title,
			BuyPrice:  r.BuyPrice,
			URL:       r.URL,
			Category:  r.Category,
			Condition: r.Condition,
		})
		ids = append(ids, r.ID)
	}
	log.Info().Int("pending", len(deals)).Msg("resuming pending deals")
	return s.scanBatch(ctx, deals, ids)
}

// scanOne runs a single deal through the gates and, when it survives
// them, the comps lookup and evaluation. The second return value
// requests a batch stop.
func (s *ScanService) scanOne(ctx context.Context, deal entities.Deal, thresholds entities.Thresholds) (*entities.DealReport, bool) {
	if marker, ok := s.nonFlippable(deal); ok {
		return s.newReport(deal, entities.DealSkipped, "not flippable: "+marker), false
	}
	if deal.BuyPrice < s.cfg.MinBuyPrice {
		return s.newReport(deal, entities.DealSkipped, "buy price below scan floor"), false
	}
	if term, ok := s.deniedCategory(deal); ok {
		return s.newReport(deal, entities.DealSkipped, "category denylisted: "+term), false
	}

	confidence := s.confidence.Score(deal.Title)
	report := s.newReport(deal, "", "")
	report.Confidence = confidence.Level
	report.ConfidenceReasons = confidence.Reasons
	report.Query = confidence.Query

	if confidence.Level == entities.ConfidenceLow && deal.BuyPrice < s.cfg.LowConfidenceCeil {
		report.Status = entities.DealSkipped
		report.Reason = "low confidence title on a cheap item"
		return report, false
	}

	if s.confidence.IsFilterLike(deal.Title) {
		if _, ok := s.confidence.ExtractFilterSize(deal.Title); !ok {
			report.Status = entities.DealSkipped
			report.Reason = "size-bearing category without extractable size"
			return report, false
		}
	}

	comps := s.comps.Lookup(ctx, deal.Title, LookupOptions{})
	report.Comps = comps

	switch comps.Status {
	case entities.CompsThrottled:
		report.Status = entities.DealPending
		report.Reason = "marketplace throttled"
		return report, s.cfg.StopBatchOnThrottle
	case entities.CompsBudgetExhausted:
		report.Status = entities.DealPending
		report.Reason = "call budget exhausted"
		return report, false
	case entities.CompsAPIFail:
		report.Status = entities.DealFailed
		report.Reason = "marketplace api failure"
		return report, false
	case entities.CompsNoSoldComps:
		report.Status = entities.DealFailed
		report.Reason = "no sold comps found"
		return report, false
	}

	// OK and LOW_CONFIDENCE_COMPS both carry statistics; a thin comp
	// set fails the comp-count threshold on its own.
	evaluation := s.eval.Evaluate(
		deal.BuyPrice,
		comps.Stats.ExpectedSalePrice,
		comps.Stats.TrimmedCount,
		s.cfg.Fees,
		thresholds,
	)
	report.Evaluation = &evaluation

	if evaluation.Passed {
		report.Status = entities.DealPassed
		log.Info().
			Str("title", deal.Title).
			Float64("buy", deal.BuyPrice).
			Float64("expected_sale", comps.Stats.ExpectedSalePrice).
			Float64("net_profit", evaluation.NetProfit).
			Msg("deal passed")
	} else {
		report.Status = entities.DealFailed
		report.Reason = failSummary(evaluation.FailReasons)
		report.NearMiss = s.eval.IsNearMiss(evaluation, s.cfg.Margins)
	}
	return report, false
}

func (s *ScanService) newReport(deal entities.Deal, status entities.DealStatus, reason string) *entities.DealReport {
	return &entities.DealReport{
		ID:        uuid.New().String(),
		Title:     deal.Title,
		BuyPrice:  deal.BuyPrice,
		URL:       deal.URL,
		Category:  deal.Category,
		Condition: deal.Condition,
		Mode:      s.cfg.Mode,
		Status:    status,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

// nonFlippable reports the first disqualifying marker found in the
// deal's title, condition or category.
func (s *ScanService) nonFlippable(deal entities.Deal) (string, bool) {
	haystack := strings.ToLower(deal.Title + " " + deal.Condition + " " + deal.Category)
	for _, marker := range nonFlippableMarkers {
		if strings.Contains(haystack, marker) {
			return marker, true
		}
	}
	return "", false
}

func (s *ScanService) deniedCategory(deal entities.Deal) (string, bool) {
	haystack := strings.ToLower(deal.Category + " " + deal.Title)
	for _, term := range s.cfg.CategoryDenylist {
		if term != "" && strings.Contains(haystack, strings.ToLower(term)) {
			return term, true
		}
	}
	return "", false
}

func (s *ScanService) persist(ctx context.Context, reports []*entities.DealReport) {
	if s.repo == nil {
		return
	}
	for _, report := range reports {
		if err := s.repo.Save(ctx, report); err != nil {
			log.Warn().Err(err).Str("id", report.ID).Str("title", report.Title).Msg("failed to persist deal report")
		}
	}
}

func failSummary(reasons []entities.FailReason) string {
	if len(reasons) == 0 {
		return ""
	}
	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		parts = append(parts, r.Message)
	}
	return strings.Join(parts, "; ")
}
