package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipscan/arbcheck/internal/domain/entities"
	"github.com/flipscan/arbcheck/internal/domain/repositories"
	apperrors "github.com/flipscan/arbcheck/pkg/errors"
)

type fakeDealRepo struct {
	saved   []*entities.DealReport
	pending []*entities.DealReport
}

func (r *fakeDealRepo) Save(_ context.Context, report *entities.DealReport) error {
	r.saved = append(r.saved, report)
	return nil
}

func (r *fakeDealRepo) ListPending(_ context.Context) ([]*entities.DealReport, error) {
	return r.pending, nil
}

func testScanConfig() ScanConfig {
	return ScanConfig{
		Mode:                entities.ModeHighTicket,
		MinBuyPrice:         20.0,
		LowConfidenceCeil:   30.0,
		CategoryDenylist:    []string{"baby", "clothing"},
		StopBatchOnThrottle: true,
		Fees:                testFees,
		Margins:             entities.NearMissMargins{Profit: 5.0, ROI: 0.05, CompCount: 2},
	}
}

func newScanFixture(responses []fakeResponse, cfg ScanConfig, repo *fakeDealRepo) (*ScanService, *compsFixture) {
	f := newCompsFixture(responses, CompsConfig{})
	var dealRepo repositories.DealRepository
	if repo != nil {
		dealRepo = repo
	}
	svc := NewScanService(f.svc, NewConfidenceService(), NewEvaluationService(), dealRepo, cfg)
	return svc, f
}

var milwaukeePrices = []float64{70, 72, 75, 300, 68, 71, 69, 73}

func TestScan_EndToEndPassingDeal(t *testing.T) {
	svc, f := newScanFixture([]fakeResponse{
		{listings: soldListings(milwaukeePrices...)},
	}, testScanConfig(), nil)

	reports, summary, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "Milwaukee M18 Fuel Drill Kit", BuyPrice: 34.99},
	})

	require.NoError(t, err)
	require.Len(t, reports, 1)
	report := reports[0]

	assert.Equal(t, entities.DealPassed, report.Status)
	assert.Equal(t, entities.ConfidenceHigh, report.Confidence)
	assert.Equal(t, "milwaukee m18 fuel drill", report.Query)

	require.NotNil(t, report.Comps)
	assert.Equal(t, 7, report.Comps.Stats.TrimmedCount, "the 300 outlier is trimmed")
	assert.Equal(t, 71.0, report.Comps.Stats.ExpectedSalePrice)

	require.NotNil(t, report.Evaluation)
	assert.True(t, report.Evaluation.Passed)
	assert.Greater(t, report.Evaluation.NetProfit, 12.0)
	assert.InDelta(t, 14.4725, report.Evaluation.NetProfit, 1e-9)

	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.CallsMade)
	assert.Equal(t, 1, f.provider.calls)
}

func TestScan_NonFlippableSkipped(t *testing.T) {
	deals := []entities.Deal{
		{Title: "Milwaukee M18 Drill (Refurbished)", BuyPrice: 50},
		{Title: "DeWalt DCD771", Condition: "For parts or not working", BuyPrice: 50},
		{Title: "Lot of 5 assorted tools", BuyPrice: 50},
	}
	svc, f := newScanFixture(nil, testScanConfig(), nil)

	reports, summary, err := svc.Scan(context.Background(), deals)

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Skipped)
	for _, report := range reports {
		assert.Equal(t, entities.DealSkipped, report.Status)
		assert.Contains(t, report.Reason, "not flippable")
	}
	assert.Equal(t, 0, f.provider.calls, "gated deals never reach the network")
}

func TestScan_LowPriceSkipped(t *testing.T) {
	svc, f := newScanFixture(nil, testScanConfig(), nil)

	reports, _, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "Milwaukee M18 Drill", BuyPrice: 15},
	})

	require.NoError(t, err)
	assert.Equal(t, entities.DealSkipped, reports[0].Status)
	assert.Equal(t, 0, f.provider.calls)
}

func TestScan_DenylistedCategorySkipped(t *testing.T) {
	svc, f := newScanFixture(nil, testScanConfig(), nil)

	reports, _, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "Milwaukee branded onesie", Category: "Baby Apparel", BuyPrice: 50},
	})

	require.NoError(t, err)
	assert.Equal(t, entities.DealSkipped, reports[0].Status)
	assert.Contains(t, reports[0].Reason, "denylisted")
	assert.Equal(t, 0, f.provider.calls)
}

func TestScan_LowConfidenceCheapItemSkipped(t *testing.T) {
	svc, f := newScanFixture(nil, testScanConfig(), nil)

	reports, _, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "nice tool thing", BuyPrice: 25},
	})

	require.NoError(t, err)
	assert.Equal(t, entities.DealSkipped, reports[0].Status)
	assert.Equal(t, entities.ConfidenceLow, reports[0].Confidence)
	assert.Equal(t, 0, f.provider.calls, "core lookup is not invoked")
}

func TestScan_LowConfidenceExpensiveItemProceeds(t *testing.T) {
	svc, f := newScanFixture([]fakeResponse{
		{listings: soldListings(milwaukeePrices...)},
	}, testScanConfig(), nil)

	reports, _, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "nice tool thing", BuyPrice: 45},
	})

	require.NoError(t, err)
	assert.NotEqual(t, entities.DealSkipped, reports[0].Status)
	assert.Equal(t, 1, f.provider.calls)
}

func TestScan_FilterWithoutSizeSkipped(t *testing.T) {
	svc, f := newScanFixture(nil, testScanConfig(), nil)

	reports, _, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "MERV 12 Air Filter Replacement", BuyPrice: 25},
	})

	require.NoError(t, err)
	assert.Equal(t, entities.DealSkipped, reports[0].Status)
	assert.Contains(t, reports[0].Reason, "size")
	assert.Equal(t, 0, f.provider.calls)
}

func TestScan_NoSoldCompsFails(t *testing.T) {
	svc, _ := newScanFixture([]fakeResponse{{}}, testScanConfig(), nil)

	reports, summary, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "Milwaukee M18 Drill", BuyPrice: 50},
	})

	require.NoError(t, err)
	assert.Equal(t, entities.DealFailed, reports[0].Status)
	assert.Equal(t, "no sold comps found", reports[0].Reason)
	assert.Equal(t, 1, summary.Failed)
}

func TestScan_NearMissFlagged(t *testing.T) {
	svc, _ := newScanFixture([]fakeResponse{
		{listings: soldListings(milwaukeePrices...)},
	}, testScanConfig(), nil)

	// Expected sale 71.0: net profit 9.46 misses the $12 floor by $2.54,
	// inside the $5 margin.
	reports, summary, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "Milwaukee M18 Fuel Drill Kit", BuyPrice: 40},
	})

	require.NoError(t, err)
	report := reports[0]
	assert.Equal(t, entities.DealFailed, report.Status)
	assert.True(t, report.NearMiss)
	assert.Equal(t, 1, summary.NearMisses)
}

func TestScan_WideMissNotNearMiss(t *testing.T) {
	svc, _ := newScanFixture([]fakeResponse{
		{listings: soldListings(milwaukeePrices...)},
	}, testScanConfig(), nil)

	reports, _, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "Milwaukee M18 Fuel Drill Kit", BuyPrice: 64.99},
	})

	require.NoError(t, err)
	report := reports[0]
	assert.Equal(t, entities.DealFailed, report.Status)
	assert.False(t, report.NearMiss)
}

func TestScan_ThrottleStopsBatch(t *testing.T) {
	throttled := apperrors.NewThrottledError("rate limit")
	svc, f := newScanFixture([]fakeResponse{
		{err: throttled}, {err: throttled}, {err: throttled},
	}, testScanConfig(), nil)

	reports, summary, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "Milwaukee M18 Drill", BuyPrice: 50},
		{Title: "DeWalt DCD771 Drill", BuyPrice: 60},
		{Title: "Makita XFD131 Drill", BuyPrice: 70},
	})

	require.NoError(t, err)
	assert.Equal(t, entities.DealPending, reports[0].Status)
	assert.Equal(t, entities.DealPending, reports[1].Status)
	assert.Equal(t, entities.DealPending, reports[2].Status)
	assert.Equal(t, 3, summary.Pending)
	assert.Equal(t, 3, f.provider.calls, "only the first deal's retries hit the network")
}

func TestScan_BudgetExhaustedLeavesPendingAndContinues(t *testing.T) {
	cfg := testScanConfig()
	clock := newFakeClock()
	cache := newMemCache()
	provider := &fakeProvider{clock: clock, responses: []fakeResponse{
		{listings: soldListings(milwaukeePrices...)},
	}}
	comps := NewCompsService(cache, provider, NewConfidenceService(), clock, CompsConfig{MaxCallsPerRun: 1})
	svc := NewScanService(comps, NewConfidenceService(), NewEvaluationService(), nil, cfg)

	reports, summary, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "Milwaukee M18 Fuel Drill Kit", BuyPrice: 34.99},
		{Title: "DeWalt DCD771 Drill", BuyPrice: 60},
		{Title: "Makita XFD131 Drill (Refurbished)", BuyPrice: 70},
	})

	require.NoError(t, err)
	assert.Equal(t, entities.DealPassed, reports[0].Status)
	assert.Equal(t, entities.DealPending, reports[1].Status)
	assert.Equal(t, "call budget exhausted", reports[1].Reason)
	assert.Equal(t, entities.DealSkipped, reports[2].Status, "budget exhaustion does not stop the batch")
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, 1, provider.calls)
}

func TestScan_APIFailIsFailed(t *testing.T) {
	svc, _ := newScanFixture([]fakeResponse{
		{err: apperrors.NewExternalError("status 502", nil)},
	}, testScanConfig(), nil)

	reports, _, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "Milwaukee M18 Drill", BuyPrice: 50},
	})

	require.NoError(t, err)
	assert.Equal(t, entities.DealFailed, reports[0].Status)
	assert.Equal(t, "marketplace api failure", reports[0].Reason)
}

func TestScan_ThinCompsFailOnCompCount(t *testing.T) {
	svc, _ := newScanFixture([]fakeResponse{
		{listings: soldListings(70, 72, 71)},
	}, testScanConfig(), nil)

	reports, _, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "Milwaukee M18 Fuel Drill Kit", BuyPrice: 34.99},
	})

	require.NoError(t, err)
	report := reports[0]
	assert.Equal(t, entities.DealFailed, report.Status)
	require.NotNil(t, report.Evaluation)

	var dims []entities.FailDimension
	for _, r := range report.Evaluation.FailReasons {
		dims = append(dims, r.Dimension)
	}
	assert.Contains(t, dims, entities.FailCompCount)
}

func TestScan_PersistsReports(t *testing.T) {
	repo := &fakeDealRepo{}
	f := newCompsFixture([]fakeResponse{
		{listings: soldListings(milwaukeePrices...)},
	}, CompsConfig{})
	svc := NewScanService(f.svc, NewConfidenceService(), NewEvaluationService(), repo, testScanConfig())

	reports, _, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "Milwaukee M18 Fuel Drill Kit", BuyPrice: 34.99},
		{Title: "Broken thing for parts", BuyPrice: 50},
	})

	require.NoError(t, err)
	require.Len(t, repo.saved, 2)
	assert.Equal(t, reports[0].ID, repo.saved[0].ID)
	assert.NotEmpty(t, repo.saved[0].ID)
	assert.NotEqual(t, repo.saved[0].ID, repo.saved[1].ID)
}

func TestResume_RescansPendingDeals(t *testing.T) {
	repo := &fakeDealRepo{
		pending: []*entities.DealReport{
			{Title: "Milwaukee M18 Fuel Drill Kit", BuyPrice: 34.99, Status: entities.DealPending},
		},
	}
	f := newCompsFixture([]fakeResponse{
		{listings: soldListings(milwaukeePrices...)},
	}, CompsConfig{})
	svc := NewScanService(f.svc, NewConfidenceService(), NewEvaluationService(), repo, testScanConfig())

	reports, summary, err := svc.Resume(context.Background())

	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, entities.DealPassed, reports[0].Status)
	assert.Equal(t, 1, summary.Passed)
}

// upsertDealRepo mirrors the postgres adapter's semantics: Save replaces
// a report with the same id, ListPending filters by status.
type upsertDealRepo struct {
	rows map[string]*entities.DealReport
}

func (r *upsertDealRepo) Save(_ context.Context, report *entities.DealReport) error {
	if r.rows == nil {
		r.rows = map[string]*entities.DealReport{}
	}
	r.rows[report.ID] = report
	return nil
}

func (r *upsertDealRepo) ListPending(_ context.Context) ([]*entities.DealReport, error) {
	var pending []*entities.DealReport
	for _, report := range r.rows {
		if report.Status == entities.DealPending {
			pending = append(pending, report)
		}
	}
	return pending, nil
}

func TestResume_ReplacesPendingRowInPlace(t *testing.T) {
	repo := &upsertDealRepo{rows: map[string]*entities.DealReport{
		"pending-1": {
			ID:       "pending-1",
			Title:    "Milwaukee M18 Fuel Drill Kit",
			BuyPrice: 34.99,
			Status:   entities.DealPending,
		},
	}}
	f := newCompsFixture([]fakeResponse{
		{listings: soldListings(milwaukeePrices...)},
	}, CompsConfig{})
	svc := NewScanService(f.svc, NewConfidenceService(), NewEvaluationService(), repo, testScanConfig())

	reports, _, err := svc.Resume(context.Background())

	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "pending-1", reports[0].ID, "resumed report keeps the source row's id")
	assert.Equal(t, entities.DealPassed, reports[0].Status)

	require.Len(t, repo.rows, 1, "resolved report replaces the pending row")
	pending, err := repo.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending, "nothing left to resume")
}

func TestResume_ThrottledDealStaysOnSameRow(t *testing.T) {
	repo := &upsertDealRepo{rows: map[string]*entities.DealReport{
		"pending-1": {
			ID:       "pending-1",
			Title:    "Milwaukee M18 Fuel Drill Kit",
			BuyPrice: 34.99,
			Status:   entities.DealPending,
		},
	}}
	throttled := apperrors.NewThrottledError("rate limit")
	f := newCompsFixture([]fakeResponse{
		{err: throttled}, {err: throttled}, {err: throttled},
	}, CompsConfig{})
	svc := NewScanService(f.svc, NewConfidenceService(), NewEvaluationService(), repo, testScanConfig())

	reports, _, err := svc.Resume(context.Background())

	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, entities.DealPending, reports[0].Status)
	require.Len(t, repo.rows, 1)

	pending, err := repo.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1, "still exactly one row to resume next run")
	assert.Equal(t, "pending-1", pending[0].ID)
}

func TestScan_SummaryCountsCacheAndStatuses(t *testing.T) {
	svc, f := newScanFixture([]fakeResponse{
		{listings: soldListings(milwaukeePrices...)},
	}, testScanConfig(), nil)

	_, summary, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "Milwaukee M18 Fuel Drill Kit", BuyPrice: 34.99},
		{Title: "Milwaukee M18 Fuel Drill Kit", BuyPrice: 40},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.provider.calls, "second deal is served from cache")
	assert.Equal(t, 1, summary.CacheHits)
	assert.Equal(t, 1, summary.CacheMisses)
	assert.Equal(t, map[entities.CompsStatus]int{entities.CompsOK: 2}, summary.CompsStatuses)
}

func TestScan_UnknownModeIsError(t *testing.T) {
	cfg := testScanConfig()
	cfg.Mode = entities.Mode("aggressive")
	svc, _ := newScanFixture(nil, cfg, nil)

	_, _, err := svc.Scan(context.Background(), []entities.Deal{
		{Title: "Milwaukee M18 Drill", BuyPrice: 50},
	})

	assert.Error(t, err)
}
