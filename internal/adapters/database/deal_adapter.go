package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/flipscan/arbcheck/internal/domain/entities"
	"github.com/flipscan/arbcheck/internal/domain/repositories"
	"github.com/flipscan/arbcheck/internal/infrastructure/clients/postgres"
)

const dealReportsTable = "deal_reports"

// DealAdapter persists deal reports to PostgreSQL.
type DealAdapter struct {
	db *goqu.Database
}

// NewDealAdapter creates a PostgreSQL-backed deal repository.
func NewDealAdapter(client *postgres.Client) repositories.DealRepository {
	return &DealAdapter{db: goqu.New("postgres", client.DB())}
}

type dealRow struct {
	ID                string    `db:"id"`
	Title             string    `db:"title"`
	BuyPrice          float64   `db:"buy_price"`
	URL               string    `db:"url"`
	Category          string    `db:"category"`
	Condition         string    `db:"condition"`
	Mode              string    `db:"mode"`
	Confidence        string    `db:"confidence"`
	Query             string    `db:"query"`
	Status            string    `db:"status"`
	Reason            string    `db:"reason"`
	NearMiss          bool      `db:"near_miss"`
	ExpectedSalePrice float64   `db:"expected_sale_price"`
	NetProfit         float64   `db:"net_profit"`
	NetROI            float64   `db:"net_roi"`
	CompCount         int       `db:"comp_count"`
	CompsStatus       string    `db:"comps_status"`
	CreatedAt         time.Time `db:"created_at"`
}

// Save inserts a deal report, replacing any prior report with the same id.
func (a *DealAdapter) Save(ctx context.Context, report *entities.DealReport) error {
	record := goqu.Record{
		"id":                  report.ID,
		"title":               report.Title,
		"buy_price":           report.BuyPrice,
		"url":                 report.URL,
		"category":            report.Category,
		"condition":           report.Condition,
		"mode":                string(report.Mode),
		"confidence":          string(report.Confidence),
		"query":               report.Query,
		"status":              string(report.Status),
		"reason":              report.Reason,
		"near_miss":           report.NearMiss,
		"expected_sale_price": report.ExpectedSalePrice(),
		"net_profit":          report.NetProfit(),
		"net_roi":             report.NetROI(),
		"comp_count":          report.CompCount(),
		"comps_status":        compsStatus(report),
		"created_at":          report.CreatedAt,
	}

	_, err := a.db.Insert(dealReportsTable).
		Rows(record).
		OnConflict(goqu.DoUpdate("id", record)).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to save deal report: %w", err)
	}
	return nil
}

// ListPending returns deals a previous run left pending, oldest first.
func (a *DealAdapter) ListPending(ctx context.Context) ([]*entities.DealReport, error) {
	var rows []dealRow
	err := a.db.From(dealReportsTable).
		Where(goqu.Ex{"status": string(entities.DealPending)}).
		Order(goqu.I("created_at").Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deals: %w", err)
	}

	reports := make([]*entities.DealReport, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, rowToReport(row))
	}
	return reports, nil
}

func rowToReport(row dealRow) *entities.DealReport {
	report := &entities.DealReport{
		ID:         row.ID,
		Title:      row.Title,
		BuyPrice:   row.BuyPrice,
		URL:        row.URL,
		Category:   row.Category,
		Condition:  row.Condition,
		Mode:       entities.Mode(row.Mode),
		Confidence: entities.ConfidenceLevel(row.Confidence),
		Query:      row.Query,
		Status:     entities.DealStatus(row.Status),
		Reason:     row.Reason,
		NearMiss:   row.NearMiss,
		CreatedAt:  row.CreatedAt,
	}
	if strings.TrimSpace(row.CompsStatus) != "" {
		report.Comps = &entities.CompsResult{
			Status: entities.CompsStatus(row.CompsStatus),
			Stats: entities.PriceStats{
				ExpectedSalePrice: row.ExpectedSalePrice,
				TrimmedCount:      row.CompCount,
			},
			FromCache: true,
		}
	}
	return report
}

func compsStatus(report *entities.DealReport) string {
	if report.Comps == nil {
		return ""
	}
	return string(report.Comps.Status)
}
