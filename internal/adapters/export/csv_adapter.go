package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flipscan/arbcheck/internal/domain/entities"
)

var csvHeader = []string{
	"id", "title", "buy_price", "query", "confidence", "status", "reason",
	"expected_sale_price", "net_profit", "net_roi", "comp_count", "near_miss", "url",
}

// CSVExporter writes scan reports as date-stamped CSV files for manual
// review in a spreadsheet.
type CSVExporter struct {
	dir string
	now func() time.Time
}

// NewCSVExporter creates an exporter writing into dir.
func NewCSVExporter(dir string) *CSVExporter {
	return &CSVExporter{dir: dir, now: time.Now}
}

// ExportAll writes every report to all_<date>.csv.
func (e *CSVExporter) ExportAll(reports []*entities.DealReport) (string, error) {
	return e.write("all", reports)
}

// ExportPassed writes the passing deals to passed_<date>.csv.
func (e *CSVExporter) ExportPassed(reports []*entities.DealReport) (string, error) {
	passed := filterReports(reports, func(r *entities.DealReport) bool {
		return r.Status == entities.DealPassed
	})
	return e.write("passed", passed)
}

// ExportNearMisses writes the near-miss deals to nearmiss_<date>.csv.
func (e *CSVExporter) ExportNearMisses(reports []*entities.DealReport) (string, error) {
	nearMisses := filterReports(reports, func(r *entities.DealReport) bool {
		return r.NearMiss
	})
	return e.write("nearmiss", nearMisses)
}

func (e *CSVExporter) write(prefix string, reports []*entities.DealReport) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	path := filepath.Join(e.dir, fmt.Sprintf("%s_%s.csv", prefix, e.now().Format("2006-01-02")))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return "", fmt.Errorf("failed to write report header: %w", err)
	}
	for _, report := range reports {
		if err := writer.Write(reportRow(report)); err != nil {
			return "", fmt.Errorf("failed to write report row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush report: %w", err)
	}

	log.Info().Str("path", path).Int("rows", len(reports)).Msg("wrote report")
	return path, nil
}

func reportRow(r *entities.DealReport) []string {
	return []string{
		r.ID,
		r.Title,
		formatFloat(r.BuyPrice),
		r.Query,
		string(r.Confidence),
		string(r.Status),
		r.Reason,
		formatFloat(r.ExpectedSalePrice()),
		formatFloat(r.NetProfit()),
		formatFloat(r.NetROI()),
		strconv.Itoa(r.CompCount()),
		strconv.FormatBool(r.NearMiss),
		r.URL,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func filterReports(reports []*entities.DealReport, keep func(*entities.DealReport) bool) []*entities.DealReport {
	out := make([]*entities.DealReport, 0, len(reports))
	for _, r := range reports {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
