package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipscan/arbcheck/internal/domain/entities"
)

func testReports() []*entities.DealReport {
	return []*entities.DealReport{
		{
			ID:       "id-1",
			Title:    "Milwaukee M18 Fuel Drill",
			BuyPrice: 34.99,
			Query:    "milwaukee m18 fuel drill",
			Status:   entities.DealPassed,
			Comps: &entities.CompsResult{
				Stats: entities.PriceStats{ExpectedSalePrice: 71.0, TrimmedCount: 7},
			},
			Evaluation: &entities.EvaluationResult{NetProfit: 14.47, NetROI: 0.41, Passed: true},
		},
		{
			ID:       "id-2",
			Title:    "DeWalt DCD771",
			BuyPrice: 40,
			Status:   entities.DealFailed,
			Reason:   "net profit below minimum",
			NearMiss: true,
		},
		{
			ID:       "id-3",
			Title:    "Broken thing",
			BuyPrice: 50,
			Status:   entities.DealSkipped,
			Reason:   "not flippable: broken",
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func newTestExporter(dir string) *CSVExporter {
	e := NewCSVExporter(dir)
	e.now = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestExportAll(t *testing.T) {
	dir := t.TempDir()
	exporter := newTestExporter(dir)

	path, err := exporter.ExportAll(testReports())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "all_2026-08-29.csv"), path)

	rows := readCSV(t, path)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "id-1", rows[1][0])
	assert.Equal(t, "34.99", rows[1][2])
	assert.Equal(t, "71.00", rows[1][7])
	assert.Equal(t, "14.47", rows[1][8])
	assert.Equal(t, "7", rows[1][10])
}

func TestExportPassed(t *testing.T) {
	exporter := newTestExporter(t.TempDir())

	path, err := exporter.ExportPassed(testReports())
	require.NoError(t, err)

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "id-1", rows[1][0])
	assert.Equal(t, "passed", rows[1][5])
}

func TestExportNearMisses(t *testing.T) {
	exporter := newTestExporter(t.TempDir())

	path, err := exporter.ExportNearMisses(testReports())
	require.NoError(t, err)

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "id-2", rows[1][0])
	assert.Equal(t, "true", rows[1][11])
}

func TestExport_ReportWithoutCompsHasZeroStats(t *testing.T) {
	exporter := newTestExporter(t.TempDir())

	path, err := exporter.ExportAll(testReports())
	require.NoError(t, err)

	rows := readCSV(t, path)
	// The skipped deal never reached the comps lookup.
	assert.Equal(t, "0.00", rows[3][7])
	assert.Equal(t, "0", rows[3][10])
}
