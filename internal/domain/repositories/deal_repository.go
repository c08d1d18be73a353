package repositories

import (
	"context"

	"github.com/flipscan/arbcheck/internal/domain/entities"
)

// DealRepository persists per-deal scan reports.
type DealRepository interface {
	// Save inserts or replaces a deal report by ID.
	Save(ctx context.Context, report *entities.DealReport) error

	// ListPending returns reports left pending by a previous run
	// (throttled or budget-exhausted), oldest first.
	ListPending(ctx context.Context) ([]*entities.DealReport, error)
}
