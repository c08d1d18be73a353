package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flipscan/arbcheck/internal/adapters/cache"
	"github.com/flipscan/arbcheck/internal/adapters/database"
	"github.com/flipscan/arbcheck/internal/adapters/export"
	"github.com/flipscan/arbcheck/internal/application/services"
	"github.com/flipscan/arbcheck/internal/domain/entities"
	"github.com/flipscan/arbcheck/internal/domain/providers"
	"github.com/flipscan/arbcheck/internal/domain/repositories"
	"github.com/flipscan/arbcheck/internal/infrastructure/clients/ebay"
	"github.com/flipscan/arbcheck/internal/infrastructure/clients/postgres"
	redisclient "github.com/flipscan/arbcheck/internal/infrastructure/clients/redis"
	"github.com/flipscan/arbcheck/internal/infrastructure/observability"
	"github.com/flipscan/arbcheck/pkg/config"
)

func main() {
	inputPath := flag.String("input", "deals.json", "path to the deals JSON file")
	mode := flag.String("mode", "", "evaluation mode (overrides SCAN_MODE)")
	resume := flag.Bool("resume", false, "re-scan deals a previous run left pending (requires database)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	observability.InitLogger("arbcheck-scan", cfg.App.Env)

	if *mode != "" {
		cfg.Scan.Mode = *mode
	}
	scanMode := entities.Mode(cfg.Scan.Mode)
	if !scanMode.IsValid() {
		log.Fatal().Str("mode", cfg.Scan.Mode).Msg("Unknown scan mode")
	}

	compsCache, closeCache := buildCache(cfg)
	defer closeCache()

	ebayClient := ebay.NewClient(&cfg.Ebay)
	confidence := services.NewConfidenceService()
	comps := services.NewCompsService(compsCache, ebayClient, confidence, nil, services.CompsConfig{
		MaxCallsPerRun: cfg.Ebay.MaxCallsPerRun,
		MinDelay:       time.Duration(cfg.Ebay.MinDelaySec * float64(time.Second)),
		ResultLimit:    cfg.Ebay.ResultLimit,
		MinCompCount:   cfg.Scan.MinCompCount,
	})

	var repo repositories.DealRepository
	if cfg.Database.Enabled {
		pgClient, err := postgres.NewClient(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pgClient.Close()
		repo = database.NewDealAdapter(pgClient)
	}

	scanner := services.NewScanService(comps, confidence, services.NewEvaluationService(), repo, services.ScanConfig{
		Mode:                scanMode,
		MinBuyPrice:         cfg.Scan.MinBuyPrice,
		LowConfidenceCeil:   cfg.Scan.LowConfidenceCeil,
		CategoryDenylist:    cfg.Scan.CategoryDenylist,
		StopBatchOnThrottle: cfg.Scan.StopBatchOnThrottle,
		Fees: entities.FeeModel{
			MarketplaceFeePct: cfg.Fees.MarketplaceFeePct,
			PaymentFeePct:     cfg.Fees.PaymentFeePct,
			FlatShipping:      cfg.Fees.FlatShipping,
		},
		Margins: entities.NearMissMargins{
			Profit:    cfg.NearMiss.ProfitMargin,
			ROI:       cfg.NearMiss.ROIMargin,
			CompCount: cfg.NearMiss.CompCountMargin,
		},
	})

	ctx := context.Background()

	var reports []*entities.DealReport
	if *resume {
		if repo == nil {
			log.Fatal().Msg("Resume requires DB_ENABLED=true")
		}
		reports, _, err = scanner.Resume(ctx)
	} else {
		deals := loadDeals(*inputPath, cfg.App.InputLimit)
		reports, _, err = scanner.Scan(ctx, deals)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Scan failed")
	}

	exporter := export.NewCSVExporter(cfg.App.ReportDir)
	if _, err := exporter.ExportAll(reports); err != nil {
		log.Error().Err(err).Msg("Failed to export full report")
	}
	if _, err := exporter.ExportPassed(reports); err != nil {
		log.Error().Err(err).Msg("Failed to export passed report")
	}
	if _, err := exporter.ExportNearMisses(reports); err != nil {
		log.Error().Err(err).Msg("Failed to export near-miss report")
	}
}

// buildCache selects the comps-cache backend. The file backend is the
// default; Redis is opt-in via CACHE_BACKEND=redis.
func buildCache(cfg *config.Config) (providers.CacheProvider, func()) {
	switch cfg.Cache.Backend {
	case "redis":
		client, err := redisclient.NewClient(&cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis cache")
		}
		return cache.NewRedisAdapter(client), func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Redis client")
			}
		}
	case "file":
		return cache.NewFileAdapter(cfg.Cache.File), func() {}
	default:
		log.Fatal().Str("backend", cfg.Cache.Backend).Msg("Unknown cache backend")
		return nil, nil
	}
}

// loadDeals reads the candidate deals from a JSON array file.
func loadDeals(path string, limit int) []entities.Deal {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to read deals file")
	}

	var deals []entities.Deal
	if err := json.Unmarshal(data, &deals); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to parse deals file")
	}
	if limit > 0 && len(deals) > limit {
		log.Info().Int("limit", limit).Int("total", len(deals)).Msg("Truncating deal list to input limit")
		deals = deals[:limit]
	}
	return deals
}
