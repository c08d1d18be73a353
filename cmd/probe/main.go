package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flipscan/arbcheck/internal/adapters/cache"
	"github.com/flipscan/arbcheck/internal/application/services"
	"github.com/flipscan/arbcheck/internal/domain/entities"
	"github.com/flipscan/arbcheck/internal/infrastructure/clients/ebay"
	"github.com/flipscan/arbcheck/internal/infrastructure/observability"
	"github.com/flipscan/arbcheck/pkg/config"
)

// probe issues a single, cache-bypassing, no-retry lookup so an operator
// can tell apart credential problems, throttling and empty results
// without burning the scan budget on retries.
func main() {
	query := flag.String("query", "milwaukee m18 drill", "search query to probe with")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	observability.InitLogger("arbcheck-probe", cfg.App.Env)

	client := ebay.NewClient(&cfg.Ebay)
	log.Info().
		Str("env", cfg.Ebay.Env).
		Str("marketplace", cfg.Ebay.MarketplaceID).
		Str("browse_url", client.BrowseURL()).
		Str("token_url", client.TokenURL()).
		Str("client_id", redact(cfg.Ebay.ClientID)).
		Bool("client_secret_set", cfg.Ebay.ClientSecret != "").
		Msg("probe configuration")

	comps := services.NewCompsService(
		cache.NewFileAdapter(cfg.Cache.File),
		client,
		services.NewConfidenceService(),
		nil,
		services.CompsConfig{
			MaxCallsPerRun: 1,
			MinDelay:       time.Duration(cfg.Ebay.ProbeMinDelaySec * float64(time.Second)),
			ResultLimit:    cfg.Ebay.ResultLimit,
			MinCompCount:   cfg.Scan.MinCompCount,
		},
	)

	result := comps.Lookup(context.Background(), *query, services.LookupOptions{
		NoRetry:     true,
		BypassCache: true,
	})

	event := log.Info()
	if result.Status == entities.CompsThrottled || result.Status == entities.CompsAPIFail {
		event = log.Error()
	}
	event.
		Str("query", *query).
		Str("status", string(result.Status)).
		Int("sold_count", result.Stats.SoldCount).
		Float64("expected_sale_price", result.Stats.ExpectedSalePrice).
		Msg("probe result")

	switch result.Status {
	case entities.CompsThrottled:
		os.Exit(2)
	case entities.CompsAPIFail:
		os.Exit(1)
	}
}

func redact(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
