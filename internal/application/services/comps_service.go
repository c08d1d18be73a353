package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/flipscan/arbcheck/internal/domain/entities"
	"github.com/flipscan/arbcheck/internal/domain/providers"
	apperrors "github.com/flipscan/arbcheck/pkg/errors"
	"github.com/flipscan/arbcheck/pkg/stats"
)

// cacheSchemaVersion is embedded in every cache key. Entries written
// under a different version are never honored.
const cacheSchemaVersion = 2

const (
	ttlOK          = 7 * 24 * time.Hour
	ttlNoSoldComps = 24 * time.Hour
)

// throttleBackoffs are the fixed waits between throttled attempts. Two
// retries after the initial call, then the lookup gives up.
var throttleBackoffs = []time.Duration{30 * time.Second, 90 * time.Second}

const maxSampleItems = 3

// Clock abstracts time for the rate-limit and backoff logic so the
// pacing invariants can be tested with a fake clock.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

var (
	compsMetricsOnce sync.Once
	lookupCounter    metric.Int64Counter
	cacheHitCounter  metric.Int64Counter
	cacheMissCounter metric.Int64Counter
)

func initCompsMetrics() {
	compsMetricsOnce.Do(func() {
		meter := otel.Meter("arbcheck.comps")
		var err error
		lookupCounter, err = meter.Int64Counter("comps.lookups",
			metric.WithDescription("Number of comps lookups by terminal status"))
		if err != nil {
			log.Warn().Err(err).Msg("failed to create comps.lookups counter")
		}
		cacheHitCounter, err = meter.Int64Counter("comps.cache.hits",
			metric.WithDescription("Number of comps cache hits"))
		if err != nil {
			log.Warn().Err(err).Msg("failed to create comps.cache.hits counter")
		}
		cacheMissCounter, err = meter.Int64Counter("comps.cache.misses",
			metric.WithDescription("Number of comps cache misses"))
		if err != nil {
			log.Warn().Err(err).Msg("failed to create comps.cache.misses counter")
		}
	})
}

// CompsConfig holds the knobs of the lookup protocol.
type CompsConfig struct {
	MaxCallsPerRun int
	MinDelay       time.Duration
	ResultLimit    int
	MinCompCount   int
}

// LookupOptions modify a single lookup.
type LookupOptions struct {
	// NoRetry aborts on the first throttle signal, returning
	// EBAY_THROTTLED without caching. Used by the probe command.
	NoRetry bool
	// BypassCache skips the cache read (the result is still written).
	BypassCache bool
}

// CompsService resolves a product title to sold-comparable statistics.
// It owns the result cache, the per-run call budget and the minimum
// inter-call delay. Lookups are strictly sequential; the service is not
// safe for concurrent use.
type CompsService struct {
	cache      providers.CacheProvider
	provider   providers.SoldListingProvider
	confidence *ConfidenceService
	clock      Clock
	cfg        CompsConfig

	callsMade    int
	cacheHits    int
	cacheMisses  int
	lastCallAt   time.Time
	missingCreds bool
}

// NewCompsService creates a comps lookup service.
func NewCompsService(
	cache providers.CacheProvider,
	provider providers.SoldListingProvider,
	confidence *ConfidenceService,
	clock Clock,
	cfg CompsConfig,
) *CompsService {
	if clock == nil {
		clock = realClock{}
	}
	if cfg.MaxCallsPerRun <= 0 {
		cfg.MaxCallsPerRun = 8
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = 20
	}
	if cfg.MinCompCount <= 0 {
		cfg.MinCompCount = 5
	}
	initCompsMetrics()
	return &CompsService{
		cache:      cache,
		provider:   provider,
		confidence: confidence,
		clock:      clock,
		cfg:        cfg,
	}
}

// ResetRun resets the per-run call budget and cache counters.
func (s *CompsService) ResetRun() {
	s.callsMade = 0
	s.cacheHits = 0
	s.cacheMisses = 0
}

// CallsMade returns the number of network calls consumed this run.
func (s *CompsService) CallsMade() int {
	return s.callsMade
}

// CacheHits returns the number of valid cache hits this run.
func (s *CompsService) CacheHits() int {
	return s.cacheHits
}

// CacheMisses returns the number of cache misses this run.
func (s *CompsService) CacheMisses() int {
	return s.cacheMisses
}

// CacheKey returns the versioned cache key for a title.
func (s *CompsService) CacheKey(title string) string {
	return cacheKey(s.confidence.Normalize(title))
}

func cacheKey(normalized string) string {
	return fmt.Sprintf("v%d:%s", cacheSchemaVersion, normalized)
}

// Lookup resolves sold-comparable statistics for a title. Every path
// returns a typed result; the error return is reserved for cache I/O
// faults, which are logged and degraded rather than fatal.
func (s *CompsService) Lookup(ctx context.Context, title string, opts LookupOptions) *entities.CompsResult {
	query := s.confidence.Normalize(title)
	key := cacheKey(query)

	if !opts.BypassCache {
		if result, ok := s.readCache(ctx, key); ok {
			s.cacheHits++
			if cacheHitCounter != nil {
				cacheHitCounter.Add(ctx, 1)
			}
			log.Debug().Str("query", query).Str("status", string(result.Status)).Msg("comps cache hit")
			return result
		}
		s.cacheMisses++
		if cacheMissCounter != nil {
			cacheMissCounter.Add(ctx, 1)
		}
	}

	if s.callsMade >= s.cfg.MaxCallsPerRun {
		log.Info().Str("query", query).Int("budget", s.cfg.MaxCallsPerRun).Msg("call budget exhausted")
		return s.finish(ctx, key, &entities.CompsResult{Status: entities.CompsBudgetExhausted})
	}
	s.callsMade++

	listings, status := s.fetchWithRetry(ctx, query, opts.NoRetry)
	switch status {
	case entities.CompsThrottled:
		if opts.NoRetry {
			// Probe mode: report without poisoning the cache.
			s.record(ctx, entities.CompsThrottled)
			return &entities.CompsResult{Status: entities.CompsThrottled}
		}
		return s.finish(ctx, key, &entities.CompsResult{Status: entities.CompsThrottled})
	case entities.CompsAPIFail:
		return s.finish(ctx, key, &entities.CompsResult{Status: entities.CompsAPIFail})
	}

	if wantSize, ok := s.confidence.ExtractFilterSize(title); ok && s.confidence.IsFilterLike(title) {
		listings = filterBySize(s.confidence, listings, wantSize)
	}

	if len(listings) == 0 {
		return s.finish(ctx, key, &entities.CompsResult{Status: entities.CompsNoSoldComps})
	}

	return s.finish(ctx, key, s.summarize(listings))
}

// readCache returns a reconstructed result when the stored entry's
// status and age make it a valid hit. Only OK and NO_SOLD_COMPS entries
// are ever honored; every other status forces a retry.
func (s *CompsService) readCache(ctx context.Context, key string) (*entities.CompsResult, bool) {
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var entry entities.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache entry undecodable, treating as miss")
		return nil, false
	}

	var ttl time.Duration
	switch entry.Status {
	case entities.CompsOK:
		ttl = ttlOK
	case entities.CompsNoSoldComps:
		ttl = ttlNoSoldComps
	default:
		return nil, false
	}

	age := s.clock.Now().Sub(time.Unix(entry.Timestamp, 0))
	if age >= ttl {
		return nil, false
	}

	return &entities.CompsResult{
		Status:           entry.Status,
		Stats:            entry.Stats,
		ConfidenceReason: entry.ConfidenceReason,
		SampleItems:      entry.SampleItems,
		LastSoldDate:     entry.LastSoldDate,
		FromCache:        true,
	}, true
}

// fetchWithRetry performs the network search with the minimum inter-call
// delay before every attempt and fixed backoff between throttled
// attempts.
func (s *CompsService) fetchWithRetry(ctx context.Context, query string, noRetry bool) ([]providers.SoldListing, entities.CompsStatus) {
	attempt := 0
	for {
		s.enforceMinDelay()
		listings, err := s.provider.SearchSold(ctx, query, s.cfg.ResultLimit)
		s.lastCallAt = s.clock.Now()

		if err == nil {
			return listings, entities.CompsOK
		}

		switch {
		case apperrors.IsType(err, apperrors.ErrorTypeThrottled):
			if noRetry {
				return nil, entities.CompsThrottled
			}
			if attempt >= len(throttleBackoffs) {
				log.Warn().Str("query", query).Msg("throttle retries exhausted")
				return nil, entities.CompsThrottled
			}
			backoff := throttleBackoffs[attempt]
			attempt++
			log.Warn().Str("query", query).Dur("backoff", backoff).Int("attempt", attempt).Msg("throttled, backing off")
			s.clock.Sleep(backoff)
		case apperrors.IsType(err, apperrors.ErrorTypeConfiguration):
			if !s.missingCreds {
				s.missingCreds = true
				log.Error().Err(err).Msg("marketplace credentials missing, lookups will fail")
			}
			return nil, entities.CompsAPIFail
		default:
			log.Warn().Err(err).Str("query", query).Msg("marketplace search failed")
			return nil, entities.CompsAPIFail
		}
	}
}

// enforceMinDelay sleeps until the configured floor since the previous
// network call has elapsed.
func (s *CompsService) enforceMinDelay() {
	if s.cfg.MinDelay <= 0 || s.lastCallAt.IsZero() {
		return
	}
	elapsed := s.clock.Now().Sub(s.lastCallAt)
	if elapsed < s.cfg.MinDelay {
		s.clock.Sleep(s.cfg.MinDelay - elapsed)
	}
}

// summarize aggregates listings into price statistics, downgrading to
// LOW_CONFIDENCE_COMPS below the comp-count floor.
func (s *CompsService) summarize(listings []providers.SoldListing) *entities.CompsResult {
	prices := make([]float64, 0, len(listings))
	for _, l := range listings {
		prices = append(prices, l.Price)
	}
	summary := stats.Summarize(prices)

	result := &entities.CompsResult{
		Status: entities.CompsOK,
		Stats: entities.PriceStats{
			SoldCount:         summary.SoldCount,
			Avg:               summary.Avg,
			Median:            summary.Median,
			Min:               summary.Min,
			Max:               summary.Max,
			P25:               summary.P25,
			P75:               summary.P75,
			TrimmedCount:      summary.TrimmedCount,
			ExpectedSalePrice: summary.ExpectedSalePrice,
		},
	}

	for i := 0; i < len(listings) && i < maxSampleItems; i++ {
		result.SampleItems = append(result.SampleItems, entities.SampleItem{
			Title: listings[i].Title,
			Price: listings[i].Price,
		})
	}
	// ISO-8601 dates order lexicographically; keep the most recent.
	for _, l := range listings {
		if l.SoldDate > result.LastSoldDate {
			result.LastSoldDate = l.SoldDate
		}
	}

	if summary.TrimmedCount < s.cfg.MinCompCount {
		result.Status = entities.CompsLowConfidence
		result.ConfidenceReason = "trimmed comp count below confidence floor"
	}
	return result
}

// finish writes the terminal result to the cache and records metrics.
func (s *CompsService) finish(ctx context.Context, key string, result *entities.CompsResult) *entities.CompsResult {
	entry := entities.CacheEntry{
		Timestamp:        s.clock.Now().Unix(),
		Status:           result.Status,
		Stats:            result.Stats,
		ConfidenceReason: result.ConfidenceReason,
		SampleItems:      result.SampleItems,
		LastSoldDate:     result.LastSoldDate,
	}
	raw, err := json.Marshal(entry)
	if err == nil {
		if err := s.cache.Set(ctx, key, raw); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	s.record(ctx, result.Status)
	return result
}

func (s *CompsService) record(ctx context.Context, status entities.CompsStatus) {
	if lookupCounter != nil {
		lookupCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
}

// filterBySize keeps listings whose title carries the same physical
// dimensions as the product being priced.
func filterBySize(confidence *ConfidenceService, listings []providers.SoldListing, wantSize string) []providers.SoldListing {
	kept := make([]providers.SoldListing, 0, len(listings))
	for _, l := range listings {
		size, ok := confidence.ExtractFilterSize(l.Title)
		if ok && size == wantSize {
			kept = append(kept, l)
		}
	}
	log.Debug().Str("size", wantSize).Int("kept", len(kept)).Int("total", len(listings)).Msg("size-filtered comps")
	return kept
}
