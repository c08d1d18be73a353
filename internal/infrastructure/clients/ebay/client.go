package ebay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/flipscan/arbcheck/internal/domain/providers"
	"github.com/flipscan/arbcheck/pkg/config"
	apperrors "github.com/flipscan/arbcheck/pkg/errors"
)

const (
	prodBrowseURL    = "https://api.ebay.com/buy/browse/v1/item_summary/search"
	sandboxBrowseURL = "https://api.sandbox.ebay.com/buy/browse/v1/item_summary/search"
	prodTokenURL     = "https://api.ebay.com/identity/v1/oauth2/token"
	sandboxTokenURL  = "https://api.sandbox.ebay.com/identity/v1/oauth2/token"

	oauthScope = "https://api.ebay.com/oauth/api_scope"

	// Tokens are refreshed this long before their reported expiry so a
	// request never goes out with a token about to lapse mid-flight.
	tokenExpiryBuffer = 60 * time.Second

	defaultTokenTTL = 7200 * time.Second
)

var (
	metricsOnce  sync.Once
	callCounter  metric.Int64Counter
	tokenCounter metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("arbcheck.ebay")
		var err error
		callCounter, err = meter.Int64Counter("ebay.api.calls",
			metric.WithDescription("Number of eBay Browse API calls by outcome"))
		if err != nil {
			log.Warn().Err(err).Msg("failed to create ebay.api.calls counter")
		}
		tokenCounter, err = meter.Int64Counter("ebay.oauth.token_requests",
			metric.WithDescription("Number of eBay OAuth token requests by outcome"))
		if err != nil {
			log.Warn().Err(err).Msg("failed to create ebay.oauth.token_requests counter")
		}
	})
}

func recordCall(ctx context.Context, outcome string) {
	if callCounter != nil {
		callCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func recordToken(ctx context.Context, outcome string) {
	if tokenCounter != nil {
		tokenCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// Client calls the eBay Browse API for sold/completed listings using
// application-level OAuth (client-credentials grant). It implements
// providers.SoldListingProvider.
type Client struct {
	httpClient    *http.Client
	browseURL     string
	tokenURL      string
	clientID      string
	clientSecret  string
	marketplaceID string

	now func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURLs overrides the Browse and OAuth endpoints. Used in tests.
func WithBaseURLs(browseURL, tokenURL string) Option {
	return func(c *Client) {
		c.browseURL = browseURL
		c.tokenURL = tokenURL
	}
}

// WithClock overrides the time source used for token expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates an eBay Browse API client for the configured
// environment (SBX or PRD).
func NewClient(cfg *config.EbayConfig, opts ...Option) *Client {
	browseURL, tokenURL := sandboxBrowseURL, sandboxTokenURL
	if cfg.Env == "PRD" {
		browseURL, tokenURL = prodBrowseURL, prodTokenURL
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		browseURL:     browseURL,
		tokenURL:      tokenURL,
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		marketplaceID: cfg.MarketplaceID,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	initMetrics()
	return c
}

// BrowseURL returns the resolved Browse API endpoint.
func (c *Client) BrowseURL() string { return c.browseURL }

// TokenURL returns the resolved OAuth token endpoint.
func (c *Client) TokenURL() string { return c.tokenURL }

// priceValue tolerates the API returning price values as either JSON
// numbers or strings.
type priceValue float64

func (p *priceValue) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid price value %q: %w", s, err)
	}
	*p = priceValue(f)
	return nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type searchResponse struct {
	ItemSummaries []struct {
		Title string `json:"title"`
		Price struct {
			Value priceValue `json:"value"`
		} `json:"price"`
		ItemEndDate string `json:"itemEndDate"`
	} `json:"itemSummaries"`
}

// SearchSold queries the Browse API for sold/completed listings matching
// the query. A 429 response, or a body that names the rate limiter, is
// returned as a typed throttled error.
func (c *Client) SearchSold(ctx context.Context, query string, limit int) ([]providers.SoldListing, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("filter", "soldItems")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.browseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build search request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.marketplaceID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordCall(ctx, "transport_error")
		return nil, apperrors.NewExternalError("ebay search request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		recordCall(ctx, "transport_error")
		return nil, apperrors.NewExternalError("failed to read ebay response", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || isRateLimitBody(body) {
			recordCall(ctx, "throttled")
			log.Warn().Int("status", resp.StatusCode).Str("query", query).Msg("eBay rate limit hit")
			return nil, apperrors.NewThrottledError("ebay rate limit exceeded")
		}
		recordCall(ctx, "http_error")
		return nil, apperrors.NewExternalError(
			fmt.Sprintf("ebay search returned status %d: %s", resp.StatusCode, truncate(body, 200)), nil)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		recordCall(ctx, "decode_error")
		return nil, apperrors.NewExternalError("failed to decode ebay search response", err)
	}

	listings := make([]providers.SoldListing, 0, len(parsed.ItemSummaries))
	for _, item := range parsed.ItemSummaries {
		price := float64(item.Price.Value)
		if price <= 0 {
			continue
		}
		listings = append(listings, providers.SoldListing{
			Title:    item.Title,
			Price:    price,
			SoldDate: item.ItemEndDate,
		})
	}

	recordCall(ctx, "ok")
	return listings, nil
}

// token returns a valid application token, requesting a fresh one when
// the cached token is absent or within the expiry buffer.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return "", apperrors.NewConfigurationError("ebay credentials are not configured")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry.Add(-tokenExpiryBuffer)) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", oauthScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperrors.NewInternalError("failed to build token request", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordToken(ctx, "transport_error")
		return "", apperrors.NewExternalError("ebay token request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		recordToken(ctx, "transport_error")
		return "", apperrors.NewExternalError("failed to read ebay token response", err)
	}

	if resp.StatusCode != http.StatusOK {
		recordToken(ctx, "http_error")
		return "", apperrors.NewExternalError(
			fmt.Sprintf("ebay token request returned status %d: %s", resp.StatusCode, truncate(body, 200)), nil)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.AccessToken == "" {
		recordToken(ctx, "decode_error")
		return "", apperrors.NewExternalError("failed to decode ebay token response", err)
	}

	ttl := defaultTokenTTL
	if parsed.ExpiresIn > 0 {
		ttl = time.Duration(parsed.ExpiresIn) * time.Second
	}
	c.accessToken = parsed.AccessToken
	c.tokenExpiry = c.now().Add(ttl)

	recordToken(ctx, "ok")
	log.Debug().Dur("ttl", ttl).Msg("obtained eBay application token")
	return c.accessToken, nil
}

var rateLimitMarkers = []string{"ratelimiter", "rate limit", "exceeded the number of times"}

// isRateLimitBody detects throttling responses that arrive with a
// non-429 status but a rate-limiter error payload.
func isRateLimitBody(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}
