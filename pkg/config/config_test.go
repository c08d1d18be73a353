package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_EbayConfig(t *testing.T) {
	os.Setenv("EBAY_ENV", "production")
	os.Setenv("EBAY_CLIENT_ID", "test-client")
	os.Setenv("EBAY_MAX_CALLS", "3")
	os.Setenv("EBAY_MIN_DELAY_SEC", "2.5")
	defer func() {
		os.Unsetenv("EBAY_ENV")
		os.Unsetenv("EBAY_CLIENT_ID")
		os.Unsetenv("EBAY_MAX_CALLS")
		os.Unsetenv("EBAY_MIN_DELAY_SEC")
	}()

	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, "PRD", cfg.Ebay.Env)
	assert.Equal(t, "test-client", cfg.Ebay.ClientID)
	assert.Equal(t, 3, cfg.Ebay.MaxCallsPerRun)
	assert.Equal(t, 2.5, cfg.Ebay.MinDelaySec)
}

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("EBAY_ENV")
	os.Unsetenv("EBAY_MAX_CALLS")
	os.Unsetenv("CACHE_BACKEND")
	os.Unsetenv("SCAN_MODE")

	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, "SBX", cfg.Ebay.Env)
	assert.Equal(t, 8, cfg.Ebay.MaxCallsPerRun)
	assert.Equal(t, "EBAY_US", cfg.Ebay.MarketplaceID)
	assert.Equal(t, "file", cfg.Cache.Backend)
	assert.Equal(t, "cache/ebay_cache.json", cfg.Cache.File)
	assert.Equal(t, "highticket", cfg.Scan.Mode)
	assert.Equal(t, 0.1325, cfg.Fees.MarketplaceFeePct)
	assert.Equal(t, 0.03, cfg.Fees.PaymentFeePct)
}

func TestNormalizeEbayEnv(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SBX", "SBX"},
		{"sandbox", "SBX"},
		{"PRD", "PRD"},
		{"prod", "PRD"},
		{"Production", "PRD"},
		{"", "SBX"},
		{"garbage", "SBX"},
		{"  prd  ", "PRD"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeEbayEnv(tt.in), "input %q", tt.in)
	}
}

func TestLoad_CategoryDenylist(t *testing.T) {
	os.Setenv("SCAN_CATEGORY_DENYLIST", "baby, socks ,clothing")
	defer os.Unsetenv("SCAN_CATEGORY_DENYLIST")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, []string{"baby", "socks", "clothing"}, cfg.Scan.CategoryDenylist)
}
