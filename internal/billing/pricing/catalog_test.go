package pricing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
	"github.com/smallbiznis/scorebench/internal/config"
)

func TestResolveDefaultPrices(t *testing.T) {
	catalog, err := NewStaticCatalog(DefaultConfig())
	require.NoError(t, err)

	plan, interval, err := catalog.Resolve("price_premium_yearly")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPremium, plan)
	assert.Equal(t, domain.IntervalYear, interval)

	assert.Equal(t, 5, catalog.MaxMembers(domain.PlanFree))
	assert.Equal(t, 200, catalog.MaxMembers(domain.PlanPremium))
}

func TestResolveUnknownPrice(t *testing.T) {
	catalog, err := NewStaticCatalog(DefaultConfig())
	require.NoError(t, err)

	_, _, err = catalog.Resolve("price_missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownPrice))
}

func TestCompileRejectsInvalidConfig(t *testing.T) {
	cases := map[string]Config{
		"empty prices": {Plans: map[string]Plan{"free": {MaxMembers: 5}}},
		"unknown plan": {
			Prices: []Price{{ID: "p1", Plan: "gold", Interval: "month"}},
			Plans:  map[string]Plan{"free": {MaxMembers: 5}},
		},
		"free price": {
			Prices: []Price{{ID: "p1", Plan: "free", Interval: "month"}},
			Plans:  map[string]Plan{"free": {MaxMembers: 5}},
		},
		"bad interval": {
			Prices: []Price{{ID: "p1", Plan: "basic", Interval: "week"}},
			Plans:  map[string]Plan{"free": {MaxMembers: 5}},
		},
		"duplicate id": {
			Prices: []Price{
				{ID: "p1", Plan: "basic", Interval: "month"},
				{ID: "p1", Plan: "premium", Interval: "month"},
			},
			Plans: map[string]Plan{"free": {MaxMembers: 5}},
		},
		"sold plan without limits": {
			Prices: []Price{{ID: "p1", Plan: "premium", Interval: "month"}},
			Plans:  map[string]Plan{"free": {MaxMembers: 5}},
		},
		"missing free limits": {
			Prices: []Price{{ID: "p1", Plan: "basic", Interval: "month"}},
			Plans:  map[string]Plan{"basic": {MaxMembers: 5}},
		},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewStaticCatalog(cfg)
			assert.Error(t, err)
		})
	}
}

func TestReplaceRejectsPlanWithoutLimits(t *testing.T) {
	catalog, err := NewStaticCatalog(DefaultConfig())
	require.NoError(t, err)

	err = catalog.Replace(Config{
		Prices: []Price{{ID: "price_premium_monthly", Plan: "premium", Interval: "month"}},
		Plans:  map[string]Plan{"free": {MaxMembers: 5}},
	})
	require.Error(t, err)
	assert.Equal(t, 200, catalog.MaxMembers(domain.PlanPremium))
}

func TestReplaceKeepsPreviousTableOnError(t *testing.T) {
	catalog, err := NewStaticCatalog(DefaultConfig())
	require.NoError(t, err)

	err = catalog.Replace(Config{})
	require.Error(t, err)

	plan, _, err := catalog.Resolve("price_basic_monthly")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanBasic, plan)
}

func TestNewCatalogReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yml")
	body := `prices:
  - id: price_team
    plan: standard
    interval: month
plans:
  free:
    max_members: 3
  standard:
    max_members: 25
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	catalog, err := NewCatalog(config.Config{PricingConfigPath: path}, zap.NewNop())
	require.NoError(t, err)

	plan, interval, err := catalog.Resolve("price_team")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanStandard, plan)
	assert.Equal(t, domain.IntervalMonth, interval)
	assert.Equal(t, 3, catalog.MaxMembers(domain.PlanFree))

	_, _, err = catalog.Resolve("price_basic_monthly")
	assert.ErrorIs(t, err, domain.ErrUnknownPrice)
}

func TestNewCatalogMissingExplicitFile(t *testing.T) {
	_, err := NewCatalog(config.Config{PricingConfigPath: filepath.Join(t.TempDir(), "nope.yml")}, zap.NewNop())
	assert.Error(t, err)
}
