// Package pricing holds the price table and plan catalog used to derive plan
// attributes from provider prices.
package pricing

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
	"github.com/smallbiznis/scorebench/internal/config"
)

// Price maps one provider price identifier to a plan and interval.
type Price struct {
	ID       string `mapstructure:"id"`
	Plan     string `mapstructure:"plan"`
	Interval string `mapstructure:"interval"`
}

// Plan holds the limits attached to a plan type.
type Plan struct {
	MaxMembers int `mapstructure:"max_members"`
}

// Config is the on-disk shape of pricing.yml.
type Config struct {
	Prices []Price         `mapstructure:"prices"`
	Plans  map[string]Plan `mapstructure:"plans"`
}

func DefaultConfig() Config {
	return Config{
		Prices: []Price{
			{ID: "price_basic_monthly", Plan: "basic", Interval: "month"},
			{ID: "price_basic_yearly", Plan: "basic", Interval: "year"},
			{ID: "price_standard_monthly", Plan: "standard", Interval: "month"},
			{ID: "price_standard_yearly", Plan: "standard", Interval: "year"},
			{ID: "price_premium_monthly", Plan: "premium", Interval: "month"},
			{ID: "price_premium_yearly", Plan: "premium", Interval: "year"},
		},
		Plans: map[string]Plan{
			"free":     {MaxMembers: 5},
			"basic":    {MaxMembers: 15},
			"standard": {MaxMembers: 50},
			"premium":  {MaxMembers: 200},
		},
	}
}

type priceEntry struct {
	plan     domain.PlanType
	interval domain.BillingInterval
}

type table struct {
	prices map[string]priceEntry
	limits map[domain.PlanType]int
}

// Catalog is a hot-reloadable, read-mostly view of the pricing config.
type Catalog struct {
	current atomic.Pointer[table]
}

var _ domain.PriceCatalog = (*Catalog)(nil)

// NewStaticCatalog builds a catalog that never reloads.
func NewStaticCatalog(cfg Config) (*Catalog, error) {
	t, err := compile(cfg)
	if err != nil {
		return nil, err
	}
	c := &Catalog{}
	c.current.Store(t)
	return c, nil
}

// NewCatalog loads pricing.yml from cfg.PricingConfigPath or the standard
// search paths and watches it for changes. Built-in defaults apply when no
// file is found.
func NewCatalog(cfg config.Config, log *zap.Logger) (*Catalog, error) {
	log = log.Named("billing.pricing")

	v := viper.New()
	v.SetConfigType("yml")
	if cfg.PricingConfigPath != "" {
		v.SetConfigFile(cfg.PricingConfigPath)
	} else {
		v.SetConfigName("pricing")
		v.AddConfigPath("/etc/scorebench")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("SCOREBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read pricing config: %w", err)
		}
		log.Info("pricing config not found, using defaults")
		return NewStaticCatalog(DefaultConfig())
	}

	var loaded Config
	if err := v.Unmarshal(&loaded); err != nil {
		return nil, fmt.Errorf("decode pricing config: %w", err)
	}
	catalog, err := NewStaticCatalog(loaded)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Config
		if err := v.Unmarshal(&updated); err != nil {
			log.Warn("pricing reload failed", zap.Error(err))
			return
		}
		if err := catalog.Replace(updated); err != nil {
			log.Warn("invalid pricing config ignored", zap.Error(err))
			return
		}
		log.Info("pricing config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	log.Info("pricing config loaded",
		zap.String("file", v.ConfigFileUsed()),
		zap.Int("prices", len(loaded.Prices)),
	)
	return catalog, nil
}

// Replace validates cfg and swaps it in atomically. The previous table is
// kept when cfg is invalid.
func (c *Catalog) Replace(cfg Config) error {
	t, err := compile(cfg)
	if err != nil {
		return err
	}
	c.current.Store(t)
	return nil
}

// Resolve maps a provider price identifier to its plan and interval.
func (c *Catalog) Resolve(priceID string) (domain.PlanType, domain.BillingInterval, error) {
	entry, ok := c.current.Load().prices[strings.TrimSpace(priceID)]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", domain.ErrUnknownPrice, priceID)
	}
	return entry.plan, entry.interval, nil
}

// MaxMembers returns the member limit of plan, or zero when the plan is unknown.
func (c *Catalog) MaxMembers(plan domain.PlanType) int {
	return c.current.Load().limits[plan]
}

// PlanLimits returns a copy of the member limit per plan.
func (c *Catalog) PlanLimits() map[domain.PlanType]int {
	limits := c.current.Load().limits
	out := make(map[domain.PlanType]int, len(limits))
	for plan, n := range limits {
		out[plan] = n
	}
	return out
}

func compile(cfg Config) (*table, error) {
	if len(cfg.Prices) == 0 {
		return nil, errors.New("pricing.prices cannot be empty")
	}
	t := &table{
		prices: make(map[string]priceEntry, len(cfg.Prices)),
		limits: make(map[domain.PlanType]int, len(cfg.Plans)),
	}
	for _, p := range cfg.Prices {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, errors.New("pricing.prices: id is required")
		}
		if _, dup := t.prices[id]; dup {
			return nil, fmt.Errorf("pricing.prices: duplicate id %q", id)
		}
		plan, err := domain.ParsePlanType(p.Plan)
		if err != nil {
			return nil, fmt.Errorf("pricing.prices[%s]: %w", id, err)
		}
		if plan == domain.PlanFree {
			return nil, fmt.Errorf("pricing.prices[%s]: free plan cannot be sold", id)
		}
		interval, err := domain.ParseBillingInterval(p.Interval)
		if err != nil {
			return nil, fmt.Errorf("pricing.prices[%s]: %w", id, err)
		}
		t.prices[id] = priceEntry{plan: plan, interval: interval}
	}
	for name, limits := range cfg.Plans {
		plan, err := domain.ParsePlanType(name)
		if err != nil {
			return nil, fmt.Errorf("pricing.plans: %w", err)
		}
		if limits.MaxMembers <= 0 {
			return nil, fmt.Errorf("pricing.plans[%s]: max_members must be positive", plan)
		}
		t.limits[plan] = limits.MaxMembers
	}
	if _, ok := t.limits[domain.PlanFree]; !ok {
		return nil, errors.New("pricing.plans: free plan limits are required")
	}
	// Every sold plan needs a member limit; organizations cannot store zero.
	for id, entry := range t.prices {
		if _, ok := t.limits[entry.plan]; !ok {
			return nil, fmt.Errorf("pricing.prices[%s]: plan %s has no limits", id, entry.plan)
		}
	}
	return t, nil
}
