package webhook

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/scorebench/internal/billing/adapters/stripe"
	"github.com/smallbiznis/scorebench/internal/billing/service"
	"github.com/smallbiznis/scorebench/internal/config"
)

var Module = fx.Module("billing.webhook",
	fx.Provide(
		newInflightGuard,
		func(v *stripe.Verifier) Verifier { return v },
		func(s *service.Service) Dispatcher { return s },
		NewIngestor,
	),
)

func newInflightGuard(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*InflightGuard, error) {
	guardCfg := cfg.Webhook.InflightGuard
	if !guardCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(guardCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("inflight guard redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(guardCfg.RedisPassword),
		DB:       guardCfg.RedisDB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("inflight guard redis unreachable", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewInflightGuard(client, guardCfg.TTL), nil
}
