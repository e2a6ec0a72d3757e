package stripe

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
)

var Module = fx.Module("billing.stripe",
	fx.Provide(NewVerifier),
	fx.Provide(NewClient),
	fx.Provide(func(c *Client) domain.ProviderClient { return c }),
)
