package pricing

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
)

var Module = fx.Module("billing.pricing",
	fx.Provide(NewCatalog),
	fx.Provide(func(c *Catalog) domain.PriceCatalog { return c }),
)
