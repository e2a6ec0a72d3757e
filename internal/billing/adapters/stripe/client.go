package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"
	"go.uber.org/zap"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
	"github.com/smallbiznis/scorebench/internal/config"
	"github.com/smallbiznis/scorebench/internal/observability/metrics"
)

const opGetSubscription = "stripe.get_subscription"

// Client reads subscriptions from the Stripe API.
type Client struct {
	subs    subscription.Client
	log     *zap.Logger
	metrics *metrics.Metrics
}

var _ domain.ProviderClient = (*Client)(nil)

func NewClient(cfg config.Config, log *zap.Logger, m *metrics.Metrics) (*Client, error) {
	key := strings.TrimSpace(cfg.Stripe.SecretKey)
	if key == "" {
		return nil, errors.New("stripe secret key is required")
	}
	log = log.Named("billing.stripe")

	backendCfg := &stripego.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Stripe.RequestTimeout},
		LeveledLogger:     log.Sugar(),
		MaxNetworkRetries: stripego.Int64(cfg.Stripe.MaxNetworkRetries),
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.Stripe.APIBaseURL), "/"); base != "" {
		backendCfg.URL = stripego.String(base)
	}

	return &Client{
		subs: subscription.Client{
			B:   stripego.GetBackendWithConfig(stripego.APIBackend, backendCfg),
			Key: key,
		},
		log:     log,
		metrics: m,
	}, nil
}

// GetSubscription retrieves the authoritative subscription state.
func (c *Client) GetSubscription(ctx context.Context, providerSubscriptionID string) (*domain.ProviderSubscription, error) {
	id := strings.TrimSpace(providerSubscriptionID)
	if id == "" {
		return nil, domain.Validation(opGetSubscription, domain.ErrInvalidPayload)
	}

	params := &stripego.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.subs.Get(id, params)
	if err != nil {
		err = classifyAPIError(id, err)
		c.metrics.RecordProviderCall(ctx, opGetSubscription, domain.KindOf(err).String())
		return nil, err
	}
	c.metrics.RecordProviderCall(ctx, opGetSubscription, "ok")
	return toProviderSubscription(sub), nil
}

func classifyAPIError(id string, err error) error {
	var apiErr *stripego.Error
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
		return domain.Missing(opGetSubscription, fmt.Errorf("%w: %s", domain.ErrSubscriptionNotFound, id))
	}
	return domain.Upstream(opGetSubscription, err)
}

func toProviderSubscription(sub *stripego.Subscription) *domain.ProviderSubscription {
	out := &domain.ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.PeriodStart = unixTime(item.CurrentPeriodStart)
		out.PeriodEnd = unixTime(item.CurrentPeriodEnd)
		if item.Price != nil {
			out.PriceID = item.Price.ID
			if item.Price.Recurring != nil {
				out.Interval = string(item.Price.Recurring.Interval)
			}
		}
	}
	return out
}
