// Package service reconciles verified billing events into local subscription
// and organization state.
package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
	"github.com/smallbiznis/scorebench/internal/observability/logger"
)

const opDispatch = "billing.dispatch"

type Params struct {
	fx.In

	Log      *zap.Logger
	Repo     domain.Repository
	Provider domain.ProviderClient
	Catalog  domain.PriceCatalog
	GenID    *snowflake.Node
}

type Service struct {
	log      *zap.Logger
	repo     domain.Repository
	provider domain.ProviderClient
	catalog  domain.PriceCatalog
	genID    *snowflake.Node
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewService(p Params) *Service {
	return &Service{
		log:      p.Log.Named("billing.service"),
		repo:     p.Repo,
		provider: p.Provider,
		catalog:  p.Catalog,
		genID:    p.GenID,
		validate: validator.New(),
		tracer:   otel.Tracer("scorebench/billing/service"),
	}
}

// Dispatch routes ev to its handler. Unhandled events are acknowledged
// without side effects.
func (s *Service) Dispatch(ctx context.Context, ev domain.Event) error {
	if ev == nil {
		return domain.Validation(opDispatch, domain.ErrUnsupportedEvent)
	}

	ctx, span := s.tracer.Start(ctx, "billing.dispatch", trace.WithAttributes(
		attribute.String("billing.event_id", ev.EventID()),
		attribute.String("billing.event_type", string(ev.EventType())),
	))
	defer span.End()

	var err error
	switch e := ev.(type) {
	case domain.CheckoutCompleted:
		err = s.handleCheckoutCompleted(ctx, e)
	case domain.SubscriptionCreated:
		err = s.handleSubscriptionChanged(ctx, "billing.subscription_created", e.Subscription)
	case domain.SubscriptionUpdated:
		err = s.handleSubscriptionChanged(ctx, "billing.subscription_updated", e.Subscription)
	case domain.SubscriptionDeleted:
		err = s.handleSubscriptionDeleted(ctx, e)
	case domain.InvoicePaymentSucceeded:
		err = s.handleInvoicePaymentSucceeded(ctx, e)
	case domain.InvoicePaymentFailed:
		err = s.handleInvoicePaymentFailed(ctx, e)
	case domain.Unhandled:
		s.logger(ctx).Debug("billing event ignored")
	default:
		err = domain.Validation(opDispatch, fmt.Errorf("%w: %T", domain.ErrUnsupportedEvent, ev))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, s.log)
}
