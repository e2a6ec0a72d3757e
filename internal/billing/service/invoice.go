package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
)

const opInvoicePaymentSucceeded = "billing.invoice_payment_succeeded"

func (s *Service) handleInvoicePaymentSucceeded(ctx context.Context, ev domain.InvoicePaymentSucceeded) error {
	inv := ev.Invoice
	log := s.logger(ctx).With(zap.String("invoice_id", inv.ID))
	if inv.SubscriptionID == "" {
		log.Debug("invoice without subscription ignored")
		return nil
	}
	log = log.With(zap.String("provider_subscription_id", inv.SubscriptionID))

	remote, err := s.provider.GetSubscription(ctx, inv.SubscriptionID)
	if err != nil {
		return domain.Upstream(opInvoicePaymentSucceeded, err)
	}

	period := &domain.SubscriptionPeriod{Start: remote.PeriodStart, End: remote.PeriodEnd}
	if period.Start.IsZero() || period.End.IsZero() {
		period = nil
	}
	matched, err := s.repo.SetSubscriptionStatus(ctx, inv.SubscriptionID, domain.SubscriptionStatusActive, period)
	if err != nil {
		return err
	}
	if !matched {
		log.Warn("invoice paid for unknown subscription")
		return nil
	}

	if period != nil {
		log = log.With(
			zap.String("period_start", domain.FormatTimestamp(period.Start)),
			zap.String("period_end", domain.FormatTimestamp(period.End)),
		)
	}
	log.Info("invoice payment recorded")
	return nil
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, ev domain.InvoicePaymentFailed) error {
	inv := ev.Invoice
	log := s.logger(ctx).With(zap.String("invoice_id", inv.ID))
	if inv.SubscriptionID == "" {
		log.Debug("invoice without subscription ignored")
		return nil
	}
	log = log.With(zap.String("provider_subscription_id", inv.SubscriptionID))

	matched, err := s.repo.SetSubscriptionStatus(ctx, inv.SubscriptionID, domain.SubscriptionStatusPastDue, nil)
	if err != nil {
		return err
	}
	if !matched {
		log.Warn("invoice failed for unknown subscription")
		return nil
	}
	log.Info("invoice payment failure recorded")
	return nil
}
