package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
)

const opSubscriptionDeleted = "billing.subscription_deleted"

// handleSubscriptionChanged applies provider state to an existing row. Rows
// are only ever created by checkout.
func (s *Service) handleSubscriptionChanged(ctx context.Context, op string, remote domain.ProviderSubscription) error {
	providerID := strings.TrimSpace(remote.ID)
	if providerID == "" {
		return domain.Validation(op, domain.ErrInvalidPayload)
	}

	status, err := domain.MapProviderStatus(remote.Status)
	if err != nil {
		return domain.Validation(op, err)
	}
	plan, interval, err := s.catalog.Resolve(remote.PriceID)
	if err != nil {
		return domain.Validation(op, err)
	}

	matched, err := s.repo.ApplySubscriptionChange(ctx, providerID, domain.SubscriptionChange{
		PlanType:          plan,
		BillingInterval:   &interval,
		Status:            status,
		Period:            domain.SubscriptionPeriod{Start: remote.PeriodStart, End: remote.PeriodEnd},
		CancelAtPeriodEnd: remote.CancelAtPeriodEnd,
	})
	if err != nil {
		return err
	}
	if !matched {
		return domain.Missing(op, fmt.Errorf("%w: %s", domain.ErrSubscriptionNotFound, providerID))
	}

	s.logger(ctx).Info("subscription synchronized",
		zap.String("provider_subscription_id", providerID),
		zap.String("status", string(status)),
		zap.String("plan_type", string(plan)),
	)
	return nil
}

// handleSubscriptionDeleted retires the row and downgrades its organization
// only while the organization still points at this subscription.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, ev domain.SubscriptionDeleted) error {
	providerID := strings.TrimSpace(ev.Subscription.ID)
	if providerID == "" {
		return domain.Validation(opSubscriptionDeleted, domain.ErrInvalidPayload)
	}
	log := s.logger(ctx).With(zap.String("provider_subscription_id", providerID))

	sub, err := s.repo.FindSubscriptionByProviderID(ctx, providerID)
	if err != nil {
		return err
	}

	// Retiring clears the organization link, so read it first.
	personal := sub.IsPersonal()
	var orgID snowflake.ID
	if sub.OwnerOrganizationID != nil {
		orgID = *sub.OwnerOrganizationID
	}

	freeLimit := s.catalog.MaxMembers(domain.PlanFree)
	return s.repo.Transaction(ctx, func(repo domain.Repository) error {
		if err := repo.RetireSubscription(ctx, sub.ID); err != nil {
			return err
		}
		if personal || orgID == 0 {
			log.Info("subscription retired", zap.Bool("personal", personal))
			return nil
		}

		downgraded, err := repo.DowngradeOrganizationIfCurrent(ctx, orgID, providerID, domain.PlanFree, freeLimit)
		if err != nil {
			return err
		}
		if downgraded {
			log.Info("organization downgraded", zap.String("organization_id", orgID.String()))
		} else {
			log.Info("organization kept, subscription superseded", zap.String("organization_id", orgID.String()))
		}
		return nil
	})
}
