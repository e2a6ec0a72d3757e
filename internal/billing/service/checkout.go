package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
)

const opCheckout = "billing.checkout_completed"

// checkoutPlan is the provider-authoritative state a checkout attaches.
type checkoutPlan struct {
	remote     *domain.ProviderSubscription
	customerID string
	plan       domain.PlanType
	interval   domain.BillingInterval
	status     domain.SubscriptionStatus
	maxMembers int
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, ev domain.CheckoutCompleted) error {
	session := ev.Session
	log := s.logger(ctx).With(
		zap.String("checkout_session_id", session.ID),
		zap.String("provider_subscription_id", session.SubscriptionID),
	)

	if session.Mode != "" && session.Mode != "subscription" {
		log.Info("checkout without subscription ignored", zap.String("mode", session.Mode))
		return nil
	}
	if strings.TrimSpace(session.SubscriptionID) == "" {
		return domain.Validation(opCheckout, fmt.Errorf("%w: subscription is required", domain.ErrInvalidPayload))
	}

	meta, err := s.parseCheckoutMetadata(session)
	if err != nil {
		return domain.Validation(opCheckout, err)
	}

	cp, err := s.resolveCheckoutPlan(ctx, session)
	if err != nil {
		return err
	}
	if cp.status == domain.SubscriptionStatusCanceled {
		log.Warn("checkout for canceled subscription ignored")
		return nil
	}
	if meta.PlanType != "" && domain.PlanType(meta.PlanType) != cp.plan {
		log.Warn("checkout metadata plan differs from price",
			zap.String("metadata_plan", meta.PlanType),
			zap.String("price_plan", string(cp.plan)),
		)
	}

	scope := meta.scope()
	log = log.With(zap.String("scope", scope.String()), zap.String("plan_type", string(cp.plan)))

	switch scope {
	case scopeOrganizationUpgrade:
		err = s.upgradeOrganization(ctx, session, meta, cp)
	case scopeOrganizationNew:
		err = s.createOrganization(ctx, session, meta, cp)
	default:
		err = s.attachPersonal(ctx, meta, cp)
	}
	if err != nil {
		return err
	}

	log.Info("checkout reconciled")
	return nil
}

func (s *Service) resolveCheckoutPlan(ctx context.Context, session domain.CheckoutSession) (checkoutPlan, error) {
	remote, err := s.provider.GetSubscription(ctx, session.SubscriptionID)
	if err != nil {
		return checkoutPlan{}, domain.Upstream(opCheckout, err)
	}

	status, err := domain.MapProviderStatus(remote.Status)
	if err != nil {
		return checkoutPlan{}, domain.Validation(opCheckout, err)
	}
	plan, interval, err := s.catalog.Resolve(remote.PriceID)
	if err != nil {
		return checkoutPlan{}, domain.Validation(opCheckout, err)
	}

	customerID := strings.TrimSpace(session.CustomerID)
	if customerID == "" {
		customerID = remote.CustomerID
	}
	if customerID == "" {
		return checkoutPlan{}, domain.Validation(opCheckout, fmt.Errorf("%w: customer is required", domain.ErrInvalidPayload))
	}

	return checkoutPlan{
		remote:     remote,
		customerID: customerID,
		plan:       plan,
		interval:   interval,
		status:     status,
		maxMembers: s.catalog.MaxMembers(plan),
	}, nil
}

func (s *Service) newSubscription(meta checkoutMetadata, cp checkoutPlan) *domain.Subscription {
	providerID := cp.remote.ID
	interval := cp.interval
	sub := &domain.Subscription{
		ID:                     s.genID.Generate(),
		ProviderCustomerID:     cp.customerID,
		ProviderSubscriptionID: &providerID,
		PlanType:               cp.plan,
		BillingInterval:        &interval,
		Status:                 cp.status,
		CancelAtPeriodEnd:      cp.remote.CancelAtPeriodEnd,
		Metadata:               meta.toMap(),
	}
	if !cp.remote.PeriodStart.IsZero() {
		start := cp.remote.PeriodStart
		sub.PeriodStart = &start
	}
	if !cp.remote.PeriodEnd.IsZero() {
		end := cp.remote.PeriodEnd
		sub.PeriodEnd = &end
	}
	return sub
}

func (s *Service) attachPersonal(ctx context.Context, meta checkoutMetadata, cp checkoutPlan) error {
	userID, err := parseID("user_id", meta.UserID)
	if err != nil {
		return domain.Validation(opCheckout, err)
	}

	sub := s.newSubscription(meta, cp)
	sub.OwnerUserID = &userID
	return s.repo.UpsertPersonalSubscription(ctx, sub)
}

func (s *Service) createOrganization(ctx context.Context, session domain.CheckoutSession, meta checkoutMetadata, cp checkoutPlan) error {
	userID, err := parseID("user_id", meta.UserID)
	if err != nil {
		return domain.Validation(opCheckout, err)
	}

	orgID := s.genID.Generate()
	customerID := cp.customerID
	providerSubID := cp.remote.ID
	sessionID := session.ID
	org := &domain.Organization{
		ID:                     orgID,
		Name:                   meta.OrganizationName,
		Slug:                   organizationSlug(meta.OrganizationName, orgID),
		PlanType:               cp.plan,
		MaxMembers:             cp.maxMembers,
		ProviderCustomerID:     &customerID,
		ProviderSubscriptionID: &providerSubID,
		CheckoutSessionID:      &sessionID,
	}

	return s.repo.Transaction(ctx, func(repo domain.Repository) error {
		created, err := repo.CreateOrganization(ctx, org)
		if err != nil {
			return err
		}
		if !created {
			s.logger(ctx).Info("organization already created for checkout",
				zap.String("organization_id", org.ID.String()),
			)
		}

		member := &domain.OrganizationMember{
			ID:             s.genID.Generate(),
			OrganizationID: org.ID,
			UserID:         userID,
			Role:           domain.MemberRoleAdmin,
		}
		if err := repo.UpsertMember(ctx, member); err != nil {
			return err
		}

		sub := s.newSubscription(meta, cp)
		sub.OwnerOrganizationID = &org.ID
		return repo.UpsertOrganizationSubscription(ctx, sub)
	})
}

// upgradeOrganization detaches the previous subscriptions, points the
// organization at the new one and upserts it, in that order.
func (s *Service) upgradeOrganization(ctx context.Context, session domain.CheckoutSession, meta checkoutMetadata, cp checkoutPlan) error {
	orgID, err := parseID("organization_id", meta.OrganizationID)
	if err != nil {
		return domain.Validation(opCheckout, err)
	}

	return s.repo.Transaction(ctx, func(repo domain.Repository) error {
		detached, err := repo.DetachOrganizationSubscriptions(ctx, orgID, cp.remote.ID)
		if err != nil {
			return err
		}

		found, err := repo.UpdateOrganizationPlan(ctx, domain.OrganizationPlanUpdate{
			OrganizationID:         orgID,
			PlanType:               cp.plan,
			MaxMembers:             cp.maxMembers,
			ProviderCustomerID:     cp.customerID,
			ProviderSubscriptionID: cp.remote.ID,
		})
		if err != nil {
			return err
		}
		if !found {
			return domain.Missing(opCheckout, fmt.Errorf("%w: %s", domain.ErrOrganizationNotFound, orgID))
		}

		sub := s.newSubscription(meta, cp)
		sub.OwnerOrganizationID = &orgID
		if err := repo.UpsertOrganizationSubscription(ctx, sub); err != nil {
			return err
		}

		s.logger(ctx).Info("organization upgraded",
			zap.String("organization_id", orgID.String()),
			zap.String("checkout_session_id", session.ID),
			zap.Int64("detached_subscriptions", detached),
		)
		return nil
	})
}

func organizationSlug(name string, id snowflake.ID) string {
	base := slug.Make(name)
	if base == "" {
		base = "org"
	}
	return base + "-" + strings.ToLower(id.Base36())
}
