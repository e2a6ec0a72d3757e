package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
	"github.com/smallbiznis/scorebench/internal/clock"
	"github.com/smallbiznis/scorebench/internal/observability/metrics"
	"github.com/smallbiznis/scorebench/pkg/db"
)

// canceledGuard keeps a canceled row canceled. Status is bound as the only
// parameter.
const canceledGuard = `CASE WHEN status = 'canceled' THEN status ELSE ? END`

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *metrics.BillingMetrics `optional:"true"`
}

type repository struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	metrics *metrics.BillingMetrics
}

func NewRepository(p Params) domain.Repository {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &repository{
		db:      p.DB,
		log:     p.Log.Named("billing.repository"),
		clock:   c,
		metrics: p.Metrics,
	}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx, log: r.log, clock: r.clock, metrics: r.metrics}
}

func (r *repository) Transaction(ctx context.Context, fn func(repo domain.Repository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	return r.fail("billing.transaction", err)
}

func (r *repository) now() time.Time {
	return r.clock.Now().UTC()
}

func (r *repository) fail(op string, err error) error {
	r.metrics.ObservePersistenceError(err)
	r.log.Warn("billing write failed",
		zap.String("op", op),
		zap.Bool("transient", db.IsTransientErr(err)),
		zap.Bool("duplicate_key", db.IsDuplicateKeyErr(err)),
		zap.Error(err),
	)
	return domain.Persistence(op, err)
}

func (r *repository) UpsertPersonalSubscription(ctx context.Context, sub *domain.Subscription) error {
	if sub == nil || sub.OwnerUserID == nil {
		return domain.Validation("billing.upsert_personal_subscription", errors.New("owner user is required"))
	}
	now := r.now()
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, owner_user_id, owner_organization_id, provider_customer_id, provider_subscription_id,
			plan_type, billing_interval, status, period_start, period_end, cancel_at_period_end,
			metadata, created_at, updated_at
		) VALUES (?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_user_id) DO UPDATE SET
			provider_customer_id = excluded.provider_customer_id,
			provider_subscription_id = excluded.provider_subscription_id,
			plan_type = excluded.plan_type,
			billing_interval = excluded.billing_interval,
			status = excluded.status,
			period_start = excluded.period_start,
			period_end = excluded.period_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		WHERE subscriptions.status <> 'canceled'
			OR COALESCE(subscriptions.provider_subscription_id, '') <> COALESCE(excluded.provider_subscription_id, '')`,
		sub.ID,
		sub.OwnerUserID,
		sub.ProviderCustomerID,
		sub.ProviderSubscriptionID,
		sub.PlanType,
		sub.BillingInterval,
		sub.Status,
		sub.PeriodStart,
		sub.PeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.Metadata,
		now,
		now,
	).Error
	if err != nil {
		return r.fail("billing.upsert_personal_subscription", err)
	}
	return nil
}

func (r *repository) UpsertOrganizationSubscription(ctx context.Context, sub *domain.Subscription) error {
	if sub == nil || sub.OwnerOrganizationID == nil || sub.ProviderSubscriptionID == nil {
		return domain.Validation("billing.upsert_organization_subscription", errors.New("owner organization and provider subscription are required"))
	}
	now := r.now()
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, owner_user_id, owner_organization_id, provider_customer_id, provider_subscription_id,
			plan_type, billing_interval, status, period_start, period_end, cancel_at_period_end,
			metadata, created_at, updated_at
		) VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_subscription_id) DO UPDATE SET
			owner_organization_id = excluded.owner_organization_id,
			provider_customer_id = excluded.provider_customer_id,
			plan_type = excluded.plan_type,
			billing_interval = excluded.billing_interval,
			status = excluded.status,
			period_start = excluded.period_start,
			period_end = excluded.period_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		WHERE subscriptions.status <> 'canceled'`,
		sub.ID,
		sub.OwnerOrganizationID,
		sub.ProviderCustomerID,
		sub.ProviderSubscriptionID,
		sub.PlanType,
		sub.BillingInterval,
		sub.Status,
		sub.PeriodStart,
		sub.PeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.Metadata,
		now,
		now,
	).Error
	if err != nil {
		return r.fail("billing.upsert_organization_subscription", err)
	}
	return nil
}

func (r *repository) FindSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.Missing("billing.find_subscription",
			fmt.Errorf("%w: %s", domain.ErrSubscriptionNotFound, providerSubscriptionID))
	}
	if err != nil {
		return nil, r.fail("billing.find_subscription", err)
	}
	return &sub, nil
}

func (r *repository) ApplySubscriptionChange(ctx context.Context, providerSubscriptionID string, change domain.SubscriptionChange) (bool, error) {
	start, end := periodArgs(&change.Period)
	res := r.db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			plan_type = ?,
			billing_interval = ?,
			status = `+canceledGuard+`,
			period_start = COALESCE(?, period_start),
			period_end = COALESCE(?, period_end),
			cancel_at_period_end = ?,
			updated_at = ?
		WHERE provider_subscription_id = ?`,
		change.PlanType,
		change.BillingInterval,
		change.Status,
		start,
		end,
		change.CancelAtPeriodEnd,
		r.now(),
		providerSubscriptionID,
	)
	if res.Error != nil {
		return false, r.fail("billing.apply_subscription_change", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetSubscriptionStatus(ctx context.Context, providerSubscriptionID string, status domain.SubscriptionStatus, period *domain.SubscriptionPeriod) (bool, error) {
	start, end := periodArgs(period)
	res := r.db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			status = `+canceledGuard+`,
			period_start = CASE WHEN status = 'canceled' THEN period_start ELSE COALESCE(?, period_start) END,
			period_end = CASE WHEN status = 'canceled' THEN period_end ELSE COALESCE(?, period_end) END,
			updated_at = ?
		WHERE provider_subscription_id = ?`,
		status,
		start,
		end,
		r.now(),
		providerSubscriptionID,
	)
	if res.Error != nil {
		return false, r.fail("billing.set_subscription_status", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) RetireSubscription(ctx context.Context, subscriptionID snowflake.ID) error {
	err := r.db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			status = 'canceled',
			plan_type = 'free',
			provider_subscription_id = NULL,
			owner_organization_id = NULL,
			cancel_at_period_end = ?,
			updated_at = ?
		WHERE id = ?`,
		false,
		r.now(),
		subscriptionID,
	).Error
	if err != nil {
		return r.fail("billing.retire_subscription", err)
	}
	return nil
}

func (r *repository) DetachOrganizationSubscriptions(ctx context.Context, orgID snowflake.ID, keepProviderSubscriptionID string) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			status = 'canceled',
			owner_organization_id = NULL,
			updated_at = ?
		WHERE owner_organization_id = ?
			AND (provider_subscription_id IS NULL OR provider_subscription_id <> ?)`,
		r.now(),
		orgID,
		keepProviderSubscriptionID,
	)
	if res.Error != nil {
		return 0, r.fail("billing.detach_organization_subscriptions", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *repository) CreateOrganization(ctx context.Context, org *domain.Organization) (bool, error) {
	if org == nil {
		return false, domain.Validation("billing.create_organization", errors.New("organization is required"))
	}
	now := r.now()
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (
			id, name, slug, plan_type, max_members, provider_customer_id,
			provider_subscription_id, checkout_session_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (checkout_session_id) DO NOTHING`,
		org.ID,
		org.Name,
		org.Slug,
		org.PlanType,
		org.MaxMembers,
		org.ProviderCustomerID,
		org.ProviderSubscriptionID,
		org.CheckoutSessionID,
		now,
		now,
	)
	if res.Error != nil {
		return false, r.fail("billing.create_organization", res.Error)
	}
	if res.RowsAffected > 0 || org.CheckoutSessionID == nil {
		return true, nil
	}

	var existing domain.Organization
	err := r.db.WithContext(ctx).
		Select("id").
		Where("checkout_session_id = ?", *org.CheckoutSessionID).
		Take(&existing).Error
	if err != nil {
		return false, r.fail("billing.create_organization", err)
	}
	org.ID = existing.ID
	return false, nil
}

func (r *repository) UpsertMember(ctx context.Context, member *domain.OrganizationMember) error {
	if member == nil {
		return domain.Validation("billing.upsert_member", errors.New("member is required"))
	}
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO organization_members (id, organization_id, user_id, role, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (organization_id, user_id) DO UPDATE SET role = excluded.role`,
		member.ID,
		member.OrganizationID,
		member.UserID,
		member.Role,
		r.now(),
	).Error
	if err != nil {
		return r.fail("billing.upsert_member", err)
	}
	return nil
}

func (r *repository) UpdateOrganizationPlan(ctx context.Context, update domain.OrganizationPlanUpdate) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE organizations SET
			plan_type = ?,
			max_members = ?,
			provider_customer_id = ?,
			provider_subscription_id = ?,
			updated_at = ?
		WHERE id = ?`,
		update.PlanType,
		update.MaxMembers,
		update.ProviderCustomerID,
		update.ProviderSubscriptionID,
		r.now(),
		update.OrganizationID,
	)
	if res.Error != nil {
		return false, r.fail("billing.update_organization_plan", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) DowngradeOrganizationIfCurrent(ctx context.Context, orgID snowflake.ID, providerSubscriptionID string, plan domain.PlanType, maxMembers int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE organizations SET
			plan_type = ?,
			max_members = ?,
			provider_subscription_id = NULL,
			updated_at = ?
		WHERE id = ? AND provider_subscription_id = ?`,
		plan,
		maxMembers,
		r.now(),
		orgID,
		providerSubscriptionID,
	)
	if res.Error != nil {
		return false, r.fail("billing.downgrade_organization", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// periodArgs returns NULL for missing bounds so the stored period is kept.
func periodArgs(period *domain.SubscriptionPeriod) (start, end *time.Time) {
	if period == nil {
		return nil, nil
	}
	if !period.Start.IsZero() {
		s := period.Start.UTC()
		start = &s
	}
	if !period.End.IsZero() {
		e := period.End.UTC()
		end = &e
	}
	return start, end
}
