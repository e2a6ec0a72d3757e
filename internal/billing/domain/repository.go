package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Repository is the persistence gateway for billing state. Every write is
// either a conflict-target upsert or a conditional update, so repeated
// application converges on the same rows.
type Repository interface {
	// Transaction runs fn against a repository bound to a single transaction.
	Transaction(ctx context.Context, fn func(repo Repository) error) error

	// UpsertPersonalSubscription inserts or updates keyed by owner user.
	UpsertPersonalSubscription(ctx context.Context, sub *Subscription) error
	// UpsertOrganizationSubscription inserts or updates keyed by provider subscription id.
	UpsertOrganizationSubscription(ctx context.Context, sub *Subscription) error
	FindSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*Subscription, error)
	// ApplySubscriptionChange reports whether a row matched.
	ApplySubscriptionChange(ctx context.Context, providerSubscriptionID string, change SubscriptionChange) (bool, error)
	// SetSubscriptionStatus reports whether a row matched. A nil period keeps the stored one.
	SetSubscriptionStatus(ctx context.Context, providerSubscriptionID string, status SubscriptionStatus, period *SubscriptionPeriod) (bool, error)
	// RetireSubscription cancels the row, downgrades it to free and clears its provider id.
	RetireSubscription(ctx context.Context, subscriptionID snowflake.ID) error
	// DetachOrganizationSubscriptions cancels every subscription attached to the
	// organization except keepProviderSubscriptionID.
	DetachOrganizationSubscriptions(ctx context.Context, orgID snowflake.ID, keepProviderSubscriptionID string) (int64, error)

	// CreateOrganization inserts org unless one exists for the same checkout
	// session. org.ID always holds the persisted id afterwards.
	CreateOrganization(ctx context.Context, org *Organization) (bool, error)
	UpsertMember(ctx context.Context, member *OrganizationMember) error
	// UpdateOrganizationPlan reports whether the organization exists.
	UpdateOrganizationPlan(ctx context.Context, update OrganizationPlanUpdate) (bool, error)
	// DowngradeOrganizationIfCurrent resets the organization to plan only while
	// its current subscription is still providerSubscriptionID.
	DowngradeOrganizationIfCurrent(ctx context.Context, orgID snowflake.ID, providerSubscriptionID string, plan PlanType, maxMembers int) (bool, error)
}

// ProviderClient reads authoritative subscription state from the payment provider.
type ProviderClient interface {
	GetSubscription(ctx context.Context, providerSubscriptionID string) (*ProviderSubscription, error)
}

// PriceCatalog resolves provider prices and plan limits.
type PriceCatalog interface {
	Resolve(priceID string) (PlanType, BillingInterval, error)
	MaxMembers(plan PlanType) int
}
