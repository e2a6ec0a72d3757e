// Package domain contains persistence models, events and contracts for the
// billing synchronization engine.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PlanType is the commercial plan attached to a subscription or organization.
type PlanType string

const (
	PlanFree     PlanType = "free"
	PlanBasic    PlanType = "basic"
	PlanStandard PlanType = "standard"
	PlanPremium  PlanType = "premium"
)

func (p PlanType) Valid() bool {
	switch p {
	case PlanFree, PlanBasic, PlanStandard, PlanPremium:
		return true
	}
	return false
}

// ParsePlanType normalizes raw input into a PlanType.
func ParsePlanType(raw string) (PlanType, error) {
	plan := PlanType(strings.ToLower(strings.TrimSpace(raw)))
	if !plan.Valid() {
		return "", fmt.Errorf("%w: plan %q", ErrInvalidPlan, raw)
	}
	return plan, nil
}

// BillingInterval is the recurring period of a paid plan.
type BillingInterval string

const (
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

func (i BillingInterval) Valid() bool {
	switch i {
	case IntervalMonth, IntervalYear:
		return true
	}
	return false
}

// ParseBillingInterval normalizes raw input into a BillingInterval.
func ParseBillingInterval(raw string) (BillingInterval, error) {
	interval := BillingInterval(strings.ToLower(strings.TrimSpace(raw)))
	if !interval.Valid() {
		return "", fmt.Errorf("%w: interval %q", ErrInvalidInterval, raw)
	}
	return interval, nil
}

// SubscriptionStatus represents lifecycle states for a subscription.
// Provider trial states collapse to active.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusCanceled:
		return true
	}
	return false
}

// MapProviderStatus maps a provider subscription status onto the local state machine.
func MapProviderStatus(raw string) (SubscriptionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "trialing":
		return SubscriptionStatusActive, nil
	case "past_due", "unpaid", "incomplete", "paused":
		return SubscriptionStatusPastDue, nil
	case "canceled", "incomplete_expired":
		return SubscriptionStatusCanceled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

// MemberRole is the role of a user inside an organization.
type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// Subscription captures one billing relationship, owned either by a user
// (personal scope) or by an organization.
type Subscription struct {
	ID                     snowflake.ID       `gorm:"primaryKey" json:"id"`
	OwnerUserID            *snowflake.ID      `gorm:"uniqueIndex:ux_subscriptions_owner_user" json:"owner_user_id,omitempty"`
	OwnerOrganizationID    *snowflake.ID      `gorm:"index" json:"owner_organization_id,omitempty"`
	ProviderCustomerID     string             `gorm:"type:text;not null" json:"provider_customer_id"`
	ProviderSubscriptionID *string            `gorm:"type:text;uniqueIndex:ux_subscriptions_provider_subscription" json:"provider_subscription_id,omitempty"`
	PlanType               PlanType           `gorm:"type:text;not null" json:"plan_type"`
	BillingInterval        *BillingInterval   `gorm:"type:text" json:"billing_interval,omitempty"`
	Status                 SubscriptionStatus `gorm:"type:text;not null" json:"status"`
	PeriodStart            *time.Time         `json:"period_start,omitempty"`
	PeriodEnd              *time.Time         `json:"period_end,omitempty"`
	CancelAtPeriodEnd      bool               `gorm:"not null;default:false" json:"cancel_at_period_end"`
	Metadata               datatypes.JSONMap  `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt              time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt              time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// IsPersonal reports whether the subscription is billed to an individual user.
func (s Subscription) IsPersonal() bool { return s.OwnerUserID != nil }

// Organization represents a tenant. Only the billing-relevant attributes are modeled.
type Organization struct {
	ID                     snowflake.ID `gorm:"primaryKey" json:"id"`
	Name                   string       `gorm:"type:text;not null" json:"name"`
	Slug                   string       `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	PlanType               PlanType     `gorm:"type:text;not null" json:"plan_type"`
	MaxMembers             int          `gorm:"not null" json:"max_members"`
	ProviderCustomerID     *string      `gorm:"type:text" json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID *string      `gorm:"type:text" json:"provider_subscription_id,omitempty"`
	CheckoutSessionID      *string      `gorm:"type:text;uniqueIndex:ux_organizations_checkout_session" json:"-"`
	CreatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// OrganizationMember represents membership of a user in an organization.
type OrganizationMember struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID `gorm:"not null;uniqueIndex:ux_org_member,priority:1" json:"organization_id"`
	UserID         snowflake.ID `gorm:"not null;uniqueIndex:ux_org_member,priority:2" json:"user_id"`
	Role           MemberRole   `gorm:"type:text;not null" json:"role"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OrganizationMember) TableName() string { return "organization_members" }

// SubscriptionPeriod is a closed-open billing period.
type SubscriptionPeriod struct {
	Start time.Time
	End   time.Time
}

// SubscriptionChange carries the provider-authoritative fields applied on
// subscription lifecycle events.
type SubscriptionChange struct {
	PlanType          PlanType
	BillingInterval   *BillingInterval
	Status            SubscriptionStatus
	Period            SubscriptionPeriod
	CancelAtPeriodEnd bool
}

// OrganizationPlanUpdate attaches a new subscription to an organization.
type OrganizationPlanUpdate struct {
	OrganizationID         snowflake.ID
	PlanType               PlanType
	MaxMembers             int
	ProviderCustomerID     string
	ProviderSubscriptionID string
}

// FormatTimestamp renders a timestamp the way the billing API exposes it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
