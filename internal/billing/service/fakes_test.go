package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
)

// Manual Mocks

type fakeProvider struct {
	subs  map[string]*domain.ProviderSubscription
	err   error
	calls int
}

func (p *fakeProvider) GetSubscription(_ context.Context, id string) (*domain.ProviderSubscription, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	sub, ok := p.subs[id]
	if !ok {
		return nil, domain.Missing("stripe.get_subscription", fmt.Errorf("%w: %s", domain.ErrSubscriptionNotFound, id))
	}
	cp := *sub
	return &cp, nil
}

type memberKey struct {
	org  snowflake.ID
	user snowflake.ID
}

// fakeRepo keeps state in memory with the same conflict and guard rules as
// the SQL repository, and records every call in order.
type fakeRepo struct {
	calls    []string
	subs     []*domain.Subscription
	orgs     map[snowflake.ID]*domain.Organization
	members  map[memberKey]domain.MemberRole
	failWith map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orgs:     map[snowflake.ID]*domain.Organization{},
		members:  map[memberKey]domain.MemberRole{},
		failWith: map[string]error{},
	}
}

func (r *fakeRepo) record(name string) error {
	r.calls = append(r.calls, name)
	if err := r.failWith[name]; err != nil {
		return err
	}
	return nil
}

func (r *fakeRepo) byProviderID(id string) *domain.Subscription {
	for _, sub := range r.subs {
		if sub.ProviderSubscriptionID != nil && *sub.ProviderSubscriptionID == id {
			return sub
		}
	}
	return nil
}

// Transaction restores every row in place when fn fails, like a rollback.
func (r *fakeRepo) Transaction(_ context.Context, fn func(domain.Repository) error) error {
	if err := r.record("transaction"); err != nil {
		return err
	}

	subs := append([]*domain.Subscription(nil), r.subs...)
	subValues := make([]domain.Subscription, len(subs))
	for i, sub := range subs {
		subValues[i] = *sub
	}
	orgValues := make(map[*domain.Organization]domain.Organization, len(r.orgs))
	orgs := make(map[snowflake.ID]*domain.Organization, len(r.orgs))
	for id, org := range r.orgs {
		orgs[id] = org
		orgValues[org] = *org
	}
	members := make(map[memberKey]domain.MemberRole, len(r.members))
	for key, role := range r.members {
		members[key] = role
	}

	if err := fn(r); err != nil {
		for i, sub := range subs {
			*sub = subValues[i]
		}
		for org, value := range orgValues {
			*org = value
		}
		r.subs, r.orgs, r.members = subs, orgs, members
		return err
	}
	return nil
}

func (r *fakeRepo) UpsertPersonalSubscription(_ context.Context, sub *domain.Subscription) error {
	if err := r.record("upsert_personal_subscription"); err != nil {
		return err
	}
	for i, existing := range r.subs {
		if existing.OwnerUserID == nil || *existing.OwnerUserID != *sub.OwnerUserID {
			continue
		}
		sameProvider := existing.ProviderSubscriptionID != nil && *existing.ProviderSubscriptionID == *sub.ProviderSubscriptionID
		if existing.Status == domain.SubscriptionStatusCanceled && sameProvider {
			return nil
		}
		cp := *sub
		cp.ID = existing.ID
		r.subs[i] = &cp
		return nil
	}
	cp := *sub
	r.subs = append(r.subs, &cp)
	return nil
}

func (r *fakeRepo) UpsertOrganizationSubscription(_ context.Context, sub *domain.Subscription) error {
	if err := r.record("upsert_organization_subscription"); err != nil {
		return err
	}
	if existing := r.byProviderID(*sub.ProviderSubscriptionID); existing != nil {
		if existing.Status == domain.SubscriptionStatusCanceled {
			return nil
		}
		id := existing.ID
		*existing = *sub
		existing.ID = id
		return nil
	}
	cp := *sub
	r.subs = append(r.subs, &cp)
	return nil
}

func (r *fakeRepo) FindSubscriptionByProviderID(_ context.Context, id string) (*domain.Subscription, error) {
	if err := r.record("find_subscription"); err != nil {
		return nil, err
	}
	sub := r.byProviderID(id)
	if sub == nil {
		return nil, domain.Missing("billing.find_subscription", domain.ErrSubscriptionNotFound)
	}
	cp := *sub
	return &cp, nil
}

func (r *fakeRepo) ApplySubscriptionChange(_ context.Context, id string, change domain.SubscriptionChange) (bool, error) {
	if err := r.record("apply_subscription_change"); err != nil {
		return false, err
	}
	sub := r.byProviderID(id)
	if sub == nil {
		return false, nil
	}
	sub.PlanType = change.PlanType
	sub.BillingInterval = change.BillingInterval
	if sub.Status != domain.SubscriptionStatusCanceled {
		sub.Status = change.Status
	}
	applyPeriod(sub, &change.Period)
	sub.CancelAtPeriodEnd = change.CancelAtPeriodEnd
	return true, nil
}

func (r *fakeRepo) SetSubscriptionStatus(_ context.Context, id string, status domain.SubscriptionStatus, period *domain.SubscriptionPeriod) (bool, error) {
	if err := r.record("set_subscription_status"); err != nil {
		return false, err
	}
	sub := r.byProviderID(id)
	if sub == nil {
		return false, nil
	}
	if sub.Status == domain.SubscriptionStatusCanceled {
		return true, nil
	}
	sub.Status = status
	applyPeriod(sub, period)
	return true, nil
}

func applyPeriod(sub *domain.Subscription, period *domain.SubscriptionPeriod) {
	if period == nil {
		return
	}
	if !period.Start.IsZero() {
		start := period.Start.UTC()
		sub.PeriodStart = &start
	}
	if !period.End.IsZero() {
		end := period.End.UTC()
		sub.PeriodEnd = &end
	}
}

func (r *fakeRepo) RetireSubscription(_ context.Context, id snowflake.ID) error {
	if err := r.record("retire_subscription"); err != nil {
		return err
	}
	for _, sub := range r.subs {
		if sub.ID == id {
			sub.Status = domain.SubscriptionStatusCanceled
			sub.PlanType = domain.PlanFree
			sub.ProviderSubscriptionID = nil
			sub.OwnerOrganizationID = nil
			sub.CancelAtPeriodEnd = false
		}
	}
	return nil
}

func (r *fakeRepo) DetachOrganizationSubscriptions(_ context.Context, orgID snowflake.ID, keep string) (int64, error) {
	if err := r.record("detach_organization_subscriptions"); err != nil {
		return 0, err
	}
	var n int64
	for _, sub := range r.subs {
		if sub.OwnerOrganizationID == nil || *sub.OwnerOrganizationID != orgID {
			continue
		}
		if sub.ProviderSubscriptionID != nil && *sub.ProviderSubscriptionID == keep {
			continue
		}
		sub.Status = domain.SubscriptionStatusCanceled
		sub.OwnerOrganizationID = nil
		n++
	}
	return n, nil
}

func (r *fakeRepo) CreateOrganization(_ context.Context, org *domain.Organization) (bool, error) {
	if err := r.record("create_organization"); err != nil {
		return false, err
	}
	for _, existing := range r.orgs {
		if existing.CheckoutSessionID != nil && org.CheckoutSessionID != nil && *existing.CheckoutSessionID == *org.CheckoutSessionID {
			org.ID = existing.ID
			return false, nil
		}
	}
	cp := *org
	r.orgs[org.ID] = &cp
	return true, nil
}

func (r *fakeRepo) UpsertMember(_ context.Context, member *domain.OrganizationMember) error {
	if err := r.record("upsert_member"); err != nil {
		return err
	}
	r.members[memberKey{org: member.OrganizationID, user: member.UserID}] = member.Role
	return nil
}

func (r *fakeRepo) UpdateOrganizationPlan(_ context.Context, update domain.OrganizationPlanUpdate) (bool, error) {
	if err := r.record("update_organization_plan"); err != nil {
		return false, err
	}
	org, ok := r.orgs[update.OrganizationID]
	if !ok {
		return false, nil
	}
	customer := update.ProviderCustomerID
	providerID := update.ProviderSubscriptionID
	org.PlanType = update.PlanType
	org.MaxMembers = update.MaxMembers
	org.ProviderCustomerID = &customer
	org.ProviderSubscriptionID = &providerID
	return true, nil
}

func (r *fakeRepo) DowngradeOrganizationIfCurrent(_ context.Context, orgID snowflake.ID, providerID string, plan domain.PlanType, maxMembers int) (bool, error) {
	if err := r.record("downgrade_organization"); err != nil {
		return false, err
	}
	org, ok := r.orgs[orgID]
	if !ok || org.ProviderSubscriptionID == nil || *org.ProviderSubscriptionID != providerID {
		return false, nil
	}
	org.PlanType = plan
	org.MaxMembers = maxMembers
	org.ProviderSubscriptionID = nil
	return true, nil
}

func (r *fakeRepo) reset() {
	r.calls = nil
}

var _ domain.Repository = (*fakeRepo)(nil)
var _ domain.ProviderClient = (*fakeProvider)(nil)
