package domain

import "time"

// EventType is the provider tag of a billing event.
type EventType string

const (
	EventCheckoutCompleted       EventType = "checkout.session.completed"
	EventSubscriptionCreated     EventType = "customer.subscription.created"
	EventSubscriptionUpdated     EventType = "customer.subscription.updated"
	EventSubscriptionDeleted     EventType = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded EventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    EventType = "invoice.payment_failed"
)

// Event is a verified billing event. The set of implementations is closed.
type Event interface {
	EventID() string
	EventType() EventType
	isEvent()
}

// EventMeta carries the envelope fields shared by every event.
type EventMeta struct {
	ID      string
	Type    EventType
	Created time.Time
}

func (m EventMeta) EventID() string      { return m.ID }
func (m EventMeta) EventType() EventType { return m.Type }

// CheckoutSession is the completed checkout payload.
type CheckoutSession struct {
	ID                string
	CustomerID        string
	SubscriptionID    string
	ClientReferenceID string
	Mode              string
	Metadata          map[string]string
}

// Invoice is the subset of invoice data the engine reconciles on.
type Invoice struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	Status         string
}

// ProviderSubscription is a subscription as reported by the payment provider.
type ProviderSubscription struct {
	ID                string
	CustomerID        string
	Status            string
	PriceID           string
	Interval          string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
}

type CheckoutCompleted struct {
	EventMeta
	Session CheckoutSession
}

type SubscriptionCreated struct {
	EventMeta
	Subscription ProviderSubscription
}

type SubscriptionUpdated struct {
	EventMeta
	Subscription ProviderSubscription
}

type SubscriptionDeleted struct {
	EventMeta
	Subscription ProviderSubscription
}

type InvoicePaymentSucceeded struct {
	EventMeta
	Invoice Invoice
}

type InvoicePaymentFailed struct {
	EventMeta
	Invoice Invoice
}

// Unhandled is any authentic event whose type the engine does not reconcile.
type Unhandled struct {
	EventMeta
}

func (CheckoutCompleted) isEvent()       {}
func (SubscriptionCreated) isEvent()     {}
func (SubscriptionUpdated) isEvent()     {}
func (SubscriptionDeleted) isEvent()     {}
func (InvoicePaymentSucceeded) isEvent() {}
func (InvoicePaymentFailed) isEvent()    {}
func (Unhandled) isEvent()               {}
